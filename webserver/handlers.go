package webserver

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/doguser/NickWatchBot/database"
	"github.com/doguser/NickWatchBot/errorhandler"
	"github.com/doguser/NickWatchBot/logger"
	"github.com/doguser/NickWatchBot/lookup"
	"github.com/doguser/NickWatchBot/models"

	"github.com/gin-gonic/gin"
)

type channelView struct {
	ChannelID  string          `json:"channelId"`
	ServerID   string          `json:"serverId,omitempty"`
	Category   models.Category `json:"category"`
	Platform   models.Platform `json:"platform"`
	WebhookURL *string         `json:"webhookUrl"`
	IsActive   bool            `json:"isActive"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

func newChannelView(cfg models.ChannelConfig) channelView {
	return channelView{
		ChannelID:  cfg.ChannelID,
		ServerID:   cfg.ServerID,
		Category:   cfg.Category,
		Platform:   cfg.Platform,
		WebhookURL: cfg.WebhookURL,
		IsActive:   cfg.IsActive,
		CreatedAt:  cfg.CreatedAt,
		UpdatedAt:  cfg.UpdatedAt,
	}
}

type usernameView struct {
	Name          string                `json:"name"`
	Platform      models.Platform       `json:"platform"`
	Category      models.Category       `json:"category"`
	Status        models.UsernameStatus `json:"status"`
	FoundAt       time.Time             `json:"foundAt"`
	AvailableDate *string               `json:"availableDate"`
}

func newUsernameView(rec models.UsernameRecord) usernameView {
	v := usernameView{
		Name:     rec.Name,
		Platform: rec.Platform,
		Category: rec.Category,
		Status:   rec.Status,
		FoundAt:  rec.FoundAt,
	}
	if date := rec.AvailableDateString(); date != "" {
		v.AvailableDate = &date
	}
	return v
}

type searchRequest struct {
	Query     string `json:"query"`
	UserID    string `json:"userId"` // older dashboard builds send userId
	Option    string `json:"option"`
	ChannelID string `json:"channelId" binding:"omitempty,snowflake"`
	ServerID  string `json:"serverId" binding:"omitempty,snowflake"`
}

func (s *Server) search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bindingError(err), nil)
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		query = strings.TrimSpace(req.UserID)
	}

	profile, err := s.deps.Searcher.Search(c.Request.Context(), lookup.SearchRequest{
		Query:     query,
		Option:    req.Option,
		ChannelID: req.ChannelID,
		ServerID:  req.ServerID,
	})
	if err != nil {
		switch errorhandler.CategoryOf(err) {
		case errorhandler.TimeoutError:
			writeError(c, err, gin.H{"status": "not_ready"})
		case errorhandler.NotReadyError:
			writeError(c, err, gin.H{"status": "offline"})
		default:
			writeError(c, err, nil)
		}
		return
	}

	c.JSON(http.StatusOK, profile)
}

func (s *Server) listChannels(c *gin.Context) {
	configs := s.deps.Registry.GetAll(c.Request.Context(), c.Query("refresh") == "true")

	views := make([]channelView, 0, len(configs))
	for _, cfg := range configs {
		views = append(views, newChannelView(cfg))
	}
	c.JSON(http.StatusOK, gin.H{"channels": views, "count": len(views)})
}

type usernameQuery struct {
	Category string `form:"category" binding:"required,category"`
	Platform string `form:"platform" binding:"omitempty,platform"`
	Status   string `form:"status" binding:"omitempty,username_status"`
	Limit    int    `form:"limit" binding:"omitempty,min=1,max=500"`
}

// listUsernames serves the dashboard listing. Without a status filter only
// AVAILABLE records are returned.
func (s *Server) listUsernames(c *gin.Context) {
	var q usernameQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeError(c, bindingError(err), nil)
		return
	}

	filter := database.UsernameFilter{Status: models.StatusAvailable, Limit: q.Limit}
	filter.Category, _ = models.ParseCategory(q.Category)
	if q.Platform != "" {
		filter.Platform, _ = models.ParsePlatform(q.Platform)
	}
	if q.Status != "" {
		filter.Status, _ = models.ParseStatus(q.Status)
	}

	rows, err := s.deps.Usernames.ListUsernames(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err, nil)
		return
	}

	views := make([]usernameView, 0, len(rows))
	for _, row := range rows {
		views = append(views, newUsernameView(row))
	}
	c.JSON(http.StatusOK, gin.H{"usernames": views})
}

type webhookConfigRequest struct {
	ChannelID  string  `json:"channelId" binding:"required,snowflake"`
	ServerID   string  `json:"serverId" binding:"omitempty,snowflake"`
	Category   string  `json:"category" binding:"omitempty,category"`
	Platform   string  `json:"platform" binding:"omitempty,platform"`
	WebhookURL *string `json:"webhookUrl" binding:"omitempty,url"`
	IsActive   *bool   `json:"isActive"`
}

func (s *Server) upsertWebhook(c *gin.Context) {
	var req webhookConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bindingError(err), nil)
		return
	}

	cfg := models.ChannelConfig{
		ChannelID:  req.ChannelID,
		ServerID:   req.ServerID,
		Category:   models.CategoryRandom,
		Platform:   s.opts.DefaultPlatform,
		WebhookURL: req.WebhookURL,
		IsActive:   true,
	}
	if req.Category != "" {
		cfg.Category, _ = models.ParseCategory(req.Category)
	}
	if req.Platform != "" {
		cfg.Platform, _ = models.ParsePlatform(req.Platform)
	}
	if req.IsActive != nil {
		cfg.IsActive = *req.IsActive
	}

	saved, err := s.deps.Registry.Upsert(c.Request.Context(), cfg)
	if err != nil {
		writeError(c, err, nil)
		return
	}

	logger.Log.WithField("channel", saved.ChannelID).Infof("Webhook config saved: %s/%s", saved.Category, saved.Platform)
	c.JSON(http.StatusOK, newChannelView(*saved))
}

func (s *Server) deleteWebhook(c *gin.Context) {
	channelID := strings.TrimSpace(c.Query("channelId"))
	if channelID == "" {
		writeError(c, errorhandler.NewValidationError(errors.New("channelId is required"), "channelId"), nil)
		return
	}

	deleted, err := s.deps.Registry.Delete(c.Request.Context(), channelID)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	if !deleted {
		writeError(c, errorhandler.NewNotFoundError(errors.New("no webhook config for "+channelID), "webhook"), nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "channelId": channelID})
}
