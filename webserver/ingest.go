package webserver

import (
	"net/http"
	"strings"

	"github.com/doguser/NickWatchBot/announcement"
	"github.com/doguser/NickWatchBot/errorhandler"
	"github.com/doguser/NickWatchBot/logger"
	"github.com/doguser/NickWatchBot/models"
	"github.com/doguser/NickWatchBot/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type webhookEmbedField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type webhookEmbed struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Fields      []webhookEmbedField `json:"fields"`
}

type webhookRequest struct {
	Type          int            `json:"type"`
	Content       string         `json:"content"`
	ChannelID     string         `json:"channel_id"`
	GuildID       string         `json:"guild_id"`
	Status        string         `json:"status" binding:"omitempty,username_status"`
	AvailableDate *string        `json:"available_date" binding:"omitempty,isodate"`
	Embeds        []webhookEmbed `json:"embeds"`
}

// isPing reports the empty handshake message sent when a webhook is registered.
func (r webhookRequest) isPing() bool {
	return r.Type == 0 && strings.TrimSpace(r.Content) == "" && len(r.Embeds) == 0
}

type candidate struct {
	text   string
	source services.CandidateSource
}

// candidates splits content and embed text into one candidate per non-blank
// line. Embed lines go through the strict charset.
func (r webhookRequest) candidates() []candidate {
	var out []candidate
	add := func(text string, src services.CandidateSource) {
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if line != "" {
				out = append(out, candidate{text: line, source: src})
			}
		}
	}

	add(r.Content, services.SourceContent)
	for _, embed := range r.Embeds {
		add(embed.Description, services.SourceEmbed)
		for _, field := range embed.Fields {
			add(field.Value, services.SourceEmbed)
		}
	}
	return out
}

func (s *Server) webhookInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "Discord webhook endpoint is running",
		"usage":   "POST {content, channel_id, status?, available_date?}; ?category= overrides the channel category",
	})
}

func (s *Server) ingestWebhook(c *gin.Context) {
	var req webhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bindingError(err), nil)
		return
	}

	if req.isPing() {
		c.JSON(http.StatusOK, gin.H{"type": 1})
		return
	}

	status := models.StatusAvailable
	if req.Status != "" {
		status, _ = models.ParseStatus(req.Status)
	}
	var date string
	if req.AvailableDate != nil {
		date = *req.AvailableDate
	}
	override := c.Query("category")

	log := logger.Log.WithFields(logrus.Fields{
		"channel":    req.ChannelID,
		"request_id": c.GetString("request_id"),
	})

	policy := s.deps.Upserter.Policy()
	seen := make(map[string]bool)
	saved := make([]string, 0)
	var lastErr error

	for _, cand := range req.candidates() {
		name, err := policy.Normalize(cand.text, cand.source)
		if err != nil {
			log.WithField("candidate", cand.text).Debug("Skipping invalid candidate")
			continue
		}
		if seen[name] {
			continue
		}
		seen[name] = true

		upsert := services.UpsertRequest{
			Candidate:        name,
			ChannelID:        req.ChannelID,
			Status:           models.StatusAvailable,
			CategoryOverride: override,
			Source:           cand.source,
		}
		if cand.source == services.SourceContent {
			upsert.Status = status
			upsert.AvailableDate = announcement.ParseDate(date)
		}

		rec, err := s.deps.Upserter.Upsert(c.Request.Context(), upsert)
		if err != nil {
			if !errorhandler.Is(err, errorhandler.ValidationError) {
				log.WithError(err).WithField("username", name).Error("Error saving username")
				lastErr = err
			}
			continue
		}
		saved = append(saved, rec.Name)
	}

	if len(saved) == 0 && lastErr != nil {
		writeError(c, lastErr, nil)
		return
	}

	message := "No valid usernames found in message"
	if len(saved) > 0 {
		message = "Saved usernames"
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   message,
		"count":     len(saved),
		"usernames": saved,
	})
}
