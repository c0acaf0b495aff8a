package webserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/doguser/NickWatchBot/database"
	"github.com/doguser/NickWatchBot/errorhandler"
	"github.com/doguser/NickWatchBot/logger"
	"github.com/doguser/NickWatchBot/lookup"
	"github.com/doguser/NickWatchBot/models"
	"github.com/doguser/NickWatchBot/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

type UsernameUpserter interface {
	Upsert(ctx context.Context, req services.UpsertRequest) (*models.UsernameRecord, error)
	Policy() services.UsernamePolicy
}

type UsernameLister interface {
	ListUsernames(ctx context.Context, f database.UsernameFilter) ([]models.UsernameRecord, error)
}

type ProfileSearcher interface {
	Search(ctx context.Context, req lookup.SearchRequest) (*models.ProfileRecord, error)
	Ready() bool
	Pending() int
}

type ChannelRegistry interface {
	GetAll(ctx context.Context, forceRefresh bool) []models.ChannelConfig
	Upsert(ctx context.Context, cfg models.ChannelConfig) (*models.ChannelConfig, error)
	Delete(ctx context.Context, channelID string) (bool, error)
}

type Options struct {
	Addr            string
	AdminAPIKey     string
	RateLimit       float64 // requests per second per client IP; 0 disables
	RateBurst       int
	DefaultPlatform models.Platform
}

type Deps struct {
	Upserter  UsernameUpserter
	Usernames UsernameLister
	Searcher  ProfileSearcher
	Registry  ChannelRegistry
	// Health pings the store; nil reports the store as unchecked.
	Health func(ctx context.Context) error
}

// Server is the HTTP surface: webhook ingestion, the search relay, channel
// and username listings and the admin webhook API.
type Server struct {
	opts    Options
	deps    Deps
	router  *gin.Engine
	limiter *limiterStore
	srv     *http.Server
}

func NewServer(opts Options, deps Deps) *Server {
	registerValidators()

	if opts.Addr == "" {
		opts.Addr = ":3001"
	}
	if opts.DefaultPlatform == "" {
		opts.DefaultPlatform = models.PlatformDiscord
	}

	s := &Server{
		opts:   opts,
		deps:   deps,
		router: gin.New(),
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = newLimiterStore(rate.Limit(opts.RateLimit), burst, 10*time.Minute)
	}

	r := s.router
	r.Use(gin.Recovery())
	r.Use(requestLogger())
	r.Use(s.rateLimit())

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	for _, path := range []string{"/webhooks/discord", "/api/webhooks/discord"} {
		r.POST(path, s.ingestWebhook)
		r.GET(path, s.webhookInfo)
	}
	r.POST("/search-relay", s.search)
	r.POST("/api/search", s.search)

	api := r.Group("/api")
	{
		api.GET("/channels", s.listChannels)
		api.GET("/usernames", s.listUsernames)

		admin := api.Group("/admin")
		admin.Use(s.apiKeyAuth())
		{
			admin.GET("/webhooks", s.listChannels)
			admin.POST("/webhooks", s.upsertWebhook)
			admin.DELETE("/webhooks", s.deleteWebhook)
		}
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves in the background; a listen failure is logged, not fatal.
func (s *Server) Start() {
	s.srv = &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 20 * time.Second,
	}

	go func() {
		logger.Log.Infof("HTTP server starting on %s", s.opts.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.WithError(err).Error("HTTP server stopped")
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// writeError maps err through the error taxonomy. Only 500s carry the raw
// error as details.
func writeError(c *gin.Context, err error, extra gin.H) {
	status := errorhandler.HTTPStatus(err)
	category := errorhandler.CategoryOf(err)

	message := "Internal server error"
	var customErr *errorhandler.CustomError
	if errors.As(err, &customErr) {
		switch {
		case customErr.Category == errorhandler.ValidationError:
			message = customErr.Error()
		case customErr.IsUserActionable:
			message = customErr.UserMessage
		}
	}

	body := gin.H{
		"success": false,
		"error": gin.H{
			"code":    category.String(),
			"message": message,
		},
	}
	if status == http.StatusInternalServerError {
		body["details"] = err.Error()
		logger.Log.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
	}
	for k, v := range extra {
		body[k] = v
	}
	c.AbortWithStatusJSON(status, body)
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	body := gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}

	if s.deps.Health != nil {
		if err := s.deps.Health(ctx); err != nil {
			logger.Log.WithError(err).Warn("Health check: database unreachable")
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["database"] = "error"
		} else {
			body["database"] = "connected"
		}
	}
	if s.deps.Searcher != nil {
		body["discord"] = s.deps.Searcher.Ready()
		body["pendingSearches"] = s.deps.Searcher.Pending()
	}

	c.JSON(status, body)
}
