package configuration

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/doguser/NickWatchBot/logger"
	"github.com/doguser/NickWatchBot/models"

	"github.com/spf13/viper"
)

type Config struct {
	// Environment
	Environment string
	LogDir      string
	LogLevel    string

	// Database Settings
	Database struct {
		Driver   string
		DSN      string
		Path     string
		User     string
		Password string
		Name     string
		Host     string
		Port     string
		Var      string
	}

	// Discord Settings
	Discord struct {
		Token       string // Monitor account token, used as-is.
		BotToken    string // Broadcast bot token, "Bot " is prepended.
		DeveloperID string
	}

	HTTP struct {
		Addr        string
		AdminAPIKey string
		RateLimit   float64
		RateBurst   int
	}

	Registry struct {
		TTL             time.Duration
		DefaultPlatform models.Platform
		Fallback        map[string]models.Category
	}

	Broadcast struct {
		SendTimeout time.Duration
		Concurrency int
		Rate        float64
		Footer      string
	}

	Search struct {
		ChannelID string
		ServerID  string
		BotName   string
		Command   string
		Timeout   time.Duration
		Serialize bool
	}

	Monitor struct {
		SourceChannels []string
	}

	Usernames struct {
		AllowPeriod      bool
		EmbedAllowPeriod bool
	}

	Ingest struct {
		Mode    string // local or forward
		SiteURL string
	}

	Notify struct {
		URL          string
		RedisDSN     string
		RedisChannel string
	}
}

// Channel ids of the six historical source channels and their categories.
var defaultFallback = map[string]string{
	"1420065854401413231": string(models.CategoryChars4),
	"1420065865029652652": string(models.CategoryChars3),
	"1420065875880316968": string(models.CategoryChars2),
	"1420065886928244756": string(models.CategoryPTBR),
	"1420065898370175038": string(models.CategoryENUS),
	"1420065909611036863": string(models.CategoryRandom),
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log.dir", "logs")
	v.SetDefault("log.level", "info")

	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.path", "nickwatch.db")

	v.SetDefault("http.addr", ":3001")
	v.SetDefault("api.rate.limit", 5.0)
	v.SetDefault("api.rate.burst", 10)

	v.SetDefault("registry.ttl", 60*time.Second)
	v.SetDefault("default.platform", string(models.PlatformDiscord))
	v.SetDefault("channel.fallback", defaultFallback)

	v.SetDefault("broadcast.send.timeout", 15*time.Second)
	v.SetDefault("broadcast.concurrency", 4)
	v.SetDefault("broadcast.rate", 5.0)
	v.SetDefault("broadcast.footer", "DogUser")

	v.SetDefault("search.channel.id", "1474813731526545614")
	v.SetDefault("search.server.id", "1473338499439657074")
	v.SetDefault("search.bot.name", "Zany")
	v.SetDefault("search.command", "zui")
	v.SetDefault("search.timeout", 60*time.Second)
	v.SetDefault("search.serialize", false)

	v.SetDefault("username.allow.period", true)
	v.SetDefault("username.embed.allow.period", false)

	v.SetDefault("ingest.mode", "local")
	v.SetDefault("site.url", "http://localhost:3000")
	v.SetDefault("redis.channel", "nickwatch:new_username")
}

// Load reads defaults, an optional CONFIG_FILE and the environment, in that order.
func Load() (*Config, error) {
	logger.Log.Info("Loading configuration...")

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if file := v.GetString("config.file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", file, err)
		}
		logger.Log.WithField("file", file).Info("Configuration file loaded")
	}

	cfg, err := fromViper(v)
	if err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	logConfigurationValues(cfg)
	return cfg, nil
}

func fromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	cfg.Environment = v.GetString("environment")
	cfg.LogDir = v.GetString("log.dir")
	cfg.LogLevel = v.GetString("log.level")

	cfg.Database.Driver = strings.ToLower(v.GetString("db.driver"))
	cfg.Database.DSN = v.GetString("db.dsn")
	cfg.Database.Path = v.GetString("db.path")
	cfg.Database.User = v.GetString("db.user")
	cfg.Database.Password = v.GetString("db.password")
	cfg.Database.Name = v.GetString("db.name")
	cfg.Database.Host = v.GetString("db.host")
	cfg.Database.Port = v.GetString("db.port")
	cfg.Database.Var = v.GetString("db.var")

	cfg.Discord.Token = v.GetString("discord.token")
	cfg.Discord.BotToken = v.GetString("discord.bot.token")
	cfg.Discord.DeveloperID = v.GetString("developer.id")

	cfg.HTTP.Addr = v.GetString("http.addr")
	cfg.HTTP.AdminAPIKey = v.GetString("admin.api.key")
	cfg.HTTP.RateLimit = v.GetFloat64("api.rate.limit")
	cfg.HTTP.RateBurst = v.GetInt("api.rate.burst")

	cfg.Registry.TTL = v.GetDuration("registry.ttl")
	platform, ok := models.ParsePlatform(v.GetString("default.platform"))
	if !ok {
		return nil, fmt.Errorf("DEFAULT_PLATFORM %q is not a known platform", v.GetString("default.platform"))
	}
	cfg.Registry.DefaultPlatform = platform

	fallback, err := parseFallback(fallbackPairs(v))
	if err != nil {
		return nil, err
	}
	cfg.Registry.Fallback = fallback

	cfg.Broadcast.SendTimeout = v.GetDuration("broadcast.send.timeout")
	cfg.Broadcast.Concurrency = v.GetInt("broadcast.concurrency")
	cfg.Broadcast.Rate = v.GetFloat64("broadcast.rate")
	cfg.Broadcast.Footer = v.GetString("broadcast.footer")

	cfg.Search.ChannelID = v.GetString("search.channel.id")
	cfg.Search.ServerID = v.GetString("search.server.id")
	cfg.Search.BotName = v.GetString("search.bot.name")
	cfg.Search.Command = v.GetString("search.command")
	cfg.Search.Timeout = v.GetDuration("search.timeout")
	cfg.Search.Serialize = v.GetBool("search.serialize")

	cfg.Monitor.SourceChannels = splitList(v.GetString("monitor.source.channels"))
	if len(cfg.Monitor.SourceChannels) == 0 {
		for id := range cfg.Registry.Fallback {
			cfg.Monitor.SourceChannels = append(cfg.Monitor.SourceChannels, id)
		}
		sort.Strings(cfg.Monitor.SourceChannels)
	}

	cfg.Usernames.AllowPeriod = v.GetBool("username.allow.period")
	cfg.Usernames.EmbedAllowPeriod = v.GetBool("username.embed.allow.period")

	cfg.Ingest.Mode = strings.ToLower(v.GetString("ingest.mode"))
	cfg.Ingest.SiteURL = strings.TrimRight(v.GetString("site.url"), "/")

	cfg.Notify.URL = v.GetString("notify.url")
	cfg.Notify.RedisDSN = v.GetString("redis.dsn")
	cfg.Notify.RedisChannel = v.GetString("redis.channel")

	return &cfg, nil
}

// CHANNEL_FALLBACK arrives from the environment as "id=CATEGORY,id=CATEGORY";
// a config file may give it as a map instead.
func fallbackPairs(v *viper.Viper) map[string]string {
	raw, ok := v.Get("channel.fallback").(string)
	if !ok {
		return v.GetStringMapString("channel.fallback")
	}
	out := make(map[string]string)
	for _, pair := range splitList(raw) {
		id, cat, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		out[strings.TrimSpace(id)] = strings.TrimSpace(cat)
	}
	return out
}

func parseFallback(raw map[string]string) (map[string]models.Category, error) {
	out := make(map[string]models.Category, len(raw))
	for id, cat := range raw {
		category, ok := models.ParseCategory(cat)
		if !ok {
			return nil, fmt.Errorf("CHANNEL_FALLBACK: unknown category %q for channel %s", cat, id)
		}
		out[id] = category
	}
	return out, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) validate() error {
	var missingVars []string

	requiredVars := map[string]string{
		"DISCORD_TOKEN":     c.Discord.Token,
		"SEARCH_CHANNEL_ID": c.Search.ChannelID,
		"HTTP_ADDR":         c.HTTP.Addr,
	}

	switch c.Database.Driver {
	case "sqlite":
		requiredVars["DB_PATH"] = c.Database.Path
	case "postgres":
		requiredVars["DB_DSN"] = c.Database.DSN
	case "mysql":
		if c.Database.DSN == "" {
			requiredVars["DB_USER"] = c.Database.User
			requiredVars["DB_PASSWORD"] = c.Database.Password
			requiredVars["DB_HOST"] = c.Database.Host
			requiredVars["DB_PORT"] = c.Database.Port
			requiredVars["DB_NAME"] = c.Database.Name
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q (mysql, postgres or sqlite)", c.Database.Driver)
	}

	if c.Ingest.Mode == "forward" {
		requiredVars["SITE_URL"] = c.Ingest.SiteURL
	} else if c.Ingest.Mode != "local" {
		return fmt.Errorf("unsupported INGEST_MODE %q (local or forward)", c.Ingest.Mode)
	}

	for key, value := range requiredVars {
		if value == "" {
			missingVars = append(missingVars, key)
		}
	}

	if len(missingVars) > 0 {
		sort.Strings(missingVars)
		return fmt.Errorf("missing required environment variables: %v", missingVars)
	}

	if c.Search.Timeout <= 0 {
		return fmt.Errorf("SEARCH_TIMEOUT must be positive")
	}
	if c.Broadcast.SendTimeout <= 0 {
		return fmt.Errorf("BROADCAST_SEND_TIMEOUT must be positive")
	}
	if c.Broadcast.Concurrency < 1 {
		c.Broadcast.Concurrency = 1
	}

	return nil
}

func logConfigurationValues(c *Config) {
	logger.Log.Infof("Loaded configuration: DB_DRIVER=%s, HTTP_ADDR=%s, REGISTRY_TTL=%v, "+
		"BROADCAST_SEND_TIMEOUT=%v, BROADCAST_CONCURRENCY=%d, BROADCAST_RATE=%.2f, SEARCH_TIMEOUT=%v, "+
		"SEARCH_SERIALIZE=%v, INGEST_MODE=%s, USERNAME_ALLOW_PERIOD=%v, USERNAME_EMBED_ALLOW_PERIOD=%v",
		c.Database.Driver,
		c.HTTP.Addr,
		c.Registry.TTL,
		c.Broadcast.SendTimeout,
		c.Broadcast.Concurrency,
		c.Broadcast.Rate,
		c.Search.Timeout,
		c.Search.Serialize,
		c.Ingest.Mode,
		c.Usernames.AllowPeriod,
		c.Usernames.EmbedAllowPeriod)

	logger.Log.Infof("Monitoring %d source channels, %d fallback routes", len(c.Monitor.SourceChannels), len(c.Registry.Fallback))

	var sinks []string
	if c.Notify.URL != "" {
		sinks = append(sinks, "http")
	}
	if c.Notify.RedisDSN != "" {
		sinks = append(sinks, "redis")
	}
	if len(sinks) > 0 {
		logger.Log.Infof("Enabled notification sinks: %s", strings.Join(sinks, ", "))
	} else {
		logger.Log.Warn("No notification sinks are enabled")
	}

	if c.Discord.BotToken == "" {
		logger.Log.Warn("DISCORD_BOT_TOKEN not set, broadcasts use the monitor session")
	}
}
