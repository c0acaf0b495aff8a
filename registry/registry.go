package registry

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/doguser/NickWatchBot/errorhandler"
	"github.com/doguser/NickWatchBot/logger"
	"github.com/doguser/NickWatchBot/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

type Store interface {
	ListChannels(ctx context.Context) ([]models.ChannelConfig, error)
	FindChannel(ctx context.Context, channelID string) (*models.ChannelConfig, error)
	UpsertChannel(ctx context.Context, cfg models.ChannelConfig) (*models.ChannelConfig, error)
	DeleteChannel(ctx context.Context, channelID string) (bool, error)
}

type Source string

const (
	SourceStore    Source = "store"
	SourceFallback Source = "fallback"
	SourceDefault  Source = "default"
)

// Route is where a discovery from a source channel belongs.
type Route struct {
	Category models.Category
	Platform models.Platform
	Source   Source
}

type Options struct {
	TTL             time.Duration
	Fallback        map[string]models.Category
	DefaultCategory models.Category
	DefaultPlatform models.Platform
}

// refreshTimeout bounds a shared refresh, which outlives any one caller.
const refreshTimeout = 10 * time.Second

type snapshot struct {
	rows      []models.ChannelConfig
	fetchedAt time.Time
	gen       uint64
}

// Registry resolves channel ids to routes and serves a TTL-bounded snapshot
// of all channel configs. Snapshots are replaced whole, never edited.
type Registry struct {
	store    Store
	opts     Options
	current  atomic.Pointer[snapshot]
	gen      atomic.Uint64
	refresh  singleflight.Group
	now      func() time.Time
	fallback map[string]models.Category
}

func New(store Store, opts Options) *Registry {
	if opts.TTL <= 0 {
		opts.TTL = 60 * time.Second
	}
	if opts.DefaultCategory == "" {
		opts.DefaultCategory = models.CategoryRandom
	}
	if opts.DefaultPlatform == "" {
		opts.DefaultPlatform = models.PlatformDiscord
	}

	fallback := make(map[string]models.Category, len(opts.Fallback))
	for id, cat := range opts.Fallback {
		fallback[id] = cat
	}

	return &Registry{
		store:    store,
		opts:     opts,
		now:      time.Now,
		fallback: fallback,
	}
}

// Resolve looks the channel up in the store, then the static fallback table,
// then returns the default route. It never fails.
func (r *Registry) Resolve(ctx context.Context, channelID string) Route {
	cfg, err := r.store.FindChannel(ctx, channelID)
	switch {
	case err == nil:
		if cfg.IsActive {
			return Route{Category: cfg.Category, Platform: cfg.Platform, Source: SourceStore}
		}
	case errorhandler.Is(err, errorhandler.NotFoundError):
	default:
		logger.Log.WithError(err).WithField("channel", channelID).Warn("Registry lookup failed, trying cached snapshot")
		if snap := r.current.Load(); snap != nil {
			for _, row := range snap.rows {
				if row.ChannelID == channelID && row.IsActive {
					return Route{Category: row.Category, Platform: row.Platform, Source: SourceStore}
				}
			}
		}
	}

	if cat, ok := r.fallback[channelID]; ok {
		return Route{Category: cat, Platform: r.opts.DefaultPlatform, Source: SourceFallback}
	}

	return Route{Category: r.opts.DefaultCategory, Platform: r.opts.DefaultPlatform, Source: SourceDefault}
}

// GetAll returns every channel config, active or not. A snapshot younger
// than the TTL is served from memory unless forceRefresh is set. When the
// store fails, the last good snapshot (possibly empty) is returned.
func (r *Registry) GetAll(ctx context.Context, forceRefresh bool) []models.ChannelConfig {
	snap := r.current.Load()
	if !forceRefresh && r.fresh(snap) {
		return snap.rows
	}

	v, err, _ := r.refresh.Do("all", func() (interface{}, error) {
		gen := r.gen.Load()
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		rows, err := r.store.ListChannels(fetchCtx)
		if err != nil {
			return nil, err
		}
		fresh := &snapshot{rows: rows, fetchedAt: r.now(), gen: gen}
		r.publish(fresh)
		logger.Log.Debugf("Registry snapshot refreshed with %d channels", len(rows))
		return fresh, nil
	})
	if err != nil {
		logger.Log.WithError(err).Error("Failed to refresh channel registry, serving last snapshot")
		if snap != nil {
			return snap.rows
		}
		return []models.ChannelConfig{}
	}
	return v.(*snapshot).rows
}

// fresh reports whether snap is younger than the TTL and was read after the
// last mutation.
func (r *Registry) fresh(snap *snapshot) bool {
	return snap != nil && snap.gen == r.gen.Load() && r.now().Sub(snap.fetchedAt) < r.opts.TTL
}

// publish stores snap unless a snapshot from a later generation is already
// in place.
func (r *Registry) publish(snap *snapshot) {
	for {
		cur := r.current.Load()
		if cur != nil && cur.gen > snap.gen {
			return
		}
		if r.current.CompareAndSwap(cur, snap) {
			return
		}
	}
}

// Subscribers returns the active configs routed to exactly (category, platform).
func (r *Registry) Subscribers(ctx context.Context, category models.Category, platform models.Platform) []models.ChannelConfig {
	var out []models.ChannelConfig
	for _, row := range r.GetAll(ctx, false) {
		if row.IsActive && row.Category == category && row.Platform == platform {
			out = append(out, row)
		}
	}
	return out
}

func (r *Registry) Upsert(ctx context.Context, cfg models.ChannelConfig) (*models.ChannelConfig, error) {
	saved, err := r.store.UpsertChannel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	r.Invalidate()
	logger.Log.WithFields(logrus.Fields{
		"channel":  saved.ChannelID,
		"category": saved.Category,
		"platform": saved.Platform,
	}).Info("Channel route saved")
	return saved, nil
}

func (r *Registry) Delete(ctx context.Context, channelID string) (bool, error) {
	deleted, err := r.store.DeleteChannel(ctx, channelID)
	if err != nil {
		return false, err
	}
	if deleted {
		r.Invalidate()
		logger.Log.WithField("channel", channelID).Info("Channel route removed")
	}
	return deleted, nil
}

// Invalidate marks the snapshot stale so the next GetAll reads the store.
// The rows stay available as the last good copy, and a refresh already in
// flight can no longer make them look fresh.
func (r *Registry) Invalidate() {
	r.gen.Add(1)
	r.refresh.Forget("all")
}
