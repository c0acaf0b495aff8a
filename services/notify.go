package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/doguser/NickWatchBot/errorhandler"
	"github.com/doguser/NickWatchBot/logger"

	"github.com/redis/go-redis/v9"
)

// Notifier tells UI subscribers that new username data is available.
type Notifier interface {
	NotifyNewData(ctx context.Context) error
}

type newDataEvent struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

func newUsernameEvent() newDataEvent {
	return newDataEvent{Type: "new_username", Timestamp: time.Now().UnixMilli()}
}

// HTTPNotifier posts the event to the dashboard's notify endpoint.
type HTTPNotifier struct {
	url    string
	client *http.Client
}

func NewHTTPNotifier(url string, client *http.Client) *HTTPNotifier {
	if client == nil {
		client = GetDefaultHTTPClient()
	}
	return &HTTPNotifier{url: url, client: client}
}

func (n *HTTPNotifier) NotifyNewData(ctx context.Context) error {
	return postJSON(ctx, n.client, n.url, newUsernameEvent(), nil)
}

// RedisNotifier publishes the event on a pub/sub channel.
type RedisNotifier struct {
	rdb     *redis.Client
	channel string
}

func NewRedisNotifier(dsn, channel string) (*RedisNotifier, error) {
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.ConnMaxIdleTime = 5 * time.Minute
	opts.ConnMaxLifetime = 30 * time.Minute

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, errorhandler.NewNetworkError(err, "redis ping")
	}

	return &RedisNotifier{rdb: rdb, channel: channel}, nil
}

func (n *RedisNotifier) NotifyNewData(ctx context.Context) error {
	payload, err := json.Marshal(newUsernameEvent())
	if err != nil {
		return err
	}
	return n.rdb.Publish(ctx, n.channel, payload).Err()
}

func (n *RedisNotifier) Close() error {
	return n.rdb.Close()
}

// MultiNotifier fans out to every sink; one failing sink does not stop the rest.
type MultiNotifier []Notifier

func (m MultiNotifier) NotifyNewData(ctx context.Context) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyNewData(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NopNotifier is used when no sink is configured.
type NopNotifier struct{}

func (NopNotifier) NotifyNewData(context.Context) error { return nil }

// BuildNotifier assembles the configured sinks. A Redis sink that cannot be
// reached at startup is skipped with a warning.
func BuildNotifier(notifyURL, redisDSN, redisChannel string) (Notifier, func()) {
	var sinks MultiNotifier
	var closers []func()

	if notifyURL != "" {
		sinks = append(sinks, NewHTTPNotifier(notifyURL, nil))
	}
	if redisDSN != "" {
		rn, err := NewRedisNotifier(redisDSN, redisChannel)
		if err != nil {
			logger.Log.WithError(err).Warn("Redis notification sink disabled")
		} else {
			sinks = append(sinks, rn)
			closers = append(closers, func() { rn.Close() })
		}
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if len(sinks) == 0 {
		return NopNotifier{}, closeAll
	}
	return sinks, closeAll
}
