package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/doguser/NickWatchBot/errorhandler"
	"github.com/doguser/NickWatchBot/logger"
	"github.com/doguser/NickWatchBot/models"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// MessageSender is the part of *discordgo.Session the dispatcher needs.
type MessageSender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type SubscriberSource interface {
	Subscribers(ctx context.Context, category models.Category, platform models.Platform) []models.ChannelConfig
}

type BroadcastReport struct {
	Matched int
	Sent    []string
	Failed  map[string]error

	mu sync.Mutex
}

func (r *BroadcastReport) record(channelID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.Failed[channelID] = err
		return
	}
	r.Sent = append(r.Sent, channelID)
}

type DispatcherOptions struct {
	SendTimeout time.Duration
	Concurrency int
	// Rate is sends per second across all channels; zero disables pacing.
	Rate   float64
	Footer string
}

// Dispatcher fans a discovered username out to every subscribed channel.
type Dispatcher struct {
	sender  func() MessageSender
	subs    SubscriberSource
	opts    DispatcherOptions
	limiter *rate.Limiter
}

// NewDispatcher takes a sender getter so the session can connect after wiring.
func NewDispatcher(sender func() MessageSender, subs SubscriberSource, opts DispatcherOptions) *Dispatcher {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 15 * time.Second
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.Rate), opts.Concurrency)
	}

	return &Dispatcher{
		sender:  sender,
		subs:    subs,
		opts:    opts,
		limiter: limiter,
	}
}

// Broadcast sends rec to every active channel routed to exactly its
// (category, platform). Failures are collected per channel and never stop
// the remaining sends.
func (d *Dispatcher) Broadcast(ctx context.Context, rec models.UsernameRecord) *BroadcastReport {
	targets := d.subs.Subscribers(ctx, rec.Category, rec.Platform)
	report := &BroadcastReport{Matched: len(targets), Failed: map[string]error{}}
	if len(targets) == 0 {
		return report
	}

	sender := d.sender()
	if sender == nil {
		for _, t := range targets {
			report.record(t.ChannelID, errorhandler.NewNotReadyError(errors.New("discord session not connected"), "broadcast"))
		}
		broadcastSends.WithLabelValues("not_ready").Add(float64(len(targets)))
		logger.Log.WithField("username", rec.Name).Warn("Broadcast skipped, no Discord session")
		return report
	}

	var g errgroup.Group
	g.SetLimit(d.opts.Concurrency)

	for _, target := range targets {
		channelID := target.ChannelID
		g.Go(func() error {
			// discordgo fills in embed fields while sending, so each send owns its message.
			msg := &discordgo.MessageSend{
				Embeds: []*discordgo.MessageEmbed{CreateUsernameEmbed(rec, d.opts.Footer)},
			}
			report.record(channelID, d.send(ctx, sender, channelID, msg))
			return nil
		})
	}
	_ = g.Wait()

	broadcastSends.WithLabelValues("sent").Add(float64(len(report.Sent)))
	broadcastSends.WithLabelValues("failed").Add(float64(len(report.Failed)))
	for channelID, err := range report.Failed {
		logger.Log.WithError(err).WithField("channel", channelID).WithField("username", rec.Name).Warn("Broadcast send failed")
	}
	logger.Log.Infof("Broadcast %s to %d/%d channels", rec.Name, len(report.Sent), report.Matched)
	return report
}

func (d *Dispatcher) send(ctx context.Context, sender MessageSender, channelID string, msg *discordgo.MessageSend) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return errorhandler.NewSendError(err, channelID)
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.opts.SendTimeout)
	defer cancel()

	if _, err := sender.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(sendCtx)); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return errorhandler.NewTimeoutError(err, "broadcast send to "+channelID)
		}
		return errorhandler.NewSendError(err, channelID)
	}
	return nil
}
