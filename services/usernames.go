package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/doguser/NickWatchBot/errorhandler"
	"github.com/doguser/NickWatchBot/logger"
	"github.com/doguser/NickWatchBot/models"
	"github.com/doguser/NickWatchBot/registry"
	"github.com/doguser/NickWatchBot/utils"

	"github.com/sirupsen/logrus"
)

type UsernameStore interface {
	UpsertUsername(ctx context.Context, rec models.UsernameRecord) (*models.UsernameRecord, error)
}

type RouteResolver interface {
	Resolve(ctx context.Context, channelID string) registry.Route
}

type Broadcaster interface {
	Broadcast(ctx context.Context, rec models.UsernameRecord) *BroadcastReport
}

// CandidateSource selects the character policy applied to a candidate.
type CandidateSource int

const (
	SourceContent CandidateSource = iota // plain message text, announcements
	SourceEmbed                          // embed descriptions and field values
)

var (
	namePatternWithPeriod = regexp.MustCompile(`^[a-zA-Z0-9_.]{2,32}$`)
	namePatternStrict     = regexp.MustCompile(`^[a-zA-Z0-9_]{2,32}$`)
)

type UsernamePolicy struct {
	AllowPeriod      bool
	EmbedAllowPeriod bool
}

func (p UsernamePolicy) pattern(src CandidateSource) *regexp.Regexp {
	allow := p.AllowPeriod
	if src == SourceEmbed {
		allow = p.EmbedAllowPeriod
	}
	if allow {
		return namePatternWithPeriod
	}
	return namePatternStrict
}

// Normalize cleans and lower-cases a candidate, or fails with a validation error.
func (p UsernamePolicy) Normalize(candidate string, src CandidateSource) (string, error) {
	name := utils.CleanCandidate(candidate)
	if len(name) < 2 || len(name) > 32 {
		return "", errorhandler.NewValidationError(fmt.Errorf("username %q must be 2 to 32 characters", name), "username")
	}
	if !p.pattern(src).MatchString(name) {
		return "", errorhandler.NewValidationError(fmt.Errorf("username %q has invalid characters", name), "username")
	}
	return strings.ToLower(name), nil
}

type UpsertRequest struct {
	Candidate     string
	ChannelID     string
	Status        models.UsernameStatus
	AvailableDate *time.Time
	// CategoryOverride wins over the channel's registered category when it
	// names a valid category; anything else is ignored.
	CategoryOverride string
	Source           CandidateSource
}

// EffectResult reports the outcome of the side effects of one upsert.
type EffectResult struct {
	Username  string
	Broadcast *BroadcastReport
	NotifyErr error
}

type UpserterOptions struct {
	Policy        UsernamePolicy
	EffectTimeout time.Duration
	// OnEffect receives every EffectResult; nil logs it.
	OnEffect func(EffectResult)
}

// Upserter persists discovered usernames and fires the broadcast and notify
// effects. Effect failures never reach the caller.
type Upserter struct {
	store       UsernameStore
	resolver    RouteResolver
	broadcaster Broadcaster
	notifier    Notifier
	opts        UpserterOptions
	effects     sync.WaitGroup
}

func NewUpserter(store UsernameStore, resolver RouteResolver, broadcaster Broadcaster, notifier Notifier, opts UpserterOptions) *Upserter {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if opts.EffectTimeout <= 0 {
		opts.EffectTimeout = 2 * time.Minute
	}
	if opts.OnEffect == nil {
		opts.OnEffect = logEffect
	}
	return &Upserter{
		store:       store,
		resolver:    resolver,
		broadcaster: broadcaster,
		notifier:    notifier,
		opts:        opts,
	}
}

func (u *Upserter) Policy() UsernamePolicy {
	return u.opts.Policy
}

func (u *Upserter) Upsert(ctx context.Context, req UpsertRequest) (*models.UsernameRecord, error) {
	name, err := u.opts.Policy.Normalize(req.Candidate, req.Source)
	if err != nil {
		return nil, err
	}

	route := u.resolver.Resolve(ctx, req.ChannelID)
	category := route.Category
	if req.CategoryOverride != "" {
		if override, ok := models.ParseCategory(req.CategoryOverride); ok {
			category = override
		} else {
			logger.Log.WithField("override", req.CategoryOverride).Warn("Ignoring invalid category override")
		}
	}

	status := req.Status
	if status == "" {
		status = models.StatusAvailable
	}
	availableDate := req.AvailableDate
	if status != models.StatusPending {
		availableDate = nil
	}

	saved, err := u.store.UpsertUsername(ctx, models.UsernameRecord{
		Name:          name,
		Platform:      route.Platform,
		Category:      category,
		Status:        status,
		FoundAt:       time.Now(),
		AvailableDate: availableDate,
	})
	if err != nil {
		return nil, err
	}

	usernamesSaved.WithLabelValues(string(saved.Category), string(saved.Platform), string(saved.Status)).Inc()
	logger.Log.WithFields(logrus.Fields{
		"username": saved.Name,
		"category": saved.Category,
		"platform": saved.Platform,
		"status":   saved.Status,
		"route":    route.Source,
	}).Info("Username saved")

	u.runEffects(ctx, *saved)
	return saved, nil
}

func (u *Upserter) runEffects(ctx context.Context, rec models.UsernameRecord) {
	u.effects.Add(1)
	go func() {
		defer u.effects.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Log.Errorf("Recovered from panic in username effects: %v", r)
			}
		}()

		effectCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.opts.EffectTimeout)
		defer cancel()

		result := EffectResult{Username: rec.Name}
		if u.broadcaster != nil {
			result.Broadcast = u.broadcaster.Broadcast(effectCtx, rec)
		}
		result.NotifyErr = u.notifier.NotifyNewData(effectCtx)
		if result.NotifyErr != nil {
			notifyFailures.Inc()
		}
		u.opts.OnEffect(result)
	}()
}

// Wait blocks until every pending effect has finished.
func (u *Upserter) Wait() {
	u.effects.Wait()
}

func logEffect(r EffectResult) {
	entry := logger.Log.WithField("username", r.Username)
	if r.Broadcast != nil {
		entry = entry.WithFields(logrus.Fields{
			"matched": r.Broadcast.Matched,
			"sent":    len(r.Broadcast.Sent),
			"failed":  len(r.Broadcast.Failed),
		})
	}
	if r.NotifyErr != nil {
		entry.WithError(r.NotifyErr).Warn("Notification sink failed")
		return
	}
	entry.Debug("Username effects completed")
}
