package lookup

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/doguser/NickWatchBot/errorhandler"
	"github.com/doguser/NickWatchBot/logger"
	"github.com/doguser/NickWatchBot/models"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"
)

// CommandSender is the part of *discordgo.Session used to issue lookups.
type CommandSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type Options struct {
	ChannelID string
	ServerID  string
	BotName   string
	Command   string
	Timeout   time.Duration
	// Serialize allows one in-flight search per lookup channel, so replies
	// cannot cross-resolve concurrent searches.
	Serialize bool
	// Placeholders mark the lookup bot's "please wait" replies.
	Placeholders []string
}

type SearchRequest struct {
	Query     string
	Option    string
	ChannelID string
	ServerID  string
}

type outcome struct {
	profile *models.ProfileRecord
	err     error
}

type pendingSearch struct {
	id        string
	query     string
	option    string
	channelID string
	startedAt time.Time
	seq       uint64
	timer     *time.Timer
	done      chan outcome
}

// Correlator sends lookup commands and matches the lookup bot's replies to
// waiting searches. The bot does not echo any request id, so the oldest
// pending search in the reply's channel claims the reply.
type Correlator struct {
	opts   Options
	sender func() CommandSender
	ready  atomic.Bool

	mu      sync.Mutex
	pending map[string]*pendingSearch
	seq     uint64
	queues  map[string]chan struct{}

	now func() time.Time
}

func NewCorrelator(sender func() CommandSender, opts Options) *Correlator {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Command == "" {
		opts.Command = "zui"
	}
	if opts.BotName == "" {
		opts.BotName = "Zany"
	}
	if opts.Placeholders == nil {
		opts.Placeholders = []string{"Buscando informações", "aguarde"}
	}
	return &Correlator{
		opts:    opts,
		sender:  sender,
		pending: make(map[string]*pendingSearch),
		queues:  make(map[string]chan struct{}),
		now:     time.Now,
	}
}

func (c *Correlator) SetReady(ready bool) {
	c.ready.Store(ready)
}

func (c *Correlator) Ready() bool {
	return c.ready.Load()
}

// Pending reports how many searches are awaiting a reply.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Search sends the lookup command and blocks until the reply is parsed, the
// correlation window expires or ctx is cancelled.
func (c *Correlator) Search(ctx context.Context, req SearchRequest) (*models.ProfileRecord, error) {
	started := time.Now()
	profile, err := c.search(ctx, req)
	observeSearch(started, err)
	return profile, err
}

func (c *Correlator) search(ctx context.Context, req SearchRequest) (*models.ProfileRecord, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, errorhandler.NewValidationError(errors.New("query (ID or username) is required"), "query")
	}

	if !c.Ready() {
		return nil, errorhandler.NewNotReadyError(errors.New("lookup session not ready"), "search")
	}
	sender := c.sender()
	if sender == nil {
		return nil, errorhandler.NewNotReadyError(errors.New("lookup session missing"), "search")
	}

	channelID, serverID := req.ChannelID, req.ServerID
	if channelID == "" {
		channelID = c.opts.ChannelID
	}
	if serverID == "" {
		serverID = c.opts.ServerID
	}

	if c.opts.Serialize {
		release, err := c.acquire(ctx, channelID)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	p := c.register(query, req.Option, channelID)
	log := logger.Log.WithFields(logrus.Fields{"search": p.id, "channel": channelID, "server": serverID, "option": req.Option})

	command := fmt.Sprintf("%s %s", c.opts.Command, query)
	if _, err := sender.ChannelMessageSend(channelID, command, discordgo.WithContext(ctx)); err != nil {
		c.cancel(p)
		log.WithError(err).Warn("Failed to send lookup command")
		return nil, classifySendError(err, channelID)
	}
	log.Info("Lookup command sent")

	select {
	case o := <-p.done:
		return o.profile, o.err
	case <-ctx.Done():
		if c.cancel(p) {
			return nil, errorhandler.NewTimeoutError(ctx.Err(), "search "+p.id)
		}
		o := <-p.done
		return o.profile, o.err
	}
}

func (c *Correlator) register(query, option, channelID string) *pendingSearch {
	c.mu.Lock()
	defer c.mu.Unlock()

	startedAt := c.now()
	id := fmt.Sprintf("%s-%d", query, startedAt.UnixMilli())
	for n := 2; c.pending[id] != nil; n++ {
		id = fmt.Sprintf("%s-%d-%d", query, startedAt.UnixMilli(), n)
	}

	c.seq++
	p := &pendingSearch{
		id:        id,
		query:     query,
		option:    option,
		channelID: channelID,
		startedAt: startedAt,
		seq:       c.seq,
		done:      make(chan outcome, 1),
	}
	p.timer = time.AfterFunc(c.opts.Timeout, func() {
		if c.remove(p.id) {
			logger.Log.WithField("search", p.id).Warn("Lookup timed out")
			p.done <- outcome{err: errorhandler.NewTimeoutError(errors.New("timeout waiting for bot response"), "search "+p.id)}
		}
	})
	c.pending[id] = p
	return p
}

// remove deletes the search and reports whether this call did so. Whoever
// removes the entry owns its resolution.
func (c *Correlator) remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[id]; !ok {
		return false
	}
	delete(c.pending, id)
	return true
}

func (c *Correlator) cancel(p *pendingSearch) bool {
	if !c.remove(p.id) {
		return false
	}
	p.timer.Stop()
	return true
}

// HandleReply offers a message (create or edit) to the waiting searches and
// reports whether one claimed it.
func (c *Correlator) HandleReply(msg *discordgo.Message) bool {
	if !c.eligible(msg) {
		return false
	}

	c.mu.Lock()
	var oldest *pendingSearch
	now := c.now()
	for _, p := range c.pending {
		if p.channelID != msg.ChannelID || now.Sub(p.startedAt) >= c.opts.Timeout {
			continue
		}
		if oldest == nil || p.seq < oldest.seq {
			oldest = p
		}
	}
	if oldest != nil {
		delete(c.pending, oldest.id)
	}
	c.mu.Unlock()

	if oldest == nil {
		logger.Log.WithField("channel", msg.ChannelID).Debug("Lookup reply with no pending search, dropped")
		return false
	}

	oldest.timer.Stop()
	profile := ParseReply(msg.Embeds, msg.Content)
	oldest.done <- outcome{profile: profile}
	logger.Log.WithFields(logrus.Fields{"search": oldest.id, "user_id": profile.UserID}).Info("Lookup resolved")
	return true
}

func (c *Correlator) eligible(msg *discordgo.Message) bool {
	if msg == nil || msg.Author == nil || !msg.Author.Bot {
		return false
	}
	if msg.Author.Username != c.opts.BotName {
		return false
	}
	for _, placeholder := range c.opts.Placeholders {
		if strings.Contains(msg.Content, placeholder) {
			return false
		}
	}
	return true
}

func (c *Correlator) acquire(ctx context.Context, channelID string) (func(), error) {
	c.mu.Lock()
	q, ok := c.queues[channelID]
	if !ok {
		q = make(chan struct{}, 1)
		c.queues[channelID] = q
	}
	c.mu.Unlock()

	select {
	case q <- struct{}{}:
		return func() { <-q }, nil
	case <-ctx.Done():
		return nil, errorhandler.NewTimeoutError(ctx.Err(), "waiting for lookup queue")
	}
}

func classifySendError(err error, channelID string) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound {
		return errorhandler.NewNotFoundError(err, "channel")
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errorhandler.NewTimeoutError(err, "sending lookup to "+channelID)
	}
	return errorhandler.NewDiscordError(err, "sending lookup to "+channelID)
}
