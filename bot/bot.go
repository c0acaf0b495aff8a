package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/doguser/NickWatchBot/command"
	"github.com/doguser/NickWatchBot/errorhandler"
	"github.com/doguser/NickWatchBot/logger"
	"github.com/doguser/NickWatchBot/lookup"
	"github.com/doguser/NickWatchBot/services"

	"github.com/bwmarrin/discordgo"
	"github.com/patrickmn/go-cache"
)

const (
	maxQueueSize  = 1000
	maxWorkers    = 16
	workerTimeout = 30 * time.Second
)

type Options struct {
	// Token drives the monitor session and is used exactly as configured.
	Token string
	// BotToken, when set, opens a second session for commands and broadcasts.
	BotToken    string
	DeveloperID string
}

type job struct {
	name string
	run  func(ctx context.Context)
}

// Bot owns the Discord sessions and routes their events to the monitor,
// the lookup correlator and the command handlers.
type Bot struct {
	opts       Options
	monitor    *discordgo.Session
	commands   *discordgo.Session // same as monitor when no BotToken is set
	watcher    *services.Monitor
	correlator *lookup.Correlator

	queue   chan job
	workers sync.WaitGroup

	// recentAlerts suppresses repeats of the same admin DM.
	recentAlerts *cache.Cache

	mu        sync.RWMutex
	running   bool // sessions open
	accepting bool // queue open
}

func New(opts Options, watcher *services.Monitor, correlator *lookup.Correlator) (*Bot, error) {
	if opts.Token == "" {
		return nil, errors.New("DISCORD_TOKEN environment variable not set")
	}

	monitor, err := discordgo.New(opts.Token)
	if err != nil {
		return nil, fmt.Errorf("error creating monitor session: %w", err)
	}
	monitor.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentMessageContent

	b := &Bot{
		opts:       opts,
		monitor:    monitor,
		commands:   monitor,
		watcher:    watcher,
		correlator: correlator,
		queue:      make(chan job, maxQueueSize),

		recentAlerts: cache.New(5*time.Minute, 10*time.Minute),
	}

	if opts.BotToken != "" {
		token := opts.BotToken
		if !strings.HasPrefix(token, "Bot ") {
			token = "Bot " + token
		}
		cmd, err := discordgo.New(token)
		if err != nil {
			return nil, fmt.Errorf("error creating bot session: %w", err)
		}
		cmd.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentMessageContent
		b.commands = cmd
	}

	return b, nil
}

func (b *Bot) Start() error {
	for i := 0; i < maxWorkers; i++ {
		b.workers.Add(1)
		go b.worker()
	}

	b.monitor.AddHandler(b.onMonitorReady)
	b.monitor.AddHandler(b.onDisconnect)
	b.monitor.AddHandler(b.onResumed)
	b.monitor.AddHandler(b.onMonitorMessage)
	b.monitor.AddHandler(b.onMonitorMessageUpdate)

	b.commands.AddHandler(b.onInteraction)
	b.commands.AddHandler(b.onCommandMessage)

	if err := b.monitor.Open(); err != nil {
		return fmt.Errorf("error opening monitor connection: %w", err)
	}

	if b.commands != b.monitor {
		if err := b.commands.Open(); err != nil {
			b.monitor.Close()
			return fmt.Errorf("error opening bot connection: %w", err)
		}
	}

	if err := b.commands.UpdateWatchStatus(0, "usernames disponíveis"); err != nil {
		logger.Log.WithError(err).Error("Error setting presence")
	}

	command.RegisterCommands(b.commands)

	if b.opts.DeveloperID != "" {
		errorhandler.SetAdminNotifier(b.notifyDeveloper)
	}

	b.mu.Lock()
	b.running = true
	b.accepting = true
	b.mu.Unlock()
	return nil
}

// Close stops taking events, drains the queue, runs flush while the
// sessions can still send, then disconnects.
func (b *Bot) Close(flush func()) {
	b.mu.Lock()
	wasAccepting := b.accepting
	b.accepting = false
	b.mu.Unlock()

	if wasAccepting {
		close(b.queue)
		b.workers.Wait()
	}
	if flush != nil {
		flush()
	}

	b.mu.Lock()
	b.running = false
	b.mu.Unlock()

	b.correlator.SetReady(false)
	errorhandler.SetAdminNotifier(nil)

	if b.commands != b.monitor {
		if err := b.commands.Close(); err != nil {
			logger.Log.WithError(err).Error("Error closing bot session")
		}
	}
	if err := b.monitor.Close(); err != nil {
		logger.Log.WithError(err).Error("Error closing monitor session")
	}
}

// Sender returns the session used for broadcasts, or nil while offline.
func (b *Bot) Sender() services.MessageSender {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.running {
		return nil
	}
	return b.commands
}

// CommandSender returns the session that issues lookup commands.
func (b *Bot) CommandSender() lookup.CommandSender {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.running {
		return nil
	}
	return b.monitor
}

func (b *Bot) enqueue(j job) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.accepting {
		logger.Log.Debugf("Dropping %s, bot is not running", j.name)
		return
	}

	select {
	case b.queue <- j:
		logger.Log.Debugf("Event queued: %s", j.name)
	default:
		logger.Log.Warnf("Event queue is full, dropping %s", j.name)
	}
}

func (b *Bot) worker() {
	defer b.workers.Done()
	for j := range b.queue {
		b.process(j)
	}
}

func (b *Bot) process(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), workerTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				logger.Log.Errorf("Panic recovered in %s: %v", j.name, r)
			}
		}()
		j.run(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Log.Warnf("Event processing timed out: %s", j.name)
	case <-done:
	}
}

func (b *Bot) onMonitorReady(s *discordgo.Session, r *discordgo.Ready) {
	logger.Log.Infof("Monitor session logged in as %s", r.User.String())
	b.correlator.SetReady(true)
}

func (b *Bot) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	logger.Log.Warn("Monitor session disconnected")
	b.correlator.SetReady(false)
}

func (b *Bot) onResumed(_ *discordgo.Session, _ *discordgo.Resumed) {
	logger.Log.Info("Monitor session resumed")
	b.correlator.SetReady(true)
}

func (b *Bot) onMonitorMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if b.correlator.HandleReply(m.Message) {
		return
	}

	if !b.watcher.Watches(m.ChannelID) {
		return
	}

	selfID := ""
	if s.State != nil && s.State.User != nil {
		selfID = s.State.User.ID
	}
	msg := m.Message
	b.enqueue(job{name: "announcement " + msg.ID, run: func(ctx context.Context) {
		if _, err := b.watcher.HandleMessage(ctx, selfID, msg); err != nil {
			errorhandler.HandleError(err)
		}
	}})
}

// Lookup replies are often posted as a placeholder and then edited into the
// final embed. Partial updates carry no author, so fall back to the cached copy.
func (b *Bot) onMonitorMessageUpdate(_ *discordgo.Session, m *discordgo.MessageUpdate) {
	if m.Message == nil {
		return
	}
	msg := m.Message
	if msg.Author == nil && m.BeforeUpdate != nil {
		copied := *msg
		copied.Author = m.BeforeUpdate.Author
		msg = &copied
	}
	b.correlator.HandleReply(msg)
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	b.enqueue(job{name: "command " + i.ApplicationCommandData().Name, run: func(context.Context) {
		command.HandleCommand(s, i)
	}})
}

func (b *Bot) onCommandMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}
	if _, _, ok := command.ParseTextCommand(m.Content); !ok {
		return
	}
	b.enqueue(job{name: "text command " + m.ID, run: func(context.Context) {
		command.HandleTextCommand(s, m)
	}})
}

func (b *Bot) notifyDeveloper(message string) {
	if _, found := b.recentAlerts.Get(message); found {
		logger.Log.Debug("Suppressing repeated admin notification")
		return
	}
	b.recentAlerts.Set(message, struct{}{}, cache.DefaultExpiration)

	go func() {
		channel, err := b.commands.UserChannelCreate(b.opts.DeveloperID)
		if err != nil {
			logger.Log.WithError(err).Error("Error creating DM channel for developer")
			return
		}
		if len(message) > 1900 {
			message = message[:1900] + "…"
		}
		if _, err := b.commands.ChannelMessageSend(channel.ID, message); err != nil {
			logger.Log.WithError(err).Error("Error sending admin notification")
		}
	}()
}
