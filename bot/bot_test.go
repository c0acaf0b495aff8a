package bot

import (
	"context"
	"testing"
	"time"

	"github.com/doguser/NickWatchBot/lookup"

	"github.com/bwmarrin/discordgo"
	"github.com/patrickmn/go-cache"
)

const lookupChannel = "1474813731526545614"

type nopSender struct{}

func (nopSender) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func newTestBot(queueSize int) *Bot {
	correlator := lookup.NewCorrelator(func() lookup.CommandSender { return nopSender{} }, lookup.Options{
		ChannelID: lookupChannel,
		Timeout:   2 * time.Second,
	})
	correlator.SetReady(true)
	return &Bot{
		correlator:   correlator,
		queue:        make(chan job, queueSize),
		accepting:    true,
		recentAlerts: cache.New(time.Minute, time.Minute),
	}
}

func TestProcess_RecoversPanic(t *testing.T) {
	b := newTestBot(1)

	finished := make(chan struct{})
	go func() {
		b.process(job{name: "boom", run: func(context.Context) { panic("boom") }})
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("process did not return after a panicking job")
	}
}

func TestEnqueue(t *testing.T) {
	b := newTestBot(1)

	b.enqueue(job{name: "first", run: func(context.Context) {}})
	b.enqueue(job{name: "overflow", run: func(context.Context) {}})
	if len(b.queue) != 1 {
		t.Fatalf("queue length = %d, want 1 (overflow dropped)", len(b.queue))
	}

	<-b.queue
	b.accepting = false
	b.enqueue(job{name: "late", run: func(context.Context) {}})
	if len(b.queue) != 0 {
		t.Errorf("job queued after shutdown began")
	}
}

func TestSender_NilWhileOffline(t *testing.T) {
	b := newTestBot(1)

	if b.Sender() != nil {
		t.Error("broadcast sender should be nil before sessions open")
	}
	if b.CommandSender() != nil {
		t.Error("lookup sender should be nil before sessions open")
	}
}

func TestMessageUpdate_UsesCachedAuthor(t *testing.T) {
	b := newTestBot(1)

	done := make(chan error, 1)
	go func() {
		_, err := b.correlator.Search(context.Background(), lookup.SearchRequest{Query: "someone"})
		done <- err
	}()

	deadline := time.Now().Add(time.Second)
	for b.correlator.Pending() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("search never registered")
		}
		time.Sleep(time.Millisecond)
	}

	edited := &discordgo.Message{
		ChannelID: lookupChannel,
		Embeds:    []*discordgo.MessageEmbed{{Author: &discordgo.MessageEmbedAuthor{Name: "someone"}}},
	}
	b.onMonitorMessageUpdate(nil, &discordgo.MessageUpdate{
		Message: edited,
		BeforeUpdate: &discordgo.Message{
			Author: &discordgo.User{Username: "Zany", Bot: true},
		},
	})

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("edited reply did not resolve the search")
	}
	if edited.Author != nil {
		t.Error("incoming event was mutated")
	}
}
