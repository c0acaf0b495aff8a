package lookup

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/doguser/NickWatchBot/errorhandler"
	"github.com/doguser/NickWatchBot/models"

	"github.com/bwmarrin/discordgo"
)

const lookupChannel = "1474813731526545614"

type fakeSender struct {
	mu       sync.Mutex
	commands []string
	err      error
}

func (f *fakeSender) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.commands = append(f.commands, content)
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func newTestCorrelator(sender *fakeSender, timeout time.Duration, serialize bool) *Correlator {
	c := NewCorrelator(func() CommandSender { return sender }, Options{
		ChannelID: lookupChannel,
		BotName:   "Zany",
		Command:   "zui",
		Timeout:   timeout,
		Serialize: serialize,
	})
	c.SetReady(true)
	return c
}

func zanyReply(userID string) *discordgo.Message {
	return &discordgo.Message{
		ChannelID: lookupChannel,
		Content:   "Resultado para " + userID,
		Author:    &discordgo.User{ID: "999", Username: "Zany", Bot: true},
		Embeds: []*discordgo.MessageEmbed{{
			Author: &discordgo.MessageEmbedAuthor{Name: "user-" + userID},
			Fields: []*discordgo.MessageEmbedField{{Name: "Nitro", Value: "Sim"}},
		}},
	}
}

type searchResult struct {
	profile *models.ProfileRecord
	err     error
}

func searchAsync(c *Correlator, query string) <-chan searchResult {
	out := make(chan searchResult, 1)
	go func() {
		p, err := c.Search(context.Background(), SearchRequest{Query: query})
		out <- searchResult{p, err}
	}()
	return out
}

func waitPending(t *testing.T, c *Correlator, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for c.Pending() != n {
		if time.Now().After(deadline) {
			t.Fatalf("pending = %d, want %d", c.Pending(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSearch_ResolvesWithReply(t *testing.T) {
	sender := &fakeSender{}
	c := newTestCorrelator(sender, time.Second, false)

	res := searchAsync(c, "123456789012345678")
	waitPending(t, c, 1)

	if !c.HandleReply(zanyReply("123456789012345678")) {
		t.Fatal("reply was not claimed")
	}

	r := <-res
	if r.err != nil {
		t.Fatalf("Search: %v", r.err)
	}
	if r.profile.UserID != "123456789012345678" || !r.profile.NitroActive {
		t.Errorf("profile = %+v", r.profile)
	}
	if c.Pending() != 0 {
		t.Errorf("pending after resolve = %d", c.Pending())
	}
	if len(sender.commands) != 1 || sender.commands[0] != "zui 123456789012345678" {
		t.Errorf("commands = %v", sender.commands)
	}
}

func TestSearch_TimeoutRemovesPending(t *testing.T) {
	c := newTestCorrelator(&fakeSender{}, 30*time.Millisecond, false)

	_, err := c.Search(context.Background(), SearchRequest{Query: "ghost"})
	if !errorhandler.Is(err, errorhandler.TimeoutError) {
		t.Fatalf("want timeout error, got %v", err)
	}
	if c.Pending() != 0 {
		t.Errorf("pending after timeout = %d, want 0", c.Pending())
	}

	if c.HandleReply(zanyReply("123456789012345678")) {
		t.Error("late reply was claimed by an expired search")
	}
}

func TestSearch_ContextCancelled(t *testing.T) {
	c := newTestCorrelator(&fakeSender{}, time.Minute, false)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Search(ctx, SearchRequest{Query: "ghost"})
	if !errorhandler.Is(err, errorhandler.TimeoutError) {
		t.Fatalf("want timeout error, got %v", err)
	}
	if c.Pending() != 0 {
		t.Errorf("pending after cancel = %d", c.Pending())
	}
}

func TestSearch_IgnoresIneligibleMessages(t *testing.T) {
	c := newTestCorrelator(&fakeSender{}, time.Second, false)
	res := searchAsync(c, "someone")
	waitPending(t, c, 1)

	placeholder := zanyReply("123456789012345678")
	placeholder.Content = "🔎 Buscando informações, aguarde..."

	human := zanyReply("123456789012345678")
	human.Author = &discordgo.User{ID: "1", Username: "Zany", Bot: false}

	impostor := zanyReply("123456789012345678")
	impostor.Author = &discordgo.User{ID: "2", Username: "OtherBot", Bot: true}

	otherChannel := zanyReply("123456789012345678")
	otherChannel.ChannelID = "elsewhere"

	for name, msg := range map[string]*discordgo.Message{
		"placeholder": placeholder, "human": human, "impostor": impostor, "other channel": otherChannel,
	} {
		if c.HandleReply(msg) {
			t.Errorf("%s message was claimed", name)
		}
	}
	if c.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", c.Pending())
	}

	c.HandleReply(zanyReply("123456789012345678"))
	if r := <-res; r.err != nil {
		t.Fatalf("Search: %v", r.err)
	}
}

func TestSearch_Validation(t *testing.T) {
	c := newTestCorrelator(&fakeSender{}, time.Second, false)
	if _, err := c.Search(context.Background(), SearchRequest{Query: "   "}); !errorhandler.Is(err, errorhandler.ValidationError) {
		t.Fatalf("want validation error, got %v", err)
	}
}

func TestSearch_NotReady(t *testing.T) {
	c := newTestCorrelator(&fakeSender{}, time.Second, false)
	c.SetReady(false)

	if _, err := c.Search(context.Background(), SearchRequest{Query: "x"}); !errorhandler.Is(err, errorhandler.NotReadyError) {
		t.Fatalf("want not ready error, got %v", err)
	}
	if c.Pending() != 0 {
		t.Errorf("pending = %d", c.Pending())
	}
}

func TestSearch_UnknownChannel(t *testing.T) {
	sender := &fakeSender{err: &discordgo.RESTError{
		Response: &http.Response{StatusCode: http.StatusNotFound},
		Message:  &discordgo.APIErrorMessage{Code: discordgo.ErrCodeUnknownChannel, Message: "Unknown Channel"},
	}}
	c := newTestCorrelator(sender, time.Second, false)

	_, err := c.Search(context.Background(), SearchRequest{Query: "x", ChannelID: "missing"})
	if !errorhandler.Is(err, errorhandler.NotFoundError) {
		t.Fatalf("want not found error, got %v", err)
	}
	if c.Pending() != 0 {
		t.Errorf("pending after failed send = %d", c.Pending())
	}
}

// Position-based matching: with two searches outstanding, the first reply
// goes to the oldest search even when it answers the newer one.
func TestSearch_ConcurrentSearchesCrossResolve(t *testing.T) {
	c := newTestCorrelator(&fakeSender{}, time.Second, false)

	first := searchAsync(c, "111111111111111111")
	waitPending(t, c, 1)
	second := searchAsync(c, "222222222222222222")
	waitPending(t, c, 2)

	c.HandleReply(zanyReply("222222222222222222"))
	c.HandleReply(zanyReply("111111111111111111"))

	r1, r2 := <-first, <-second
	if r1.err != nil || r2.err != nil {
		t.Fatalf("errors: %v, %v", r1.err, r2.err)
	}
	if r1.profile.UserID != "222222222222222222" || r2.profile.UserID != "111111111111111111" {
		t.Errorf("expected crossed results, got %s / %s", r1.profile.UserID, r2.profile.UserID)
	}
}

func TestSearch_SerializedSearchesDoNotCross(t *testing.T) {
	c := newTestCorrelator(&fakeSender{}, time.Second, true)

	first := searchAsync(c, "111111111111111111")
	waitPending(t, c, 1)
	second := searchAsync(c, "222222222222222222")

	// The second search queues behind the first instead of registering.
	time.Sleep(20 * time.Millisecond)
	if c.Pending() != 1 {
		t.Fatalf("pending = %d, want 1 while serialized", c.Pending())
	}

	c.HandleReply(zanyReply("111111111111111111"))
	r1 := <-first
	waitPending(t, c, 1)
	c.HandleReply(zanyReply("222222222222222222"))
	r2 := <-second

	if r1.err != nil || r2.err != nil {
		t.Fatalf("errors: %v, %v", r1.err, r2.err)
	}
	if r1.profile.UserID != "111111111111111111" || r2.profile.UserID != "222222222222222222" {
		t.Errorf("results crossed: %s / %s", r1.profile.UserID, r2.profile.UserID)
	}
}

func TestRegister_UniqueSearchIDs(t *testing.T) {
	c := newTestCorrelator(&fakeSender{}, time.Minute, false)
	fixed := time.UnixMilli(1700000000000)
	c.now = func() time.Time { return fixed }

	a := c.register("same", "", lookupChannel)
	b := c.register("same", "", lookupChannel)
	defer c.cancel(a)
	defer c.cancel(b)

	if a.id == b.id {
		t.Fatalf("duplicate search id %q", a.id)
	}
	if a.id != "same-1700000000000" {
		t.Errorf("search id = %q", a.id)
	}
}
