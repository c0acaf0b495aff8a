package listchannels

import (
	"context"
	"testing"

	"github.com/doguser/NickWatchBot/models"
)

type fakeRegistry []models.ChannelConfig

func (f fakeRegistry) GetAll(context.Context, bool) []models.ChannelConfig { return f }

func TestExecute_FiltersByGuild(t *testing.T) {
	reg := fakeRegistry{
		{ChannelID: "a", ServerID: "g1"},
		{ChannelID: "b", ServerID: "g2"},
		{ChannelID: "c", ServerID: "g1"},
	}

	got := Execute(context.Background(), reg, "g1")
	if len(got) != 2 || got[0].ChannelID != "a" || got[1].ChannelID != "c" {
		t.Errorf("Execute = %+v", got)
	}
	if len(Execute(context.Background(), reg, "g3")) != 0 {
		t.Error("unknown guild should list nothing")
	}
}
