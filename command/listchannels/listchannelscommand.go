package listchannels

import (
	"context"
	"time"

	"github.com/doguser/NickWatchBot/models"
	"github.com/doguser/NickWatchBot/services"
	"github.com/doguser/NickWatchBot/utils"

	"github.com/bwmarrin/discordgo"
)

const Name = "listar"

type Registry interface {
	GetAll(ctx context.Context, forceRefresh bool) []models.ChannelConfig
}

func Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        Name,
		Description: "Lista os canais configurados neste servidor",
	}
}

// Execute returns the routes registered for guildID.
func Execute(ctx context.Context, reg Registry, guildID string) []models.ChannelConfig {
	var out []models.ChannelConfig
	for _, cfg := range reg.GetAll(ctx, true) {
		if cfg.ServerID == guildID {
			out = append(out, cfg)
		}
	}
	return out
}

func CommandListChannels(reg Registry) func(*discordgo.Session, *discordgo.InteractionCreate) {
	return func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		utils.RespondWithEmbed(s, i, services.CreateChannelListEmbed(Execute(ctx, reg, i.GuildID)), true)
	}
}

func TextCommand(reg Registry) func(*discordgo.Session, *discordgo.MessageCreate, []string) {
	return func(s *discordgo.Session, m *discordgo.MessageCreate, _ []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		utils.ReplyToMessage(s, m.Message, "", services.CreateChannelListEmbed(Execute(ctx, reg, m.GuildID)))
	}
}
