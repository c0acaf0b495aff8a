package removechannel

import (
	"context"
	"time"

	"github.com/doguser/NickWatchBot/errorhandler"
	"github.com/doguser/NickWatchBot/utils"

	"github.com/bwmarrin/discordgo"
)

const Name = "remover"

type Registry interface {
	Delete(ctx context.Context, channelID string) (bool, error)
}

func Definition() *discordgo.ApplicationCommand {
	perms := int64(discordgo.PermissionManageChannels)
	return &discordgo.ApplicationCommand{
		Name:                     Name,
		Description:              "Remove a configuração deste canal",
		DefaultMemberPermissions: &perms,
	}
}

// Execute removes only the invoking channel's route.
func Execute(ctx context.Context, reg Registry, channelID string) (string, error) {
	deleted, err := reg.Delete(ctx, channelID)
	if err != nil {
		return "", err
	}
	if !deleted {
		return "ℹ️ Este canal não estava configurado.", nil
	}
	return "✅ Canal removido! Ele não receberá mais usernames.", nil
}

func CommandRemoveChannel(reg Registry) func(*discordgo.Session, *discordgo.InteractionCreate) {
	return func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		reply, err := Execute(ctx, reg, i.ChannelID)
		if err != nil {
			msg, _ := errorhandler.HandleError(err)
			utils.RespondToInteraction(s, i, msg, true)
			return
		}
		utils.RespondToInteraction(s, i, reply, false)
	}
}

func TextCommand(reg Registry) func(*discordgo.Session, *discordgo.MessageCreate, []string) {
	return func(s *discordgo.Session, m *discordgo.MessageCreate, _ []string) {
		if !utils.CanManageChannel(s, m.Author.ID, m.ChannelID) {
			utils.ReplyToMessage(s, m.Message, "❌ Você precisa da permissão Gerenciar Canais.", nil)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		reply, err := Execute(ctx, reg, m.ChannelID)
		if err != nil {
			reply, _ = errorhandler.HandleError(err)
		}
		utils.ReplyToMessage(s, m.Message, reply, nil)
	}
}
