package setchannel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/doguser/NickWatchBot/errorhandler"
	"github.com/doguser/NickWatchBot/logger"
	"github.com/doguser/NickWatchBot/models"
	"github.com/doguser/NickWatchBot/utils"

	"github.com/bwmarrin/discordgo"
)

const (
	Name  = "setar"
	Usage = "❌ Uso correto: /setar <categoria> <plataforma>\nExemplo: /setar 4c discord"
)

type Registry interface {
	Upsert(ctx context.Context, cfg models.ChannelConfig) (*models.ChannelConfig, error)
}

func Definition() *discordgo.ApplicationCommand {
	perms := int64(discordgo.PermissionManageChannels)

	categoryChoices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(models.Categories))
	for _, c := range models.Categories {
		categoryChoices = append(categoryChoices, &discordgo.ApplicationCommandOptionChoice{Name: string(c), Value: string(c)})
	}
	platformChoices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(models.Platforms))
	for _, p := range models.Platforms {
		platformChoices = append(platformChoices, &discordgo.ApplicationCommandOptionChoice{Name: strings.ToLower(string(p)), Value: string(p)})
	}

	return &discordgo.ApplicationCommand{
		Name:                     Name,
		Description:              "Configura este canal para receber usernames de uma categoria e plataforma",
		DefaultMemberPermissions: &perms,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "categoria",
				Description: "Categoria dos usernames",
				Required:    true,
				Choices:     categoryChoices,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "plataforma",
				Description: "Plataforma dos usernames",
				Required:    true,
				Choices:     platformChoices,
			},
		},
	}
}

// Execute saves the route for channelID and returns the reply text. Bad
// arguments produce a usage hint, not an error.
func Execute(ctx context.Context, reg Registry, channelID, guildID string, args []string) (string, error) {
	if len(args) < 2 {
		return Usage, nil
	}

	category, ok := models.ParseCategory(utils.SanitizeInput(args[0]))
	if !ok {
		return "❌ Categoria inválida! Use: 4c, 3c, 2c, en, pt ou random", nil
	}
	platform, ok := models.ParsePlatform(utils.SanitizeInput(args[1]))
	if !ok {
		return "❌ Plataforma inválida! Use: discord, minecraft, roblox, instagram, github, twitter, tiktok", nil
	}

	saved, err := reg.Upsert(ctx, models.ChannelConfig{
		ChannelID: channelID,
		ServerID:  guildID,
		Category:  category,
		Platform:  platform,
		IsActive:  true,
	})
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("✅ Canal configurado!\n📁 Categoria: %s\n🔗 Plataforma: %s\n\nEste canal receberá os usernames automaticamente.",
		saved.Category, saved.Platform), nil
}

func CommandSetChannel(reg Registry) func(*discordgo.Session, *discordgo.InteractionCreate) {
	return func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		var args []string
		for _, opt := range i.ApplicationCommandData().Options {
			args = append(args, opt.StringValue())
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		reply, err := Execute(ctx, reg, i.ChannelID, i.GuildID, args)
		if err != nil {
			msg, _ := errorhandler.HandleError(err)
			utils.RespondToInteraction(s, i, msg, true)
			return
		}
		utils.RespondToInteraction(s, i, reply, false)
	}
}

func TextCommand(reg Registry) func(*discordgo.Session, *discordgo.MessageCreate, []string) {
	return func(s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
		if !utils.CanManageChannel(s, m.Author.ID, m.ChannelID) {
			utils.ReplyToMessage(s, m.Message, "❌ Você precisa da permissão Gerenciar Canais.", nil)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		reply, err := Execute(ctx, reg, m.ChannelID, m.GuildID, args)
		if err != nil {
			logger.Log.WithError(err).WithField("channel", m.ChannelID).Error("Failed to save channel route")
			msg, _ := errorhandler.HandleError(err)
			reply = msg
		}
		utils.ReplyToMessage(s, m.Message, reply, nil)
	}
}
