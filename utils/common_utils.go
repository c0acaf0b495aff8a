package utils

import (
	"github.com/doguser/NickWatchBot/logger"

	"github.com/bwmarrin/discordgo"
	"gorm.io/gorm"
)

func RespondToInteraction(s *discordgo.Session, i *discordgo.InteractionCreate, message string, ephemeral bool) {
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: message,
			Flags:   flags,
		},
	})
	if err != nil {
		logger.Log.WithError(err).Error("Error responding to interaction")
	}
}

func RespondWithEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) {
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  flags,
		},
	})
	if err != nil {
		logger.Log.WithError(err).Error("Error responding to interaction with embed")
	}
}

// ReplyToMessage answers a legacy text command in the channel it came from.
func ReplyToMessage(s *discordgo.Session, m *discordgo.Message, message string, embed *discordgo.MessageEmbed) {
	send := &discordgo.MessageSend{
		Content:   message,
		Reference: m.Reference(),
	}
	if embed != nil {
		send.Embeds = []*discordgo.MessageEmbed{embed}
	}
	if _, err := s.ChannelMessageSendComplex(m.ChannelID, send); err != nil {
		logger.Log.WithError(err).WithField("channel", m.ChannelID).Error("Error replying to message")
	}
}

func WithTransaction(db *gorm.DB, fn func(*gorm.DB) error) error {
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// CanManageChannel reports whether userID holds Manage Channels (or
// Administrator) in channelID. Lookups that fail count as no.
func CanManageChannel(s *discordgo.Session, userID, channelID string) bool {
	perms, err := s.State.UserChannelPermissions(userID, channelID)
	if err != nil {
		perms, err = s.UserChannelPermissions(userID, channelID)
		if err != nil {
			logger.Log.WithError(err).WithField("channel", channelID).Debug("Permission lookup failed")
			return false
		}
	}
	return perms&discordgo.PermissionManageChannels != 0 || perms&discordgo.PermissionAdministrator != 0
}
