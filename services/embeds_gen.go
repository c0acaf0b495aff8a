package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/doguser/NickWatchBot/models"

	"github.com/bwmarrin/discordgo"
)

const (
	ColorAvailable = 0x00FF00 // Green for names free right now
	ColorPending   = 0xFFFF00 // Yellow for names with a future release
	ColorInfo      = 0x5865F2 // Blurple for command replies
)

func GetColorForStatus(status models.UsernameStatus) int {
	switch status {
	case models.StatusAvailable:
		return ColorAvailable
	case models.StatusPending:
		return ColorPending
	default:
		return ColorInfo
	}
}

func EmbedTitleFromStatus(status models.UsernameStatus, name string) string {
	switch status {
	case models.StatusPending:
		return fmt.Sprintf("⏰ %s", name)
	default:
		return fmt.Sprintf("✅ %s", name)
	}
}

func GetStatusDescription(rec models.UsernameRecord) string {
	switch rec.Status {
	case models.StatusPending:
		if date := rec.AvailableDate; date != nil {
			return fmt.Sprintf("```%s```\n**Status:** Disponível em %s", rec.Name, date.UTC().Format("02/01/2006"))
		}
		return fmt.Sprintf("```%s```\n**Status:** Estará disponível em breve", rec.Name)
	default:
		return fmt.Sprintf("```%s```\n**Status:** Disponível", rec.Name)
	}
}

// CreateUsernameEmbed is the broadcast message for one discovered name.
func CreateUsernameEmbed(rec models.UsernameRecord, footer string) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Type:        discordgo.EmbedTypeRich,
		Title:       EmbedTitleFromStatus(rec.Status, rec.Name),
		Description: GetStatusDescription(rec),
		Color:       GetColorForStatus(rec.Status),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Categoria", Value: string(rec.Category), Inline: true},
			{Name: "Plataforma", Value: string(rec.Platform), Inline: true},
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: footer}
	}
	return embed
}

// CreateChannelListEmbed renders the routes configured in one guild.
func CreateChannelListEmbed(configs []models.ChannelConfig) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:     "📋 Canais configurados",
		Color:     ColorInfo,
		Timestamp: time.Now().Format(time.RFC3339),
	}

	if len(configs) == 0 {
		embed.Description = "Nenhum canal configurado. Use `/setar <categoria> <plataforma>`."
		return embed
	}

	var b strings.Builder
	for _, cfg := range configs {
		state := "ativo"
		if !cfg.IsActive {
			state = "inativo"
		}
		fmt.Fprintf(&b, "<#%s> → **%s** / **%s** (%s)\n", cfg.ChannelID, cfg.Category, cfg.Platform, state)
	}
	embed.Description = b.String()
	return embed
}
