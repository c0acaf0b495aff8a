package command

import (
	"strings"

	"github.com/doguser/NickWatchBot/command/listchannels"
	"github.com/doguser/NickWatchBot/command/removechannel"
	"github.com/doguser/NickWatchBot/command/setchannel"
	"github.com/doguser/NickWatchBot/logger"
	"github.com/doguser/NickWatchBot/registry"

	"github.com/bwmarrin/discordgo"
)

var (
	Handlers     = map[string]func(*discordgo.Session, *discordgo.InteractionCreate){}
	TextHandlers = map[string]func(*discordgo.Session, *discordgo.MessageCreate, []string){}
)

// Setup binds every command to the registry. It must run before the
// sessions open.
func Setup(reg *registry.Registry) {
	Handlers[setchannel.Name] = setchannel.CommandSetChannel(reg)
	Handlers[listchannels.Name] = listchannels.CommandListChannels(reg)
	Handlers[removechannel.Name] = removechannel.CommandRemoveChannel(reg)

	TextHandlers[setchannel.Name] = setchannel.TextCommand(reg)
	TextHandlers[listchannels.Name] = listchannels.TextCommand(reg)
	TextHandlers[removechannel.Name] = removechannel.TextCommand(reg)
}

func RegisterCommands(s *discordgo.Session) {
	logger.Log.Info("Registering global commands")

	commands := []*discordgo.ApplicationCommand{
		setchannel.Definition(),
		listchannels.Definition(),
		removechannel.Definition(),
	}

	_, err := s.ApplicationCommandBulkOverwrite(s.State.User.ID, "", commands)
	if err != nil {
		logger.Log.WithError(err).Error("Error registering global commands")
		return
	}

	logger.Log.Info("Global commands registered")
}

func HandleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	name := i.ApplicationCommandData().Name
	if h, ok := Handlers[name]; ok {
		h(s, i)
		return
	}
	logger.Log.WithField("command", name).Warn("Unknown command")
}

// ParseTextCommand splits "/setar 4c discord" into ("setar", ["4c", "discord"]).
func ParseTextCommand(content string) (string, []string, bool) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "/") {
		return "", nil, false
	}
	parts := strings.Fields(content[1:])
	if len(parts) == 0 {
		return "", nil, false
	}
	return strings.ToLower(parts[0]), parts[1:], true
}

// HandleTextCommand runs a legacy text command and reports whether the
// message was one.
func HandleTextCommand(s *discordgo.Session, m *discordgo.MessageCreate) bool {
	if m.Author == nil || m.Author.Bot {
		return false
	}
	name, args, ok := ParseTextCommand(m.Content)
	if !ok {
		return false
	}
	h, ok := TextHandlers[name]
	if !ok {
		return false
	}
	logger.Log.WithField("command", name).WithField("channel", m.ChannelID).Info("Text command received")
	h(s, m, args)
	return true
}
