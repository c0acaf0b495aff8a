package lookup

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/doguser/NickWatchBot/models"

	"github.com/bwmarrin/discordgo"
)

var (
	snowflakePattern = regexp.MustCompile(`(?:^|\D)(\d{17,19})(?:\D|$)`)
	urlPattern       = regexp.MustCompile(`https?://[^\s)>\]]+`)
	leadingInt       = regexp.MustCompile(`^\s*(\d+)`)
)

// fieldRule applies a field's value when its lower-cased name contains any
// of the keys. One field may satisfy several rules.
type fieldRule struct {
	keys  []string
	apply func(p *models.ProfileRecord, value string)
}

var fieldRules = []fieldRule{
	{[]string{"nitro"}, func(p *models.ProfileRecord, v string) {
		lv := strings.ToLower(v)
		p.NitroActive = strings.Contains(lv, "sim") || strings.Contains(lv, "yes")
	}},
	{[]string{"boost", "impuls"}, func(p *models.ProfileRecord, v string) {
		if m := leadingInt.FindStringSubmatch(v); m != nil {
			p.NitroBoostCount, _ = strconv.Atoi(m[1])
		}
	}},
	{[]string{"cores", "color"}, func(p *models.ProfileRecord, v string) { p.ProfileColors = lines(v) }},
	{[]string{"nome", "name"}, func(p *models.ProfileRecord, v string) { p.PreviousUsernames = lines(v) }},
	{[]string{"icon", "ícone"}, func(p *models.ProfileRecord, v string) { p.OldIcons = urls(v) }},
	{[]string{"banner"}, func(p *models.ProfileRecord, v string) { p.OldBanners = urls(v) }},
	{[]string{"mensage", "message"}, func(p *models.ProfileRecord, v string) { p.LastMessages = lines(v) }},
	{[]string{"call", "vc"}, func(p *models.ProfileRecord, v string) { p.LastCall = strings.TrimSpace(v) }},
	{[]string{"servidor", "server"}, func(p *models.ProfileRecord, v string) { p.Servers = lines(v) }},
	{[]string{"visualiza", "view"}, func(p *models.ProfileRecord, v string) { p.ViewHistory = lines(v) }},
}

// ParseReply turns the lookup bot's reply into a ProfileRecord. Only the
// first embed is read. It never fails; anything unrecognised keeps its
// zero value and every list is non-nil.
func ParseReply(embeds []*discordgo.MessageEmbed, content string) *models.ProfileRecord {
	p := models.NewProfileRecord()

	var embed *discordgo.MessageEmbed
	if len(embeds) > 0 {
		embed = embeds[0]
	}

	if embed != nil {
		if embed.Author != nil {
			p.Username = embed.Author.Name
		}
		switch {
		case embed.Thumbnail != nil && embed.Thumbnail.URL != "":
			p.AvatarURL = embed.Thumbnail.URL
			if embed.Image != nil {
				p.BannerURL = embed.Image.URL
			}
		case embed.Image != nil:
			p.AvatarURL = embed.Image.URL
		}

		for _, field := range embed.Fields {
			if field == nil {
				continue
			}
			name := strings.ToLower(field.Name)
			for _, rule := range fieldRules {
				if containsAny(name, rule.keys) {
					rule.apply(p, field.Value)
				}
			}
		}
	}

	p.UserID = firstSnowflake(content)
	if p.UserID == "" && embed != nil {
		p.UserID = firstSnowflake(embed.Description)
		for _, field := range embed.Fields {
			if p.UserID != "" {
				break
			}
			if field != nil {
				p.UserID = firstSnowflake(field.Value)
			}
		}
	}

	return p
}

func firstSnowflake(s string) string {
	if m := snowflakePattern.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}

func lines(v string) []string {
	out := []string{}
	for _, line := range strings.Split(v, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func urls(v string) []string {
	found := urlPattern.FindAllString(v, -1)
	if found == nil {
		return []string{}
	}
	return found
}

func containsAny(s string, keys []string) bool {
	for _, k := range keys {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
