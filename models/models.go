package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

type Category string

const (
	CategoryChars2 Category = "CHARS_2" // Two character names.
	CategoryChars3 Category = "CHARS_3" // Three character names.
	CategoryChars4 Category = "CHARS_4" // Four character names.
	CategoryPTBR   Category = "PT_BR"   // Portuguese dictionary words.
	CategoryENUS   Category = "EN_US"   // English dictionary words.
	CategoryRandom Category = "RANDOM"  // Anything else.
)

var Categories = []Category{
	CategoryChars2, CategoryChars3, CategoryChars4, CategoryPTBR, CategoryENUS, CategoryRandom,
}

// Short aliases accepted by the legacy /setar command.
var categoryAliases = map[string]Category{
	"2c":     CategoryChars2,
	"3c":     CategoryChars3,
	"4c":     CategoryChars4,
	"pt":     CategoryPTBR,
	"en":     CategoryENUS,
	"random": CategoryRandom,
}

// ParseCategory accepts enum names in any case and the short command aliases.
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	if c, ok := categoryAliases[strings.ToLower(s)]; ok {
		return c, true
	}
	upper := Category(strings.ToUpper(s))
	for _, c := range Categories {
		if c == upper {
			return c, true
		}
	}
	return "", false
}

type Platform string

const (
	PlatformDiscord   Platform = "DISCORD"
	PlatformMinecraft Platform = "MINECRAFT"
	PlatformRoblox    Platform = "ROBLOX"
	PlatformInstagram Platform = "INSTAGRAM"
	PlatformGithub    Platform = "GITHUB"
	PlatformTwitter   Platform = "TWITTER"
	PlatformTiktok    Platform = "TIKTOK"
)

var Platforms = []Platform{
	PlatformDiscord, PlatformMinecraft, PlatformRoblox, PlatformInstagram, PlatformGithub, PlatformTwitter, PlatformTiktok,
}

func ParsePlatform(s string) (Platform, bool) {
	upper := Platform(strings.ToUpper(strings.TrimSpace(s)))
	for _, p := range Platforms {
		if p == upper {
			return p, true
		}
	}
	return "", false
}

type UsernameStatus string

const (
	StatusAvailable UsernameStatus = "AVAILABLE" // Free right now.
	StatusPending   UsernameStatus = "PENDING"   // Will be free at AvailableDate (if known).
	StatusTaken     UsernameStatus = "TAKEN"
	StatusChecking  UsernameStatus = "CHECKING"
	StatusError     UsernameStatus = "ERROR"
)

var Statuses = []UsernameStatus{StatusAvailable, StatusPending, StatusTaken, StatusChecking, StatusError}

func ParseStatus(s string) (UsernameStatus, bool) {
	upper := UsernameStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, st := range Statuses {
		if st == upper {
			return st, true
		}
	}
	return "", false
}

// ChannelConfig is one Discord channel's subscription to a (category, platform) feed.
type ChannelConfig struct {
	gorm.Model
	ChannelID  string   `gorm:"size:32;not null;uniqueIndex"`                         // The Discord channel receiving broadcasts.
	ServerID   string   `gorm:"size:32"`                                              // The guild the channel belongs to, when known.
	Category   Category `gorm:"size:16;not null;index:idx_webhooks_route,priority:1"` // The subscribed category.
	Platform   Platform `gorm:"size:16;not null;index:idx_webhooks_route,priority:2"` // The subscribed platform.
	WebhookURL *string  `gorm:"size:255"`                                             // Raw webhook URL registered by the dashboard, optional.
	IsActive   bool     `gorm:"not null"`                                             // Inactive rows are ignored by resolve and broadcast.
}

func (ChannelConfig) TableName() string {
	return "webhooks"
}

// UsernameRecord is one discovered username, unique per (Name, Platform).
type UsernameRecord struct {
	gorm.Model
	Name          string         `gorm:"size:32;not null;uniqueIndex:idx_usernames_name_platform,priority:1"`
	Platform      Platform       `gorm:"size:16;not null;uniqueIndex:idx_usernames_name_platform,priority:2"`
	Category      Category       `gorm:"size:16;not null;index"`
	Status        UsernameStatus `gorm:"size:16;not null;index"`
	FoundAt       time.Time      `gorm:"not null;index"` // Refreshed on every sighting.
	AvailableDate *time.Time     `gorm:"type:date"`      // Only meaningful for StatusPending.
}

func (UsernameRecord) TableName() string {
	return "usernames"
}

// AvailableDateString returns the ISO calendar date or "" when unknown.
func (u UsernameRecord) AvailableDateString() string {
	if u.AvailableDate == nil {
		return ""
	}
	return u.AvailableDate.UTC().Format(time.DateOnly)
}
