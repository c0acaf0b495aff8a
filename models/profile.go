package models

// ProfileRecord is the normalized answer of the third-party lookup bot.
// List fields are never nil so callers can range over them unconditionally.
type ProfileRecord struct {
	UserID            string   `json:"userId"`
	Username          string   `json:"username"`
	AvatarURL         string   `json:"avatarUrl"`
	BannerURL         string   `json:"bannerUrl"`
	NitroActive       bool     `json:"nitroActive"`
	NitroBoostCount   int      `json:"nitroBoostCount"`
	ProfileColors     []string `json:"profileColors"`
	PreviousUsernames []string `json:"previousUsernames"`
	OldIcons          []string `json:"oldIcons"`
	OldBanners        []string `json:"oldBanners"`
	LastMessages      []string `json:"lastMessages"`
	LastCall          string   `json:"lastCall"`
	Servers           []string `json:"servers"`
	ViewHistory       []string `json:"viewHistory"`
}

func NewProfileRecord() *ProfileRecord {
	return &ProfileRecord{
		ProfileColors:     []string{},
		PreviousUsernames: []string{},
		OldIcons:          []string{},
		OldBanners:        []string{},
		LastMessages:      []string{},
		Servers:           []string{},
		ViewHistory:       []string{},
	}
}
