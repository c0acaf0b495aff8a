package database

import (
	"fmt"
	"strings"

	"github.com/doguser/NickWatchBot/logger"
	"github.com/doguser/NickWatchBot/models"

	"gorm.io/gorm"
)

func RunMigrations(db *gorm.DB) error {
	logger.Log.Info("Running migrations")

	if err := db.AutoMigrate(&models.ChannelConfig{}, &models.UsernameRecord{}); err != nil {
		return fmt.Errorf("failed to auto-migrate database models: %w", err)
	}

	normalizeEnumColumns(db)
	normalizeUsernames(db)
	return nil
}

// Older bots wrote platform and category in lower case ("discord", "4c").
func normalizeEnumColumns(db *gorm.DB) {
	for _, p := range models.Platforms {
		for _, table := range []string{"webhooks", "usernames"} {
			result := db.Table(table).
				Where("platform <> ? AND UPPER(platform) = ?", string(p), string(p)).
				Update("platform", string(p))
			if result.Error != nil {
				logger.Log.WithError(result.Error).Errorf("Failed to normalize %s.platform", table)
			} else if result.RowsAffected > 0 {
				logger.Log.Infof("Normalized %d %s rows to platform %s", result.RowsAffected, table, p)
			}
		}
	}

	var legacy []models.ChannelConfig
	if err := db.Where("category NOT IN ?", models.Categories).Find(&legacy).Error; err != nil {
		logger.Log.WithError(err).Error("Failed to load webhooks with legacy categories")
		return
	}
	for _, row := range legacy {
		category, ok := models.ParseCategory(string(row.Category))
		if !ok {
			logger.Log.Warnf("Webhook %s has unknown category %q, leaving as is", row.ChannelID, row.Category)
			continue
		}
		if err := db.Model(&row).Update("category", category).Error; err != nil {
			logger.Log.WithError(err).Errorf("Failed to normalize category for webhook %s", row.ChannelID)
		}
	}
}

// Name uniqueness is case-insensitive; a mixed-case duplicate of an existing
// lower-case row is left in place and reported.
func normalizeUsernames(db *gorm.DB) {
	var rows []models.UsernameRecord
	if err := db.Where("name <> LOWER(name)").Find(&rows).Error; err != nil {
		logger.Log.WithError(err).Error("Failed to load mixed-case usernames")
		return
	}

	fixed := 0
	for _, row := range rows {
		lower := strings.ToLower(row.Name)
		if err := db.Model(&row).Update("name", lower).Error; err != nil {
			logger.Log.WithError(err).Warnf("Could not lower-case username %q on %s", row.Name, row.Platform)
			continue
		}
		fixed++
	}
	if fixed > 0 {
		logger.Log.Infof("Lower-cased %d stored usernames", fixed)
	}
}
