package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doguser/NickWatchBot/errorhandler"
	"github.com/doguser/NickWatchBot/models"
	"github.com/doguser/NickWatchBot/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the persistence boundary for channel routes and username records.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) ListChannels(ctx context.Context) ([]models.ChannelConfig, error) {
	var rows []models.ChannelConfig
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, errorhandler.NewDatabaseError(err, "listing channel configs")
	}
	return rows, nil
}

func (s *Store) FindChannel(ctx context.Context, channelID string) (*models.ChannelConfig, error) {
	var row models.ChannelConfig
	err := s.db.WithContext(ctx).Where("channel_id = ?", channelID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errorhandler.NewNotFoundError(err, "channel")
	}
	if err != nil {
		return nil, errorhandler.NewDatabaseError(err, "finding channel config")
	}
	return &row, nil
}

// UpsertChannel creates or replaces the route for cfg.ChannelID.
func (s *Store) UpsertChannel(ctx context.Context, cfg models.ChannelConfig) (*models.ChannelConfig, error) {
	var saved models.ChannelConfig
	err := utils.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		row := models.ChannelConfig{
			ChannelID:  cfg.ChannelID,
			ServerID:   cfg.ServerID,
			Category:   cfg.Category,
			Platform:   cfg.Platform,
			WebhookURL: cfg.WebhookURL,
			IsActive:   cfg.IsActive,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "channel_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"server_id", "category", "platform", "webhook_url", "is_active", "updated_at"}),
		}).Create(&row).Error
		if err != nil {
			return err
		}
		return tx.Where("channel_id = ?", cfg.ChannelID).First(&saved).Error
	})
	if err != nil {
		return nil, errorhandler.NewDatabaseError(err, fmt.Sprintf("upserting channel %s", cfg.ChannelID))
	}
	return &saved, nil
}

// DeleteChannel hard-deletes the route; it reports whether a row existed.
func (s *Store) DeleteChannel(ctx context.Context, channelID string) (bool, error) {
	result := s.db.WithContext(ctx).Unscoped().Where("channel_id = ?", channelID).Delete(&models.ChannelConfig{})
	if result.Error != nil {
		return false, errorhandler.NewDatabaseError(result.Error, fmt.Sprintf("deleting channel %s", channelID))
	}
	return result.RowsAffected > 0, nil
}

// UpsertUsername inserts rec or, when (name, platform) already exists,
// refreshes its status, category, available date and found time. The stored
// row is returned either way.
func (s *Store) UpsertUsername(ctx context.Context, rec models.UsernameRecord) (*models.UsernameRecord, error) {
	if rec.FoundAt.IsZero() {
		rec.FoundAt = time.Now()
	}

	var saved models.UsernameRecord
	err := utils.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		row := models.UsernameRecord{
			Name:          rec.Name,
			Platform:      rec.Platform,
			Category:      rec.Category,
			Status:        rec.Status,
			FoundAt:       rec.FoundAt,
			AvailableDate: rec.AvailableDate,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}, {Name: "platform"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "category", "available_date", "found_at", "updated_at"}),
		}).Create(&row).Error
		if err != nil {
			return err
		}
		return tx.Where("name = ? AND platform = ?", rec.Name, rec.Platform).First(&saved).Error
	})
	if err != nil {
		return nil, errorhandler.NewDatabaseError(err, fmt.Sprintf("upserting username %s/%s", rec.Platform, rec.Name))
	}
	return &saved, nil
}

func (s *Store) FindUsername(ctx context.Context, name string, platform models.Platform) (*models.UsernameRecord, error) {
	var row models.UsernameRecord
	err := s.db.WithContext(ctx).Where("name = ? AND platform = ?", name, platform).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errorhandler.NewNotFoundError(err, "username")
	}
	if err != nil {
		return nil, errorhandler.NewDatabaseError(err, "finding username")
	}
	return &row, nil
}

type UsernameFilter struct {
	Category models.Category
	Platform models.Platform
	Status   models.UsernameStatus
	Limit    int
}

// ListUsernames returns matching records, most recently found first.
func (s *Store) ListUsernames(ctx context.Context, f UsernameFilter) ([]models.UsernameRecord, error) {
	q := s.db.WithContext(ctx).Model(&models.UsernameRecord{})
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.Platform != "" {
		q = q.Where("platform = ?", f.Platform)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var rows []models.UsernameRecord
	if err := q.Order("found_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, errorhandler.NewDatabaseError(err, "listing usernames")
	}
	return rows, nil
}
