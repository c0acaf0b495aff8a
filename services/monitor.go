package services

import (
	"context"

	"github.com/doguser/NickWatchBot/announcement"
	"github.com/doguser/NickWatchBot/errorhandler"
	"github.com/doguser/NickWatchBot/logger"
	"github.com/doguser/NickWatchBot/models"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"
)

// Monitor watches the announcement channels and ingests every availability
// announcement it recognises.
type Monitor struct {
	classifier *announcement.Classifier
	ingestor   Ingestor
	sources    map[string]struct{}
}

func NewMonitor(classifier *announcement.Classifier, ingestor Ingestor, sourceChannels []string) *Monitor {
	sources := make(map[string]struct{}, len(sourceChannels))
	for _, id := range sourceChannels {
		sources[id] = struct{}{}
	}
	return &Monitor{classifier: classifier, ingestor: ingestor, sources: sources}
}

func (m *Monitor) Watches(channelID string) bool {
	_, ok := m.sources[channelID]
	return ok
}

// HandleMessage returns the discovery it ingested, or nil when the message
// was not an availability announcement.
func (m *Monitor) HandleMessage(ctx context.Context, selfID string, msg *discordgo.Message) (*Discovery, error) {
	if msg == nil || !m.Watches(msg.ChannelID) {
		return nil, nil
	}
	if msg.Author != nil && msg.Author.ID == selfID {
		return nil, nil
	}

	result := m.classifier.Classify(msg.Content)
	fields := logrus.Fields{"channel": msg.ChannelID, "username": result.Username}

	var d Discovery
	switch result.Kind {
	case announcement.AvailableNow:
		d = Discovery{Username: result.Username, ChannelID: msg.ChannelID, Status: models.StatusAvailable}
	case announcement.AvailableFuture:
		d = Discovery{
			Username:      result.Username,
			ChannelID:     msg.ChannelID,
			Status:        models.StatusPending,
			AvailableDate: m.classifier.ExtractDate(result.Body),
		}
	default:
		if result.Username != "" {
			logger.Log.WithFields(fields).Debug("Announcement without a recognised availability marker")
		}
		return nil, nil
	}

	if err := m.ingestor.Ingest(ctx, d); err != nil {
		if errorhandler.Is(err, errorhandler.ValidationError) {
			logger.Log.WithFields(fields).WithError(err).Info("Ignoring invalid announced username")
			return nil, nil
		}
		return nil, err
	}

	logger.Log.WithFields(fields).WithField("status", d.Status).WithField("available_date", d.AvailableDate).Info("Announcement ingested")
	return &d, nil
}
