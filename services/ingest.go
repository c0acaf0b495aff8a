package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/doguser/NickWatchBot/announcement"
	"github.com/doguser/NickWatchBot/errorhandler"
	"github.com/doguser/NickWatchBot/logger"
	"github.com/doguser/NickWatchBot/models"
)

// Discovery is one username announced in a monitored channel.
type Discovery struct {
	Username      string
	ChannelID     string
	Status        models.UsernameStatus
	AvailableDate string // YYYY-MM-DD or ""
}

type Ingestor interface {
	Ingest(ctx context.Context, d Discovery) error
}

// LocalIngestor writes discoveries straight into this process's store.
type LocalIngestor struct {
	upserter *Upserter
}

func NewLocalIngestor(u *Upserter) *LocalIngestor {
	return &LocalIngestor{upserter: u}
}

func (l *LocalIngestor) Ingest(ctx context.Context, d Discovery) error {
	_, err := l.upserter.Upsert(ctx, UpsertRequest{
		Candidate:     d.Username,
		ChannelID:     d.ChannelID,
		Status:        d.Status,
		AvailableDate: announcement.ParseDate(d.AvailableDate),
		Source:        SourceContent,
	})
	return err
}

type webhookPayload struct {
	Content       string  `json:"content"`
	ChannelID     string  `json:"channel_id"`
	Status        string  `json:"status,omitempty"`
	AvailableDate *string `json:"available_date"`
}

type webhookAnswer struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// RemoteIngestor forwards discoveries to another instance's ingestion
// endpoint, which owns the store.
type RemoteIngestor struct {
	endpoint string
	client   *http.Client
}

func NewRemoteIngestor(siteURL string, client *http.Client) *RemoteIngestor {
	if client == nil {
		client = GetDefaultHTTPClient()
	}
	return &RemoteIngestor{endpoint: siteURL + "/api/webhooks/discord", client: client}
}

func (r *RemoteIngestor) Ingest(ctx context.Context, d Discovery) error {
	payload := webhookPayload{
		Content:   d.Username,
		ChannelID: d.ChannelID,
		Status:    string(d.Status),
	}
	if d.AvailableDate != "" {
		date := d.AvailableDate
		payload.AvailableDate = &date
	}

	var answer webhookAnswer
	if err := postJSON(ctx, r.client, r.endpoint, payload, &answer); err != nil {
		return err
	}
	if !answer.Success {
		msg := answer.Error
		if msg == "" {
			msg = answer.Message
		}
		return errorhandler.NewNetworkError(errors.New(msg), "remote ingestion rejected "+d.Username)
	}
	if answer.Count == 0 {
		return errorhandler.NewValidationError(fmt.Errorf("remote ingestion stored nothing for %q", d.Username), "username")
	}

	logger.Log.WithField("username", d.Username).Infof("Forwarded to %s (%d saved)", r.endpoint, answer.Count)
	return nil
}
