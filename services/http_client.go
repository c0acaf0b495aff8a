package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/doguser/NickWatchBot/errorhandler"
	"github.com/doguser/NickWatchBot/logger"
)

var (
	defaultClient      *http.Client
	clientMutex        sync.RWMutex
	clientsInitialized bool
)

const userAgent = "NickWatchBot/1.0 (+https://doguser.com)"

func InitHTTPClients() {
	clientMutex.Lock()
	defer clientMutex.Unlock()

	if clientsInitialized {
		return
	}

	logger.Log.Info("Initializing outbound HTTP client")

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	defaultClient = &http.Client{
		Timeout:   30 * time.Second,
		Transport: transport,
	}

	clientsInitialized = true
}

func GetDefaultHTTPClient() *http.Client {
	clientMutex.RLock()
	if !clientsInitialized {
		clientMutex.RUnlock()
		InitHTTPClients()
		clientMutex.RLock()
	}
	defer clientMutex.RUnlock()
	return defaultClient
}

// postJSON sends payload as JSON and decodes a JSON reply into out when out
// is non-nil. Non-2xx answers are returned as network errors.
func postJSON(ctx context.Context, client *http.Client, url string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding request for %s: %w", url, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return errorhandler.NewNetworkError(err, "POST "+url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errorhandler.NewNetworkError(fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet)), "POST "+url)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", url, err)
	}
	return nil
}
