package webserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/doguser/NickWatchBot/database"
	"github.com/doguser/NickWatchBot/errorhandler"
	"github.com/doguser/NickWatchBot/lookup"
	"github.com/doguser/NickWatchBot/models"
	"github.com/doguser/NickWatchBot/registry"
	"github.com/doguser/NickWatchBot/services"

	"github.com/gin-gonic/gin"
)

const fourCharChannel = "1420065854401413231"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSearcher struct {
	profile *models.ProfileRecord
	err     error
	got     lookup.SearchRequest
}

func (f *fakeSearcher) Search(_ context.Context, req lookup.SearchRequest) (*models.ProfileRecord, error) {
	f.got = req
	return f.profile, f.err
}

func (f *fakeSearcher) Ready() bool  { return f.err == nil }
func (f *fakeSearcher) Pending() int { return 0 }

type testServer struct {
	server   *Server
	store    *database.Store
	searcher *fakeSearcher
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "web.db"), true)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { database.Close(db) })

	store := database.NewStore(db)
	reg := registry.New(store, registry.Options{
		Fallback: map[string]models.Category{fourCharChannel: models.CategoryChars4},
	})
	upserter := services.NewUpserter(store, reg, nil, nil, services.UpserterOptions{
		Policy: services.UsernamePolicy{AllowPeriod: true},
	})
	t.Cleanup(upserter.Wait)

	searcher := &fakeSearcher{}
	srv := NewServer(opts, Deps{
		Upserter:  upserter,
		Usernames: store,
		Searcher:  searcher,
		Registry:  reg,
		Health:    func(ctx context.Context) error { return database.Ping(ctx, db) },
	})
	return &testServer{server: srv, store: store, searcher: searcher}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, req)

	var decoded map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &decoded)
	return w, decoded
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestIngest_PingIsAcknowledged(t *testing.T) {
	ts := newTestServer(t, Options{})

	w, body := ts.do(t, http.MethodPost, "/webhooks/discord", map[string]any{"type": 0, "content": ""}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if body["type"] != float64(1) {
		t.Errorf("body = %v, want {type:1}", body)
	}
}

func TestIngest_ContentLines(t *testing.T) {
	ts := newTestServer(t, Options{})

	w, body := ts.do(t, http.MethodPost, "/api/webhooks/discord", map[string]any{
		"content":    "CoolName\r\n<@1>\nbad name!\ncoolname\nfirst.last",
		"channel_id": fourCharChannel,
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if body["success"] != true || body["count"] != float64(2) {
		t.Fatalf("unexpected body: %v", body)
	}
	names, _ := body["usernames"].([]any)
	if len(names) != 2 || names[0] != "coolname" || names[1] != "first.last" {
		t.Errorf("usernames = %v, want [coolname first.last]", names)
	}

	rec, err := ts.store.FindUsername(context.Background(), "coolname", models.PlatformDiscord)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if rec.Category != models.CategoryChars4 || rec.Status != models.StatusAvailable {
		t.Errorf("stored %s/%s, want CHARS_4/AVAILABLE", rec.Category, rec.Status)
	}
}

func TestIngest_CategoryOverride(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  models.Category
	}{
		{"valid override wins", "?category=en_us", models.CategoryENUS},
		{"alias override", "?category=3c", models.CategoryChars3},
		{"invalid override ignored", "?category=bogus", models.CategoryChars4},
		{"no override", "", models.CategoryChars4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, Options{})
			w, _ := ts.do(t, http.MethodPost, "/webhooks/discord"+tt.query, map[string]any{
				"content":    "override_me",
				"channel_id": fourCharChannel,
			}, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			rec, err := ts.store.FindUsername(context.Background(), "override_me", models.PlatformDiscord)
			if err != nil {
				t.Fatalf("find: %v", err)
			}
			if rec.Category != tt.want {
				t.Errorf("category = %s, want %s", rec.Category, tt.want)
			}
		})
	}
}

func TestIngest_EmbedLinesUseStrictCharset(t *testing.T) {
	ts := newTestServer(t, Options{})

	_, body := ts.do(t, http.MethodPost, "/webhooks/discord", map[string]any{
		"channel_id": fourCharChannel,
		"status":     "PENDING",
		"embeds": []map[string]any{{
			"description": "with.period\nembeduser",
			"fields":      []map[string]any{{"name": "x", "value": "fielduser"}},
		}},
	}, nil)

	names, _ := body["usernames"].([]any)
	if len(names) != 2 || names[0] != "embeduser" || names[1] != "fielduser" {
		t.Fatalf("usernames = %v, want [embeduser fielduser]", names)
	}

	rec, err := ts.store.FindUsername(context.Background(), "embeduser", models.PlatformDiscord)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if rec.Status != models.StatusAvailable {
		t.Errorf("embed candidates are always AVAILABLE, got %s", rec.Status)
	}
}

func TestIngest_PendingWithDate(t *testing.T) {
	ts := newTestServer(t, Options{})

	w, _ := ts.do(t, http.MethodPost, "/webhooks/discord", map[string]any{
		"content":        "soonfree",
		"channel_id":     fourCharChannel,
		"status":         "pending",
		"available_date": "2025-03-15",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	rec, err := ts.store.FindUsername(context.Background(), "soonfree", models.PlatformDiscord)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if rec.Status != models.StatusPending || rec.AvailableDateString() != "2025-03-15" {
		t.Errorf("stored %s %q, want PENDING 2025-03-15", rec.Status, rec.AvailableDateString())
	}
}

func TestIngest_InvalidPayload(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{"unknown status", map[string]any{"content": "abc", "status": "MAYBE"}},
		{"bad date", map[string]any{"content": "abc", "status": "PENDING", "available_date": "15/03/2025"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, Options{})
			w, body := ts.do(t, http.MethodPost, "/webhooks/discord", tt.body, nil)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			if errorCode(body) != "validation_failed" || body["success"] != false {
				t.Errorf("unexpected body: %v", body)
			}
		})
	}
}

func TestSearch_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   int
		wantStatus string
	}{
		{"bad input", errorhandler.NewValidationError(errors.New("query (ID or username) is required"), "query"), http.StatusBadRequest, ""},
		{"channel missing", errorhandler.NewNotFoundError(errors.New("404"), "channel"), http.StatusNotFound, ""},
		{"bot offline", errorhandler.NewNotReadyError(errors.New("down"), "search"), http.StatusServiceUnavailable, "offline"},
		{"no reply", errorhandler.NewTimeoutError(errors.New("timeout"), "search"), http.StatusGatewayTimeout, "not_ready"},
		{"unexpected", errorhandler.NewDiscordError(errors.New("boom"), "send"), http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, Options{})
			ts.searcher.err = tt.err

			w, body := ts.do(t, http.MethodPost, "/search-relay", map[string]any{"query": "someone"}, nil)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantStatus != "" && body["status"] != tt.wantStatus {
				t.Errorf("status field = %v, want %s", body["status"], tt.wantStatus)
			}
			if tt.wantCode == http.StatusInternalServerError && body["details"] == nil {
				t.Errorf("500 without details: %v", body)
			}
		})
	}
}

func TestSearch_ReturnsProfile(t *testing.T) {
	ts := newTestServer(t, Options{})
	profile := models.NewProfileRecord()
	profile.UserID = "123456789012345678"
	profile.Username = "target"
	ts.searcher.profile = profile

	w, body := ts.do(t, http.MethodPost, "/api/search", map[string]any{
		"userId":    "123456789012345678",
		"option":    "avatar",
		"channelId": "1474813731526545614",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if body["userId"] != "123456789012345678" || body["username"] != "target" {
		t.Errorf("unexpected profile: %v", body)
	}
	if list, ok := body["oldIcons"].([]any); !ok || len(list) != 0 {
		t.Errorf("oldIcons = %v, want []", body["oldIcons"])
	}
	if ts.searcher.got.Query != "123456789012345678" || ts.searcher.got.Option != "avatar" {
		t.Errorf("searcher got %+v", ts.searcher.got)
	}
}

func TestSearch_RejectsBadChannelID(t *testing.T) {
	ts := newTestServer(t, Options{})

	w, _ := ts.do(t, http.MethodPost, "/search-relay", map[string]any{"query": "x", "channelId": "general"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestListUsernames(t *testing.T) {
	ts := newTestServer(t, Options{})
	ts.do(t, http.MethodPost, "/webhooks/discord", map[string]any{"content": "aa\nbb", "channel_id": fourCharChannel}, nil)

	w, _ := ts.do(t, http.MethodGet, "/api/usernames", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing category: status = %d, want 400", w.Code)
	}

	w, body := ts.do(t, http.MethodGet, "/api/usernames?category=4c&platform=discord", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	rows, _ := body["usernames"].([]any)
	if len(rows) != 2 {
		t.Errorf("rows = %d, want 2", len(rows))
	}

	_, body = ts.do(t, http.MethodGet, "/api/usernames?category=CHARS_4&status=PENDING", nil, nil)
	if rows, _ := body["usernames"].([]any); len(rows) != 0 {
		t.Errorf("pending rows = %d, want 0", len(rows))
	}
}

func TestAdminWebhooks(t *testing.T) {
	ts := newTestServer(t, Options{AdminAPIKey: "secret"})
	auth := map[string]string{"X-API-Key": "secret"}

	w, _ := ts.do(t, http.MethodGet, "/api/admin/webhooks", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no key: status = %d, want 401", w.Code)
	}
	w, _ = ts.do(t, http.MethodGet, "/api/admin/webhooks", nil, map[string]string{"X-API-Key": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key: status = %d, want 401", w.Code)
	}

	w, body := ts.do(t, http.MethodPost, "/api/admin/webhooks", map[string]any{
		"channelId": "1474813731526545614",
		"category":  "pt",
		"platform":  "roblox",
	}, auth)
	if w.Code != http.StatusOK {
		t.Fatalf("upsert: status = %d, body %s", w.Code, w.Body.String())
	}
	if body["category"] != "PT_BR" || body["platform"] != "ROBLOX" || body["isActive"] != true {
		t.Errorf("unexpected row: %v", body)
	}

	w, _ = ts.do(t, http.MethodPost, "/api/admin/webhooks", map[string]any{"channelId": "1474813731526545614", "category": "KLINGON"}, auth)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad category: status = %d, want 400", w.Code)
	}

	_, body = ts.do(t, http.MethodGet, "/api/admin/webhooks", nil, auth)
	if body["count"] != float64(1) {
		t.Errorf("count = %v, want 1", body["count"])
	}

	w, _ = ts.do(t, http.MethodDelete, "/api/admin/webhooks", nil, auth)
	if w.Code != http.StatusBadRequest {
		t.Errorf("delete without id: status = %d, want 400", w.Code)
	}
	w, _ = ts.do(t, http.MethodDelete, "/api/admin/webhooks?channelId=1474813731526545614", nil, auth)
	if w.Code != http.StatusOK {
		t.Errorf("delete: status = %d, want 200", w.Code)
	}
	w, _ = ts.do(t, http.MethodDelete, "/api/admin/webhooks?channelId=1474813731526545614", nil, auth)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete: status = %d, want 404", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, Options{RateLimit: 0.001, RateBurst: 1})

	w, _ := ts.do(t, http.MethodGet, "/api/channels", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("first request: status = %d", w.Code)
	}
	w, body := ts.do(t, http.MethodGet, "/api/channels", nil, nil)
	if w.Code != http.StatusTooManyRequests || errorCode(body) != "rate_limited" {
		t.Fatalf("second request: status = %d body %v, want 429", w.Code, body)
	}

	w, _ = ts.do(t, http.MethodGet, "/health", nil, nil)
	if w.Code != http.StatusOK {
		t.Errorf("health is not rate limited, got %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, Options{})

	w, body := ts.do(t, http.MethodGet, "/health", nil, nil)
	if w.Code != http.StatusOK || body["database"] != "connected" {
		t.Fatalf("status = %d body %v", w.Code, body)
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Error("missing request id header")
	}

	ts.server.deps.Health = func(context.Context) error { return errors.New("db down") }
	w, body = ts.do(t, http.MethodGet, "/health", nil, nil)
	if w.Code != http.StatusServiceUnavailable || body["status"] != "degraded" {
		t.Errorf("status = %d body %v, want 503 degraded", w.Code, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, Options{})
	ts.do(t, http.MethodPost, "/webhooks/discord", map[string]any{"content": "metricuser", "channel_id": fourCharChannel}, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "nickwatch_usernames_saved_total") {
		t.Error("username counter not exported")
	}
}
