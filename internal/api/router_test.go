// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/earthforus/earthforus/internal/logging"
	"github.com/earthforus/earthforus/internal/metrics"
	"github.com/earthforus/earthforus/internal/middleware"
	"github.com/earthforus/earthforus/internal/models"
	"github.com/earthforus/earthforus/internal/store"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "warn", Format: "json", Output: io.Discard})
}

type fakeConnections struct {
	running bool
	clients int
	rooms   int
}

func (f *fakeConnections) ClientCount() int { return f.clients }
func (f *fakeConnections) RoomCount() int   { return f.rooms }
func (f *fakeConnections) Running() bool    { return f.running }

type fakeNotices struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeNotices) Publish(_ context.Context, text string) (models.Notice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return models.Notice{}, f.err
	}
	f.sent = append(f.sent, text)
	return models.Notice{Message: text, SentAt: time.Now().UTC()}, nil
}

func (f *fakeNotices) Transport() string { return "gochannel" }

type testServer struct {
	handler http.Handler
	store   store.Store
	conns   *fakeConnections
	notices *fakeNotices
}

func newTestServer(t *testing.T, cfg *ChiMiddlewareConfig) *testServer {
	t.Helper()
	if cfg == nil {
		cfg = DefaultChiMiddlewareConfig()
		cfg.RateLimitDisabled = true
	}
	s := store.NewMemoryStore()
	t.Cleanup(func() { _ = s.Close() })
	conns := &fakeConnections{running: true, clients: 3, rooms: 2}
	notices := &fakeNotices{}

	h := NewHandler(s, conns, notices)
	ws := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	return &testServer{
		handler: NewRouter(h, NewChiMiddleware(cfg), ws).SetupChi(),
		store:   s,
		conns:   conns,
		notices: notices,
	}
}

func (ts *testServer) do(t *testing.T, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *models.APIError {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	if resp.Status != "error" || resp.Error == nil {
		t.Fatalf("response = %s, want an error envelope", rec.Body.String())
	}
	return resp.Error
}

func TestCreateMessage(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/events/7/messages",
		`{"message":"Bring gloves","event_id":7,"user_id":3,"user_name":"Ada"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var got models.ChatMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.ID <= 0 || got.EventID != 7 || got.UserID != 3 || got.UserName != "Ada" || got.Message != "Bring gloves" {
		t.Errorf("created = %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at is zero")
	}
	if rec.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("missing request id header")
	}

	// event_id may be omitted from the body.
	rec = ts.do(t, http.MethodPost, "/api/events/7/messages",
		`{"message":"second","user_id":3,"user_name":"Ada"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status without event_id = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestCreateMessageRejected(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name     string
		path     string
		body     string
		wantCode string
	}{
		{"bad event id", "/api/events/abc/messages", `{"message":"x","user_id":1,"user_name":"A"}`, ErrCodeBadRequest},
		{"zero event id", "/api/events/0/messages", `{"message":"x","user_id":1,"user_name":"A"}`, ErrCodeBadRequest},
		{"invalid json", "/api/events/1/messages", `{"message":`, ErrCodeBadRequest},
		{"empty message", "/api/events/1/messages", `{"message":"","user_id":1,"user_name":"A"}`, ErrCodeValidationFailed},
		{"blank message", "/api/events/1/messages", `{"message":"   ","user_id":1,"user_name":"A"}`, ErrCodeValidationFailed},
		{"long message", "/api/events/1/messages", `{"message":"` + strings.Repeat("a", 2001) + `","user_id":1,"user_name":"A"}`, ErrCodeValidationFailed},
		{"missing user", "/api/events/1/messages", `{"message":"x","user_name":"A"}`, ErrCodeValidationFailed},
		{"missing name", "/api/events/1/messages", `{"message":"x","user_id":1}`, ErrCodeValidationFailed},
		{"event mismatch", "/api/events/1/messages", `{"message":"x","event_id":2,"user_id":1,"user_name":"A"}`, ErrCodeValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, tt.path, tt.body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400; body = %s", rec.Code, rec.Body.String())
			}
			if apiErr := decodeError(t, rec); apiErr.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", apiErr.Code, tt.wantCode)
			}
		})
	}

	msgs, err := ts.store.List(context.Background(), models.MessageQuery{EventID: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("rejected requests stored %d messages", len(msgs))
	}
}

func TestListMessages(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three"} {
		if _, err := ts.store.Create(ctx, 5, models.NewChatMessage{UserID: 1, UserName: "Ada", Message: text}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := ts.store.Create(ctx, 6, models.NewChatMessage{UserID: 1, UserName: "Ada", Message: "other"}); err != nil {
		t.Fatal(err)
	}

	list := func(path string) []models.ChatMessage {
		t.Helper()
		rec := ts.do(t, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s status = %d, body = %s", path, rec.Code, rec.Body.String())
		}
		var out []models.ChatMessage
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatal(err)
		}
		return out
	}

	all := list("/api/events/5/messages")
	if len(all) != 3 || all[0].Message != "one" || all[2].Message != "three" {
		t.Fatalf("list = %+v", all)
	}
	for i := 1; i < len(all); i++ {
		if all[i].ID <= all[i-1].ID {
			t.Errorf("ids not ascending: %d then %d", all[i-1].ID, all[i].ID)
		}
	}

	if got := list("/api/events/5/messages?limit=2"); len(got) != 2 {
		t.Errorf("limit=2 returned %d", len(got))
	}
	after := list("/api/events/5/messages?after_id=" + itoa(all[0].ID))
	if len(after) != 2 || after[0].Message != "two" {
		t.Errorf("after_id list = %+v", after)
	}

	rec := ts.do(t, http.MethodGet, "/api/events/99/messages", "", nil)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("empty history body = %q, want []", rec.Body.String())
	}

	for _, q := range []string{"limit=abc", "limit=-1", "after_id=x"} {
		rec := ts.do(t, http.MethodGet, "/api/events/5/messages?"+q, "", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("?%s status = %d, want 400", q, rec.Code)
		}
	}
}

func TestGetMessage(t *testing.T) {
	ts := newTestServer(t, nil)
	m, err := ts.store.Create(context.Background(), 5, models.NewChatMessage{UserID: 1, UserName: "Ada", Message: "bring water"})
	if err != nil {
		t.Fatal(err)
	}

	rec := ts.do(t, http.MethodGet, "/api/events/5/messages/"+itoa(m.ID), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var got models.ChatMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != m.ID || got.Message != "bring water" || got.EventID != 5 {
		t.Errorf("message = %+v", got)
	}

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantErr  string
	}{
		{"other event", "/api/events/6/messages/" + itoa(m.ID), http.StatusNotFound, ErrCodeNotFound},
		{"missing id", "/api/events/5/messages/" + itoa(m.ID+100), http.StatusNotFound, ErrCodeNotFound},
		{"bad id", "/api/events/5/messages/abc", http.StatusBadRequest, ErrCodeBadRequest},
		{"zero id", "/api/events/5/messages/0", http.StatusBadRequest, ErrCodeBadRequest},
		{"bad event", "/api/events/x/messages/1", http.StatusBadRequest, ErrCodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodGet, tt.path, "", nil)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if apiErr := decodeError(t, rec); apiErr.Code != tt.wantErr {
				t.Errorf("code = %q, want %q", apiErr.Code, tt.wantErr)
			}
		})
	}
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

type failingStore struct {
	store.Store
}

func (failingStore) List(context.Context, models.MessageQuery) ([]models.ChatMessage, error) {
	return nil, errors.New("disk on fire")
}

func (failingStore) Create(context.Context, int64, models.NewChatMessage) (models.ChatMessage, error) {
	return models.ChatMessage{}, errors.New("disk on fire")
}

func (failingStore) Get(context.Context, int64, int64) (models.ChatMessage, error) {
	return models.ChatMessage{}, errors.New("disk on fire")
}

func (failingStore) Ping(context.Context) error { return errors.New("disk on fire") }

func TestStoreFailuresMapToDatabaseError(t *testing.T) {
	cfg := DefaultChiMiddlewareConfig()
	cfg.RateLimitDisabled = true
	fs := failingStore{Store: store.NewMemoryStore()}
	h := NewRouter(NewHandler(fs, &fakeConnections{running: true}, nil), NewChiMiddleware(cfg), nil).SetupChi()

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/api/events/1/messages", ""},
		{http.MethodGet, "/api/events/1/messages/1", ""},
		{http.MethodPost, "/api/events/1/messages", `{"message":"x","user_id":1,"user_name":"A"}`},
	} {
		var body io.Reader
		if tc.body != "" {
			body = strings.NewReader(tc.body)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, body))
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("%s %s status = %d", tc.method, tc.path, rec.Code)
		}
		if apiErr := decodeError(t, rec); apiErr.Code != ErrCodeDatabaseError {
			t.Errorf("%s %s code = %q", tc.method, tc.path, apiErr.Code)
		}
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ready with failing store = %d", rec.Code)
	}
}

func TestPostNotice(t *testing.T) {
	cfg := DefaultChiMiddlewareConfig()
	cfg.RateLimitDisabled = true
	cfg.AdminToken = "s3cret"
	ts := newTestServer(t, cfg)

	rec := ts.do(t, http.MethodPost, "/api/v1/notices", `{"message":"Server restarting"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("without token status = %d", rec.Code)
	}
	rec = ts.do(t, http.MethodPost, "/api/v1/notices", `{"message":"Server restarting"}`,
		http.Header{"Authorization": {"Bearer wrong"}})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d", rec.Code)
	}

	auth := http.Header{"Authorization": {"Bearer s3cret"}}
	rec = ts.do(t, http.MethodPost, "/api/v1/notices", `{"message":"Server restarting"}`, auth)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(ts.notices.sent) != 1 || ts.notices.sent[0] != "Server restarting" {
		t.Errorf("published = %v", ts.notices.sent)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/notices", `{"message":""}`, auth)
	if rec.Code != http.StatusBadRequest || decodeError(t, rec).Code != ErrCodeValidationFailed {
		t.Errorf("empty notice status = %d", rec.Code)
	}

	ts.notices.err = errors.New("bus down")
	rec = ts.do(t, http.MethodPost, "/api/v1/notices", `{"message":"again"}`, auth)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("bus failure status = %d", rec.Code)
	}
}

func TestPostNoticeWithoutBus(t *testing.T) {
	cfg := DefaultChiMiddlewareConfig()
	cfg.RateLimitDisabled = true
	h := NewRouter(NewHandler(store.NewMemoryStore(), &fakeConnections{running: true}, nil), NewChiMiddleware(cfg), nil).SetupChi()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/notices", strings.NewReader(`{"message":"hi"}`)))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/v1/health/live", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("live = %d", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/health/ready", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ready = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Status string              `json:"status"`
		Data   models.HealthStatus `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Data.StoreOK || resp.Data.Store != store.DriverMemory || resp.Data.Clients != 3 || resp.Data.Rooms != 2 {
		t.Errorf("ready data = %+v", resp.Data)
	}
	if resp.Data.NoticeBus != "gochannel" {
		t.Errorf("notice bus = %q", resp.Data.NoticeBus)
	}

	ts.conns.running = false
	rec = ts.do(t, http.MethodGet, "/api/v1/health/ready", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ready with stopped registry = %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := DefaultChiMiddlewareConfig()
	cfg.RateLimitRequests = 2
	cfg.RateLimitWindow = time.Minute
	ts := newTestServer(t, cfg)

	before := testutil.ToFloat64(metrics.APIRateLimitHits.WithLabelValues("messages"))
	for i := 0; i < 2; i++ {
		if rec := ts.do(t, http.MethodGet, "/api/events/1/messages", "", nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	rec := ts.do(t, http.MethodGet, "/api/events/1/messages", "", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d", rec.Code)
	}
	if decodeError(t, rec).Code != ErrCodeTooManyRequests {
		t.Error("rate limit response is not enveloped")
	}
	if got := testutil.ToFloat64(metrics.APIRateLimitHits.WithLabelValues("messages")); got != before+1 {
		t.Errorf("rate limit hits = %v, want %v", got, before+1)
	}
}

func TestMiscRoutes(t *testing.T) {
	ts := newTestServer(t, nil)

	if rec := ts.do(t, http.MethodGet, "/ws", "", nil); rec.Code != http.StatusTeapot {
		t.Errorf("/ws status = %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/metrics", "", nil); rec.Code != http.StatusOK {
		t.Errorf("/metrics status = %d", rec.Code)
	}
	rec := ts.do(t, http.MethodGet, "/nope", "", nil)
	if rec.Code != http.StatusNotFound || decodeError(t, rec).Code != ErrCodeNotFound {
		t.Errorf("unknown route status = %d", rec.Code)
	}
}

func TestBearerMatches(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{"Bearer tok", true},
		{"bearer tok", true},
		{"Bearer  tok ", true},
		{"Bearer other", false},
		{"Basic tok", false},
		{"Bearer ", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := bearerMatches(tt.header, "tok"); got != tt.want {
			t.Errorf("bearerMatches(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}
