package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/halfnote/halfnote/internal/cache"
	"github.com/halfnote/halfnote/internal/config"
	"github.com/halfnote/halfnote/internal/devicekey"
	"github.com/halfnote/halfnote/internal/enrichment"
	memodomain "github.com/halfnote/halfnote/internal/memo/domain"
	"github.com/halfnote/halfnote/internal/memo/repository"
	pipelinedomain "github.com/halfnote/halfnote/internal/pipeline/domain"
	"github.com/halfnote/halfnote/internal/queue"
	quotadomain "github.com/halfnote/halfnote/internal/quota/domain"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type stubPipeline struct {
	result  *pipelinedomain.PipelineResult
	err     error
	lastReq pipelinedomain.CaptureRequest
}

func (s *stubPipeline) Run(ctx context.Context, req pipelinedomain.CaptureRequest) (*pipelinedomain.PipelineResult, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubQuota struct {
	admitted bool
	snapshot quotadomain.Snapshot
}

func (s *stubQuota) CheckAndReserve(ctx context.Context, username string, estimatedAudioSeconds float64) (quotadomain.Decision, error) {
	return quotadomain.Decision{Admitted: s.admitted, Snapshot: s.snapshot}, nil
}

func (s *stubQuota) Commit(ctx context.Context, username string, transcriptLength int, durationSeconds float64) error {
	return nil
}

func (s *stubQuota) CurrentSnapshot(ctx context.Context, username string) (quotadomain.Snapshot, error) {
	return s.snapshot, nil
}

type noopDispatcher struct{}

func (noopDispatcher) EnqueueMany(context.Context, []queue.Task) error { return nil }

func TestAdminRoutesRequireBearer(t *testing.T) {
	srv := newTestServer(t, "server_admin")
	router := srv.Router()

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic secret", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/enrichment/backfill", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestAdminRejectedWhenTokenUnset(t *testing.T) {
	srv := newTestServer(t, "server_admin_unset")
	srv.cfg.AdminToken = ""
	router := srv.Router()

	req := httptest.NewRequest(http.MethodPost, "/enrichment/backfill", nil)
	req.Header.Set("Authorization", "Bearer anything")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with no admin token configured, got %d", w.Code)
	}
}

func TestDeviceCaptureAuth(t *testing.T) {
	srv := newTestServer(t, "server_device")
	seedDeviceKey(t, srv.db, "dev-key-1", "alice")
	router := srv.Router()

	req := httptest.NewRequest(http.MethodPost, "/capture/device", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without api key, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/capture/device", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", "wrong-key")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with unknown api key, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/capture/device", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", "dev-key-1")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid api key, got %d: %s", w.Code, w.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if _, ok := body["quota"]; !ok {
		t.Fatalf("device capture response must carry a quota snapshot")
	}

	pipeline := srv.pipelineSvc.(*stubPipeline)
	if pipeline.lastReq.Metadata.Username != "alice" {
		t.Fatalf("username must come from the device key, got %q", pipeline.lastReq.Metadata.Username)
	}
	if pipeline.lastReq.Metadata.Source != memodomain.SourceDevice {
		t.Fatalf("device captures must be forced to the device source")
	}
}

func TestDeviceCaptureQuotaExceeded(t *testing.T) {
	srv := newTestServer(t, "server_quota")
	srv.quotaSvc = &stubQuota{admitted: false}
	seedDeviceKey(t, srv.db, "dev-key-2", "alice")
	router := srv.Router()

	req := httptest.NewRequest(http.MethodPost, "/capture/device", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", "dev-key-2")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 when quota rejects, got %d", w.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if _, ok := body["quota"]; !ok {
		t.Fatalf("429 must carry the quota snapshot for client backoff")
	}
}

func TestCaptureRateLimit(t *testing.T) {
	srv := newTestServer(t, "server_ratelimit")
	srv.limiter = newRateLimiter(1, time.Minute)
	router := srv.Router()

	body := `{"username":"alice","input_type":"text","transcript":"hello"}`
	req := httptest.NewRequest(http.MethodPost, "/capture", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d: %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/capture", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request should hit the rate limit, got %d", w.Code)
	}
}

func TestCaptureValidationMapsTo400(t *testing.T) {
	srv := newTestServer(t, "server_validation")
	srv.pipelineSvc = &stubPipeline{err: pipelinedomain.ErrValidation}
	router := srv.Router()

	req := httptest.NewRequest(http.MethodPost, "/capture", bytes.NewBufferString(`{"username":"alice","input_type":"text","transcript":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestRequeueInvalidMemoID(t *testing.T) {
	srv := newTestServer(t, "server_requeue")
	router := srv.Router()

	req := httptest.NewRequest(http.MethodPost, "/enrichment/requeue", bytes.NewBufferString(`{"memoId":"not-a-snowflake"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestBackfillDisabledMapsTo500(t *testing.T) {
	srv := newTestServer(t, "server_backfill_disabled")
	srv.enrichmentSvc = enrichment.NewService(enrichment.ServiceParam{
		Log:        zap.NewNop(),
		Cfg:        enrichment.Config{SyncCompletion: false},
		MemoRepo:   repository.Provide(srv.db),
		Dispatcher: noopDispatcher{},
	})
	router := srv.Router()

	req := httptest.NewRequest(http.MethodPost, "/enrichment/backfill", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 when sync completion is off, got %d", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, "server_healthz")
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func newTestServer(t *testing.T, name string) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	statements := []string{
		`CREATE TABLE IF NOT EXISTS memos (
			id BIGINT PRIMARY KEY,
			username TEXT NOT NULL,
			source TEXT NOT NULL,
			input_type TEXT NOT NULL,
			device_id TEXT,
			transcript TEXT NOT NULL,
			transcription_id TEXT NOT NULL,
			category TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 0,
			extracted TEXT,
			tags TEXT,
			starred BOOLEAN NOT NULL DEFAULT false,
			needs_review BOOLEAN NOT NULL DEFAULT false,
			enrichment_processed_at DATETIME,
			deleted_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS device_keys (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL,
			key_hash TEXT NOT NULL UNIQUE,
			label TEXT,
			is_active BOOLEAN NOT NULL DEFAULT true,
			expires_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create table: %v", err)
		}
	}

	cfg := config.Config{
		Environment:       "test",
		AdminToken:        "secret",
		CaptureRateLimit:  100,
		CaptureRateWindow: time.Minute,
	}
	enrichmentSvc := enrichment.NewService(enrichment.ServiceParam{
		Log:        zap.NewNop(),
		Cfg:        enrichment.Config{SyncCompletion: true},
		MemoRepo:   repository.Provide(db),
		Dispatcher: noopDispatcher{},
	})
	return &Server{
		cfg: cfg,
		db:  db,
		log: zap.NewNop(),
		pipelineSvc: &stubPipeline{result: &pipelinedomain.PipelineResult{
			Transcript:      "hello",
			TranscriptionID: "txn",
			Memos:           []memodomain.Memo{},
			Provider:        "openai",
		}},
		quotaSvc:      &stubQuota{admitted: true},
		enrichmentSvc: enrichmentSvc,
		keyCache:      cache.NewDeviceKeyCache(),
		limiter:       newRateLimiter(cfg.CaptureRateLimit, cfg.CaptureRateWindow),
	}
}

func seedDeviceKey(t *testing.T, db *gorm.DB, rawKey, username string) {
	t.Helper()
	err := db.Exec(
		`INSERT INTO device_keys (username, key_hash, is_active) VALUES (?, ?, true)`,
		username, devicekey.HashKey(rawKey),
	).Error
	if err != nil {
		t.Fatalf("seed device key: %v", err)
	}
}
