package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/jonasttaws/nova-sonic-training/adapters/model"
	"github.com/jonasttaws/nova-sonic-training/adapters/storage"
	"github.com/jonasttaws/nova-sonic-training/domain/repositories"
	"github.com/jonasttaws/nova-sonic-training/internal/auth"
	"github.com/jonasttaws/nova-sonic-training/internal/registry"
	ws "github.com/jonasttaws/nova-sonic-training/internal/websocket"
	"github.com/jonasttaws/nova-sonic-training/usecase"
)

func testServer(t *testing.T) (*Server, *echo.Echo, *storage.MemoryTranscriptRepository) {
	t.Helper()
	logger := zap.NewNop()
	reg := registry.New(4, logger)
	transcripts := storage.NewMemoryTranscriptRepository()
	coordinator := usecase.NewCoordinator(reg, model.NewMockTransport(), transcripts, logger)
	hub := ws.NewHub(coordinator, logger)
	go hub.Run()

	server := NewServer(hub, reg, transcripts, logger)
	e := echo.New()
	server.Register(e)
	return server, e, transcripts
}

func TestHandleHealth(t *testing.T) {
	_, e, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if body.Status != "healthy" {
		t.Errorf("unexpected status %q", body.Status)
	}
	if body.Sessions.Ceiling != 4 {
		t.Errorf("snapshot should report the ceiling, got %d", body.Sessions.Ceiling)
	}
}

func TestHandleScenariosAndVoices(t *testing.T) {
	_, e, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/scenarios", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var scenarios struct {
		Scenarios []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"scenarios"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &scenarios); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if len(scenarios.Scenarios) != 3 {
		t.Errorf("expected 3 scenarios, got %d", len(scenarios.Scenarios))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/voices", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var voices struct {
		Voices []struct {
			ID string `json:"id"`
		} `json:"voices"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &voices); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if len(voices.Voices) != 3 {
		t.Errorf("expected 3 voices, got %d", len(voices.Voices))
	}
}

func TestHandleSessionToken(t *testing.T) {
	_, e, _ := testServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/token", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}

	claims, err := auth.ValidateSessionToken(body.Token)
	if err != nil {
		t.Fatalf("issued token should validate: %v", err)
	}
	if claims.ClientID != body.ClientID {
		t.Errorf("token client id %q does not match response %q", claims.ClientID, body.ClientID)
	}
}

func TestHandleTranscripts(t *testing.T) {
	_, e, transcripts := testServer(t)

	saved := repositories.SessionTranscript{
		SessionID: "session-1",
		Scenario:  "vmware-migration",
		Voice:     "Joanna",
		StartedAt: time.Now().Add(-time.Minute),
		EndedAt:   time.Now(),
	}
	if err := transcripts.Save(context.Background(), saved); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transcripts/session-1", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/transcripts/missing", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing transcript should 404, got %d", rec.Code)
	}
}

func TestHandleWebSocket_RequiresToken(t *testing.T) {
	_, e, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing token should 401, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/ws?token=garbage", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("invalid token should 401, got %d", rec.Code)
	}
}
