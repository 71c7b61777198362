package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"futures-controller/internal/executor"
	"futures-controller/internal/state"
)

func testServer(t *testing.T) (*Server, *state.Store) {
	t.Helper()
	store := state.NewMemoryStore(zerolog.Nop())
	ledger := &executor.SignalLedger{}
	ledger.Record(12.5)
	s := NewServer(Options{
		Host:           "127.0.0.1",
		Port:           0,
		AllowedOrigins: "*",
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   5 * time.Second,
		Store:          store,
		Ledger:         ledger,
		Mode:           executor.ModeGhost,
		Logger:         zerolog.Nop(),
	})
	return s, store
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := testServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unexpected body: %v", err)
	}
	if body["mode"] != "ghost" {
		t.Errorf("expected mode ghost, got %v", body["mode"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	s, store := testServer(t)
	ctx := context.Background()
	if err := store.SetBalance(ctx, 10000); err != nil {
		t.Fatal(err)
	}
	if err := store.SetDailyTrades(ctx, 4, "2026-08-29"); err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	s.engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unexpected body: %v", err)
	}
	if body["balance"].(float64) != 10000 {
		t.Errorf("expected balance 10000, got %v", body["balance"])
	}
	if body["automation_enabled"].(bool) {
		t.Error("automation should default to disabled")
	}
	if body["daily_trade_count"].(float64) != 4 {
		t.Errorf("expected trade count 4, got %v", body["daily_trade_count"])
	}
}

func TestSignalQualityEndpoint(t *testing.T) {
	s, _ := testServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/signal-quality", nil)
	s.engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]float64
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unexpected body: %v", err)
	}
	if body["trades"] != 1 || body["win_rate"] != 100 {
		t.Errorf("ledger stats wrong: %+v", body)
	}
}

func TestPositionEndpointEmpty(t *testing.T) {
	s, _ := testServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/position", nil)
	s.engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
