package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dealerflow/structure-pipeline/internal/market"
)

func TestOptionChain_Success(t *testing.T) {
	at := time.Date(2025, 6, 2, 20, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Verify auth header
		auth := r.Header.Get("Authorization")
		if auth != "Bearer test-key" {
			t.Errorf("expected Bearer test-key, got %s", auth)
		}

		if r.URL.Path != "/v1/chains/SPY" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("at") == "" {
			t.Error("expected at query param")
		}

		spot := 450.0
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(market.OptionChainSnapshot{
			Symbol:       "SPY",
			SnapshotTime: at,
			Spot:         &spot,
		})
	}))
	defer server.Close()

	logger, _ := zap.NewDevelopment()
	client := NewClient(server.URL, "test-key", 10, 30*time.Second, 1*time.Second, 3, logger)

	snap, err := client.OptionChain(context.Background(), "SPY", at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if snap.Symbol != "SPY" {
		t.Errorf("unexpected symbol: %s", snap.Symbol)
	}
	if snap.Spot == nil || *snap.Spot != 450.0 {
		t.Errorf("unexpected spot: %v", snap.Spot)
	}
}

func TestDailyBars_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	logger, _ := zap.NewDevelopment()
	client := NewClient(server.URL, "test-key", 10, 30*time.Second, 1*time.Second, 0, logger)

	_, err := client.DailyBars(context.Background(), "SPY", time.Now(), 90)
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetJSON_RetriesOnServerError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	logger, _ := zap.NewDevelopment()
	client := NewClient(server.URL, "test-key", 10, 30*time.Second, 10*time.Millisecond, 2, logger)

	_, err := client.DailyBars(context.Background(), "SPY", time.Now(), 90)
	if err == nil {
		t.Error("expected error after exhausting retries")
	}

	// Should have attempted 3 times (initial + 2 retries)
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestGetJSON_AuthFailedNotRetried(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	logger, _ := zap.NewDevelopment()
	client := NewClient(server.URL, "bad-key", 10, 30*time.Second, 10*time.Millisecond, 3, logger)

	_, err := client.DailyBars(context.Background(), "SPY", time.Now(), 90)
	if err != ErrAuthFailed {
		t.Errorf("expected ErrAuthFailed, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}
