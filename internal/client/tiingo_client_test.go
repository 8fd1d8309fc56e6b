package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"services/price-ingest-service/internal/config"

	"go.uber.org/zap"
)

func newTestClient(baseURL string) *TiingoClient {
	return NewTiingoClient(config.ProviderConfig{
		BaseURL: baseURL,
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
	}, zap.NewNop())
}

func TestGetDailyPrices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/tiingo/daily/MSFT/prices") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Token test-key" {
			t.Errorf("Authorization = %q, want token header", got)
		}
		q := r.URL.Query()
		if q.Get("startDate") != "2026-02-28" || q.Get("endDate") != "2026-03-02" {
			t.Errorf("date range = %s..%s", q.Get("startDate"), q.Get("endDate"))
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"date":"2026-03-02T00:00:00.000Z","open":100.1,"high":101.5,"low":99.8,"close":101.0,"adjClose":100.2,"volume":1500000}
		]`))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	bars, err := c.GetDailyPrices(context.Background(),
		"MSFT",
		time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("GetDailyPrices() = %v", err)
	}

	if len(bars) != 1 {
		t.Fatalf("got %d bars, want 1", len(bars))
	}
	bar := bars[0]
	if bar.Close == nil || *bar.Close != 101.0 {
		t.Errorf("close = %v, want 101.0", bar.Close)
	}
	if bar.AdjClose == nil || *bar.AdjClose != 100.2 {
		t.Errorf("adjClose = %v, want 100.2", bar.AdjClose)
	}
	if bar.Volume == nil || *bar.Volume != 1500000 {
		t.Errorf("volume = %v, want 1500000", bar.Volume)
	}
	if bar.Date.UTC().Format("2006-01-02") != "2026-03-02" {
		t.Errorf("date = %v", bar.Date)
	}
}

func TestGetDailyPrices_NullFieldsSurvive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"date":"2026-03-02T00:00:00.000Z","close":101.0,"adjClose":null,"volume":null}]`))
	}))
	defer server.Close()

	bars, err := newTestClient(server.URL).GetDailyPrices(context.Background(),
		"MSFT", time.Now().AddDate(0, 0, -1), time.Now())
	if err != nil {
		t.Fatalf("GetDailyPrices() = %v", err)
	}
	if bars[0].AdjClose != nil {
		t.Errorf("adjClose = %v, want nil for a null field", *bars[0].AdjClose)
	}
	if bars[0].Open != nil {
		t.Errorf("open = %v, want nil for an absent field", *bars[0].Open)
	}
}

func TestGetIntradayPrices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/iex/AAPL/prices") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("resampleFreq"); got != "5min" {
			t.Errorf("resampleFreq = %q, want 5min", got)
		}

		w.Write([]byte(`[
			{"date":"2026-03-02T15:30:00.000Z","open":210.0,"high":210.4,"low":209.9,"close":210.2,"volume":32000},
			{"date":"2026-03-02T15:35:00.000Z","open":210.2,"high":210.8,"low":210.1,"close":210.7,"volume":28000}
		]`))
	}))
	defer server.Close()

	bars, err := newTestClient(server.URL).GetIntradayPrices(context.Background(),
		"AAPL", time.Now().Add(-time.Hour), time.Now(), "5min")
	if err != nil {
		t.Fatalf("GetIntradayPrices() = %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("got %d bars, want 2", len(bars))
	}
	if bars[1].Close == nil || *bars[1].Close != 210.7 {
		t.Errorf("second close = %v, want 210.7", bars[1].Close)
	}
}

func TestGet_NonOKStatusIncludesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"detail":"You have run out of requests"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).GetDailyPrices(context.Background(),
		"MSFT", time.Now().AddDate(0, 0, -1), time.Now())
	if err == nil {
		t.Fatal("GetDailyPrices() = nil, want error for 429")
	}
	if !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "run out of requests") {
		t.Errorf("error %q missing status and body", err)
	}
}
