package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"services/price-ingest-service/internal/model"
	"services/price-ingest-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// fakeReader serves canned bars and records requested arguments.
type fakeReader struct {
	bars      []model.PriceBar
	intraBars []model.PriceBarIntra

	gotSymbol   string
	gotInterval int
	gotStart    *time.Time
	gotEnd      *time.Time
	gotLimit    *int
}

func (f *fakeReader) LatestBar(_ context.Context, symbol, _ string) (*model.PriceBar, error) {
	f.gotSymbol = symbol
	if len(f.bars) == 0 {
		return nil, nil
	}
	return &f.bars[len(f.bars)-1], nil
}

func (f *fakeReader) GetHistory(_ context.Context, symbol, _ string, start, end *time.Time, _ string) ([]model.PriceBar, error) {
	f.gotSymbol = symbol
	f.gotStart, f.gotEnd = start, end
	return f.bars, nil
}

func (f *fakeReader) GetIntraHistory(_ context.Context, symbol, _ string, intervalSec int, start, end *time.Time, _ string, limit *int) ([]model.PriceBarIntra, error) {
	f.gotSymbol = symbol
	f.gotInterval = intervalSec
	f.gotStart, f.gotEnd = start, end
	f.gotLimit = limit
	return f.intraBars, nil
}

func newPriceRouter(reader *fakeReader) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := service.NewPriceQueryService(reader, []string{"MSFT", "AAPL"}, "tiingo", "tiingo_iex", 60, zap.NewNop())
	h := NewPriceHandler(svc, zap.NewNop())

	router := gin.New()
	router.GET("/prices/latest", h.GetLatest)
	router.GET("/prices/history", h.GetHistory)
	router.GET("/prices/intraday/history", h.GetIntradayHistory)
	return router
}

func TestGetHistory(t *testing.T) {
	close := 101.0
	reader := &fakeReader{bars: []model.PriceBar{
		{Symbol: "MSFT", Source: "tiingo", BarDate: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), Close: &close},
	}}
	router := newPriceRouter(reader)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/prices/history?symbol=msft&start=2026-01-01&end=2026-03-02", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if reader.gotSymbol != "MSFT" {
		t.Errorf("symbol = %q, want uppercased MSFT", reader.gotSymbol)
	}
	if reader.gotStart == nil || reader.gotStart.Format("2006-01-02") != "2026-01-01" {
		t.Errorf("start = %v, want 2026-01-01", reader.gotStart)
	}

	var resp struct {
		Data []model.PriceBar `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].Symbol != "MSFT" {
		t.Errorf("data = %+v, want the stored bar", resp.Data)
	}
}

func TestGetHistory_RequiresSymbol(t *testing.T) {
	router := newPriceRouter(&fakeReader{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/prices/history", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGetHistory_RejectsBadDates(t *testing.T) {
	router := newPriceRouter(&fakeReader{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/prices/history?symbol=MSFT&start=03-02-2026", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGetIntradayHistory_DefaultsInterval(t *testing.T) {
	reader := &fakeReader{}
	router := newPriceRouter(reader)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/prices/intraday/history?symbol=MSFT&limit=500", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if reader.gotInterval != 60 {
		t.Errorf("interval = %d, want configured default 60", reader.gotInterval)
	}
	if reader.gotLimit == nil || *reader.gotLimit != 500 {
		t.Errorf("limit = %v, want 500", reader.gotLimit)
	}
}

func TestGetIntradayHistory_RejectsBadLimit(t *testing.T) {
	router := newPriceRouter(&fakeReader{})

	for _, limit := range []string{"0", "-5", "100001", "abc"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/prices/intraday/history?symbol=MSFT&limit="+limit, nil)
		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: status = %d, want 400", limit, w.Code)
		}
	}
}

func TestGetLatest_AllConfiguredSymbols(t *testing.T) {
	close := 101.0
	reader := &fakeReader{bars: []model.PriceBar{
		{Symbol: "MSFT", Source: "tiingo", BarDate: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), Close: &close},
	}}
	router := newPriceRouter(reader)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/prices/latest", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Data []model.PriceBar `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	// Both configured symbols are queried; the fake returns a bar for each.
	if len(resp.Data) != 2 {
		t.Errorf("got %d bars, want one per configured symbol", len(resp.Data))
	}
}
