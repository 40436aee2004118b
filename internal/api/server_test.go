package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"chainPulse/internal/model"
	"chainPulse/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	ctx := context.Background()
	if err := mem.Dispatch(ctx, store.SetLatestBlock{ChainID: 137, BlockNumber: 105}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if err := mem.Dispatch(ctx, store.SetPrice(model.PriceSnapshot{ChainID: 137, Asset: model.AssetNative, Price: decimal.RequireFromString("0.7")})); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "chainpulse_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	return NewServer(mem, reg, nil), mem
}

func TestGetBlock(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/blocks/137", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}

	var body struct {
		ChainID     uint64 `json:"chain_id"`
		BlockNumber uint64 `json:"block_number"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ChainID != 137 || body.BlockNumber != 105 {
		t.Fatalf("body mismatch: %+v", body)
	}
}

func TestGetBlockErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/blocks/1", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown chain status: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/blocks/matic", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid chain status: %d", rec.Code)
	}
}

func TestGetState(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/state", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}

	var state store.State
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if state.BlockNumber[137] != 105 {
		t.Fatalf("block mismatch: %+v", state.BlockNumber)
	}
	if state.NativePrice == nil || !state.NativePrice.Price.Equal(decimal.RequireFromString("0.7")) {
		t.Fatalf("native price mismatch: %+v", state.NativePrice)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "chainpulse_test_total 1") {
		t.Fatalf("metric missing from body: %s", rec.Body.String())
	}
}
