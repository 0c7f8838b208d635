package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unifex/riskcore/internal/circuit"
	"github.com/unifex/riskcore/internal/execution"
	"github.com/unifex/riskcore/internal/feed"
	"github.com/unifex/riskcore/internal/market"
	"github.com/unifex/riskcore/internal/risk"
	"github.com/unifex/riskcore/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer() (*Server, *feed.Store) {
	log := zap.NewNop()
	store := feed.NewStore()

	history := market.NewHistory(60)
	detector := market.NewDetector(market.DefaultDetectorConfig(), history, log)
	breaker := circuit.New(circuit.DefaultConfig(), detector, log)
	engine := risk.NewEngine(risk.DefaultConfig(), store, store, log)
	router := execution.NewRouter(store, log)
	guard := execution.NewSlippageGuard(execution.DefaultGuardConfig(), store, log)
	pairs := []market.Pair{{A: "BTC", B: "ETH", Expected: 0.75}}

	return NewServer(log, breaker, engine, router, guard, detector, pairs, store), store
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer()

	rec := doJSON(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestPushTick(t *testing.T) {
	s, store := newTestServer()

	rec := doJSON(t, s, http.MethodPost, "/api/v1/ticks", models.Tick{
		Symbol: "BTC", Price: 100, Bid: 99.9, Ask: 100.1, Volume: 10,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	tick, ok := store.LatestTick("BTC")
	require.True(t, ok)
	assert.Equal(t, 100.0, tick.Price)
	assert.False(t, tick.Timestamp.IsZero())
}

func TestPushTickRejectsMissingSymbol(t *testing.T) {
	s, _ := newTestServer()

	rec := doJSON(t, s, http.MethodPost, "/api/v1/ticks", models.Tick{Price: 100})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCircuitEndpoints(t *testing.T) {
	s, _ := newTestServer()

	rec := doJSON(t, s, http.MethodGet, "/api/v1/circuit", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/circuit/BTC", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoutePreview(t *testing.T) {
	s, store := newTestServer()
	store.SetQuotes("BTC", []models.VenueQuote{
		{Venue: "BINANCE", Symbol: "BTC", Bid: 49500, Ask: 49510, Liquidity: 5000},
		{Venue: "KRAKEN", Symbol: "BTC", Bid: 49480, Ask: 49520, Liquidity: 2000},
	})

	rec := doJSON(t, s, http.MethodPost, "/api/v1/route", map[string]interface{}{
		"symbol": "BTC", "quantity": 100, "side": "BUY",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Plans []execution.ExecutionPlan `json:"plans"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Plans)
}

func TestRoutePreviewNoVenues(t *testing.T) {
	s, _ := newTestServer()

	rec := doJSON(t, s, http.MethodPost, "/api/v1/route", map[string]interface{}{
		"symbol": "BTC", "quantity": 100, "side": "BUY",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRoutePreviewBadSide(t *testing.T) {
	s, _ := newTestServer()

	rec := doJSON(t, s, http.MethodPost, "/api/v1/route", map[string]interface{}{
		"symbol": "BTC", "quantity": 100, "side": "SIDEWAYS",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidateSlippage(t *testing.T) {
	s, store := newTestServer()
	store.SetTick(models.Tick{Symbol: "BTC", Price: 100, Bid: 99.9, Ask: 100.1, Timestamp: time.Now()})

	rec := doJSON(t, s, http.MethodPost, "/api/v1/execution/validate", map[string]interface{}{
		"symbol": "BTC", "side": "BUY", "quantity": 10, "expected_price": 100,
		"execution_strategy": "AGGRESSIVE",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result execution.ExecutionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, execution.StatusFull, result.Status)
	assert.True(t, result.Executed)
}

func TestValidateSlippageUnknownStrategy(t *testing.T) {
	s, store := newTestServer()
	store.SetTick(models.Tick{Symbol: "BTC", Price: 100, Bid: 99.9, Ask: 100.1, Timestamp: time.Now()})

	rec := doJSON(t, s, http.MethodPost, "/api/v1/execution/validate", map[string]interface{}{
		"symbol": "BTC", "side": "BUY", "quantity": 10, "expected_price": 100,
		"execution_strategy": "YOLO",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRiskDashboard(t *testing.T) {
	s, store := newTestServer()
	store.SetAccount(models.AccountSnapshot{
		UserID:  "u1",
		Balance: decimal.NewFromInt(100000),
		Positions: []models.Position{{
			Symbol:     "BTC",
			Quantity:   decimal.NewFromInt(1),
			EntryPrice: decimal.NewFromInt(50000),
		}},
	})
	store.SetTick(models.Tick{Symbol: "BTC", Price: 51000, Timestamp: time.Now()})

	rec := doJSON(t, s, http.MethodGet, "/api/v1/risk/u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap risk.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "u1", snap.UserID)
	assert.Greater(t, snap.VaR95, 0.0)
	require.Len(t, snap.Positions, 1)
	assert.InDelta(t, 1000.0, snap.Positions[0].UnrealizedPnL, 1e-6)
}

func TestPushAccountAndQuotes(t *testing.T) {
	s, store := newTestServer()

	rec := doJSON(t, s, http.MethodPut, "/api/v1/accounts/u1", map[string]interface{}{
		"balance": "5000",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	snap, err := store.Account(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", snap.UserID)

	rec = doJSON(t, s, http.MethodPut, "/api/v1/venues/BTC", []models.VenueQuote{
		{Venue: "BINANCE", Symbol: "BTC", Bid: 100, Ask: 101, Liquidity: 500},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, store.Quotes("BTC"), 1)
}

func TestCorrelations(t *testing.T) {
	s, _ := newTestServer()

	rec := doJSON(t, s, http.MethodGet, "/api/v1/correlations", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "correlation_matrix")
}
