package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-analytics/database"
	"options-analytics/interfaces"
	"options-analytics/services"
)

type stubProvider struct {
	catalogs map[string][]interfaces.RawInstrument
	quotes   map[string]interfaces.QuoteRecord
	spots    map[string]*float64
}

func (p *stubProvider) FetchInstruments(_ context.Context, exchange string) ([]interfaces.RawInstrument, error) {
	return p.catalogs[exchange], nil
}

func (p *stubProvider) FetchQuotes(_ context.Context, symbols []string) (map[string]interfaces.QuoteRecord, error) {
	out := make(map[string]interfaces.QuoteRecord)
	for _, s := range symbols {
		if q, ok := p.quotes[s]; ok {
			out[s] = q
		}
	}
	return out, nil
}

func (p *stubProvider) FetchSpot(_ context.Context, symbols []string) (map[string]*float64, error) {
	out := make(map[string]*float64)
	for _, s := range symbols {
		if v, ok := p.spots[s]; ok {
			out[s] = v
		}
	}
	return out, nil
}

func (p *stubProvider) SpotSymbol(underlying string) string {
	return services.KiteSpotSymbol(underlying)
}

func ptr[T any](v T) *T {
	return &v
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store, err := database.NewLocalStorage(filepath.Join(t.TempDir(), "options.db"), database.StorageOptions{}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	expiry := time.Now().UTC().AddDate(0, 0, 10).Format("2006-01-02")
	provider := &stubProvider{
		catalogs: map[string][]interfaces.RawInstrument{
			"NFO": {
				{"instrument_token": "1001", "exchange": "NFO", "tradingsymbol": "NIFTY24000CE", "name": "NIFTY", "strike": "24000", "expiry": expiry, "instrument_type": "CE", "lot_size": "75"},
				{"instrument_token": "1002", "exchange": "NFO", "tradingsymbol": "NIFTY24000PE", "name": "NIFTY", "strike": "24000", "expiry": expiry, "instrument_type": "PE", "lot_size": "75"},
			},
			"NSE": {
				{"instrument_token": "256265", "exchange": "NSE", "tradingsymbol": "NIFTY 50", "name": "NIFTY 50", "segment": "INDICES", "instrument_type": "EQ"},
				{"instrument_token": "738561", "exchange": "NSE", "tradingsymbol": "RELIANCE", "name": "RELIANCE INDUSTRIES", "segment": "NSE", "instrument_type": "EQ"},
			},
		},
		quotes: map[string]interfaces.QuoteRecord{
			"NIFTY24000CE": {LastPrice: ptr(150.5)},
			"NIFTY24000PE": {LastPrice: ptr(120.0)},
		},
		spots: map[string]*float64{"NSE:NIFTY 50": ptr(24050.0)},
	}

	journal := services.NewRunJournal(filepath.Join(t.TempDir(), "runs"), logger)
	options := services.NewOptionsService(provider, store, journal, services.OptionsServiceConfig{RiskFreeRate: 0.07}, logger)
	trend := services.NewTrendService(store, logger)
	stocks := services.NewStockService(provider, store, []string{"NSE"}, logger)

	return NewRouter(Handlers{
		Options: NewOptionsController(options, trend, logger),
		Stocks:  NewStockController(stocks),
		Runs:    NewRunController(journal),
	}, logger)
}

func doRequest(t *testing.T, router http.Handler, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t)

	code, body := doRequest(t, router, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestOptionsRoutes(t *testing.T) {
	router := newTestRouter(t)

	code, body := doRequest(t, router, http.MethodPost, "/api/options/process", map[string]string{"tradingsymbol": "Nifty 50"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "NIFTY", body["tradingsymbol"])
	assert.Equal(t, float64(2), body["option_contracts"])
	assert.Equal(t, float64(2), body["inserted_snapshots"])
	assert.NotEmpty(t, body["run_id"])

	t.Run("process validation", func(t *testing.T) {
		code, _ := doRequest(t, router, http.MethodPost, "/api/options/process", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, code)

		code, body := doRequest(t, router, http.MethodPost, "/api/options/process", map[string]string{"tradingsymbol": "   "})
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "tradingsymbol cannot be empty", body["error"])

		code, _ = doRequest(t, router, http.MethodPost, "/api/options/process", map[string]string{"tradingsymbol": "TCS"})
		assert.Equal(t, http.StatusNotFound, code)
	})

	var instrumentID float64
	t.Run("latest", func(t *testing.T) {
		code, body := doRequest(t, router, http.MethodGet, "/api/options/latest?tradingsymbol=nifty", nil)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, "NIFTY", body["tradingsymbol"])
		assert.Equal(t, float64(2), body["count"])

		data := body["data"].([]any)
		first := data[0].(map[string]any)
		assert.Equal(t, "NIFTY24000CE", first["tradingsymbol"])
		assert.NotNil(t, first["implied_volatility"])
		instrumentID = first["option_instrument_id"].(float64)

		code, _ = doRequest(t, router, http.MethodGet, "/api/options/latest", nil)
		assert.Equal(t, http.StatusBadRequest, code)

		code, body = doRequest(t, router, http.MethodGet, "/api/options/latest?tradingsymbol=BANKNIFTY", nil)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, float64(0), body["count"])
	})

	t.Run("trend", func(t *testing.T) {
		code, body := doRequest(t, router, http.MethodGet, fmt.Sprintf("/api/options/trend?option_instrument_id=%.0f&days=7", instrumentID), nil)
		require.Equal(t, http.StatusOK, code, body)
		assert.Equal(t, "NIFTY24000CE", body["tradingsymbol"])
		assert.Len(t, body["data_points"], 1)

		for _, path := range []string{
			"/api/options/trend",
			"/api/options/trend?option_instrument_id=abc",
			"/api/options/trend?option_instrument_id=0",
			"/api/options/trend?option_instrument_id=1&days=0",
			"/api/options/trend?option_instrument_id=1&days=400",
		} {
			code, _ := doRequest(t, router, http.MethodGet, path, nil)
			assert.Equal(t, http.StatusBadRequest, code, path)
		}

		code, _ = doRequest(t, router, http.MethodGet, "/api/options/trend?option_instrument_id=9999", nil)
		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("runs", func(t *testing.T) {
		code, body := doRequest(t, router, http.MethodGet, "/api/runs/current", nil)
		require.Equal(t, http.StatusOK, code)
		summary := body["summary"].(map[string]any)
		assert.Equal(t, float64(2), summary["total_runs"])
		assert.Equal(t, float64(1), summary["failed_runs"])

		code, body = doRequest(t, router, http.MethodGet, "/api/runs", nil)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, float64(1), body["count"])

		code, _ = doRequest(t, router, http.MethodGet, "/api/runs/not-a-date", nil)
		assert.Equal(t, http.StatusBadRequest, code)

		code, _ = doRequest(t, router, http.MethodGet, "/api/runs/2000-01-01", nil)
		assert.Equal(t, http.StatusNotFound, code)
	})
}

func TestStockRoutes(t *testing.T) {
	router := newTestRouter(t)

	code, body := doRequest(t, router, http.MethodGet, "/api/stocks/count", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["count"])

	code, body = doRequest(t, router, http.MethodPost, "/api/stocks/refresh", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), body["extracted"])
	assert.Equal(t, float64(3), body["underlyings"])

	code, body = doRequest(t, router, http.MethodPost, "/api/stocks/search", SearchRequest{Query: "reliance"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["count"])

	code, body = doRequest(t, router, http.MethodPost, "/api/stocks/search", SearchRequest{Query: "zzz"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{}, body["results"])

	code, _ = doRequest(t, router, http.MethodPost, "/api/stocks/search", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)
}
