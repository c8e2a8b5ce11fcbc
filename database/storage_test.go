package database

import (
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-analytics/interfaces"
)

func newTestStorage(t *testing.T, opts StorageOptions) *LocalStorage {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store, err := NewLocalStorage(filepath.Join(t.TempDir(), "data", "options.db"), opts, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func ptr[T any](v T) *T {
	return &v
}

func testContract(token int64, strike float64, side interfaces.OptionSide, expiry time.Time) interfaces.OptionContract {
	return interfaces.OptionContract{
		InstrumentToken: token,
		Exchange:        "NFO",
		TradingSymbol:   "NIFTY24DEC" + decimalString(strike) + side.InstrumentType(),
		Name:            ptr("NIFTY"),
		Underlying:      "NIFTY",
		Strike:          strike,
		Expiry:          expiry,
		Side:            side,
		LotSize:         75,
		TickSize:        ptr(0.05),
		Segment:         ptr("NFO-OPT"),
		FetchDate:       time.Date(2024, 12, 16, 0, 0, 0, 0, time.UTC),
	}
}

func decimalString(f float64) string {
	return nullDecimal(&f).Decimal.String()
}

func TestLocalStorage_Stocks(t *testing.T) {
	store := newTestStorage(t, StorageOptions{})

	stocks := []interfaces.StockInstrument{
		{Exchange: "NSE", TradingSymbol: "RELIANCE", Name: ptr("RELIANCE INDUSTRIES"), InstrumentToken: 738561, Segment: ptr("NSE"), TickSize: ptr(0.05), LotSize: ptr(int64(1))},
		{Exchange: "NSE", TradingSymbol: "NIFTY 50", Name: ptr("NIFTY 50"), InstrumentToken: 256265, Segment: ptr("INDICES")},
		{Exchange: "NSE", TradingSymbol: "NIFTY BANK", Name: ptr("NIFTY BANK"), InstrumentToken: 260105, Segment: ptr("INDICES")},
		{Exchange: "NSE", TradingSymbol: "RELIANCE", Name: ptr("duplicate token"), InstrumentToken: 738561, Segment: ptr("NSE")},
	}
	require.NoError(t, store.UpsertStockInstruments(stocks))
	require.NoError(t, store.UpsertStockInstruments(stocks[:1]))

	count, err := store.CountStocks()
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	t.Run("case-insensitive partial match on name or symbol", func(t *testing.T) {
		found, err := store.SearchStocks("nifty", "", 10)
		require.NoError(t, err)
		require.Len(t, found, 2)
		assert.Equal(t, "NIFTY 50", found[0].TradingSymbol)
		assert.Equal(t, "NIFTY BANK", found[1].TradingSymbol)

		found, err = store.SearchStocks("industries", "", 10)
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "RELIANCE INDUSTRIES", *found[0].Name)
		require.NotNil(t, found[0].TickSize)
		assert.Equal(t, 0.05, *found[0].TickSize)
	})

	t.Run("segment filter and limit", func(t *testing.T) {
		found, err := store.SearchStocks("e", "NSE", 10)
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "RELIANCE", found[0].TradingSymbol)

		found, err = store.SearchStocks("nifty", "", 1)
		require.NoError(t, err)
		assert.Len(t, found, 1)
	})
}

func TestLocalStorage_OptionInstruments(t *testing.T) {
	store := newTestStorage(t, StorageOptions{InsertBatchSize: 2, LookupChunkSize: 2})
	expiry := time.Date(2024, 12, 26, 0, 0, 0, 0, time.UTC)

	contracts := []interfaces.OptionContract{
		testContract(101, 24000, interfaces.Call, expiry),
		testContract(102, 24000, interfaces.Put, expiry),
		testContract(103, 24100, interfaces.Call, expiry),
		testContract(101, 24000, interfaces.Call, expiry),
	}
	require.NoError(t, store.UpsertOptionInstruments(contracts))
	require.NoError(t, store.UpsertOptionInstruments(contracts[:2]))

	ids, err := store.OptionInstrumentIDsByToken([]int64{101, 102, 103, 999})
	require.NoError(t, err)
	assert.Len(t, ids, 3)
	assert.NotContains(t, ids, int64(999))

	row, err := store.GetOptionInstrument(ids[102])
	require.NoError(t, err)
	assert.Equal(t, "NIFTY24DEC24000PE", row.TradingSymbol)
	assert.Equal(t, "PE", row.InstrumentType)
	assert.Equal(t, 24000.0, row.Strike)
	assert.Equal(t, int64(75), row.LotSize)
	assert.True(t, expiry.Equal(row.Expiry))

	_, err = store.GetOptionInstrument(9999)
	assert.True(t, errors.Is(err, interfaces.ErrNotFound))
}

func TestLocalStorage_Snapshots(t *testing.T) {
	store := newTestStorage(t, StorageOptions{})
	expiry := time.Date(2024, 12, 26, 0, 0, 0, 0, time.UTC)

	call := testContract(201, 24000, interfaces.Call, expiry)
	put := testContract(202, 24000, interfaces.Put, expiry)
	require.NoError(t, store.UpsertOptionInstruments([]interfaces.OptionContract{call, put}))
	ids, err := store.OptionInstrumentIDsByToken([]int64{201, 202})
	require.NoError(t, err)

	first := time.Date(2024, 12, 16, 4, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	row := func(c interfaces.OptionContract, at time.Time, last float64, iv *float64) interfaces.SnapshotRow {
		snap := interfaces.Snapshot{
			Contract:     c,
			SnapshotTime: at,
			Observation: interfaces.MarketObservation{
				UnderlyingPrice: ptr(24050.0),
				LastPrice:       ptr(last),
				BidQty:          ptr(int64(750)),
				OpenInterest:    ptr(int64(120000)),
			},
		}
		if iv != nil {
			snap.Analytics = interfaces.AnalyticsResult{ImpliedVolatility: iv, Delta: ptr(0.55), Gamma: ptr(0.0008), Theta: ptr(-21.5), Vega: ptr(12.3)}
		}
		return interfaces.SnapshotRow{OptionInstrumentID: ids[c.InstrumentToken], RunID: "run-1", Snapshot: snap}
	}

	saved, err := store.SaveSnapshots([]interfaces.SnapshotRow{
		row(call, first, 150.5, ptr(0.12)),
		row(put, first, 120.0, nil),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, saved)

	t.Run("same instrument and time is stored once", func(t *testing.T) {
		saved, err := store.SaveSnapshots([]interfaces.SnapshotRow{
			row(call, first, 151.0, ptr(0.13)),
			row(call, second, 160.0, ptr(0.14)),
			row(call, second, 161.0, ptr(0.15)),
		})
		require.NoError(t, err)
		assert.Equal(t, 1, saved)
	})

	t.Run("latest chain", func(t *testing.T) {
		chain, err := store.LatestOptionChain("NIFTY")
		require.NoError(t, err)
		require.Len(t, chain, 2)

		assert.Equal(t, "CE", chain[0].InstrumentType)
		assert.True(t, second.Equal(chain[0].SnapshotTime))
		assert.Equal(t, 160.0, *chain[0].LastPrice)
		require.NotNil(t, chain[0].ImpliedVolatility)
		assert.Equal(t, 0.14, *chain[0].ImpliedVolatility)
		assert.Equal(t, 24000.0, chain[0].Strike)
		assert.True(t, expiry.Equal(chain[0].Expiry))

		assert.Equal(t, "PE", chain[1].InstrumentType)
		assert.True(t, first.Equal(chain[1].SnapshotTime))
		assert.Nil(t, chain[1].ImpliedVolatility)
		assert.Nil(t, chain[1].Delta)
		assert.Equal(t, int64(120000), *chain[1].OpenInterest)

		empty, err := store.LatestOptionChain("BANKNIFTY")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("trend", func(t *testing.T) {
		points, err := store.OptionTrend(ids[201], first.Add(-24*time.Hour))
		require.NoError(t, err)
		require.Len(t, points, 2)
		assert.True(t, first.Equal(points[0].SnapshotTime))
		assert.Equal(t, 0.12, *points[0].ImpliedVolatility)
		assert.Equal(t, 0.14, *points[1].ImpliedVolatility)

		points, err = store.OptionTrend(ids[201], second)
		require.NoError(t, err)
		assert.Len(t, points, 1)
	})

	t.Run("cleanup removes old snapshots and calcs", func(t *testing.T) {
		require.NoError(t, store.CleanupOldData(second))

		points, err := store.OptionTrend(ids[201], first.Add(-24*time.Hour))
		require.NoError(t, err)
		require.Len(t, points, 1)
		assert.True(t, second.Equal(points[0].SnapshotTime))

		chain, err := store.LatestOptionChain("NIFTY")
		require.NoError(t, err)
		assert.Len(t, chain, 1)

		var calcs int64
		require.NoError(t, store.db.Table("option_snapshot_calcs").Count(&calcs).Error)
		assert.Equal(t, int64(1), calcs)
	})

	t.Run("empty batch", func(t *testing.T) {
		saved, err := store.SaveSnapshots(nil)
		require.NoError(t, err)
		assert.Equal(t, 0, saved)
	})
}
