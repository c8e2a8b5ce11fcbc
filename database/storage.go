package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"options-analytics/interfaces"
	"options-analytics/models"
)

// StorageOptions tunes batch sizes and query logging
type StorageOptions struct {
	InsertBatchSize int
	LookupChunkSize int
	SlowThreshold   time.Duration
}

// DefaultStorageOptions inserts 1000 rows per statement and looks up 2000 tokens per IN clause
var DefaultStorageOptions = StorageOptions{
	InsertBatchSize: 1000,
	LookupChunkSize: 2000,
	SlowThreshold:   DefaultSlowThreshold,
}

// LocalStorage implements the SnapshotStore interface using SQLite
type LocalStorage struct {
	db     *gorm.DB
	opts   StorageOptions
	logger *logrus.Logger
}

// NewLocalStorage creates a new local storage service
func NewLocalStorage(dbPath string, opts StorageOptions, log *logrus.Logger) (*LocalStorage, error) {
	if log == nil {
		log = logrus.New()
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
	if opts.InsertBatchSize <= 0 {
		opts.InsertBatchSize = DefaultStorageOptions.InsertBatchSize
	}
	if opts.LookupChunkSize <= 0 {
		opts.LookupChunkSize = DefaultStorageOptions.LookupChunkSize
	}

	// Ensure the directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: NewLogrusLogger(log, opts.SlowThreshold),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Auto-migrate schemas
	if err := db.AutoMigrate(
		&models.DBStockInstrument{},
		&models.DBOptionInstrument{},
		&models.DBOptionSnapshot{},
		&models.DBOptionSnapshotCalc{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &LocalStorage{
		db:     db,
		opts:   opts,
		logger: log,
	}, nil
}

// UpsertStockInstruments inserts stocks whose token is not stored yet.
// Existing rows are left untouched.
func (s *LocalStorage) UpsertStockInstruments(stocks []interfaces.StockInstrument) error {
	if len(stocks) == 0 {
		return nil
	}

	seen := make(map[int64]struct{}, len(stocks))
	rows := make([]*models.DBStockInstrument, 0, len(stocks))
	for _, st := range stocks {
		if _, dup := seen[st.InstrumentToken]; dup {
			continue
		}
		seen[st.InstrumentToken] = struct{}{}

		rows = append(rows, &models.DBStockInstrument{
			InstrumentToken: st.InstrumentToken,
			Exchange:        st.Exchange,
			TradingSymbol:   st.TradingSymbol,
			Name:            st.Name,
			Segment:         st.Segment,
			TickSize:        nullDecimal(st.TickSize),
			LotSize:         st.LotSize,
		})
	}

	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "instrument_token"}},
		DoNothing: true,
	}).CreateInBatches(rows, s.opts.InsertBatchSize)
	if result.Error != nil {
		return fmt.Errorf("failed to save stock instruments: %w", result.Error)
	}

	s.logger.WithFields(logrus.Fields{
		"received": len(stocks),
		"inserted": result.RowsAffected,
	}).Info("Stock instruments saved")
	return nil
}

// CountStocks returns the number of stored stocks and indices
func (s *LocalStorage) CountStocks() (int64, error) {
	var count int64
	if err := s.db.Model(&models.DBStockInstrument{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count stocks: %w", err)
	}
	return count, nil
}

// SearchStocks matches query case-insensitively against name and trading symbol
func (s *LocalStorage) SearchStocks(query, segment string, limit int) ([]interfaces.StockInstrument, error) {
	pattern := "%" + strings.ToLower(query) + "%"

	q := s.db.Model(&models.DBStockInstrument{}).
		Where("LOWER(name) LIKE ? OR LOWER(trading_symbol) LIKE ?", pattern, pattern)
	if segment != "" {
		q = q.Where("segment = ?", segment)
	}

	var rows []*models.DBStockInstrument
	if err := q.Order("trading_symbol ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to search stocks: %w", err)
	}

	stocks := make([]interfaces.StockInstrument, len(rows))
	for i, r := range rows {
		stocks[i] = interfaces.StockInstrument{
			Exchange:        r.Exchange,
			TradingSymbol:   r.TradingSymbol,
			Name:            r.Name,
			InstrumentToken: r.InstrumentToken,
			Segment:         r.Segment,
			TickSize:        floatFromNull(r.TickSize),
			LotSize:         r.LotSize,
		}
	}
	return stocks, nil
}

// UpsertOptionInstruments inserts contracts whose token is not stored yet
func (s *LocalStorage) UpsertOptionInstruments(contracts []interfaces.OptionContract) error {
	if len(contracts) == 0 {
		return nil
	}

	seen := make(map[int64]struct{}, len(contracts))
	rows := make([]*models.DBOptionInstrument, 0, len(contracts))
	for _, c := range contracts {
		if _, dup := seen[c.InstrumentToken]; dup {
			continue
		}
		seen[c.InstrumentToken] = struct{}{}

		rows = append(rows, &models.DBOptionInstrument{
			FetchDate:       c.FetchDate.UTC(),
			InstrumentToken: c.InstrumentToken,
			Underlying:      c.Underlying,
			Exchange:        c.Exchange,
			TradingSymbol:   c.TradingSymbol,
			Name:            c.Name,
			Strike:          decimal.NewFromFloat(c.Strike),
			Expiry:          c.Expiry.UTC(),
			InstrumentType:  c.Side.InstrumentType(),
			LotSize:         c.LotSize,
			TickSize:        nullDecimal(c.TickSize),
			Segment:         c.Segment,
		})
	}

	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "instrument_token"}},
		DoNothing: true,
	}).CreateInBatches(rows, s.opts.InsertBatchSize)
	if result.Error != nil {
		return fmt.Errorf("failed to save option instruments: %w", result.Error)
	}

	s.logger.WithFields(logrus.Fields{
		"received": len(contracts),
		"inserted": result.RowsAffected,
	}).Info("Option instruments saved")
	return nil
}

// OptionInstrumentIDsByToken maps instrument tokens to row ids. Unknown tokens
// are absent from the result.
func (s *LocalStorage) OptionInstrumentIDsByToken(tokens []int64) (map[int64]uint, error) {
	ids := make(map[int64]uint, len(tokens))

	for start := 0; start < len(tokens); start += s.opts.LookupChunkSize {
		end := min(start+s.opts.LookupChunkSize, len(tokens))

		var rows []struct {
			ID              uint
			InstrumentToken int64
		}
		err := s.db.Model(&models.DBOptionInstrument{}).
			Select("id, instrument_token").
			Where("instrument_token IN ?", tokens[start:end]).
			Find(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("failed to look up instrument ids: %w", err)
		}

		for _, r := range rows {
			ids[r.InstrumentToken] = r.ID
		}
	}

	return ids, nil
}

// GetOptionInstrument retrieves an option instrument by id
func (s *LocalStorage) GetOptionInstrument(id uint) (*interfaces.OptionInstrumentRow, error) {
	var row models.DBOptionInstrument

	if err := s.db.First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("option instrument %d: %w", id, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get option instrument: %w", err)
	}

	return &interfaces.OptionInstrumentRow{
		ID:              row.ID,
		InstrumentToken: row.InstrumentToken,
		Underlying:      row.Underlying,
		Exchange:        row.Exchange,
		TradingSymbol:   row.TradingSymbol,
		Strike:          row.Strike.InexactFloat64(),
		Expiry:          row.Expiry,
		InstrumentType:  row.InstrumentType,
		LotSize:         row.LotSize,
	}, nil
}

type snapshotKey struct {
	instrumentID uint
	at           int64
}

// SaveSnapshots stores raw snapshots and their calc rows in one transaction.
// A snapshot already stored for the same instrument and time is skipped.
// It returns the number of snapshots inserted.
func (s *LocalStorage) SaveSnapshots(rows []interfaces.SnapshotRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	inserted := 0
	err := s.db.Transaction(func(tx *gorm.DB) error {
		existing, err := s.existingSnapshots(tx, rows)
		if err != nil {
			return err
		}

		snaps := make([]*models.DBOptionSnapshot, 0, len(rows))
		calcs := make([]*models.DBOptionSnapshotCalc, 0, len(rows))
		for _, r := range rows {
			at := r.Snapshot.SnapshotTime.UTC()
			key := snapshotKey{r.OptionInstrumentID, at.UnixNano()}
			if _, dup := existing[key]; dup {
				continue
			}
			existing[key] = struct{}{}

			obs := r.Snapshot.Observation
			snaps = append(snaps, &models.DBOptionSnapshot{
				OptionInstrumentID: r.OptionInstrumentID,
				SnapshotTime:       at,
				RunID:              r.RunID,
				UnderlyingPrice:    obs.UnderlyingPrice,
				LastPrice:          obs.LastPrice,
				BidPrice:           obs.BidPrice,
				BidQty:             obs.BidQty,
				AskPrice:           obs.AskPrice,
				AskQty:             obs.AskQty,
				Volume:             obs.Volume,
				OpenInterest:       obs.OpenInterest,
			})

			a := r.Snapshot.Analytics
			calcs = append(calcs, &models.DBOptionSnapshotCalc{
				ImpliedVolatility: a.ImpliedVolatility,
				Delta:             a.Delta,
				Gamma:             a.Gamma,
				Theta:             a.Theta,
				Vega:              a.Vega,
			})
		}

		if len(snaps) == 0 {
			return nil
		}

		if err := tx.Omit(clause.Associations).CreateInBatches(snaps, s.opts.InsertBatchSize).Error; err != nil {
			return fmt.Errorf("failed to insert snapshots: %w", err)
		}

		for i, snap := range snaps {
			calcs[i].OptionSnapshotID = snap.ID
		}
		if err := tx.CreateInBatches(calcs, s.opts.InsertBatchSize).Error; err != nil {
			return fmt.Errorf("failed to insert snapshot calcs: %w", err)
		}

		inserted = len(snaps)
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.WithFields(logrus.Fields{
		"received": len(rows),
		"inserted": inserted,
	}).Info("Snapshots saved")
	return inserted, nil
}

// existingSnapshots finds stored (instrument, time) pairs among rows
func (s *LocalStorage) existingSnapshots(tx *gorm.DB, rows []interfaces.SnapshotRow) (map[snapshotKey]struct{}, error) {
	byTime := make(map[time.Time][]uint)
	for _, r := range rows {
		at := r.Snapshot.SnapshotTime.UTC()
		byTime[at] = append(byTime[at], r.OptionInstrumentID)
	}

	existing := make(map[snapshotKey]struct{})
	for at, ids := range byTime {
		for start := 0; start < len(ids); start += s.opts.LookupChunkSize {
			end := min(start+s.opts.LookupChunkSize, len(ids))

			var found []uint
			err := tx.Model(&models.DBOptionSnapshot{}).
				Where("snapshot_time = ? AND option_instrument_id IN ?", at, ids[start:end]).
				Pluck("option_instrument_id", &found).Error
			if err != nil {
				return nil, fmt.Errorf("failed to check existing snapshots: %w", err)
			}

			for _, id := range found {
				existing[snapshotKey{id, at.UnixNano()}] = struct{}{}
			}
		}
	}

	return existing, nil
}

const chainSelect = `
SELECT oi.id AS option_instrument_id, oi.underlying, oi.trading_symbol, oi.strike, oi.expiry,
       oi.instrument_type, s.snapshot_time, s.underlying_price, s.last_price, s.bid_price,
       s.bid_qty, s.ask_price, s.ask_qty, s.volume, s.open_interest,
       c.implied_volatility, c.delta, c.gamma, c.theta, c.vega
FROM option_snapshots s
JOIN option_instruments oi ON oi.id = s.option_instrument_id AND oi.deleted_at IS NULL
LEFT JOIN option_snapshot_calcs c ON c.option_snapshot_id = s.id AND c.deleted_at IS NULL
`

// LatestOptionChain returns the most recent snapshot of every stored contract
// on the underlying, ordered by expiry, strike and instrument type
func (s *LocalStorage) LatestOptionChain(underlying string) ([]interfaces.ChainRow, error) {
	query := chainSelect + `
JOIN (
    SELECT option_instrument_id, MAX(snapshot_time) AS max_time
    FROM option_snapshots
    WHERE deleted_at IS NULL
    GROUP BY option_instrument_id
) latest ON latest.option_instrument_id = s.option_instrument_id AND latest.max_time = s.snapshot_time
WHERE oi.underlying = ? AND s.deleted_at IS NULL
ORDER BY oi.expiry ASC, oi.strike ASC, oi.instrument_type ASC`

	var rows []interfaces.ChainRow
	if err := s.db.Raw(query, underlying).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get latest option chain: %w", err)
	}
	return rows, nil
}

// OptionTrend returns every snapshot of an instrument since the given time,
// oldest first
func (s *LocalStorage) OptionTrend(instrumentID uint, since time.Time) ([]interfaces.TrendPoint, error) {
	query := chainSelect + `
WHERE s.option_instrument_id = ? AND s.snapshot_time >= ? AND s.deleted_at IS NULL
ORDER BY s.snapshot_time ASC`

	var points []interfaces.TrendPoint
	if err := s.db.Raw(query, instrumentID, since.UTC()).Scan(&points).Error; err != nil {
		return nil, fmt.Errorf("failed to get option trend: %w", err)
	}
	return points, nil
}

// CleanupOldData permanently removes snapshots, and their calcs, older than before
func (s *LocalStorage) CleanupOldData(before time.Time) error {
	s.logger.WithField("before", before).Info("Cleaning up old data")

	err := s.db.Transaction(func(tx *gorm.DB) error {
		old := tx.Unscoped().Model(&models.DBOptionSnapshot{}).
			Select("id").
			Where("snapshot_time < ?", before.UTC())

		if err := tx.Unscoped().Where("option_snapshot_id IN (?)", old).Delete(&models.DBOptionSnapshotCalc{}).Error; err != nil {
			return fmt.Errorf("failed to delete old snapshot calcs: %w", err)
		}

		if err := tx.Unscoped().Where("snapshot_time < ?", before.UTC()).Delete(&models.DBOptionSnapshot{}).Error; err != nil {
			return fmt.Errorf("failed to delete old snapshots: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Old data cleaned up successfully")
	return nil
}

// Close closes the database connection
func (s *LocalStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func nullDecimal(f *float64) decimal.NullDecimal {
	if f == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: decimal.NewFromFloat(*f), Valid: true}
}

func floatFromNull(d decimal.NullDecimal) *float64 {
	if !d.Valid {
		return nil
	}
	f := d.Decimal.InexactFloat64()
	return &f
}
