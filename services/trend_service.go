package services

import (
	"context"
	"fmt"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/sirupsen/logrus"

	"options-analytics/interfaces"
)

// DefaultTrendDays is the history window used when none is given
const DefaultTrendDays = 30

// TrendService builds timeline data for a single option instrument
type TrendService struct {
	store  interfaces.SnapshotStore
	logger *logrus.Logger
	now    func() time.Time
}

// NewTrendService creates a new trend service
func NewTrendService(store interfaces.SnapshotStore, logger *logrus.Logger) *TrendService {
	if logger == nil {
		logger = newTextLogger()
	}
	return &TrendService{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// OptionTrendReport is the instrument header plus its stored history
type OptionTrendReport struct {
	OptionInstrumentID uint             `json:"option_instrument_id"`
	TradingSymbol      string           `json:"tradingsymbol"`
	Underlying         string           `json:"underlying"`
	Strike             float64          `json:"strike"`
	Expiry             string           `json:"expiry"`
	InstrumentType     string           `json:"instrument_type"`
	DataPoints         []TrendDataPoint `json:"data_points"`
	Summary            *TrendSummary    `json:"summary,omitempty"`
}

// TrendDataPoint is a stored snapshot tagged with its calendar date
type TrendDataPoint struct {
	Date string `json:"date"`
	interfaces.TrendPoint
}

// TrendSummary condenses a series of snapshots
type TrendSummary struct {
	Points               int      `json:"points"`
	IVMean               *float64 `json:"iv_mean"`
	IVMin                *float64 `json:"iv_min"`
	IVMax                *float64 `json:"iv_max"`
	IVStdDev             *float64 `json:"iv_stddev"`
	LastDelta            *float64 `json:"last_delta"`
	UnderlyingChange     *float64 `json:"underlying_change"`
	OptionPriceChangePct *float64 `json:"option_price_change_pct"`
}

// OptionTrend returns the last days of snapshots for an instrument, oldest first
func (s *TrendService) OptionTrend(ctx context.Context, instrumentID uint, days int) (*OptionTrendReport, error) {
	if days <= 0 {
		days = DefaultTrendDays
	}

	instrument, err := s.store.GetOptionInstrument(instrumentID)
	if err != nil {
		return nil, err
	}

	since := s.now().AddDate(0, 0, -days)
	points, err := s.store.OptionTrend(instrumentID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load trend: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"option_instrument_id": instrumentID,
		"days":                 days,
		"points":               len(points),
	}).Info("Fetched option trend")

	report := &OptionTrendReport{
		OptionInstrumentID: instrument.ID,
		TradingSymbol:      instrument.TradingSymbol,
		Underlying:         instrument.Underlying,
		Strike:             instrument.Strike,
		Expiry:             instrument.Expiry.Format("2006-01-02"),
		InstrumentType:     instrument.InstrumentType,
		DataPoints:         make([]TrendDataPoint, len(points)),
	}
	for i, p := range points {
		report.DataPoints[i] = TrendDataPoint{
			Date:       p.SnapshotTime.Format("2006-01-02"),
			TrendPoint: p,
		}
	}
	if len(points) > 0 {
		report.Summary = SummarizeTrend(points)
	}

	return report, nil
}

// SummarizeTrend computes IV statistics and first-to-last changes. points must
// be ordered by snapshot time.
func SummarizeTrend(points []interfaces.TrendPoint) *TrendSummary {
	summary := &TrendSummary{Points: len(points)}

	var ivs stats.Float64Data
	for _, p := range points {
		if p.ImpliedVolatility != nil {
			ivs = append(ivs, *p.ImpliedVolatility)
		}
		if p.Delta != nil {
			summary.LastDelta = p.Delta
		}
	}

	if len(ivs) > 0 {
		summary.IVMean = statOf(ivs.Mean)
		summary.IVMin = statOf(ivs.Min)
		summary.IVMax = statOf(ivs.Max)
		summary.IVStdDev = statOf(ivs.StandardDeviation)
	}

	first, last := firstLast(points, func(p interfaces.TrendPoint) *float64 { return p.UnderlyingPrice })
	if first != nil && last != nil {
		change := *last - *first
		summary.UnderlyingChange = &change
	}

	first, last = firstLast(points, func(p interfaces.TrendPoint) *float64 { return p.LastPrice })
	if first != nil && last != nil && *first != 0 {
		pct, err := stats.Round((*last-*first) / *first * 100, 4)
		if err == nil {
			summary.OptionPriceChangePct = &pct
		}
	}

	return summary
}

func statOf(fn func() (float64, error)) *float64 {
	v, err := fn()
	if err != nil {
		return nil
	}
	return &v
}

// firstLast returns the first and last non-nil values of a field
func firstLast(points []interfaces.TrendPoint, field func(interfaces.TrendPoint) *float64) (*float64, *float64) {
	var first, last *float64
	for _, p := range points {
		if v := field(p); v != nil {
			if first == nil {
				first = v
			}
			last = v
		}
	}
	return first, last
}
