package interfaces

import "time"

// RawInstrument is one record of a provider instrument dump. The schema is not
// guaranteed: keys may be missing and values may be strings or numbers.
type RawInstrument map[string]any

// InstrumentRecord is a RawInstrument parsed at the ingestion boundary
type InstrumentRecord struct {
	InstrumentToken int64
	Exchange        string
	TradingSymbol   string
	Name            *string
	Strike          float64
	Expiry          *time.Time
	InstrumentType  string
	Segment         *string
	LotSize         *int64
	TickSize        *float64
}

// StockInstrument is an equity or index listing used to resolve underlyings
type StockInstrument struct {
	Exchange        string   `json:"exchange"`
	TradingSymbol   string   `json:"tradingsymbol"`
	Name            *string  `json:"name"`
	InstrumentToken int64    `json:"instrument_token"`
	Segment         *string  `json:"segment"`
	TickSize        *float64 `json:"tick_size"`
	LotSize         *int64   `json:"lot_size"`
}
