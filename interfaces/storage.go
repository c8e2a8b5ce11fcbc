package interfaces

import (
	"time"
)

// SnapshotStore persists instruments and snapshots
type SnapshotStore interface {
	UpsertStockInstruments(stocks []StockInstrument) error
	CountStocks() (int64, error)
	SearchStocks(query, segment string, limit int) ([]StockInstrument, error)

	UpsertOptionInstruments(contracts []OptionContract) error
	OptionInstrumentIDsByToken(tokens []int64) (map[int64]uint, error)
	GetOptionInstrument(id uint) (*OptionInstrumentRow, error)

	SaveSnapshots(rows []SnapshotRow) (int, error)
	LatestOptionChain(underlying string) ([]ChainRow, error)
	OptionTrend(instrumentID uint, since time.Time) ([]TrendPoint, error)
	CleanupOldData(before time.Time) error
}

// OptionInstrumentRow is a stored option contract with its database id
type OptionInstrumentRow struct {
	ID              uint      `json:"option_instrument_id"`
	InstrumentToken int64     `json:"instrument_token"`
	Underlying      string    `json:"underlying"`
	Exchange        string    `json:"exchange"`
	TradingSymbol   string    `json:"tradingsymbol"`
	Strike          float64   `json:"strike"`
	Expiry          time.Time `json:"expiry"`
	InstrumentType  string    `json:"instrument_type"`
	LotSize         int64     `json:"lot_size"`
}

// SnapshotRow is a snapshot bound to its stored instrument id
type SnapshotRow struct {
	OptionInstrumentID uint
	RunID              string
	Snapshot           Snapshot
}

// ChainRow is one line of the latest option chain for an underlying
type ChainRow struct {
	OptionInstrumentID uint      `json:"option_instrument_id" csv:"option_instrument_id"`
	Underlying         string    `json:"underlying" csv:"underlying"`
	TradingSymbol      string    `json:"tradingsymbol" csv:"tradingsymbol"`
	Strike             float64   `json:"strike" csv:"strike"`
	Expiry             time.Time `json:"expiry" csv:"expiry"`
	InstrumentType     string    `json:"instrument_type" csv:"instrument_type"`
	SnapshotTime       time.Time `json:"snapshot_time" csv:"snapshot_time"`
	UnderlyingPrice    *float64  `json:"underlying_price" csv:"underlying_price"`
	LastPrice          *float64  `json:"last_price" csv:"last_price"`
	BidPrice           *float64  `json:"bid_price" csv:"bid_price"`
	BidQty             *int64    `json:"bid_qty" csv:"bid_qty"`
	AskPrice           *float64  `json:"ask_price" csv:"ask_price"`
	AskQty             *int64    `json:"ask_qty" csv:"ask_qty"`
	Volume             *int64    `json:"volume" csv:"volume"`
	OpenInterest       *int64    `json:"open_interest" csv:"open_interest"`
	ImpliedVolatility  *float64  `json:"implied_volatility" csv:"implied_volatility"`
	Delta              *float64  `json:"delta" csv:"delta"`
	Gamma              *float64  `json:"gamma" csv:"gamma"`
	Theta              *float64  `json:"theta" csv:"theta"`
	Vega               *float64  `json:"vega" csv:"vega"`
}

// TrendPoint is one stored snapshot of a single instrument
type TrendPoint struct {
	SnapshotTime      time.Time `json:"timestamp"`
	UnderlyingPrice   *float64  `json:"underlying_price"`
	LastPrice         *float64  `json:"option_price"`
	ImpliedVolatility *float64  `json:"implied_volatility"`
	Delta             *float64  `json:"delta"`
	Gamma             *float64  `json:"gamma"`
	Theta             *float64  `json:"theta"`
	Vega              *float64  `json:"vega"`
}
