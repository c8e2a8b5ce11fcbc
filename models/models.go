package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DBStockInstrument represents an equity or index listing in the database
type DBStockInstrument struct {
	gorm.Model
	InstrumentToken int64  `gorm:"uniqueIndex"`
	Exchange        string `gorm:"size:16;index"`
	TradingSymbol   string `gorm:"size:64;index"`
	Name            *string
	Segment         *string             `gorm:"size:32"`
	TickSize        decimal.NullDecimal `gorm:"type:decimal(12,4)"`
	LotSize         *int64
}

// DBOptionInstrument represents a matched option contract. Rows are append-only
// by instrument token.
type DBOptionInstrument struct {
	gorm.Model
	FetchDate       time.Time
	InstrumentToken int64  `gorm:"uniqueIndex"`
	Underlying      string `gorm:"size:32;index:idx_underlying_expiry"`
	Exchange        string `gorm:"size:16"`
	TradingSymbol   string `gorm:"size:64;index"`
	Name            *string
	Strike          decimal.Decimal `gorm:"type:decimal(12,2)"`
	Expiry          time.Time       `gorm:"index:idx_underlying_expiry"`
	InstrumentType  string          `gorm:"size:2"` // CE or PE
	LotSize         int64
	TickSize        decimal.NullDecimal `gorm:"type:decimal(12,4)"`
	Segment         *string             `gorm:"size:32"`
}

// DBOptionSnapshot represents the raw market observation of one instrument
type DBOptionSnapshot struct {
	gorm.Model
	OptionInstrumentID uint      `gorm:"uniqueIndex:idx_instrument_snapshot_time"`
	SnapshotTime       time.Time `gorm:"uniqueIndex:idx_instrument_snapshot_time;index"`
	RunID              string    `gorm:"size:36;index"`
	UnderlyingPrice    *float64
	LastPrice          *float64
	BidPrice           *float64
	BidQty             *int64
	AskPrice           *float64
	AskQty             *int64
	Volume             *int64
	OpenInterest       *int64

	Calc *DBOptionSnapshotCalc `gorm:"foreignKey:OptionSnapshotID"`
}

// DBOptionSnapshotCalc holds implied volatility and Greeks for a snapshot.
// Every field is null when the solver did not converge.
type DBOptionSnapshotCalc struct {
	gorm.Model
	OptionSnapshotID  uint `gorm:"uniqueIndex"`
	ImpliedVolatility *float64
	Delta             *float64
	Gamma             *float64
	Theta             *float64
	Vega              *float64
}

// TableName overrides for cleaner table names
func (DBStockInstrument) TableName() string {
	return "stock_instruments"
}

func (DBOptionInstrument) TableName() string {
	return "option_instruments"
}

func (DBOptionSnapshot) TableName() string {
	return "option_snapshots"
}

func (DBOptionSnapshotCalc) TableName() string {
	return "option_snapshot_calcs"
}
