package interfaces

import (
	"context"
	"time"
)

// OptionSide is the call/put side of an option contract
type OptionSide string

const (
	Call OptionSide = "call"
	Put  OptionSide = "put"
)

// InstrumentType returns the exchange notation for the side ("CE" or "PE")
func (s OptionSide) InstrumentType() string {
	if s == Put {
		return "PE"
	}
	return "CE"
}

// OptionContract is a matched option listing. It is never mutated after matching.
type OptionContract struct {
	InstrumentToken int64     // Provider-unique instrument identifier
	Exchange        string    // e.g. "NFO"
	TradingSymbol   string    // e.g. "NIFTY24DEC24000CE"
	Name            *string   // Declared underlying name from the catalog, if any
	Underlying      string    // Canonical underlying token
	Strike          float64
	Expiry          time.Time // Date only, UTC midnight
	Side            OptionSide
	LotSize         int64
	TickSize        *float64
	Segment         *string
	FetchDate       time.Time
}

// QuoteRecord is the market quote for one option symbol. Any field may be absent.
type QuoteRecord struct {
	LastPrice    *float64
	BidPrice     *float64
	BidQty       *int64
	AskPrice     *float64
	AskQty       *int64
	Volume       *int64
	OpenInterest *int64
}

// MarketObservation is the market state of one instrument at one moment
type MarketObservation struct {
	UnderlyingPrice *float64 `json:"underlying_price"`
	LastPrice       *float64 `json:"last_price"`
	BidPrice        *float64 `json:"bid_price"`
	BidQty          *int64   `json:"bid_qty"`
	AskPrice        *float64 `json:"ask_price"`
	AskQty          *int64   `json:"ask_qty"`
	Volume          *int64   `json:"volume"`
	OpenInterest    *int64   `json:"open_interest"`
}

// AnalyticsResult holds implied volatility and Greeks. Fields are nil when the
// solver did not converge or the inputs were degenerate.
type AnalyticsResult struct {
	ImpliedVolatility *float64 `json:"implied_volatility"`
	Delta             *float64 `json:"delta"`
	Gamma             *float64 `json:"gamma"`
	Theta             *float64 `json:"theta"`
	Vega              *float64 `json:"vega"`
}

// Snapshot joins a contract with its observation and analytics at one timestamp
type Snapshot struct {
	Contract     OptionContract
	SnapshotTime time.Time
	Observation  MarketObservation
	Analytics    AnalyticsResult
}

// SnapshotState tracks an instrument through one assembly pass
type SnapshotState string

const (
	StatePending  SnapshotState = "PENDING"
	StateHasQuote SnapshotState = "HAS_QUOTE"
	StateHasSpot  SnapshotState = "HAS_SPOT"
	StatePriced   SnapshotState = "PRICED"
	StateEmitted  SnapshotState = "EMITTED"
	StateSkipped  SnapshotState = "SKIPPED"
)

// SkipReason explains why no snapshot was emitted for an instrument
type SkipReason string

const (
	SkipNone           SkipReason = ""
	SkipNoQuote        SkipReason = "no_quote"
	SkipNoSpot         SkipReason = "no_spot"
	SkipExpiredNoPrice SkipReason = "expired_without_price"
)

// SnapshotOutcome is the terminal result of assembling one instrument
type SnapshotOutcome struct {
	Contract   OptionContract
	State      SnapshotState
	SkipReason SkipReason
	Snapshot   *Snapshot
}

// SpotFetcher resolves last prices for underlying spot symbols in bulk.
// A symbol without a price maps to nil or is absent.
type SpotFetcher interface {
	FetchSpot(ctx context.Context, symbols []string) (map[string]*float64, error)
}

// QuoteFetcher resolves market quotes for option trading symbols in bulk
type QuoteFetcher interface {
	FetchQuotes(ctx context.Context, symbols []string) (map[string]QuoteRecord, error)
}

// InstrumentSource supplies the raw instrument catalog of an exchange
type InstrumentSource interface {
	FetchInstruments(ctx context.Context, exchange string) ([]RawInstrument, error)
}

// MarketDataProvider is a complete data provider: catalog, quotes and spot
type MarketDataProvider interface {
	InstrumentSource
	QuoteFetcher
	SpotFetcher
	// SpotSymbol maps a canonical underlying to the symbol its spot price is quoted under
	SpotSymbol(underlying string) string
}

// ChainSource is implemented by providers that can list the contracts of a
// single underlying without downloading a whole exchange catalog
type ChainSource interface {
	FetchOptionChain(ctx context.Context, underlying string) ([]RawInstrument, error)
}
