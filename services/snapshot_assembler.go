package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"options-analytics/interfaces"
)

// DaysPerYear is the flat day count used for time to expiry. Trading holidays
// are not taken into account.
const DaysPerYear = 365.0

// AssemblerConfig tunes snapshot assembly
type AssemblerConfig struct {
	DividendYield   float64
	QuoteBatchSize  int // Max symbols per quote call; <= 0 means a single call
	Workers         int // Compute goroutines; <= 1 means sequential
	Solver          SolverConfig
	SolverOverrides map[string]SolverConfig // Keyed by canonical underlying
}

// SnapshotAssembler joins matched contracts with spot and quote data and
// computes implied volatility and Greeks per contract
type SnapshotAssembler struct {
	spot       interfaces.SpotFetcher
	quotes     interfaces.QuoteFetcher
	spotSymbol func(underlying string) string
	cfg        AssemblerConfig
	now        func() time.Time
	logger     *logrus.Logger
}

// AssemblyReport is the outcome of one pass over a batch of contracts
type AssemblyReport struct {
	SnapshotTime time.Time
	Outcomes     []interfaces.SnapshotOutcome
	Skipped      map[interfaces.SkipReason]int
}

// Snapshots returns the emitted snapshots in contract order
func (r *AssemblyReport) Snapshots() []interfaces.Snapshot {
	snapshots := make([]interfaces.Snapshot, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if o.State == interfaces.StateEmitted && o.Snapshot != nil {
			snapshots = append(snapshots, *o.Snapshot)
		}
	}
	return snapshots
}

// NewSnapshotAssembler creates an assembler. spotSymbol maps a canonical
// underlying to the symbol passed to the spot fetcher; nil means identity.
func NewSnapshotAssembler(
	spot interfaces.SpotFetcher,
	quotes interfaces.QuoteFetcher,
	spotSymbol func(string) string,
	cfg AssemblerConfig,
	logger *logrus.Logger,
) *SnapshotAssembler {
	if spotSymbol == nil {
		spotSymbol = func(u string) string { return u }
	}
	if cfg.Solver == (SolverConfig{}) {
		cfg.Solver = DefaultSolverConfig
	}
	if logger == nil {
		logger = newTextLogger()
	}

	return &SnapshotAssembler{
		spot:       spot,
		quotes:     quotes,
		spotSymbol: spotSymbol,
		cfg:        cfg,
		now:        time.Now,
		logger:     logger,
	}
}

// BuildSnapshots returns one snapshot per contract that has market data.
// Contracts without data are skipped; only a failed bulk fetch is an error.
func (a *SnapshotAssembler) BuildSnapshots(ctx context.Context, contracts []interfaces.OptionContract, riskFreeRate float64) ([]interfaces.Snapshot, error) {
	report, err := a.Assemble(ctx, contracts, riskFreeRate)
	if err != nil {
		return nil, err
	}
	return report.Snapshots(), nil
}

// Assemble runs the batch and reports the terminal state of every contract
func (a *SnapshotAssembler) Assemble(ctx context.Context, contracts []interfaces.OptionContract, riskFreeRate float64) (*AssemblyReport, error) {
	report := &AssemblyReport{
		Outcomes: make([]interfaces.SnapshotOutcome, len(contracts)),
		Skipped:  make(map[interfaces.SkipReason]int),
	}
	if len(contracts) == 0 {
		report.SnapshotTime = a.now()
		return report, nil
	}

	spots, quotes, err := a.fetchMarketData(ctx, contracts)
	if err != nil {
		return nil, err
	}

	at := a.now()
	report.SnapshotTime = at

	if a.cfg.Workers <= 1 {
		for i, c := range contracts {
			report.Outcomes[i] = a.assembleOne(c, quotes, spots, riskFreeRate, at)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(a.cfg.Workers)
		for i, c := range contracts {
			g.Go(func() error {
				report.Outcomes[i] = a.assembleOne(c, quotes, spots, riskFreeRate, at)
				return nil
			})
		}
		_ = g.Wait()
	}

	emitted := 0
	for _, o := range report.Outcomes {
		if o.State == interfaces.StateSkipped {
			report.Skipped[o.SkipReason]++
			a.logger.WithFields(logrus.Fields{
				"tradingsymbol": o.Contract.TradingSymbol,
				"reason":        o.SkipReason,
			}).Debug("Skipped instrument")
			continue
		}
		emitted++
	}

	a.logger.WithFields(logrus.Fields{
		"contracts": len(contracts),
		"emitted":   emitted,
		"skipped":   len(contracts) - emitted,
	}).Info("Assembled option snapshots")

	return report, nil
}

// fetchMarketData issues the spot and quote bulk calls concurrently. Spot is
// requested once per distinct underlying.
func (a *SnapshotAssembler) fetchMarketData(ctx context.Context, contracts []interfaces.OptionContract) (map[string]*float64, map[string]interfaces.QuoteRecord, error) {
	symbolByUnderlying := make(map[string]string)
	var spotSymbols []string
	var quoteSymbols []string
	seenQuote := make(map[string]struct{}, len(contracts))

	for _, c := range contracts {
		if _, ok := symbolByUnderlying[c.Underlying]; !ok {
			sym := a.spotSymbol(c.Underlying)
			symbolByUnderlying[c.Underlying] = sym
			spotSymbols = append(spotSymbols, sym)
		}
		if _, ok := seenQuote[c.TradingSymbol]; !ok {
			seenQuote[c.TradingSymbol] = struct{}{}
			quoteSymbols = append(quoteSymbols, c.TradingSymbol)
		}
	}

	var spotBySymbol map[string]*float64
	quotes := make(map[string]interfaces.QuoteRecord, len(quoteSymbols))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		res, err := a.spot.FetchSpot(gctx, spotSymbols)
		if err != nil {
			return fmt.Errorf("failed to fetch spot prices: %w", err)
		}
		spotBySymbol = res
		return nil
	})

	g.Go(func() error {
		for _, chunk := range chunkStrings(quoteSymbols, a.cfg.QuoteBatchSize) {
			res, err := a.quotes.FetchQuotes(gctx, chunk)
			if err != nil {
				return fmt.Errorf("failed to fetch quotes: %w", err)
			}
			for sym, q := range res {
				quotes[sym] = q
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		a.logger.WithError(err).Error("Bulk market data fetch failed")
		return nil, nil, err
	}

	spots := make(map[string]*float64, len(symbolByUnderlying))
	for underlying, sym := range symbolByUnderlying {
		if p := spotBySymbol[sym]; p != nil && *p > 0 && !math.IsNaN(*p) && !math.IsInf(*p, 0) {
			spots[underlying] = p
		}
	}

	return spots, quotes, nil
}

// assembleOne walks one contract through PENDING -> HAS_QUOTE -> HAS_SPOT ->
// PRICED -> EMITTED, stopping at SKIPPED when data is missing
func (a *SnapshotAssembler) assembleOne(
	c interfaces.OptionContract,
	quotes map[string]interfaces.QuoteRecord,
	spots map[string]*float64,
	riskFreeRate float64,
	at time.Time,
) interfaces.SnapshotOutcome {
	out := interfaces.SnapshotOutcome{Contract: c, State: interfaces.StatePending}
	skip := func(reason interfaces.SkipReason) interfaces.SnapshotOutcome {
		out.State = interfaces.StateSkipped
		out.SkipReason = reason
		return out
	}

	quote, ok := quotes[c.TradingSymbol]
	if !ok {
		return skip(interfaces.SkipNoQuote)
	}
	out.State = interfaces.StateHasQuote

	spot := spots[c.Underlying]
	if spot == nil {
		return skip(interfaces.SkipNoSpot)
	}
	out.State = interfaces.StateHasSpot

	years := YearsToExpiry(c.Expiry, at)
	if years <= 0 && quote.LastPrice == nil {
		return skip(interfaces.SkipExpiredNoPrice)
	}

	var analytics interfaces.AnalyticsResult
	if quote.LastPrice != nil && years > 0 {
		in := PricingInput{
			Spot:          *spot,
			Strike:        c.Strike,
			TimeToExpiry:  years,
			RiskFreeRate:  riskFreeRate,
			DividendYield: a.cfg.DividendYield,
			Side:          c.Side,
		}
		analytics = Analytics(*quote.LastPrice, in, a.solverFor(c.Underlying))
	}
	out.State = interfaces.StatePriced

	out.Snapshot = &interfaces.Snapshot{
		Contract:     c,
		SnapshotTime: at,
		Observation: interfaces.MarketObservation{
			UnderlyingPrice: spot,
			LastPrice:       quote.LastPrice,
			BidPrice:        quote.BidPrice,
			BidQty:          quote.BidQty,
			AskPrice:        quote.AskPrice,
			AskQty:          quote.AskQty,
			Volume:          quote.Volume,
			OpenInterest:    quote.OpenInterest,
		},
		Analytics: analytics,
	}
	out.State = interfaces.StateEmitted
	return out
}

func (a *SnapshotAssembler) solverFor(underlying string) SolverConfig {
	if cfg, ok := a.cfg.SolverOverrides[underlying]; ok {
		return cfg
	}
	return a.cfg.Solver
}

// YearsToExpiry is the number of whole calendar days from at to expiry,
// floored at zero, over a flat 365-day year
func YearsToExpiry(expiry, at time.Time) float64 {
	days := math.Floor(dateOf(expiry).Sub(dateOf(at)).Hours() / 24)
	if days <= 0 {
		return 0
	}
	return days / DaysPerYear
}

func chunkStrings(items []string, size int) [][]string {
	if size <= 0 || len(items) <= size {
		return [][]string{items}
	}

	var chunks [][]string
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

func newTextLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return logger
}
