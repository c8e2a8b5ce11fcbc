package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"options-analytics/interfaces"
)

// DefaultRiskFreeRate is the annual continuously compounded rate used for pricing
const DefaultRiskFreeRate = 0.07

// OptionsServiceConfig configures the options pipeline
type OptionsServiceConfig struct {
	ProviderName    string
	OptionExchanges []string
	RiskFreeRate    float64
	Assembler       AssemblerConfig
}

// OptionsService runs the end-to-end snapshot pipeline for an underlying:
// catalog, match, store contracts, assemble snapshots, store snapshots
type OptionsService struct {
	provider     interfaces.MarketDataProvider
	store        interfaces.SnapshotStore
	journal      *RunJournal
	matcher      *InstrumentMatcher
	assembler    *SnapshotAssembler
	exchanges    []string
	riskFreeRate float64
	providerName string
	logger       *logrus.Logger
	now          func() time.Time
}

// ProcessResult summarizes one pipeline run
type ProcessResult struct {
	RunID        string         `json:"run_id"`
	Underlying   string         `json:"underlying"`
	Contracts    int            `json:"option_contracts"`
	Snapshots    int            `json:"snapshots"`
	Saved        int            `json:"inserted_snapshots"`
	Skipped      map[string]int `json:"skipped"`
	SnapshotTime time.Time      `json:"snapshot_time"`
}

// NewOptionsService creates the pipeline. journal may be nil.
func NewOptionsService(
	provider interfaces.MarketDataProvider,
	store interfaces.SnapshotStore,
	journal *RunJournal,
	cfg OptionsServiceConfig,
	logger *logrus.Logger,
) *OptionsService {
	if logger == nil {
		logger = newTextLogger()
	}
	if len(cfg.OptionExchanges) == 0 {
		cfg.OptionExchanges = DefaultOptionExchanges
	}

	return &OptionsService{
		provider:     provider,
		store:        store,
		journal:      journal,
		matcher:      NewInstrumentMatcher(cfg.OptionExchanges),
		assembler:    NewSnapshotAssembler(provider, provider, provider.SpotSymbol, cfg.Assembler, logger),
		exchanges:    cfg.OptionExchanges,
		riskFreeRate: cfg.RiskFreeRate,
		providerName: cfg.ProviderName,
		logger:       logger,
		now:          time.Now,
	}
}

// ProcessUnderlying fetches, analyzes and stores one snapshot of every listed
// option on the underlying
func (s *OptionsService) ProcessUnderlying(ctx context.Context, raw string) (*ProcessResult, error) {
	underlying := NormalizeUnderlying(raw)
	if underlying == "" {
		return nil, interfaces.ErrEmptyUnderlying
	}

	result := &ProcessResult{
		RunID:      uuid.NewString(),
		Underlying: underlying,
		Skipped:    make(map[string]int),
	}
	started := s.now()

	err := s.process(ctx, result)
	s.record(result, started, err)
	if err != nil {
		return result, err
	}

	s.logger.WithFields(logrus.Fields{
		"run_id":     result.RunID,
		"underlying": underlying,
		"contracts":  result.Contracts,
		"saved":      result.Saved,
		"duration":   s.now().Sub(started).String(),
	}).Info("Processed underlying")

	return result, nil
}

// ProcessUnderlyings runs the pipeline for each underlying in turn. A failure
// does not stop the remaining underlyings; all errors are returned joined.
func (s *OptionsService) ProcessUnderlyings(ctx context.Context, underlyings []string) ([]*ProcessResult, error) {
	var results []*ProcessResult
	var errs []error

	for _, u := range underlyings {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		res, err := s.ProcessUnderlying(ctx, u)
		if err != nil {
			s.logger.WithError(err).WithField("underlying", u).Error("Failed to process underlying")
			errs = append(errs, fmt.Errorf("%s: %w", u, err))
			continue
		}
		results = append(results, res)
	}

	return results, errors.Join(errs...)
}

func (s *OptionsService) process(ctx context.Context, result *ProcessResult) error {
	catalog, err := s.fetchCatalog(ctx, result.Underlying)
	if err != nil {
		return err
	}

	contracts := s.matcher.Match(catalog, []string{result.Underlying})
	result.Contracts = len(contracts)
	s.logger.WithFields(logrus.Fields{
		"underlying": result.Underlying,
		"catalog":    len(catalog),
		"contracts":  len(contracts),
	}).Info("Matched option contracts")

	if len(contracts) == 0 {
		return fmt.Errorf("%w for %s", interfaces.ErrNoContracts, result.Underlying)
	}

	if err := s.store.UpsertOptionInstruments(contracts); err != nil {
		return fmt.Errorf("failed to store option contracts: %w", err)
	}

	tokens := make([]int64, len(contracts))
	for i, c := range contracts {
		tokens[i] = c.InstrumentToken
	}
	ids, err := s.store.OptionInstrumentIDsByToken(tokens)
	if err != nil {
		return fmt.Errorf("failed to map instrument tokens: %w", err)
	}

	report, err := s.assembler.Assemble(ctx, contracts, s.riskFreeRate)
	if err != nil {
		return err
	}
	result.SnapshotTime = report.SnapshotTime
	for reason, n := range report.Skipped {
		result.Skipped[string(reason)] = n
	}

	snapshots := report.Snapshots()
	result.Snapshots = len(snapshots)

	rows := make([]interfaces.SnapshotRow, 0, len(snapshots))
	for _, snap := range snapshots {
		id, ok := ids[snap.Contract.InstrumentToken]
		if !ok {
			continue
		}
		rows = append(rows, interfaces.SnapshotRow{
			OptionInstrumentID: id,
			RunID:              result.RunID,
			Snapshot:           snap,
		})
	}

	saved, err := s.store.SaveSnapshots(rows)
	if err != nil {
		return fmt.Errorf("failed to store snapshots: %w", err)
	}
	result.Saved = saved

	return nil
}

// fetchCatalog prefers a per-underlying chain when the provider offers one and
// falls back to the full catalog of each option exchange
func (s *OptionsService) fetchCatalog(ctx context.Context, underlying string) ([]interfaces.RawInstrument, error) {
	if chains, ok := s.provider.(interfaces.ChainSource); ok {
		catalog, err := chains.FetchOptionChain(ctx, underlying)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch option chain: %w", err)
		}
		return catalog, nil
	}

	var catalog []interfaces.RawInstrument
	for _, exchange := range s.exchanges {
		dump, err := s.provider.FetchInstruments(ctx, exchange)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s instruments: %w", exchange, err)
		}
		catalog = append(catalog, dump...)
	}
	return catalog, nil
}

func (s *OptionsService) record(result *ProcessResult, started time.Time, runErr error) {
	if s.journal == nil {
		return
	}

	run := RunRecord{
		RunID:        result.RunID,
		Underlying:   result.Underlying,
		Provider:     s.providerName,
		StartedAt:    started,
		FinishedAt:   s.now(),
		SnapshotTime: result.SnapshotTime,
		Contracts:    result.Contracts,
		Snapshots:    result.Snapshots,
		Saved:        result.Saved,
		Skipped:      result.Skipped,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}

	if err := s.journal.Record(run); err != nil {
		s.logger.WithError(err).Warn("Failed to record run")
	}
}

// LatestChain returns the most recent stored snapshot of each contract on the
// underlying
func (s *OptionsService) LatestChain(raw string) (string, []interfaces.ChainRow, error) {
	underlying := NormalizeUnderlying(raw)
	if underlying == "" {
		return "", nil, interfaces.ErrEmptyUnderlying
	}

	rows, err := s.store.LatestOptionChain(underlying)
	if err != nil {
		return underlying, nil, err
	}
	return underlying, rows, nil
}
