package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"options-analytics/interfaces"
)

// DefaultStockExchanges are the cash-market catalogs that list equities and indices
var DefaultStockExchanges = []string{"NSE", "BSE"}

// StockService maintains the equity and index catalog used to resolve underlyings
type StockService struct {
	source    interfaces.InstrumentSource
	store     interfaces.SnapshotStore
	exchanges []string
	logger    *logrus.Logger

	mu     sync.RWMutex
	tokens map[string]int64
}

// NewStockService creates a new stock service. An empty exchange list means
// DefaultStockExchanges.
func NewStockService(source interfaces.InstrumentSource, store interfaces.SnapshotStore, exchanges []string, logger *logrus.Logger) *StockService {
	if len(exchanges) == 0 {
		exchanges = DefaultStockExchanges
	}
	if logger == nil {
		logger = newTextLogger()
	}

	return &StockService{
		source:    source,
		store:     store,
		exchanges: exchanges,
		logger:    logger,
	}
}

// Refresh downloads the cash-market catalogs and stores any new equities and
// indices. It returns the number of instruments extracted.
func (s *StockService) Refresh(ctx context.Context) (int, error) {
	var stocks []interfaces.StockInstrument

	for _, exchange := range s.exchanges {
		dump, err := s.source.FetchInstruments(ctx, exchange)
		if err != nil {
			return 0, fmt.Errorf("failed to fetch %s instruments: %w", exchange, err)
		}

		extracted := ExtractStockInstruments(dump)
		s.logger.WithFields(logrus.Fields{
			"exchange":  exchange,
			"dump":      len(dump),
			"extracted": len(extracted),
		}).Info("Extracted stock instruments")

		stocks = append(stocks, extracted...)
	}

	if err := s.store.UpsertStockInstruments(stocks); err != nil {
		return 0, fmt.Errorf("failed to store stock instruments: %w", err)
	}

	tokens := BuildUnderlyingMapping(stocks)
	s.mu.Lock()
	s.tokens = tokens
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"stocks":      len(stocks),
		"underlyings": len(tokens),
	}).Info("Refreshed stock catalog")

	return len(stocks), nil
}

// UnderlyingTokens returns a copy of the canonical underlying to token mapping
// built by the last Refresh, or nil before any refresh
func (s *StockService) UnderlyingTokens() map[string]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.tokens == nil {
		return nil
	}
	out := make(map[string]int64, len(s.tokens))
	for k, v := range s.tokens {
		out[k] = v
	}
	return out
}

// FilterUnderlyings normalizes the requested underlyings and splits them into
// those with a stock or index in the refreshed catalog and those without.
// Before any Refresh every non-blank underlying is known.
func (s *StockService) FilterUnderlyings(raw []string) (known, unknown []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for u := range NormalizeUnderlyings(raw) {
		if _, ok := s.tokens[u]; ok || s.tokens == nil {
			known = append(known, u)
		} else {
			unknown = append(unknown, u)
		}
	}
	sort.Strings(known)
	sort.Strings(unknown)
	return known, unknown
}

// Count returns the number of stored stocks and indices
func (s *StockService) Count() (int64, error) {
	return s.store.CountStocks()
}

// Search finds stored stocks by partial name or trading symbol
func (s *StockService) Search(query, segment string, limit int) ([]interfaces.StockInstrument, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query is required")
	}
	if limit <= 0 {
		limit = 10
	}
	return s.store.SearchStocks(query, strings.TrimSpace(segment), limit)
}

// ExtractStockInstruments keeps equities (segment NSE or BSE with type EQ) and
// indices (segment ending in INDICES on NSE or BSE)
func ExtractStockInstruments(dump []interfaces.RawInstrument) []interfaces.StockInstrument {
	var stocks []interfaces.StockInstrument

	for _, raw := range dump {
		rec := ParseInstrument(raw)

		segment := ""
		if rec.Segment != nil {
			segment = *rec.Segment
		}
		cashExchange := rec.Exchange == "NSE" || rec.Exchange == "BSE"

		isStock := (segment == "NSE" || segment == "BSE") && rec.InstrumentType == "EQ"
		isIndex := strings.HasSuffix(segment, "INDICES") && cashExchange
		if !isStock && !isIndex {
			continue
		}

		stocks = append(stocks, interfaces.StockInstrument{
			Exchange:        rec.Exchange,
			TradingSymbol:   rec.TradingSymbol,
			Name:            rec.Name,
			InstrumentToken: rec.InstrumentToken,
			Segment:         rec.Segment,
			TickSize:        rec.TickSize,
			LotSize:         rec.LotSize,
		})
	}

	return stocks
}

// BuildUnderlyingMapping maps each canonical underlying to the token of the
// first stock or index whose name, or failing that trading symbol, normalizes
// to it. Equities listed under a long company name stay reachable by symbol.
func BuildUnderlyingMapping(stocks []interfaces.StockInstrument) map[string]int64 {
	mapping := make(map[string]int64)

	for _, s := range stocks {
		labels := []string{s.TradingSymbol}
		if s.Name != nil {
			labels = []string{*s.Name, s.TradingSymbol}
		}

		for _, label := range labels {
			underlying := NormalizeUnderlying(label)
			if underlying == "" {
				continue
			}
			if _, seen := mapping[underlying]; !seen {
				mapping[underlying] = s.InstrumentToken
			}
		}
	}

	return mapping
}
