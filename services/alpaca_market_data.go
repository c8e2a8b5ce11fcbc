package services

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"options-analytics/interfaces"
)

// AlpacaOptionExchange is the exchange code given to every Alpaca contract
const AlpacaOptionExchange = "OPRA"

// alpacaMaxSnapshotSymbols is the most contract symbols one options snapshots
// request accepts
const alpacaMaxSnapshotSymbols = 100

// AlpacaConfig holds Alpaca credentials and endpoints
type AlpacaConfig struct {
	APIKey      string   `mapstructure:"api_key"`
	SecretKey   string   `mapstructure:"secret_key"`
	TradingURL  string   `mapstructure:"trading_url"`
	DataURL     string   `mapstructure:"data_url"`
	Underlyings []string `mapstructure:"underlyings"`
}

// latestTradesClient is the part of the SDK market data client used for spot
type latestTradesClient interface {
	GetLatestTrades(symbols []string, req marketdata.GetLatestTradeRequest) (map[string]marketdata.Trade, error)
}

// AlpacaMarketData serves US listed options from Alpaca: contracts from the
// trading API, option quotes from the options snapshot endpoint, and spot from
// the latest stock trades
type AlpacaMarketData struct {
	apiKey      string
	secretKey   string
	tradingURL  string
	dataURL     string
	underlyings []string
	stocks      latestTradesClient
	logger      *logrus.Logger
	client      *http.Client

	// open interest by contract symbol, from the last contracts listing
	mu           sync.RWMutex
	openInterest map[string]*int64
}

// NewAlpacaMarketData creates a new Alpaca market data provider
func NewAlpacaMarketData(cfg AlpacaConfig, logger *logrus.Logger) *AlpacaMarketData {
	if logger == nil {
		logger = newTextLogger()
	}
	if cfg.TradingURL == "" {
		cfg.TradingURL = "https://paper-api.alpaca.markets"
	}
	if cfg.DataURL == "" {
		cfg.DataURL = "https://data.alpaca.markets"
	}

	stocks := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.SecretKey,
		BaseURL:   cfg.DataURL,
	})

	return &AlpacaMarketData{
		apiKey:       cfg.APIKey,
		secretKey:    cfg.SecretKey,
		tradingURL:   strings.TrimRight(cfg.TradingURL, "/"),
		dataURL:      strings.TrimRight(cfg.DataURL, "/"),
		underlyings:  cfg.Underlyings,
		stocks:       stocks,
		logger:       logger,
		client:       &http.Client{Timeout: 30 * time.Second},
		openInterest: make(map[string]*int64),
	}
}

// alpacaContractsResponse is one page of /v2/options/contracts
type alpacaContractsResponse struct {
	OptionContracts []map[string]any `json:"option_contracts"`
	NextPageToken   *string          `json:"next_page_token"`
}

// alpacaOptionSnapshot is one entry of /v1beta1/options/snapshots
type alpacaOptionSnapshot struct {
	LatestQuote *struct {
		BidPrice any `json:"bp"`
		AskPrice any `json:"ap"`
		BidSize  any `json:"bs"`
		AskSize  any `json:"as"`
	} `json:"latestQuote"`
	LatestTrade *struct {
		Price any `json:"p"`
	} `json:"latestTrade"`
	DailyBar *struct {
		Volume any `json:"v"`
	} `json:"dailyBar"`
}

type alpacaSnapshotsResponse struct {
	Snapshots     map[string]alpacaOptionSnapshot `json:"snapshots"`
	NextPageToken *string                         `json:"next_page_token"`
}

// SpotSymbol implements interfaces.MarketDataProvider. US underlyings are
// quoted under their own ticker.
func (s *AlpacaMarketData) SpotSymbol(underlying string) string {
	return underlying
}

// FetchInstruments returns the contracts of every configured underlying
func (s *AlpacaMarketData) FetchInstruments(ctx context.Context, exchange string) ([]interfaces.RawInstrument, error) {
	if exchange != AlpacaOptionExchange {
		return nil, fmt.Errorf("alpaca serves %s contracts only, got %s", AlpacaOptionExchange, exchange)
	}

	var all []interfaces.RawInstrument
	for _, underlying := range s.underlyings {
		contracts, err := s.FetchOptionChain(ctx, underlying)
		if err != nil {
			return nil, err
		}
		all = append(all, contracts...)
	}
	return all, nil
}

// FetchOptionChain pages through the active contracts of one underlying and
// maps them onto the catalog vocabulary shared with other providers
func (s *AlpacaMarketData) FetchOptionChain(ctx context.Context, underlying string) ([]interfaces.RawInstrument, error) {
	var instruments []interfaces.RawInstrument
	pageToken := ""

	for {
		params := url.Values{
			"underlying_symbols": {underlying},
			"status":             {"active"},
			"limit":              {"10000"},
		}
		if pageToken != "" {
			params.Set("page_token", pageToken)
		}

		var page alpacaContractsResponse
		if err := s.getJSON(ctx, s.tradingURL+"/v2/options/contracts?"+params.Encode(), &page); err != nil {
			return nil, fmt.Errorf("failed to fetch option contracts for %s: %w", underlying, err)
		}

		for _, c := range page.OptionContracts {
			instruments = append(instruments, alpacaContractToRaw(c))
		}
		s.rememberOpenInterest(page.OptionContracts)

		if page.NextPageToken == nil || *page.NextPageToken == "" {
			break
		}
		pageToken = *page.NextPageToken
	}

	s.logger.WithFields(logrus.Fields{
		"underlying": underlying,
		"count":      len(instruments),
	}).Info("Fetched option contracts")

	return instruments, nil
}

func alpacaContractToRaw(c map[string]any) interfaces.RawInstrument {
	instrumentType := ""
	switch c["type"] {
	case "call":
		instrumentType = "CE"
	case "put":
		instrumentType = "PE"
	}

	return interfaces.RawInstrument{
		"instrument_token": alpacaInstrumentToken(c["id"]),
		"exchange":         AlpacaOptionExchange,
		"tradingsymbol":    c["symbol"],
		"name":             c["underlying_symbol"],
		"strike":           c["strike_price"],
		"expiry":           c["expiration_date"],
		"instrument_type":  instrumentType,
		"lot_size":         c["size"],
		"tick_size":        nil,
		"segment":          "OPT",
		"open_interest":    c["open_interest"],
	}
}

func (s *AlpacaMarketData) rememberOpenInterest(contracts []map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range contracts {
		symbol, ok := c["symbol"].(string)
		if !ok {
			continue
		}
		if oi := coerceInt(c["open_interest"]); oi != nil {
			s.openInterest[symbol] = oi
		} else {
			delete(s.openInterest, symbol)
		}
	}
}

func (s *AlpacaMarketData) cachedOpenInterest(symbol string) *int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.openInterest[symbol]
}

// alpacaInstrumentToken folds a contract UUID into a positive int64 so Alpaca
// contracts share the integer token column with other providers
func alpacaInstrumentToken(id any) int64 {
	s, ok := id.(string)
	if !ok {
		return 0
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(parsed[:8]) >> 1)
}

// FetchQuotes returns the latest quote and trade of each option symbol,
// requesting at most alpacaMaxSnapshotSymbols symbols at a time. Open interest
// comes from the contracts listing, which the snapshots endpoint does not carry.
func (s *AlpacaMarketData) FetchQuotes(ctx context.Context, symbols []string) (map[string]interfaces.QuoteRecord, error) {
	quotes := make(map[string]interfaces.QuoteRecord, len(symbols))
	if len(symbols) == 0 {
		return quotes, nil
	}

	for _, chunk := range chunkStrings(symbols, alpacaMaxSnapshotSymbols) {
		if err := s.fetchSnapshots(ctx, chunk, quotes); err != nil {
			return nil, err
		}
	}
	return quotes, nil
}

func (s *AlpacaMarketData) fetchSnapshots(ctx context.Context, symbols []string, quotes map[string]interfaces.QuoteRecord) error {
	pageToken := ""
	for {
		params := url.Values{"symbols": {strings.Join(symbols, ",")}}
		if pageToken != "" {
			params.Set("page_token", pageToken)
		}

		var page alpacaSnapshotsResponse
		if err := s.getJSON(ctx, s.dataURL+"/v1beta1/options/snapshots?"+params.Encode(), &page); err != nil {
			return fmt.Errorf("failed to fetch option snapshots: %w", err)
		}

		for sym, snap := range page.Snapshots {
			rec := interfaces.QuoteRecord{OpenInterest: s.cachedOpenInterest(sym)}
			if snap.LatestTrade != nil {
				rec.LastPrice = coerceFloat(snap.LatestTrade.Price)
			}
			if snap.LatestQuote != nil {
				rec.BidPrice = coerceFloat(snap.LatestQuote.BidPrice)
				rec.BidQty = coerceInt(snap.LatestQuote.BidSize)
				rec.AskPrice = coerceFloat(snap.LatestQuote.AskPrice)
				rec.AskQty = coerceInt(snap.LatestQuote.AskSize)
			}
			if snap.DailyBar != nil {
				rec.Volume = coerceInt(snap.DailyBar.Volume)
			}
			quotes[sym] = rec
		}

		if page.NextPageToken == nil || *page.NextPageToken == "" {
			return nil
		}
		pageToken = *page.NextPageToken
	}
}

// FetchSpot returns the latest trade price of each underlying ticker
func (s *AlpacaMarketData) FetchSpot(ctx context.Context, symbols []string) (map[string]*float64, error) {
	prices := make(map[string]*float64, len(symbols))
	if len(symbols) == 0 {
		return prices, nil
	}

	trades, err := s.stocks.GetLatestTrades(symbols, marketdata.GetLatestTradeRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to get latest trades: %w", err)
	}

	for sym, trade := range trades {
		prices[sym] = coerceFloat(trade.Price)
	}
	return prices, nil
}

func (s *AlpacaMarketData) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	req.Header.Set("APCA-API-KEY-ID", s.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", s.secretKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
