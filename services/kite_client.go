package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/sirupsen/logrus"

	"options-analytics/interfaces"
)

const (
	kiteAPIURL   = "https://api.kite.trade"
	kiteLoginURL = "https://kite.zerodha.com/connect/login"
)

// kiteSpotSymbols maps canonical underlyings to the index symbol Kite quotes spot under
var kiteSpotSymbols = map[string]string{
	"NIFTY":      "NSE:NIFTY 50",
	"BANKNIFTY":  "NSE:NIFTY BANK",
	"FINNIFTY":   "NSE:NIFTY FIN SERVICE",
	"MIDCPNIFTY": "NSE:NIFTY MID SELECT",
	"NIFTYNXT50": "NSE:NIFTY NEXT 50",
	"SENSEX":     "BSE:SENSEX",
	"BANKEX":     "BSE:BANKEX",
	"SENSEX50":   "BSE:SENSEX50",
}

// KiteSpotSymbol returns the quote symbol of an underlying's spot price.
// Unknown underlyings are assumed to be NSE equities.
func KiteSpotSymbol(underlying string) string {
	if sym, ok := kiteSpotSymbols[underlying]; ok {
		return sym
	}
	return "NSE:" + underlying
}

// KiteConfig holds Kite Connect credentials
type KiteConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	APISecret       string        `mapstructure:"api_secret"`
	AccessTokenPath string        `mapstructure:"access_token_path"`
	BaseURL         string        `mapstructure:"base_url"`
	QuoteExchange   string        `mapstructure:"quote_exchange"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// KiteClient is a Kite Connect v3 market data client
type KiteClient struct {
	apiKey        string
	accessToken   string
	baseURL       string
	quoteExchange string
	logger        *logrus.Logger
	client        *http.Client
}

// NewKiteClient creates a client authenticated with the token stored at
// cfg.AccessTokenPath
func NewKiteClient(cfg KiteConfig, logger *logrus.Logger) (*KiteClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("kite api key is required")
	}

	token, err := LoadKiteAccessToken(cfg.AccessTokenPath)
	if err != nil {
		return nil, err
	}

	return newKiteClient(cfg, token, logger), nil
}

func newKiteClient(cfg KiteConfig, accessToken string, logger *logrus.Logger) *KiteClient {
	if logger == nil {
		logger = newTextLogger()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = kiteAPIURL
	}
	if cfg.QuoteExchange == "" {
		cfg.QuoteExchange = DefaultOptionExchanges[0]
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &KiteClient{
		apiKey:        cfg.APIKey,
		accessToken:   accessToken,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		quoteExchange: cfg.QuoteExchange,
		logger:        logger,
		client:        &http.Client{Timeout: cfg.Timeout},
	}
}

// LoadKiteAccessToken reads the daily access token from a plain text file
func LoadKiteAccessToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read kite access token from %s: %w", path, err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("kite access token file %s is empty", path)
	}
	return token, nil
}

// KiteLoginURL is the browser login page that redirects back with a request token
func KiteLoginURL(apiKey string) string {
	return fmt.Sprintf("%s?v=3&api_key=%s", kiteLoginURL, url.QueryEscape(apiKey))
}

// GenerateKiteSession exchanges a request token for an access token and writes
// it to cfg.AccessTokenPath
func GenerateKiteSession(ctx context.Context, cfg KiteConfig, requestToken string) (string, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return "", fmt.Errorf("kite api key and secret are required")
	}

	sum := sha256.Sum256([]byte(cfg.APIKey + requestToken + cfg.APISecret))
	form := url.Values{
		"api_key":       {cfg.APIKey},
		"request_token": {requestToken},
		"checksum":      {hex.EncodeToString(sum[:])},
	}

	c := newKiteClient(cfg, "", nil)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/session/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Kite-Version", "3")

	var session struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.doJSON(req, &session); err != nil {
		return "", fmt.Errorf("failed to generate session: %w", err)
	}
	if session.AccessToken == "" {
		return "", fmt.Errorf("kite session response has no access token")
	}

	if dir := filepath.Dir(cfg.AccessTokenPath); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return "", fmt.Errorf("failed to create token directory: %w", err)
		}
	}
	if err := os.WriteFile(cfg.AccessTokenPath, []byte(session.AccessToken), 0600); err != nil {
		return "", fmt.Errorf("failed to write access token: %w", err)
	}

	return session.AccessToken, nil
}

// SpotSymbol implements interfaces.MarketDataProvider
func (c *KiteClient) SpotSymbol(underlying string) string {
	return KiteSpotSymbol(underlying)
}

// FetchInstruments downloads the instrument dump of an exchange. Kite serves it
// as CSV; every cell is kept as a string and coerced at parse time.
func (c *KiteClient) FetchInstruments(ctx context.Context, exchange string) ([]interfaces.RawInstrument, error) {
	req, err := c.newRequest(ctx, "/instruments/"+url.PathEscape(exchange), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch instruments: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	rows, err := gocsv.CSVToMaps(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse instrument dump: %w", err)
	}

	instruments := make([]interfaces.RawInstrument, len(rows))
	for i, row := range rows {
		raw := make(interfaces.RawInstrument, len(row))
		for k, v := range row {
			raw[k] = v
		}
		instruments[i] = raw
	}

	c.logger.WithFields(logrus.Fields{
		"exchange": exchange,
		"count":    len(instruments),
	}).Info("Fetched instrument dump")

	return instruments, nil
}

// kiteQuote is the subset of the /quote payload we read. Numbers are decoded
// as json.Number so malformed values become nulls instead of errors.
type kiteQuote struct {
	LastPrice any `json:"last_price"`
	Volume    any `json:"volume"`
	OI        any `json:"oi"`
	Depth     struct {
		Buy  []kiteDepth `json:"buy"`
		Sell []kiteDepth `json:"sell"`
	} `json:"depth"`
}

type kiteDepth struct {
	Price    any `json:"price"`
	Quantity any `json:"quantity"`
}

// FetchQuotes returns full quotes keyed by bare trading symbol. Symbols
// without an exchange prefix are quoted on the configured option exchange.
func (c *KiteClient) FetchQuotes(ctx context.Context, symbols []string) (map[string]interfaces.QuoteRecord, error) {
	quotes := make(map[string]interfaces.QuoteRecord, len(symbols))
	if len(symbols) == 0 {
		return quotes, nil
	}

	params := url.Values{}
	for _, sym := range symbols {
		if !strings.Contains(sym, ":") {
			sym = c.quoteExchange + ":" + sym
		}
		params.Add("i", sym)
	}

	req, err := c.newRequest(ctx, "/quote", params)
	if err != nil {
		return nil, err
	}

	var data map[string]kiteQuote
	if err := c.doJSON(req, &data); err != nil {
		return nil, fmt.Errorf("failed to fetch quotes: %w", err)
	}

	for key, q := range data {
		quotes[bareSymbol(key)] = parseKiteQuote(q)
	}

	c.logger.WithFields(logrus.Fields{
		"requested": len(symbols),
		"received":  len(quotes),
	}).Debug("Fetched quotes")

	return quotes, nil
}

// parseKiteQuote converts a quote payload, taking the best level of each depth side
func parseKiteQuote(q kiteQuote) interfaces.QuoteRecord {
	rec := interfaces.QuoteRecord{
		LastPrice:    coerceFloat(q.LastPrice),
		Volume:       coerceInt(q.Volume),
		OpenInterest: coerceInt(q.OI),
	}
	if len(q.Depth.Buy) > 0 {
		rec.BidPrice = coerceFloat(q.Depth.Buy[0].Price)
		rec.BidQty = coerceInt(q.Depth.Buy[0].Quantity)
	}
	if len(q.Depth.Sell) > 0 {
		rec.AskPrice = coerceFloat(q.Depth.Sell[0].Price)
		rec.AskQty = coerceInt(q.Depth.Sell[0].Quantity)
	}
	return rec
}

// FetchSpot returns last traded prices keyed by the requested EXCH:SYMBOL
func (c *KiteClient) FetchSpot(ctx context.Context, symbols []string) (map[string]*float64, error) {
	prices := make(map[string]*float64, len(symbols))
	if len(symbols) == 0 {
		return prices, nil
	}

	params := url.Values{}
	for _, sym := range symbols {
		params.Add("i", sym)
	}

	req, err := c.newRequest(ctx, "/quote/ltp", params)
	if err != nil {
		return nil, err
	}

	var data map[string]struct {
		LastPrice any `json:"last_price"`
	}
	if err := c.doJSON(req, &data); err != nil {
		return nil, fmt.Errorf("failed to fetch ltp: %w", err)
	}

	for _, sym := range symbols {
		if ltp, ok := data[sym]; ok {
			prices[sym] = coerceFloat(ltp.LastPrice)
		}
	}

	return prices, nil
}

func (c *KiteClient) newRequest(ctx context.Context, path string, params url.Values) (*http.Request, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("X-Kite-Version", "3")
	req.Header.Set("Authorization", fmt.Sprintf("token %s:%s", c.apiKey, c.accessToken))
	return req, nil
}

// doJSON executes req and decodes the "data" member of Kite's response envelope
func (c *KiteClient) doJSON(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var envelope struct {
		Status    string          `json:"status"`
		Message   string          `json:"message"`
		ErrorType string          `json:"error_type"`
		Data      json.RawMessage `json:"data"`
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&envelope); err != nil {
		return fmt.Errorf("API error %d: failed to decode response: %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK || envelope.Status == "error" {
		return fmt.Errorf("API error %d: %s: %s", resp.StatusCode, envelope.ErrorType, envelope.Message)
	}

	dataDec := json.NewDecoder(bytes.NewReader(envelope.Data))
	dataDec.UseNumber()
	return dataDec.Decode(out)
}

func bareSymbol(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[i+1:]
	}
	return key
}
