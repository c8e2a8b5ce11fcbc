package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"options-analytics/database"
	"options-analytics/services"
)

// Config represents the complete application configuration
type Config struct {
	Provider  ProviderConfig        `mapstructure:"provider"`
	Kite      services.KiteConfig   `mapstructure:"kite"`
	Alpaca    services.AlpacaConfig `mapstructure:"alpaca"`
	Catalog   CatalogConfig         `mapstructure:"catalog"`
	Analytics AnalyticsConfig       `mapstructure:"analytics"`
	Storage   StorageConfig         `mapstructure:"storage"`
	Server    ServerConfig          `mapstructure:"server"`
	Journal   JournalConfig         `mapstructure:"journal"`
	Logging   LoggingConfig         `mapstructure:"logging"`
}

// ProviderConfig selects the market data provider
type ProviderConfig struct {
	Name string `mapstructure:"name"` // kite or alpaca
}

// CatalogConfig holds instrument catalog configuration
type CatalogConfig struct {
	OptionExchanges   []string `mapstructure:"option_exchanges"`
	StockExchanges    []string `mapstructure:"stock_exchanges"`
	TargetUnderlyings []string `mapstructure:"target_underlyings"`
}

// AnalyticsConfig holds pricing and snapshot assembly configuration
type AnalyticsConfig struct {
	RiskFreeRate    float64                          `mapstructure:"risk_free_rate"`
	DividendYield   float64                          `mapstructure:"dividend_yield"`
	QuoteBatchSize  int                              `mapstructure:"quote_batch_size"`
	Workers         int                              `mapstructure:"workers"`
	Solver          services.SolverConfig            `mapstructure:"solver"`
	SolverOverrides map[string]services.SolverConfig `mapstructure:"solver_overrides"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	DBPath          string        `mapstructure:"db_path"`
	InsertBatchSize int           `mapstructure:"insert_batch_size"`
	LookupChunkSize int           `mapstructure:"lookup_chunk_size"`
	SlowThreshold   time.Duration `mapstructure:"slow_threshold"`
	RetentionDays   int           `mapstructure:"retention_days"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// JournalConfig holds run journal configuration
type JournalConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// envBindings maps config keys to the plain environment names the data
// loaders have always used
var envBindings = map[string][]string{
	"kite.api_key":               {"KITE_API_KEY"},
	"kite.api_secret":            {"KITE_API_SECRET"},
	"kite.access_token_path":     {"KITE_ACCESS_TOKEN_PATH"},
	"alpaca.api_key":             {"APCA_API_KEY_ID", "ALPACA_API_KEY"},
	"alpaca.secret_key":          {"APCA_API_SECRET_KEY", "ALPACA_SECRET_KEY"},
	"catalog.target_underlyings": {"TARGET_UNDERLYINGS"},
	"storage.db_path":            {"DB_PATH"},
}

// Load reads configuration from an optional .env file, an optional config
// file and environment variables. An empty path skips the config file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Enable environment variable override
	v.SetEnvPrefix("OPTIONS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Catalog.TargetUnderlyings = splitList(cfg.Catalog.TargetUnderlyings)
	cfg.Catalog.OptionExchanges = splitList(cfg.Catalog.OptionExchanges)
	cfg.Catalog.StockExchanges = splitList(cfg.Catalog.StockExchanges)

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Provider defaults
	v.SetDefault("provider.name", "kite")

	// Kite defaults
	v.SetDefault("kite.api_key", "")
	v.SetDefault("kite.api_secret", "")
	v.SetDefault("kite.access_token_path", "kite_access_token.txt")
	v.SetDefault("kite.base_url", "https://api.kite.trade")
	v.SetDefault("kite.quote_exchange", "NFO")
	v.SetDefault("kite.timeout", "30s")

	// Alpaca defaults
	v.SetDefault("alpaca.api_key", "")
	v.SetDefault("alpaca.secret_key", "")
	v.SetDefault("alpaca.trading_url", "https://paper-api.alpaca.markets")
	v.SetDefault("alpaca.data_url", "https://data.alpaca.markets")
	v.SetDefault("alpaca.underlyings", []string{})

	// Catalog defaults
	v.SetDefault("catalog.option_exchanges", []string{})
	v.SetDefault("catalog.stock_exchanges", services.DefaultStockExchanges)
	v.SetDefault("catalog.target_underlyings", []string{"NIFTY", "BANKNIFTY"})

	// Analytics defaults
	v.SetDefault("analytics.risk_free_rate", services.DefaultRiskFreeRate)
	v.SetDefault("analytics.dividend_yield", 0.0)
	v.SetDefault("analytics.quote_batch_size", 500)
	v.SetDefault("analytics.workers", 1)
	v.SetDefault("analytics.solver.min_vol", services.DefaultSolverConfig.MinVol)
	v.SetDefault("analytics.solver.max_vol", services.DefaultSolverConfig.MaxVol)
	v.SetDefault("analytics.solver.tolerance", services.DefaultSolverConfig.Tolerance)
	v.SetDefault("analytics.solver.max_iterations", services.DefaultSolverConfig.MaxIterations)

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/options.db")
	v.SetDefault("storage.insert_batch_size", database.DefaultStorageOptions.InsertBatchSize)
	v.SetDefault("storage.lookup_chunk_size", database.DefaultStorageOptions.LookupChunkSize)
	v.SetDefault("storage.slow_threshold", "200ms")
	v.SetDefault("storage.retention_days", 90)

	// Server defaults
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "10m")

	// Journal defaults
	v.SetDefault("journal.dir", "./data/runs")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid. Provider
// credentials are checked separately by ValidateProvider.
func (c *Config) Validate() error {
	// Validate Provider config
	if c.Provider.Name != "kite" && c.Provider.Name != "alpaca" {
		return fmt.Errorf("provider.name must be one of: kite, alpaca")
	}

	// Validate Analytics config
	if c.Analytics.RiskFreeRate < -1 || c.Analytics.RiskFreeRate > 1 {
		return fmt.Errorf("analytics.risk_free_rate must be between -1.0 and 1.0")
	}
	if c.Analytics.DividendYield < 0 || c.Analytics.DividendYield > 1 {
		return fmt.Errorf("analytics.dividend_yield must be between 0.0 and 1.0")
	}
	if c.Analytics.QuoteBatchSize < 0 {
		return fmt.Errorf("analytics.quote_batch_size must not be negative")
	}
	if c.Analytics.Workers < 0 {
		return fmt.Errorf("analytics.workers must not be negative")
	}
	if err := validateSolver("analytics.solver", c.Analytics.Solver); err != nil {
		return err
	}
	for underlying, solver := range c.Analytics.SolverOverrides {
		if err := validateSolver("analytics.solver_overrides."+underlying, solver); err != nil {
			return err
		}
	}

	// Validate Storage config
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Storage.InsertBatchSize < 1 {
		return fmt.Errorf("storage.insert_batch_size must be at least 1")
	}
	if c.Storage.LookupChunkSize < 1 {
		return fmt.Errorf("storage.lookup_chunk_size must be at least 1")
	}

	// Validate Server config
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	validModes := map[string]bool{"debug": true, "release": true, "test": true}
	if !validModes[c.Server.Mode] {
		return fmt.Errorf("server.mode must be one of: debug, release, test")
	}

	// Validate Journal config
	if c.Journal.Dir == "" {
		return fmt.Errorf("journal.dir is required")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// ValidateProvider checks the credentials of the selected provider
func (c *Config) ValidateProvider() error {
	switch c.Provider.Name {
	case "kite":
		if c.Kite.APIKey == "" {
			return fmt.Errorf("kite.api_key is required (KITE_API_KEY)")
		}
		if c.Kite.AccessTokenPath == "" {
			return fmt.Errorf("kite.access_token_path is required (KITE_ACCESS_TOKEN_PATH)")
		}
	case "alpaca":
		if c.Alpaca.APIKey == "" || c.Alpaca.SecretKey == "" {
			return fmt.Errorf("alpaca.api_key and alpaca.secret_key are required")
		}
	default:
		return fmt.Errorf("unknown provider %q", c.Provider.Name)
	}
	return nil
}

func validateSolver(key string, s services.SolverConfig) error {
	if s.MinVol <= 0 {
		return fmt.Errorf("%s.min_vol must be positive", key)
	}
	if s.MaxVol <= s.MinVol {
		return fmt.Errorf("%s.max_vol must be greater than min_vol", key)
	}
	if s.Tolerance <= 0 {
		return fmt.Errorf("%s.tolerance must be positive", key)
	}
	if s.MaxIterations < 1 {
		return fmt.Errorf("%s.max_iterations must be at least 1", key)
	}
	return nil
}

// OptionExchanges returns the configured option exchanges, or the provider's
// default when none are set
func (c *Config) OptionExchanges() []string {
	if len(c.Catalog.OptionExchanges) > 0 {
		return c.Catalog.OptionExchanges
	}
	if c.Provider.Name == "alpaca" {
		return []string{services.AlpacaOptionExchange}
	}
	return services.DefaultOptionExchanges
}

// AssemblerConfig returns the snapshot assembler settings. Override keys are
// normalized to canonical underlyings.
func (c *Config) AssemblerConfig() services.AssemblerConfig {
	overrides := make(map[string]services.SolverConfig, len(c.Analytics.SolverOverrides))
	for underlying, solver := range c.Analytics.SolverOverrides {
		overrides[services.NormalizeUnderlying(underlying)] = solver
	}

	return services.AssemblerConfig{
		DividendYield:   c.Analytics.DividendYield,
		QuoteBatchSize:  c.Analytics.QuoteBatchSize,
		Workers:         c.Analytics.Workers,
		Solver:          c.Analytics.Solver,
		SolverOverrides: overrides,
	}
}

// OptionsServiceConfig returns the options pipeline settings
func (c *Config) OptionsServiceConfig() services.OptionsServiceConfig {
	return services.OptionsServiceConfig{
		ProviderName:    c.Provider.Name,
		OptionExchanges: c.OptionExchanges(),
		RiskFreeRate:    c.Analytics.RiskFreeRate,
		Assembler:       c.AssemblerConfig(),
	}
}

// StorageOptions returns the database tuning options
func (c *Config) StorageOptions() database.StorageOptions {
	return database.StorageOptions{
		InsertBatchSize: c.Storage.InsertBatchSize,
		LookupChunkSize: c.Storage.LookupChunkSize,
		SlowThreshold:   c.Storage.SlowThreshold,
	}
}

// NewLogger builds the root logger from the logging configuration
func NewLogger(cfg LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

// splitList flattens comma-separated entries and drops blanks
func splitList(items []string) []string {
	var out []string
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
