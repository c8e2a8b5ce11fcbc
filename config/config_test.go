package config

import (
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-analytics/services"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	tmpfile, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	require.NoError(t, err)
	_, err = tmpfile.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())
	return tmpfile.Name()
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "kite", cfg.Provider.Name)
	assert.Equal(t, 30*time.Second, cfg.Kite.Timeout)
	assert.Equal(t, 0.07, cfg.Analytics.RiskFreeRate)
	assert.Equal(t, services.DefaultSolverConfig, cfg.Analytics.Solver)
	assert.Equal(t, 500, cfg.Analytics.QuoteBatchSize)
	assert.Equal(t, 200*time.Millisecond, cfg.Storage.SlowThreshold)
	assert.Equal(t, 90, cfg.Storage.RetentionDays)
	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, 10*time.Minute, cfg.Server.WriteTimeout)
	assert.Equal(t, []string{"NSE", "BSE"}, cfg.Catalog.StockExchanges)
	assert.Equal(t, []string{"NFO"}, cfg.OptionExchanges())
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
provider:
  name: alpaca

alpaca:
  api_key: "key"
  secret_key: "secret"
  underlyings:
    - AAPL
    - SPY

catalog:
  target_underlyings:
    - AAPL
    - SPY

analytics:
  risk_free_rate: 0.045
  dividend_yield: 0.01
  quote_batch_size: 100
  workers: 4
  solver:
    min_vol: 0.001
    max_vol: 3.0
    tolerance: 0.0001
    max_iterations: 200
  solver_overrides:
    "nifty 50":
      min_vol: 0.01
      max_vol: 2.0
      tolerance: 0.001
      max_iterations: 50

storage:
  db_path: "./data/test.db"
  slow_threshold: 1s

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.ValidateProvider())

	assert.Equal(t, "alpaca", cfg.Provider.Name)
	assert.Equal(t, []string{"AAPL", "SPY"}, cfg.Alpaca.Underlyings)
	assert.Equal(t, []string{"OPRA"}, cfg.OptionExchanges())
	assert.Equal(t, time.Second, cfg.Storage.SlowThreshold)
	assert.Equal(t, 200, cfg.Analytics.Solver.MaxIterations)

	assembler := cfg.AssemblerConfig()
	assert.Equal(t, 0.01, assembler.DividendYield)
	assert.Equal(t, 4, assembler.Workers)
	require.Contains(t, assembler.SolverOverrides, "NIFTY")
	assert.Equal(t, 50, assembler.SolverOverrides["NIFTY"].MaxIterations)

	svcCfg := cfg.OptionsServiceConfig()
	assert.Equal(t, "alpaca", svcCfg.ProviderName)
	assert.Equal(t, 0.045, svcCfg.RiskFreeRate)

	logger := NewLogger(cfg.Logging)
	assert.Equal(t, logrus.DebugLevel, logger.Level)
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("KITE_API_KEY", "env-key")
	t.Setenv("TARGET_UNDERLYINGS", "NIFTY, FINNIFTY ,")
	t.Setenv("DB_PATH", "/tmp/env.db")
	t.Setenv("OPTIONS_ANALYTICS_WORKERS", "8")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Kite.APIKey)
	assert.Equal(t, []string{"NIFTY", "FINNIFTY"}, cfg.Catalog.TargetUnderlyings)
	assert.Equal(t, "/tmp/env.db", cfg.Storage.DBPath)
	assert.Equal(t, 8, cfg.Analytics.Workers)
	require.NoError(t, cfg.ValidateProvider())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"provider.name":                func(c *Config) { c.Provider.Name = "polygon" },
		"analytics.risk_free_rate":     func(c *Config) { c.Analytics.RiskFreeRate = 2 },
		"analytics.dividend_yield":     func(c *Config) { c.Analytics.DividendYield = -0.1 },
		"analytics.quote_batch_size":   func(c *Config) { c.Analytics.QuoteBatchSize = -1 },
		"analytics.solver.max_vol":     func(c *Config) { c.Analytics.Solver.MaxVol = c.Analytics.Solver.MinVol },
		"analytics.solver.tolerance":   func(c *Config) { c.Analytics.Solver.Tolerance = 0 },
		"analytics.solver_overrides.X": func(c *Config) { c.Analytics.SolverOverrides = map[string]services.SolverConfig{"X": {}} },
		"storage.db_path":              func(c *Config) { c.Storage.DBPath = "" },
		"server.mode":                  func(c *Config) { c.Server.Mode = "prod" },
		"logging.level":                func(c *Config) { c.Logging.Level = "verbose" },
		"logging.format":               func(c *Config) { c.Logging.Format = "xml" },
	}

	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)

			mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), field)
		})
	}
}

func TestValidateProvider(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Kite.APIKey = ""
	assert.ErrorContains(t, cfg.ValidateProvider(), "kite.api_key")

	cfg.Provider.Name = "alpaca"
	cfg.Alpaca.APIKey = "key"
	cfg.Alpaca.SecretKey = ""
	assert.ErrorContains(t, cfg.ValidateProvider(), "alpaca.api_key and alpaca.secret_key")
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"NIFTY", "BANKNIFTY", "FINNIFTY"}, splitList([]string{"NIFTY, BANKNIFTY", " FINNIFTY ", ""}))
	assert.Nil(t, splitList(nil))
}
