package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"options-analytics/config"
	"options-analytics/database"
	"options-analytics/interfaces"
	"options-analytics/services"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "options-analytics",
	Short: "Option chain snapshots with implied volatility and Greeks",
	Long: `options-analytics pulls the option catalog and live quotes for an underlying,
solves Black-Scholes implied volatility and Greeks for every contract, and
stores timestamped snapshots for later chain and trend queries.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file. Environment variables and .env are always read.")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error).")

	rootCmd.AddCommand(serveCmd, processCmd, stocksCmd, chainCmd, cleanupCmd, kiteCmd)
}

// app holds the collaborators shared by subcommands
type app struct {
	cfg    *config.Config
	logger *log.Logger
}

func loadApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &app{
		cfg:    cfg,
		logger: config.NewLogger(cfg.Logging),
	}, nil
}

func (a *app) openStorage() (*database.LocalStorage, error) {
	return database.NewLocalStorage(a.cfg.Storage.DBPath, a.cfg.StorageOptions(), a.logger)
}

// provider builds the configured market data provider
func (a *app) provider() (interfaces.MarketDataProvider, error) {
	if err := a.cfg.ValidateProvider(); err != nil {
		return nil, err
	}

	switch a.cfg.Provider.Name {
	case "alpaca":
		alpacaCfg := a.cfg.Alpaca
		if len(alpacaCfg.Underlyings) == 0 {
			alpacaCfg.Underlyings = a.cfg.Catalog.TargetUnderlyings
		}
		return services.NewAlpacaMarketData(alpacaCfg, a.logger), nil
	default:
		client, err := services.NewKiteClient(a.cfg.Kite, a.logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

func (a *app) optionsService(store interfaces.SnapshotStore, journal *services.RunJournal) (*services.OptionsService, error) {
	provider, err := a.provider()
	if err != nil {
		return nil, err
	}
	return services.NewOptionsService(provider, store, journal, a.cfg.OptionsServiceConfig(), a.logger), nil
}
