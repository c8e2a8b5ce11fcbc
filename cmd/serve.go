package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"options-analytics/controllers"
	"options-analytics/services"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}

		store, err := a.openStorage()
		if err != nil {
			return err
		}
		defer store.Close()

		provider, err := a.provider()
		if err != nil {
			return err
		}

		journal := services.NewRunJournal(a.cfg.Journal.Dir, a.logger)
		options := services.NewOptionsService(provider, store, journal, a.cfg.OptionsServiceConfig(), a.logger)
		trend := services.NewTrendService(store, a.logger)
		stocks := services.NewStockService(provider, store, a.cfg.Catalog.StockExchanges, a.logger)

		gin.SetMode(a.cfg.Server.Mode)
		router := controllers.NewRouter(controllers.Handlers{
			Options: controllers.NewOptionsController(options, trend, a.logger),
			Stocks:  controllers.NewStockController(stocks),
			Runs:    controllers.NewRunController(journal),
		}, a.logger)

		srv := &http.Server{
			Addr:         a.cfg.Server.Addr,
			Handler:      router,
			ReadTimeout:  a.cfg.Server.ReadTimeout,
			WriteTimeout: a.cfg.Server.WriteTimeout,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			a.logger.WithFields(log.Fields{
				"addr":     srv.Addr,
				"provider": a.cfg.Provider.Name,
			}).Info("HTTP server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		a.logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}
