package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fentz26/gapforge/internal/controlplane"
	"github.com/fentz26/gapforge/internal/scheduler"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	listenAddr    string
	reviewMinUses int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the gapforge HTTP API",
	Long: `Starts the HTTP API over the budget, performance and audit ledgers, and a
background scheduler that rolls budget windows and reviews tools for retirement.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:7467", "Listen address for the API server")
	serveCmd.Flags().IntVar(&reviewMinUses, "retire-min-uses", 10, "Minimum uses before the daily review flags a tool")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}

	controlplane.Version = version
	server := controlplane.NewServer(a.service, listenAddr, logger.Named("api"))

	sched := scheduler.New(scheduler.DefaultConfig(), logger.Named("scheduler"),
		scheduler.BudgetRollover(a.budget),
		scheduler.RetireReview(a.perf, a.pdr, reviewMinUses, logger.Named("review")),
	)
	sched.Start()

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	serverErr := make(chan error, 1)
	go func() {
		err := server.Start()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", zap.Error(err))
			sched.Stop()
			a.Close()
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", zap.Error(err))
	}
	sched.Stop()
	if err := a.Close(); err != nil {
		logger.Warn("database close error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}
