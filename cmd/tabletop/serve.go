package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tabletop/internal/actions"
	"tabletop/internal/api"
	"tabletop/internal/config"
	"tabletop/internal/metrics"
	"tabletop/internal/ratelimit"
	"tabletop/internal/scenario"
	"tabletop/internal/service"
	"tabletop/internal/storage"
	"tabletop/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

var (
	serveAddr   string
	serveDB     string
	serveDotenv string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the REST API.",
	Long: "`serve` reads TABLETOP_* variables from the environment and an " +
		"optional dotenv file. Flags override them.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadServerConfig(serveDotenv)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("addr") {
			cfg.Addr = serveAddr
		}
		if cmd.Flags().Changed("db") {
			cfg.DBPath = serveDB
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, log.New(cmd.ErrOrStderr(), "tabletop ", log.LstdFlags))
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (TABLETOP_ADDR)")
	serveCmd.Flags().StringVar(&serveDB, "db", "", "report archive path (TABLETOP_DB_PATH)")
	serveCmd.Flags().StringVar(&serveDotenv, "env-file", ".env", "dotenv file, ignored when missing")
}

func serve(ctx context.Context, cfg config.ServerConfig, logger *log.Logger) error {
	shutdownTelemetry, err := telemetry.Setup(ctx, "tabletop", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			logger.Printf("telemetry shutdown: %v", err)
		}
	}()

	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	var debug *actions.DebugLogger
	if cfg.Verbose {
		debug = actions.NewDebugLogger(logger.Writer())
	}
	reg := actions.NewRegistry(&http.Client{Timeout: cfg.HTTPTimeout}, debug)
	repo := scenario.NewRepository(reg)
	m := metrics.New()

	var limiter *ratelimit.RateLimiter
	if cfg.RatePerSecond > 0 {
		limiter = ratelimit.NewRateLimiter(cfg.RatePerSecond)
	}
	svc, err := service.New(service.Options{
		Repository:  repo,
		Factories:   reg,
		Archive:     store,
		Metrics:     m,
		Logger:      logger,
		MaxInFlight: cfg.MaxInFlight,
		Limiter:     limiter,
	})
	if err != nil {
		return err
	}

	srv, err := api.New(api.Options{
		Repository:     repo,
		Service:        svc,
		Kinds:          reg,
		Reports:        store,
		Metrics:        m.Handler(),
		Logger:         logger,
		StatusInterval: cfg.StatusInterval,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s", cfg.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Printf("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(sctx); err != nil {
		logger.Printf("http shutdown: %v", err)
	}
	if err := svc.Close(sctx); err != nil {
		logger.Printf("simulations did not finish: %v", err)
	}
	return nil
}
