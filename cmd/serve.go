package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/isuku/isuku-dispatch/internal/api"
	"github.com/isuku/isuku-dispatch/internal/matching"
	"github.com/isuku/isuku-dispatch/internal/monitoring"
	"github.com/isuku/isuku-dispatch/internal/store"
)

const shutdownTimeout = 10 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dispatch API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		srv, err := newHTTPServer(st, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
		if err != nil {
			return err
		}

		var workers []func(context.Context) error
		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(monitoring.NewCollector(st), monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			workers = append(workers, checker.Run)
		}
		return runServer(ctx, srv, workers...)
	},
}

// newHTTPServer wires the store, matcher and geocoder into the API handler.
func newHTTPServer(st store.Store, reg prometheus.Registerer, gatherer prometheus.Gatherer) (*http.Server, error) {
	metrics, err := matching.NewMetrics(reg)
	if err != nil {
		return nil, eris.Wrap(err, "register metrics")
	}

	handler := api.NewServer(st, newMatcher(st, matching.WithMetrics(metrics)), newGeocoder(st),
		api.WithDefaultRadius(cfg.Matching.DefaultRadiusKM),
		api.WithCORSOrigins(cfg.Server.CORSOrigins),
		api.WithRateLimit(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst),
		api.WithGatherer(gatherer),
	)

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

// runServer serves until ctx is cancelled, then shuts down gracefully.
// Background workers share the server's lifetime.
func runServer(ctx context.Context, srv *http.Server, workers ...func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, w := range workers {
		g.Go(func() error { return w(gctx) })
	}

	g.Go(func() error {
		zap.L().Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return eris.Wrap(err, "server shutdown")
		}
		return nil
	})

	return g.Wait()
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
