package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/lazypower/memoria/internal/config"
	"github.com/lazypower/memoria/internal/engine"
	"github.com/lazypower/memoria/internal/logging"
	"github.com/lazypower/memoria/internal/metrics"
	"github.com/lazypower/memoria/internal/notify"
	"github.com/lazypower/memoria/internal/server"
	"github.com/lazypower/memoria/internal/store"
	"github.com/lazypower/memoria/internal/summary"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the reminder engine and HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(promReg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	hub := notify.NewHub(logger.Named("ws"), originAllowed(cfg.Server.AllowedOrigins))
	gen := summary.New(db,
		summary.WithLanguage(cfg.Summary.Language),
		summary.WithLogger(logger.Named("summary")),
	)
	eng, err := buildEngine(cfg, db, hub, m, gen, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, err := eng.Load(ctx)
	if err != nil {
		return err
	}
	logger.Info("reminders loaded", zap.Int("count", n))

	if err := eng.StartHousekeeping(); err != nil {
		return err
	}
	defer eng.Stop()

	srv := server.New(db, eng, server.Options{
		Version:        VersionString(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Hub:            hub,
		Gatherer:       promReg,
		Summaries:      gen,
		Logger:         logger.Named("http"),
		UI:             UI,
	})
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("memoria serving",
			zap.String("addr", httpServer.Addr),
			zap.String("db", db.Path))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return eng.Run(gctx)
	})

	g.Go(func() error {
		hub.Heartbeat(gctx, cfg.Notify.Heartbeat)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		hub.Close()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildEngine wires the registry, dispatchers and scheduled jobs together.
func buildEngine(cfg *config.Config, db *store.DB, hub *notify.Hub, m *metrics.Metrics, gen *summary.Generator, logger *zap.Logger) (*engine.Engine, error) {
	reg := engine.NewRegistry(
		engine.WithTolerance(cfg.Engine.Tolerance),
		engine.WithHistoryLimit(cfg.Engine.HistoryLimit),
		engine.WithMarker(db),
		engine.WithLogger(logger.Named("registry")),
		engine.WithMetrics(m),
	)

	dispatchers := notify.Multi{notify.StoreDispatcher{Saver: db}, hub}
	if cfg.Notify.Log {
		dispatchers = append(dispatchers, notify.LogDispatcher{Logger: logger.Named("notify")})
	}

	opts := []engine.Option{
		engine.WithEngineLogger(logger.Named("engine")),
		engine.WithEngineMetrics(m),
		engine.WithPruner(db.DeleteNotificationsBefore),
	}
	if cfg.Summary.Enabled {
		opts = append(opts, engine.WithJob("daily-summaries", cfg.Summary.Spec, gen.RunPreviousDay))
	}

	return engine.New(reg, db, notify.NewNotifier(dispatchers, cfg.Notify.Expiry), engine.Config{
		PollInterval:     cfg.Engine.PollInterval,
		OverdueWindow:    cfg.Engine.OverdueWindow,
		HistoryRetention: cfg.Engine.HistoryRetention,
		HousekeepingSpec: cfg.Engine.HousekeepingSpec,
		DispatchTimeout:  cfg.Engine.DispatchTimeout,
	}, opts...)
}

// originAllowed returns nil (allow all) when no origins are configured.
func originAllowed(origins []string) func(string) bool {
	if len(origins) == 0 || slices.Contains(origins, "*") {
		return nil
	}
	return func(origin string) bool {
		return slices.Contains(origins, origin)
	}
}
