package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/warp/capacity-engine/api"
	"github.com/warp/capacity-engine/capacity"
	"github.com/warp/capacity-engine/capacity/store"
	"github.com/warp/capacity-engine/config"
	"github.com/warp/capacity-engine/store/sqlite"
)

func newServeCmd() *cobra.Command {
	var (
		port      int
		dbPath    string
		storeKind string
		scenario  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.DefaultEnvFiles)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("db") {
				cfg.DBPath = dbPath
			}
			return serve(cmd.Context(), cfg, storeKind, scenario)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "HTTP server port (overrides PORT)")
	cmd.Flags().StringVar(&dbPath, "db", "capacity.db", `SQLite database path, ":memory:" for in-memory (overrides DB_PATH)`)
	cmd.Flags().StringVar(&storeKind, "store", "sqlite", "Storage backend: sqlite or memory")
	cmd.Flags().StringVar(&scenario, "scenario", "", "Demo scenario to load on startup")
	return cmd
}

func serve(ctx context.Context, cfg *config.Configuration, storeKind, scenario string) error {
	log := cfg.Logger()

	// Initialize store
	var txStore capacity.TxStore
	switch storeKind {
	case "sqlite":
		db, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("initialize database: %w", err)
		}
		defer db.Close()
		txStore = db
	case "memory":
		txStore = store.NewMemory()
	default:
		return fmt.Errorf("unknown store %q (expected sqlite|memory)", storeKind)
	}
	svc := capacity.NewService(txStore, nil)

	// Initialize handler and scenarios
	handler := api.NewHandler(svc, log)
	if cfg.ScenarioDir != "" {
		extra, err := api.ReadScenarios(os.DirFS(cfg.ScenarioDir))
		if err != nil {
			return fmt.Errorf("read scenarios from %s: %w", cfg.ScenarioDir, err)
		}
		handler.AddScenarios(extra...)
		log.WithFields(logrus.Fields{"dir": cfg.ScenarioDir, "count": len(extra)}).Info("scenarios added")
	}
	if scenario != "" {
		if err := preload(ctx, handler, scenario, log); err != nil {
			return err
		}
	}

	// Create router
	opts := api.RouterOptions{
		AllowedOrigins: cfg.AllowedOrigins,
		MetricsEnabled: cfg.MetricsEnabled,
	}
	if cfg.RateLimit.Enabled {
		opts.ValidateRate = cfg.RateLimit.Validate
	}
	router, err := api.NewRouter(handler, opts)
	if err != nil {
		return fmt.Errorf("create router: %w", err)
	}

	monitor := api.NewAlertMonitor(svc, log)
	monitor.Enabled = cfg.Alert.Enabled
	monitor.CheckInterval = cfg.Alert.Interval
	monitor.Start()
	defer monitor.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	errc := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{"addr": server.Addr, "store": storeKind}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errc:
		return fmt.Errorf("server failed: %w", err)
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}

func preload(ctx context.Context, h *api.Handler, id string, log logrus.FieldLogger) error {
	var found bool
	for _, sc := range h.Scenarios() {
		if sc.ID != id {
			continue
		}
		found = true
		res, err := api.LoadScenario(ctx, h.Service, sc)
		if err != nil {
			return fmt.Errorf("load scenario %s: %w", id, err)
		}
		h.SetCurrentScenario(id)
		log.WithFields(logrus.Fields{
			"scenario": id,
			"admitted": res.Admitted,
			"rejected": len(res.Rejected),
		}).Info("scenario preloaded")
	}
	if !found {
		return fmt.Errorf("unknown scenario %q", id)
	}
	return nil
}
