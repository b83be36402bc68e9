package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/rikiramadhan1028/NEW-ART/internal/api"
	"github.com/rikiramadhan1028/NEW-ART/internal/auth"
	"github.com/rikiramadhan1028/NEW-ART/internal/compositor"
	"github.com/rikiramadhan1028/NEW-ART/internal/config"
	"github.com/rikiramadhan1028/NEW-ART/internal/engine"
	"github.com/rikiramadhan1028/NEW-ART/internal/metadata"
	"github.com/rikiramadhan1028/NEW-ART/internal/metrics"
	"github.com/rikiramadhan1028/NEW-ART/internal/store"
	"github.com/rikiramadhan1028/NEW-ART/internal/worker"
)

// sweepInterval is how often expired output is looked for.
const sweepInterval = 10 * time.Minute

func serveCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background generation worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, c.cfg)
		},
	}
	cmd.Flags().String("port", "3001", "HTTP listen port")
	cmd.Flags().String("db", "newart.db", "SQLite database path")
	cmd.Flags().String("data-dir", "job_data", "Directory holding job input and output")
	c.bindFlag(cmd, "port", "port")
	c.bindFlag(cmd, "db_path", "db")
	c.bindFlag(cmd, "data_dir", "data-dir")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	for _, dir := range []string{cfg.DataDir, cfg.UploadsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	db, err := store.OpenSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	s, err := store.New(db)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	// Jobs interrupted by the previous shutdown start over.
	if n, err := s.ResetStaleRunning(ctx); err != nil {
		slog.Warn("reset stale running jobs", "error", err)
	} else if n > 0 {
		slog.Info("reset stale RUNNING jobs to PENDING", "count", n)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	genMetrics, err := metrics.NewGenerationMetrics(registry)
	if err != nil {
		return err
	}
	httpMetrics, err := metrics.NewHTTPMetrics(registry)
	if err != nil {
		return err
	}

	comp, err := compositor.New(compositor.Options{Size: cfg.CanvasSize, Background: cfg.CanvasBackground})
	if err != nil {
		return err
	}
	assembler := engine.NewAssembler(comp, genMetrics, engine.AssemblerOptions{
		MaxConsecutiveRejections: cfg.MaxConsecutiveRejections,
		MaxConsecutiveFailures:   cfg.MaxConsecutiveFailures,
	})
	pipeline := engine.NewPipeline(engine.DefaultSteps(assembler, cfg.DataDir)...)
	results := store.NewResultCache(s, cfg.ResultTTL)

	w := worker.New(s, pipeline, results, cfg.WorkerInterval,
		worker.WithObserver(genMetrics),
		worker.WithPermanentErrors(engine.IsPermanent),
	)
	sweeper := worker.NewSweeper(s, results, cfg.OutputRetention, sweepInterval).PruneOrphans(cfg.DataDir, s)

	srv := api.New(s, api.Options{
		DataDir:         cfg.DataDir,
		UploadsDir:      cfg.UploadsDir,
		MaxItems:        cfg.MaxItems,
		MaxUploadBytes:  cfg.MaxUploadBytes,
		CORSOrigin:      cfg.CORSOrigin,
		Authorizer:      newAuthorizer(cfg),
		Results:         results,
		Rewriter:        &metadata.Rewriter{Concurrency: cfg.RewriteConcurrency},
		GenerateLimiter: rate.NewLimiter(rate.Limit(cfg.GenerateRate), cfg.GenerateBurst),
		Gatherer:        registry,
		HTTPMetrics:     httpMetrics,
	})
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w.Start(gctx)
		return nil
	})
	g.Go(func() error {
		sweeper.Start(gctx)
		return nil
	})
	g.Go(func() error {
		refreshJobGauge(gctx, s, genMetrics, cfg.WorkerInterval*5)
		return nil
	})
	g.Go(func() error {
		slog.Info("newart server listening", "addr", "http://localhost:"+cfg.Port)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newAuthorizer(cfg config.Config) auth.Authorizer {
	switch {
	case cfg.RPCURL != "":
		slog.Info("using on-chain whitelist", "contract", cfg.WhitelistContract)
		return auth.NewRPCWhitelist(cfg.RPCURL, cfg.WhitelistContract, nil)
	case len(cfg.Whitelist) > 0:
		slog.Info("using static whitelist", "addresses", len(cfg.Whitelist))
		return auth.NewStaticList(cfg.Whitelist...)
	default:
		slog.Warn("no whitelist configured, every address may submit jobs")
		return auth.AllowAll{}
	}
}

func refreshJobGauge(ctx context.Context, s store.JobReader, m *metrics.GenerationMetrics, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		if counts, err := s.CountByStatus(ctx); err == nil {
			m.SetJobCounts(counts)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
