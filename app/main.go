package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ExpertVagabond/solana-narrative-tracker/app/api"
	"github.com/ExpertVagabond/solana-narrative-tracker/app/cfg"
	"github.com/ExpertVagabond/solana-narrative-tracker/app/narrative"
	"github.com/ExpertVagabond/solana-narrative-tracker/app/publish"
	"github.com/ExpertVagabond/solana-narrative-tracker/app/sources"
	"github.com/ExpertVagabond/solana-narrative-tracker/app/store"
	"github.com/ExpertVagabond/solana-narrative-tracker/app/synthesis"
	"github.com/ExpertVagabond/solana-narrative-tracker/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	setupLogger(appCfg.Debug)
	slog.Info("Solana Narrative Tracker starting", "version", appCfg.Version)

	if err := run(appCfg); err != nil {
		slog.Error("Run failed", "error", err)
		os.Exit(1)
	}
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func run(appCfg *cfg.Cfg) error {
	socialCfg, err := sources.LoadSocialConfig(appCfg.SourcesFile)
	if err != nil {
		return err
	}

	fetcher := sources.NewFetcher(appCfg.UserAgent)
	collector := sources.NewCollector(time.Duration(appCfg.RunTimeout)*time.Second,
		sources.NewOnchainAdapter(fetcher),
		sources.NewDeveloperAdapter(fetcher, appCfg.GithubToken),
		sources.NewMarketAdapter(fetcher),
		sources.NewSocialAdapter(fetcher, socialCfg),
	)
	if appCfg.GithubToken == "" {
		slog.Info("GITHUB_TOKEN not set, developer adapter running at the unauthenticated rate ceiling")
	}

	snapshots := store.NewSnapshotStore(appCfg.DataDir)

	history, err := store.OpenHistory(appCfg.DataDir)
	if err != nil {
		// History is advisory: runs proceed without it.
		slog.Warn("Run history unavailable", "error", err)
		history = nil
	} else {
		defer history.Close()
	}

	engine := narrative.NewEngine(appCfg.AnalysisWindow)
	publisher := publish.NewPublisher(appCfg.SiteDir)

	// The synthesis credential is only checked at analyze-stage entry:
	// collect-only runs need no credential at all.
	needsSynthesis := !appCfg.CollectOnly
	var synthesizer *synthesis.Synthesizer
	if needsSynthesis {
		if appCfg.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for analysis; set it or use --collect-only")
		}
		client := synthesis.NewClient(appCfg.AnthropicAPIKey, appCfg.AnthropicModel)
		synthesizer = synthesis.NewSynthesizer(client, client.Model(), appCfg.MaxNarratives)
	}

	runner := tasks.NewRunner(collector, engine, synthesizer, publisher, snapshots, history)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch {
	case appCfg.Serve:
		return serve(ctx, appCfg, runner, publisher, snapshots, history)
	case appCfg.CollectOnly:
		snap, err := runner.Collect(ctx)
		if err != nil {
			return err
		}
		slog.Info("Collection complete", "run_id", snap.RunID, "signals", snap.Count(), "snapshot", snapshots.Path())
		return nil
	case appCfg.AnalyzeOnly:
		if err := runner.Analyze(ctx); err != nil {
			return err
		}
		slog.Info("Analysis complete", "artifact", publisher.Path())
		return nil
	default:
		if err := runner.FullRun(ctx); err != nil {
			return err
		}
		slog.Info("Full run complete", "artifact", publisher.Path())
		return nil
	}
}

func serve(ctx context.Context, appCfg *cfg.Cfg, runner *tasks.Runner,
	publisher *publish.Publisher, snapshots *store.SnapshotStore, history *store.History) error {

	scheduler := tasks.NewScheduler(runner, appCfg.CollectSchedule)
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer scheduler.Stop()

	var runHistory api.RunHistory
	if history != nil {
		runHistory = history
	}
	handler := api.NewHandler(publisher, snapshots, runHistory, runner, appCfg.Version)
	server := api.NewServer(handler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err := <-serverErrChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}
	return nil
}
