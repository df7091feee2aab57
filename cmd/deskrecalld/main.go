package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/deskrecall/deskrecalld/internal/capture"
	"github.com/deskrecall/deskrecalld/internal/command"
	"github.com/deskrecall/deskrecalld/internal/config"
	"github.com/deskrecall/deskrecalld/internal/llm"
	"github.com/deskrecall/deskrecalld/internal/llm/providers"
	xglog "github.com/deskrecall/deskrecalld/internal/log"
	"github.com/deskrecall/deskrecalld/internal/retention"
	"github.com/deskrecall/deskrecalld/internal/scheduler"
	"github.com/deskrecall/deskrecalld/internal/segment"
	"github.com/deskrecall/deskrecalld/internal/store"
	"github.com/deskrecall/deskrecalld/internal/video"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	dataDir := flag.String("data-dir", "", "root directory for config, database, frames, and videos (default $DESKRECALL_DATA or ./data)")
	metricsAddr := flag.String("metrics-addr", ":9191", "listen address for the Prometheus /metrics endpoint, empty to disable")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	xglog.Configure(xglog.Config{Level: "info", Service: "deskrecalld", Version: version})
	logger := xglog.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := strings.TrimSpace(*dataDir)
	if root == "" {
		root = strings.TrimSpace(os.Getenv("DESKRECALL_DATA"))
	}
	if root == "" {
		root = "./data"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		logger.Fatal().Err(err).Str("event", "datadir.create_failed").Msg("failed to create data directory")
	}

	configPath := filepath.Join(root, "config.json")
	cfgMgr, err := config.NewManager(configPath)
	if err != nil {
		logger.Fatal().Err(err).Str("event", "config.load_failed").Str("path", configPath).Msg("failed to load configuration")
	}
	cfg := cfgMgr.Current()

	xglog.Configure(xglog.Config{Level: cfg.LoggerSettings.Level, Service: "deskrecalld", Version: version})
	logger = xglog.WithComponent("main")
	logger.Info().Str("event", "config.loaded").Str("path", configPath).Msg("loaded configuration")

	dbPath := cfg.DatabaseConfig.Path
	if dbPath == "" {
		dbPath = filepath.Join(root, "deskrecall.db")
	}
	st, err := store.Open(ctx, dbPath, filepath.Join(root, "frames"), filepath.Join(root, "videos"))
	if err != nil {
		logger.Fatal().Err(err).Str("event", "store.open_failed").Msg("failed to open store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing store")
		}
	}()

	segmenter := segment.New(st)
	captureWriter := scheduler.NewCaptureWriter(st, segmenter)
	captureEngine := capture.New(captureWriter, st.FramesRoot())

	registry := llm.NewRegistry()
	registry.Register(providers.NewChatCompletions("chat_completions"))
	registry.Register(providers.NewAnthropic())
	registry.Register(providers.NewCLI())
	if err := configureActiveProvider(registry, cfg); err != nil {
		logger.Warn().Err(err).Str("event", "llm.provider_unconfigured").Msg("no LLM provider active yet; configure one via update_config")
	}
	orchestrator := llm.New(st, registry, st.FramesRoot(), llm.DefaultPolicy())

	synthesizer := video.New(st, st.VideosRoot(), "ffmpeg", video.WithWorkerPool(2))

	retentionWorker := retention.New(st, 5*time.Minute)

	sched := scheduler.New(st, captureEngine, segmenter, orchestrator, synthesizer, retentionWorker, cfgMgr)

	facade := command.New(st, cfgMgr, captureEngine, registry, orchestrator, synthesizer, retentionWorker, sched)
	_ = facade // wired for a future host adapter; exercised directly by internal/command's own tests today

	var metricsSrv *http.Server
	if addr := strings.TrimSpace(*metricsAddr); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info().Str("event", "metrics.listen").Str("addr", addr).Msg("serving prometheus metrics")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	logger.Info().Str("event", "startup").Str("version", version).Str("commit", commit).Str("data_dir", root).Msg("starting deskrecalld")

	runErr := sched.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), scheduler.ShutdownGrace)
	defer cancel()
	if err := sched.Stop(shutdownCtx, cfgMgr.Current(), scheduler.ShutdownGrace); err != nil {
		logger.Warn().Err(err).Msg("error during scheduler shutdown")
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Fatal().Err(runErr).Str("event", "scheduler.failed").Msg("scheduler exited with error")
	}
	logger.Info().Msg("deskrecalld exiting")
}

// configureActiveProvider wires cfg.LLMProvider/LLMConfig into the
// matching registered provider and marks it active, if both are set.
func configureActiveProvider(reg *llm.Registry, cfg config.Config) error {
	if cfg.LLMProvider == "" {
		return nil
	}
	return reg.ConfigureAndActivate(cfg.LLMProvider, cfg.LLMConfig)
}
