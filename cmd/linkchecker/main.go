package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/linkcheckerpro/linkchecker/internal/common"
	"github.com/linkcheckerpro/linkchecker/internal/crawler"
	"github.com/linkcheckerpro/linkchecker/internal/jobs"
	"github.com/linkcheckerpro/linkchecker/internal/storage/sqlite"
	"github.com/linkcheckerpro/linkchecker/internal/worker"
)

var (
	configFile  = flag.String("config", "", "Configuration file path")
	configFileC = flag.String("c", "", "Configuration file path (shorthand)")
	showVersion = flag.Bool("version", false, "Print version information")
)

func main() {
	defer common.RecoverWithCrashFile()

	flag.Parse()

	if *showVersion {
		fmt.Printf("linkchecker version %s\n", common.GetVersion())
		os.Exit(0)
	}

	path := *configFile
	if path == "" {
		path = *configFileC
	}
	if path == "" {
		if _, err := os.Stat("linkchecker.toml"); err == nil {
			path = "linkchecker.toml"
		}
	}

	config, err := common.LoadFromFile(path)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Err(err).Str("path", path).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger := common.SetupLogger(config)
	defer common.Stop()

	common.InstallCrashHandler("")
	common.PrintBanner(config, logger)

	manager, err := sqlite.NewManager(logger, &config.Storage.SQLite)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer manager.Close()

	jobsSvc := jobs.New(manager.Jobs, manager.History, logger)
	fetcher := crawler.NewHTTPFetcher()
	loop := worker.New(jobsSvc, config.Worker, config.Crawler, fetcher, logger)

	ctx, cancel := context.WithCancel(context.Background())
	loop.Start(ctx)

	logger.Info().Msg("Worker loop running - press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Shutdown signal received")
	common.PrintShutdownBanner(logger)

	cancel()
	loop.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := manager.DB.Ping(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Storage connection check failed during shutdown")
	}

	logger.Info().Msg("Worker stopped")
}
