// Lệnh mastery lấp champion mastery cho các cặp (player, champion) đã
// xuất hiện trong match nhưng chưa có bản ghi.
package main

import (
	"context"
	"flag"
	"os"
	"strings"

	"github.com/thep200/mastery-crawler/cfg"
	"github.com/thep200/mastery-crawler/internal/collector"
	"github.com/thep200/mastery-crawler/internal/limiter"
	"github.com/thep200/mastery-crawler/internal/model"
	"github.com/thep200/mastery-crawler/internal/riotapi"
	"github.com/thep200/mastery-crawler/internal/shutdown"
	"github.com/thep200/mastery-crawler/pkg/db"
	"github.com/thep200/mastery-crawler/pkg/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		regionsFlag = flag.String("region", "", "comma separated region list, default is all configured regions")
		restricted  = flag.Bool("restricted", false, "use the restricted rate limit preset")
		verbose     = flag.Bool("verbose", false, "enable debug logging")
		logFile     = flag.String("log-file", "", "also write logs to this file")
	)
	flag.Parse()

	ctx := context.Background()
	logger := newLogger(*logFile, *verbose)

	loader, _ := cfg.NewViperLoader()
	config, err := loader.Load()
	if err != nil {
		logger.Critical(ctx, "Failed to load configuration: %v", err)
		os.Exit(1)
	}
	if *restricted {
		config.RiotApi.Preset = "restricted"
	}

	sqlite, _ := db.NewSqlite(config, logger)
	if err := migrate(config, logger, sqlite); err != nil {
		logger.Critical(ctx, "Migration failed: %v", err)
		os.Exit(1)
	}

	regions := resolveRegions(config, *regionsFlag)
	if len(regions) == 0 {
		logger.Critical(ctx, "No regions to collect")
		os.Exit(1)
	}
	config.KeepRegions(regions)

	coordinator := shutdown.NewCoordinator()
	coordinator.InstallSignalHandler(ctx, logger)
	registry := limiter.NewRegistry(config.RateLimits(), coordinator)
	caller, _ := riotapi.NewCaller(config, logger, registry, coordinator)

	logger.Info(ctx, "Starting mastery collection for %s", strings.Join(regions, ", "))

	g, gctx := errgroup.WithContext(ctx)
	for _, region := range regions {
		region := region
		g.Go(func() error {
			col, err := collector.Factory(collector.KindMastery, config, logger, sqlite, caller, coordinator, nil)
			if err != nil {
				return err
			}
			written, err := col.Collect(gctx, region)
			sum := col.Summary()
			if err != nil {
				logger.Error(gctx, "Region %s failed after %d mastery records: %v", region, written, err)
				return nil
			}
			logger.Info(gctx, "Region %s done: %d players attempted, %d mastery records collected, %d errored",
				region, sum.Attempted, sum.Written, sum.Errored)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Critical(ctx, "Mastery collection failed: %v", err)
		os.Exit(1)
	}
	logger.Info(ctx, "Mastery collection finished")
}

func newLogger(logFile string, verbose bool) log.Logger {
	if logFile != "" {
		if logger, err := log.NewFileLogger(logFile, verbose); err == nil {
			return logger
		}
	}
	if verbose {
		logger, _ := log.NewVerboseCslLogger()
		return logger
	}
	logger, _ := log.NewCslLogger()
	return logger
}

func migrate(config *cfg.Config, logger log.Logger, sqlite *db.Sqlite) error {
	playerMd, _ := model.NewPlayer(config, logger, sqlite)
	matchMd, _ := model.NewMatch(config, logger, sqlite)
	participantMd, _ := model.NewMatchParticipant(config, logger, sqlite)
	masteryMd, _ := model.NewChampionMastery(config, logger, sqlite)
	progressMd, _ := model.NewCollectionProgress(config, logger, sqlite)
	return sqlite.Migrate(playerMd, matchMd, participantMd, masteryMd, progressMd)
}

func resolveRegions(config *cfg.Config, flagValue string) []string {
	if flagValue == "" {
		return config.RegionNames()
	}
	var regions []string
	for _, name := range strings.Split(flagValue, ",") {
		name = strings.ToUpper(strings.TrimSpace(name))
		if _, ok := config.RiotApi.Regions[name]; ok {
			regions = append(regions, name)
		}
	}
	return regions
}
