// Lệnh players thu thập bảng xếp hạng ranked solo cho các region đã
// cấu hình. Hỗ trợ -reset để xóa dữ liệu một tier/division và làm lại.
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
		resetFlag   = flag.String("reset", "", "comma separated TIER or TIER_DIVISION list to wipe and re-collect, e.g. DIAMOND_II,CHALLENGER")
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

	if *resetFlag != "" {
		if err := resetTiers(ctx, config, logger, sqlite, regions, *resetFlag); err != nil {
			logger.Critical(ctx, "Reset failed: %v", err)
			os.Exit(1)
		}
	}

	coordinator := shutdown.NewCoordinator()
	coordinator.InstallSignalHandler(ctx, logger)
	registry := limiter.NewRegistry(config.RateLimits(), coordinator)
	caller, _ := riotapi.NewCaller(config, logger, registry, coordinator)

	logger.Info(ctx, "Starting player collection for %s (preset %s)", strings.Join(regions, ", "), config.RiotApi.Preset)

	g, gctx := errgroup.WithContext(ctx)
	for _, region := range regions {
		region := region
		g.Go(func() error {
			col, err := collector.Factory(collector.KindPlayers, config, logger, sqlite, caller, coordinator, nil)
			if err != nil {
				return err
			}
			written, err := col.Collect(gctx, region)
			sum := col.Summary()
			if err != nil {
				// Lỗi một region không kéo region khác xuống
				logger.Error(gctx, "Region %s failed after %d players: %v", region, written, err)
				return nil
			}
			logger.Info(gctx, "Region %s done: %d units attempted, %d players collected, %d errored",
				region, sum.Attempted, sum.Written, sum.Errored)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Critical(ctx, "Player collection failed: %v", err)
		os.Exit(1)
	}
	logger.Info(ctx, "Player collection finished")
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

// resetTiers xóa player của các tier/division chỉ định cùng checkpoint
// của chúng, kèm cascade xóa checkpoint collect_matches của các puuid
// bị xóa để lượt thu thập match sau làm lại từ đầu với dữ liệu mới.
func resetTiers(ctx context.Context, config *cfg.Config, logger log.Logger, sqlite *db.Sqlite, regions []string, tiersArg string) error {
	playerMd, _ := model.NewPlayer(config, logger, sqlite)
	progressMd, _ := model.NewCollectionProgress(config, logger, sqlite)

	for _, item := range strings.Split(tiersArg, ",") {
		item = strings.ToUpper(strings.TrimSpace(item))
		if item == "" {
			continue
		}
		tier := item
		division := ""
		if idx := strings.Index(item, "_"); idx > 0 {
			tier, division = item[:idx], item[idx+1:]
		}

		for _, region := range regions {
			puuids, err := playerMd.PuuidsByTier(ctx, region, tier, division)
			if err != nil {
				return err
			}
			deleted, err := playerMd.DeleteByTier(ctx, region, tier, division)
			if err != nil {
				return err
			}
			if _, err := progressMd.Delete(ctx, model.TaskCollectPlayers, region, item); err != nil {
				return err
			}
			cascaded, err := progressMd.DeleteForKeys(ctx, model.TaskCollectMatches, region, puuids)
			if err != nil {
				return err
			}
			logger.Info(ctx, "Reset %s in %s: %d players deleted, %d match checkpoints cascaded", item, region, deleted, cascaded)
		}
	}
	return nil
}
