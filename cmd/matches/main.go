// Lệnh matches thu thập match history của các player đã có trong store,
// phân bổ theo nhóm tier với target cộng dồn. Batch match vừa ghi được
// publish lên Kafka nếu có cấu hình broker.
package main

import (
	"context"
	"flag"
	"os"
	"strconv"
	"strings"

	"github.com/thep200/mastery-crawler/cfg"
	"github.com/thep200/mastery-crawler/internal/collector"
	"github.com/thep200/mastery-crawler/internal/limiter"
	"github.com/thep200/mastery-crawler/internal/model"
	"github.com/thep200/mastery-crawler/internal/riotapi"
	"github.com/thep200/mastery-crawler/internal/shutdown"
	"github.com/thep200/mastery-crawler/pkg/db"
	"github.com/thep200/mastery-crawler/pkg/kafka"
	"github.com/thep200/mastery-crawler/pkg/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		regionsFlag = flag.String("region", "", "comma separated region list, default is all configured regions")
		targetFlag  = flag.String("target", "", "total match target: 500k, 1m or a plain integer")
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
	if *targetFlag != "" {
		target, err := parseTarget(*targetFlag)
		if err != nil {
			logger.Critical(ctx, "Invalid target %q: %v", *targetFlag, err)
			os.Exit(1)
		}
		config.Collector.MatchTarget = target
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
	// Target tổng được chia theo các region thực sự chạy
	config.KeepRegions(regions)

	coordinator := shutdown.NewCoordinator()
	coordinator.InstallSignalHandler(ctx, logger)
	registry := limiter.NewRegistry(config.RateLimits(), coordinator)
	caller, _ := riotapi.NewCaller(config, logger, registry, coordinator)

	// Kafka là egress tùy chọn
	var producer *kafka.Producer
	if len(config.Kafka.Brokers) > 0 {
		producer, err = kafka.NewProducer(config, logger, config.Kafka.TopicMatches)
		if err != nil {
			logger.Warn(ctx, "Kafka disabled: %v", err)
		} else {
			defer producer.Close()
		}
	}

	logger.Info(ctx, "Starting match collection for %s, target %d matches total",
		strings.Join(regions, ", "), config.Collector.MatchTarget)

	g, gctx := errgroup.WithContext(ctx)
	for _, region := range regions {
		region := region
		g.Go(func() error {
			col, err := collector.Factory(collector.KindMatches, config, logger, sqlite, caller, coordinator, producer)
			if err != nil {
				return err
			}
			written, err := col.Collect(gctx, region)
			sum := col.Summary()
			if err != nil {
				logger.Error(gctx, "Region %s failed after %d matches: %v", region, written, err)
				return nil
			}
			logger.Info(gctx, "Region %s done: %d players attempted, %d matches collected, %d errored",
				region, sum.Attempted, sum.Written, sum.Errored)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Critical(ctx, "Match collection failed: %v", err)
		os.Exit(1)
	}
	logger.Info(ctx, "Match collection finished")
}

func parseTarget(value string) (int, error) {
	switch strings.ToLower(value) {
	case "500k":
		return 500_000, nil
	case "1m":
		return 1_000_000, nil
	}
	return strconv.Atoi(value)
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
