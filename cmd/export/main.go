// Lệnh export ghi dataset participant đã join mastery ra CSV.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/thep200/mastery-crawler/cfg"
	"github.com/thep200/mastery-crawler/internal/analysis"
	"github.com/thep200/mastery-crawler/pkg/db"
	"github.com/thep200/mastery-crawler/pkg/export"
	"github.com/thep200/mastery-crawler/pkg/log"
)

func main() {
	var (
		out      = flag.String("out", "dataset.csv", "output path for the row-level CSV")
		statsOut = flag.String("stats-out", "", "optional output path for per-champion bucket stats")
		filter   = flag.String("filter", "", "elo filter: emerald_plus, diamond_plus or diamond2_plus")
		patches  = flag.String("patches", "", "comma separated game version prefixes")
		minGames = flag.Int("min-games", 50, "minimum games per champion/bucket cell in the stats export")
	)
	flag.Parse()

	ctx := context.Background()
	logger, _ := log.NewCslLogger()

	loader, _ := cfg.NewViperLoader()
	config, err := loader.Load()
	if err != nil {
		logger.Critical(ctx, "Failed to load configuration: %v", err)
		os.Exit(1)
	}
	sqlite, _ := db.NewSqlite(config, logger)

	var patchList []string
	if *patches != "" {
		for _, patch := range strings.Split(*patches, ",") {
			patchList = append(patchList, strings.TrimSpace(patch))
		}
	}

	session, err := analysis.Begin(ctx, logger, sqlite, *filter, patchList)
	if err != nil {
		logger.Critical(ctx, "Failed to begin analysis session: %v", err)
		os.Exit(1)
	}
	defer session.Close()

	count, err := export.WriteRows(ctx, session, *out)
	if err != nil {
		logger.Critical(ctx, "Export failed: %v", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d rows to %s\n", count, *out)

	if *statsOut != "" {
		stats, err := session.ChampionBucketStats(ctx, analysis.DefaultBuckets, *minGames)
		if err != nil {
			logger.Critical(ctx, "Champion stats query failed: %v", err)
			os.Exit(1)
		}
		if err := export.WriteBucketStats(*statsOut, stats); err != nil {
			logger.Critical(ctx, "Stats export failed: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %d stat rows to %s\n", len(stats), *statsOut)
	}
}
