// Lệnh analyze in các bảng thống kê winrate theo mastery ra stdout.
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
	"github.com/thep200/mastery-crawler/pkg/log"
)

func main() {
	var (
		filter   = flag.String("filter", "", "elo filter: emerald_plus, diamond_plus or diamond2_plus")
		patches  = flag.String("patches", "", "comma separated game version prefixes, e.g. 14.1,14.2")
		buckets  = flag.String("buckets", "default", "bucket thresholds: default (10k/100k) or pabu (30k/100k)")
		minGames = flag.Int("min-games", 50, "minimum games per champion/bucket cell")
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

	b := analysis.DefaultBuckets
	if *buckets == "pabu" {
		b = analysis.PabuBuckets
	}

	summary, err := session.Summary(ctx)
	if err != nil {
		logger.Critical(ctx, "Summary query failed: %v", err)
		os.Exit(1)
	}
	fmt.Printf("Matches: %d  Participants: %d  With mastery: %d\n\n",
		summary.Matches, summary.Participants, summary.WithMastery)

	bucketRows, err := session.WinrateByBucket(ctx, b)
	if err != nil {
		logger.Critical(ctx, "Bucket query failed: %v", err)
		os.Exit(1)
	}
	fmt.Printf("Winrate by mastery bucket (low < %d, medium < %d):\n", b.LowMax, b.MediumMax)
	for _, row := range bucketRows {
		fmt.Printf("  %-8s %8d games  %6.2f%%\n", row.Bucket, row.Games, row.Winrate)
	}
	fmt.Println()

	curve, err := session.WinrateCurve(ctx)
	if err != nil {
		logger.Critical(ctx, "Curve query failed: %v", err)
		os.Exit(1)
	}
	fmt.Println("Winrate curve by mastery points:")
	for _, row := range curve {
		fmt.Printf("  %-10s %8d games  %6.2f%%\n", row.Label, row.Games, row.Winrate)
	}
	fmt.Println()

	champions, err := session.ChampionBucketStats(ctx, b, *minGames)
	if err != nil {
		logger.Critical(ctx, "Champion query failed: %v", err)
		os.Exit(1)
	}
	fmt.Printf("Per-champion winrate by bucket (min %d games):\n", *minGames)
	for _, row := range champions {
		fmt.Printf("  %-16s %-8s %8d games  %6.2f%%\n", row.Champion, row.Bucket, row.Games, row.Winrate)
	}
}
