// Package api cung cấp facade public để nhúng collector vào process
// khác (UI server, tool nội bộ) mà không phải tự dây từng thành phần.
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/thep200/mastery-crawler/cfg"
	"github.com/thep200/mastery-crawler/internal/collector"
	"github.com/thep200/mastery-crawler/internal/limiter"
	"github.com/thep200/mastery-crawler/internal/model"
	"github.com/thep200/mastery-crawler/internal/riotapi"
	"github.com/thep200/mastery-crawler/internal/shutdown"
	"github.com/thep200/mastery-crawler/pkg/db"
	"github.com/thep200/mastery-crawler/pkg/log"
)

// RunStats chứa thống kê của một lượt thu thập đang chạy hoặc vừa xong.
type RunStats struct {
	Kind      string    `json:"kind"`
	IsRunning bool      `json:"isRunning"`
	StartTime time.Time `json:"startTime"`
	Duration  string    `json:"duration"`
	Attempted int       `json:"attempted"`
	Written   int       `json:"written"`
	Errored   int       `json:"errored"`
	LastError string    `json:"lastError"`
}

// CollectorAPI dây sẵn config, store, limiter và caller; mỗi lần Run
// tạo một collector theo kind và chạy tuần tự qua các region.
type CollectorAPI struct {
	ctx         context.Context
	config      *cfg.Config
	logger      log.Logger
	sqlite      *db.Sqlite
	caller      *riotapi.Caller
	coordinator *shutdown.Coordinator

	statsMu sync.RWMutex
	stats   *RunStats
}

func NewCollectorAPI() *CollectorAPI {
	return &CollectorAPI{
		stats: &RunStats{},
	}
}

// Initialize nạp config, mở store và migrate schema.
func (a *CollectorAPI) Initialize(ctx context.Context) error {
	a.ctx = ctx

	loader, _ := cfg.NewViperLoader()
	config, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	a.config = config

	a.logger, err = log.NewCslLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	a.sqlite, err = db.NewSqlite(a.config, a.logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	if err := a.migrateDatabase(); err != nil {
		return err
	}

	a.coordinator = shutdown.NewCoordinator()
	a.coordinator.InstallSignalHandler(ctx, a.logger)

	registry := limiter.NewRegistry(a.config.RateLimits(), a.coordinator)
	a.caller, err = riotapi.NewCaller(a.config, a.logger, registry, a.coordinator)
	if err != nil {
		return fmt.Errorf("failed to create api caller: %w", err)
	}
	return nil
}

func (a *CollectorAPI) migrateDatabase() error {
	playerMd, err := model.NewPlayer(a.config, a.logger, a.sqlite)
	if err != nil {
		return err
	}
	matchMd, _ := model.NewMatch(a.config, a.logger, a.sqlite)
	participantMd, _ := model.NewMatchParticipant(a.config, a.logger, a.sqlite)
	masteryMd, _ := model.NewChampionMastery(a.config, a.logger, a.sqlite)
	progressMd, _ := model.NewCollectionProgress(a.config, a.logger, a.sqlite)
	return a.sqlite.Migrate(playerMd, matchMd, participantMd, masteryMd, progressMd)
}

// Run chạy một collector qua tất cả region đã cấu hình. Lỗi của một
// region chỉ log rồi đi tiếp region sau.
func (a *CollectorAPI) Run(kind string) error {
	a.statsMu.Lock()
	if a.stats.IsRunning {
		a.statsMu.Unlock()
		return fmt.Errorf("a collection run is already in progress")
	}
	a.stats = &RunStats{Kind: kind, IsRunning: true, StartTime: time.Now()}
	a.statsMu.Unlock()

	defer func() {
		a.statsMu.Lock()
		a.stats.IsRunning = false
		a.stats.Duration = time.Since(a.stats.StartTime).Round(time.Second).String()
		a.statsMu.Unlock()
	}()

	col, err := collector.Factory(kind, a.config, a.logger, a.sqlite, a.caller, a.coordinator, nil)
	if err != nil {
		return err
	}

	for _, region := range a.config.RegionNames() {
		if a.coordinator.Triggered() {
			break
		}
		_, err := col.Collect(a.ctx, region)
		sum := col.Summary()
		a.statsMu.Lock()
		// Counter của collector cộng dồn qua các region
		a.stats.Attempted = sum.Attempted
		a.stats.Written = sum.Written
		a.stats.Errored = sum.Errored
		if err != nil {
			a.stats.LastError = err.Error()
		}
		a.statsMu.Unlock()
		if err != nil {
			a.logger.Error(a.ctx, "Collector %s failed for %s: %v", kind, region, err)
		}
	}
	return nil
}

// Stats trả về snapshot thống kê hiện tại.
func (a *CollectorAPI) Stats() RunStats {
	a.statsMu.RLock()
	defer a.statsMu.RUnlock()
	return *a.stats
}

// Config trả về config đã nạp, cho UI server dùng lại.
func (a *CollectorAPI) Config() *cfg.Config {
	return a.config
}

// Sqlite trả về store handle đã mở.
func (a *CollectorAPI) Sqlite() *db.Sqlite {
	return a.sqlite
}

// Logger trả về logger đang dùng.
func (a *CollectorAPI) Logger() log.Logger {
	return a.logger
}
