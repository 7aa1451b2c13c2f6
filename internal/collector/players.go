// Collector players
// Thu thập bảng xếp hạng ranked solo: ba tier apex qua league list,
// DIAMOND và EMERALD qua entries phân trang. Đơn vị checkpoint là một
// tier (apex) hoặc một cặp tier/division.

package collector

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/thep200/mastery-crawler/cfg"
	"github.com/thep200/mastery-crawler/internal/model"
	"github.com/thep200/mastery-crawler/internal/riotapi"
	"github.com/thep200/mastery-crawler/internal/shutdown"
	"github.com/thep200/mastery-crawler/pkg/db"
	"github.com/thep200/mastery-crawler/pkg/log"
)

// playerAPI là phần bề mặt của riotapi.Caller mà collector này dùng,
// test thay bằng fake.
type playerAPI interface {
	ChallengerLeague(ctx context.Context, region string) (*riotapi.LeagueList, error)
	GrandmasterLeague(ctx context.Context, region string) (*riotapi.LeagueList, error)
	MasterLeague(ctx context.Context, region string) (*riotapi.LeagueList, error)
	LeagueEntries(ctx context.Context, region, tier, division string, page int) ([]riotapi.LeagueEntry, error)
	SummonerByID(ctx context.Context, region, summonerID string) (*riotapi.SummonerDTO, error)
}

type PlayerCollector struct {
	Logger   log.Logger
	Config   *cfg.Config
	Sqlite   *db.Sqlite
	Shutdown *shutdown.Coordinator
	api      playerAPI

	PlayerMd   *model.Player
	ProgressMd *model.CollectionProgress

	attempted int32
	count     int32
	errored   int32
}

func NewPlayerCollector(config *cfg.Config, logger log.Logger, sqlite *db.Sqlite, caller *riotapi.Caller, coordinator *shutdown.Coordinator) (*PlayerCollector, error) {
	playerMd, _ := model.NewPlayer(config, logger, sqlite)
	progressMd, _ := model.NewCollectionProgress(config, logger, sqlite)
	return &PlayerCollector{
		Logger:     logger,
		Config:     config,
		Sqlite:     sqlite,
		Shutdown:   coordinator,
		api:        caller,
		PlayerMd:   playerMd,
		ProgressMd: progressMd,
	}, nil
}

// playerUnit là một đơn vị checkpoint: tier apex hoặc tier/division.
type playerUnit struct {
	tier     string
	division string // rỗng với apex
}

func (u playerUnit) key() string {
	if u.division == "" {
		return u.tier
	}
	return u.tier + "_" + u.division
}

func (pc *PlayerCollector) Collect(ctx context.Context, region string) (int, error) {
	units := make([]playerUnit, 0, len(ApexTiers)+len(LadderTiers)*len(Divisions))
	for _, tier := range ApexTiers {
		units = append(units, playerUnit{tier: tier})
	}
	for _, tier := range LadderTiers {
		for _, division := range Divisions {
			units = append(units, playerUnit{tier: tier, division: division})
		}
	}

	completed, err := pc.ProgressMd.CompletedKeys(ctx, model.TaskCollectPlayers, region)
	if err != nil {
		return 0, err
	}

	tasks := make(chan playerUnit)
	var wg sync.WaitGroup

	workers := pc.Config.Collector.Workers
	if workers <= 0 {
		workers = 5
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for unit := range tasks {
				if pc.Shutdown.Triggered() {
					continue
				}
				atomic.AddInt32(&pc.attempted, 1)
				// Đơn vị lỗi chỉ log và đếm, lượt chạy sau nhặt lại vì
				// checkpoint của nó không phải completed
				if err := pc.collectUnit(ctx, region, unit); err != nil {
					pc.Logger.Error(ctx, "Unit %s %s failed: %v", region, unit.key(), err)
					atomic.AddInt32(&pc.errored, 1)
				}
			}
		}()
	}

	for _, unit := range units {
		if pc.Shutdown.Triggered() {
			break
		}
		if _, done := completed[unit.key()]; done {
			pc.Logger.Debug(ctx, "Skipping %s %s, checkpoint says completed", region, unit.key())
			continue
		}
		tasks <- unit
	}
	close(tasks)
	wg.Wait()

	return int(atomic.LoadInt32(&pc.count)), nil
}

// Summary trả về tổng kết lượt chạy cho báo cáo cuối run.
func (pc *PlayerCollector) Summary() Summary {
	return Summary{
		Attempted: int(atomic.LoadInt32(&pc.attempted)),
		Written:   int(atomic.LoadInt32(&pc.count)),
		Errored:   int(atomic.LoadInt32(&pc.errored)),
	}
}

func (pc *PlayerCollector) collectUnit(ctx context.Context, region string, unit playerUnit) error {
	key := unit.key()
	if err := pc.ProgressMd.Upsert(ctx, model.TaskCollectPlayers, region, key, model.StatusInProgress); err != nil {
		return err
	}

	var (
		written int
		err     error
	)
	if unit.division == "" {
		written, err = pc.collectApex(ctx, region, unit.tier)
	} else {
		written, err = pc.collectLadder(ctx, region, unit.tier, unit.division)
	}
	if err != nil {
		_ = pc.ProgressMd.Upsert(ctx, model.TaskCollectPlayers, region, key, model.StatusFailed)
		return err
	}
	if pc.Shutdown.Triggered() {
		// Đang dở, giữ in_progress để lượt sau làm lại từ đầu đơn vị
		return nil
	}

	atomic.AddInt32(&pc.count, int32(written))
	pc.Logger.Info(ctx, "Collected %d players for %s %s", written, region, key)
	return pc.ProgressMd.Upsert(ctx, model.TaskCollectPlayers, region, key, model.StatusCompleted)
}

func (pc *PlayerCollector) collectApex(ctx context.Context, region, tier string) (int, error) {
	var (
		list *riotapi.LeagueList
		err  error
	)
	switch tier {
	case "CHALLENGER":
		list, err = pc.api.ChallengerLeague(ctx, region)
	case "GRANDMASTER":
		list, err = pc.api.GrandmasterLeague(ctx, region)
	default:
		list, err = pc.api.MasterLeague(ctx, region)
	}
	if err != nil || list == nil {
		return 0, err
	}

	players := make([]model.Player, 0, len(list.Entries))
	for _, entry := range list.Entries {
		p, ok := pc.toPlayer(ctx, region, tier, "I", entry)
		if !ok {
			continue
		}
		players = append(players, p)
	}
	return len(players), pc.PlayerMd.UpsertBatch(ctx, players)
}

// Trần số trang cho một tier/division, chặn trường hợp API trả mãi
// không rỗng
const maxLeaguePages = 200

func (pc *PlayerCollector) collectLadder(ctx context.Context, region, tier, division string) (int, error) {
	written := 0
	for page := 1; page <= maxLeaguePages; page++ {
		if pc.Shutdown.Triggered() {
			return written, nil
		}
		entries, err := pc.api.LeagueEntries(ctx, region, tier, division, page)
		if err != nil {
			return written, err
		}
		// Trang rỗng đánh dấu hết dữ liệu
		if len(entries) == 0 {
			return written, nil
		}

		players := make([]model.Player, 0, len(entries))
		for _, entry := range entries {
			p, ok := pc.toPlayer(ctx, region, tier, division, entry)
			if !ok {
				continue
			}
			players = append(players, p)
		}
		if err := pc.PlayerMd.UpsertBatch(ctx, players); err != nil {
			return written, err
		}
		written += len(players)
	}
	return written, nil
}

// toPlayer chuyển một entry thành bản ghi player. Entry thiếu puuid
// (API key cũ) được tra qua summoner-v4; tra không ra thì bỏ qua entry.
func (pc *PlayerCollector) toPlayer(ctx context.Context, region, tier, division string, entry riotapi.LeagueEntry) (model.Player, bool) {
	puuid := entry.Puuid
	if puuid == "" && entry.SummonerID != "" {
		summoner, err := pc.api.SummonerByID(ctx, region, entry.SummonerID)
		if err != nil || summoner == nil {
			pc.Logger.Debug(ctx, "No puuid for summoner %s in %s, skipping entry", entry.SummonerID, region)
			return model.Player{}, false
		}
		puuid = summoner.Puuid
	}
	if puuid == "" {
		return model.Player{}, false
	}
	return model.Player{
		Puuid:        puuid,
		SummonerID:   entry.SummonerID,
		Region:       region,
		Tier:         tier,
		Rank:         division,
		LeaguePoints: entry.LeaguePoints,
	}, true
}
