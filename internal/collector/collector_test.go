package collector

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thep200/mastery-crawler/cfg"
	"github.com/thep200/mastery-crawler/internal/model"
	"github.com/thep200/mastery-crawler/internal/riotapi"
	"github.com/thep200/mastery-crawler/internal/shutdown"
	"github.com/thep200/mastery-crawler/pkg/db"
	"github.com/thep200/mastery-crawler/pkg/log"
	"gorm.io/gorm"
)

type testEnv struct {
	Config      *cfg.Config
	Logger      log.Logger
	Sqlite      *db.Sqlite
	Coordinator *shutdown.Coordinator

	Player  *model.Player
	Match   *model.Match
	Part    *model.MatchParticipant
	Mastery *model.ChampionMastery
	Prog    *model.CollectionProgress
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	loader, _ := cfg.NewMockLoader()
	config, err := loader.Load()
	require.NoError(t, err)
	config.Sqlite.Path = filepath.Join(t.TempDir(), "test.db")
	config.Collector.Workers = 2
	config.Collector.BatchSize = 3
	config.Collector.MatchesPerPlayer = 10
	config.Collector.RetryPasses = 1
	config.Collector.RetryCooldownSec = 0

	logger, _ := log.NewCslLogger()
	sqlite, err := db.NewSqlite(config, logger)
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	playerMd, _ := model.NewPlayer(config, logger, sqlite)
	matchMd, _ := model.NewMatch(config, logger, sqlite)
	partMd, _ := model.NewMatchParticipant(config, logger, sqlite)
	masteryMd, _ := model.NewChampionMastery(config, logger, sqlite)
	progMd, _ := model.NewCollectionProgress(config, logger, sqlite)
	require.NoError(t, sqlite.Migrate(playerMd, matchMd, partMd, masteryMd, progMd))

	return &testEnv{
		Config:      config,
		Logger:      logger,
		Sqlite:      sqlite,
		Coordinator: shutdown.NewCoordinator(),
		Player:      playerMd,
		Match:       matchMd,
		Part:        partMd,
		Mastery:     masteryMd,
		Prog:        progMd,
	}
}

// ---- fake player api ----

type fakePlayerAPI struct {
	mu         sync.Mutex
	calls      int
	challenger []riotapi.LeagueEntry
	master     []riotapi.LeagueEntry
	ladder     map[string][]riotapi.LeagueEntry // key tier_division, chỉ trả ở page 1
	summoners  map[string]string                // summonerId -> puuid
}

func (f *fakePlayerAPI) bump() {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

func (f *fakePlayerAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakePlayerAPI) ChallengerLeague(ctx context.Context, region string) (*riotapi.LeagueList, error) {
	f.bump()
	return &riotapi.LeagueList{Tier: "CHALLENGER", Entries: f.challenger}, nil
}

func (f *fakePlayerAPI) GrandmasterLeague(ctx context.Context, region string) (*riotapi.LeagueList, error) {
	f.bump()
	return &riotapi.LeagueList{Tier: "GRANDMASTER"}, nil
}

func (f *fakePlayerAPI) MasterLeague(ctx context.Context, region string) (*riotapi.LeagueList, error) {
	f.bump()
	return &riotapi.LeagueList{Tier: "MASTER", Entries: f.master}, nil
}

func (f *fakePlayerAPI) LeagueEntries(ctx context.Context, region, tier, division string, page int) ([]riotapi.LeagueEntry, error) {
	f.bump()
	if page > 1 {
		return nil, nil
	}
	return f.ladder[tier+"_"+division], nil
}

func (f *fakePlayerAPI) SummonerByID(ctx context.Context, region, summonerID string) (*riotapi.SummonerDTO, error) {
	f.bump()
	puuid, ok := f.summoners[summonerID]
	if !ok {
		return nil, nil
	}
	return &riotapi.SummonerDTO{ID: summonerID, Puuid: puuid}, nil
}

func TestPlayerCollectorCollectsAllUnits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	fake := &fakePlayerAPI{
		challenger: []riotapi.LeagueEntry{
			{Puuid: "chall-1", SummonerID: "s1", LeaguePoints: 1400},
			{SummonerID: "s2", LeaguePoints: 1300}, // thiếu puuid, tra qua summoner-v4
		},
		master: []riotapi.LeagueEntry{{Puuid: "master-1", SummonerID: "s3"}},
		ladder: map[string][]riotapi.LeagueEntry{
			"DIAMOND_I":  {{Puuid: "dia-1", SummonerID: "s4"}, {Puuid: "dia-2", SummonerID: "s5"}},
			"EMERALD_IV": {{Puuid: "eme-1", SummonerID: "s6"}},
		},
		summoners: map[string]string{"s2": "chall-2"},
	}

	pc, err := NewPlayerCollector(env.Config, env.Logger, env.Sqlite, nil, env.Coordinator)
	require.NoError(t, err)
	pc.api = fake

	written, err := pc.Collect(ctx, "NA")
	require.NoError(t, err)
	assert.Equal(t, 6, written)

	count, err := env.Player.Count(ctx, "NA")
	require.NoError(t, err)
	assert.Equal(t, int64(6), count)

	// Entry thiếu puuid phải được lấp qua summoner-v4 với đúng tier
	puuids, err := env.Player.PuuidsByTiers(ctx, "NA", []string{"CHALLENGER"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"chall-1", "chall-2"}, puuids)

	// Mọi đơn vị đều có checkpoint completed: 3 apex + 8 tier/division
	completed, err := env.Prog.CompletedKeys(ctx, model.TaskCollectPlayers, "NA")
	require.NoError(t, err)
	assert.Len(t, completed, 11)
}

func TestPlayerCollectorSkipsCompletedUnits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	fake := &fakePlayerAPI{}
	pc, err := NewPlayerCollector(env.Config, env.Logger, env.Sqlite, nil, env.Coordinator)
	require.NoError(t, err)
	pc.api = fake

	written, err := pc.Collect(ctx, "NA")
	require.NoError(t, err)
	assert.Equal(t, 0, written)
	firstRunCalls := fake.callCount()

	// Lượt hai: mọi đơn vị đã completed, không gọi API lần nào nữa
	pc2, _ := NewPlayerCollector(env.Config, env.Logger, env.Sqlite, nil, env.Coordinator)
	pc2.api = fake
	written, err = pc2.Collect(ctx, "NA")
	require.NoError(t, err)
	assert.Equal(t, 0, written)
	assert.Equal(t, firstRunCalls, fake.callCount())
}

// ---- fake match api ----

func validDTO(matchID string, participants int) *riotapi.MatchDTO {
	dto := &riotapi.MatchDTO{}
	dto.Metadata.MatchID = matchID
	dto.Info.QueueID = 420
	dto.Info.GameVersion = "14.1.555"
	dto.Info.GameDuration = 1800
	for i := 0; i < participants; i++ {
		dto.Info.Participants = append(dto.Info.Participants, riotapi.ParticipantDTO{
			Puuid:      matchID + "-p" + string(rune('a'+i)),
			ChampionID: i + 1,
			Win:        i < participants/2,
		})
	}
	return dto
}

type fakeMatchAPI struct {
	mu          sync.Mutex
	idsByPuuid  map[string][]string
	idsErr      map[string]error // puuid lỗi vĩnh viễn khi lấy danh sách
	matches     map[string]*riotapi.MatchDTO
	failOnce    map[string]bool // match id lỗi 5xx ở lần gọi đầu
	matchCalls  map[string]int
	idListCalls int
}

func (f *fakeMatchAPI) MatchIDsByPUUID(ctx context.Context, region, puuid string, count int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idListCalls++
	if err := f.idsErr[puuid]; err != nil {
		return nil, err
	}
	return f.idsByPuuid[puuid], nil
}

func (f *fakeMatchAPI) Match(ctx context.Context, region, matchID string) (*riotapi.MatchDTO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.matchCalls == nil {
		f.matchCalls = make(map[string]int)
	}
	f.matchCalls[matchID]++
	if f.failOnce[matchID] && f.matchCalls[matchID] == 1 {
		return nil, &riotapi.TransientError{Endpoint: matchID, Status: 503}
	}
	return f.matches[matchID], nil
}

func seedPlayers(t *testing.T, env *testEnv, players ...model.Player) {
	t.Helper()
	require.NoError(t, env.Player.UpsertBatch(context.Background(), players))
}

func TestMatchCollectorValidatesAndDefers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.Config.Collector.MatchTarget = 300 // 100 mỗi region

	seedPlayers(t, env, model.Player{Puuid: "p1", Region: "NA", Tier: "CHALLENGER", Rank: "I"})

	short := validDTO("NA1_short", 10)
	short.Info.GameDuration = 120

	fake := &fakeMatchAPI{
		idsByPuuid: map[string][]string{
			"p1": {"NA1_ok", "NA1_nine", "NA1_short", "NA1_flaky", "NA1_gone"},
		},
		matches: map[string]*riotapi.MatchDTO{
			"NA1_ok":    validDTO("NA1_ok", 10),
			"NA1_nine":  validDTO("NA1_nine", 9),
			"NA1_short": short,
			"NA1_flaky": validDTO("NA1_flaky", 10),
			"NA1_gone":  nil, // 404
		},
		failOnce: map[string]bool{"NA1_flaky": true},
	}

	mc, err := NewMatchCollector(env.Config, env.Logger, env.Sqlite, nil, env.Coordinator, nil)
	require.NoError(t, err)
	mc.api = fake

	written, err := mc.Collect(ctx, "NA")
	require.NoError(t, err)

	// NA1_ok ghi ngay, NA1_flaky qua lượt retry trễ; 9 người, remake và
	// 404 đều bị loại
	assert.Equal(t, 2, written)

	set, err := env.Match.ExistingSet(ctx, []string{"NA1_ok", "NA1_nine", "NA1_short", "NA1_flaky", "NA1_gone"})
	require.NoError(t, err)
	assert.Contains(t, set, "NA1_ok")
	assert.Contains(t, set, "NA1_flaky")
	assert.Len(t, set, 2)

	// Match hợp lệ kéo theo đủ 10 participant
	parts, err := env.Part.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(20), parts)

	// Match lỗi 5xx được gọi lại đúng một lần trong lượt retry
	assert.Equal(t, 2, fake.matchCalls["NA1_flaky"])

	status, err := env.Prog.Get(ctx, model.TaskCollectMatches, "NA", "p1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, status)
}

// Checkpoint completed chỉ được ghi cùng transaction với lô match chứa
// dữ liệu của player: trước flush player vẫn in_progress, crash giữa
// chừng không thể làm mất match đã fetch.
func TestMatchCollectorCompletesCheckpointOnlyAtFlush(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.Config.Collector.BatchSize = 100 // không flush tự động trong test này

	seedPlayers(t, env, model.Player{Puuid: "p1", Region: "NA", Tier: "CHALLENGER", Rank: "I"})

	fake := &fakeMatchAPI{
		idsByPuuid: map[string][]string{"p1": {"NA1_1"}},
		matches:    map[string]*riotapi.MatchDTO{"NA1_1": validDTO("NA1_1", 10)},
	}
	mc, err := NewMatchCollector(env.Config, env.Logger, env.Sqlite, nil, env.Coordinator, nil)
	require.NoError(t, err)
	mc.api = fake

	require.NoError(t, mc.collectPlayer(ctx, "NA", "p1"))

	// Match còn trong buffer, checkpoint chưa được phép là completed
	status, err := env.Prog.Get(ctx, model.TaskCollectMatches, "NA", "p1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, status)

	set, err := env.Match.ExistingSet(ctx, []string{"NA1_1"})
	require.NoError(t, err)
	assert.Empty(t, set)

	// Sau flush cả match lẫn checkpoint cùng xuống đĩa
	require.NoError(t, mc.flush(ctx, "NA"))

	status, err = env.Prog.Get(ctx, model.TaskCollectMatches, "NA", "p1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, status)

	set, err = env.Match.ExistingSet(ctx, []string{"NA1_1"})
	require.NoError(t, err)
	assert.Contains(t, set, "NA1_1")
}

// Lỗi vĩnh viễn của một player không làm dừng các nhóm tier còn lại:
// các player khác vẫn được thu thập và lỗi chỉ được đếm cho tổng kết.
func TestMatchCollectorIsolatesUnitFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.Config.Collector.MatchTarget = 300

	seedPlayers(t, env,
		model.Player{Puuid: "p1", Region: "NA", Tier: "CHALLENGER", Rank: "I"},
		model.Player{Puuid: "p2", Region: "NA", Tier: "DIAMOND", Rank: "II"},
	)

	fake := &fakeMatchAPI{
		idsErr:     map[string]error{"p1": errors.New("database table is locked")},
		idsByPuuid: map[string][]string{"p2": {"NA1_dia"}},
		matches:    map[string]*riotapi.MatchDTO{"NA1_dia": validDTO("NA1_dia", 10)},
	}
	mc, err := NewMatchCollector(env.Config, env.Logger, env.Sqlite, nil, env.Coordinator, nil)
	require.NoError(t, err)
	mc.api = fake

	written, err := mc.Collect(ctx, "NA")
	require.NoError(t, err)
	assert.Equal(t, 1, written)
	assert.Equal(t, 1, mc.Summary().Errored)

	// Nhóm diamond vẫn chạy dù player apex lỗi
	set, err := env.Match.ExistingSet(ctx, []string{"NA1_dia"})
	require.NoError(t, err)
	assert.Contains(t, set, "NA1_dia")

	status, err := env.Prog.Get(ctx, model.TaskCollectMatches, "NA", "p1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, status)

	status, err = env.Prog.Get(ctx, model.TaskCollectMatches, "NA", "p2")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, status)
}

func TestMatchCollectorSkipsCompletedPlayers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.Config.Collector.MatchTarget = 300

	seedPlayers(t, env, model.Player{Puuid: "p1", Region: "NA", Tier: "CHALLENGER", Rank: "I"})
	require.NoError(t, env.Prog.Upsert(ctx, model.TaskCollectMatches, "NA", "p1", model.StatusCompleted))

	fake := &fakeMatchAPI{idsByPuuid: map[string][]string{"p1": {"NA1_1"}}}
	mc, err := NewMatchCollector(env.Config, env.Logger, env.Sqlite, nil, env.Coordinator, nil)
	require.NoError(t, err)
	mc.api = fake

	written, err := mc.Collect(ctx, "NA")
	require.NoError(t, err)
	assert.Equal(t, 0, written)
	assert.Equal(t, 0, fake.idListCalls)
}

func TestMatchCollectorStopsAtTarget(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.Config.Collector.MatchTarget = 3 // 1 mỗi region

	seedPlayers(t, env, model.Player{Puuid: "p1", Region: "NA", Tier: "CHALLENGER", Rank: "I"})
	require.NoError(t, env.Sqlite.WithTxRetry(ctx, func(tx *gorm.DB) error {
		return env.Match.CreateIgnoreTx(tx, []model.Match{{MatchID: "NA1_old", Region: "NA", QueueID: 420}})
	}))

	fake := &fakeMatchAPI{idsByPuuid: map[string][]string{"p1": {"NA1_new"}}}
	mc, err := NewMatchCollector(env.Config, env.Logger, env.Sqlite, nil, env.Coordinator, nil)
	require.NoError(t, err)
	mc.api = fake

	written, err := mc.Collect(ctx, "NA")
	require.NoError(t, err)
	assert.Equal(t, 0, written)
	assert.Equal(t, 0, fake.idListCalls)
}

// Lượt chạy đơn-region (cờ -region đã thu hẹp bảng region trong config)
// nhận trọn target tổng; chia theo bảng region đầy đủ sẽ cắt target
// còn một phần ba và bỏ sót player.
func TestMatchCollectorSingleRegionRunGetsFullTarget(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.Config.KeepRegions([]string{"NA"})
	env.Config.Collector.MatchTarget = 4
	env.Config.Collector.Workers = 1
	env.Config.Collector.BatchSize = 1 // flush từng match để counter target cập nhật ngay

	seedPlayers(t, env,
		model.Player{Puuid: "p1", Region: "NA", Tier: "EMERALD", Rank: "I"},
		model.Player{Puuid: "p2", Region: "NA", Tier: "EMERALD", Rank: "II"},
	)

	fake := &fakeMatchAPI{
		idsByPuuid: map[string][]string{
			"p1": {"NA1_1", "NA1_2"},
			"p2": {"NA1_3", "NA1_4"},
		},
		matches: map[string]*riotapi.MatchDTO{
			"NA1_1": validDTO("NA1_1", 10),
			"NA1_2": validDTO("NA1_2", 10),
			"NA1_3": validDTO("NA1_3", 10),
			"NA1_4": validDTO("NA1_4", 10),
		},
	}
	mc, err := NewMatchCollector(env.Config, env.Logger, env.Sqlite, nil, env.Coordinator, nil)
	require.NoError(t, err)
	mc.api = fake

	assert.Equal(t, 4, mc.regionTarget())

	written, err := mc.Collect(ctx, "NA")
	require.NoError(t, err)
	assert.Equal(t, 4, written)

	count, err := env.Match.Count(ctx, "NA")
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
}

// Sau tín hiệu hủy không một đơn vị mới nào được dispatch, còn dữ liệu
// đã commit từ trước vẫn nguyên vẹn và query được.
func TestMatchCollectorShutdownStopsNewWork(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.Config.Collector.MatchTarget = 300

	seedPlayers(t, env, model.Player{Puuid: "p1", Region: "NA", Tier: "CHALLENGER", Rank: "I"})
	require.NoError(t, env.Sqlite.WithTxRetry(ctx, func(tx *gorm.DB) error {
		return env.Match.CreateIgnoreTx(tx, []model.Match{{MatchID: "NA1_old", Region: "NA", QueueID: 420}})
	}))

	env.Coordinator.Trigger()

	fake := &fakeMatchAPI{idsByPuuid: map[string][]string{"p1": {"NA1_new"}}}
	mc, err := NewMatchCollector(env.Config, env.Logger, env.Sqlite, nil, env.Coordinator, nil)
	require.NoError(t, err)
	mc.api = fake

	written, err := mc.Collect(ctx, "NA")
	require.NoError(t, err)
	assert.Equal(t, 0, written)
	assert.Equal(t, 0, fake.idListCalls)

	set, err := env.Match.ExistingSet(ctx, []string{"NA1_old"})
	require.NoError(t, err)
	assert.Contains(t, set, "NA1_old")
}

func TestValidateMatch(t *testing.T) {
	assert.Equal(t, "", validateMatch(validDTO("m", 10), 420, 300))

	wrongQueue := validDTO("m", 10)
	wrongQueue.Info.QueueID = 440
	assert.NotEqual(t, "", validateMatch(wrongQueue, 420, 300))

	// Queue cấu hình khác thì chính match đó lại hợp lệ
	assert.Equal(t, "", validateMatch(wrongQueue, 440, 300))

	remake := validDTO("m", 10)
	remake.Info.GameDuration = 180
	assert.NotEqual(t, "", validateMatch(remake, 420, 300))

	assert.NotEqual(t, "", validateMatch(validDTO("m", 9), 420, 300))
	assert.NotEqual(t, "", validateMatch(validDTO("m", 11), 420, 300))
}

// ---- fake mastery api ----

type fakeMasteryAPI struct {
	mu         sync.Mutex
	byPuuid    map[string][]riotapi.MasteryDTO
	failOnce   map[string]bool
	failAlways map[string]bool // endpoint sập hẳn, mọi lần gọi đều 502
	calls      map[string]int
}

func (f *fakeMasteryAPI) AllChampionMastery(ctx context.Context, region, puuid string) ([]riotapi.MasteryDTO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[puuid]++
	if f.failAlways[puuid] || (f.failOnce[puuid] && f.calls[puuid] == 1) {
		return nil, &riotapi.TransientError{Endpoint: puuid, Status: 502}
	}
	return f.byPuuid[puuid], nil
}

func TestMasteryCollectorFillsPendingPairs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.Sqlite.WithTxRetry(ctx, func(tx *gorm.DB) error {
		if err := env.Match.CreateIgnoreTx(tx, []model.Match{{MatchID: "NA1_1", Region: "NA", QueueID: 420}}); err != nil {
			return err
		}
		return env.Part.UpsertBatchTx(tx, []model.MatchParticipant{
			{MatchID: "NA1_1", Puuid: "p1", Region: "NA", ChampionID: 1},
			{MatchID: "NA1_1", Puuid: "p1", Region: "NA", ChampionID: 2},
			{MatchID: "NA1_1", Puuid: "p2", Region: "NA", ChampionID: 3},
		})
	}))

	fake := &fakeMasteryAPI{
		byPuuid: map[string][]riotapi.MasteryDTO{
			// p1 chỉ có mastery với champion 1; champion 2 chưa chơi bao giờ
			"p1": {{Puuid: "p1", ChampionID: 1, ChampionLevel: 7, ChampionPoints: 120000}},
			"p2": {{Puuid: "p2", ChampionID: 3, ChampionLevel: 4, ChampionPoints: 20000}},
		},
	}

	mx, err := NewMasteryCollector(env.Config, env.Logger, env.Sqlite, nil, env.Coordinator)
	require.NoError(t, err)
	mx.api = fake

	written, err := mx.Collect(ctx, "NA")
	require.NoError(t, err)
	assert.Equal(t, 3, written)

	count, err := env.Mastery.Count(ctx, "NA")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	// Champion chưa chơi vẫn có bản ghi zero để không hỏi lại
	pending, err := env.Mastery.PendingPairsByPuuid(ctx, "NA")
	require.NoError(t, err)
	assert.Empty(t, pending)

	rows, err := env.Mastery.ByPuuid(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 120000, rows[0].ChampionPoints)
	require.NotNil(t, rows[0].ChampionLevel)
	assert.Equal(t, 7, *rows[0].ChampionLevel)

	// Champion chưa từng chơi: points 0 nhưng level là null, không phải 0
	assert.Equal(t, 0, rows[1].ChampionPoints)
	assert.Nil(t, rows[1].ChampionLevel)

	// Mỗi player chỉ tốn đúng một request
	assert.Equal(t, 1, fake.calls["p1"])
	assert.Equal(t, 1, fake.calls["p2"])
}

// Fetch mastery lỗi 5xx sau khi executor đã hết retry tại chỗ được lấp
// bằng bản ghi zero ngay, không xếp hàng retry trễ: thiếu mastery là
// quan sát "0 điểm" hợp lệ, không phải việc còn dang dở, nên lượt chạy
// sau không hỏi lại.
func TestMasteryCollectorZeroFillsUnreachablePlayers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.Sqlite.WithTxRetry(ctx, func(tx *gorm.DB) error {
		if err := env.Match.CreateIgnoreTx(tx, []model.Match{{MatchID: "NA1_1", Region: "NA", QueueID: 420}}); err != nil {
			return err
		}
		return env.Part.UpsertBatchTx(tx, []model.MatchParticipant{
			{MatchID: "NA1_1", Puuid: "p1", Region: "NA", ChampionID: 1},
			{MatchID: "NA1_1", Puuid: "p1", Region: "NA", ChampionID: 2},
		})
	}))

	fake := &fakeMasteryAPI{failAlways: map[string]bool{"p1": true}}
	mx, err := NewMasteryCollector(env.Config, env.Logger, env.Sqlite, nil, env.Coordinator)
	require.NoError(t, err)
	mx.api = fake

	written, err := mx.Collect(ctx, "NA")
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	// Zero-fill ngay sau lần fetch lỗi, không retry thêm
	assert.Equal(t, 1, fake.calls["p1"])

	rows, err := env.Mastery.ByPuuid(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, 0, row.ChampionPoints)
		assert.Nil(t, row.ChampionLevel)
	}

	pending, err := env.Mastery.PendingPairsByPuuid(ctx, "NA")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMasteryCollectorIdempotentRerun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.Mastery.UpsertBatch(ctx, []model.ChampionMastery{
		{Puuid: "p1", ChampionID: 1, Region: "NA", ChampionPoints: 1000},
	}))

	fake := &fakeMasteryAPI{}
	mx, err := NewMasteryCollector(env.Config, env.Logger, env.Sqlite, nil, env.Coordinator)
	require.NoError(t, err)
	mx.api = fake

	written, err := mx.Collect(ctx, "NA")
	require.NoError(t, err)
	assert.Equal(t, 0, written)
	assert.Empty(t, fake.calls)
}
