// Collector matches
// Thu thập match theo nhóm tier từ trên xuống với target cộng dồn:
// apex trước, rồi DIAMOND, rồi EMERALD. Đơn vị checkpoint là một
// player; match và participant được ghi chung một transaction theo lô.
// Match lỗi 5xx được dồn vào hàng retry trễ và thử lại sau cool-down.

package collector

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thep200/mastery-crawler/cfg"
	"github.com/thep200/mastery-crawler/internal/model"
	"github.com/thep200/mastery-crawler/internal/riotapi"
	"github.com/thep200/mastery-crawler/internal/shutdown"
	"github.com/thep200/mastery-crawler/pkg/db"
	"github.com/thep200/mastery-crawler/pkg/kafka"
	"github.com/thep200/mastery-crawler/pkg/log"
	"gorm.io/gorm"
)

type matchAPI interface {
	MatchIDsByPUUID(ctx context.Context, region, puuid string, count int) ([]string, error)
	Match(ctx context.Context, region, matchID string) (*riotapi.MatchDTO, error)
}

type MatchCollector struct {
	Logger   log.Logger
	Config   *cfg.Config
	Sqlite   *db.Sqlite
	Shutdown *shutdown.Coordinator
	Producer *kafka.Producer // nil khi không cấu hình Kafka
	api      matchAPI

	MatchMd       *model.Match
	ParticipantMd *model.MatchParticipant
	PlayerMd      *model.Player
	ProgressMd    *model.CollectionProgress

	// Buffer ghi chung cho mọi worker, flush theo lô. completeBuf là
	// các player đã xử lý xong nhưng checkpoint completed chỉ được ghi
	// cùng transaction với lô match chứa dữ liệu của chúng; trước đó
	// checkpoint vẫn là in_progress nên crash không làm mất match.
	bufMu       sync.Mutex
	matchBuf    []model.Match
	partBuf     []model.MatchParticipant
	completeBuf []string

	// Match id đã nhận trong lượt chạy này, tránh hai player cùng trận
	// fetch trùng
	seenMu sync.Mutex
	seen   map[string]bool

	// Hàng retry trễ cho match lỗi 5xx
	deferredMu sync.Mutex
	deferred   map[string]bool

	attempted int32
	written   int32
	errored   int32
}

func NewMatchCollector(config *cfg.Config, logger log.Logger, sqlite *db.Sqlite, caller *riotapi.Caller, coordinator *shutdown.Coordinator, producer *kafka.Producer) (*MatchCollector, error) {
	matchMd, _ := model.NewMatch(config, logger, sqlite)
	participantMd, _ := model.NewMatchParticipant(config, logger, sqlite)
	playerMd, _ := model.NewPlayer(config, logger, sqlite)
	progressMd, _ := model.NewCollectionProgress(config, logger, sqlite)
	return &MatchCollector{
		Logger:        logger,
		Config:        config,
		Sqlite:        sqlite,
		Shutdown:      coordinator,
		Producer:      producer,
		api:           caller,
		MatchMd:       matchMd,
		ParticipantMd: participantMd,
		PlayerMd:      playerMd,
		ProgressMd:    progressMd,
		seen:          make(map[string]bool, 10000),
		deferred:      make(map[string]bool),
	}, nil
}

func (mc *MatchCollector) Collect(ctx context.Context, region string) (int, error) {
	target := mc.regionTarget()
	existing, err := mc.MatchMd.Count(ctx, region)
	if err != nil {
		return 0, err
	}
	if int(existing) >= target {
		mc.Logger.Info(ctx, "Region %s already has %d matches (target %d), nothing to do", region, existing, target)
		return 0, nil
	}

	completed, err := mc.ProgressMd.CompletedKeys(ctx, model.TaskCollectMatches, region)
	if err != nil {
		return 0, err
	}

	cumulative := 0.0
	for _, group := range tierGroups(mc.Config.Collector.TierAllocation) {
		cumulative += group.share
		groupTarget := int(float64(target) * cumulative)
		if mc.total(existing) >= groupTarget {
			mc.Logger.Info(ctx, "Group %s target %d already met for %s", group.name, groupTarget, region)
			continue
		}
		if mc.Shutdown.Triggered() {
			break
		}
		// Lỗi của một nhóm chỉ log và đếm, các nhóm sau vẫn chạy và
		// flush cuối cùng cùng lượt retry trễ vẫn diễn ra
		if err := mc.collectGroup(ctx, region, group, groupTarget, existing, completed); err != nil {
			mc.Logger.Error(ctx, "Group %s in %s failed: %v", group.name, region, err)
			atomic.AddInt32(&mc.errored, 1)
		}
	}

	if err := mc.flush(ctx, region); err != nil {
		return int(atomic.LoadInt32(&mc.written)), err
	}

	mc.retryDeferred(ctx, region)
	return int(atomic.LoadInt32(&mc.written)), nil
}

// Summary trả về tổng kết lượt chạy cho báo cáo cuối run.
func (mc *MatchCollector) Summary() Summary {
	return Summary{
		Attempted: int(atomic.LoadInt32(&mc.attempted)),
		Written:   int(atomic.LoadInt32(&mc.written)),
		Errored:   int(atomic.LoadInt32(&mc.errored)),
	}
}

// regionTarget chia đều target tổng cho các region của lượt chạy; cờ
// -region đã thu hẹp bảng region trước khi collector được dựng nên
// chạy đơn-region nhận trọn target.
func (mc *MatchCollector) regionTarget() int {
	regions := len(mc.Config.RiotApi.Regions)
	if regions == 0 {
		regions = 1
	}
	target := mc.Config.Collector.MatchTarget / regions
	if target < 1 {
		target = 1
	}
	return target
}

// total là số match đã có trong store cộng số vừa ghi trong lượt này.
func (mc *MatchCollector) total(existing int64) int {
	return int(existing) + int(atomic.LoadInt32(&mc.written))
}

func (mc *MatchCollector) collectGroup(ctx context.Context, region string, group tierGroup, groupTarget int, existing int64, completed map[string]struct{}) error {
	puuids, err := mc.PlayerMd.PuuidsByTiers(ctx, region, group.tiers)
	if err != nil {
		return err
	}

	pending := make([]string, 0, len(puuids))
	for _, puuid := range puuids {
		if _, done := completed[puuid]; !done {
			pending = append(pending, puuid)
		}
	}
	mc.Logger.Info(ctx, "Group %s in %s: %d players pending (target %d matches)",
		group.name, region, len(pending), groupTarget)

	tasks := make(chan string)
	var wg sync.WaitGroup

	workers := mc.Config.Collector.Workers
	if workers <= 0 {
		workers = 5
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for puuid := range tasks {
				if mc.Shutdown.Triggered() || mc.total(existing) >= groupTarget {
					continue
				}
				atomic.AddInt32(&mc.attempted, 1)
				// Lỗi một player không kéo cả lô xuống; checkpoint của
				// player đó không phải completed nên lượt sau nhặt lại
				if err := mc.collectPlayer(ctx, region, puuid); err != nil {
					mc.Logger.Error(ctx, "Player %s in %s failed: %v", puuid, region, err)
					atomic.AddInt32(&mc.errored, 1)
				}
			}
		}()
	}

	for _, puuid := range pending {
		if mc.Shutdown.Triggered() || mc.total(existing) >= groupTarget {
			break
		}
		tasks <- puuid
	}
	close(tasks)
	wg.Wait()
	return nil
}

// collectPlayer xử lý một đơn vị checkpoint: lấy danh sách match gần
// nhất của player, fetch những match chưa có trong store rồi đưa vào
// buffer. Bị hủy giữa chừng thì checkpoint giữ nguyên in_progress.
func (mc *MatchCollector) collectPlayer(ctx context.Context, region, puuid string) error {
	if err := mc.ProgressMd.Upsert(ctx, model.TaskCollectMatches, region, puuid, model.StatusInProgress); err != nil {
		return err
	}

	ids, err := mc.api.MatchIDsByPUUID(ctx, region, puuid, mc.Config.Collector.MatchesPerPlayer)
	if err != nil {
		if riotapi.IsTransient(err) {
			// Endpoint đang lỗi, để in_progress cho lượt sau
			mc.Logger.Warn(ctx, "Match ids for %s deferred to next run: %v", puuid, err)
			return nil
		}
		_ = mc.ProgressMd.Upsert(ctx, model.TaskCollectMatches, region, puuid, model.StatusFailed)
		return err
	}

	existing, err := mc.MatchMd.ExistingSet(ctx, ids)
	if err != nil {
		return err
	}

	for _, matchID := range ids {
		if mc.Shutdown.Triggered() {
			return nil
		}
		if _, ok := existing[matchID]; ok {
			continue
		}
		if !mc.claim(matchID) {
			continue
		}

		dto, err := mc.api.Match(ctx, region, matchID)
		if err != nil {
			if riotapi.IsTransient(err) {
				mc.markDeferred(matchID)
				continue
			}
			_ = mc.ProgressMd.Upsert(ctx, model.TaskCollectMatches, region, puuid, model.StatusFailed)
			return err
		}
		if dto == nil {
			continue
		}
		if reason := validateMatch(dto, mc.Config.QueueID(), mc.Config.Collector.MinGameDuration); reason != "" {
			mc.Logger.Debug(ctx, "Rejecting match %s: %s", matchID, reason)
			continue
		}
		if err := mc.buffer(ctx, region, dto); err != nil {
			return err
		}
	}

	if mc.Shutdown.Triggered() {
		return nil
	}
	// Không upsert completed ngay: checkpoint chỉ được ghi cùng
	// transaction với lô match của player này trong lần flush tới
	mc.queueComplete(puuid)
	return nil
}

func (mc *MatchCollector) queueComplete(puuid string) {
	mc.bufMu.Lock()
	mc.completeBuf = append(mc.completeBuf, puuid)
	mc.bufMu.Unlock()
}

func (mc *MatchCollector) claim(matchID string) bool {
	mc.seenMu.Lock()
	defer mc.seenMu.Unlock()
	if mc.seen[matchID] {
		return false
	}
	mc.seen[matchID] = true
	return true
}

func (mc *MatchCollector) markDeferred(matchID string) {
	mc.deferredMu.Lock()
	mc.deferred[matchID] = true
	mc.deferredMu.Unlock()
}

// validateMatch trả về lý do loại bỏ, rỗng nếu match hợp lệ. Queue id
// cùng một giá trị cấu hình với request match-v5; remake và dữ liệu
// thiếu participant bị loại ngay từ đây để các bảng phân tích không
// phải lọc lại.
func validateMatch(dto *riotapi.MatchDTO, queueID, minDuration int) string {
	if dto.Info.QueueID != queueID {
		return fmt.Sprintf("queue %d does not match target queue %d", dto.Info.QueueID, queueID)
	}
	if dto.Info.GameDuration < minDuration {
		return fmt.Sprintf("duration %ds below minimum %ds", dto.Info.GameDuration, minDuration)
	}
	if len(dto.Info.Participants) != 10 {
		return fmt.Sprintf("expected 10 participants, got %d", len(dto.Info.Participants))
	}
	return ""
}

func (mc *MatchCollector) buffer(ctx context.Context, region string, dto *riotapi.MatchDTO) error {
	match := model.Match{
		MatchID:      dto.Metadata.MatchID,
		Region:       region,
		GameVersion:  dto.Info.GameVersion,
		GameDuration: dto.Info.GameDuration,
		GameCreation: dto.Info.GameCreation,
		QueueID:      dto.Info.QueueID,
	}
	parts := make([]model.MatchParticipant, 0, len(dto.Info.Participants))
	for _, p := range dto.Info.Participants {
		parts = append(parts, model.MatchParticipant{
			MatchID:       dto.Metadata.MatchID,
			Puuid:         p.Puuid,
			Region:        region,
			ChampionID:    p.ChampionID,
			ChampionName:  p.ChampionName,
			TeamPosition:  p.TeamPosition,
			Win:           p.Win,
			Kills:         p.Kills,
			Deaths:        p.Deaths,
			Assists:       p.Assists,
			ChampLevel:    p.ChampLevel,
			GoldEarned:    p.GoldEarned,
			TotalDamage:   p.TotalDamageDealtToChampions,
			VisionScore:   p.VisionScore,
			TotalCs:       p.TotalMinionsKilled + p.NeutralMinionsKilled,
			SummonerLevel: p.SummonerLevel,
		})
	}

	mc.bufMu.Lock()
	mc.matchBuf = append(mc.matchBuf, match)
	mc.partBuf = append(mc.partBuf, parts...)
	full := len(mc.matchBuf) >= mc.batchSize()
	mc.bufMu.Unlock()

	if full {
		return mc.flush(ctx, region)
	}
	return nil
}

func (mc *MatchCollector) batchSize() int {
	if mc.Config.Collector.BatchSize > 0 {
		return mc.Config.Collector.BatchSize
	}
	return 500
}

// flush ghi buffer xuống store trong một transaction, kèm checkpoint
// completed của các player có dữ liệu trong lô, rồi publish batch lên
// Kafka (nếu có). Lỗi publish chỉ log, không làm fail collection. Flush
// lỗi thì checkpoint cũng không được ghi: player vẫn in_progress và
// match của nó được discovery lượt sau nhặt lại.
func (mc *MatchCollector) flush(ctx context.Context, region string) error {
	mc.bufMu.Lock()
	matches := mc.matchBuf
	parts := mc.partBuf
	completes := mc.completeBuf
	mc.matchBuf = nil
	mc.partBuf = nil
	mc.completeBuf = nil
	mc.bufMu.Unlock()

	if len(matches) == 0 && len(completes) == 0 {
		return nil
	}

	err := mc.Sqlite.WithTxRetry(ctx, func(tx *gorm.DB) error {
		if err := mc.MatchMd.CreateIgnoreTx(tx, matches); err != nil {
			return err
		}
		if err := mc.ParticipantMd.UpsertBatchTx(tx, parts); err != nil {
			return err
		}
		return mc.ProgressMd.UpsertBatchTx(tx, model.TaskCollectMatches, region, completes, model.StatusCompleted)
	})
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return nil
	}
	atomic.AddInt32(&mc.written, int32(len(matches)))
	mc.Logger.Info(ctx, "Flushed %d matches (%d participants) for %s", len(matches), len(parts), region)

	if mc.Producer != nil {
		ids := make([]string, 0, len(matches))
		for _, m := range matches {
			ids = append(ids, m.MatchID)
		}
		batch := kafka.MatchBatch{Region: region, MatchIDs: ids, FlushedAt: time.Now().Unix()}
		if err := mc.Producer.Publish(ctx, region, batch); err != nil {
			mc.Logger.Warn(ctx, "Kafka publish failed for %s: %v", region, err)
		}
	}
	return nil
}

// retryDeferred chạy các lượt retry trễ cho match lỗi 5xx: chờ hết
// cool-down (có thể bị đánh thức bởi shutdown) rồi thử lại từng match.
// Hết số lượt mà vẫn lỗi thì bỏ; lượt chạy sau sẽ nhặt lại qua
// discovery vì match chưa có trong store.
func (mc *MatchCollector) retryDeferred(ctx context.Context, region string) {
	passes := mc.Config.Collector.RetryPasses
	if passes <= 0 {
		passes = 1
	}
	cooldown := time.Duration(mc.Config.Collector.RetryCooldownSec) * time.Second
	if cooldown < 0 {
		cooldown = 0
	}

	for pass := 1; pass <= passes; pass++ {
		mc.deferredMu.Lock()
		pending := make([]string, 0, len(mc.deferred))
		for id := range mc.deferred {
			pending = append(pending, id)
		}
		mc.deferred = make(map[string]bool)
		mc.deferredMu.Unlock()

		if len(pending) == 0 {
			return
		}
		mc.Logger.Info(ctx, "Retry pass %d/%d: %d deferred matches, cooling down %v",
			pass, passes, len(pending), cooldown)
		if !mc.Shutdown.Sleep(cooldown) {
			return
		}

		for _, matchID := range pending {
			if mc.Shutdown.Triggered() {
				return
			}
			dto, err := mc.api.Match(ctx, region, matchID)
			if err != nil {
				if riotapi.IsTransient(err) {
					mc.markDeferred(matchID)
				} else {
					mc.Logger.Warn(ctx, "Dropping deferred match %s: %v", matchID, err)
				}
				continue
			}
			if dto == nil {
				continue
			}
			if reason := validateMatch(dto, mc.Config.QueueID(), mc.Config.Collector.MinGameDuration); reason != "" {
				continue
			}
			if err := mc.buffer(ctx, region, dto); err != nil {
				mc.Logger.Error(ctx, "Flush failed during retry pass: %v", err)
				return
			}
		}
		if err := mc.flush(ctx, region); err != nil {
			mc.Logger.Error(ctx, "Flush failed after retry pass: %v", err)
			return
		}
	}

	mc.deferredMu.Lock()
	leftover := len(mc.deferred)
	mc.deferredMu.Unlock()
	if leftover > 0 {
		mc.Logger.Warn(ctx, "%d matches still failing after %d retry passes, will be re-discovered next run", leftover, passes)
	}
}
