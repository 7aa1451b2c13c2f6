// Collector mastery
// Lấp mastery cho các cặp (player, champion) đã xuất hiện trong match
// nhưng chưa có bản ghi. Không dùng checkpoint: discovery hiệu-số-tập-
// hợp tự biết phần còn thiếu, checkpoint chỉ làm sai khi dữ liệu match
// tăng thêm giữa hai lượt chạy. Fetch lỗi không được xếp hàng retry:
// cặp còn thiếu được ghi bản ghi zero, thiếu mastery là quan sát
// "0 điểm" hợp lệ.

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

type masteryAPI interface {
	AllChampionMastery(ctx context.Context, region, puuid string) ([]riotapi.MasteryDTO, error)
}

type MasteryCollector struct {
	Logger   log.Logger
	Config   *cfg.Config
	Sqlite   *db.Sqlite
	Shutdown *shutdown.Coordinator
	api      masteryAPI

	MasteryMd *model.ChampionMastery

	bufMu sync.Mutex
	buf   []model.ChampionMastery

	attempted int32
	written   int32
	errored   int32
}

func NewMasteryCollector(config *cfg.Config, logger log.Logger, sqlite *db.Sqlite, caller *riotapi.Caller, coordinator *shutdown.Coordinator) (*MasteryCollector, error) {
	masteryMd, _ := model.NewChampionMastery(config, logger, sqlite)
	return &MasteryCollector{
		Logger:    logger,
		Config:    config,
		Sqlite:    sqlite,
		Shutdown:  coordinator,
		api:       caller,
		MasteryMd: masteryMd,
	}, nil
}

type masteryTask struct {
	puuid     string
	champions []int
}

func (mx *MasteryCollector) Collect(ctx context.Context, region string) (int, error) {
	pending, err := mx.MasteryMd.PendingPairsByPuuid(ctx, region)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		mx.Logger.Info(ctx, "No pending mastery pairs for %s", region)
		return 0, nil
	}
	mx.Logger.Info(ctx, "Collecting mastery for %d players in %s", len(pending), region)

	tasks := make(chan masteryTask)
	var wg sync.WaitGroup

	workers := mx.Config.Collector.Workers
	if workers <= 0 {
		workers = 5
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range tasks {
				if mx.Shutdown.Triggered() {
					continue
				}
				atomic.AddInt32(&mx.attempted, 1)
				// Lỗi một player chỉ log và đếm; cặp còn thiếu của nó
				// vẫn pending nên lượt sau nhặt lại qua discovery
				if err := mx.collectPlayer(ctx, region, task); err != nil {
					mx.Logger.Error(ctx, "Mastery for %s failed: %v", task.puuid, err)
					atomic.AddInt32(&mx.errored, 1)
				}
			}
		}()
	}

	for puuid, champions := range pending {
		if mx.Shutdown.Triggered() {
			break
		}
		tasks <- masteryTask{puuid: puuid, champions: champions}
	}
	close(tasks)
	wg.Wait()

	if err := mx.flush(ctx); err != nil {
		return int(atomic.LoadInt32(&mx.written)), err
	}
	return int(atomic.LoadInt32(&mx.written)), nil
}

// Summary trả về tổng kết lượt chạy cho báo cáo cuối run.
func (mx *MasteryCollector) Summary() Summary {
	return Summary{
		Attempted: int(atomic.LoadInt32(&mx.attempted)),
		Written:   int(atomic.LoadInt32(&mx.written)),
		Errored:   int(atomic.LoadInt32(&mx.errored)),
	}
}

// collectPlayer lấy toàn bộ mastery của player bằng một request rồi
// lấp các cặp còn thiếu. Champion player chưa từng chơi vẫn được ghi
// một bản ghi zero (points 0, level null) để lượt sau không hỏi lại;
// fetch lỗi sau khi hết retry tại chỗ cũng zero-fill thay vì xếp hàng
// retry, khác với match: một giá trị thiếu có mặc định hợp lệ, một
// match thiếu thì không.
func (mx *MasteryCollector) collectPlayer(ctx context.Context, region string, task masteryTask) error {
	dtos, err := mx.api.AllChampionMastery(ctx, region, task.puuid)
	if err != nil {
		if !riotapi.IsTransient(err) {
			return err
		}
		mx.Logger.Warn(ctx, "Mastery fetch for %s failed, writing zero records: %v", task.puuid, err)
		dtos = nil
	}
	if mx.Shutdown.Triggered() {
		// Bị hủy giữa chừng thì không zero-fill, cặp vẫn pending
		return nil
	}

	byChampion := make(map[int]riotapi.MasteryDTO, len(dtos))
	for _, dto := range dtos {
		byChampion[dto.ChampionID] = dto
	}

	rows := make([]model.ChampionMastery, 0, len(task.champions))
	for _, championID := range task.champions {
		row := model.ChampionMastery{
			Puuid:      task.puuid,
			ChampionID: championID,
			Region:     region,
		}
		if dto, ok := byChampion[championID]; ok {
			level := dto.ChampionLevel
			row.ChampionLevel = &level
			row.ChampionPoints = dto.ChampionPoints
			row.LastPlayTime = dto.LastPlayTime
		}
		rows = append(rows, row)
	}
	return mx.buffer(ctx, rows)
}

func (mx *MasteryCollector) buffer(ctx context.Context, rows []model.ChampionMastery) error {
	batchSize := mx.Config.Collector.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}

	mx.bufMu.Lock()
	mx.buf = append(mx.buf, rows...)
	full := len(mx.buf) >= batchSize
	mx.bufMu.Unlock()

	if full {
		return mx.flush(ctx)
	}
	return nil
}

func (mx *MasteryCollector) flush(ctx context.Context) error {
	mx.bufMu.Lock()
	rows := mx.buf
	mx.buf = nil
	mx.bufMu.Unlock()

	if len(rows) == 0 {
		return nil
	}
	if err := mx.MasteryMd.UpsertBatch(ctx, rows); err != nil {
		return err
	}
	atomic.AddInt32(&mx.written, int32(len(rows)))
	mx.Logger.Info(ctx, "Flushed %d mastery records", len(rows))
	return nil
}
