package model

import (
	"context"
	"errors"
	"time"

	"github.com/thep200/mastery-crawler/cfg"
	"github.com/thep200/mastery-crawler/pkg/db"
	"github.com/thep200/mastery-crawler/pkg/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Task name
const (
	TaskCollectPlayers = "collect_players"
	TaskCollectMatches = "collect_matches"
	TaskCollectMastery = "collect_mastery"
)

// Status của một đơn vị công việc
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// CollectionProgress là checkpoint cho phép resume: mỗi dòng đánh dấu
// một đơn vị công việc (một tier/division với players, một player với
// matches) đã xử lý tới đâu.
type CollectionProgress struct {
	Model
	Task      string    `json:"task" gorm:"column:task;primaryKey"`
	Region    string    `json:"region" gorm:"column:region;primaryKey"`
	Key       string    `json:"key" gorm:"column:key;primaryKey"`
	Status    string    `json:"status" gorm:"column:status;not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func NewCollectionProgress(config *cfg.Config, logger log.Logger, sqlite *db.Sqlite) (*CollectionProgress, error) {
	return &CollectionProgress{
		Model: Model{
			Config: config,
			Logger: logger,
			Sqlite: sqlite,
		},
	}, nil
}

func (cp *CollectionProgress) TableName() string {
	return "collection_progress"
}

// Upsert ghi trạng thái mới cho một đơn vị công việc.
func (cp *CollectionProgress) Upsert(ctx context.Context, task, region, key, status string) error {
	return cp.Sqlite.WithTxRetry(ctx, func(tx *gorm.DB) error {
		return cp.UpsertBatchTx(tx, task, region, []string{key}, status)
	})
}

// UpsertBatchTx ghi cùng một status cho nhiều key trong transaction có
// sẵn. Collector matches dùng hàm này để commit checkpoint completed
// chung transaction với lô match vừa flush: crash giữa chừng thì cả
// hai cùng rollback, không bao giờ có checkpoint completed mà dữ liệu
// chưa xuống đĩa.
func (cp *CollectionProgress) UpsertBatchTx(tx *gorm.DB, task, region string, keys []string, status string) error {
	if len(keys) == 0 {
		return nil
	}
	rows := make([]CollectionProgress, 0, len(keys))
	now := time.Now()
	for _, key := range keys {
		rows = append(rows, CollectionProgress{
			Task:      task,
			Region:    region,
			Key:       key,
			Status:    status,
			UpdatedAt: now,
		})
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "task"}, {Name: "region"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at"}),
	}).CreateInBatches(rows, inChunkSize).Error
}

// Get trả về status của một đơn vị, "" nếu chưa có checkpoint.
func (cp *CollectionProgress) Get(ctx context.Context, task, region, key string) (string, error) {
	gdb, err := cp.Sqlite.Db()
	if err != nil {
		return "", err
	}
	var row CollectionProgress
	err = gdb.WithContext(ctx).
		Where("task = ? AND region = ? AND key = ?", task, region, key).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return row.Status, nil
}

// CompletedKeys trả về tập key đã hoàn tất của một task trong region.
func (cp *CollectionProgress) CompletedKeys(ctx context.Context, task, region string) (map[string]struct{}, error) {
	gdb, err := cp.Sqlite.Db()
	if err != nil {
		return nil, err
	}
	var keys []string
	if err := gdb.WithContext(ctx).Model(&CollectionProgress{}).
		Where("task = ? AND region = ? AND status = ?", task, region, StatusCompleted).
		Pluck("key", &keys).Error; err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set, nil
}

// ListByTask trả về toàn bộ checkpoint của một task, phục vụ UI.
func (cp *CollectionProgress) ListByTask(ctx context.Context, task string) ([]CollectionProgress, error) {
	gdb, err := cp.Sqlite.Db()
	if err != nil {
		return nil, err
	}
	var rows []CollectionProgress
	err = gdb.WithContext(ctx).
		Where("task = ?", task).
		Order("region, key").
		Find(&rows).Error
	return rows, err
}

// Delete xóa checkpoint của một đơn vị, dùng cho thao tác reset.
func (cp *CollectionProgress) Delete(ctx context.Context, task, region, key string) (int64, error) {
	gdb, err := cp.Sqlite.Db()
	if err != nil {
		return 0, err
	}
	res := gdb.WithContext(ctx).
		Where("task = ? AND region = ? AND key = ?", task, region, key).
		Delete(&CollectionProgress{})
	return res.RowsAffected, res.Error
}

// DeleteForKeys xóa checkpoint của một task cho danh sách key, chunked
// để không vượt giới hạn biến của SQLite. Reset players sẽ cascade xóa
// checkpoint collect_matches của các puuid bị xóa qua hàm này.
func (cp *CollectionProgress) DeleteForKeys(ctx context.Context, task, region string, keys []string) (int64, error) {
	gdb, err := cp.Sqlite.Db()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, chunk := range chunkStrings(keys, inChunkSize) {
		res := gdb.WithContext(ctx).
			Where("task = ? AND region = ? AND key IN ?", task, region, chunk).
			Delete(&CollectionProgress{})
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
	}
	return total, nil
}
