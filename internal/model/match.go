package model

import (
	"context"
	"time"

	"github.com/thep200/mastery-crawler/cfg"
	"github.com/thep200/mastery-crawler/pkg/db"
	"github.com/thep200/mastery-crawler/pkg/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Match struct {
	Model
	MatchID      string    `json:"match_id" gorm:"column:match_id;primaryKey"`
	Region       string    `json:"region" gorm:"column:region;not null;index:idx_matches_region"`
	GameVersion  string    `json:"game_version" gorm:"column:game_version;index:idx_matches_game_version"`
	GameDuration int       `json:"game_duration" gorm:"column:game_duration"`
	GameCreation int64     `json:"game_creation" gorm:"column:game_creation"`
	QueueID      int       `json:"queue_id" gorm:"column:queue_id"`
	CollectedAt  time.Time `json:"collected_at" gorm:"column:collected_at;autoCreateTime"`
}

func NewMatch(config *cfg.Config, logger log.Logger, sqlite *db.Sqlite) (*Match, error) {
	return &Match{
		Model: Model{
			Config: config,
			Logger: logger,
			Sqlite: sqlite,
		},
	}, nil
}

func (m *Match) TableName() string {
	return "matches"
}

// CreateIgnoreTx ghi một lô match trong transaction có sẵn, bỏ qua
// match_id đã tồn tại. Dùng chung transaction với participant để hai
// bảng luôn nhất quán.
func (m *Match) CreateIgnoreTx(tx *gorm.DB, matches []Match) error {
	if len(matches) == 0 {
		return nil
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "match_id"}},
		DoNothing: true,
	}).CreateInBatches(matches, 100).Error
}

// ExistingSet lọc từ danh sách đầu vào những match_id đã có trong store.
func (m *Match) ExistingSet(ctx context.Context, matchIDs []string) (map[string]struct{}, error) {
	gdb, err := m.Sqlite.Db()
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{})
	for _, chunk := range chunkStrings(matchIDs, inChunkSize) {
		var found []string
		if err := gdb.WithContext(ctx).Model(&Match{}).
			Where("match_id IN ?", chunk).
			Pluck("match_id", &found).Error; err != nil {
			return nil, err
		}
		for _, id := range found {
			set[id] = struct{}{}
		}
	}
	return set, nil
}

func (m *Match) Count(ctx context.Context, region string) (int64, error) {
	gdb, err := m.Sqlite.Db()
	if err != nil {
		return 0, err
	}
	q := gdb.WithContext(ctx).Model(&Match{})
	if region != "" {
		q = q.Where("region = ?", region)
	}
	var count int64
	err = q.Count(&count).Error
	return count, err
}
