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

type ChampionMastery struct {
	Model
	Puuid      string `json:"puuid" gorm:"column:puuid;primaryKey"`
	ChampionID int    `json:"champion_id" gorm:"column:champion_id;primaryKey;index:idx_cm_champion"`
	Region     string `json:"region" gorm:"column:region;not null;index:idx_cm_region"`
	// Level là null cho champion chưa từng chơi (bản ghi zero-fill),
	// phân biệt với level 0 thật từ API
	ChampionLevel  *int      `json:"champion_level" gorm:"column:champion_level"`
	ChampionPoints int       `json:"champion_points" gorm:"column:champion_points"`
	LastPlayTime   int64     `json:"last_play_time" gorm:"column:last_play_time"`
	CollectedAt    time.Time `json:"collected_at" gorm:"column:collected_at;autoCreateTime"`
}

func NewChampionMastery(config *cfg.Config, logger log.Logger, sqlite *db.Sqlite) (*ChampionMastery, error) {
	return &ChampionMastery{
		Model: Model{
			Config: config,
			Logger: logger,
			Sqlite: sqlite,
		},
	}, nil
}

func (cm *ChampionMastery) TableName() string {
	return "champion_masteries"
}

// UpsertBatch ghi một lô mastery, khóa tự nhiên là (puuid, champion_id).
func (cm *ChampionMastery) UpsertBatch(ctx context.Context, rows []ChampionMastery) error {
	if len(rows) == 0 {
		return nil
	}
	return cm.Sqlite.WithTxRetry(ctx, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "puuid"}, {Name: "champion_id"}},
			UpdateAll: true,
		}).CreateInBatches(rows, 100).Error
	})
}

func (cm *ChampionMastery) Count(ctx context.Context, region string) (int64, error) {
	gdb, err := cm.Sqlite.Db()
	if err != nil {
		return 0, err
	}
	q := gdb.WithContext(ctx).Model(&ChampionMastery{})
	if region != "" {
		q = q.Where("region = ?", region)
	}
	var count int64
	err = q.Count(&count).Error
	return count, err
}

// ByPuuid trả về toàn bộ bản ghi mastery của một player.
func (cm *ChampionMastery) ByPuuid(ctx context.Context, puuid string) ([]ChampionMastery, error) {
	gdb, err := cm.Sqlite.Db()
	if err != nil {
		return nil, err
	}
	var rows []ChampionMastery
	err = gdb.WithContext(ctx).
		Where("puuid = ?", puuid).
		Order("champion_id").
		Find(&rows).Error
	return rows, err
}

type pendingPair struct {
	Puuid      string `gorm:"column:puuid"`
	ChampionID int    `gorm:"column:champion_id"`
}

// PendingPairsByPuuid tìm các cặp (puuid, champion) xuất hiện trong
// match_participants nhưng chưa có bản ghi mastery, gom theo puuid.
// Đây là bước discovery hiệu-số-tập-hợp: chạy lại chỉ nhặt phần thiếu.
func (cm *ChampionMastery) PendingPairsByPuuid(ctx context.Context, region string) (map[string][]int, error) {
	gdb, err := cm.Sqlite.Db()
	if err != nil {
		return nil, err
	}

	rows, err := gdb.WithContext(ctx).Raw(`
		SELECT DISTINCT mp.puuid, mp.champion_id
		FROM match_participants mp
		LEFT JOIN champion_masteries cm
			ON cm.puuid = mp.puuid AND cm.champion_id = mp.champion_id
		WHERE mp.region = ? AND cm.puuid IS NULL
		ORDER BY mp.puuid`, region).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pending := make(map[string][]int)
	for rows.Next() {
		var pair pendingPair
		if err := gdb.ScanRows(rows, &pair); err != nil {
			return nil, err
		}
		pending[pair.Puuid] = append(pending[pair.Puuid], pair.ChampionID)
	}
	return pending, rows.Err()
}
