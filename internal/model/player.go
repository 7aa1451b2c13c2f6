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

type Player struct {
	Model
	Puuid        string    `json:"puuid" gorm:"column:puuid;primaryKey"`
	SummonerID   string    `json:"summoner_id" gorm:"column:summoner_id;not null;default:''"`
	Region       string    `json:"region" gorm:"column:region;not null;index:idx_players_region"`
	Tier         string    `json:"tier" gorm:"column:tier;not null;index:idx_players_tier"`
	Rank         string    `json:"rank" gorm:"column:rank"`
	LeaguePoints int       `json:"league_points" gorm:"column:league_points"`
	CollectedAt  time.Time `json:"collected_at" gorm:"column:collected_at;autoCreateTime"`
}

func NewPlayer(config *cfg.Config, logger log.Logger, sqlite *db.Sqlite) (*Player, error) {
	return &Player{
		Model: Model{
			Config: config,
			Logger: logger,
			Sqlite: sqlite,
		},
	}, nil
}

func (p *Player) TableName() string {
	return "players"
}

// UpsertBatch ghi một lô player theo kiểu insert-or-replace trên puuid.
func (p *Player) UpsertBatch(ctx context.Context, players []Player) error {
	if len(players) == 0 {
		return nil
	}
	return p.Sqlite.WithTxRetry(ctx, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "puuid"}},
			UpdateAll: true,
		}).CreateInBatches(players, 100).Error
	})
}

// ExistingPuuids trả về tập puuid đã có cho một region.
func (p *Player) ExistingPuuids(ctx context.Context, region string) (map[string]struct{}, error) {
	gdb, err := p.Sqlite.Db()
	if err != nil {
		return nil, err
	}
	var puuids []string
	if err := gdb.WithContext(ctx).Model(&Player{}).
		Where("region = ?", region).
		Pluck("puuid", &puuids).Error; err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(puuids))
	for _, id := range puuids {
		set[id] = struct{}{}
	}
	return set, nil
}

// PuuidsByTiers trả về puuid của các player thuộc một nhóm tier trong region.
func (p *Player) PuuidsByTiers(ctx context.Context, region string, tiers []string) ([]string, error) {
	gdb, err := p.Sqlite.Db()
	if err != nil {
		return nil, err
	}
	var puuids []string
	err = gdb.WithContext(ctx).Model(&Player{}).
		Where("region = ? AND tier IN ?", region, tiers).
		Pluck("puuid", &puuids).Error
	return puuids, err
}

// PuuidsByTier trả về puuid theo region + tier, có thể kèm division.
func (p *Player) PuuidsByTier(ctx context.Context, region, tier, rank string) ([]string, error) {
	gdb, err := p.Sqlite.Db()
	if err != nil {
		return nil, err
	}
	q := gdb.WithContext(ctx).Model(&Player{}).Where("region = ? AND tier = ?", region, tier)
	if rank != "" {
		q = q.Where("rank = ?", rank)
	}
	var puuids []string
	err = q.Pluck("puuid", &puuids).Error
	return puuids, err
}

func (p *Player) Count(ctx context.Context, region string) (int64, error) {
	gdb, err := p.Sqlite.Db()
	if err != nil {
		return 0, err
	}
	q := gdb.WithContext(ctx).Model(&Player{})
	if region != "" {
		q = q.Where("region = ?", region)
	}
	var count int64
	err = q.Count(&count).Error
	return count, err
}

// DeleteByTier xóa player theo region + tier (+ division) cho thao tác
// reset. Trả về số dòng đã xóa.
func (p *Player) DeleteByTier(ctx context.Context, region, tier, rank string) (int64, error) {
	gdb, err := p.Sqlite.Db()
	if err != nil {
		return 0, err
	}
	q := gdb.WithContext(ctx).Where("region = ? AND tier = ?", region, tier)
	if rank != "" {
		q = q.Where("rank = ?", rank)
	}
	res := q.Delete(&Player{})
	return res.RowsAffected, res.Error
}
