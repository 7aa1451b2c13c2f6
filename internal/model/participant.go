package model

import (
	"context"

	"github.com/thep200/mastery-crawler/cfg"
	"github.com/thep200/mastery-crawler/pkg/db"
	"github.com/thep200/mastery-crawler/pkg/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MatchParticipant struct {
	Model
	MatchID       string `json:"match_id" gorm:"column:match_id;primaryKey"`
	Puuid         string `json:"puuid" gorm:"column:puuid;primaryKey;index:idx_mp_puuid;index:idx_mp_puuid_champion,priority:1"`
	Region        string `json:"region" gorm:"column:region;not null"`
	ChampionID    int    `json:"champion_id" gorm:"column:champion_id;index:idx_mp_champion;index:idx_mp_puuid_champion,priority:2"`
	ChampionName  string `json:"champion_name" gorm:"column:champion_name"`
	TeamPosition  string `json:"team_position" gorm:"column:team_position"`
	Win           bool   `json:"win" gorm:"column:win"`
	Kills         int    `json:"kills" gorm:"column:kills"`
	Deaths        int    `json:"deaths" gorm:"column:deaths"`
	Assists       int    `json:"assists" gorm:"column:assists"`
	ChampLevel    int    `json:"champ_level" gorm:"column:champ_level"`
	GoldEarned    int    `json:"gold_earned" gorm:"column:gold_earned"`
	TotalDamage   int    `json:"total_damage" gorm:"column:total_damage"`
	VisionScore   int    `json:"vision_score" gorm:"column:vision_score"`
	TotalCs       int    `json:"total_cs" gorm:"column:total_cs"`
	SummonerLevel int    `json:"summoner_level" gorm:"column:summoner_level"`
}

func NewMatchParticipant(config *cfg.Config, logger log.Logger, sqlite *db.Sqlite) (*MatchParticipant, error) {
	return &MatchParticipant{
		Model: Model{
			Config: config,
			Logger: logger,
			Sqlite: sqlite,
		},
	}, nil
}

func (mp *MatchParticipant) TableName() string {
	return "match_participants"
}

// UpsertBatchTx ghi một lô participant trong transaction có sẵn, khóa
// tự nhiên là (match_id, puuid).
func (mp *MatchParticipant) UpsertBatchTx(tx *gorm.DB, rows []MatchParticipant) error {
	if len(rows) == 0 {
		return nil
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "match_id"}, {Name: "puuid"}},
		UpdateAll: true,
	}).CreateInBatches(rows, 100).Error
}

func (mp *MatchParticipant) Count(ctx context.Context) (int64, error) {
	gdb, err := mp.Sqlite.Db()
	if err != nil {
		return 0, err
	}
	var count int64
	err = gdb.WithContext(ctx).Model(&MatchParticipant{}).Count(&count).Error
	return count, err
}
