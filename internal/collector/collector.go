// Gói collector chứa ba orchestrator thu thập theo thứ tự phụ thuộc:
// players -> matches -> mastery. Cả ba đều resumable: chạy lại một
// collector chỉ nhặt phần còn thiếu nhờ checkpoint và discovery
// hiệu-số-tập-hợp, không tạo dữ liệu trùng.

package collector

import (
	"context"
	"fmt"

	"github.com/thep200/mastery-crawler/cfg"
	"github.com/thep200/mastery-crawler/internal/riotapi"
	"github.com/thep200/mastery-crawler/internal/shutdown"
	"github.com/thep200/mastery-crawler/pkg/db"
	"github.com/thep200/mastery-crawler/pkg/kafka"
	"github.com/thep200/mastery-crawler/pkg/log"
)

// Collector chạy một pha thu thập cho một region, trả về số bản ghi
// mới đã ghi xuống store. Summary cho biết tổng kết cuối lượt: số đơn
// vị đã thử, số bản ghi đã ghi và số đơn vị lỗi (lỗi đơn vị chỉ log
// và đếm, không làm dừng region).
type Collector interface {
	Collect(ctx context.Context, region string) (int, error)
	Summary() Summary
}

// Summary là tổng kết cuối lượt của một collector.
type Summary struct {
	Attempted int `json:"attempted"`
	Written   int `json:"written"`
	Errored   int `json:"errored"`
}

const (
	KindPlayers = "players"
	KindMatches = "matches"
	KindMastery = "mastery"
)

// Thang tier của ranked solo. Apex không có division; hai tier dưới
// đi theo division I..IV.
var (
	ApexTiers   = []string{"CHALLENGER", "GRANDMASTER", "MASTER"}
	LadderTiers = []string{"DIAMOND", "EMERALD"}
	Divisions   = []string{"I", "II", "III", "IV"}
)

// tierGroup là một nhóm tier với phần quota match được phân bổ. Thứ tự
// chạy là từ trên xuống, target cộng dồn: nhóm sau chỉ thu thập khi
// tổng số match chưa chạm ngưỡng cộng dồn của nó.
type tierGroup struct {
	name  string
	tiers []string
	share float64
}

func tierGroups(alloc map[string]float64) []tierGroup {
	share := func(name string, def float64) float64 {
		if v, ok := alloc[name]; ok {
			return v
		}
		return def
	}
	return []tierGroup{
		{name: "apex", tiers: ApexTiers, share: share("apex", 0.30)},
		{name: "diamond", tiers: []string{"DIAMOND"}, share: share("diamond", 0.45)},
		{name: "emerald", tiers: []string{"EMERALD"}, share: share("emerald", 0.25)},
	}
}

func Factory(kind string, config *cfg.Config, logger log.Logger, sqlite *db.Sqlite, caller *riotapi.Caller, coordinator *shutdown.Coordinator, producer *kafka.Producer) (Collector, error) {
	switch kind {
	case KindPlayers:
		return NewPlayerCollector(config, logger, sqlite, caller, coordinator)
	case KindMatches:
		return NewMatchCollector(config, logger, sqlite, caller, coordinator, producer)
	case KindMastery:
		return NewMasteryCollector(config, logger, sqlite, caller, coordinator)
	default:
		return nil, fmt.Errorf("unsupported collector kind: %s", kind)
	}
}
