package ui

import (
	"encoding/json"
	"net/http"

	"github.com/thep200/mastery-crawler/cfg"
	"github.com/thep200/mastery-crawler/internal/analysis"
	"github.com/thep200/mastery-crawler/internal/model"
	"github.com/thep200/mastery-crawler/pkg/db"
	"github.com/thep200/mastery-crawler/pkg/log"
)

// Handler phục vụ các endpoint JSON đọc trực tiếp từ store.
type Handler struct {
	Logger log.Logger
	Config *cfg.Config
	Sqlite *db.Sqlite

	PlayerMd   *model.Player
	MatchMd    *model.Match
	MasteryMd  *model.ChampionMastery
	ProgressMd *model.CollectionProgress
}

func NewHandler(logger log.Logger, config *cfg.Config, sqlite *db.Sqlite) (*Handler, error) {
	playerMd, _ := model.NewPlayer(config, logger, sqlite)
	matchMd, _ := model.NewMatch(config, logger, sqlite)
	masteryMd, _ := model.NewChampionMastery(config, logger, sqlite)
	progressMd, _ := model.NewCollectionProgress(config, logger, sqlite)
	return &Handler{
		Logger:     logger,
		Config:     config,
		Sqlite:     sqlite,
		PlayerMd:   playerMd,
		MatchMd:    matchMd,
		MasteryMd:  masteryMd,
		ProgressMd: progressMd,
	}, nil
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/counts", h.getCounts)
	mux.HandleFunc("/api/progress", h.getProgress)
	mux.HandleFunc("/api/stats", h.getStats)
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.Logger.Error(r.Context(), "Failed to encode JSON response: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// regionCounts là số bản ghi theo region của một bảng.
type regionCounts struct {
	Total    int64            `json:"total"`
	ByRegion map[string]int64 `json:"byRegion"`
}

// getCounts trả về số player/match/mastery theo region.
func (h *Handler) getCounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	regions := h.Config.RegionNames()

	count := func(fn func(region string) (int64, error)) (regionCounts, error) {
		out := regionCounts{ByRegion: make(map[string]int64, len(regions))}
		for _, region := range regions {
			n, err := fn(region)
			if err != nil {
				return out, err
			}
			out.ByRegion[region] = n
			out.Total += n
		}
		return out, nil
	}

	players, err := count(func(region string) (int64, error) { return h.PlayerMd.Count(ctx, region) })
	if err != nil {
		http.Error(w, "Failed to count players", http.StatusInternalServerError)
		return
	}
	matches, err := count(func(region string) (int64, error) { return h.MatchMd.Count(ctx, region) })
	if err != nil {
		http.Error(w, "Failed to count matches", http.StatusInternalServerError)
		return
	}
	masteries, err := count(func(region string) (int64, error) { return h.MasteryMd.Count(ctx, region) })
	if err != nil {
		http.Error(w, "Failed to count masteries", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, r, map[string]interface{}{
		"players":   players,
		"matches":   matches,
		"masteries": masteries,
	})
}

// getProgress trả về các checkpoint của một task (?task=collect_players).
func (h *Handler) getProgress(w http.ResponseWriter, r *http.Request) {
	task := r.URL.Query().Get("task")
	if task == "" {
		task = model.TaskCollectPlayers
	}
	rows, err := h.ProgressMd.ListByTask(r.Context(), task)
	if err != nil {
		h.Logger.Error(r.Context(), "Failed to fetch progress: %v", err)
		http.Error(w, "Failed to fetch progress", http.StatusInternalServerError)
		return
	}

	type progressRow struct {
		Region    string `json:"region"`
		Key       string `json:"key"`
		Status    string `json:"status"`
		UpdatedAt string `json:"updatedAt"`
	}
	out := make([]progressRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, progressRow{
			Region:    row.Region,
			Key:       row.Key,
			Status:    row.Status,
			UpdatedAt: row.UpdatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	h.writeJSON(w, r, out)
}

// getStats chạy nhanh các query tổng hợp winrate theo bucket mastery.
// Query param: filter (emerald_plus|diamond_plus|diamond2_plus).
func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter := r.URL.Query().Get("filter")

	session, err := analysis.Begin(ctx, h.Logger, h.Sqlite, filter, nil)
	if err != nil {
		h.Logger.Error(ctx, "Failed to begin analysis session: %v", err)
		http.Error(w, "Failed to run analysis", http.StatusInternalServerError)
		return
	}
	defer session.Close()

	summary, err := session.Summary(ctx)
	if err != nil {
		http.Error(w, "Failed to run analysis", http.StatusInternalServerError)
		return
	}
	buckets, err := session.WinrateByBucket(ctx, analysis.DefaultBuckets)
	if err != nil {
		http.Error(w, "Failed to run analysis", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, r, map[string]interface{}{
		"summary": summary,
		"buckets": buckets,
	})
}
