// Gói analysis chạy các query thống kê trên dữ liệu đã thu thập. Một
// Session ghim một connection riêng và dựng hai bảng temp đã lọc sẵn
// (_fm cho match, _mp cho participant kèm mastery) để các query sau đó
// không phải join lại từ đầu. Temp table của SQLite sống theo
// connection nên Session bắt buộc phải giữ nguyên một *sql.Conn.

package analysis

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/thep200/mastery-crawler/pkg/db"
	"github.com/thep200/mastery-crawler/pkg/log"
)

// Các mức lọc elo cho bảng phân tích
const (
	FilterEmeraldPlus  = "emerald_plus"
	FilterDiamondPlus  = "diamond_plus"
	FilterDiamond2Plus = "diamond2_plus"
)

// Buckets chia mastery points thành ba nhóm low/medium/high theo hai
// ngưỡng trên của low và medium.
type Buckets struct {
	LowMax    int
	MediumMax int
}

var (
	DefaultBuckets = Buckets{LowMax: 10_000, MediumMax: 100_000}
	PabuBuckets    = Buckets{LowMax: 30_000, MediumMax: 100_000}
)

type Session struct {
	Logger log.Logger
	conn   *sql.Conn
}

type Summary struct {
	Matches      int64 `json:"matches"`
	Participants int64 `json:"participants"`
	WithMastery  int64 `json:"with_mastery"`
}

type BucketRow struct {
	Bucket  string  `json:"bucket"`
	Games   int64   `json:"games"`
	Wins    int64   `json:"wins"`
	Winrate float64 `json:"winrate"`
}

type CurveRow struct {
	Label   string  `json:"label"`
	MinPts  int     `json:"min_pts"`
	Games   int64   `json:"games"`
	Winrate float64 `json:"winrate"`
}

type ChampionRow struct {
	Champion string  `json:"champion"`
	Bucket   string  `json:"bucket"`
	Games    int64   `json:"games"`
	Winrate  float64 `json:"winrate"`
}

type LaneRow struct {
	Champion string `json:"champion"`
	Position string `json:"position"`
	Games    int64  `json:"games"`
}

// Row là một dòng participant đã join mastery, dùng cho export.
type Row struct {
	MatchID       string
	Puuid         string
	ChampionName  string
	TeamPosition  string
	Win           bool
	MasteryPoints int64
}

// eloPredicate trả về điều kiện lọc match theo tier của các player
// tham gia. Match được giữ khi có ít nhất một player đã thu thập thỏa
// mức elo yêu cầu.
func eloPredicate(filter string) (string, error) {
	switch filter {
	case "", FilterEmeraldPlus:
		return "1=1", nil
	case FilterDiamondPlus:
		return `EXISTS (
			SELECT 1 FROM match_participants xp
			JOIN players pl ON pl.puuid = xp.puuid
			WHERE xp.match_id = m.match_id
			AND pl.tier IN ('DIAMOND','MASTER','GRANDMASTER','CHALLENGER'))`, nil
	case FilterDiamond2Plus:
		return `EXISTS (
			SELECT 1 FROM match_participants xp
			JOIN players pl ON pl.puuid = xp.puuid
			WHERE xp.match_id = m.match_id
			AND (pl.tier IN ('MASTER','GRANDMASTER','CHALLENGER')
				OR (pl.tier = 'DIAMOND' AND pl.rank IN ('I','II'))))`, nil
	default:
		return "", fmt.Errorf("unknown elo filter: %s", filter)
	}
}

// Begin ghim một connection, dựng bảng temp và trả về Session sẵn sàng
// chạy query. Caller phải gọi Close khi xong.
func Begin(ctx context.Context, logger log.Logger, sqlite *db.Sqlite, filter string, patches []string) (*Session, error) {
	gdb, err := sqlite.Db()
	if err != nil {
		return nil, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return nil, err
	}

	s := &Session{Logger: logger, conn: conn}
	if err := s.buildTempTables(ctx, filter, patches); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) buildTempTables(ctx context.Context, filter string, patches []string) error {
	predicate, err := eloPredicate(filter)
	if err != nil {
		return err
	}

	patchClause := "1=1"
	var args []interface{}
	if len(patches) > 0 {
		likes := make([]string, 0, len(patches))
		for _, patch := range patches {
			likes = append(likes, "m.game_version LIKE ?")
			args = append(args, patch+".%")
		}
		patchClause = "(" + strings.Join(likes, " OR ") + ")"
	}

	// _fm: các match qua được bộ lọc
	createFm := `CREATE TEMP TABLE _fm (match_id TEXT PRIMARY KEY) WITHOUT ROWID`
	if _, err := s.conn.ExecContext(ctx, createFm); err != nil {
		return fmt.Errorf("create _fm: %w", err)
	}
	fillFm := fmt.Sprintf(`
		INSERT INTO _fm (match_id)
		SELECT m.match_id FROM matches m
		WHERE %s AND %s`, patchClause, predicate)
	if _, err := s.conn.ExecContext(ctx, fillFm, args...); err != nil {
		return fmt.Errorf("fill _fm: %w", err)
	}

	// _mp: participant của các match đã lọc, join sẵn mastery
	fillMp := `
		CREATE TEMP TABLE _mp AS
		SELECT
			mp.match_id,
			mp.puuid,
			mp.champion_name,
			mp.champion_id,
			mp.team_position,
			mp.win,
			COALESCE(cm.champion_points, 0) AS mastery_points,
			CASE WHEN cm.puuid IS NULL THEN 0 ELSE 1 END AS has_mastery
		FROM match_participants mp
		JOIN _fm f ON f.match_id = mp.match_id
		LEFT JOIN champion_masteries cm
			ON cm.puuid = mp.puuid AND cm.champion_id = mp.champion_id`
	if _, err := s.conn.ExecContext(ctx, fillMp); err != nil {
		return fmt.Errorf("fill _mp: %w", err)
	}
	if _, err := s.conn.ExecContext(ctx, `CREATE INDEX _mp_champion ON _mp (champion_name)`); err != nil {
		return fmt.Errorf("index _mp: %w", err)
	}
	return nil
}

func (s *Session) Close() error {
	ctx := context.Background()
	_, _ = s.conn.ExecContext(ctx, `DROP TABLE IF EXISTS _mp`)
	_, _ = s.conn.ExecContext(ctx, `DROP TABLE IF EXISTS _fm`)
	return s.conn.Close()
}

func (s *Session) Summary(ctx context.Context) (*Summary, error) {
	var out Summary
	row := s.conn.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM _fm),
			COUNT(*),
			SUM(has_mastery)
		FROM _mp`)
	var withMastery sql.NullInt64
	if err := row.Scan(&out.Matches, &out.Participants, &withMastery); err != nil {
		return nil, err
	}
	out.WithMastery = withMastery.Int64
	return &out, nil
}

// bucketExpr trả về biểu thức CASE gán participant vào low/medium/high.
func bucketExpr(b Buckets) string {
	return fmt.Sprintf(`CASE
		WHEN mastery_points < %d THEN 'low'
		WHEN mastery_points < %d THEN 'medium'
		ELSE 'high' END`, b.LowMax, b.MediumMax)
}

// WinrateByBucket tính winrate theo ba nhóm mastery.
func (s *Session) WinrateByBucket(ctx context.Context, b Buckets) ([]BucketRow, error) {
	query := fmt.Sprintf(`
		SELECT %s AS bucket,
			COUNT(*) AS games,
			SUM(win) AS wins,
			ROUND(100.0 * SUM(win) / COUNT(*), 2) AS winrate
		FROM _mp
		WHERE has_mastery = 1
		GROUP BY bucket
		ORDER BY CASE bucket WHEN 'low' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END`,
		bucketExpr(b))
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BucketRow
	for rows.Next() {
		var r BucketRow
		if err := rows.Scan(&r.Bucket, &r.Games, &r.Wins, &r.Winrate); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// curveSteps là các mốc dưới của 11 khoảng mastery points: 10 khoảng
// 10k một và một khoảng mở trên 100k.
var curveSteps = []int{0, 10_000, 20_000, 30_000, 40_000, 50_000, 60_000, 70_000, 80_000, 90_000, 100_000}

// WinrateCurve tính winrate theo 11 khoảng mastery points tăng dần.
func (s *Session) WinrateCurve(ctx context.Context) ([]CurveRow, error) {
	out := make([]CurveRow, 0, len(curveSteps))
	for i, min := range curveSteps {
		var (
			cond  string
			args  []interface{}
			label string
		)
		if i+1 < len(curveSteps) {
			max := curveSteps[i+1]
			cond = "mastery_points >= ? AND mastery_points < ?"
			args = []interface{}{min, max}
			label = fmt.Sprintf("%dk-%dk", min/1000, max/1000)
		} else {
			cond = "mastery_points >= ?"
			args = []interface{}{min}
			label = fmt.Sprintf("%dk+", min/1000)
		}

		row := s.conn.QueryRowContext(ctx, fmt.Sprintf(`
			SELECT COUNT(*), COALESCE(ROUND(100.0 * SUM(win) / COUNT(*), 2), 0)
			FROM _mp WHERE has_mastery = 1 AND %s`, cond), args...)
		r := CurveRow{Label: label, MinPts: min}
		if err := row.Scan(&r.Games, &r.Winrate); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// ChampionBucketStats tính winrate theo bucket cho từng champion, chỉ
// giữ các ô có đủ minGames để số liệu không nhiễu.
func (s *Session) ChampionBucketStats(ctx context.Context, b Buckets, minGames int) ([]ChampionRow, error) {
	query := fmt.Sprintf(`
		SELECT champion_name, %s AS bucket,
			COUNT(*) AS games,
			ROUND(100.0 * SUM(win) / COUNT(*), 2) AS winrate
		FROM _mp
		WHERE has_mastery = 1 AND champion_name != ''
		GROUP BY champion_name, bucket
		HAVING games >= ?
		ORDER BY champion_name, bucket`, bucketExpr(b))
	rows, err := s.conn.QueryContext(ctx, query, minGames)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChampionRow
	for rows.Next() {
		var r ChampionRow
		if err := rows.Scan(&r.Champion, &r.Bucket, &r.Games, &r.Winrate); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ChampionLaneCounts đếm số trận của từng champion theo vị trí.
func (s *Session) ChampionLaneCounts(ctx context.Context) ([]LaneRow, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT champion_name, team_position, COUNT(*) AS games
		FROM _mp
		WHERE champion_name != '' AND team_position != ''
		GROUP BY champion_name, team_position
		ORDER BY champion_name, games DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LaneRow
	for rows.Next() {
		var r LaneRow
		if err := rows.Scan(&r.Champion, &r.Position, &r.Games); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// IterRows stream từng dòng _mp qua fn, dừng khi fn trả lỗi. Dùng cho
// export CSV để không phải giữ toàn bộ dataset trong bộ nhớ.
func (s *Session) IterRows(ctx context.Context, fn func(Row) error) error {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT match_id, puuid, champion_name, team_position, win, mastery_points
		FROM _mp`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.MatchID, &r.Puuid, &r.ChampionName, &r.TeamPosition, &r.Win, &r.MasteryPoints); err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return rows.Err()
}
