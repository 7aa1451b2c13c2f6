// Gói export ghi kết quả phân tích ra file CSV để dùng tiếp trong
// notebook hoặc spreadsheet.

package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/thep200/mastery-crawler/internal/analysis"
)

// WriteRows stream toàn bộ participant đã join mastery ra CSV.
func WriteRows(ctx context.Context, session *analysis.Session, path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"match_id", "puuid", "champion", "position", "win", "mastery_points"}); err != nil {
		return 0, err
	}

	count := 0
	err = session.IterRows(ctx, func(r analysis.Row) error {
		win := "0"
		if r.Win {
			win = "1"
		}
		count++
		return w.Write([]string{
			r.MatchID,
			r.Puuid,
			r.ChampionName,
			r.TeamPosition,
			win,
			strconv.FormatInt(r.MasteryPoints, 10),
		})
	})
	if err != nil {
		return count, err
	}
	w.Flush()
	return count, w.Error()
}

// WriteBucketStats ghi bảng winrate theo bucket của từng champion.
func WriteBucketStats(path string, stats []analysis.ChampionRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"champion", "bucket", "games", "winrate"}); err != nil {
		return err
	}
	for _, row := range stats {
		record := []string{
			row.Champion,
			row.Bucket,
			strconv.FormatInt(row.Games, 10),
			fmt.Sprintf("%.2f", row.Winrate),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
