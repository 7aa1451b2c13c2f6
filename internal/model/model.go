// Gói model định nghĩa các entity của store và các thao tác ghi/đọc
// idempotent trên chúng. Mọi write đều là upsert theo khóa tự nhiên
// nên chạy lại collection không tạo bản ghi trùng.

package model

import (
	"github.com/thep200/mastery-crawler/cfg"
	"github.com/thep200/mastery-crawler/pkg/db"
	"github.com/thep200/mastery-crawler/pkg/log"
)

type Model struct {
	Config *cfg.Config `gorm:"-"`
	Logger log.Logger  `gorm:"-"`
	Sqlite *db.Sqlite  `gorm:"-"`
}

// Kích thước chunk cho mệnh đề IN, tránh chạm giới hạn biến của SQLite
const inChunkSize = 500

func chunkStrings(items []string, size int) [][]string {
	var chunks [][]string
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[i:end])
	}
	return chunks
}
