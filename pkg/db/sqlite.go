// Gói db quản lý store SQLite một file dùng chung cho toàn bộ crawler.
// WAL + busy_timeout là bắt buộc: nhiều worker và nhiều region cùng ghi
// vào một file, còn các query phân tích phải đọc được trong lúc đang
// thu thập.

package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/thep200/mastery-crawler/cfg"
	"github.com/thep200/mastery-crawler/pkg/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Sqlite struct {
	Config  *cfg.Config
	Logger  log.Logger
	once    sync.Once
	db      *gorm.DB
	initErr error

	// Tham số retry cho commit bị tranh chấp, test có thể hạ xuống
	TxMaxRetries  int
	TxBackoffBase time.Duration
}

func NewSqlite(config *cfg.Config, logger log.Logger) (*Sqlite, error) {
	return &Sqlite{
		Config:        config,
		Logger:        logger,
		TxMaxRetries:  5,
		TxBackoffBase: time.Second,
	}, nil
}

func (s *Sqlite) DSN() string {
	return fmt.Sprintf(
		"%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=1",
		s.Config.Sqlite.Path,
		s.Config.Sqlite.BusyTimeoutMs,
	)
}

func (s *Sqlite) Db() (*gorm.DB, error) {
	s.once.Do(func() {
		// Bảo đảm thư mục chứa file tồn tại
		if dir := filepath.Dir(s.Config.Sqlite.Path); dir != "." && dir != "" {
			if s.initErr = os.MkdirAll(dir, 0o755); s.initErr != nil {
				return
			}
		}

		// Open connection
		var db *gorm.DB
		db, s.initErr = gorm.Open(sqlite.Open(s.DSN()), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if s.initErr != nil {
			return
		}

		// Get sqlDB
		var sqlDB *sql.DB
		sqlDB, s.initErr = db.DB()
		if s.initErr != nil {
			return
		}

		// Setting connection pool
		sqlDB.SetMaxIdleConns(s.Config.Sqlite.MaxIdleConnection)
		sqlDB.SetMaxOpenConns(s.Config.Sqlite.MaxOpenConnection)
		sqlDB.SetConnMaxLifetime(time.Duration(s.Config.Sqlite.MaxLifeTimeConnection) * time.Second)

		//
		s.db = db
	})
	return s.db, s.initErr
}

func (s *Sqlite) Ping() error {
	db, err := s.Db()
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func (s *Sqlite) Close() error {
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

func (s *Sqlite) Migrate(models ...interface{}) error {
	db, err := s.Db()
	if err != nil {
		return err
	}
	return db.AutoMigrate(models...)
}

// IsBusy nhận diện lỗi tranh chấp lock của SQLite.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "locked") || strings.Contains(msg, "busy")
}

// WithTxRetry chạy fn trong một transaction và retry khi commit gặp
// lỗi locked/busy, backoff lũy thừa. Hết số lần retry thì trả lỗi về
// cho caller; đơn vị dữ liệu coi như chưa thu thập và sẽ được lượt
// chạy sau nhặt lại nhờ discovery idempotent.
func (s *Sqlite) WithTxRetry(ctx context.Context, fn func(tx *gorm.DB) error) error {
	db, err := s.Db()
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= s.TxMaxRetries; attempt++ {
		lastErr = db.WithContext(ctx).Transaction(fn)
		if lastErr == nil {
			return nil
		}
		if !IsBusy(lastErr) || attempt == s.TxMaxRetries {
			return lastErr
		}

		wait := s.TxBackoffBase * (1 << attempt)
		s.Logger.Warn(ctx, "Database locked (attempt %d/%d), retrying in %v: %v",
			attempt+1, s.TxMaxRetries, wait, lastErr)

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
		timer.Stop()
	}
	return lastErr
}
