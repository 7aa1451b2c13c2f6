package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thep200/mastery-crawler/cfg"
	"github.com/thep200/mastery-crawler/pkg/log"
	"gorm.io/gorm"
)

func newTestSqlite(t *testing.T) *Sqlite {
	t.Helper()
	loader, _ := cfg.NewMockLoader()
	config, err := loader.Load()
	require.NoError(t, err)
	config.Sqlite.Path = filepath.Join(t.TempDir(), "test.db")

	logger, _ := log.NewCslLogger()
	sqlite, err := NewSqlite(config, logger)
	require.NoError(t, err)
	sqlite.TxBackoffBase = time.Millisecond
	t.Cleanup(func() { sqlite.Close() })
	return sqlite
}

func TestDSNCarriesPragmas(t *testing.T) {
	sqlite := newTestSqlite(t)
	dsn := sqlite.DSN()
	assert.Contains(t, dsn, "_journal_mode=WAL")
	assert.Contains(t, dsn, "_busy_timeout=60000")
	assert.Contains(t, dsn, "_foreign_keys=1")
}

func TestIsBusyClassification(t *testing.T) {
	assert.True(t, IsBusy(errors.New("database is locked")))
	assert.True(t, IsBusy(errors.New("database table is locked")))
	assert.True(t, IsBusy(errors.New("SQLITE_BUSY: database busy")))
	assert.False(t, IsBusy(errors.New("UNIQUE constraint failed")))
	assert.False(t, IsBusy(nil))
}

func TestWithTxRetryRetriesOnBusy(t *testing.T) {
	sqlite := newTestSqlite(t)

	attempts := 0
	err := sqlite.WithTxRetry(context.Background(), func(tx *gorm.DB) error {
		attempts++
		if attempts < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithTxRetryGivesUpAfterMaxRetries(t *testing.T) {
	sqlite := newTestSqlite(t)
	sqlite.TxMaxRetries = 2

	attempts := 0
	err := sqlite.WithTxRetry(context.Background(), func(tx *gorm.DB) error {
		attempts++
		return errors.New("database is locked")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithTxRetryDoesNotRetryOtherErrors(t *testing.T) {
	sqlite := newTestSqlite(t)

	attempts := 0
	err := sqlite.WithTxRetry(context.Background(), func(tx *gorm.DB) error {
		attempts++
		return errors.New("UNIQUE constraint failed")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}
