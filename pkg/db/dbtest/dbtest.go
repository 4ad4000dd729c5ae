// Package dbtest opens throwaway sqlite databases with the finance schema.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/packfinderz-finance/pkg/db"
)

// Open returns a migrated in-memory client. The pool is pinned to a single
// connection because every sqlite memory connection is its own database.
func Open(t testing.TB) *db.Client {
	t.Helper()
	return open(t, "file::memory:", 1)
}

// OpenShared returns a migrated file-backed client in WAL mode with a pool of
// conns connections, so concurrent transactions really overlap. Use it when a
// test must not rely on the pool to serialize work.
func OpenShared(t testing.TB, conns int) *db.Client {
	t.Helper()
	path := filepath.Join(t.TempDir(), "finance.db")
	return open(t, "file:"+path+"?_journal_mode=WAL&_busy_timeout=5000", conns)
}

func open(t testing.TB, dsn string, conns int) *db.Client {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(conns)
	t.Cleanup(func() { _ = sqlDB.Close() })

	client := db.Wrap(conn)
	if err := client.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return client
}
