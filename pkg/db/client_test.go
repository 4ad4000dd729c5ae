package db

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-finance/pkg/db/models"
	"github.com/angelmondragon/packfinderz-finance/pkg/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	client := Wrap(newTestDB(t))
	ctx := context.Background()
	if err := client.AutoMigrate(ctx); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&models.SettlementRecord{TransactionID: "re_1", Method: "card", ProcessorStatus: "succeeded"}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	var count int64
	if err := client.DB().Model(&models.SettlementRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&models.SettlementRecord{TransactionID: "re_2", Method: "card", ProcessorStatus: "succeeded"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected WithTx to return an error")
	}
	if err := client.DB().Model(&models.SettlementRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed after rollback: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected rollback to leave 1 record, got %d", count)
	}
}

func TestAutoMigrateEnforcesUniqueTransactionID(t *testing.T) {
	client := Wrap(newTestDB(t))
	ctx := context.Background()
	if err := client.AutoMigrate(ctx); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	record := func() *models.SettlementRecord {
		return &models.SettlementRecord{TransactionID: "re_dup", Method: "card", ProcessorStatus: "succeeded"}
	}
	if err := client.DB().Create(record()).Error; err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := client.DB().Create(record()).Error
	if !IsUniqueViolation(err, "") {
		t.Fatalf("expected unique violation, got %v", err)
	}
}

func TestIsUniqueViolationPg(t *testing.T) {
	err := &pgconn.PgError{Code: "23505", ConstraintName: "ux_ledger_events_refund_id"}
	if !IsUniqueViolation(err, "ux_ledger_events_refund_id") {
		t.Fatal("expected constraint match")
	}
	if IsUniqueViolation(err, "ux_other") {
		t.Fatal("expected constraint mismatch")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Fatal("foreign key violation is not unique violation")
	}
}

func TestPing(t *testing.T) {
	client := Wrap(newTestDB(t))
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}

func TestStatsCollectorRegisters(t *testing.T) {
	client := Wrap(newTestDB(t))
	collector, err := client.StatsCollector()
	if err != nil {
		t.Fatalf("stats collector: %v", err)
	}
	reg := prometheus.NewRegistry()
	if err := reg.Register(collector); err != nil {
		t.Fatalf("register: %v", err)
	}
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "go_sql_max_open_connections" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected pool metrics to be exported")
	}
}

func TestQueryLoggerReportsSlowAndFailedStatements(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Output: &buf})
	ql := newQueryLogger(logg, 10*time.Millisecond)
	ctx := context.Background()
	sql := func() (string, int64) { return "SELECT 1", 1 }

	ql.Trace(ctx, time.Now(), sql, nil)
	if buf.Len() != 0 {
		t.Fatalf("fast query should not log, got %s", buf.String())
	}
	ql.Trace(ctx, time.Now(), sql, gorm.ErrRecordNotFound)
	if buf.Len() != 0 {
		t.Fatalf("not found should not log, got %s", buf.String())
	}
	ql.Trace(ctx, time.Now().Add(-time.Second), sql, nil)
	if !strings.Contains(buf.String(), "slow query") {
		t.Fatalf("expected slow query line, got %s", buf.String())
	}
	buf.Reset()
	ql.Trace(ctx, time.Now(), sql, errors.New("relation missing"))
	if !strings.Contains(buf.String(), "query failed") || !strings.Contains(buf.String(), "relation missing") {
		t.Fatalf("expected failed query line, got %s", buf.String())
	}
}
