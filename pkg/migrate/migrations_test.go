package migrate_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-finance/pkg/migrate"
)

func TestMigrationsValidate(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestPayoutMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_payouts.sql")
	checks := []string{
		"CREATE TABLE IF NOT EXISTS payout_methods",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_payout_methods_vendor_default ON payout_methods (vendor_id) WHERE is_default",
		"CHECK (amount_cents > 0)",
		"ux_payout_requests_reference",
		"DROP TABLE IF EXISTS payout_requests",
	}
	for _, check := range checks {
		if !strings.Contains(content, check) {
			t.Fatalf("payout migration missing %q", check)
		}
	}
}

func TestLedgerMigrationGuardsDoubleCounting(t *testing.T) {
	content := readMigration(t, "*_create_ledger_and_outbox.sql")
	for _, idx := range []string{"ux_ledger_events_order_id", "ux_ledger_events_refund_id", "ux_ledger_events_payout_id"} {
		if !strings.Contains(content, idx) {
			t.Fatalf("ledger migration missing %s", idx)
		}
	}
}

func TestMigrationsApplyOnSQLite(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "finance.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	defer sqlDB.Close()

	ctx := context.Background()
	if err := migrate.Run(ctx, sqlDB, "migrations", migrate.DialectSQLite, "up"); err != nil {
		t.Fatalf("goose up: %v", err)
	}
	for _, table := range []string{"refund_requests", "settlement_records", "payout_methods", "payout_requests", "ledger_events", "outbox_events", "outbox_dlq"} {
		if !conn.Migrator().HasTable(table) {
			t.Fatalf("expected table %s after migration", table)
		}
	}
	if err := migrate.Run(ctx, sqlDB, "migrations", migrate.DialectSQLite, "reset"); err != nil {
		t.Fatalf("goose reset: %v", err)
	}
	if conn.Migrator().HasTable("payout_requests") {
		t.Fatalf("expected payout_requests dropped after reset")
	}
}

func TestDialectFor(t *testing.T) {
	if migrate.DialectFor(true) != migrate.DialectSQLite {
		t.Fatalf("expected sqlite dialect")
	}
	if migrate.DialectFor(false) != migrate.DialectPostgres {
		t.Fatalf("expected postgres dialect")
	}
}

func TestCreateBumpsPastNewestVersion(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first, err := migrate.Create(dir, "Add Payout Notes", now)
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if filepath.Base(first) != "20260301120000_add_payout_notes.sql" {
		t.Fatalf("unexpected filename %s", first)
	}
	second, err := migrate.Create(dir, "index refunds by order", now)
	if err != nil {
		t.Fatalf("create second migration: %v", err)
	}
	if filepath.Base(second) != "20260301120001_index_refunds_by_order.sql" {
		t.Fatalf("expected bumped version, got %s", second)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migrations should validate: %v", err)
	}

	files, err := migrate.ListDir(dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 || files[0].Name != "add_payout_notes" || files[1].Version != 20260301120001 {
		t.Fatalf("unexpected listing %+v", files)
	}
}

func TestCreateRejectsEmptyName(t *testing.T) {
	if _, err := migrate.Create(t.TempDir(), " !! ", time.Now()); err == nil {
		t.Fatalf("expected error for unusable name")
	}
}

func TestValidateDirRejectsPostgresOnlySQL(t *testing.T) {
	cases := map[string]string{
		"cast":   "SELECT amount_cents::text FROM payout_requests;",
		"serial": "CREATE TABLE t (id BIGSERIAL PRIMARY KEY);",
		"now":    "UPDATE payout_requests SET updated_at = now();",
	}
	for name, stmt := range cases {
		dir := t.TempDir()
		body := "-- +goose Up\n-- +goose StatementBegin\n" + stmt + "\n-- +goose StatementEnd\n-- +goose Down\n"
		if err := os.WriteFile(filepath.Join(dir, "20260301120000_bad.sql"), []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := migrate.ValidateDir(dir); err == nil {
			t.Fatalf("%s: expected portability error", name)
		}
	}
}

func TestValidateDirRejectsBadNamesAndDuplicates(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "add_things.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := migrate.ValidateDir(dir); err == nil || !strings.Contains(err.Error(), "invalid migration filename") {
		t.Fatalf("expected filename error, got %v", err)
	}

	dup := t.TempDir()
	for _, name := range []string{"20260301120000_a.sql", "20260301120000_b.sql"} {
		if err := os.WriteFile(filepath.Join(dup, name), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := migrate.ValidateDir(dup); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %s", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
