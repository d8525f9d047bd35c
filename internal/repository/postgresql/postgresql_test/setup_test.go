package postgresql_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/cmlabs-hris/payroll-engine/internal/pkg/database"
	"github.com/cmlabs-hris/payroll-engine/migrations"
)

var (
	testDB      *database.DB
	testDBErr   error
	testDBSetup sync.Once
)

// openTestDB connects to TEST_DATABASE_URL and applies the migrations once per test binary.
// Tests are skipped when no database is configured.
func openTestDB(t *testing.T) *database.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	testDBSetup.Do(func() {
		if err := database.RunMigrations(dsn, migrations.FS, slog.New(slog.DiscardHandler)); err != nil {
			testDBErr = err
			return
		}
		testDB, testDBErr = database.NewPostgreSQLDB(context.Background(), dsn, database.PoolConfig{MaxConns: 5, MinConns: 1})
	})
	if testDBErr != nil {
		t.Fatalf("failed to prepare test database: %v", testDBErr)
	}

	truncateAllTables(t, testDB)
	return testDB
}

// truncateAllTables removes all rows written by a previous test. The seeded concept catalog is kept.
func truncateAllTables(t *testing.T, db *database.DB) {
	t.Helper()
	ctx := context.Background()

	tables := []string{
		"payroll_period_events",
		"payroll_adjustments",
		"payroll_lines",
		"payroll_periods",
		"employee_payroll_items",
		"payroll_attendance",
		"employees",
		"positions",
		"departments",
	}

	for _, table := range tables {
		if _, err := db.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			t.Fatalf("failed to truncate table %s: %v", table, err)
		}
	}
}
