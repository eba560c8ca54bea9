package database

import (
	"testing"

	"github.com/sunridgelabs/fieldops/backend/internal/leaderboard"
)

func TestOpenSQLiteRequiresPath(t *testing.T) {
	if _, err := OpenSQLite("", nil); err == nil {
		t.Fatal("expected error for empty database path")
	}
}

func TestOpenSQLiteLeavesSchemaToMigrate(t *testing.T) {
	db, err := OpenSQLite("file:open-only?mode=memory&cache=shared", nil)
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}

	if db.Migrator().HasTable(&leaderboard.BonusTier{}) {
		t.Fatal("expected no tables before Migrate runs")
	}

	if err := Migrate(db, nil); err != nil {
		t.Fatalf("unexpected migrate error: %v", err)
	}
	if !db.Migrator().HasTable(&leaderboard.BonusTier{}) {
		t.Fatal("expected bonus tier table after Migrate")
	}
}
