package repo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/go-menu-tracker/internal/domain"
)

func TestOpenSQLite_ErrorOnBadPath(t *testing.T) {
	base := t.TempDir()
	bad := filepath.Join(base, "does-not-exist", "app.db")

	db, err := OpenSQLite(bad)
	if err == nil || db != nil {
		t.Fatalf("expected error opening %q, got db=%v err=%v", bad, db, err)
	}

	// Windows reports *os.PathError, sqlite "unable to open database file".
	lower := strings.ToLower(err.Error())
	if !(os.IsNotExist(err) ||
		strings.Contains(lower, "unable to open database file") ||
		strings.Contains(lower, "no such file or directory") ||
		strings.Contains(lower, "out of memory")) {
		t.Fatalf("unexpected error opening %q: %v", bad, err)
	}
}

func TestOpenSQLite_SetsPragmas_Pool_AndAutoMigrate(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "app.db")

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	pragmas := map[string]string{"journal_mode": "wal", "synchronous": "1", "foreign_keys": "1", "busy_timeout": "5000"}
	for name, want := range pragmas {
		var got string
		if err := db.Raw("PRAGMA " + name).Row().Scan(&got); err != nil {
			t.Fatalf("PRAGMA %s: %v", name, err)
		}
		if strings.ToLower(got) != want {
			t.Fatalf("PRAGMA %s = %q, want %q", name, got, want)
		}
	}

	if stats := sqlDB.Stats(); stats.MaxOpenConnections != 10 {
		t.Fatalf("expected MaxOpenConnections=10, got %d", stats.MaxOpenConnections)
	}

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	m := db.Migrator()
	for _, tbl := range domain.All() {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}

	now := time.Now().UTC()
	d := &domain.Domain{ID: "d1", Name: "wolt.com", DisplayName: "Wolt", BaseURL: "https://wolt.com", ScraperID: "wolt"}
	if err := db.Create(d).Error; err != nil {
		t.Fatalf("insert domain: %v", err)
	}
	sess := &domain.ScrapingSession{ID: "s1", Status: domain.SessionStarted, ScrapedAt: now, StartedAt: now}
	if err := db.Create(sess).Error; err != nil {
		t.Fatalf("insert session: %v", err)
	}

	var got domain.Domain
	if err := db.First(&got, "id = ?", "d1").Error; err != nil || got.ScraperID != "wolt" {
		t.Fatalf("readback domain failed: err=%v got=%+v", err, got)
	}
}

func TestOpen_Drivers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "open.db")
	db, err := Open(Options{Driver: "SQLite", Path: path, Silent: true, Tracing: true})
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	if _, err := Open(Options{Driver: "mysql"}); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	if _, err := Open(Options{Driver: DriverPostgres}); err == nil {
		t.Fatalf("expected error for empty postgres DSN")
	}
}
