package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tbourn/go-menu-tracker/internal/services"
)

func TestExitCode(t *testing.T) {
	if exitCode(nil) != exitOK {
		t.Fatalf("nil error must exit 0")
	}
	if exitCode(errors.New("x")) != exitFailure {
		t.Fatalf("plain error must exit 1")
	}
	wrapped := fmt.Errorf("outer: %w", withCode(exitPartial, errors.New("2 failed")))
	if exitCode(wrapped) != exitPartial {
		t.Fatalf("coded error lost through wrapping")
	}
	if withCode(exitUsage, nil) != nil {
		t.Fatalf("withCode(nil) must stay nil")
	}
}

func TestCollectPaths(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"b.json", "a.json", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("{}"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	got, err := collectPaths(importOptions{files: []string{"x.json"}, dir: dir, glob: "*.json"})
	if err != nil {
		t.Fatalf("collectPaths: %v", err)
	}
	want := []string{"x.json", filepath.Join(dir, "a.json"), filepath.Join(dir, "b.json")}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("got %v want %v", got, want)
	}
	if _, err := collectPaths(importOptions{}); err == nil {
		t.Fatalf("expected error with no inputs")
	}
}

func TestReport(t *testing.T) {
	items := []services.BatchItem{
		{Index: 0, Source: "ok.json", Result: &services.ImportResult{SessionID: "s1", Status: "completed", Products: 3, NewPrices: 2}},
		{Index: 1, Source: "bad.json", Err: &services.TransactionAbortError{SessionID: "s2", Phase: services.PhaseResolved, Err: errors.New("boom")}},
	}

	var buf bytes.Buffer
	if err := report(&buf, items, false); err != nil {
		t.Fatalf("report: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.Contains(lines[0], "session=s1 products=3") || !strings.HasPrefix(lines[1], "failed") {
		t.Fatalf("unexpected text report:\n%s", buf.String())
	}

	buf.Reset()
	if err := report(&buf, items, true); err != nil {
		t.Fatalf("report json: %v", err)
	}
	var rows []fileResult
	if err := json.Unmarshal(buf.Bytes(), &rows); err != nil {
		t.Fatalf("json: %v", err)
	}
	if rows[1].SessionID != "s2" || rows[1].Error == "" {
		t.Fatalf("failed row lacks session or error: %+v", rows[1])
	}
}

func TestRunImport_PartialFailureExitCode(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", filepath.Join(dir, "menus.db"))
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOCK_BACKEND", "local")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("OTEL_ENABLED", "false")

	good := `{"metadata":{"scraped_at":"2025-03-01T12:00:00Z"},"source":{"url":"https://foody.com.cy/menu/a"},` +
		`"restaurant":{"name":"Alpha"},"categories":[],"products":[{"id":"1","name":"Soup","price":4}]}`
	snaps := filepath.Join(dir, "snaps")
	if err := os.Mkdir(snaps, 0o700); err != nil {
		t.Fatal(err)
	}
	_ = os.WriteFile(filepath.Join(snaps, "1-good.json"), []byte(good), 0o600)
	_ = os.WriteFile(filepath.Join(snaps, "2-bad.json"), []byte(`{"restaurant":{}}`), 0o600)

	var out bytes.Buffer
	err := runImport(context.Background(), &out, importOptions{dir: snaps, glob: "*.json"})
	if exitCode(err) != exitPartial {
		t.Fatalf("expected partial exit, got %v (%d)\n%s", err, exitCode(err), out.String())
	}
	if !strings.Contains(out.String(), "completed") || !strings.Contains(out.String(), "failed") {
		t.Fatalf("report should list both outcomes:\n%s", out.String())
	}
}
