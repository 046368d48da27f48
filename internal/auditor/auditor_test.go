package auditor

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ChrisB0-2/watch-sage/internal/core"
)

func TestJSONLRecordWritesOneLinePerEvent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")

	a, err := NewJSONL(path)
	if err != nil {
		t.Fatalf("NewJSONL: %v", err)
	}

	ctx := context.Background()
	a.Record(ctx, core.AuditEvent{
		Action: "scan",
		Path:   "/",
		Fields: map[string]any{"dirs_scanned": uint64(42)},
	})
	a.Record(ctx, core.AuditEvent{
		Action: "match",
		Path:   "/home/user/dir/",
		Err:    errors.New("boom"),
	})

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("invalid JSON line: %v", err)
		}
		lines = append(lines, m)
	}

	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0]["action"] != "scan" || lines[0]["path"] != "/" {
		t.Errorf("first line: %v", lines[0])
	}
	if lines[1]["err"] != "boom" {
		t.Errorf("second line err: %v", lines[1]["err"])
	}
	if _, ok := lines[0]["time"]; !ok {
		t.Error("time not stamped on event")
	}
}

func TestJSONLRecordAfterCloseIsNoop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")

	a, err := NewJSONL(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}

	a.Record(context.Background(), core.AuditEvent{Action: "scan"})
	if err := a.Err(); err != nil {
		t.Errorf("Err after closed record: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 0 {
		t.Errorf("file not empty: %q", data)
	}
}

func TestSQLiteRecordAndQuery(t *testing.T) {
	dir := t.TempDir()
	a, err := NewSQLite(filepath.Join(dir, "audit.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	defer a.Close()

	ctx := context.Background()

	a.Record(ctx, core.NewMatchAuditEvent(core.FoundFile{
		Dev:   core.MkDev(8, 1),
		Inode: 5865,
		Path:  "/home/user/dir/",
		IsDir: true,
	}))
	a.Record(ctx, core.NewScanAuditEvent("/", core.ScanResult{
		DirsScanned: 3,
		Elapsed:     time.Second,
	}))

	matches, err := a.Query(ctx, QueryFilter{Action: "match"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d match rows, want 1", len(matches))
	}

	m := matches[0]
	if m.Path != "/home/user/dir/" {
		t.Errorf("path = %q", m.Path)
	}
	if m.Device != "8:1" {
		t.Errorf("device = %q, want 8:1", m.Device)
	}
	if m.Inode != 5865 {
		t.Errorf("inode = %d, want 5865", m.Inode)
	}
	if !m.IsDir {
		t.Error("is_dir not set")
	}

	all, err := a.Query(ctx, QueryFilter{})
	if err != nil {
		t.Fatalf("Query all: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("got %d rows, want 2", len(all))
	}
}

func TestSQLiteQueryPathFilter(t *testing.T) {
	dir := t.TempDir()
	a, err := NewSQLite(filepath.Join(dir, "audit.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	ctx := context.Background()
	a.Record(ctx, core.AuditEvent{Action: "match", Path: "/var/log/"})
	a.Record(ctx, core.AuditEvent{Action: "match", Path: "/home/user/"})

	rows, err := a.Query(ctx, QueryFilter{Path: "var"})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Path != "/var/log/" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestSQLitePrune(t *testing.T) {
	dir := t.TempDir()
	a, err := NewSQLite(filepath.Join(dir, "audit.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	ctx := context.Background()
	a.Record(ctx, core.AuditEvent{
		Time:   time.Now().Add(-48 * time.Hour),
		Action: "scan",
	})
	a.Record(ctx, core.AuditEvent{Action: "scan"})

	n, err := a.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d rows, want 1", n)
	}

	rows, err := a.Query(ctx, QueryFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Errorf("remaining rows = %d, want 1", len(rows))
	}
}
