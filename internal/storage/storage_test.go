package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "adsposter/pkg/logx"
)

func openTestFile(t *testing.T, dir string, keep int) Store {
	t.Helper()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "state.db"), KeepRuns: keep}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if st == nil {
		t.Fatalf("Open returned nil store")
	}
	return st
}

func run(id string, published int, at time.Time) RunRecord {
	return RunRecord{ID: id, Identity: "p1", State: "completed", Jobs: published, Published: published, StartedAt: at.Add(-time.Minute), FinishedAt: at}
}

func TestOpenDisabled(t *testing.T) {
	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("Open(%q) = %v, %v", driver, st, err)
		}
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatalf("expected missing path error")
	}
}

func TestFileRecentRunsNewestFirst(t *testing.T) {
	st := openTestFile(t, t.TempDir(), 0)
	defer func() { _ = st.Close() }()
	ctx := context.Background()
	base := time.Date(2025, 3, 7, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := st.AppendRun(ctx, run(id, i, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("AppendRun: %v", err)
		}
	}
	got, err := st.RecentRuns(ctx, 2)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		t.Fatalf("RecentRuns = %+v", got)
	}
	all, _ := st.RecentRuns(ctx, 0)
	if len(all) != 3 {
		t.Fatalf("len(all) = %d", len(all))
	}
}

func TestFileHistorySurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	base := time.Now().UTC()

	st := openTestFile(t, dir, 3)
	for i := 0; i < 5; i++ {
		if err := st.AppendRun(ctx, run(string(rune('a'+i)), i, base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("AppendRun: %v", err)
		}
	}
	if err := st.AppendAudit(ctx, AuditEntry{Source: "http", Action: "run.submit", RunID: "e", OK: true}); err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}
	_ = st.Close()

	// A torn trailing line must not break replay.
	f, err := os.OpenFile(filepath.Join(dir, "state.runs.jsonl"), os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open runs file: %v", err)
	}
	_, _ = f.WriteString(`{"id":"broken"` + "\n")
	_ = f.Close()

	st = openTestFile(t, dir, 3)
	defer func() { _ = st.Close() }()
	got, err := st.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	ids := make([]string, 0, len(got))
	for _, r := range got {
		ids = append(ids, r.ID)
	}
	if strings.Join(ids, "") != "edc" {
		t.Fatalf("ids = %v, want [e d c]", ids)
	}

	audit, err := os.ReadFile(filepath.Join(dir, "state.audit.jsonl"))
	if err != nil {
		t.Fatalf("read audit: %v", err)
	}
	if !strings.Contains(string(audit), `"action":"run.submit"`) {
		t.Fatalf("audit = %s", audit)
	}
}

func TestFileClosed(t *testing.T) {
	st := openTestFile(t, t.TempDir(), 0)
	_ = st.Close()
	if err := st.AppendRun(context.Background(), run("x", 0, time.Now())); err != ErrClosed {
		t.Fatalf("AppendRun after close = %v", err)
	}
	if _, err := st.RecentRuns(context.Background(), 1); err != ErrClosed {
		t.Fatalf("RecentRuns after close = %v", err)
	}
}
