package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "adsposter/pkg/logx"
)

const defaultKeepRuns = 200

// fileStore keeps everything in append-only JSON Lines.
//
// Files:
//   - <prefix>.runs.jsonl  (one RunRecord per line)
//   - <prefix>.audit.jsonl (one AuditEntry per line)
//
// The most recent runs are replayed into memory on open so history queries
// never touch disk.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	runsFile  *os.File
	auditFile *os.File

	recent []RunRecord // oldest first, bounded by keep
	keep   int
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	keep := cfg.KeepRuns
	if keep <= 0 {
		keep = defaultKeepRuns
	}

	runsPath := prefix + ".runs.jsonl"
	recent, skipped := replayRuns(runsPath, keep)
	if skipped > 0 {
		log.Warn("skipped unreadable run records", logx.Int("count", skipped), logx.String("path", runsPath))
	}

	rf, err := os.OpenFile(runsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	af, err := os.OpenFile(prefix+".audit.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		_ = rf.Close()
		return nil, err
	}

	return &fileStore{
		log:       log,
		runsFile:  rf,
		auditFile: af,
		recent:    recent,
		keep:      keep,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.runsFile != nil {
		err1 = s.runsFile.Close()
		s.runsFile = nil
	}
	if s.auditFile != nil {
		err2 = s.auditFile.Close()
		s.auditFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) AppendRun(ctx context.Context, r RunRecord) error {
	_ = ctx
	if r.FinishedAt.IsZero() {
		r.FinishedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runsFile == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.runsFile).Encode(r); err != nil {
		return err
	}
	s.recent = append(s.recent, r)
	if over := len(s.recent) - s.keep; over > 0 {
		s.recent = append(s.recent[:0:0], s.recent[over:]...)
	}
	return nil
}

func (s *fileStore) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runsFile == nil {
		return nil, ErrClosed
	}
	n := len(s.recent)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]RunRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.recent[i])
	}
	return out, nil
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

// replayRuns reads the last keep records from path. Malformed lines are
// counted and skipped; a missing file is an empty history.
func replayRuns(path string, keep int) ([]RunRecord, int) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0
	}
	defer func() { _ = f.Close() }()

	var (
		out     []RunRecord
		skipped int
	)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var r RunRecord
		if err := json.Unmarshal([]byte(line), &r); err != nil || r.ID == "" {
			skipped++
			continue
		}
		out = append(out, r)
		if len(out) > 2*keep {
			out = append(out[:0:0], out[len(out)-keep:]...)
		}
	}
	if len(out) > keep {
		out = append(out[:0:0], out[len(out)-keep:]...)
	}
	return out, skipped
}
