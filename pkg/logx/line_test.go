package logx

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLineWriterSplitsAndFlushes(t *testing.T) {
	t.Parallel()
	var got []string
	w := NewLineWriter(func(line string) { got = append(got, line) })

	_, _ = w.Write([]byte("first\nsec"))
	_, _ = w.Write([]byte("ond\r\nthird"))
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("lines = %q", got)
	}
	w.Flush()
	if len(got) != 3 || got[2] != "third" {
		t.Fatalf("after flush lines = %q", got)
	}
	w.Flush()
	if len(got) != 3 {
		t.Fatalf("empty flush emitted a line: %q", got)
	}
}

func TestLineWriterSurvivesPanickingSink(t *testing.T) {
	t.Parallel()
	w := NewLineWriter(func(string) { panic("sink down") })
	if n, err := w.Write([]byte("x\n")); err != nil || n != 2 {
		t.Fatalf("Write = %d, %v", n, err)
	}
}

func TestLoggerWithFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "poster"))
	log.Info("run started", Int("jobs", 3))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v (%s)", err, buf.String())
	}
	if m["comp"] != "poster" || m["message"] != "run started" || m["jobs"] != float64(3) {
		t.Fatalf("unexpected record: %v", m)
	}
	if !strings.HasPrefix(m["caller"].(string), "line_test.go:") {
		t.Fatalf("caller = %v", m["caller"])
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	l.Info("nothing")
	if Nop().IsZero() {
		t.Fatal("Nop logger should not be zero")
	}
}

func TestFormatChatJSON(t *testing.T) {
	t.Parallel()
	got := formatChatJSON([]byte(`{"level":"warn","message":"job skipped","job":2,"time":"x"}` + "\n"))
	if !strings.HasPrefix(got, "[WARN] job skipped") || !strings.Contains(got, "- job=2") {
		t.Fatalf("formatChatJSON = %q", got)
	}
	if strings.Contains(got, "time=") {
		t.Fatalf("time field should be dropped: %q", got)
	}
}
