package evallog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func TestWriter_WriteAndReadBack(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	entries := []Entry{
		{RequestID: "r1", Actor: "alice", Origin: "#chan", Code: "set x 1", CommitID: "abc123", DurationMs: 4},
		{RequestID: "r2", Actor: "bob", Origin: "#chan", Code: "exec ls", IsError: true, ErrorCode: "E_LIMITER"},
	}
	for _, e := range entries {
		if err := w.Write(e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "evals-*.jsonl.zst"))
	if err != nil || len(files) != 1 {
		t.Fatalf("log files = %v, %v", files, err)
	}

	f, err := os.Open(files[0])
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer dec.Close()

	var got []Entry
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("unmarshal %q: %v", line, err)
		}
		got = append(got, e)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(got) != len(entries) {
		t.Fatalf("read %d entries, want %d", len(got), len(entries))
	}
	if got[0].RequestID != "r1" || got[0].CommitID != "abc123" {
		t.Fatalf("first entry: %+v", got[0])
	}
	if got[1].ErrorCode != "E_LIMITER" || !got[1].IsError {
		t.Fatalf("second entry: %+v", got[1])
	}
	if got[0].At == "" {
		t.Fatal("timestamp not filled in")
	}
}

func TestWriter_CloseIdempotent(t *testing.T) {
	w := NewWriter(t.TempDir())
	if err := w.Close(); err != nil {
		t.Fatalf("close without writes: %v", err)
	}
	if err := w.Write(Entry{RequestID: "r"}); err != nil {
		t.Fatalf("write after close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("double close: %v", err)
	}
}
