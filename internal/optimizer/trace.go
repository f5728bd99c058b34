package optimizer

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// TraceRecord is one line of the JSONL trace file.
type TraceRecord struct {
	Prompt             string    `json:"prompt"`
	Response           string    `json:"response"`
	Score              float64   `json:"score"`
	ObservationSummary string    `json:"observation_summary"`
	NewPrompt          string    `json:"new_prompt,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

// PersistenceError reports a trace file read or write failure.
type PersistenceError struct {
	Op   string // "open", "read", "append"
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("trace %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// traceFile appends records to a JSONL file. Each append is a single write(2)
// under an exclusive flock(2), followed by fsync, so concurrent writers never
// interleave lines and readers only ever see whole records or a truncated tail.
type traceFile struct {
	path string
	file *os.File
}

func openTraceFile(path string) (*traceFile, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &PersistenceError{Op: "open", Path: path, Err: err}
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0644)
	if err != nil {
		return nil, &PersistenceError{Op: "open", Path: path, Err: err}
	}
	return &traceFile{path: path, file: f}, nil
}

// Append writes one record as a single line.
func (t *traceFile) Append(rec TraceRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return &PersistenceError{Op: "append", Path: t.path, Err: fmt.Errorf("marshal record: %w", err)}
	}
	line = append(line, '\n')

	fd := int(t.file.Fd())
	if err := syscall.Flock(fd, syscall.LOCK_EX); err != nil {
		return &PersistenceError{Op: "append", Path: t.path, Err: fmt.Errorf("flock: %w", err)}
	}
	defer func() { _ = syscall.Flock(fd, syscall.LOCK_UN) }()

	info, err := t.file.Stat()
	if err != nil {
		return &PersistenceError{Op: "append", Path: t.path, Err: fmt.Errorf("stat: %w", err)}
	}
	prevSize := info.Size()

	// A torn tail from a crashed writer gets its own line so this record
	// stays parseable.
	if prevSize > 0 {
		last := make([]byte, 1)
		if _, err := t.file.ReadAt(last, prevSize-1); err == nil && last[0] != '\n' {
			line = append([]byte{'\n'}, line...)
		}
	}

	n, err := t.file.Write(line)
	if err == nil && n != len(line) {
		err = io.ErrShortWrite
	}
	if err != nil {
		// Roll back a partial line so the file stays line-aligned.
		_ = t.file.Truncate(prevSize)
		return &PersistenceError{Op: "append", Path: t.path, Err: err}
	}

	if err := t.file.Sync(); err != nil {
		return &PersistenceError{Op: "append", Path: t.path, Err: fmt.Errorf("fsync: %w", err)}
	}
	return nil
}

func (t *traceFile) Close() error {
	return t.file.Close()
}

// ReadTrace parses a trace file. A missing file yields no records and no
// error. Malformed lines are skipped and counted. A final line without a
// trailing newline is a write still in flight and is ignored.
func ReadTrace(path string) (records []TraceRecord, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, &PersistenceError{Op: "read", Path: path, Err: err}
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		line, readErr := r.ReadBytes('\n')
		if readErr != nil && readErr != io.EOF {
			return records, skipped, &PersistenceError{Op: "read", Path: path, Err: readErr}
		}
		if readErr == io.EOF {
			// Anything left here lacks its newline.
			break
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var rec TraceRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}

	return records, skipped, nil
}
