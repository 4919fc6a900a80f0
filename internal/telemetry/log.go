// Package telemetry provides the append-only violation log consumed by the
// severity lifecycle engine, plus the OpenTelemetry export setup. The log is
// one self-contained JSON record per line; the core never rewrites or
// deletes records.
package telemetry

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Record is one validation failure observation.
type Record struct {
	TS       time.Time `json:"ts"`
	Rule     string    `json:"rule"`
	Severity string    `json:"severity"`
	Message  string    `json:"message"`
	Target   string    `json:"target,omitempty"`
}

// Log appends records to a JSONL file. Appends are atomic at record
// granularity: concurrent validation passes never interleave partial lines.
type Log struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger
}

// NewLog creates a log writing to path, creating parent directories.
func NewLog(path string, logger *zap.Logger) (*Log, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create telemetry directory: %w", err)
	}
	return &Log{path: path, logger: logger}, nil
}

// Append durably writes one record. Timestamps are normalized to UTC.
func (l *Log) Append(rec Record) error {
	if rec.TS.IsZero() {
		rec.TS = time.Now()
	}
	rec.TS = rec.TS.UTC()

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal telemetry record: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open telemetry log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("failed to append telemetry record: %w", err)
	}
	return nil
}

// ReadWindow returns records with start <= TS < end, in file order.
// Malformed lines are skipped with a warning; one bad line never aborts the
// scan. A missing log file yields an empty result.
func (l *Log) ReadWindow(start, end time.Time) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry log: %w", err)
	}
	defer f.Close()

	var out []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil || rec.TS.IsZero() {
			l.logger.Warn("skipping malformed telemetry record",
				zap.String("path", l.path),
				zap.Int("line", lineNo))
			continue
		}

		if rec.TS.Before(start) || !rec.TS.Before(end) {
			continue
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("failed to scan telemetry log: %w", err)
	}

	return out, nil
}
