package fix

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HistoryRecord is the audit trail entry written once a fix is accepted:
// which violations existed before, which survived re-validation after.
type HistoryRecord struct {
	ID           string    `json:"id"`
	TS           time.Time `json:"ts"`
	Source       string    `json:"source"`
	ChunkIndex   int       `json:"chunk_index"`
	Rule         string    `json:"rule"`
	ErrorsBefore []string  `json:"errors_before"`
	ErrorsAfter  []string  `json:"errors_after"`
	OriginalText string    `json:"original_text"`
	FixedText    string    `json:"fixed_text"`
}

// History appends fix audit records to a JSONL file.
type History struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger
}

// NewHistory creates a fix history writing to path.
func NewHistory(path string, logger *zap.Logger) (*History, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	return &History{path: path, logger: logger}, nil
}

// Record appends one audit record, assigning ID and timestamp when unset.
func (h *History) Record(rec HistoryRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.TS.IsZero() {
		rec.TS = time.Now()
	}
	rec.TS = rec.TS.UTC()

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal history record: %w", err)
	}
	line = append(line, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()

	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open fix history: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("failed to append fix history record: %w", err)
	}

	h.logger.Debug("recorded fix",
		zap.String("source", rec.Source),
		zap.Int("chunk_index", rec.ChunkIndex),
		zap.Int("errors_before", len(rec.ErrorsBefore)),
		zap.Int("errors_after", len(rec.ErrorsAfter)))
	return nil
}
