package rules

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Store persists a rule set.
type Store interface {
	Load() (RuleSet, error)
	Save(RuleSet) error
}

// FileStore persists rules as a YAML mapping of key → definition.
type FileStore struct {
	path   string
	logger *zap.Logger
}

// NewFileStore creates a file-backed rule store.
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{path: path, logger: logger}
}

// Load reads the rule set from disk. A missing file yields the built-in
// defaults; a malformed file is a configuration failure.
func (s *FileStore) Load() (RuleSet, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.logger.Debug("rule store missing, using defaults", zap.String("path", s.path))
		return Defaults(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rule store %s: %w", s.path, err)
	}

	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidStore, s.path, err)
	}
	if rs == nil {
		rs = RuleSet{}
	}
	return rs, nil
}

// Save writes the rule set back atomically (temp file + rename) so a
// concurrent reader never observes a partially written store.
func (s *FileStore) Save(rs RuleSet) error {
	data, err := yaml.Marshal(rs)
	if err != nil {
		return fmt.Errorf("failed to marshal rules: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create rule store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".rules-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp rule store: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write rule store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close rule store: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace rule store: %w", err)
	}

	s.logger.Info("rule store saved", zap.String("path", s.path), zap.Int("rules", len(rs)))
	return nil
}
