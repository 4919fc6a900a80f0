// Package chunk splits source documents into overlapping windows and
// assigns each window a rule-based importance score.
package chunk

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig indicates non-terminating splitter parameters.
	ErrInvalidConfig = errors.New("invalid splitter configuration")
)

// Chunk is a contiguous slice of source text. Start/End are half-open rune
// offsets into the source; End-Start == len([]rune(Text)) at creation time.
// A corrected chunk is a new value, never an in-place mutation.
type Chunk struct {
	Text   string  `json:"text"`
	Index  int     `json:"index"`
	Start  int     `json:"start"`
	End    int     `json:"end"`
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

// Splitter produces chunks of Size runes, advancing by Size-Overlap.
type Splitter struct {
	Size    int
	Overlap int
}

// DefaultSplitter returns the splitter used for document ingestion.
func DefaultSplitter() Splitter {
	return Splitter{Size: 500, Overlap: 100}
}

// Validate checks that the splitter makes forward progress.
func (s Splitter) Validate() error {
	if s.Size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, s.Size)
	}
	if s.Overlap < 0 {
		return fmt.Errorf("%w: overlap must be non-negative, got %d", ErrInvalidConfig, s.Overlap)
	}
	if s.Overlap >= s.Size {
		return fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", ErrInvalidConfig, s.Overlap, s.Size)
	}
	return nil
}

// Split divides text into scored chunks. The union of [Start,End) across all
// chunks covers [0, len(text)) exactly; output is deterministic for
// identical inputs.
func (s Splitter) Split(text, source string) ([]Chunk, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	runes := []rune(text)
	length := len(runes)
	if length == 0 {
		return nil, nil
	}

	step := s.Size - s.Overlap
	chunks := make([]Chunk, 0, length/step+1)

	for start, idx := 0, 0; start < length; start, idx = start+step, idx+1 {
		end := start + s.Size
		if end > length {
			end = length
		}
		body := string(runes[start:end])

		chunks = append(chunks, Chunk{
			Text:   body,
			Index:  idx,
			Start:  start,
			End:    end,
			Source: source,
			Score:  Score(body),
		})

		if end == length {
			break
		}
	}

	return chunks, nil
}
