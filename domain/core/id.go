// Package core holds identifiers and content hashes shared across the module.
package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// RunID identifies one bootstrap run and its stored result.
// Run IDs are UUIDv7, so they sort by creation time.
type RunID string

// NewRunID creates a time-ordered run identifier
func NewRunID() RunID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return RunID(id.String())
}

func (id RunID) String() string { return string(id) }

// ParseRunID validates s as a run ID. Surrounding whitespace is ignored.
func ParseRunID(s string) (RunID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("run ID cannot be empty")
	}
	if _, err := uuid.Parse(s); err != nil {
		return "", fmt.Errorf("invalid run ID %q: %w", s, err)
	}
	return RunID(s), nil
}
