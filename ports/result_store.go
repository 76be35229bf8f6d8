package ports

import (
	"context"
	"time"
)

// StoredResult is a persisted bootstrap result and its summary.
type StoredResult struct {
	ID        string `json:"id" db:"id"`
	ModelName string `json:"model_name" db:"model_name"`
	// Fingerprint identifies the model definition and observations bootstrapped.
	Fingerprint  string    `json:"fingerprint" db:"fingerprint"`
	NumIteration int       `json:"num_iteration" db:"num_iteration"`
	ErrorCount   int       `json:"error_count" db:"error_count"`
	Rejected     int       `json:"rejected" db:"rejected"`
	Partial      bool      `json:"partial" db:"partial"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	Blob         []byte    `json:"-" db:"blob"`
}

// ResultStore persists serialized bootstrap results.
type ResultStore interface {
	Save(ctx context.Context, result *StoredResult) error
	Load(ctx context.Context, id string) (*StoredResult, error)
	List(ctx context.Context, limit int) ([]*StoredResult, error)
	Delete(ctx context.Context, id string) error
}
