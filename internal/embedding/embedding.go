package embedding

import (
	"context"
	"errors"
	"time"
)

// ErrMissingEmbedding is returned when an owner has no stored vector yet.
var ErrMissingEmbedding = errors.New("missing embedding")

// OwnerKind tells whether an embedding belongs to a candidate or a job posting.
type OwnerKind string

const (
	OwnerCandidate OwnerKind = "candidate"
	OwnerJob       OwnerKind = "job"
)

// Embedding is an immutable vector produced by an external model for a single owner.
// A re-processed profile or job replaces the whole value.
type Embedding struct {
	OwnerID   string
	Kind      OwnerKind
	Vector    []float32
	CreatedAt time.Time
}

// Dimension returns the vector length.
func (e Embedding) Dimension() int {
	return len(e.Vector)
}

// Provider supplies the stored vector for a candidate. Implementations must wrap
// ErrMissingEmbedding when nothing is stored for the id.
type Provider interface {
	CandidateEmbedding(ctx context.Context, candidateID string) (Embedding, error)
}

// MemoryProvider is a map-backed Provider.
type MemoryProvider map[string]Embedding

func (m MemoryProvider) CandidateEmbedding(_ context.Context, candidateID string) (Embedding, error) {
	e, ok := m[candidateID]
	if !ok || len(e.Vector) == 0 {
		return Embedding{}, ErrMissingEmbedding
	}
	return e, nil
}
