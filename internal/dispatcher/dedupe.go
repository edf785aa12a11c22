package dispatcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

const dateLayout = time.DateOnly

// Record marks that a candidate was (or is being) notified for a run date.
type Record struct {
	Key         string
	CandidateID string
	RunDate     string
	RunID       string
	MatchCount  int
	CreatedAt   time.Time
}

// DedupeStore must insert a record only if its key is absent, atomically, and
// report whether it did.
type DedupeStore interface {
	InsertIfAbsent(ctx context.Context, rec Record) (bool, error)
}

// DedupeKey is hex(sha256(candidateID + "|" + runDate)).
func DedupeKey(candidateID, runDate string) string {
	sum := sha256.Sum256([]byte(candidateID + "|" + runDate))
	return hex.EncodeToString(sum[:])
}

// MemoryDedupe is a process-local DedupeStore.
type MemoryDedupe struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryDedupe() *MemoryDedupe {
	return &MemoryDedupe{records: make(map[string]Record)}
}

func (m *MemoryDedupe) InsertIfAbsent(ctx context.Context, rec Record) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[rec.Key]; ok {
		return false, nil
	}
	m.records[rec.Key] = rec
	return true, nil
}

func (m *MemoryDedupe) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
