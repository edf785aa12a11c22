package vectorindex

import (
	"context"
	"sync"
)

type slot struct {
	entry Entry
	norm  float64
}

// BruteForce scores every stored vector per query. Exact, and the right choice
// for corpora up to a few tens of thousands of jobs.
type BruteForce struct {
	mu    sync.RWMutex
	dim   int
	slots []slot
	pos   map[string]int
}

var _ Index = (*BruteForce)(nil)

func NewBruteForce(dim int) *BruteForce {
	return &BruteForce{
		dim: dim,
		pos: make(map[string]int),
	}
}

func (b *BruteForce) Dimension() int { return b.dim }

func (b *BruteForce) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.slots)
}

func (b *BruteForce) Upsert(e Entry) error {
	n, err := norm(e.Vector, b.dim)
	if err != nil {
		return err
	}
	s := slot{entry: copyEntry(e), norm: n}

	b.mu.Lock()
	defer b.mu.Unlock()

	if i, ok := b.pos[e.JobID]; ok {
		b.slots[i] = s
		return nil
	}
	b.pos[e.JobID] = len(b.slots)
	b.slots = append(b.slots, s)
	return nil
}

func (b *BruteForce) Remove(jobID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	i, ok := b.pos[jobID]
	if !ok {
		return false
	}

	last := len(b.slots) - 1
	if i != last {
		b.slots[i] = b.slots[last]
		b.pos[b.slots[i].entry.JobID] = i
	}
	b.slots[last] = slot{}
	b.slots = b.slots[:last]
	delete(b.pos, jobID)
	return true
}

func (b *BruteForce) Get(jobID string) (Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	i, ok := b.pos[jobID]
	if !ok {
		return Entry{}, false
	}
	return copyEntry(b.slots[i].entry), true
}

func (b *BruteForce) IDs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]string, 0, len(b.slots))
	for i := range b.slots {
		ids = append(ids, b.slots[i].entry.JobID)
	}
	return ids
}

// Compact is a no-op: removals are applied in place.
func (b *BruteForce) Compact() int { return 0 }

func (b *BruteForce) TombstoneRatio() float64 { return 0 }

func (b *BruteForce) Search(ctx context.Context, query []float32, threshold float64, k int) ([]Hit, error) {
	if err := validateParams(threshold, k); err != nil {
		return nil, err
	}
	qn, err := norm(query, b.dim)
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	hits := make([]Hit, 0)
	for i := range b.slots {
		if i%scanCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		s := &b.slots[i]
		sim, err := cosine(query, qn, s.entry.Vector, s.norm)
		if err != nil {
			return nil, err
		}
		if sim >= threshold {
			hits = append(hits, Hit{JobID: s.entry.JobID, Similarity: sim, PostedAt: s.entry.PostedAt})
		}
	}

	return finalize(hits, k), nil
}

func copyEntry(e Entry) Entry {
	vec := make([]float32, len(e.Vector))
	copy(vec, e.Vector)
	e.Vector = vec
	return e
}
