// Package vectorindex holds job embeddings and answers thresholded top-k cosine
// similarity queries. Two interchangeable strategies are provided: an exact
// brute-force scan and an inverted-file (IVF) approximate index.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrDegenerateVector  = errors.New("degenerate vector")
	ErrInvalidInput      = errors.New("invalid input")
	// ErrCorruptSimilarity means a computed similarity left [-1, 1]; the stored data is broken.
	ErrCorruptSimilarity = errors.New("similarity out of range")
)

const (
	StrategyBruteForce = "brute-force"
	StrategyIVF        = "ivf"
)

// Entry is a job embedding stored in the index.
type Entry struct {
	JobID    string
	Vector   []float32
	PostedAt time.Time
}

// Hit is a single search result.
type Hit struct {
	JobID      string
	Similarity float64
	PostedAt   time.Time
}

// Index is the contract every strategy satisfies.
type Index interface {
	// Search returns at most k hits with similarity >= threshold, ordered by
	// similarity desc, then PostedAt desc, then JobID asc.
	Search(ctx context.Context, query []float32, threshold float64, k int) ([]Hit, error)
	// Upsert inserts the job embedding or replaces the existing one.
	Upsert(e Entry) error
	// Remove drops the job from the index. It reports whether the job was present.
	Remove(jobID string) bool
	// Compact reclaims tombstoned slots and returns how many were reclaimed.
	Compact() int
	// TombstoneRatio is the share of slots occupied by removed entries.
	TombstoneRatio() float64
	// Get returns a copy of the live entry for the job.
	Get(jobID string) (Entry, bool)
	// IDs lists the live job ids in no particular order.
	IDs() []string
	Len() int
	Dimension() int
}

// Config selects and tunes a strategy.
type Config struct {
	Strategy  string `mapstructure:"strategy"`
	Dimension int    `mapstructure:"dimension"`
	Lists     int    `mapstructure:"lists"`
	Probes    int    `mapstructure:"probes"`
	TrainSize int    `mapstructure:"train-size"`
}

// New builds an index for the configured strategy. An empty strategy means brute force.
func New(cfg Config) (Index, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidInput, cfg.Dimension)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Strategy)) {
	case "", StrategyBruteForce:
		return NewBruteForce(cfg.Dimension), nil
	case StrategyIVF:
		return NewIVF(cfg.Dimension, IVFOptions{
			Lists:     cfg.Lists,
			Probes:    cfg.Probes,
			TrainSize: cfg.TrainSize,
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown index strategy %q", ErrInvalidInput, cfg.Strategy)
	}
}

// Load upserts every entry. Entries the index rejects are logged and skipped;
// their ids are returned.
func Load(idx Index, entries []Entry, logger *zap.Logger) []string {
	var skipped []string
	for _, e := range entries {
		if err := idx.Upsert(e); err != nil {
			logger.Warn("job not loaded into the index", zap.String("job_id", e.JobID), zap.Error(err))
			skipped = append(skipped, e.JobID)
		}
	}
	return skipped
}

// SyncResult lists what Sync changed.
type SyncResult struct {
	Upserted []string
	Removed  []string
	Skipped  []string
}

// Sync makes the index hold exactly the given entries. Unchanged entries are
// left alone; rejected ones are logged and skipped.
func Sync(idx Index, entries []Entry, logger *zap.Logger) SyncResult {
	var (
		res  SyncResult
		want = make(map[string]struct{}, len(entries))
	)
	for _, e := range entries {
		want[e.JobID] = struct{}{}
		if cur, ok := idx.Get(e.JobID); ok && sameEntry(cur, e) {
			continue
		}
		if err := idx.Upsert(e); err != nil {
			logger.Warn("job not synced into the index", zap.String("job_id", e.JobID), zap.Error(err))
			res.Skipped = append(res.Skipped, e.JobID)
			continue
		}
		res.Upserted = append(res.Upserted, e.JobID)
	}

	for _, id := range idx.IDs() {
		if _, ok := want[id]; ok {
			continue
		}
		if idx.Remove(id) {
			res.Removed = append(res.Removed, id)
		}
	}
	slices.Sort(res.Removed)
	return res
}

func sameEntry(a, b Entry) bool {
	return a.PostedAt.Equal(b.PostedAt) && slices.Equal(a.Vector, b.Vector)
}

// Validate reports whether the index would accept vec for the given dimension.
func Validate(vec []float32, dim int) error {
	_, err := norm(vec, dim)
	return err
}

func validateParams(threshold float64, k int) error {
	if threshold < -1 || threshold > 1 || threshold != threshold {
		return fmt.Errorf("%w: threshold %v outside [-1, 1]", ErrInvalidInput, threshold)
	}
	if k < 1 {
		return fmt.Errorf("%w: k must be >= 1, got %d", ErrInvalidInput, k)
	}
	return nil
}

func compareHits(a, b Hit) int {
	switch {
	case a.Similarity > b.Similarity:
		return -1
	case a.Similarity < b.Similarity:
		return 1
	}
	if c := b.PostedAt.Compare(a.PostedAt); c != 0 {
		return c
	}
	return strings.Compare(a.JobID, b.JobID)
}

// finalize orders hits deterministically and cuts them to k.
func finalize(hits []Hit, k int) []Hit {
	slices.SortFunc(hits, compareHits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// scanCheckEvery bounds how many vectors are scored between context checks.
const scanCheckEvery = 1024
