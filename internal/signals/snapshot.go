package signals

import (
	"maps"
	"slices"
	"sync/atomic"
	"time"
)

// Window holds the two consecutive half-open intervals a snapshot was computed over.
type Window struct {
	CurrentFrom  time.Time
	CurrentTo    time.Time
	PreviousFrom time.Time
	PreviousTo   time.Time
}

// WindowsAt returns the current window [asOf-size, asOf) and the previous one right before it.
func WindowsAt(asOf time.Time, size time.Duration) Window {
	return Window{
		CurrentFrom:  asOf.Add(-size),
		CurrentTo:    asOf,
		PreviousFrom: asOf.Add(-2 * size),
		PreviousTo:   asOf.Add(-size),
	}
}

// Snapshot is the published hiring signal of one company. It is a pure function
// of the count pair and thresholds it was computed from.
type Snapshot struct {
	CompanyID     string    `json:"company_id"`
	Window        Window    `json:"window"`
	CountCurrent  int       `json:"count_current"`
	CountPrevious int       `json:"count_previous"`
	Velocity      float64   `json:"velocity"`
	Label         Label     `json:"label"`
	ComputedAt    time.Time `json:"computed_at"`
}

// Board holds the current snapshot set. The whole set is replaced at once, so a
// reader sees either the old or the new set, never a mix.
type Board struct {
	current atomic.Pointer[map[string]Snapshot]
}

func NewBoard() *Board {
	b := &Board{}
	empty := map[string]Snapshot{}
	b.current.Store(&empty)
	return b
}

// Publish swaps in a new snapshot set. The caller must not modify the map afterwards.
func (b *Board) Publish(set map[string]Snapshot) {
	if set == nil {
		set = map[string]Snapshot{}
	}
	b.current.Store(&set)
}

func (b *Board) Get(companyID string) (Snapshot, bool) {
	s, ok := (*b.current.Load())[companyID]
	return s, ok
}

// Lookup returns the snapshots of the requested companies from one consistent set.
func (b *Board) Lookup(companyIDs []string) map[string]Snapshot {
	set := *b.current.Load()
	out := make(map[string]Snapshot, len(companyIDs))
	for _, id := range companyIDs {
		if s, ok := set[id]; ok {
			out[id] = s
		}
	}
	return out
}

// All returns a copy of the current set.
func (b *Board) All() map[string]Snapshot {
	return maps.Clone(*b.current.Load())
}

func (b *Board) Len() int {
	return len(*b.current.Load())
}

// Companies returns the company ids of the current set, sorted.
func (b *Board) Companies() []string {
	return slices.Sorted(maps.Keys(*b.current.Load()))
}
