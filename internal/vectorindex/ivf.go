package vectorindex

import (
	"context"
	"math"
	"slices"
	"strings"
	"sync"
)

const (
	defaultLists      = 64
	defaultProbes     = 8
	defaultTrainSize  = 4096
	kmeansIterations  = 10
	minVectorsPerList = 2
)

// IVFOptions tunes the inverted-file index.
type IVFOptions struct {
	// Lists is the number of clusters the corpus is partitioned into.
	Lists int
	// Probes is how many nearest clusters a query scans.
	Probes int
	// TrainSize is the live corpus size at which clustering kicks in.
	// Below it every query is an exact scan.
	TrainSize int
}

type ivfSlot struct {
	entry Entry
	norm  float64
	list  int
	dead  bool
}

// IVF is a cluster-based approximate index. Vectors are assigned to the nearest
// of Lists centroids; a query only scores members of the Probes closest lists.
// Removed entries are tombstoned until Compact rewrites the slot table.
type IVF struct {
	mu   sync.RWMutex
	dim  int
	opts IVFOptions

	slots     []ivfSlot
	pos       map[string]int
	dead      int
	centroids [][]float64
	members   [][]int
}

var _ Index = (*IVF)(nil)

func NewIVF(dim int, opts IVFOptions) *IVF {
	if opts.Lists <= 0 {
		opts.Lists = defaultLists
	}
	if opts.Probes <= 0 {
		opts.Probes = defaultProbes
	}
	if opts.Probes > opts.Lists {
		opts.Probes = opts.Lists
	}
	if opts.TrainSize <= 0 {
		opts.TrainSize = defaultTrainSize
	}

	return &IVF{
		dim:  dim,
		opts: opts,
		pos:  make(map[string]int),
	}
}

func (x *IVF) Dimension() int { return x.dim }

func (x *IVF) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.pos)
}

// Trained reports whether queries are routed through clusters.
func (x *IVF) Trained() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.centroids != nil
}

func (x *IVF) TombstoneRatio() float64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if len(x.slots) == 0 {
		return 0
	}
	return float64(x.dead) / float64(len(x.slots))
}

func (x *IVF) Upsert(e Entry) error {
	n, err := norm(e.Vector, x.dim)
	if err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if i, ok := x.pos[e.JobID]; ok {
		x.tombstone(i)
	}

	s := ivfSlot{entry: copyEntry(e), norm: n, list: -1}
	idx := len(x.slots)
	x.slots = append(x.slots, s)
	x.pos[e.JobID] = idx

	if x.centroids != nil {
		l := x.nearestList(e.Vector, n)
		x.slots[idx].list = l
		x.members[l] = append(x.members[l], idx)
		return nil
	}

	if len(x.pos) >= x.opts.TrainSize {
		x.rebuild()
	}
	return nil
}

func (x *IVF) Remove(jobID string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	i, ok := x.pos[jobID]
	if !ok {
		return false
	}
	x.tombstone(i)
	delete(x.pos, jobID)
	return true
}

func (x *IVF) Get(jobID string) (Entry, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	i, ok := x.pos[jobID]
	if !ok {
		return Entry{}, false
	}
	return copyEntry(x.slots[i].entry), true
}

func (x *IVF) IDs() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	ids := make([]string, 0, len(x.pos))
	for id := range x.pos {
		ids = append(ids, id)
	}
	return ids
}

// Compact drops tombstoned slots and retrains the clusters on the live set.
func (x *IVF) Compact() int {
	x.mu.Lock()
	defer x.mu.Unlock()

	reclaimed := x.dead
	x.rebuild()
	return reclaimed
}

func (x *IVF) Search(ctx context.Context, query []float32, threshold float64, k int) ([]Hit, error) {
	if err := validateParams(threshold, k); err != nil {
		return nil, err
	}
	qn, err := norm(query, x.dim)
	if err != nil {
		return nil, err
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	hits := make([]Hit, 0)
	scanned := 0
	visit := func(i int) error {
		if scanned%scanCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		scanned++

		s := &x.slots[i]
		if s.dead {
			return nil
		}
		sim, err := cosine(query, qn, s.entry.Vector, s.norm)
		if err != nil {
			return err
		}
		if sim >= threshold {
			hits = append(hits, Hit{JobID: s.entry.JobID, Similarity: sim, PostedAt: s.entry.PostedAt})
		}
		return nil
	}

	if x.centroids == nil {
		for i := range x.slots {
			if err := visit(i); err != nil {
				return nil, err
			}
		}
		return finalize(hits, k), nil
	}

	for _, l := range x.probeLists(query, qn) {
		for _, i := range x.members[l] {
			if err := visit(i); err != nil {
				return nil, err
			}
		}
	}
	return finalize(hits, k), nil
}

func (x *IVF) tombstone(i int) {
	if x.slots[i].dead {
		return
	}
	x.slots[i].dead = true
	x.slots[i].entry.Vector = nil
	x.dead++
}

// probeLists returns the Probes lists whose centroids are closest to the query.
func (x *IVF) probeLists(query []float32, qn float64) []int {
	type scored struct {
		list int
		sim  float64
	}
	all := make([]scored, len(x.centroids))
	for l, c := range x.centroids {
		all[l] = scored{list: l, sim: centroidSim(query, qn, c)}
	}
	slices.SortFunc(all, func(a, b scored) int {
		switch {
		case a.sim > b.sim:
			return -1
		case a.sim < b.sim:
			return 1
		}
		return a.list - b.list
	})

	probes := min(x.opts.Probes, len(all))
	lists := make([]int, probes)
	for i := range probes {
		lists[i] = all[i].list
	}
	return lists
}

func (x *IVF) nearestList(vec []float32, n float64) int {
	best, bestSim := 0, math.Inf(-1)
	for l, c := range x.centroids {
		if s := centroidSim(vec, n, c); s > bestSim {
			best, bestSim = l, s
		}
	}
	return best
}

// rebuild rewrites the slot table without tombstones and retrains centroids when
// the live set is large enough. Must be called with the write lock held.
func (x *IVF) rebuild() {
	live := make([]ivfSlot, 0, len(x.pos))
	for _, s := range x.slots {
		if !s.dead {
			live = append(live, s)
		}
	}
	// Seeding depends on slot order; sort so equal corpora train equal clusters.
	slices.SortFunc(live, func(a, b ivfSlot) int {
		return strings.Compare(a.entry.JobID, b.entry.JobID)
	})

	x.slots = live
	x.dead = 0
	x.pos = make(map[string]int, len(live))
	for i := range x.slots {
		x.pos[x.slots[i].entry.JobID] = i
		x.slots[i].list = -1
	}

	if len(live) < x.opts.TrainSize {
		x.centroids = nil
		x.members = nil
		return
	}

	lists := min(x.opts.Lists, max(1, len(live)/minVectorsPerList))
	x.centroids = x.train(lists)
	x.members = make([][]int, len(x.centroids))
	for i := range x.slots {
		l := x.nearestList(x.slots[i].entry.Vector, x.slots[i].norm)
		x.slots[i].list = l
		x.members[l] = append(x.members[l], i)
	}
}

// train runs spherical k-means over the live slots with evenly spaced seeds.
func (x *IVF) train(lists int) [][]float64 {
	n := len(x.slots)
	centroids := make([][]float64, lists)
	for l := range lists {
		s := x.slots[l*n/lists]
		centroids[l] = unit(s.entry.Vector, s.norm)
	}

	assign := make([]int, n)
	for range kmeansIterations {
		for i := range x.slots {
			best, bestSim := 0, math.Inf(-1)
			for l, c := range centroids {
				if s := centroidSim(x.slots[i].entry.Vector, x.slots[i].norm, c); s > bestSim {
					best, bestSim = l, s
				}
			}
			assign[i] = best
		}

		sums := make([][]float64, lists)
		counts := make([]int, lists)
		for i, l := range assign {
			if sums[l] == nil {
				sums[l] = make([]float64, x.dim)
			}
			s := &x.slots[i]
			for d, v := range s.entry.Vector {
				sums[l][d] += float64(v) / s.norm
			}
			counts[l]++
		}

		for l := range centroids {
			if counts[l] == 0 {
				continue
			}
			if c := normalize(sums[l]); c != nil {
				centroids[l] = c
			}
		}
	}

	return centroids
}

func unit(vec []float32, n float64) []float64 {
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = float64(v) / n
	}
	return out
}

func normalize(v []float64) []float64 {
	var sum float64
	for _, f := range v {
		sum += f * f
	}
	if sum == 0 {
		return nil
	}
	n := math.Sqrt(sum)
	for i := range v {
		v[i] /= n
	}
	return v
}

// centroidSim is the cosine between a vector and a unit-length centroid.
func centroidSim(vec []float32, n float64, centroid []float64) float64 {
	var sum float64
	for i, v := range vec {
		sum += float64(v) * centroid[i]
	}
	return sum / n
}
