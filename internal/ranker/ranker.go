// Package ranker merges similarity hits with company hiring signals into a
// single explainable ordering. It performs no I/O.
package ranker

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/spigell/talent-radar/internal/signals"
)

var ErrInvalidConfig = errors.New("invalid ranker config")

// Match is a similarity result for one candidate and job.
type Match struct {
	CandidateID string    `json:"candidate_id"`
	JobID       string    `json:"job_id"`
	CompanyID   string    `json:"company_id"`
	Similarity  float64   `json:"similarity"`
	Rank        int       `json:"rank"`
	PostedAt    time.Time `json:"posted_at"`
}

// Enriched is a Match with its signal and composite score. The two weighted
// components add up to Score and explain it.
type Enriched struct {
	Match
	Label               signals.Label `json:"signal_label"`
	Velocity            float64       `json:"velocity"`
	SimilarityComponent float64       `json:"similarity_component"`
	VelocityComponent   float64       `json:"velocity_component"`
	Score               float64       `json:"composite_score"`
}

type Weights struct {
	Similarity float64 `mapstructure:"similarity"`
	Velocity   float64 `mapstructure:"velocity"`
}

// Bounds is the velocity range mapped onto [0, 1]; values outside are clamped.
type Bounds struct {
	MinVelocity float64 `mapstructure:"min-velocity"`
	MaxVelocity float64 `mapstructure:"max-velocity"`
}

type Config struct {
	Weights Weights `mapstructure:"weights"`
	Bounds  Bounds  `mapstructure:"bounds"`
}

// DefaultConfig weighs similarity over hiring momentum and maps velocities in [-1, 3].
func DefaultConfig() Config {
	return Config{
		Weights: Weights{Similarity: 0.8, Velocity: 0.2},
		Bounds:  Bounds{MinVelocity: -1, MaxVelocity: 3},
	}
}

func (c Config) Validate() error {
	for name, w := range map[string]float64{"similarity": c.Weights.Similarity, "velocity": c.Weights.Velocity} {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return fmt.Errorf("%w: %s weight must be a finite non-negative number, got %v", ErrInvalidConfig, name, w)
		}
	}
	if c.Weights.Similarity == 0 && c.Weights.Velocity == 0 {
		return fmt.Errorf("%w: at least one weight must be positive", ErrInvalidConfig)
	}
	if math.IsNaN(c.Bounds.MinVelocity) || math.IsNaN(c.Bounds.MaxVelocity) ||
		math.IsInf(c.Bounds.MinVelocity, 0) || math.IsInf(c.Bounds.MaxVelocity, 0) {
		return fmt.Errorf("%w: velocity bounds must be finite", ErrInvalidConfig)
	}
	if c.Bounds.MinVelocity >= c.Bounds.MaxVelocity {
		return fmt.Errorf("%w: min velocity %v must be below max velocity %v", ErrInvalidConfig, c.Bounds.MinVelocity, c.Bounds.MaxVelocity)
	}
	return nil
}

type Ranker struct {
	cfg Config
}

func New(cfg Config) (*Ranker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Ranker{cfg: cfg}, nil
}

func (r *Ranker) Config() Config {
	return r.cfg
}

// NormalizeSimilarity maps [-1, 1] onto [0, 1].
func NormalizeSimilarity(sim float64) float64 {
	return (math.Max(-1, math.Min(1, sim)) + 1) / 2
}

// NormalizeVelocity clamps v into the bounds and maps them onto [0, 1].
func (b Bounds) NormalizeVelocity(v float64) float64 {
	clamped := math.Max(b.MinVelocity, math.Min(b.MaxVelocity, v))
	return (clamped - b.MinVelocity) / (b.MaxVelocity - b.MinVelocity)
}

// Rank scores every match and returns them ordered by composite score desc,
// then PostedAt desc, then JobID asc. Jobs whose company has no snapshot are
// scored as stable with zero velocity.
func (r *Ranker) Rank(matches []Match, snapshots map[string]signals.Snapshot) []Enriched {
	out := make([]Enriched, 0, len(matches))
	for _, m := range matches {
		label, velocity := signals.LabelStable, 0.0
		if s, ok := snapshots[m.CompanyID]; ok {
			label, velocity = s.Label, s.Velocity
		}

		simPart := r.cfg.Weights.Similarity * NormalizeSimilarity(m.Similarity)
		velPart := r.cfg.Weights.Velocity * r.cfg.Bounds.NormalizeVelocity(velocity)

		out = append(out, Enriched{
			Match:               m,
			Label:               label,
			Velocity:            velocity,
			SimilarityComponent: simPart,
			VelocityComponent:   velPart,
			Score:               simPart + velPart,
		})
	}

	slices.SortFunc(out, compare)
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func compare(a, b Enriched) int {
	switch {
	case a.Score > b.Score:
		return -1
	case a.Score < b.Score:
		return 1
	}
	if c := b.PostedAt.Compare(a.PostedAt); c != 0 {
		return c
	}
	return strings.Compare(a.JobID, b.JobID)
}

// Explain renders the score breakdown of a ranked match in one line.
func (e Enriched) Explain() string {
	return fmt.Sprintf("#%d %s score=%.3f (similarity %.3f -> %.3f, %s velocity %+.2f -> %.3f)",
		e.Rank, e.JobID, e.Score, e.Similarity, e.SimilarityComponent, e.Label, e.Velocity, e.VelocityComponent)
}
