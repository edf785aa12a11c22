package signals

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultWindow = 7 * 24 * time.Hour

// PostingCounter reports how many postings each company published in [from, to).
type PostingCounter interface {
	CompanyPostingCounts(ctx context.Context, from, to time.Time) (map[string]int, error)
}

// SnapshotWriter persists a full snapshot set, replacing the previous one atomically.
type SnapshotWriter interface {
	ReplaceSnapshots(ctx context.Context, snapshots []Snapshot) error
}

// SnapshotReader loads the last persisted snapshot set.
type SnapshotReader interface {
	LoadSnapshots(ctx context.Context) ([]Snapshot, error)
}

// Config configures the refresh.
type Config struct {
	Window     time.Duration `mapstructure:"window"`
	Thresholds Thresholds    `mapstructure:",squash"`
}

// Deps are the collaborators of the engine. Writer and Reader are optional.
type Deps struct {
	Counter PostingCounter
	Writer  SnapshotWriter
	Reader  SnapshotReader
	Board   *Board
	Logger  *zap.Logger
	Now     func() time.Time
}

// Engine recomputes all company signals and publishes them as one set.
// Refresh and Load run one at a time.
type Engine struct {
	mu   sync.Mutex
	cfg  Config
	deps Deps
}

// RefreshSummary describes one refresh run.
type RefreshSummary struct {
	AsOf       time.Time
	Window     Window
	Companies  int
	Aggressive int
	Cooling    int
	Stable     int
	// Rejected lists companies whose counts failed validation; they kept their previous snapshot.
	Rejected []string
}

func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, err
	}
	if deps.Counter == nil {
		return nil, errors.New("posting counter is required")
	}
	if deps.Board == nil {
		deps.Board = NewBoard()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	return &Engine{cfg: cfg, deps: deps}, nil
}

func (e *Engine) Board() *Board {
	return e.deps.Board
}

func (e *Engine) Thresholds() Thresholds {
	return e.cfg.Thresholds
}

// Load publishes the persisted snapshot set, if a reader is configured.
func (e *Engine) Load(ctx context.Context) (int, error) {
	if e.deps.Reader == nil {
		return 0, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	loaded, err := e.deps.Reader.LoadSnapshots(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading snapshots: %w", err)
	}

	set := make(map[string]Snapshot, len(loaded))
	for _, s := range loaded {
		set[s.CompanyID] = s
	}
	e.deps.Board.Publish(set)

	return len(set), nil
}

// Refresh recomputes every company's snapshot as of asOf (zero means now).
// Nothing is published unless the whole run succeeds.
func (e *Engine) Refresh(ctx context.Context, asOf time.Time) (*RefreshSummary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if asOf.IsZero() {
		asOf = e.deps.Now()
	}
	asOf = asOf.UTC()
	window := WindowsAt(asOf, e.cfg.Window)

	logger := e.deps.Logger.With(zap.Time("as_of", asOf))
	logger.Info("refreshing company signals", zap.Duration("window", e.cfg.Window))

	current, err := e.deps.Counter.CompanyPostingCounts(ctx, window.CurrentFrom, window.CurrentTo)
	if err != nil {
		return nil, fmt.Errorf("counting current window: %w", err)
	}
	previous, err := e.deps.Counter.CompanyPostingCounts(ctx, window.PreviousFrom, window.PreviousTo)
	if err != nil {
		return nil, fmt.Errorf("counting previous window: %w", err)
	}

	companies := make(map[string]struct{}, len(current)+len(previous))
	for id := range current {
		companies[id] = struct{}{}
	}
	for id := range previous {
		companies[id] = struct{}{}
	}

	published := e.deps.Board.All()
	next := make(map[string]Snapshot, len(companies))
	summary := &RefreshSummary{AsOf: asOf, Window: window}

	for _, id := range slices.Sorted(maps.Keys(companies)) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		velocity, label, err := Classify(current[id], previous[id], e.cfg.Thresholds)
		if err != nil {
			logger.Warn("company signal rejected",
				zap.String("company_id", id),
				zap.Int("count_current", current[id]),
				zap.Int("count_previous", previous[id]),
				zap.Error(err),
			)
			summary.Rejected = append(summary.Rejected, id)
			if old, ok := published[id]; ok {
				next[id] = old
			}
			continue
		}

		next[id] = Snapshot{
			CompanyID:     id,
			Window:        window,
			CountCurrent:  current[id],
			CountPrevious: previous[id],
			Velocity:      velocity,
			Label:         label,
			ComputedAt:    asOf,
		}

		switch label {
		case LabelAggressiveHirer:
			summary.Aggressive++
		case LabelCoolingDown:
			summary.Cooling++
		default:
			summary.Stable++
		}
	}
	summary.Companies = len(next)

	if e.deps.Writer != nil {
		ordered := make([]Snapshot, 0, len(next))
		for _, id := range slices.Sorted(maps.Keys(next)) {
			ordered = append(ordered, next[id])
		}
		if err := e.deps.Writer.ReplaceSnapshots(ctx, ordered); err != nil {
			return nil, fmt.Errorf("persisting snapshots: %w", err)
		}
	}

	e.deps.Board.Publish(next)

	logger.Info("company signals refreshed",
		zap.Int("companies", summary.Companies),
		zap.Int("aggressive", summary.Aggressive),
		zap.Int("cooling", summary.Cooling),
		zap.Int("stable", summary.Stable),
		zap.Int("rejected", len(summary.Rejected)),
	)

	return summary, nil
}
