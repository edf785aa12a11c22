// Package dispatcher runs the daily digest: for every candidate with an
// embedding it computes matches, deduplicates per run date and emits at most
// one notification.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/spigell/talent-radar/internal/embedding"
	"github.com/spigell/talent-radar/internal/logger"
	"github.com/spigell/talent-radar/internal/matching"
	"github.com/spigell/talent-radar/internal/vectorindex"
)

const (
	defaultK           = 5
	defaultConcurrency = 4
	defaultTimeout     = 30 * time.Second
)

// ErrorKind classifies a failed candidate.
type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindMissingEmbedding  ErrorKind = "missing_embedding"
	KindTimeout           ErrorKind = "timeout"
	KindCanceled          ErrorKind = "canceled"
	KindDimensionMismatch ErrorKind = "dimension_mismatch"
	KindDegenerateVector  ErrorKind = "degenerate_vector"
	KindCorruptSimilarity ErrorKind = "corrupt_similarity"
	KindInvalidInput      ErrorKind = "invalid_input"
	KindDedupe            ErrorKind = "dedupe"
	KindEmit              ErrorKind = "emit"
	KindInternal          ErrorKind = "internal"
)

const (
	SkipNoMatches       = "no_matches"
	SkipAlreadyNotified = "already_notified"
)

// CandidateSource lists the candidates eligible for a digest.
type CandidateSource interface {
	CandidatesWithEmbedding(ctx context.Context) ([]string, error)
}

// Matcher computes ranked matches for one candidate.
type Matcher interface {
	FindMatches(ctx context.Context, candidateID string, q matching.Query) (*matching.Result, error)
}

// Config tunes a run. Threshold is used as given, zero included; the CLI
// config supplies its default.
type Config struct {
	Threshold   float64       `mapstructure:"threshold"`
	K           int           `mapstructure:"k"`
	Concurrency int           `mapstructure:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout"`
	// EmitRate caps notifications per second; zero means unlimited.
	EmitRate  float64 `mapstructure:"emit-rate"`
	EmitBurst int     `mapstructure:"emit-burst"`
}

type Deps struct {
	Candidates CandidateSource
	Matcher    Matcher
	Dedupe     DedupeStore
	Sink       Sink
	Compose    Composer
	Logger     *zap.Logger
	Now        func() time.Time
}

// Outcome is the final state of one candidate in a run.
type Outcome struct {
	CandidateID    string        `json:"candidate_id"`
	State          State         `json:"state"`
	SkipReason     string        `json:"skip_reason,omitempty"`
	ErrorKind      ErrorKind     `json:"error_kind,omitempty"`
	Error          string        `json:"error,omitempty"`
	Matches        int           `json:"matches"`
	NotificationID string        `json:"notification_id,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// Summary describes a finished run.
type Summary struct {
	RunID      string    `json:"run_id"`
	RunDate    string    `json:"run_date"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Processed  int       `json:"processed"`
	Notified   int       `json:"notified"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	FailedIDs  []string  `json:"failed_ids"`
	// Outcomes are ordered by candidate id.
	Outcomes []Outcome `json:"outcomes"`
}

type Dispatcher struct {
	cfg     Config
	deps    Deps
	limiter *rate.Limiter
}

func New(cfg Config, deps Deps) (*Dispatcher, error) {
	switch {
	case deps.Candidates == nil:
		return nil, errors.New("candidate source is required")
	case deps.Matcher == nil:
		return nil, errors.New("matcher is required")
	case deps.Dedupe == nil:
		return nil, errors.New("dedupe store is required")
	case deps.Sink == nil:
		return nil, errors.New("sink is required")
	}

	if cfg.Threshold < -1 || cfg.Threshold > 1 || cfg.Threshold != cfg.Threshold {
		return nil, fmt.Errorf("digest threshold %v outside [-1, 1]", cfg.Threshold)
	}
	if cfg.K <= 0 {
		cfg.K = defaultK
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if deps.Compose == nil {
		deps.Compose = Compose
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	d := &Dispatcher{cfg: cfg, deps: deps}
	if cfg.EmitRate > 0 {
		burst := max(cfg.EmitBurst, 1)
		d.limiter = rate.NewLimiter(rate.Limit(cfg.EmitRate), burst)
	}
	return d, nil
}

// Run processes every candidate for runDate (zero means today, UTC). Per
// candidate failures are recorded in the summary; only a failure to list
// candidates fails the run. Re-running the same date notifies nobody twice.
func (d *Dispatcher) Run(ctx context.Context, runDate time.Time) (*Summary, error) {
	if runDate.IsZero() {
		runDate = d.deps.Now()
	}
	summary := &Summary{
		RunID:     uuid.NewString(),
		RunDate:   runDate.UTC().Format(dateLayout),
		StartedAt: d.deps.Now(),
		FailedIDs: []string{},
	}
	log := logger.WithRunFields(d.deps.Logger, summary.RunID, summary.RunDate)

	listed, err := d.deps.Candidates.CandidatesWithEmbedding(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing candidates: %w", err)
	}
	ids := slices.Compact(slices.Sorted(slices.Values(listed)))

	log.Info("digest run started",
		zap.Int("candidates", len(ids)),
		zap.Int("concurrency", d.cfg.Concurrency),
		zap.Float64("threshold", d.cfg.Threshold),
		zap.Int("k", d.cfg.K),
	)

	var (
		mu       sync.Mutex
		outcomes = make(map[string]Outcome, len(ids))
		g        errgroup.Group
	)
	g.SetLimit(d.cfg.Concurrency)

	for _, id := range ids {
		g.Go(func() error {
			out := d.process(ctx, log, summary, id)
			mu.Lock()
			outcomes[id] = out
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, id := range slices.Sorted(maps.Keys(outcomes)) {
		out := outcomes[id]
		summary.Outcomes = append(summary.Outcomes, out)
		switch out.State {
		case StateNotified:
			summary.Notified++
		case StateSkipped:
			summary.Skipped++
		default:
			summary.Failed++
			summary.FailedIDs = append(summary.FailedIDs, id)
		}
	}
	summary.Processed = len(summary.Outcomes)
	summary.FinishedAt = d.deps.Now()

	log.Info("digest run finished",
		zap.Int("processed", summary.Processed),
		zap.Int("notified", summary.Notified),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Duration("took", summary.FinishedAt.Sub(summary.StartedAt)),
	)

	return summary, nil
}

func (d *Dispatcher) process(ctx context.Context, runLog *zap.Logger, run *Summary, candidateID string) (out Outcome) {
	start := time.Now()
	log := runLog.With(logger.EntityFields(candidateID, "", "")...)
	tr := newTracker()
	out.CandidateID = candidateID

	defer func() {
		if r := recover(); r != nil {
			log.Error("candidate task panicked", zap.Any("panic", r), zap.Stack("stack"))
			_ = tr.to(StateFailed)
			out.ErrorKind = KindInternal
			out.Error = fmt.Sprint(r)
		}
		out.State = tr.state
		out.Duration = time.Since(start)

		fields := []zap.Field{
			zap.String("state", string(out.State)),
			zap.Int("matches", out.Matches),
			zap.Duration("took", out.Duration),
		}
		if out.State == StateFailed {
			log.Warn("candidate failed", append(fields, zap.String("error_kind", string(out.ErrorKind)), zap.String("error", out.Error))...)
			return
		}
		log.Debug("candidate processed", append(fields, zap.String("skip_reason", out.SkipReason))...)
	}()

	tctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	fail := func(kind ErrorKind, err error) Outcome {
		tr.must(StateFailed)
		out.ErrorKind = kind
		out.Error = err.Error()
		return out
	}

	tr.must(StateComputing)
	res, err := d.deps.Matcher.FindMatches(tctx, candidateID, matching.Query{Threshold: d.cfg.Threshold, K: d.cfg.K})
	if err != nil {
		return fail(classify(tctx, err), err)
	}

	if res.Len() == 0 {
		tr.must(StateNoMatches)
		tr.must(StateSkipped)
		out.SkipReason = SkipNoMatches
		return out
	}

	tr.must(StateMatched)
	out.Matches = res.Len()

	// Throttle before claiming the run date so a throttled candidate can be retried.
	if d.limiter != nil {
		if err := d.limiter.Wait(tctx); err != nil {
			return fail(orKind(classify(tctx, err), KindEmit), err)
		}
	}

	inserted, err := d.deps.Dedupe.InsertIfAbsent(tctx, Record{
		Key:         DedupeKey(candidateID, run.RunDate),
		CandidateID: candidateID,
		RunDate:     run.RunDate,
		RunID:       run.RunID,
		MatchCount:  res.Len(),
		CreatedAt:   d.deps.Now().UTC(),
	})
	if err != nil {
		return fail(orKind(classify(tctx, err), KindDedupe), err)
	}
	if !inserted {
		tr.must(StateSkipped)
		out.SkipReason = SkipAlreadyNotified
		return out
	}

	// From here on the dedupe record stays even if delivery fails.
	n := Notification{
		ID:          uuid.NewString(),
		RunID:       run.RunID,
		RunDate:     run.RunDate,
		CandidateID: candidateID,
		Matches:     res.Matches,
		Body:        d.deps.Compose(run.RunDate, res),
		CreatedAt:   d.deps.Now().UTC(),
	}
	if err := d.deps.Sink.Emit(tctx, n); err != nil {
		return fail(orKind(classify(tctx, err), KindEmit), err)
	}

	tr.must(StateNotified)
	out.NotificationID = n.ID
	return out
}

// classify maps a candidate failure onto an ErrorKind. KindInternal means the
// error is not one of the known kinds.
func classify(ctx context.Context, err error) ErrorKind {
	switch {
	case errors.Is(err, embedding.ErrMissingEmbedding):
		return KindMissingEmbedding
	case errors.Is(err, vectorindex.ErrDimensionMismatch):
		return KindDimensionMismatch
	case errors.Is(err, vectorindex.ErrDegenerateVector):
		return KindDegenerateVector
	case errors.Is(err, vectorindex.ErrCorruptSimilarity):
		return KindCorruptSimilarity
	case errors.Is(err, vectorindex.ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled), errors.Is(ctx.Err(), context.Canceled):
		return KindCanceled
	default:
		return KindInternal
	}
}

func orKind(kind, fallback ErrorKind) ErrorKind {
	if kind == KindInternal {
		return fallback
	}
	return kind
}
