package dispatcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/talent-radar/internal/matching"
	"github.com/spigell/talent-radar/internal/ranker"
	"github.com/spigell/talent-radar/internal/utils"
)

// Notification is the digest sent to one candidate.
type Notification struct {
	ID          string            `json:"id"`
	RunID       string            `json:"run_id"`
	RunDate     string            `json:"run_date"`
	CandidateID string            `json:"candidate_id"`
	Matches     []ranker.Enriched `json:"matches"`
	Body        string            `json:"body"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Sink delivers notifications.
type Sink interface {
	Emit(ctx context.Context, n Notification) error
}

// Composer renders the notification body.
type Composer func(runDate string, res *matching.Result) string

// Compose lists the ranked matches with their score breakdown.
func Compose(runDate string, res *matching.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your job matches for %s\n", runDate)
	for _, m := range res.Matches {
		title := m.JobID
		if job := res.Jobs.FindByID(m.JobID); job != nil && job.Title != "" {
			title = job.Title
			if job.Company.Name != "" {
				title += " at " + job.Company.Name
			}
		}
		fmt.Fprintf(&b, "%d. %s\n   %s\n", m.Rank, title, m.Explain())
	}
	return b.String()
}

// LogSink writes notifications to the log instead of delivering them.
type LogSink struct {
	Logger       *zap.Logger
	MaxLogLength int
}

func (s LogSink) Emit(_ context.Context, n Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := s.MaxLogLength
	if limit <= 0 {
		limit = 500
	}

	logger.Info("digest notification",
		zap.String("notification_id", n.ID),
		zap.String("candidate_id", n.CandidateID),
		zap.Int("matches", len(n.Matches)),
		zap.String("body", utils.TruncateForLog(n.Body, limit)),
	)
	return nil
}
