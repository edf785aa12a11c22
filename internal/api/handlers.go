package api

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spigell/talent-radar/internal/matching"
	"github.com/spigell/talent-radar/internal/utils"
)

type matchesResponse struct {
	CandidateID string         `json:"candidate_id"`
	Query       matching.Query `json:"query"`
	Matches     []matchView    `json:"matches"`
}

type matchView struct {
	Rank                int     `json:"rank"`
	JobID               string  `json:"job_id"`
	Title               string  `json:"title,omitempty"`
	CompanyID           string  `json:"company_id"`
	CompanyName         string  `json:"company_name,omitempty"`
	URL                 string  `json:"url,omitempty"`
	Similarity          float64 `json:"similarity"`
	Label               string  `json:"signal_label"`
	Velocity            float64 `json:"velocity"`
	SimilarityComponent float64 `json:"similarity_component"`
	VelocityComponent   float64 `json:"velocity_component"`
	Score               float64 `json:"composite_score"`
}

func (s *Server) requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), s.cfg.RequestTimeout)
}

func (s *Server) health(c *fiber.Ctx) error {
	if s.deps.Health != nil {
		ctx, cancel := s.requestContext(c)
		defer cancel()
		if err := s.deps.Health.Ping(ctx); err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "store unavailable")
		}
	}
	return success(c, "ok", fiber.Map{"companies": s.deps.Board.Len()})
}

func (s *Server) matches(c *fiber.Ctx) error {
	candidateID := strings.TrimSpace(c.Params("id"))
	if candidateID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "candidate id is required")
	}

	q := s.cfg.Query
	if raw := c.Query("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < -1 || v > 1 || v != v {
			return fiber.NewError(fiber.StatusBadRequest, "threshold must be a number in [-1, 1]")
		}
		q.Threshold = v
	}
	if raw := c.Query("k"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return fiber.NewError(fiber.StatusBadRequest, "k must be a positive integer")
		}
		q.K = v
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	res, err := s.deps.Matcher.FindMatches(ctx, candidateID, q)
	if err != nil {
		return err
	}

	resp := matchesResponse{CandidateID: candidateID, Query: q, Matches: make([]matchView, 0, res.Len())}
	for _, m := range res.Matches {
		view := matchView{
			Rank:                m.Rank,
			JobID:               m.JobID,
			CompanyID:           m.CompanyID,
			Similarity:          m.Similarity,
			Label:               string(m.Label),
			Velocity:            m.Velocity,
			SimilarityComponent: m.SimilarityComponent,
			VelocityComponent:   m.VelocityComponent,
			Score:               m.Score,
		}
		if job := res.Jobs.FindByID(m.JobID); job != nil {
			view.Title = job.Title
			view.CompanyName = job.Company.Name
			view.URL = job.URL
		}
		resp.Matches = append(resp.Matches, view)
	}

	return success(c, "matches found", resp)
}

func (s *Server) notifications(c *fiber.Ctx) error {
	if s.deps.Notifications == nil {
		return fiber.NewError(fiber.StatusNotFound, "notifications are not stored")
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	list, err := s.deps.Notifications.Notifications(ctx, c.Params("id"))
	if err != nil {
		return err
	}
	return success(c, "notifications", list)
}

func (s *Server) signal(c *fiber.Ctx) error {
	snap, ok := s.deps.Board.Get(c.Params("id"))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "no signal for company")
	}
	return success(c, "company signal", snap)
}

func (s *Server) runDigest(c *fiber.Ctx) error {
	var runDate time.Time
	if raw := c.Query("date"); raw != "" {
		d, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "date must look like 2006-01-02")
		}
		runDate = d
	}

	// A digest run is not bound by the request timeout.
	summary, err := s.deps.Digest.Run(c.UserContext(), runDate)
	if err != nil {
		return err
	}
	return success(c, "digest finished", summary)
}

func (s *Server) refreshSignals(c *fiber.Ctx) error {
	var asOf time.Time
	if raw := c.Query("as_of"); raw != "" {
		t, err := utils.ParseInstant(raw)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "as_of must be RFC3339 or 2006-01-02")
		}
		asOf = t
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	summary, err := s.deps.Signals.Refresh(ctx, asOf)
	if err != nil {
		return err
	}
	return success(c, "signals refreshed", summary)
}
