package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/talent-radar/internal/ai"
	"github.com/spigell/talent-radar/internal/logger"
	"github.com/spigell/talent-radar/internal/utils"
)

const (
	defaultModel        = "text-embedding-004"
	defaultMaxRetries   = 3
	defaultMaxLogLength = 120
	// The API accepts at most this many contents per request.
	maxBatch = 100

	baseBackoff   = time.Second
	maxRetryDelay = 30 * time.Second
)

var (
	wait = utils.WaitFor

	retryAfterRe = regexp.MustCompile(`(?i)retry (?:after|in) ([0-9]+(?:\.[0-9]+)?)\s*(?:s|sec|secs|seconds)?\b`)
)

type embedContent interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Config configures the Gemini embedder.
type Config struct {
	APIKey       string `mapstructure:"-"`
	Model        string `mapstructure:"model"`
	Dimension    int    `mapstructure:"dimension"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

// Embedder wraps the Google GenAI client to turn texts into embedding vectors.
type Embedder struct {
	models     embedContent
	model      string
	dimension  int
	maxRetries int
	maxLogLen  int
	logger     *zap.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

// NewEmbedder creates a new Embedder configured for the Gemini API backend.
func NewEmbedder(ctx context.Context, cfg Config, log *zap.Logger) (*Embedder, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newEmbedder(client.Models, cfg, log), nil
}

func newEmbedder(models embedContent, cfg Config, log *zap.Logger) *Embedder {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	maxLogLen := cfg.MaxLogLength
	if maxLogLen <= 0 {
		maxLogLen = defaultMaxLogLength
	}

	return &Embedder{
		models:     models,
		model:      model,
		dimension:  cfg.Dimension,
		maxRetries: retries,
		maxLogLen:  maxLogLen,
		logger:     logger.WithCommonFields(log, "gemini", model),
	}
}

func (e *Embedder) Model() string {
	if e == nil {
		return ""
	}
	return e.model
}

// Embed returns one vector per text. Texts are sent in batches; a failed batch
// fails the whole call.
func (e *Embedder) Embed(ctx context.Context, task ai.Task, texts []string) ([][]float32, error) {
	if e == nil || e.models == nil {
		return nil, errors.New("gemini embedder is not initialized")
	}

	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("text #%d must not be empty", i)
		}
	}

	cfg := &genai.EmbedContentConfig{TaskType: taskType(task)}
	if e.dimension > 0 {
		dim := int32(e.dimension)
		cfg.OutputDimensionality = &dim
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatch {
		end := min(start+maxBatch, len(texts))

		vectors, err := e.embedBatch(ctx, cfg, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}

	return out, nil
}

func (e *Embedder) embedBatch(ctx context.Context, cfg *genai.EmbedContentConfig, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
	}

	e.logger.Debug("gemini embed content request",
		zap.String("task_type", cfg.TaskType),
		zap.Int("batch", len(texts)),
		zap.String("first_preview", utils.TruncateForLog(texts[0], e.maxLogLen)),
	)

	var lastErr error
	for attempt := range e.maxRetries {
		resp, err := e.models.EmbedContent(ctx, e.model, contents, cfg)
		if err == nil {
			return e.vectors(resp, len(texts))
		}
		lastErr = err

		delay, retry := retryDelay(err, attempt)
		if !retry || attempt == e.maxRetries-1 {
			break
		}

		e.logger.Warn("gemini embed content failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := wait(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("embed content: %w", lastErr)
}

func (e *Embedder) vectors(resp *genai.EmbedContentResponse, want int) ([][]float32, error) {
	if resp == nil || len(resp.Embeddings) != want {
		got := 0
		if resp != nil {
			got = len(resp.Embeddings)
		}
		return nil, fmt.Errorf("gemini api returned %d embeddings for %d texts", got, want)
	}

	out := make([][]float32, 0, want)
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("gemini api returned empty embedding #%d", i)
		}
		if e.dimension > 0 && len(emb.Values) != e.dimension {
			return nil, fmt.Errorf("gemini api returned embedding #%d of dimension %d, want %d", i, len(emb.Values), e.dimension)
		}
		out = append(out, emb.Values)
	}
	return out, nil
}

func taskType(task ai.Task) string {
	switch task {
	case ai.TaskQuery:
		return "RETRIEVAL_QUERY"
	case ai.TaskDocument:
		return "RETRIEVAL_DOCUMENT"
	default:
		return ""
	}
}

// retryDelay reports whether err is worth another attempt and how long to wait.
// Quota errors asking for a longer pause than maxRetryDelay are not retried.
func retryDelay(err error, attempt int) (time.Duration, bool) {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return 0, false
	}

	backoff := baseBackoff << attempt

	switch apiErr.Code {
	case http.StatusTooManyRequests:
		if m := retryAfterRe.FindStringSubmatch(apiErr.Message); m != nil {
			seconds, perr := strconv.ParseFloat(m[1], 64)
			if perr == nil {
				d := time.Duration(seconds * float64(time.Second))
				if d > maxRetryDelay {
					return 0, false
				}
				return d, true
			}
		}
		return backoff, true
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return backoff, true
	default:
		return 0, false
	}
}
