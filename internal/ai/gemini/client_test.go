package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/talent-radar/internal/ai"
)

type embedCall struct {
	model    string
	contents []*genai.Content
	config   *genai.EmbedContentConfig
}

type fakeResponse struct {
	resp *genai.EmbedContentResponse
	err  error
}

type fakeModels struct {
	mu    sync.Mutex
	calls []embedCall
	queue []fakeResponse
	// echo answers every call with a vector per content when the queue is empty.
	echo int
}

func (f *fakeModels) enqueue(resp *genai.EmbedContentResponse, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, fakeResponse{resp: resp, err: err})
}

func (f *fakeModels) EmbedContent(_ context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, embedCall{model: model, contents: contents, config: config})

	if len(f.queue) == 0 {
		if f.echo == 0 {
			return nil, errors.New("unexpected call")
		}
		resp := &genai.EmbedContentResponse{}
		for i := range contents {
			values := make([]float32, f.echo)
			values[0] = float32(i + 1)
			resp.Embeddings = append(resp.Embeddings, &genai.ContentEmbedding{Values: values})
		}
		return resp, nil
	}

	res := f.queue[0]
	f.queue = f.queue[1:]
	return res.resp, res.err
}

func response(vectors ...[]float32) *genai.EmbedContentResponse {
	resp := &genai.EmbedContentResponse{}
	for _, v := range vectors {
		resp.Embeddings = append(resp.Embeddings, &genai.ContentEmbedding{Values: v})
	}
	return resp
}

func noWait(t *testing.T) *[]time.Duration {
	t.Helper()
	var waits []time.Duration
	original := wait
	wait = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	t.Cleanup(func() { wait = original })
	return &waits
}

func TestEmbedderSendsTaskTypeAndDimension(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(response([]float32{1, 0, 0}, []float32{0, 1, 0}), nil)

	e := newEmbedder(models, Config{Model: "embed-x", Dimension: 3}, zap.NewNop())

	vectors, err := e.Embed(context.Background(), ai.TaskDocument, []string{"go developer", "sre"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 2 || vectors[1][1] != 1 {
		t.Fatalf("unexpected vectors: %v", vectors)
	}

	call := models.calls[0]
	if call.model != "embed-x" {
		t.Fatalf("unexpected model: %q", call.model)
	}
	if call.config.TaskType != "RETRIEVAL_DOCUMENT" {
		t.Fatalf("unexpected task type: %q", call.config.TaskType)
	}
	if call.config.OutputDimensionality == nil || *call.config.OutputDimensionality != 3 {
		t.Fatalf("expected output dimensionality to be set")
	}
	if got := call.contents[0].Parts[0].Text; got != "go developer" {
		t.Fatalf("unexpected content: %q", got)
	}
}

func TestEmbedderBatches(t *testing.T) {
	models := &fakeModels{echo: 4}
	e := newEmbedder(models, Config{}, nil)

	texts := make([]string, maxBatch+5)
	for i := range texts {
		texts[i] = fmt.Sprintf("text %d", i)
	}

	vectors, err := e.Embed(context.Background(), ai.TaskQuery, texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vectors))
	}
	if len(models.calls) != 2 || len(models.calls[1].contents) != 5 {
		t.Fatalf("expected two batches, got %d calls", len(models.calls))
	}
	if models.calls[0].config.TaskType != "RETRIEVAL_QUERY" {
		t.Fatalf("unexpected task type: %q", models.calls[0].config.TaskType)
	}
	if e.Model() != defaultModel {
		t.Fatalf("expected default model, got %q", e.Model())
	}
}

func TestEmbedderRetriesOnTemporaryError(t *testing.T) {
	waits := noWait(t)

	models := &fakeModels{}
	tempErr := genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"}
	models.enqueue(nil, tempErr)
	models.enqueue(response([]float32{0.5, 0.5}), nil)

	e := newEmbedder(models, Config{MaxRetries: 2}, zap.NewNop())

	vectors, err := e.Embed(context.Background(), ai.TaskQuery, []string{"profile"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(vectors) != 1 {
		t.Fatalf("unexpected vectors: %v", vectors)
	}
	if len(models.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(models.calls))
	}
	if len(*waits) != 1 || (*waits)[0] != baseBackoff {
		t.Fatalf("unexpected waits: %v", *waits)
	}
}

func TestEmbedderStopsAfterRetriesExhausted(t *testing.T) {
	noWait(t)

	models := &fakeModels{}
	tempErr := genai.APIError{Code: http.StatusServiceUnavailable, Status: "UNAVAILABLE"}
	models.enqueue(nil, tempErr)
	models.enqueue(nil, tempErr)

	e := newEmbedder(models, Config{MaxRetries: 2}, zap.NewNop())

	_, err := e.Embed(context.Background(), ai.TaskQuery, []string{"profile"})
	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}

	var apiErr genai.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected wrapped api error, got %v", err)
	}
	if len(models.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(models.calls))
	}
}

func TestEmbedderDoesNotRetryOnLongQuotaDelay(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{
		Code:    http.StatusTooManyRequests,
		Status:  "RESOURCE_EXHAUSTED",
		Message: "quota exhausted, retry after 60 seconds",
	})

	e := newEmbedder(models, Config{MaxRetries: 3}, zap.NewNop())

	if _, err := e.Embed(context.Background(), ai.TaskDocument, []string{"job"}); err == nil {
		t.Fatal("expected error when quota delay too long")
	}
	if len(models.calls) != 1 {
		t.Fatalf("expected single call, got %d", len(models.calls))
	}
}

func TestEmbedderRejectsBadResponses(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.EmbedContentResponse
		cfg  Config
	}{
		{name: "count mismatch", resp: response([]float32{1})},
		{name: "empty vector", resp: response([]float32{1}, nil)},
		{name: "wrong dimension", resp: response([]float32{1, 2}, []float32{1}), cfg: Config{Dimension: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			models := &fakeModels{}
			models.enqueue(tt.resp, nil)
			e := newEmbedder(models, tt.cfg, zap.NewNop())

			if _, err := e.Embed(context.Background(), ai.TaskDocument, []string{"a", "b"}); err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}

func TestEmbedderRejectsEmptyText(t *testing.T) {
	e := newEmbedder(&fakeModels{}, Config{}, zap.NewNop())
	if _, err := e.Embed(context.Background(), ai.TaskDocument, []string{"ok", "  "}); err == nil {
		t.Fatalf("expected empty text to be rejected")
	}
}

func TestRetryDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		err   error
		delay time.Duration
		retry bool
	}{
		{name: "plain error", err: errors.New("boom")},
		{name: "bad request", err: genai.APIError{Code: http.StatusBadRequest}},
		{name: "short quota delay", err: genai.APIError{Code: http.StatusTooManyRequests, Message: "Please retry in 2.5s."}, delay: 2500 * time.Millisecond, retry: true},
		{name: "quota without hint", err: genai.APIError{Code: http.StatusTooManyRequests}, delay: 4 * time.Second, retry: true},
		{name: "wrapped server error", err: fmt.Errorf("call: %w", genai.APIError{Code: http.StatusBadGateway}), delay: 4 * time.Second, retry: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			delay, retry := retryDelay(tt.err, 2)
			if delay != tt.delay || retry != tt.retry {
				t.Fatalf("expected (%v, %v), got (%v, %v)", tt.delay, tt.retry, delay, retry)
			}
		})
	}
}
