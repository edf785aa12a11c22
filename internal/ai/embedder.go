package ai

import "context"

// Task tells the embedding model how the text will be used.
type Task string

const (
	// TaskDocument embeds text that is searched over (job postings).
	TaskDocument Task = "document"
	// TaskQuery embeds text that searches (candidate profiles).
	TaskQuery Task = "query"
)

// Embedder turns texts into vectors, one per text and in the same order.
type Embedder interface {
	Embed(ctx context.Context, task Task, texts []string) ([][]float32, error)
	Model() string
}
