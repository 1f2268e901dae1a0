package embed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"github.com/cenkalti/backoff/v4"
)

// EmbeddingFunc is the slice of the embedding-service client this
// adapter needs. The chroma-go embedding functions satisfy it.
type EmbeddingFunc interface {
	EmbedDocuments(ctx context.Context, texts []string) ([]embeddings.Embedding, error)
	EmbedQuery(ctx context.Context, text string) (embeddings.Embedding, error)
}

// ServiceError reports an embedding call that kept failing after the
// configured number of attempts.
type ServiceError struct {
	Attempts int
	Err      error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("embedding service failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Embedder wraps the external embedding function behind a lazy,
// process-wide, init-once lifecycle. The loaded function is read-only
// after the first use, so concurrent retrieval requests share it
// without further locking. Calls are batched to amortize per-call
// overhead and retried with bounded exponential backoff.
type Embedder struct {
	load func() (EmbeddingFunc, error)

	batchSize  int
	maxRetries uint64

	once sync.Once
	fn   EmbeddingFunc
	err  error
}

func NewEmbedder(load func() (EmbeddingFunc, error), batchSize int, maxRetries int) *Embedder {
	if batchSize <= 0 {
		batchSize = 32
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &Embedder{
		load:       load,
		batchSize:  batchSize,
		maxRetries: uint64(maxRetries),
	}
}

func (e *Embedder) init() (EmbeddingFunc, error) {
	e.once.Do(func() {
		e.fn, e.err = e.load()
	})
	return e.fn, e.err
}

// EmbedAll embeds texts in order, splitting them into batches of the
// configured size.
func (e *Embedder) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	fn, err := e.init()
	if err != nil {
		return nil, fmt.Errorf("loading embedding function: %w", err)
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))

		var batch []embeddings.Embedding
		err := e.retry(ctx, func() error {
			var err error
			batch, err = fn.EmbedDocuments(ctx, texts[start:end])
			return err
		})
		if err != nil {
			return nil, err
		}
		if len(batch) != end-start {
			return nil, &ServiceError{
				Attempts: int(e.maxRetries) + 1,
				Err:      fmt.Errorf("got %d vectors for %d texts", len(batch), end-start),
			}
		}

		for _, emb := range batch {
			vectors = append(vectors, emb.ContentAsFloat32())
		}
	}

	return vectors, nil
}

// EmbedOne embeds a single query text.
func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	fn, err := e.init()
	if err != nil {
		return nil, fmt.Errorf("loading embedding function: %w", err)
	}

	var emb embeddings.Embedding
	err = e.retry(ctx, func() error {
		var err error
		emb, err = fn.EmbedQuery(ctx, text)
		return err
	})
	if err != nil {
		return nil, err
	}

	return emb.ContentAsFloat32(), nil
}

func (e *Embedder) retry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 5 * time.Second

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, e.maxRetries), ctx))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return &ServiceError{Attempts: int(e.maxRetries) + 1, Err: err}
	}
	return nil
}
