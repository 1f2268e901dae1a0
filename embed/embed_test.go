package embed

import (
	"context"
	"errors"
	"testing"

	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFunc struct {
	batches  [][]string
	queries  []string
	failures int // fail this many calls before succeeding
}

func (f *fakeFunc) EmbedDocuments(ctx context.Context, texts []string) ([]embeddings.Embedding, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("service unavailable")
	}
	f.batches = append(f.batches, texts)

	out := make([]embeddings.Embedding, len(texts))
	for i, text := range texts {
		out[i] = embeddings.NewEmbeddingFromFloat32([]float32{float32(len(text)), 1})
	}
	return out, nil
}

func (f *fakeFunc) EmbedQuery(ctx context.Context, text string) (embeddings.Embedding, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("service unavailable")
	}
	f.queries = append(f.queries, text)
	return embeddings.NewEmbeddingFromFloat32([]float32{float32(len(text)), 1}), nil
}

func Test_EmbedAll_Batches(t *testing.T) {
	fake := &fakeFunc{}
	e := NewEmbedder(func() (EmbeddingFunc, error) { return fake, nil }, 2, 0)

	vectors, err := e.EmbedAll(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
	require.NoError(t, err)

	require.Len(t, vectors, 5)
	assert.Equal(t, []float32{1, 1}, vectors[0])
	assert.Equal(t, []float32{5, 1}, vectors[4])

	// Five texts with batch size 2 make three calls of 2, 2 and 1.
	require.Len(t, fake.batches, 3)
	assert.Equal(t, []string{"a", "bb"}, fake.batches[0])
	assert.Equal(t, []string{"eeeee"}, fake.batches[2])
}

func Test_EmbedOne(t *testing.T) {
	fake := &fakeFunc{}
	e := NewEmbedder(func() (EmbeddingFunc, error) { return fake, nil }, 32, 0)

	vec, err := e.EmbedOne(context.Background(), "question")
	require.NoError(t, err)
	assert.Equal(t, []float32{8, 1}, vec)
	assert.Equal(t, []string{"question"}, fake.queries)
}

func Test_Embedder_InitOnce(t *testing.T) {
	loads := 0
	fake := &fakeFunc{}
	e := NewEmbedder(func() (EmbeddingFunc, error) {
		loads++
		return fake, nil
	}, 32, 0)

	_, err := e.EmbedOne(context.Background(), "one")
	require.NoError(t, err)
	_, err = e.EmbedAll(context.Background(), []string{"two"})
	require.NoError(t, err)

	assert.Equal(t, 1, loads)
}

func Test_Embedder_LoadFailure(t *testing.T) {
	e := NewEmbedder(func() (EmbeddingFunc, error) {
		return nil, errors.New("missing api key")
	}, 32, 0)

	_, err := e.EmbedOne(context.Background(), "question")
	assert.ErrorContains(t, err, "missing api key")
}

func Test_Embedder_RetriesTransientFailure(t *testing.T) {
	fake := &fakeFunc{failures: 2}
	e := NewEmbedder(func() (EmbeddingFunc, error) { return fake, nil }, 32, 3)

	vec, err := e.EmbedOne(context.Background(), "flaky")
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 1}, vec)
}

func Test_Embedder_RetryExhaustion(t *testing.T) {
	fake := &fakeFunc{failures: 10}
	e := NewEmbedder(func() (EmbeddingFunc, error) { return fake, nil }, 32, 1)

	_, err := e.EmbedAll(context.Background(), []string{"doomed"})

	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, 2, svcErr.Attempts)
}

func Test_Embedder_ContextCancellation(t *testing.T) {
	fake := &fakeFunc{failures: 10}
	e := NewEmbedder(func() (EmbeddingFunc, error) { return fake, nil }, 32, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.EmbedOne(ctx, "question")
	assert.ErrorIs(t, err, context.Canceled)
}
