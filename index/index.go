package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sort"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"

	"docquery/chunk"
	"docquery/extract"
)

// ErrNotReady is returned for queries before any successful build.
var ErrNotReady = errors.New("index not ready: process documents first")

var (
	ErrEmptyCorpus       = errors.New("no chunks produced from document set")
	ErrDimensionMismatch = errors.New("inconsistent embedding dimensions")
)

// BuildError marks a failed index build. The previously active index,
// if any, stays untouched.
type BuildError struct {
	Err error
}

func (e *BuildError) Error() string { return fmt.Sprintf("index build: %v", e.Err) }

func (e *BuildError) Unwrap() error { return e.Err }

type State int

const (
	StateEmpty State = iota
	StateBuilding
	StateReady
)

func (s State) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StateReady:
		return "ready"
	default:
		return "empty"
	}
}

// Embedder is the slice of the embedding adapter the index needs.
type Embedder interface {
	EmbedAll(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Result pairs a retrieved chunk with its cosine similarity score.
type Result struct {
	Chunk chunk.Chunk
	Score float32
}

// snapshot is one fully built, immutable index generation: the chromem
// collection holding the vectors plus the position→chunk lookup.
type snapshot struct {
	col    *chromem.Collection
	chunks []chunk.Chunk
	dim    int
}

// Manager owns the active index generation. Rebuilds construct a fresh
// collection and swap it in only after the whole build succeeds, so
// queries observe either the old index or the new one, never a mixture.
type Manager struct {
	log      *slog.Logger
	embedder Embedder
	splitter chunk.Splitter

	mu     sync.RWMutex
	state  State
	active *snapshot
}

func NewManager(log *slog.Logger, embedder Embedder, splitter chunk.Splitter) *Manager {
	return &Manager{
		log:      log,
		embedder: embedder,
		splitter: splitter,
	}
}

// Rebuild replaces the active index with one built from docs. On any
// failure the previous index (or the empty state) remains in place, and
// in-flight queries keep being served from it for the whole duration of
// the build.
func (m *Manager) Rebuild(ctx context.Context, docs []*extract.Document) error {
	m.setBuilding(true)
	defer m.setBuilding(false)

	snap, err := m.build(ctx, docs)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.active = snap
	m.state = StateReady
	m.mu.Unlock()

	m.log.Info("index ready",
		slog.Int("documents", len(docs)),
		slog.Int("chunks", len(snap.chunks)),
		slog.Int("dimension", snap.dim))
	return nil
}

func (m *Manager) build(ctx context.Context, docs []*extract.Document) (*snapshot, error) {
	// Chunk ordering is fixed by document id, then section order, then
	// chunk sequence, independent of how callers gathered the docs.
	sorted := slices.Clone(docs)
	slices.SortFunc(sorted, func(a, b *extract.Document) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})

	var chunks []chunk.Chunk
	for _, doc := range sorted {
		chunks = append(chunks, chunk.FromDocument(doc, m.splitter)...)
	}
	for i := range chunks {
		chunks[i].ID = i
	}
	if len(chunks) == 0 {
		return nil, &BuildError{Err: ErrEmptyCorpus}
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := m.embedder.EmbedAll(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return nil, &BuildError{Err: fmt.Errorf("%w: chunk %d has %d, expected %d",
				ErrDimensionMismatch, chunks[i].ID, len(v), dim)}
		}
	}
	if dim == 0 {
		return nil, &BuildError{Err: fmt.Errorf("%w: empty vectors", ErrDimensionMismatch)}
	}

	col, err := chromem.NewDB().CreateCollection("chunks", nil, m.queryEmbedding)
	if err != nil {
		return nil, &BuildError{Err: err}
	}

	records := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		records[i] = chromem.Document{
			ID:        strconv.Itoa(c.ID),
			Content:   c.Text,
			Embedding: vectors[i],
			Metadata: map[string]string{
				"doc":    c.DocID,
				"source": c.Source,
			},
		}
	}
	if err := col.AddDocuments(ctx, records, runtime.NumCPU()); err != nil {
		return nil, &BuildError{Err: err}
	}

	return &snapshot{col: col, chunks: chunks, dim: dim}, nil
}

// queryEmbedding satisfies chromem's embedding hook; it is only invoked
// for queries since every stored document carries its vector already.
func (m *Manager) queryEmbedding(ctx context.Context, text string) ([]float32, error) {
	return m.embedder.EmbedOne(ctx, text)
}

// Search embeds the query and returns the top k chunks by descending
// similarity, ties broken by ascending chunk id. k larger than the
// chunk count is clamped.
func (m *Manager) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	m.mu.RLock()
	snap := m.active
	m.mu.RUnlock()
	if snap == nil {
		return nil, ErrNotReady
	}

	if k > len(snap.chunks) {
		k = len(snap.chunks)
	}

	vec, err := m.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vec) != snap.dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(vec), snap.dim)
	}

	hits, err := snap.col.QueryEmbedding(ctx, vec, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		id, err := strconv.Atoi(h.ID)
		if err != nil || id < 0 || id >= len(snap.chunks) {
			return nil, fmt.Errorf("index returned unknown chunk id %q", h.ID)
		}
		results = append(results, Result{Chunk: snap.chunks[id], Score: h.Similarity})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})

	return results, nil
}

// Clear drops the active index and returns to the unprocessed state.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = nil
	m.state = StateEmpty
}

func (m *Manager) setBuilding(b bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b {
		m.state = StateBuilding
		return
	}
	if m.active != nil {
		m.state = StateReady
	} else {
		m.state = StateEmpty
	}
}

// State reports the lifecycle state for status surfaces.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Count returns the number of indexed chunks, zero when not ready.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return 0
	}
	return len(m.active.chunks)
}
