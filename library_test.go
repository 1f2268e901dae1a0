package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docquery/answer"
	"docquery/chunk"
	"docquery/extract"
	"docquery/index"
)

type fakeIndex struct {
	docs    []*extract.Document
	rebuild error
	state   index.State
	count   int
	cleared bool
}

func (f *fakeIndex) Rebuild(ctx context.Context, docs []*extract.Document) error {
	if f.rebuild != nil {
		return f.rebuild
	}
	f.docs = docs
	f.state = index.StateReady
	return nil
}

func (f *fakeIndex) Clear() {
	f.cleared = true
	f.state = index.StateEmpty
	f.count = 0
}

func (f *fakeIndex) State() index.State { return f.state }

func (f *fakeIndex) Count() int { return f.count }

type mapEmbedder struct {
	vecs map[string][]float32
}

func (m *mapEmbedder) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, ok := m.vecs[text]
		if !ok {
			return nil, errors.New("unexpected text: " + text)
		}
		out[i] = vec
	}
	return out, nil
}

func (m *mapEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vec, ok := m.vecs[text]
	if !ok {
		return nil, errors.New("unexpected text: " + text)
	}
	return vec, nil
}

type fakeGenerator struct {
	reply   string
	prompts []string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.reply, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newLibrary(root string, idx indexer, extractors ...extract.Extractor) *Library {
	return &Library{
		log:        testLogger(),
		root:       root,
		extractors: extract.NewRegistry(extractors...),
		index:      idx,
		workers:    2,
	}
}

func Test_Process(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("First document."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("Second document."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "skip.bin"), []byte{0x01}, 0o644))

	idx := &fakeIndex{count: 2}
	lib := newLibrary(root, idx, &extract.TxtExtractor{})

	report, err := lib.Process(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Processed)
	assert.Zero(t, report.Failed)
	assert.Equal(t, 2, report.Chunks)
	require.Len(t, report.Files, 2, "unsupported files are skipped, not reported")
	assert.Len(t, idx.docs, 2)

	status := lib.Status()
	assert.Equal(t, "ready", status.State)
	assert.Equal(t, 2, status.Documents)
}

func Test_Process_BadFileDoesNotAbortBatch(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "good.txt"), []byte("Fine content."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "broken.pdf"), []byte("not a pdf"), 0o644))

	idx := &fakeIndex{}
	lib := newLibrary(root, idx, &extract.TxtExtractor{}, &extract.PDFExtractor{MinPageChars: 32})

	report, err := lib.Process(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Failed)
	assert.Len(t, idx.docs, 1)
	assert.Equal(t, "good.txt", idx.docs[0].Name)

	var failed *FileResult
	for i := range report.Files {
		if report.Files[i].Status == "failed" {
			failed = &report.Files[i]
		}
	}
	require.NotNil(t, failed)
	assert.Contains(t, failed.File, "broken.pdf")
	assert.NotEmpty(t, failed.Error)
}

func Test_Process_RebuildFailure(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("content"), 0o644))

	idx := &fakeIndex{rebuild: errors.New("embedding service down")}
	lib := newLibrary(root, idx, &extract.TxtExtractor{})

	_, err := lib.Process(context.Background())
	assert.ErrorContains(t, err, "embedding service down")
}

func Test_Clear(t *testing.T) {
	idx := &fakeIndex{state: index.StateReady, count: 3}
	lib := newLibrary(t.TempDir(), idx, &extract.TxtExtractor{})
	lib.docs = 2

	lib.Clear()

	assert.True(t, idx.cleared)
	status := lib.Status()
	assert.Equal(t, "empty", status.State)
	assert.Zero(t, status.Documents)
	assert.Zero(t, status.Chunks)
}

// End-to-end pass over real components: extraction, chunking, indexing
// and grounded answering, with only the external services faked.
func Test_ProcessAndAsk(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "paris.txt"),
		[]byte("The capital of France is Paris."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "fruit.txt"),
		[]byte("Bananas are botanically berries."), 0o644))

	emb := &mapEmbedder{vecs: map[string][]float32{
		"The capital of France is Paris.":  {1, 0},
		"Bananas are botanically berries.": {0, 1},
		"What is the capital of France?":   {0.9, 0.1},
	}}
	manager := index.NewManager(testLogger(), emb, chunk.NewSplitter(700, 50))
	lib := newLibrary(root, manager, &extract.TxtExtractor{})

	report, err := lib.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 2, report.Chunks)

	hits, err := manager.Search(context.Background(), "What is the capital of France?", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "paris.txt", hits[0].Chunk.Source)

	gen := &fakeGenerator{reply: "Paris."}
	ans, err := answer.NewSynthesizer(testLogger(), gen).
		Answer(context.Background(), "What is the capital of France?", hits)
	require.NoError(t, err)
	assert.Equal(t, "Paris.", ans.Text)
	assert.Equal(t, []string{"paris.txt"}, ans.Sources)
}

// With no documents processed yet, asking falls back to the fixed
// no-information reply without touching the generator.
func Test_Ask_BeforeProcessing(t *testing.T) {
	emb := &mapEmbedder{vecs: map[string][]float32{}}
	manager := index.NewManager(testLogger(), emb, chunk.NewSplitter(700, 50))

	hits, err := manager.Search(context.Background(), "Anything?", 6)
	require.ErrorIs(t, err, index.ErrNotReady)

	gen := &fakeGenerator{}
	ans, err := answer.NewSynthesizer(testLogger(), gen).
		Answer(context.Background(), "Anything?", hits)
	require.NoError(t, err)
	assert.Equal(t, answer.NoInformation, ans.Text)
	assert.Empty(t, gen.prompts)
}
