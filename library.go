package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"docquery/extract"
	"docquery/index"
)

type indexer interface {
	Rebuild(ctx context.Context, docs []*extract.Document) error
	Clear()
	State() index.State
	Count() int
}

// FileResult is the outcome for one file in a processing batch.
type FileResult struct {
	File   string `json:"file"`
	Status string `json:"status"` // "ok" or "failed"
	Format string `json:"format,omitempty"`
	Pages  int    `json:"pages,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Report summarizes one processing pass. A single bad file never aborts
// the rest of the batch; it is recorded here instead.
type Report struct {
	Processed int          `json:"processed"`
	Failed    int          `json:"failed"`
	Chunks    int          `json:"chunks"`
	Files     []FileResult `json:"files"`
}

// Status describes the library for status surfaces.
type Status struct {
	State     string `json:"state"`
	Documents int    `json:"documents"`
	Chunks    int    `json:"chunks"`
}

// Library orchestrates the document set: it walks the document root,
// extracts every supported file, and hands the results to the index for
// an atomic rebuild. Only one processing pass runs at a time.
type Library struct {
	log              *slog.Logger
	root             string
	extractors       *extract.Registry
	index            indexer
	mergeEventsDelay time.Duration
	workers          int

	mu   sync.Mutex
	docs int
}

// Process runs one full pass over the document root and replaces the
// index only if the new build succeeds. The returned error covers the
// walk and the build; per-file failures live in the report.
func (l *Library) Process(ctx context.Context) (Report, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	paths, err := l.collectFiles()
	if err != nil {
		return Report{}, fmt.Errorf("scanning %s: %w", l.root, err)
	}

	docs, report := l.extractAll(ctx, paths)

	if err := l.index.Rebuild(ctx, docs); err != nil {
		return report, err
	}

	l.docs = len(docs)
	report.Chunks = l.index.Count()
	l.log.Info("processing pass complete",
		slog.Int("processed", report.Processed),
		slog.Int("failed", report.Failed),
		slog.Int("chunks", report.Chunks))
	return report, nil
}

func (l *Library) collectFiles() ([]string, error) {
	var paths []string
	err := filepath.Walk(l.root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if !l.extractors.Supported(path) {
			l.log.Warn("unsupported file", slog.String("path", path))
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// extractAll runs extraction with bounded concurrency. Results are kept
// in walk order so downstream chunk ordering never depends on which
// file finished first.
func (l *Library) extractAll(ctx context.Context, paths []string) ([]*extract.Document, Report) {
	workers := l.workers
	if workers <= 0 {
		workers = 4
	}

	extracted := make([]*extract.Document, len(paths))
	errs := make([]error, len(paths))

	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)
	for i, path := range paths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			extracted[i], errs[i] = l.extractors.Extract(ctx, path)
		}(i, path)
	}
	wg.Wait()

	var docs []*extract.Document
	report := Report{Files: make([]FileResult, 0, len(paths))}
	for i, path := range paths {
		if errs[i] != nil {
			l.log.Error("extraction failed",
				slog.String("path", path),
				slog.String("error", errs[i].Error()))
			report.Failed++
			report.Files = append(report.Files, FileResult{
				File:   path,
				Status: "failed",
				Error:  errs[i].Error(),
			})
			continue
		}

		doc := extracted[i]
		docs = append(docs, doc)
		report.Processed++
		report.Files = append(report.Files, FileResult{
			File:   path,
			Status: "ok",
			Format: string(doc.Format),
			Pages:  doc.Pages,
		})
	}

	return docs, report
}

// Clear drops the index and forgets the processed document count.
func (l *Library) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.index.Clear()
	l.docs = 0
}

func (l *Library) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Status{
		State:     l.index.State().String(),
		Documents: l.docs,
		Chunks:    l.index.Count(),
	}
}

// Watch reprocesses the document root when files change. Bursts of
// events within the merge delay collapse into a single pass.
func (l *Library) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := watcher.Add(l.root); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", l.root, err)
	}

	go func() {
		defer watcher.Close()

		debounce := time.NewTimer(l.mergeEventsDelay)
		if !debounce.Stop() {
			<-debounce.C
		}

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				debounce.Reset(l.mergeEventsDelay)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.log.Error("watcher error", slog.String("error", err.Error()))
			case <-debounce.C:
				if _, err := l.Process(ctx); err != nil {
					l.log.Error("reprocessing failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	return nil
}
