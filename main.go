package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	gemini "github.com/amikos-tech/chroma-go/pkg/embeddings/gemini"
	openai "github.com/amikos-tech/chroma-go/pkg/embeddings/openai"
	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	"docquery/answer"
	"docquery/chunk"
	"docquery/embed"
	"docquery/extract"
	"docquery/index"
)

const answerTemperature = 0.3

func createEmbeddingFunction(cfg *Config) (embed.EmbeddingFunc, error) {
	if cfg.OpenAI != nil {
		ef, err := openai.NewOpenAIEmbeddingFunction(
			cfg.OpenAI.ApiKey,
			openai.WithModel(openai.EmbeddingModel(cfg.OpenAI.Model)))
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI embedding function: %w", err)
		}

		return ef, nil
	}

	if cfg.Gemini != nil {
		ef, err := gemini.NewGeminiEmbeddingFunction(
			gemini.WithAPIKey(cfg.Gemini.ApiKey),
			gemini.WithDefaultModel(embeddings.EmbeddingModel(cfg.Gemini.Model)))
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini embedding function: %w", err)
		}

		return ef, nil
	}

	return nil, errors.New("invalid embeddings provider configuration")
}

// resolveKeys fills missing API keys from the environment.
func resolveKeys(cfg *Config) {
	if cfg.OpenAI != nil && cfg.OpenAI.ApiKey == "" {
		cfg.OpenAI.ApiKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Gemini != nil && cfg.Gemini.ApiKey == "" {
		cfg.Gemini.ApiKey = os.Getenv("GEMINI_API_KEY")
	}
}

func main() {
	cfgPath := flag.String("config", "cfg/config.yaml", "Configuration file for the DocQuery server")
	noWatch := flag.Bool("no-watch", false, "Disable reprocessing on document root changes")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := readConfig(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}
	resolveKeys(cfg)

	if cfg.Gemini == nil || cfg.Gemini.ApiKey == "" {
		log.Fatal("gemini api key is required for answer generation")
	}
	if cfg.Gemini.AnswerModel == "" {
		cfg.Gemini.AnswerModel = "gemini-2.5-flash-lite"
	}

	logFile, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		log.Fatalf("failed to open log file: %s", err)
	}
	defer logFile.Close()

	logger := slog.New(slog.NewJSONHandler(logFile, nil))

	embedder := embed.NewEmbedder(func() (embed.EmbeddingFunc, error) {
		return createEmbeddingFunction(cfg)
	}, cfg.BatchSize, cfg.MaxRetries)

	splitter := chunk.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	manager := index.NewManager(logger, embedder, splitter)

	registry := extract.NewRegistry(
		&extract.TxtExtractor{},
		&extract.DocxExtractor{},
		&extract.PDFExtractor{
			MinPageChars: cfg.MinPageChars,
			OCR:          extract.NewTesseractEngine(cfg.OCRLanguage),
		},
	)

	lib := &Library{
		log:              logger,
		root:             cfg.DocRoot,
		extractors:       registry,
		index:            manager,
		mergeEventsDelay: time.Duration(cfg.MergeEventsMs) * time.Millisecond,
		workers:          runtime.NumCPU(),
	}

	synth := answer.NewSynthesizer(logger, &answer.GeminiGenerator{
		APIKey:      cfg.Gemini.ApiKey,
		Model:       cfg.Gemini.AnswerModel,
		Temperature: answerTemperature,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if _, err := lib.Process(ctx); err != nil {
			logger.Error("initial processing failed", slog.String("error", err.Error()))
		}

		if *noWatch {
			return
		}
		if err := lib.Watch(ctx); err != nil {
			log.Fatal(err)
		}
	}()

	srv := NewDocQueryServer(lib, manager, synth, cfg.Results)
	sse := server.NewSSEServer(srv, server.WithBaseURL(fmt.Sprintf("http://%s", cfg.ServerAddr)))
	log.Println(sse.Start(cfg.ServerAddr))
}
