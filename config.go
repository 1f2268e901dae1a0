package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogFile       string `yaml:"log"`
	DocRoot       string `yaml:"doc_root"`
	MergeEventsMs int    `yaml:"write_debounce_ms"`
	ChunkSize     int    `yaml:"chunk_size"`
	ChunkOverlap  int    `yaml:"chunk_overlap"`
	BatchSize     int    `yaml:"batch_size"`
	Results       int    `yaml:"results"`
	MinPageChars  int    `yaml:"min_page_chars"`
	MaxRetries    int    `yaml:"max_retries"`
	OCRLanguage   string `yaml:"ocr_language"`
	ServerAddr    string `yaml:"server_addr"`
	OpenAI        *struct {
		Model  string `yaml:"model"`
		ApiKey string `yaml:"api_key"`
	} `yaml:"open_ai"`
	Gemini *struct {
		Model       string `yaml:"model"`
		ApiKey      string `yaml:"api_key"`
		AnswerModel string `yaml:"answer_model"`
	} `yaml:"gemini"`
}

// Defaults mirror the informal tuning of the system this replaces:
// chunk size 700, overlap 50, top-6 retrieval.
func defaultConfig() *Config {
	return &Config{
		LogFile:       "docquery.log",
		DocRoot:       "docs",
		MergeEventsMs: 500,
		ChunkSize:     700,
		ChunkOverlap:  50,
		BatchSize:     32,
		Results:       6,
		MinPageChars:  32,
		MaxRetries:    3,
		OCRLanguage:   "eng",
		ServerAddr:    "localhost:8080",
	}
}

func readConfig(cfgPath string) (*Config, error) {
	cfgFile, err := os.Open(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("unable to open config file: %w", err)
	}
	defer cfgFile.Close()

	cfg := defaultConfig()
	dec := yaml.NewDecoder(cfgFile)
	err = dec.Decode(cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to parse config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("chunk_overlap must not be negative, got %d", c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk_overlap (%d) must be smaller than chunk_size (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	if c.Results <= 0 {
		return fmt.Errorf("results must be positive, got %d", c.Results)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.MinPageChars <= 0 {
		return fmt.Errorf("min_page_chars must be positive, got %d", c.MinPageChars)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	if c.DocRoot == "" {
		return fmt.Errorf("doc_root must be set")
	}
	return nil
}
