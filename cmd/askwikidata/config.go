package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Config is the YAML configuration for all commands. Secrets are not in
// the file: the *_env fields name environment variables read at adapter
// construction.
type Config struct {
	Labels struct {
		Dir string `yaml:"dir"`
	} `yaml:"labels"`

	Embedding struct {
		URL         string  `yaml:"url"`
		QueryPrefix string  `yaml:"query_prefix"`
		BatchSize   int     `yaml:"batch_size"`
		RatePerSec  float64 `yaml:"rate_per_second"`
	} `yaml:"embedding"`

	Reranker struct {
		URL string `yaml:"url"`
	} `yaml:"reranker"`

	Store struct {
		Engine     string `yaml:"engine"` // "qdrant" or "pgvector"
		QdrantAddr string `yaml:"qdrant_addr"`
		Collection string `yaml:"collection"`
		PgDSNEnv   string `yaml:"pg_dsn_env"`
	} `yaml:"store"`

	Pipeline struct {
		EmbedQueueSize  int   `yaml:"embed_queue_size"`
		InsertQueueSize int   `yaml:"insert_queue_size"`
		ChunkBytes      int   `yaml:"chunk_bytes"`
		DecodeWorkers   int   `yaml:"decode_workers"`
		ProgressEvery   int64 `yaml:"progress_every"`
	} `yaml:"pipeline"`

	Graph struct {
		URI         string `yaml:"uri"` // empty disables the graph sink
		User        string `yaml:"user"`
		PasswordEnv string `yaml:"password_env"`
	} `yaml:"graph"`

	NATS struct {
		URL string `yaml:"url"` // empty disables DLQ and progress events
	} `yaml:"nats"`

	LLM struct {
		URL          string `yaml:"url"`
		Family       string `yaml:"family"`
		APIKeyEnv    string `yaml:"api_key_env"`
		MaxNewTokens int    `yaml:"max_new_tokens"`
	} `yaml:"llm"`

	Retrieval struct {
		K         int     `yaml:"k"`
		ContextK  int     `yaml:"context_k"`
		Threshold float32 `yaml:"threshold"`
		BestFirst bool    `yaml:"best_first"`
	} `yaml:"retrieval"`

	Metrics struct {
		Port int `yaml:"port"`
	} `yaml:"metrics"`
}

// DefaultConfig targets a local single-machine setup.
func DefaultConfig() Config {
	var c Config
	c.Labels.Dir = "./labels.db"
	c.Embedding.URL = "http://localhost:8081"
	c.Embedding.BatchSize = 256
	c.Reranker.URL = "http://localhost:8082"
	c.Store.Engine = "qdrant"
	c.Store.QdrantAddr = "localhost:6334"
	c.Store.Collection = "askwikidata"
	c.Store.PgDSNEnv = "ASKWIKIDATA_PG_DSN"
	c.Pipeline.EmbedQueueSize = 1024
	c.Pipeline.InsertQueueSize = 1
	c.Graph.User = "neo4j"
	c.Graph.PasswordEnv = "NEO4J_PASSWORD"
	c.LLM.URL = "https://api-inference.huggingface.co/models/mistralai/Mistral-7B-Instruct-v0.1"
	c.LLM.Family = "mistral"
	c.LLM.APIKeyEnv = "HUGGINGFACE_API_KEY"
	c.LLM.MaxNewTokens = 250
	c.Retrieval.K = 64
	c.Retrieval.ContextK = 7
	c.Metrics.Port = 9091
	return c
}

// LoadConfig reads the YAML file over the defaults. A missing path keeps
// the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
