// Package config loads the JSON configuration file: server bind
// address/port, the problem set, and the language set.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/originjudge/oj/internal/judge"
)

type ServerConfig struct {
	BindAddress string `json:"bind_address"`
	BindPort    uint16 `json:"bind_port"`
}

// Config is the full parsed configuration file.
type Config struct {
	Server    ServerConfig     `json:"server"`
	Problems  []judge.Problem  `json:"problems"`
	Languages []judge.Language `json:"languages"`
}

// Load reads and strictly validates the JSON config file at path,
// rejecting unknown top-level keys the way a careful config loader
// should.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Server.BindAddress == "" {
		cfg.Server.BindAddress = "0.0.0.0"
	}
	if cfg.Server.BindPort == 0 {
		cfg.Server.BindPort = 12345
	}
	return &cfg, nil
}

// Catalog builds the in-memory lookup catalog the judging engine and
// gate use from the parsed configuration.
func (c *Config) Catalog() *judge.Catalog {
	cat := &judge.Catalog{
		Problems:  make(map[int32]judge.Problem, len(c.Problems)),
		Languages: make(map[string]judge.Language, len(c.Languages)),
	}
	for _, p := range c.Problems {
		cat.Problems[p.ID] = p
	}
	for _, l := range c.Languages {
		cat.Languages[l.Name] = l
	}
	return cat
}
