// internal/strategy/strategy.go
// Package strategy loads and validates the retrieval-strategy configurations
// a run executes against each test case.
package strategy

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mwiater/ragbench/internal/gateway"
)

// Kind names a retrieval method.
type Kind string

const (
	KindVector  Kind = "vector"
	KindLexical Kind = "lexical"
	KindHybrid  Kind = "hybrid"
)

// SearchKind maps a strategy kind onto the backend's search type. The lexical
// strategy rides the bm25 endpoint.
func (k Kind) SearchKind() gateway.SearchKind {
	switch k {
	case KindVector:
		return gateway.SearchVector
	case KindLexical:
		return gateway.SearchBM25
	default:
		return gateway.SearchHybrid
	}
}

// Config describes one retrieval strategy. Weights are meaningful only for
// hybrid strategies and need not sum to 1.
type Config struct {
	Name         string  `json:"name"`
	Kind         Kind    `json:"kind"`
	TopK         int     `json:"topK"`
	VectorWeight float64 `json:"vectorWeight"`
	BM25Weight   float64 `json:"bm25Weight"`
	Enabled      bool    `json:"enabled"`
	// Generate asks the backend for an answer after retrieval, enabling the
	// answer-quality metrics.
	Generate bool `json:"generate"`
	// ClientFusion retrieves oversized vector and bm25 lists separately and
	// fuses them locally instead of calling the backend's hybrid endpoint.
	// Hybrid strategies only.
	ClientFusion bool `json:"clientFusion"`
}

// rawConfig mirrors Config with optional booleans so absent fields default
// to enabled/generating.
type rawConfig struct {
	Name         string  `json:"name"`
	Kind         string  `json:"kind"`
	TopK         int     `json:"topK"`
	VectorWeight float64 `json:"vectorWeight"`
	BM25Weight   float64 `json:"bm25Weight"`
	Enabled      *bool   `json:"enabled"`
	Generate     *bool   `json:"generate"`
	ClientFusion bool    `json:"clientFusion"`
}

type envelope struct {
	Strategies []rawConfig `json:"strategies"`
}

// Load reads strategy configs from path, accepting a bare JSON array or the
// wrapped {"strategies": [...]} form, and validates the set.
func Load(path string) ([]Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read strategies %q: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes and validates a strategy document.
func Parse(raw []byte) ([]Config, error) {
	if err := validateSchema(raw); err != nil {
		return nil, err
	}

	var rows []rawConfig
	if err := json.Unmarshal(raw, &rows); err != nil {
		var wrapped envelope
		if err2 := json.Unmarshal(raw, &wrapped); err2 != nil || wrapped.Strategies == nil {
			return nil, gateway.Wrap(gateway.KindInvalidConfig, err, "strategy file is neither a config array nor a strategies object")
		}
		rows = wrapped.Strategies
	}

	configs := make([]Config, 0, len(rows))
	for _, row := range rows {
		cfg := Config{
			Name:         strings.TrimSpace(row.Name),
			Kind:         normalizeKind(row.Kind),
			TopK:         row.TopK,
			VectorWeight: row.VectorWeight,
			BM25Weight:   row.BM25Weight,
			Enabled:      row.Enabled == nil || *row.Enabled,
			Generate:     row.Generate == nil || *row.Generate,
			ClientFusion: row.ClientFusion,
		}
		configs = append(configs, cfg)
	}

	if err := Validate(configs); err != nil {
		return nil, err
	}
	return configs, nil
}

// normalizeKind folds the backend's "bm25" spelling into the lexical kind.
func normalizeKind(kind string) Kind {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "bm25":
		return KindLexical
	default:
		return Kind(strings.ToLower(strings.TrimSpace(kind)))
	}
}

// Validate checks the semantic invariants the schema cannot express: unique
// names, positive topK, non-negative weights, known kinds. Violations are
// fatal InvalidConfig errors detected before the run starts.
func Validate(configs []Config) error {
	if len(configs) == 0 {
		return gateway.Errorf(gateway.KindInvalidConfig, "no strategies configured")
	}
	names := make(map[string]struct{}, len(configs))
	for i, cfg := range configs {
		label := cfg.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
		}
		if cfg.Name == "" {
			return gateway.Errorf(gateway.KindInvalidConfig, "strategy %s has no name", label)
		}
		if _, dup := names[cfg.Name]; dup {
			return gateway.Errorf(gateway.KindInvalidConfig, "duplicate strategy name %q", cfg.Name)
		}
		names[cfg.Name] = struct{}{}

		switch cfg.Kind {
		case KindVector, KindLexical, KindHybrid:
		default:
			return gateway.Errorf(gateway.KindInvalidConfig, "strategy %q has unknown kind %q", cfg.Name, cfg.Kind)
		}
		if cfg.TopK <= 0 {
			return gateway.Errorf(gateway.KindInvalidConfig, "strategy %q has non-positive topK %d", cfg.Name, cfg.TopK)
		}
		if cfg.VectorWeight < 0 || cfg.BM25Weight < 0 {
			return gateway.Errorf(gateway.KindInvalidConfig, "strategy %q has a negative weight", cfg.Name)
		}
		if cfg.ClientFusion && cfg.Kind != KindHybrid {
			return gateway.Errorf(gateway.KindInvalidConfig, "strategy %q enables clientFusion but is not hybrid", cfg.Name)
		}
		if cfg.Kind == KindHybrid && cfg.VectorWeight == 0 && cfg.BM25Weight == 0 {
			return gateway.Errorf(gateway.KindInvalidConfig, "hybrid strategy %q has zero weights", cfg.Name)
		}
	}
	return nil
}

// Enabled filters the set down to the strategies a run executes.
func Enabled(configs []Config) []Config {
	out := make([]Config, 0, len(configs))
	for _, cfg := range configs {
		if cfg.Enabled {
			out = append(out, cfg)
		}
	}
	return out
}
