// internal/results/store.go
// Package results holds the per-pair records produced during a run: one
// write-once RetrievalResult per (test case, strategy) pair plus the
// evaluation scores for pairs that completed cleanly.
package results

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mwiater/ragbench/internal/gateway"
)

// Status marks the terminal state of a pair.
type Status string

const (
	StatusDone   Status = "done"
	StatusFailed Status = "failed"
)

// Key identifies one (test case, strategy) pair.
type Key struct {
	TestCaseID   string
	StrategyName string
}

// RetrievalResult is the terminal record for one pair. Failed records carry
// an error kind and cause; Done records carry contexts, an optional answer,
// and the measured latency.
type RetrievalResult struct {
	TestCaseID   string       `json:"testCaseId"`
	StrategyName string       `json:"strategyName"`
	Status       Status       `json:"status"`
	Contexts     []string     `json:"contexts,omitempty"`
	Answer       string       `json:"answer,omitempty"`
	LatencyMs    int64        `json:"latencyMs"`
	ErrorKind    gateway.Kind `json:"errorKind,omitempty"`
	Cause        string       `json:"cause,omitempty"`
}

// EvaluationScore holds the scorer output for one successful pair. Absent
// metric names mean the metric was not computable, not that it was zero.
type EvaluationScore struct {
	TestCaseID   string             `json:"testCaseId"`
	StrategyName string             `json:"strategyName"`
	Metrics      map[string]float64 `json:"metrics"`
}

// Store is a concurrency-safe keyed store with write-once semantics per key.
// Each key is written by exactly one worker, so a duplicate write signals a
// scheduling bug and is rejected.
type Store struct {
	mu         sync.Mutex
	retrievals map[Key]RetrievalResult
	scores     map[Key]EvaluationScore
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		retrievals: make(map[Key]RetrievalResult),
		scores:     make(map[Key]EvaluationScore),
	}
}

// PutRetrieval records the terminal result for a pair. It fails if the pair
// already has a record.
func (s *Store) PutRetrieval(r RetrievalResult) error {
	key := Key{TestCaseID: r.TestCaseID, StrategyName: r.StrategyName}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.retrievals[key]; exists {
		return fmt.Errorf("duplicate retrieval result for pair (%s, %s)", key.TestCaseID, key.StrategyName)
	}
	s.retrievals[key] = r
	return nil
}

// PutScore records the evaluation score for a pair. The pair must already
// hold a Done retrieval record.
func (s *Store) PutScore(sc EvaluationScore) error {
	key := Key{TestCaseID: sc.TestCaseID, StrategyName: sc.StrategyName}
	s.mu.Lock()
	defer s.mu.Unlock()
	retrieval, exists := s.retrievals[key]
	if !exists {
		return fmt.Errorf("score for unknown pair (%s, %s)", key.TestCaseID, key.StrategyName)
	}
	if retrieval.Status != StatusDone {
		return fmt.Errorf("score for failed pair (%s, %s)", key.TestCaseID, key.StrategyName)
	}
	if _, exists := s.scores[key]; exists {
		return fmt.Errorf("duplicate score for pair (%s, %s)", key.TestCaseID, key.StrategyName)
	}
	s.scores[key] = sc
	return nil
}

// Len returns the number of recorded retrieval results.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.retrievals)
}

// Snapshot returns copies of all records in deterministic key order. The
// aggregator calls this only after the run's completion barrier.
func (s *Store) Snapshot() ([]RetrievalResult, []EvaluationScore) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]Key, 0, len(s.retrievals))
	for key := range s.retrievals {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].StrategyName != keys[j].StrategyName {
			return keys[i].StrategyName < keys[j].StrategyName
		}
		return keys[i].TestCaseID < keys[j].TestCaseID
	})

	retrievals := make([]RetrievalResult, 0, len(keys))
	scores := make([]EvaluationScore, 0, len(s.scores))
	for _, key := range keys {
		retrievals = append(retrievals, s.retrievals[key])
		if score, ok := s.scores[key]; ok {
			scores = append(scores, score)
		}
	}
	return retrievals, scores
}
