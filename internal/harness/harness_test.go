package harness

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/mwiater/ragbench/internal/gateway"
	"github.com/mwiater/ragbench/internal/results"
	"github.com/mwiater/ragbench/internal/strategy"
	"github.com/mwiater/ragbench/internal/testset"
)

type stubSearch struct {
	mu            sync.Mutex
	retrieveCalls []gateway.RetrieveRequest
	answerCalls   []gateway.AnswerRequest
	retrieveFn    func(gateway.RetrieveRequest) (gateway.RetrieveResponse, error)
	answerFn      func(gateway.AnswerRequest) (gateway.AnswerResponse, error)
}

func (s *stubSearch) Retrieve(_ context.Context, req gateway.RetrieveRequest) (gateway.RetrieveResponse, error) {
	s.mu.Lock()
	s.retrieveCalls = append(s.retrieveCalls, req)
	s.mu.Unlock()
	if s.retrieveFn != nil {
		return s.retrieveFn(req)
	}
	return gateway.RetrieveResponse{Contexts: []string{"ctx-a", "ctx-b"}, LatencyMs: 5}, nil
}

func (s *stubSearch) Answer(_ context.Context, req gateway.AnswerRequest) (gateway.AnswerResponse, error) {
	s.mu.Lock()
	s.answerCalls = append(s.answerCalls, req)
	s.mu.Unlock()
	if s.answerFn != nil {
		return s.answerFn(req)
	}
	return gateway.AnswerResponse{Answer: "stub answer", Contexts: []string{"ctx-a"}, LatencyMs: 7}, nil
}

func (s *stubSearch) retrieveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.retrieveCalls)
}

type stubEval struct {
	mu    sync.Mutex
	calls int
	fn    func(gateway.EvalInput) (map[string]float64, error)
}

func (s *stubEval) Evaluate(_ context.Context, in gateway.EvalInput) (map[string]float64, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.fn != nil {
		return s.fn(in)
	}
	return map[string]float64{"faithfulness": 0.9}, nil
}

func testCases(n int) []testset.TestCase {
	cases := make([]testset.TestCase, 0, n)
	for i := 0; i < n; i++ {
		cases = append(cases, testset.TestCase{
			ID:          string(rune('a' + i)),
			Question:    "question",
			GroundTruth: "truth",
		})
	}
	return cases
}

func vectorStrategy() strategy.Config {
	return strategy.Config{Name: "vector_only", Kind: strategy.KindVector, TopK: 5, Enabled: true, Generate: true}
}

func TestRunFixedBackend(t *testing.T) {
	// Two cases, one vector strategy, fixed contexts and answer.
	search := &stubSearch{}
	store := results.NewStore()
	h := New(search, &stubEval{}, store, Options{Workers: 2})

	summary, err := h.Run(context.Background(), testCases(2), []strategy.Config{vectorStrategy()})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if summary.Total != 2 || summary.Done != 2 || summary.Failed != 0 {
		t.Fatalf("summary = %+v", summary)
	}

	retrievals, scores := store.Snapshot()
	if len(retrievals) != 2 || len(scores) != 2 {
		t.Fatalf("records = %d, scores = %d", len(retrievals), len(scores))
	}
	for _, r := range retrievals {
		if r.Status != results.StatusDone {
			t.Fatalf("pair (%s, %s) not done: %+v", r.TestCaseID, r.StrategyName, r)
		}
		if !reflect.DeepEqual(r.Contexts, []string{"ctx-a", "ctx-b"}) {
			t.Fatalf("contexts = %v", r.Contexts)
		}
		if r.Answer != "stub answer" {
			t.Fatalf("answer = %q", r.Answer)
		}
		if r.LatencyMs != 12 {
			t.Fatalf("latency = %d, want retrieve+answer = 12", r.LatencyMs)
		}
	}
}

func TestRunCompleteness(t *testing.T) {
	// N cases × M strategies yields exactly N×M records even with failures.
	search := &stubSearch{
		retrieveFn: func(req gateway.RetrieveRequest) (gateway.RetrieveResponse, error) {
			if req.Kind == gateway.SearchBM25 {
				return gateway.RetrieveResponse{}, gateway.Errorf(gateway.KindGatewayBadResponse, "broken body")
			}
			return gateway.RetrieveResponse{Contexts: []string{"ctx"}, LatencyMs: 1}, nil
		},
	}
	store := results.NewStore()
	h := New(search, &stubEval{}, store, Options{Workers: 3})

	strategies := []strategy.Config{
		{Name: "vector_only", Kind: strategy.KindVector, TopK: 5, Enabled: true},
		{Name: "bm25_only", Kind: strategy.KindLexical, TopK: 5, Enabled: true},
		{Name: "disabled", Kind: strategy.KindVector, TopK: 5, Enabled: false},
	}
	summary, err := h.Run(context.Background(), testCases(4), strategies)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if summary.Total != 8 {
		t.Fatalf("total = %d, want 4 cases × 2 enabled strategies", summary.Total)
	}
	if summary.Done != 4 || summary.Failed != 4 {
		t.Fatalf("summary = %+v", summary)
	}

	retrievals, _ := store.Snapshot()
	seen := make(map[results.Key]int)
	for _, r := range retrievals {
		seen[results.Key{TestCaseID: r.TestCaseID, StrategyName: r.StrategyName}]++
	}
	for key, count := range seen {
		if count != 1 {
			t.Fatalf("pair %+v recorded %d times", key, count)
		}
	}
}

func TestRetryBoundTransientFailure(t *testing.T) {
	search := &stubSearch{
		retrieveFn: func(gateway.RetrieveRequest) (gateway.RetrieveResponse, error) {
			return gateway.RetrieveResponse{}, gateway.Errorf(gateway.KindGatewayTimeout, "always times out")
		},
	}
	store := results.NewStore()
	h := New(search, &stubEval{}, store, Options{Workers: 1, Retries: 2, BackoffBase: time.Millisecond})

	summary, err := h.Run(context.Background(), testCases(1), []strategy.Config{vectorStrategy()})
	if !errors.Is(err, ErrAllPairsFailed) {
		t.Fatalf("expected ErrAllPairsFailed, got %v", err)
	}
	if summary.Failed != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if got := search.retrieveCount(); got != 3 {
		t.Fatalf("retrieve calls = %d, want initial + 2 retries", got)
	}

	retrievals, _ := store.Snapshot()
	if retrievals[0].ErrorKind != gateway.KindGatewayTimeout {
		t.Fatalf("error kind = %q", retrievals[0].ErrorKind)
	}
}

func TestZeroRetriesMeansSingleAttempt(t *testing.T) {
	// Retries:0 disables retrying entirely, even for transient failures.
	search := &stubSearch{
		retrieveFn: func(gateway.RetrieveRequest) (gateway.RetrieveResponse, error) {
			return gateway.RetrieveResponse{}, gateway.Errorf(gateway.KindGatewayTimeout, "always times out")
		},
	}
	store := results.NewStore()
	h := New(search, &stubEval{}, store, Options{Workers: 1, Retries: 0, BackoffBase: time.Millisecond})

	_, err := h.Run(context.Background(), testCases(1), []strategy.Config{vectorStrategy()})
	if !errors.Is(err, ErrAllPairsFailed) {
		t.Fatalf("expected ErrAllPairsFailed, got %v", err)
	}
	if got := search.retrieveCount(); got != 1 {
		t.Fatalf("retrieve calls = %d, want exactly 1", got)
	}
}

func TestBadResponseNeverRetried(t *testing.T) {
	search := &stubSearch{
		retrieveFn: func(gateway.RetrieveRequest) (gateway.RetrieveResponse, error) {
			return gateway.RetrieveResponse{}, gateway.Errorf(gateway.KindGatewayBadResponse, "malformed")
		},
	}
	store := results.NewStore()
	h := New(search, &stubEval{}, store, Options{Workers: 1, Retries: 5, BackoffBase: time.Millisecond})

	_, err := h.Run(context.Background(), testCases(1), []strategy.Config{vectorStrategy()})
	if !errors.Is(err, ErrAllPairsFailed) {
		t.Fatalf("expected ErrAllPairsFailed, got %v", err)
	}
	if got := search.retrieveCount(); got != 1 {
		t.Fatalf("retrieve calls = %d, want exactly 1", got)
	}
}

func TestCancellationPreservesCompletedPairs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	var mu sync.Mutex
	search := &stubSearch{}
	search.retrieveFn = func(gateway.RetrieveRequest) (gateway.RetrieveResponse, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n <= 2 {
			return gateway.RetrieveResponse{Contexts: []string{"ctx"}, LatencyMs: 1}, nil
		}
		cancel()
		return gateway.RetrieveResponse{}, gateway.Wrap(gateway.KindCancelled, context.Canceled, "cancelled mid-call")
	}

	store := results.NewStore()
	h := New(search, &stubEval{}, store, Options{Workers: 1})

	strategies := []strategy.Config{{Name: "vector_only", Kind: strategy.KindVector, TopK: 5, Enabled: true}}
	summary, err := h.Run(ctx, testCases(6), strategies)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if summary.Total != 6 {
		t.Fatalf("total = %d, want all pairs recorded", summary.Total)
	}
	if summary.Done != 2 {
		t.Fatalf("done = %d, want the two completed pairs preserved", summary.Done)
	}

	retrievals, _ := store.Snapshot()
	cancelled := 0
	for _, r := range retrievals {
		if r.Status == results.StatusFailed {
			if r.ErrorKind != gateway.KindCancelled {
				t.Fatalf("failed pair has kind %q, want cancelled", r.ErrorKind)
			}
			cancelled++
		}
	}
	if cancelled != 4 {
		t.Fatalf("cancelled pairs = %d, want 4", cancelled)
	}
	// No pair was dequeued after the signal: only 3 gateway calls happened.
	if got := search.retrieveCount(); got != 3 {
		t.Fatalf("retrieve calls = %d, want 3", got)
	}
}

func TestScoringFailureIsolated(t *testing.T) {
	search := &stubSearch{}
	eval := &stubEval{fn: func(gateway.EvalInput) (map[string]float64, error) {
		return nil, gateway.Errorf(gateway.KindEvaluationError, "scorer offline")
	}}
	store := results.NewStore()
	h := New(search, eval, store, Options{Workers: 1})

	summary, err := h.Run(context.Background(), testCases(1), []strategy.Config{vectorStrategy()})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if summary.Done != 1 || summary.ScoringFailures != 1 {
		t.Fatalf("summary = %+v", summary)
	}

	retrievals, scores := store.Snapshot()
	if retrievals[0].Status != results.StatusDone {
		t.Fatalf("retrieval should stay done: %+v", retrievals[0])
	}
	if len(scores) != 0 {
		t.Fatalf("no score expected, got %v", scores)
	}
}

func TestClientFusionRetrieval(t *testing.T) {
	search := &stubSearch{
		retrieveFn: func(req gateway.RetrieveRequest) (gateway.RetrieveResponse, error) {
			switch req.Kind {
			case gateway.SearchVector:
				return gateway.RetrieveResponse{Contexts: []string{"A", "B", "C"}, LatencyMs: 3}, nil
			case gateway.SearchBM25:
				return gateway.RetrieveResponse{Contexts: []string{"B", "D", "A"}, LatencyMs: 4}, nil
			default:
				return gateway.RetrieveResponse{}, gateway.Errorf(gateway.KindGatewayBadResponse, "unexpected kind %q", req.Kind)
			}
		},
	}
	store := results.NewStore()
	h := New(search, &stubEval{}, store, Options{Workers: 1})

	strategies := []strategy.Config{{
		Name: "hybrid_local", Kind: strategy.KindHybrid, TopK: 3,
		VectorWeight: 0.7, BM25Weight: 0.3,
		Enabled: true, ClientFusion: true,
	}}
	summary, err := h.Run(context.Background(), testCases(1), strategies)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if summary.Done != 1 {
		t.Fatalf("summary = %+v", summary)
	}

	// Both source lists fetched oversized at 2×topK.
	if got := search.retrieveCount(); got != 2 {
		t.Fatalf("retrieve calls = %d, want 2", got)
	}
	for _, call := range search.retrieveCalls {
		if call.TopK != 6 {
			t.Fatalf("candidate topK = %d, want 6", call.TopK)
		}
	}

	retrievals, _ := store.Snapshot()
	want := []string{"A", "B", "C"}
	if !reflect.DeepEqual(retrievals[0].Contexts, want) {
		t.Fatalf("fused contexts = %v, want %v", retrievals[0].Contexts, want)
	}
	if retrievals[0].LatencyMs != 7 {
		t.Fatalf("latency = %d, want summed source latencies", retrievals[0].LatencyMs)
	}
}

func TestRunRejectsInvalidStrategiesBeforeStart(t *testing.T) {
	search := &stubSearch{}
	store := results.NewStore()
	h := New(search, &stubEval{}, store, Options{Workers: 1})

	bad := []strategy.Config{{Name: "x", Kind: strategy.KindVector, TopK: 0, Enabled: true}}
	_, err := h.Run(context.Background(), testCases(1), bad)
	if err == nil {
		t.Fatal("expected invalid config error")
	}
	var ke *gateway.KindError
	if !errors.As(err, &ke) || ke.Kind != gateway.KindInvalidConfig {
		t.Fatalf("expected invalid_config, got %v", err)
	}
	if search.retrieveCount() != 0 {
		t.Fatal("no gateway call should happen for an invalid config")
	}
	if store.Len() != 0 {
		t.Fatal("no records should exist for an aborted run")
	}
}

func TestRetrievalOnlyStrategySkipsGeneration(t *testing.T) {
	search := &stubSearch{}
	store := results.NewStore()
	h := New(search, &stubEval{}, store, Options{Workers: 1})

	strategies := []strategy.Config{{Name: "vector_only", Kind: strategy.KindVector, TopK: 5, Enabled: true, Generate: false}}
	if _, err := h.Run(context.Background(), testCases(1), strategies); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	search.mu.Lock()
	answers := len(search.answerCalls)
	search.mu.Unlock()
	if answers != 0 {
		t.Fatalf("answer calls = %d, want 0", answers)
	}
	retrievals, _ := store.Snapshot()
	if retrievals[0].Answer != "" {
		t.Fatalf("answer = %q, want empty", retrievals[0].Answer)
	}
}
