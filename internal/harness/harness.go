// internal/harness/harness.go
// Package harness executes the full (test case × enabled strategy) matrix
// against the backend under test: a bounded worker pool drains a static work
// queue, each worker running one pair's state machine to completion before
// taking the next item.
package harness

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mwiater/ragbench/internal/fusion"
	"github.com/mwiater/ragbench/internal/gateway"
	"github.com/mwiater/ragbench/internal/logging"
	"github.com/mwiater/ragbench/internal/results"
	"github.com/mwiater/ragbench/internal/strategy"
	"github.com/mwiater/ragbench/internal/testset"
)

// ErrAllPairsFailed reports a run in which no pair produced a usable result.
var ErrAllPairsFailed = errors.New("every pair failed")

const defaultBackoffBase = 500 * time.Millisecond

// Options configures a run. The zero value gets sane defaults from New.
type Options struct {
	// Workers bounds concurrent in-flight gateway calls.
	Workers int
	// Retries is how many times a transient gateway failure is re-attempted
	// after the initial call.
	Retries int
	// BackoffBase is the first retry delay; it doubles per attempt.
	BackoffBase time.Duration
	// Delay paces gateway calls within a worker.
	Delay time.Duration
	// Deadline bounds the whole run; zero means none.
	Deadline time.Duration
	// FusionK is the RRF smoothing constant for client-side hybrid fusion.
	FusionK int
	// Events receives progress updates when non-nil. Sends never block;
	// updates are dropped if the consumer lags.
	Events chan<- Event
}

// Summary captures run totals for exit-code decisions and the final log line.
type Summary struct {
	Total           int
	Done            int
	Failed          int
	ScoringFailures int
}

// Harness drives the test matrix through the search and evaluation gateways
// and writes one terminal record per pair into the store.
type Harness struct {
	search gateway.SearchGateway
	eval   gateway.EvaluationGateway
	store  *results.Store
	opts   Options

	scoringFailures atomic.Int64
}

// New constructs a Harness. The options object is copied; the harness holds
// no other state between runs.
func New(search gateway.SearchGateway, eval gateway.EvaluationGateway, store *results.Store, opts Options) *Harness {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaultBackoffBase
	}
	if opts.FusionK <= 0 {
		opts.FusionK = fusion.DefaultK
	}
	return &Harness{search: search, eval: eval, store: store, opts: opts}
}

type pair struct {
	testCase testset.TestCase
	strategy strategy.Config
}

// Run executes every (test case, enabled strategy) pair and blocks until all
// pairs reach a terminal state. Configuration problems surface before any
// concurrency begins; per-pair failures are recorded, never raised.
func (h *Harness) Run(ctx context.Context, cases []testset.TestCase, strategies []strategy.Config) (Summary, error) {
	if len(cases) == 0 {
		return Summary{}, gateway.Errorf(gateway.KindInvalidConfig, "no test cases loaded")
	}
	if err := strategy.Validate(strategies); err != nil {
		return Summary{}, err
	}
	enabled := strategy.Enabled(strategies)
	if len(enabled) == 0 {
		return Summary{}, gateway.Errorf(gateway.KindInvalidConfig, "no strategies enabled")
	}

	pairs := make([]pair, 0, len(cases)*len(enabled))
	for _, s := range enabled {
		for _, tc := range cases {
			pairs = append(pairs, pair{testCase: tc, strategy: s})
		}
	}

	runCtx := ctx
	if h.opts.Deadline > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, h.opts.Deadline)
		defer cancel()
	}

	logging.LogEvent("Running %d test cases × %d strategies = %d pairs with %d workers",
		len(cases), len(enabled), len(pairs), h.opts.Workers)

	queue := make(chan pair, len(pairs))
	for _, p := range pairs {
		queue <- p
	}
	close(queue)

	var wg sync.WaitGroup
	for i := 0; i < h.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range queue {
				// Cancellation stops dequeued pairs from starting; the
				// record still exists so the matrix stays complete.
				if runCtx.Err() != nil {
					h.recordCancelled(p)
					continue
				}
				h.runPair(runCtx, p)
			}
		}()
	}
	wg.Wait()

	retrievals, _ := h.store.Snapshot()
	summary := Summary{Total: len(retrievals), ScoringFailures: int(h.scoringFailures.Load())}
	for _, r := range retrievals {
		if r.Status == results.StatusDone {
			summary.Done++
		} else {
			summary.Failed++
		}
	}

	logging.LogEvent("Run complete: %d done, %d failed, %d scoring failures",
		summary.Done, summary.Failed, summary.ScoringFailures)

	if summary.Total > 0 && summary.Done == 0 {
		return summary, ErrAllPairsFailed
	}
	return summary, nil
}

// runPair walks one pair through Retrieving → Generating → Evaluating and
// writes its terminal record. Transitions are one-directional.
func (h *Harness) runPair(ctx context.Context, p pair) {
	h.emit(p, StateRetrieving, nil)

	contexts, latency, err := h.retrieve(ctx, p)
	if err != nil {
		h.fail(p, err)
		return
	}

	answer := ""
	if p.strategy.Generate {
		h.emit(p, StateGenerating, nil)
		resp, err := h.generate(ctx, p)
		if err != nil {
			h.fail(p, err)
			return
		}
		answer = resp.Answer
		latency += resp.LatencyMs
		if len(contexts) == 0 {
			contexts = resp.Contexts
		}
	}

	record := results.RetrievalResult{
		TestCaseID:   p.testCase.ID,
		StrategyName: p.strategy.Name,
		Status:       results.StatusDone,
		Contexts:     contexts,
		Answer:       answer,
		LatencyMs:    latency,
	}
	if err := h.store.PutRetrieval(record); err != nil {
		logging.LogEvent("store rejected result for (%s, %s): %v", p.testCase.ID, p.strategy.Name, err)
		return
	}

	h.emit(p, StateEvaluating, nil)
	metrics, err := h.eval.Evaluate(ctx, gateway.EvalInput{
		Question:            p.testCase.Question,
		Answer:              answer,
		Contexts:            contexts,
		GroundTruth:         p.testCase.GroundTruth,
		GroundTruthContexts: p.testCase.GroundTruthContexts,
	})
	if err != nil {
		// Scorer failures are isolated: the pair stays Done, it just
		// carries no score.
		h.scoringFailures.Add(1)
		logging.LogEvent("scoring failed for (%s, %s): %v", p.testCase.ID, p.strategy.Name, err)
		h.emit(p, StateDone, nil)
		return
	}
	score := results.EvaluationScore{
		TestCaseID:   p.testCase.ID,
		StrategyName: p.strategy.Name,
		Metrics:      metrics,
	}
	if err := h.store.PutScore(score); err != nil {
		logging.LogEvent("store rejected score for (%s, %s): %v", p.testCase.ID, p.strategy.Name, err)
	}
	h.emit(p, StateDone, nil)
}

// retrieve fetches the ranked contexts for a pair. Hybrid strategies with
// client fusion pull oversized vector and bm25 lists and merge them locally;
// everything else is a single backend call.
func (h *Harness) retrieve(ctx context.Context, p pair) ([]string, int64, error) {
	s := p.strategy
	if s.Kind == strategy.KindHybrid && s.ClientFusion {
		return h.retrieveFused(ctx, p)
	}

	var resp gateway.RetrieveResponse
	err := h.withRetry(ctx, func(callCtx context.Context) error {
		var callErr error
		resp, callErr = h.search.Retrieve(callCtx, gateway.RetrieveRequest{
			Question:     p.testCase.Question,
			TopK:         s.TopK,
			Kind:         s.Kind.SearchKind(),
			VectorWeight: s.VectorWeight,
			BM25Weight:   s.BM25Weight,
		})
		return callErr
	})
	if err != nil {
		return nil, 0, err
	}
	return resp.Contexts, resp.LatencyMs, nil
}

// retrieveFused runs the client-side hybrid path: both source lists are
// fetched at 2×topK to preserve recall before fusion truncates to topK.
func (h *Harness) retrieveFused(ctx context.Context, p pair) ([]string, int64, error) {
	s := p.strategy
	candidateK := 2 * s.TopK

	fetch := func(kind gateway.SearchKind) (gateway.RetrieveResponse, error) {
		var resp gateway.RetrieveResponse
		err := h.withRetry(ctx, func(callCtx context.Context) error {
			var callErr error
			resp, callErr = h.search.Retrieve(callCtx, gateway.RetrieveRequest{
				Question: p.testCase.Question,
				TopK:     candidateK,
				Kind:     kind,
			})
			return callErr
		})
		return resp, err
	}

	vec, err := fetch(gateway.SearchVector)
	if err != nil {
		return nil, 0, err
	}
	lex, err := fetch(gateway.SearchBM25)
	if err != nil {
		return nil, 0, err
	}

	fused, err := fusion.Fuse([]fusion.RankedList{
		{Docs: vec.Contexts, Weight: s.VectorWeight},
		{Docs: lex.Contexts, Weight: s.BM25Weight},
	}, h.opts.FusionK, s.TopK)
	if err != nil {
		return nil, 0, err
	}
	return fused, vec.LatencyMs + lex.LatencyMs, nil
}

// generate asks the backend for an answer using its own retrieval for the
// strategy's kind.
func (h *Harness) generate(ctx context.Context, p pair) (gateway.AnswerResponse, error) {
	var resp gateway.AnswerResponse
	err := h.withRetry(ctx, func(callCtx context.Context) error {
		var callErr error
		resp, callErr = h.search.Answer(callCtx, gateway.AnswerRequest{
			Question: p.testCase.Question,
			Kind:     p.strategy.Kind.SearchKind(),
			TopK:     p.strategy.TopK,
		})
		return callErr
	})
	return resp, err
}

// withRetry applies the retry policy: transient failures back off
// exponentially up to the configured budget, everything else fails the call
// immediately. The last observed error is returned when the budget runs out.
func (h *Harness) withRetry(ctx context.Context, call func(context.Context) error) error {
	if h.opts.Delay > 0 {
		if err := sleepCtx(ctx, h.opts.Delay); err != nil {
			return gateway.Wrap(gateway.KindCancelled, err, "run cancelled")
		}
	}

	var lastErr error
	for attempt := 0; attempt <= h.opts.Retries; attempt++ {
		if attempt > 0 {
			backoff := h.opts.BackoffBase << (attempt - 1)
			if err := sleepCtx(ctx, backoff); err != nil {
				return gateway.Wrap(gateway.KindCancelled, err, "run cancelled during backoff")
			}
		}
		lastErr = call(ctx)
		if lastErr == nil {
			return nil
		}
		if !gateway.Retryable(lastErr) {
			return lastErr
		}
		if ctx.Err() != nil {
			return gateway.Wrap(gateway.KindCancelled, ctx.Err(), "run cancelled")
		}
	}
	return lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// fail records the terminal failure for a pair.
func (h *Harness) fail(p pair, err error) {
	record := results.RetrievalResult{
		TestCaseID:   p.testCase.ID,
		StrategyName: p.strategy.Name,
		Status:       results.StatusFailed,
		ErrorKind:    gateway.KindOf(err),
		Cause:        gateway.CauseOf(err),
	}
	if storeErr := h.store.PutRetrieval(record); storeErr != nil {
		logging.LogEvent("store rejected failure for (%s, %s): %v", p.testCase.ID, p.strategy.Name, storeErr)
	}
	h.emit(p, StateFailed, err)
}

// recordCancelled marks a pair the cancellation signal reached before it started.
func (h *Harness) recordCancelled(p pair) {
	h.fail(p, gateway.Errorf(gateway.KindCancelled, "run cancelled before pair started"))
}

// emit publishes a progress event without ever blocking a worker.
func (h *Harness) emit(p pair, state State, err error) {
	if h.opts.Events == nil {
		return
	}
	event := Event{
		TestCaseID:   p.testCase.ID,
		StrategyName: p.strategy.Name,
		State:        state,
	}
	if err != nil {
		event.ErrorKind = gateway.KindOf(err)
	}
	select {
	case h.opts.Events <- event:
	default:
	}
}
