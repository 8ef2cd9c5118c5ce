// internal/gateway/gateway.go
// Package gateway defines the contracts the harness depends on: the search
// backend under test and the pluggable quality scorer, plus the failure
// taxonomy shared by both.
package gateway

import "context"

// SearchKind selects which retrieval endpoint a request targets.
type SearchKind string

const (
	SearchVector SearchKind = "vector"
	SearchBM25   SearchKind = "bm25"
	SearchHybrid SearchKind = "hybrid"
)

// RetrieveRequest asks the backend for ranked contexts without generation.
// VectorWeight and BM25Weight are only meaningful for SearchHybrid.
type RetrieveRequest struct {
	Question     string
	TopK         int
	Kind         SearchKind
	VectorWeight float64
	BM25Weight   float64
}

// RetrieveResponse carries the ranked contexts and the backend-reported latency.
type RetrieveResponse struct {
	Contexts  []string
	LatencyMs int64
}

// AnswerRequest asks the backend for a generated answer grounded in its own
// retrieval for the given kind.
type AnswerRequest struct {
	Question string
	Kind     SearchKind
	TopK     int
}

// AnswerResponse carries the generated answer, its supporting contexts, and latency.
type AnswerResponse struct {
	Answer    string
	Contexts  []string
	LatencyMs int64
}

// SearchGateway abstracts the retrieval-and-generation backend under test.
// Implementations classify failures as KindGatewayTimeout,
// KindGatewayUnavailable, or KindGatewayBadResponse.
type SearchGateway interface {
	Retrieve(ctx context.Context, req RetrieveRequest) (RetrieveResponse, error)
	Answer(ctx context.Context, req AnswerRequest) (AnswerResponse, error)
}

// EvalInput bundles everything a scorer may use for one pair. Any field other
// than Question may be empty; scorers omit metrics they cannot compute.
type EvalInput struct {
	Question            string
	Answer              string
	Contexts            []string
	GroundTruth         string
	GroundTruthContexts []string
}

// EvaluationGateway abstracts the pluggable quality scorer. The returned map
// holds metric name to a value in [0,1]; absent keys mean the metric was not
// computable for the inputs. Failures are KindEvaluationError and isolated to
// the single pair.
type EvaluationGateway interface {
	Evaluate(ctx context.Context, in EvalInput) (map[string]float64, error)
}
