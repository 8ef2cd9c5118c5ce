// internal/scorer/scorer.go
// Package scorer provides a deterministic lexical-overlap scorer behind the
// EvaluationGateway contract, so a run produces comparable quality metrics
// without a remote scoring service. Any LLM-backed scorer can be plugged in
// behind the same interface.
package scorer

import (
	"context"
	"strings"
	"unicode"

	"github.com/mwiater/ragbench/internal/gateway"
)

// Metric names emitted by the lexical scorer. The harness treats the metric
// set as open; these are only what this implementation can compute.
const (
	MetricContextPrecision = "context_precision"
	MetricContextRecall    = "context_recall"
	MetricFaithfulness     = "faithfulness"
	MetricAnswerRelevancy  = "answer_relevancy"
	MetricAnswerSimilarity = "answer_similarity"
)

// Lexical scores pairs by token overlap against the reference data. Metrics
// whose inputs are missing are omitted from the result, never zeroed.
type Lexical struct{}

// NewLexical returns the overlap scorer.
func NewLexical() *Lexical {
	return &Lexical{}
}

// Evaluate computes the overlap metrics for one pair.
func (l *Lexical) Evaluate(_ context.Context, in gateway.EvalInput) (map[string]float64, error) {
	question := tokenize(in.Question)
	if len(question) == 0 {
		return nil, gateway.Errorf(gateway.KindEvaluationError, "cannot score a pair with an empty question")
	}

	metrics := make(map[string]float64)

	if len(in.Contexts) > 0 && len(in.GroundTruthContexts) > 0 {
		metrics[MetricContextPrecision] = listOverlap(in.Contexts, in.GroundTruthContexts)
		metrics[MetricContextRecall] = listOverlap(in.GroundTruthContexts, in.Contexts)
	}

	answer := tokenize(in.Answer)
	if len(answer) > 0 {
		metrics[MetricAnswerRelevancy] = jaccard(answer, question)
		if len(in.Contexts) > 0 {
			metrics[MetricFaithfulness] = coverage(answer, tokenize(strings.Join(in.Contexts, " ")))
		}
		if truth := tokenize(in.GroundTruth); len(truth) > 0 {
			metrics[MetricAnswerSimilarity] = jaccard(answer, truth)
		}
	}

	return metrics, nil
}

// listOverlap scores each passage in subject against its best match in
// reference and averages the results.
func listOverlap(subject, reference []string) float64 {
	refTokens := make([]map[string]struct{}, len(reference))
	for i, passage := range reference {
		refTokens[i] = tokenize(passage)
	}

	total := 0.0
	for _, passage := range subject {
		tokens := tokenize(passage)
		best := 0.0
		for _, ref := range refTokens {
			if score := jaccard(tokens, ref); score > best {
				best = score
			}
		}
		total += best
	}
	return total / float64(len(subject))
}

// coverage is the fraction of subject tokens present in the reference set.
func coverage(subject, reference map[string]struct{}) float64 {
	if len(subject) == 0 {
		return 0
	}
	hits := 0
	for token := range subject {
		if _, ok := reference[token]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(subject))
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for token := range a {
		if _, ok := b[token]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// tokenize lowercases text and splits on anything that is not a letter or
// digit, deduplicating the result.
func tokenize(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		tokens[field] = struct{}{}
	}
	return tokens
}
