package scorer

import (
	"context"
	"errors"
	"testing"

	"github.com/mwiater/ragbench/internal/gateway"
)

func TestEvaluateFullInputs(t *testing.T) {
	metrics, err := NewLexical().Evaluate(context.Background(), gateway.EvalInput{
		Question:            "what was the net profit in 2022",
		Answer:              "the net profit was 45 billion",
		Contexts:            []string{"the net profit was 45 billion in 2022"},
		GroundTruth:         "net profit was 45 billion",
		GroundTruthContexts: []string{"the net profit was 45 billion in 2022"},
	})
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}

	for _, name := range []string{
		MetricContextPrecision, MetricContextRecall,
		MetricFaithfulness, MetricAnswerRelevancy, MetricAnswerSimilarity,
	} {
		value, ok := metrics[name]
		if !ok {
			t.Fatalf("missing metric %s: %v", name, metrics)
		}
		if value < 0 || value > 1 {
			t.Fatalf("metric %s out of range: %f", name, value)
		}
	}

	if metrics[MetricContextPrecision] != 1.0 {
		t.Fatalf("identical contexts should score 1.0 precision, got %f", metrics[MetricContextPrecision])
	}
	if metrics[MetricFaithfulness] != 1.0 {
		t.Fatalf("answer fully covered by context should score 1.0, got %f", metrics[MetricFaithfulness])
	}
}

func TestEvaluateOmitsUncomputableMetrics(t *testing.T) {
	// No ground truth: similarity and context metrics must be absent, not zero.
	metrics, err := NewLexical().Evaluate(context.Background(), gateway.EvalInput{
		Question: "what was the net profit",
		Answer:   "45 billion",
		Contexts: []string{"profit statement"},
	})
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if _, ok := metrics[MetricAnswerSimilarity]; ok {
		t.Fatal("answer_similarity should be absent without ground truth")
	}
	if _, ok := metrics[MetricContextRecall]; ok {
		t.Fatal("context_recall should be absent without ground-truth contexts")
	}
	if _, ok := metrics[MetricAnswerRelevancy]; !ok {
		t.Fatal("answer_relevancy should be computable from question+answer")
	}
}

func TestEvaluateRetrievalOnlyPair(t *testing.T) {
	// No answer: only the context metrics apply.
	metrics, err := NewLexical().Evaluate(context.Background(), gateway.EvalInput{
		Question:            "who audited the report",
		Contexts:            []string{"the report was audited by the firm"},
		GroundTruthContexts: []string{"the report was audited by the firm"},
	})
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if _, ok := metrics[MetricFaithfulness]; ok {
		t.Fatal("faithfulness should be absent without an answer")
	}
	if metrics[MetricContextRecall] != 1.0 {
		t.Fatalf("context_recall = %f, want 1.0", metrics[MetricContextRecall])
	}
}

func TestEvaluateEmptyQuestion(t *testing.T) {
	_, err := NewLexical().Evaluate(context.Background(), gateway.EvalInput{})
	if err == nil {
		t.Fatal("expected error for empty question")
	}
	var ke *gateway.KindError
	if !errors.As(err, &ke) || ke.Kind != gateway.KindEvaluationError {
		t.Fatalf("expected evaluation_error, got %v", err)
	}
}
