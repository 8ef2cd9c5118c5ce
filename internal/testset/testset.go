// internal/testset/testset.go
// Package testset loads the fixed question/answer/context set a run scores
// against. Test cases are immutable once loaded.
package testset

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// TestCase is one question with its reference answer and supporting passages.
type TestCase struct {
	ID                  string         `json:"id,omitempty"`
	Question            string         `json:"question"`
	GroundTruth         string         `json:"ground_truth,omitempty"`
	GroundTruthContexts []string       `json:"ground_truth_contexts,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`
}

// envelope covers the wrapped testset format produced by testset generators.
type envelope struct {
	Testset []TestCase `json:"testset"`
}

// Load reads test cases from path. Both a bare JSON array and the wrapped
// {"testset": [...]} form are accepted. Cases without an ID get a stable
// positional one.
func Load(path string) ([]TestCase, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read testset %q: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes and validates a testset document.
func Parse(raw []byte) ([]TestCase, error) {
	var cases []TestCase
	if err := json.Unmarshal(raw, &cases); err != nil {
		var wrapped envelope
		if err2 := json.Unmarshal(raw, &wrapped); err2 != nil || wrapped.Testset == nil {
			return nil, fmt.Errorf("testset is neither a case array nor a testset object: %w", err)
		}
		cases = wrapped.Testset
	}

	if len(cases) == 0 {
		return nil, fmt.Errorf("testset contains no test cases")
	}

	seen := make(map[string]struct{}, len(cases))
	for i := range cases {
		if strings.TrimSpace(cases[i].Question) == "" {
			return nil, fmt.Errorf("test case %d has an empty question", i+1)
		}
		if strings.TrimSpace(cases[i].ID) == "" {
			cases[i].ID = fmt.Sprintf("case-%03d", i+1)
		}
		if _, dup := seen[cases[i].ID]; dup {
			return nil, fmt.Errorf("duplicate test case id %q", cases[i].ID)
		}
		seen[cases[i].ID] = struct{}{}
	}
	return cases, nil
}
