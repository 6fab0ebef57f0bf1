package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
)

// fakeSearch is a scriptable SearchBackend for tests.
type fakeSearch struct {
	fn    func(ctx context.Context, query string) ([]Document, error)
	calls atomic.Int64
}

func (f *fakeSearch) Search(ctx context.Context, query string) ([]Document, error) {
	f.calls.Add(1)
	return f.fn(ctx, query)
}

// fakeModel is a scriptable RelevanceModel for tests.
type fakeModel struct {
	generateFn    func(system, input string) (string, error)
	gradeFn       func(topic string, doc Document) (string, error)
	generateCalls atomic.Int64
	gradeCalls    atomic.Int64
}

func (f *fakeModel) Generate(_ context.Context, system, input string) (string, error) {
	f.generateCalls.Add(1)
	return f.generateFn(system, input)
}

func (f *fakeModel) Grade(_ context.Context, topic string, doc Document) (string, error) {
	f.gradeCalls.Add(1)
	return f.gradeFn(topic, doc)
}

func docsFor(query string, n int) []Document {
	docs := make([]Document, n)
	for i := range docs {
		docs[i] = Document{
			Title:   fmt.Sprintf("%s result %d", query, i),
			URL:     fmt.Sprintf("https://example.org/%s/%d", query, i),
			Snippet: "snippet",
		}
	}
	return docs
}

// threeQueries answers query-generation prompts with three lines and
// synthesis prompts with a fixed report.
func threeQueries(system, _ string) (string, error) {
	if strings.Contains(system, "research writer") {
		return "## Report\n\nFindings.", nil
	}
	return "alpha\nbeta\ngamma", nil
}

func TestRunSinglePass(t *testing.T) {
	search := &fakeSearch{fn: func(_ context.Context, q string) ([]Document, error) {
		return docsFor(q, 1), nil
	}}
	model := &fakeModel{
		generateFn: threeQueries,
		gradeFn: func(_ string, _ Document) (string, error) {
			return `{"score": 0.9, "reasoning": "on topic"}`, nil
		},
	}

	state, err := NewEngine(search, model).Run(context.Background(), "test topic", Config{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if state.Status != StatusComplete {
		t.Errorf("Status = %q, want %q", state.Status, StatusComplete)
	}
	if state.Iteration != 0 {
		t.Errorf("Iteration = %d, want 0", state.Iteration)
	}
	if len(state.Queries) != 3 {
		t.Errorf("len(Queries) = %d, want 3", len(state.Queries))
	}
	if len(state.RelevantDocuments) != 3 {
		t.Errorf("len(RelevantDocuments) = %d, want 3", len(state.RelevantDocuments))
	}
	if state.NeedsMoreResearch {
		t.Error("NeedsMoreResearch = true after a sufficient first pass")
	}
	if !strings.Contains(state.Synthesis, "Report") {
		t.Errorf("Synthesis = %q, want the model report", state.Synthesis)
	}
	if got := model.generateCalls.Load(); got != 2 {
		t.Errorf("generate calls = %d, want 2 (queries + synthesis)", got)
	}
}

func TestRunLoopsThenSucceeds(t *testing.T) {
	firstPass := func(url string) bool {
		return strings.Contains(url, "alpha") || strings.Contains(url, "beta") || strings.Contains(url, "gamma")
	}

	search := &fakeSearch{fn: func(_ context.Context, q string) ([]Document, error) {
		return docsFor(q, 1), nil
	}}
	model := &fakeModel{
		generateFn: func(system, input string) (string, error) {
			if strings.Contains(system, "research writer") {
				return "report", nil
			}
			if strings.Contains(system, "rewriter") {
				if !strings.Contains(input, "alpha") {
					return "", fmt.Errorf("rewrite prompt missing previous queries: %q", input)
				}
				return "delta\nepsilon\nzeta", nil
			}
			return "alpha\nbeta\ngamma", nil
		},
		// First-iteration documents grade below threshold, the rewritten
		// queries' documents grade above it.
		gradeFn: func(_ string, doc Document) (string, error) {
			if firstPass(doc.URL) {
				return `{"score": 0.2, "reasoning": "off topic"}`, nil
			}
			return `{"score": 0.8, "reasoning": "on topic"}`, nil
		},
	}

	state, err := NewEngine(search, model).Run(context.Background(), "looping topic", Config{MaxIterations: 3})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if state.Status != StatusComplete {
		t.Errorf("Status = %q, want %q", state.Status, StatusComplete)
	}
	if state.Iteration != 1 {
		t.Errorf("Iteration = %d, want 1", state.Iteration)
	}
	if len(state.Queries) != 6 {
		t.Errorf("len(Queries) = %d, want 6", len(state.Queries))
	}
	var rewrites int
	for _, q := range state.Queries {
		if q.IsRewrite {
			rewrites++
		}
	}
	if rewrites != 3 {
		t.Errorf("rewrite queries = %d, want 3", rewrites)
	}
	if len(state.RelevantDocuments) != 3 {
		t.Errorf("len(RelevantDocuments) = %d, want 3", len(state.RelevantDocuments))
	}
	if len(state.GradedDocuments) != 6 {
		t.Errorf("len(GradedDocuments) = %d, want 6", len(state.GradedDocuments))
	}
}

func TestRunBudgetExhaustedWithoutEvidence(t *testing.T) {
	search := &fakeSearch{fn: func(_ context.Context, q string) ([]Document, error) {
		return docsFor(q, 1), nil
	}}
	model := &fakeModel{
		generateFn: threeQueries,
		gradeFn: func(_ string, _ Document) (string, error) {
			return `{"score": 0.1, "reasoning": "irrelevant"}`, nil
		},
	}

	state, err := NewEngine(search, model).Run(context.Background(), "hopeless topic", Config{MaxIterations: 2})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if state.Status != StatusComplete {
		t.Errorf("Status = %q, want %q", state.Status, StatusComplete)
	}
	if state.Iteration != 1 {
		t.Errorf("Iteration = %d, want 1 (budget of 2)", state.Iteration)
	}
	if len(state.RelevantDocuments) != 0 {
		t.Errorf("len(RelevantDocuments) = %d, want 0", len(state.RelevantDocuments))
	}
	if state.Synthesis != NoEvidenceSynthesis {
		t.Errorf("Synthesis = %q, want the no-evidence message", state.Synthesis)
	}
}

func TestRunNoEvidenceSkipsSynthesisCall(t *testing.T) {
	search := &fakeSearch{fn: func(_ context.Context, _ string) ([]Document, error) {
		return nil, nil
	}}
	model := &fakeModel{
		generateFn: threeQueries,
		gradeFn: func(_ string, _ Document) (string, error) {
			t.Error("Grade called with no search results")
			return "", nil
		},
	}

	state, err := NewEngine(search, model).Run(context.Background(), "empty topic", Config{MaxIterations: 1})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if state.Synthesis != NoEvidenceSynthesis {
		t.Errorf("Synthesis = %q, want the no-evidence message", state.Synthesis)
	}
	// Only the query-generation call; synthesis must not hit the model.
	if got := model.generateCalls.Load(); got != 1 {
		t.Errorf("generate calls = %d, want 1", got)
	}
}

func TestRunSearchFailureIsFatal(t *testing.T) {
	backendErr := errors.New("connection refused")
	search := &fakeSearch{fn: func(_ context.Context, _ string) ([]Document, error) {
		return nil, backendErr
	}}
	model := &fakeModel{generateFn: threeQueries}

	state, err := NewEngine(search, model).Run(context.Background(), "doomed topic", Config{})
	if err == nil {
		t.Fatal("Run() error = nil, want search failure")
	}

	var cerr *CollaboratorError
	if !errors.As(err, &cerr) {
		t.Fatalf("error type = %T, want *CollaboratorError", err)
	}
	if !errors.Is(err, backendErr) {
		t.Error("error chain does not include the backend error")
	}
	if state.Status != StatusError {
		t.Errorf("Status = %q, want %q", state.Status, StatusError)
	}
	if state.Error == "" {
		t.Error("state.Error is empty after a fatal node failure")
	}
}

func TestRunTerminationDeterminism(t *testing.T) {
	// An explicit minimum of zero stops at the first decision, before
	// any rewrite, regardless of grading outcomes.
	search := &fakeSearch{fn: func(_ context.Context, q string) ([]Document, error) {
		return docsFor(q, 1), nil
	}}
	model := &fakeModel{
		generateFn: threeQueries,
		gradeFn: func(_ string, _ Document) (string, error) {
			return `{"score": 0.0, "reasoning": "irrelevant"}`, nil
		},
	}

	state, err := NewEngine(search, model).Run(context.Background(), "quick topic", Config{MaxIterations: 5, MinRelevantDocs: intPtr(0)})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if state.Iteration != 0 {
		t.Errorf("Iteration = %d, want 0", state.Iteration)
	}
	if state.Status != StatusComplete {
		t.Errorf("Status = %q, want %q", state.Status, StatusComplete)
	}
}

func TestRunDeduplicatesSearchResults(t *testing.T) {
	// Every query returns the same document; only one copy may survive.
	shared := Document{Title: "Shared", URL: "https://example.org/shared", Snippet: "s"}
	search := &fakeSearch{fn: func(_ context.Context, _ string) ([]Document, error) {
		return []Document{shared}, nil
	}}
	model := &fakeModel{
		generateFn: threeQueries,
		gradeFn: func(_ string, _ Document) (string, error) {
			return `{"score": 0.1, "reasoning": "irrelevant"}`, nil
		},
	}

	state, err := NewEngine(search, model).Run(context.Background(), "duplicate topic", Config{MaxIterations: 2})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(state.SearchResults) != 1 {
		t.Errorf("len(SearchResults) = %d, want 1", len(state.SearchResults))
	}
	if len(state.GradedDocuments) != 1 {
		t.Errorf("len(GradedDocuments) = %d, want 1 (grading is idempotent per URL)", len(state.GradedDocuments))
	}
	if got := model.gradeCalls.Load(); got != 1 {
		t.Errorf("grade calls = %d, want 1", got)
	}
}

func TestRunValidation(t *testing.T) {
	tests := []struct {
		name  string
		topic string
	}{
		{"Empty", ""},
		{"Whitespace only", "   \t\n"},
		{"Too short", "ab"},
		{"Too long", strings.Repeat("x", 501)},
	}

	engine := NewEngine(&fakeSearch{}, &fakeModel{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Run(context.Background(), tt.topic, Config{})
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("Run(%q) error = %v, want *ValidationError", tt.topic, err)
			}
		})
	}
}

func TestValidateTopicAcceptsBounds(t *testing.T) {
	for _, topic := range []string{"abc", strings.Repeat("x", 500), "  padded topic  "} {
		if err := ValidateTopic(topic); err != nil {
			t.Errorf("ValidateTopic(%q) = %v, want nil", topic, err)
		}
	}
}

func TestStreamEventOrder(t *testing.T) {
	search := &fakeSearch{fn: func(_ context.Context, q string) ([]Document, error) {
		return docsFor(q, 1), nil
	}}
	model := &fakeModel{
		generateFn: threeQueries,
		gradeFn: func(_ string, _ Document) (string, error) {
			return `{"score": 0.9, "reasoning": "on topic"}`, nil
		},
	}

	var nodes []string
	var last StreamEvent
	for event, err := range NewEngine(search, model).Stream(context.Background(), "stream topic", Config{}) {
		if err != nil {
			t.Fatalf("stream error at %q: %v", event.Node, err)
		}
		nodes = append(nodes, event.Node)
		last = event
	}

	want := []string{NodeGenerateQueries, NodeSearch, NodeGradeDocuments, NodeDecide, NodeSynthesize, NodeEnd}
	if len(nodes) != len(want) {
		t.Fatalf("event nodes = %v, want %v", nodes, want)
	}
	for i := range want {
		if nodes[i] != want[i] {
			t.Errorf("event %d node = %q, want %q", i, nodes[i], want[i])
		}
	}
	if last.State.Status != StatusComplete {
		t.Errorf("final state status = %q, want %q", last.State.Status, StatusComplete)
	}
}

func TestStreamEarlyAbandonment(t *testing.T) {
	search := &fakeSearch{fn: func(_ context.Context, q string) ([]Document, error) {
		return docsFor(q, 1), nil
	}}
	model := &fakeModel{
		generateFn: threeQueries,
		gradeFn: func(_ string, _ Document) (string, error) {
			return `{"score": 0.9, "reasoning": "on topic"}`, nil
		},
	}

	for event, err := range NewEngine(search, model).Stream(context.Background(), "abandoned topic", Config{}) {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		if event.Node == NodeGenerateQueries {
			break
		}
	}

	// No node after the abandoned one may start.
	if got := search.calls.Load(); got != 0 {
		t.Errorf("search calls after abandonment = %d, want 0", got)
	}
}

func TestStreamErrorYieldsEndMarker(t *testing.T) {
	search := &fakeSearch{fn: func(_ context.Context, _ string) ([]Document, error) {
		return nil, errors.New("backend down")
	}}
	model := &fakeModel{generateFn: threeQueries}

	var nodes []string
	var streamErr error
	for event, err := range NewEngine(search, model).Stream(context.Background(), "failing topic", Config{}) {
		nodes = append(nodes, event.Node)
		if err != nil {
			streamErr = err
		}
	}

	want := []string{NodeGenerateQueries, NodeSearch, NodeEnd}
	if len(nodes) != len(want) {
		t.Fatalf("event nodes = %v, want %v", nodes, want)
	}
	for i := range want {
		if nodes[i] != want[i] {
			t.Errorf("event %d node = %q, want %q", i, nodes[i], want[i])
		}
	}

	var cerr *CollaboratorError
	if !errors.As(streamErr, &cerr) {
		t.Errorf("stream error type = %T, want *CollaboratorError", streamErr)
	}
}

func TestStreamStatesAreStableSnapshots(t *testing.T) {
	search := &fakeSearch{fn: func(_ context.Context, q string) ([]Document, error) {
		return docsFor(q, 1), nil
	}}
	model := &fakeModel{
		generateFn: threeQueries,
		gradeFn: func(_ string, _ Document) (string, error) {
			return `{"score": 0.9, "reasoning": "on topic"}`, nil
		},
	}

	var snapshots []StreamEvent
	for event, err := range NewEngine(search, model).Stream(context.Background(), "snapshot topic", Config{}) {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		snapshots = append(snapshots, event)
	}

	// Earlier snapshots must not have been grown by later merges.
	if got := len(snapshots[0].State.Queries); got != 3 {
		t.Errorf("first snapshot queries = %d, want 3", got)
	}
	if got := len(snapshots[0].State.SearchResults); got != 0 {
		t.Errorf("first snapshot search results = %d, want 0", got)
	}
	if got := len(snapshots[1].State.GradedDocuments); got != 0 {
		t.Errorf("second snapshot graded documents = %d, want 0", got)
	}
}
