package research

import (
	"context"
	"iter"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// Node names as they appear in streamed updates.
const (
	NodeGenerateQueries = "generate_queries"
	NodeSearch          = "search"
	NodeGradeDocuments  = "grade_documents"
	NodeDecide          = "decide"
	NodeSynthesize      = "synthesize"
	NodeEnd             = "end"
)

// StreamEvent is one streamed workflow update: the node that just ran
// and the full state after its partial update was merged. The final
// event carries Node == NodeEnd.
type StreamEvent struct {
	Node  string        `json:"node"`
	State ResearchState `json:"state"`
}

// Engine owns the research state machine. The workflow is a fixed
// sequence of nodes with a single conditional edge after the decision
// node: back to query generation when more research is needed, otherwise
// on to synthesis.
type Engine struct {
	search SearchBackend
	model  RelevanceModel
	logger *slog.Logger
}

func NewEngine(search SearchBackend, model RelevanceModel) *Engine {
	return &Engine{
		search: search,
		model:  model,
		logger: slog.Default(),
	}
}

// WithLogger replaces the engine's logger, e.g. with a per-job handler.
func (e *Engine) WithLogger(logger *slog.Logger) *Engine {
	clone := *e
	clone.logger = logger
	return &clone
}

const (
	minTopicLen = 3
	maxTopicLen = 500
)

// ValidateTopic checks the caller-supplied topic against the length
// bounds before any workflow work begins.
func ValidateTopic(topic string) error {
	topic = strings.TrimSpace(topic)
	n := utf8.RuneCountInString(topic)
	switch {
	case n == 0:
		return &ValidationError{Field: "topic", Reason: "must not be empty"}
	case n < minTopicLen:
		return &ValidationError{Field: "topic", Reason: "must be at least 3 characters"}
	case n > maxTopicLen:
		return &ValidationError{Field: "topic", Reason: "must be at most 500 characters"}
	}
	return nil
}

type node struct {
	name string
	fn   func(context.Context, ResearchState) (Update, error)
}

// next returns the node to execute after the one that just ran, or nil
// at the terminal node. The decide node holds the only conditional edge.
func (e *Engine) next(name string, s ResearchState) *node {
	switch name {
	case NodeGenerateQueries:
		return &node{NodeSearch, e.executeSearches}
	case NodeSearch:
		return &node{NodeGradeDocuments, e.gradeDocuments}
	case NodeGradeDocuments:
		return &node{NodeDecide, e.decide}
	case NodeDecide:
		if s.NeedsMoreResearch {
			return &node{NodeGenerateQueries, e.generateQueries}
		}
		return &node{NodeSynthesize, e.synthesize}
	default:
		return nil
	}
}

// Run executes the full workflow and blocks until a terminal status.
// The returned state always carries a status; on a node failure it is
// StatusError with the cause in state.Error, and the error is also
// returned so callers can inspect its type.
func (e *Engine) Run(ctx context.Context, topic string, cfg Config) (ResearchState, error) {
	if err := ValidateTopic(topic); err != nil {
		return ResearchState{}, err
	}

	state := NewState(strings.TrimSpace(topic), cfg)
	e.logger.Info("Starting research", "topic", state.Topic, "max_iterations", state.MaxIterations)

	current := &node{NodeGenerateQueries, e.generateQueries}
	for current != nil {
		update, err := current.fn(ctx, state)
		if err != nil {
			e.logger.Error("Node failed", "node", current.name, "error", err)
			state = merge(state, Update{
				Status: StatusError,
				Error:  strPtr(err.Error()),
				Logs:   []string{"Run aborted in " + current.name + ": " + err.Error()},
			})
			return state, err
		}
		state = merge(state, update)
		current = e.next(current.name, state)
	}

	return state, nil
}

// Stream executes the workflow lazily, yielding one event after each
// node in execution order and a final NodeEnd event after the terminal
// node. The sequence is finite and non-restartable. Cancellation is
// weak: once the consumer stops pulling, no further node starts, but the
// node in flight runs to completion.
func (e *Engine) Stream(ctx context.Context, topic string, cfg Config) iter.Seq2[StreamEvent, error] {
	return func(yield func(StreamEvent, error) bool) {
		if err := ValidateTopic(topic); err != nil {
			yield(StreamEvent{}, err)
			return
		}

		state := NewState(strings.TrimSpace(topic), cfg)
		e.logger.Info("Starting research stream", "topic", state.Topic, "max_iterations", state.MaxIterations)

		current := &node{NodeGenerateQueries, e.generateQueries}
		for current != nil {
			update, err := current.fn(ctx, state)
			if err != nil {
				e.logger.Error("Node failed", "node", current.name, "error", err)
				state = merge(state, Update{
					Status: StatusError,
					Error:  strPtr(err.Error()),
					Logs:   []string{"Run aborted in " + current.name + ": " + err.Error()},
				})
				if !yield(StreamEvent{Node: current.name, State: state}, err) {
					return
				}
				yield(StreamEvent{Node: NodeEnd, State: state}, nil)
				return
			}
			state = merge(state, update)
			if !yield(StreamEvent{Node: current.name, State: state}, nil) {
				return
			}
			current = e.next(current.name, state)
		}

		yield(StreamEvent{Node: NodeEnd, State: state}, nil)
	}
}
