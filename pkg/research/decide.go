package research

import (
	"context"
	"fmt"
)

// decide is the termination oracle for the cycle. Precedence:
// sufficiency first, then the iteration budget, then continue. This is
// the only place Iteration is incremented, and only on the continue
// branch, so the loop runs at most MaxIterations times.
func (e *Engine) decide(_ context.Context, s ResearchState) (Update, error) {
	switch {
	case len(s.RelevantDocuments) >= s.MinRelevantDocs:
		e.logger.Info("Sufficient evidence gathered", "relevant", len(s.RelevantDocuments), "min", s.MinRelevantDocs)
		return Update{
			NeedsMoreResearch: boolPtr(false),
			Status:            StatusSynthesizing,
			Logs: []string{
				fmt.Sprintf("Decision: stop, %d relevant documents meet the minimum of %d",
					len(s.RelevantDocuments), s.MinRelevantDocs),
			},
		}, nil

	case s.Iteration >= s.MaxIterations-1:
		e.logger.Info("Iteration budget exhausted", "iteration", s.Iteration, "max", s.MaxIterations)
		return Update{
			NeedsMoreResearch: boolPtr(false),
			Status:            StatusSynthesizing,
			Logs: []string{
				fmt.Sprintf("Decision: stop, iteration budget of %d exhausted with %d relevant documents",
					s.MaxIterations, len(s.RelevantDocuments)),
			},
		}, nil

	default:
		e.logger.Info("Continuing research", "iteration", s.Iteration, "relevant", len(s.RelevantDocuments))
		return Update{
			NeedsMoreResearch: boolPtr(true),
			Iteration:         intPtr(s.Iteration + 1),
			Logs: []string{
				fmt.Sprintf("Decision: continue, only %d of %d relevant documents, starting iteration %d",
					len(s.RelevantDocuments), s.MinRelevantDocs, s.Iteration+1),
			},
		}, nil
	}
}
