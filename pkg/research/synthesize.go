package research

import (
	"context"
	"fmt"
	"strings"
)

// NoEvidenceSynthesis is returned verbatim when a run ends without a
// single relevant document. The model is not called in that case.
const NoEvidenceSynthesis = "I was unable to find relevant sources on this topic. " +
	"Please try rephrasing the topic or broadening its scope."

// synthesize composes the final report from the accumulated relevant
// documents and the run statistics.
func (e *Engine) synthesize(ctx context.Context, s ResearchState) (Update, error) {
	if len(s.RelevantDocuments) == 0 {
		e.logger.Info("No relevant documents, skipping synthesis call")
		return Update{
			Synthesis: strPtr(NoEvidenceSynthesis),
			Status:    StatusComplete,
			Logs:      []string{"Synthesis skipped: no relevant documents found"},
		}, nil
	}

	var sources strings.Builder
	for i, g := range s.RelevantDocuments {
		excerpt := g.Document.Content
		if excerpt == "" {
			excerpt = g.Document.Snippet
		}
		runes := []rune(excerpt)
		if len(runes) > 500 {
			excerpt = string(runes[:500])
		}
		sources.WriteString(fmt.Sprintf("[%d] %s\nURL: %s\nRelevance: %.0f%%\n%s\n\n",
			i+1, g.Document.Title, g.Document.URL, g.RelevanceScore*100, excerpt))
	}

	systemPrompt := `You are a research writer.
Compose a structured research report in Markdown with these sections:
Introduction, Key Findings, Gaps and Open Questions, Conclusion.
Cite sources by their [n] markers.`

	input := fmt.Sprintf(`Topic: %s

Run statistics:
- Iterations: %d
- Queries used: %d
- Documents reviewed: %d
- Relevant documents: %d

Sources:
%s`,
		s.Topic, s.Iteration+1, len(s.Queries), len(s.GradedDocuments),
		len(s.RelevantDocuments), sources.String())

	report, err := e.model.Generate(ctx, systemPrompt, input)
	if err != nil {
		return Update{}, collabErr("model", "synthesis", err)
	}

	e.logger.Info("Synthesis complete", "length", len(report), "sources", len(s.RelevantDocuments))

	return Update{
		Synthesis: strPtr(report),
		Status:    StatusComplete,
		Logs: []string{
			fmt.Sprintf("Synthesized report from %d relevant documents", len(s.RelevantDocuments)),
		},
	}, nil
}
