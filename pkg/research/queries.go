package research

import (
	"context"
	"fmt"
	"strings"
)

const maxQueriesPerIteration = 3

// generateQueries produces up to three search queries for the current
// iteration. On iteration 0 it asks for diverse angles on the topic; on
// later passes it is a rewrite: the queries already tried are handed back
// as known-insufficient so the model picks different terminology.
func (e *Engine) generateQueries(ctx context.Context, s ResearchState) (Update, error) {
	rewrite := s.Iteration > 0

	var systemPrompt, input string
	if rewrite {
		systemPrompt = fmt.Sprintf(`You are a research query rewriter.
The queries tried so far did not surface enough relevant material.
Generate %d NEW search queries that approach the topic from different angles or with different terminology.
Do not repeat any of the previous queries.
Respond with one query per line, nothing else.`, maxQueriesPerIteration)

		var prior strings.Builder
		for _, q := range s.Queries {
			prior.WriteString("- " + q.Text + "\n")
		}
		input = fmt.Sprintf("Topic: %s\n\nPrevious queries (insufficient):\n%s", s.Topic, prior.String())
	} else {
		systemPrompt = fmt.Sprintf(`You are a research planner.
Generate %d specific search queries to gather information about the topic,
covering foundational, technical, and applied angles.
Respond with one query per line, nothing else.`, maxQueriesPerIteration)

		input = fmt.Sprintf("Topic: %s", s.Topic)
	}

	content, err := generateWithRetry(ctx, e.model, e.logger, systemPrompt, input, func(string) error {
		return nil
	})
	if err != nil {
		return Update{}, collabErr("model", "query generation", err)
	}

	queries := make([]Query, 0, maxQueriesPerIteration)
	for _, line := range strings.Split(content, "\n") {
		text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		if text == "" {
			continue
		}
		queries = append(queries, Query{Text: text, Iteration: s.Iteration, IsRewrite: rewrite})
		if len(queries) == maxQueriesPerIteration {
			break
		}
	}

	status := StatusGeneratingQueries
	logLine := fmt.Sprintf("Generated %d queries for iteration %d", len(queries), s.Iteration)
	if rewrite {
		status = StatusRewriting
		logLine = fmt.Sprintf("Rewrote queries: %d new queries for iteration %d", len(queries), s.Iteration)
	}
	e.logger.Info("Query generation complete", "iteration", s.Iteration, "count", len(queries), "rewrite", rewrite)

	return Update{
		Queries: queries,
		Status:  status,
		Logs:    []string{logLine},
	}, nil
}
