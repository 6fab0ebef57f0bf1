package research

import (
	"context"
	"fmt"
	"sync"
)

// executeSearches runs every query belonging to the current iteration
// against the search backend. The per-query calls are independent reads,
// so they fan out concurrently and join before the node returns. Results
// are deduplicated by URL within the call; the merge layer unions them
// with the history, first-seen wins. Any backend error fails the node.
func (e *Engine) executeSearches(ctx context.Context, s ResearchState) (Update, error) {
	var current []Query
	for _, q := range s.Queries {
		if q.Iteration == s.Iteration {
			current = append(current, q)
		}
	}

	type queryResult struct {
		docs []Document
		err  error
	}
	results := make([]queryResult, len(current))

	var wg sync.WaitGroup
	for i, q := range current {
		wg.Add(1)
		go func(i int, query string) {
			defer wg.Done()
			docs, err := e.search.Search(ctx, query)
			if err != nil {
				e.logger.Error("Search failed", "query", query, "error", err)
				results[i] = queryResult{err: err}
				return
			}
			e.logger.Info("Search complete", "query", query, "count", len(docs))
			results[i] = queryResult{docs: docs}
		}(i, q.Text)
	}
	wg.Wait()

	// Join in query order so the deduplicated set is deterministic.
	var found []Document
	seen := make(map[string]bool)
	for _, r := range results {
		if r.err != nil {
			return Update{}, collabErr("search backend", "search", r.err)
		}
		for _, d := range r.docs {
			if seen[d.URL] {
				continue
			}
			seen[d.URL] = true
			found = append(found, d)
		}
	}

	return Update{
		SearchResults: found,
		Status:        StatusSearching,
		Logs: []string{
			fmt.Sprintf("Found %d results across %d queries in iteration %d", len(found), len(current), s.Iteration),
		},
	}, nil
}
