package research

// Stats summarizes a run for the API layer.
type Stats struct {
	Iterations        int `json:"iterations"`
	QueriesGenerated  int `json:"queries_generated"`
	DocumentsSearched int `json:"documents_searched"`
	DocumentsGraded   int `json:"documents_graded"`
	RelevantDocuments int `json:"relevant_documents"`
}

// Source is a citation entry for the final report.
type Source struct {
	Title          string  `json:"title"`
	URL            string  `json:"url"`
	RelevanceScore float64 `json:"relevance_score"`
}

// Result is the externally visible summary of a terminal ResearchState.
type Result struct {
	Topic     string   `json:"topic"`
	Status    Status   `json:"status"`
	Synthesis string   `json:"synthesis,omitempty"`
	Error     string   `json:"error,omitempty"`
	Stats     Stats    `json:"stats"`
	Sources   []Source `json:"sources"`
	Logs      []string `json:"logs"`
}

// Report derives the result summary from a state without re-running
// anything. Iterations counts completed cycles, so it is Iteration+1
// once the workflow has run at all.
func (s ResearchState) Report() Result {
	iterations := 0
	if s.Status != StatusIdle {
		iterations = s.Iteration + 1
	}

	sources := make([]Source, 0, len(s.RelevantDocuments))
	for _, g := range s.RelevantDocuments {
		sources = append(sources, Source{
			Title:          g.Document.Title,
			URL:            g.Document.URL,
			RelevanceScore: g.RelevanceScore,
		})
	}

	return Result{
		Topic:     s.Topic,
		Status:    s.Status,
		Synthesis: s.Synthesis,
		Error:     s.Error,
		Stats: Stats{
			Iterations:        iterations,
			QueriesGenerated:  len(s.Queries),
			DocumentsSearched: len(s.SearchResults),
			DocumentsGraded:   len(s.GradedDocuments),
			RelevantDocuments: len(s.RelevantDocuments),
		},
		Sources: sources,
		Logs:    s.Logs,
	}
}
