package research

// Update is a partial state returned by a workflow node. Each field has a
// fixed merge rule applied by merge():
//
//   - Queries, GradedDocuments, RelevantDocuments: appended in order.
//   - SearchResults: unioned into state by URL, first-seen wins.
//   - Logs: appended. Nodes only emit their own new lines; history is
//     owned by the merge layer and can never be truncated by a node.
//   - Iteration, NeedsMoreResearch, Synthesis, Error: replaced when the
//     pointer is non-nil.
//   - Status: replaced when non-empty.
type Update struct {
	Queries           []Query
	SearchResults     []Document
	GradedDocuments   []GradedDocument
	RelevantDocuments []GradedDocument
	Iteration         *int
	NeedsMoreResearch *bool
	Synthesis         *string
	Status            Status
	Error             *string
	Logs              []string
}

// merge applies an Update on top of a state snapshot and returns the new
// state. The input state is not modified; slices are copied before being
// appended to so snapshots handed to stream consumers stay stable.
func merge(s ResearchState, u Update) ResearchState {
	if len(u.Queries) > 0 {
		s.Queries = append(copyOf(s.Queries), u.Queries...)
	}
	if len(u.SearchResults) > 0 {
		s.SearchResults = unionByURL(s.SearchResults, u.SearchResults)
	}
	if len(u.GradedDocuments) > 0 {
		s.GradedDocuments = append(copyOf(s.GradedDocuments), u.GradedDocuments...)
	}
	if len(u.RelevantDocuments) > 0 {
		s.RelevantDocuments = append(copyOf(s.RelevantDocuments), u.RelevantDocuments...)
	}
	if u.Iteration != nil {
		s.Iteration = *u.Iteration
	}
	if u.NeedsMoreResearch != nil {
		s.NeedsMoreResearch = *u.NeedsMoreResearch
	}
	if u.Synthesis != nil {
		s.Synthesis = *u.Synthesis
	}
	if u.Status != "" {
		s.Status = u.Status
	}
	if u.Error != nil {
		s.Error = *u.Error
	}
	if len(u.Logs) > 0 {
		s.Logs = append(copyOf(s.Logs), u.Logs...)
	}
	return s
}

// unionByURL merges incoming documents into existing, keeping the first
// document seen for each URL. The existing slice is not modified.
func unionByURL(existing, incoming []Document) []Document {
	out := copyOf(existing)
	seen := make(map[string]bool, len(existing)+len(incoming))
	for _, d := range existing {
		seen[d.URL] = true
	}
	for _, d := range incoming {
		if seen[d.URL] {
			continue
		}
		seen[d.URL] = true
		out = append(out, d)
	}
	return out
}

func copyOf[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

func intPtr(v int) *int       { return &v }
func boolPtr(v bool) *bool    { return &v }
func strPtr(v string) *string { return &v }
