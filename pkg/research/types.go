package research

// Status tracks where a research session currently is in the workflow.
type Status string

const (
	StatusIdle              Status = "idle"
	StatusGeneratingQueries Status = "generating_queries"
	StatusSearching         Status = "searching"
	StatusGrading           Status = "grading"
	StatusRewriting         Status = "rewriting"
	StatusSynthesizing      Status = "synthesizing"
	StatusComplete          Status = "complete"
	StatusError             Status = "error"
)

// Query is a single search query issued during one iteration of the loop.
type Query struct {
	Text      string `json:"text"`
	Iteration int    `json:"iteration"`
	IsRewrite bool   `json:"is_rewrite"`
}

// Document is a candidate source returned by a search backend.
// Content is only populated when the full text has been fetched.
type Document struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Content string `json:"content,omitempty"`
}

// GradedDocument pairs a document with its relevance assessment.
type GradedDocument struct {
	Document       Document `json:"document"`
	RelevanceScore float64  `json:"relevance_score"`
	Reasoning      string   `json:"reasoning"`
	IsRelevant     bool     `json:"is_relevant"`
}

// ResearchState is the single record threaded through the workflow.
// Nodes never mutate it in place; they return an Update that the engine
// merges onto a copy (see merge in state.go).
type ResearchState struct {
	Topic             string           `json:"topic"`
	Queries           []Query          `json:"queries"`
	SearchResults     []Document       `json:"search_results"`
	GradedDocuments   []GradedDocument `json:"graded_documents"`
	RelevantDocuments []GradedDocument `json:"relevant_documents"`
	Iteration         int              `json:"iteration"`
	MaxIterations     int              `json:"max_iterations"`
	NeedsMoreResearch bool             `json:"needs_more_research"`
	QualityThreshold  float64          `json:"quality_threshold"`
	MinRelevantDocs   int              `json:"min_relevant_docs"`
	Synthesis         string           `json:"synthesis,omitempty"`
	Status            Status           `json:"status"`
	Error             string           `json:"error,omitempty"`
	Logs              []string         `json:"logs"`
}

// Config holds the per-run overrides for the stopping criteria.
// MinRelevantDocs is a pointer because zero is a valid explicit value
// (a run that should stop after its first decision); nil means "use the
// default".
type Config struct {
	MaxIterations    int
	QualityThreshold float64
	MinRelevantDocs  *int
}

const (
	DefaultMaxIterations    = 3
	DefaultQualityThreshold = 0.6
	DefaultMinRelevantDocs  = 3
)

// NewState seeds a fresh session state for a topic.
func NewState(topic string, cfg Config) ResearchState {
	maxIter := cfg.MaxIterations
	if maxIter < 1 {
		maxIter = DefaultMaxIterations
	}
	threshold := cfg.QualityThreshold
	if threshold <= 0 {
		threshold = DefaultQualityThreshold
	}
	minDocs := DefaultMinRelevantDocs
	if cfg.MinRelevantDocs != nil && *cfg.MinRelevantDocs >= 0 {
		minDocs = *cfg.MinRelevantDocs
	}
	return ResearchState{
		Topic:            topic,
		MaxIterations:    maxIter,
		QualityThreshold: threshold,
		MinRelevantDocs:  minDocs,
		Status:           StatusIdle,
	}
}
