package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

const (
	gradeConcurrency  = 3
	fallbackScore     = 0.3
	fallbackReasoning = "Failed to grade document"
)

// gradeDocuments scores every document that has not been graded yet.
// Grading is idempotent per URL: already-graded documents are skipped, and
// a call with nothing new to grade only emits a log line.
//
// Failure containment is the core contract here: a parse failure, backend
// error or timeout for one document records that document with the
// fallback score and marks it not relevant. One bad grading call never
// aborts the run and never cancels its siblings.
func (e *Engine) gradeDocuments(ctx context.Context, s ResearchState) (Update, error) {
	gradedURLs := make(map[string]bool, len(s.GradedDocuments))
	for _, g := range s.GradedDocuments {
		gradedURLs[g.Document.URL] = true
	}

	var newDocs []Document
	for _, d := range s.SearchResults {
		if !gradedURLs[d.URL] {
			newDocs = append(newDocs, d)
		}
	}

	if len(newDocs) == 0 {
		e.logger.Info("No new documents to grade", "iteration", s.Iteration)
		return Update{
			Status: StatusGrading,
			Logs:   []string{"0 new documents to grade"},
		}, nil
	}

	graded := make([]GradedDocument, len(newDocs))

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, gradeConcurrency)
	for i, doc := range newDocs {
		wg.Add(1)
		go func(i int, doc Document) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()
			graded[i] = e.gradeOne(ctx, s, doc)
		}(i, doc)
	}
	wg.Wait()

	var relevant []GradedDocument
	for _, g := range graded {
		if g.IsRelevant {
			relevant = append(relevant, g)
		}
	}

	e.logger.Info("Grading complete", "graded", len(graded), "relevant", len(relevant))

	return Update{
		GradedDocuments:   graded,
		RelevantDocuments: relevant,
		Status:            StatusGrading,
		Logs: []string{
			fmt.Sprintf("Graded %d new documents, %d relevant (threshold %.2f)",
				len(graded), len(relevant), s.QualityThreshold),
		},
	}, nil
}

func (e *Engine) gradeOne(ctx context.Context, s ResearchState, doc Document) GradedDocument {
	raw, err := e.model.Grade(ctx, s.Topic, doc)
	if err != nil {
		e.logger.Warn("Grading call failed, using fallback", "url", doc.URL, "error", err)
		return fallbackGrade(doc)
	}

	score, reasoning, err := parseGrade(raw)
	if err != nil {
		e.logger.Warn("Grading response unparseable, using fallback", "url", doc.URL, "error", err)
		return fallbackGrade(doc)
	}

	return GradedDocument{
		Document:       doc,
		RelevanceScore: score,
		Reasoning:      reasoning,
		IsRelevant:     score >= s.QualityThreshold,
	}
}

func fallbackGrade(doc Document) GradedDocument {
	return GradedDocument{
		Document:       doc,
		RelevanceScore: fallbackScore,
		Reasoning:      fallbackReasoning,
		IsRelevant:     false,
	}
}

// parseGrade extracts the first well-formed JSON object from a model
// response and reads {score, reasoning} out of it. Models occasionally
// wrap the object in prose or code fences, so we scan for a balanced
// {...} substring instead of unmarshalling the whole response.
func parseGrade(raw string) (float64, string, error) {
	obj, err := firstJSONObject(raw)
	if err != nil {
		return 0, "", err
	}

	var parsed struct {
		Score     float64 `json:"score"`
		Reasoning string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
		return 0, "", fmt.Errorf("json parse error: %w", err)
	}

	score := parsed.Score
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, parsed.Reasoning, nil
}

// firstJSONObject returns the first balanced top-level {...} substring.
func firstJSONObject(raw string) (string, error) {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return "", fmt.Errorf("no JSON object in response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return raw[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unterminated JSON object in response")
}
