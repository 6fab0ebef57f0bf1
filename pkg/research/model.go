package research

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// SearchBackend returns candidate documents for a query. Implementations
// must return an empty slice, not an error, when a query simply has no
// results; an error means the backend itself is unavailable.
type SearchBackend interface {
	Search(ctx context.Context, query string) ([]Document, error)
}

// RelevanceModel is the hosted model collaborator. Generate is used for
// query generation and synthesis (creative, higher temperature); Grade
// scores a single document against the topic and is expected to answer
// with a JSON object {"score": 0..1, "reasoning": "..."} at low
// temperature so thresholds stay reproducible.
type RelevanceModel interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Grade(ctx context.Context, topic string, doc Document) (string, error)
}

// LLM adapts a langchaingo model to the RelevanceModel contract.
type LLM struct {
	Model  llms.Model
	Logger *slog.Logger
}

func NewLLM(model llms.Model) *LLM {
	return &LLM{Model: model, Logger: slog.Default()}
}

const gradeTimeout = 30 * time.Second

func (l *LLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := l.Model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}, llms.WithTemperature(0.7))
	if err != nil {
		return "", fmt.Errorf("llm generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}
	return resp.Choices[0].Content, nil
}

func (l *LLM) Grade(ctx context.Context, topic string, doc Document) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, gradeTimeout)
	defer cancel()

	excerpt := doc.Content
	if excerpt == "" {
		excerpt = doc.Snippet
	}
	runes := []rune(excerpt)
	if len(runes) > 500 {
		excerpt = string(runes[:500])
	}

	systemPrompt := `You are a research relevance grader.
Score how relevant the document is to the research topic on a scale from 0 to 1.
Respond with a JSON object: {"score": <number 0..1>, "reasoning": "<one sentence>"}`

	input := fmt.Sprintf("Topic: %s\n\nTitle: %s\nURL: %s\nExcerpt: %s",
		topic, doc.Title, doc.URL, excerpt)

	resp, err := l.Model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, input),
	}, llms.WithJSONMode(), llms.WithTemperature(0))
	if err != nil {
		return "", fmt.Errorf("llm grading failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}
	return resp.Choices[0].Content, nil
}

// generateWithRetry calls Generate and validates the response, retrying
// up to 3 times with linear backoff on failure.
func generateWithRetry(ctx context.Context, model RelevanceModel, logger *slog.Logger, systemPrompt, userPrompt string, validator func(string) error) (string, error) {
	maxRetries := 3
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			logger.Warn("Retrying LLM generation", "attempt", i+1, "last_error", lastErr)
			select {
			case <-time.After(time.Second * time.Duration(i)):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		content, err := model.Generate(ctx, systemPrompt, userPrompt)
		if err != nil {
			lastErr = err
			continue
		}
		if err := validator(content); err != nil {
			lastErr = fmt.Errorf("validation failed: %w", err)
			continue
		}
		return content, nil
	}

	return "", fmt.Errorf("operation failed after %d retries: %w", maxRetries, lastErr)
}
