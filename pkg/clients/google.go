package clients

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/tmc/langchaingo/llms/googleai"
)

// ModelType is an enum for the available Google AI models.
type ModelType string

const (
	// DefaultModel is the fast model used for grading and query generation.
	DefaultModel ModelType = "gemini-3-flash-preview"
	// ProModel is the reasoning model used for synthesis-heavy workloads.
	ProModel ModelType = "gemini-3-pro-preview"
)

// GoogleAI builds a langchaingo client for the given model. The API key
// comes from GOOGLE_API_KEY, with .env as a convenience fallback.
func GoogleAI(ctx context.Context, model ModelType) (*googleai.GoogleAI, error) {
	_ = godotenv.Load()

	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY is not set")
	}

	switch model {
	case DefaultModel, ProModel:
	default:
		return nil, fmt.Errorf("invalid model type: %s", model)
	}

	llm, err := googleai.New(ctx, googleai.WithAPIKey(apiKey), googleai.WithDefaultModel(string(model)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google AI client: %w", err)
	}
	return llm, nil
}
