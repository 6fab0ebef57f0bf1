package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mbecker/deep-research/pkg/config"
	"github.com/mbecker/deep-research/pkg/database"
	"github.com/mbecker/deep-research/pkg/embeddings"
	"github.com/mbecker/deep-research/pkg/vectorstore"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"
)

// SourceToolset exposes the indexed research sources to the chat agent:
// semantic search over chunks, and full-text retrieval for a single
// source URL.
type SourceToolset struct {
	DB       *database.PostgresDB
	Embedder *embeddings.GoogleEmbedder
	config   *config.Config
}

func NewSourceToolset(db *database.PostgresDB, embedder *embeddings.GoogleEmbedder, cfg *config.Config) *SourceToolset {
	return &SourceToolset{
		DB:       db,
		Embedder: embedder,
		config:   cfg,
	}
}

func (t *SourceToolset) Name() string {
	return "source_tools"
}

func (t *SourceToolset) Tools(ctx agent.ReadonlyContext) ([]tool.Tool, error) {
	searchTool, err := functiontool.New[SearchSourcesArgs, SearchSourcesResp](
		functiontool.Config{
			Name:        "search_sources",
			Description: "Search the indexed research sources using semantic search.",
		},
		t.searchSourcesTool,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create search tool: %w", err)
	}

	getSourceTool, err := functiontool.New[GetSourceArgs, GetSourceResp](
		functiontool.Config{
			Name:        "get_source",
			Description: "Retrieve the full indexed text of one research source by its URL.",
		},
		t.getSourceTool,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create get_source tool: %w", err)
	}

	return []tool.Tool{searchTool, getSourceTool}, nil
}

type SearchSourcesArgs struct {
	Query  string `json:"query" description:"The search query"`
	TopK   int    `json:"topK,omitempty" description:"Number of results to return (default 5)"`
	Source string `json:"source,omitempty" description:"Optional source URL filter"`
}

type SearchSourcesResp struct {
	Results string `json:"results"`
}

func (t *SourceToolset) searchSourcesTool(ctx tool.Context, args SearchSourcesArgs) (SearchSourcesResp, error) {
	return t.SearchSources(ctx, args)
}

// SearchSources embeds the query and runs a similarity search over the
// research source chunks.
func (t *SourceToolset) SearchSources(ctx context.Context, args SearchSourcesArgs) (SearchSourcesResp, error) {
	if args.TopK == 0 {
		args.TopK = 5
	}

	slog.Info("Searching research sources", "query", args.Query, "topK", args.TopK, "source", args.Source)

	queryEmbedding, err := t.Embedder.EmbedText(ctx, args.Query)
	if err != nil {
		return SearchSourcesResp{}, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	store, err := vectorstore.NewPGVectorStore(t.DB.Pool, t.config.CollectionName)
	if err != nil {
		return SearchSourcesResp{}, fmt.Errorf("invalid collection name: %w", err)
	}

	results, err := store.SimilaritySearch(ctx, queryEmbedding, args.TopK, args.Source)
	if err != nil {
		return SearchSourcesResp{}, fmt.Errorf("failed to search: %w", err)
	}

	var formatted []string
	for _, result := range results {
		source := "unknown"
		if s, ok := result.Document.Metadata["source"].(string); ok {
			source = s
		}
		title := ""
		if v, ok := result.Document.Metadata["title"].(string); ok {
			title = v
		}
		formatted = append(formatted, fmt.Sprintf("[Source]: %s\n[Title]: %s\n[Content]: %s", source, title, result.Document.Content))
	}

	return SearchSourcesResp{Results: strings.Join(formatted, "\n\n")}, nil
}

type GetSourceArgs struct {
	Source string `json:"source" description:"The source URL to retrieve"`
}

type GetSourceResp struct {
	Content string `json:"content"`
}

func (t *SourceToolset) getSourceTool(ctx tool.Context, args GetSourceArgs) (GetSourceResp, error) {
	return t.GetSource(ctx, args)
}

// GetSource returns every indexed chunk for one source URL in order.
func (t *SourceToolset) GetSource(ctx context.Context, args GetSourceArgs) (GetSourceResp, error) {
	store, err := vectorstore.NewPGVectorStore(t.DB.Pool, t.config.CollectionName)
	if err != nil {
		return GetSourceResp{}, fmt.Errorf("invalid collection name: %w", err)
	}

	results, err := store.GetContentBySource(ctx, args.Source)
	if err != nil {
		return GetSourceResp{}, fmt.Errorf("failed to find content: %w", err)
	}

	var chunks []string
	for _, result := range results {
		chunks = append(chunks, result.Content)
	}

	return GetSourceResp{Content: strings.Join(chunks, "\n\n")}, nil
}
