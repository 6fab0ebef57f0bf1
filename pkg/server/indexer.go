package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mbecker/deep-research/pkg/config"
	"github.com/mbecker/deep-research/pkg/database"
	"github.com/mbecker/deep-research/pkg/embeddings"
	"github.com/mbecker/deep-research/pkg/research"
	"github.com/mbecker/deep-research/pkg/research/tools"
	"github.com/mbecker/deep-research/pkg/splitter"
	"github.com/mbecker/deep-research/pkg/vectorstore"
)

const indexConcurrency = 3

// Indexer ingests the relevant sources of a completed research run into
// the vector store so the chat feature can answer questions about them.
// Per-document failures are logged and skipped; indexing is best-effort
// and never affects the run's outcome.
type Indexer struct {
	DB       *database.PostgresDB
	Embedder *embeddings.GoogleEmbedder
	Config   *config.Config
}

func NewIndexer(db *database.PostgresDB, embedder *embeddings.GoogleEmbedder, cfg *config.Config) *Indexer {
	return &Indexer{DB: db, Embedder: embedder, Config: cfg}
}

func (ix *Indexer) IndexSources(ctx context.Context, topic string, docs []research.GradedDocument, logger *slog.Logger) {
	store, err := vectorstore.NewPGVectorStore(ix.DB.Pool, ix.Config.CollectionName)
	if err != nil {
		logger.Error("Invalid collection name", "error", err)
		return
	}
	if err := ix.DB.EnsureVectorExtension(ctx); err != nil {
		logger.Error("Failed to ensure vector extension", "error", err)
		return
	}
	if err := store.EnsureTable(ctx, embeddings.Dimension); err != nil {
		logger.Error("Failed to create embeddings table", "error", err)
		return
	}

	textSplitter := splitter.NewRecursiveCharacterTextSplitter(ix.Config.ChunkSize, ix.Config.ChunkOverlap)

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, indexConcurrency)

	for _, graded := range docs {
		wg.Add(1)
		go func(doc research.Document, score float64) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			fullText := doc.Content
			if fullText == "" && doc.URL != "" {
				text, err := tools.FetchPDFText(ctx, doc.URL)
				if err != nil {
					logger.Warn("Failed to fetch source text, indexing snippet", "url", doc.URL, "error", err)
				} else {
					fullText = text
				}
			}
			if fullText == "" {
				fullText = doc.Snippet
			}
			if fullText == "" {
				return
			}

			chunks, err := textSplitter.SplitText(fullText)
			if err != nil {
				logger.Error("Failed to split source text", "url", doc.URL, "error", err)
				return
			}

			vectors, err := ix.Embedder.EmbedTexts(ctx, chunks)
			if err != nil {
				logger.Error("Failed to embed source chunks", "url", doc.URL, "error", err)
				return
			}

			documents := make([]vectorstore.Document, len(chunks))
			for i, chunk := range chunks {
				documents[i] = vectorstore.Document{
					Content: chunk,
					Metadata: map[string]interface{}{
						"source":          doc.URL,
						"title":           doc.Title,
						"topic":           topic,
						"relevance_score": score,
					},
					Embedding: vectors[i],
				}
			}

			if err := store.AddDocuments(ctx, documents); err != nil {
				logger.Error("Failed to store source chunks", "url", doc.URL, "error", err)
				return
			}
			logger.Info("Indexed source", "url", doc.URL, "chunks", len(chunks))
		}(graded.Document, graded.RelevanceScore)
	}
	wg.Wait()
}
