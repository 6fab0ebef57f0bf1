package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/mbecker/deep-research/pkg/chat"
	"github.com/mbecker/deep-research/pkg/clients"
	"github.com/mbecker/deep-research/pkg/config"
	"github.com/mbecker/deep-research/pkg/database"
	"github.com/mbecker/deep-research/pkg/embeddings"
	"github.com/mbecker/deep-research/pkg/research"
	"github.com/mbecker/deep-research/pkg/research/tools"
	"github.com/mbecker/deep-research/pkg/server"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()
	ctx := context.Background()

	// Model clients: fast model drives the research loop, reasoning
	// model backs the document-QA agent inside pkg/chat.
	llm, err := clients.GoogleAI(ctx, clients.DefaultModel)
	if err != nil {
		log.Fatalf("Failed to init LLM client: %v", err)
	}
	model := research.NewLLM(llm)
	search := tools.NewArxivBackend(cfg.SearchMaxResults)

	// Database is optional: without it the research API still works,
	// but source indexing and chat are disabled.
	var (
		chatSvc   *chat.Service
		toolset   *chat.SourceToolset
		indexer   server.SourceIndexer
		haveStore bool
	)
	if cfg.DatabaseURL != "" {
		db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Printf("Database unavailable, chat and indexing disabled: %v", err)
		} else {
			defer db.Close()
			if err := db.InitSchema(ctx); err != nil {
				log.Fatalf("Failed to initialize schema: %v", err)
			}

			embedder, err := embeddings.NewGoogleEmbedder(ctx, cfg.EmbeddingModel, cfg.GoogleApiKey)
			if err != nil {
				log.Fatalf("Failed to init embedder: %v", err)
			}
			indexer = server.NewIndexer(db, embedder, cfg)
			toolset = chat.NewSourceToolset(db, embedder, cfg)

			chatSvc, err = chat.NewService(ctx, db, cfg)
			if err != nil {
				log.Fatalf("Failed to init chat service: %v", err)
			}
			haveStore = true
		}
	}
	if !haveStore {
		log.Println("Running without Postgres: research API only")
	}

	svc := server.NewService(search, model, indexer)
	engine := research.NewEngine(search, model)
	handler := server.NewHandler(svc, engine, chatSvc, toolset)

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"}, // Allow all for dev
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Mcp-Session-Id"},
		ExposeHeaders:    []string{"Content-Length", "Mcp-Session-Id"},
		AllowCredentials: true,
	}))

	handler.RegisterRoutes(r)

	fmt.Printf("Server starting on port %s\n", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
