package bootstrap

import (
	"context"
	"fmt"

	"github.com/opencouncil/meeting-search/internal/config"
	"github.com/opencouncil/meeting-search/internal/core/usecase"
	"github.com/opencouncil/meeting-search/internal/infrastructure/graph/neo4j"
	"github.com/opencouncil/meeting-search/internal/infrastructure/llm/ollama"
	"github.com/opencouncil/meeting-search/internal/infrastructure/repository/postgres"
	"github.com/opencouncil/meeting-search/internal/infrastructure/resilience"
	"github.com/opencouncil/meeting-search/internal/infrastructure/vector/qdrant"
)

// ToolApp is the reduced wiring for the stdio MCP binary: the retrieval
// tool set without the answer loop, cache, or eventing.
type ToolApp struct {
	Tools *usecase.ToolRegistry

	closeFn func()
}

func NewToolApp(ctx context.Context, cfg config.Config) (*ToolApp, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	retrievalRepo := postgres.NewRetrievalRepository(db)

	executor := resilience.NewExecutor(resilience.GenerationConfig())
	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor)
	embedder := ollama.NewEmbedder(ollamaClient)

	vectorDB := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)

	graphClient, err := neo4j.New(cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect neo4j: %w", err)
	}

	adapters := buildRetrievalAdapters(retrievalRepo, vectorDB, embedder, cfg.SearchFusionRRFK)

	return &ToolApp{
		Tools: usecase.NewToolRegistry(adapters, graphClient, 10),

		closeFn: func() {
			_ = graphClient.Close(context.Background())
			_ = db.Close()
		},
	}, nil
}

func (a *ToolApp) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
