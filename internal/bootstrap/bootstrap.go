package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/opencouncil/meeting-search/internal/config"
	"github.com/opencouncil/meeting-search/internal/core/domain"
	"github.com/opencouncil/meeting-search/internal/core/ports"
	"github.com/opencouncil/meeting-search/internal/core/usecase"
	"github.com/opencouncil/meeting-search/internal/infrastructure/graph/neo4j"
	"github.com/opencouncil/meeting-search/internal/infrastructure/llm/ollama"
	"github.com/opencouncil/meeting-search/internal/infrastructure/queue/nats"
	"github.com/opencouncil/meeting-search/internal/infrastructure/repository/postgres"
	"github.com/opencouncil/meeting-search/internal/infrastructure/resilience"
	"github.com/opencouncil/meeting-search/internal/infrastructure/vector/qdrant"
	"github.com/opencouncil/meeting-search/internal/observability/metrics"
)

// App wires the retrieval, answer, and cache services with their backing
// infrastructure for the api binary.
type App struct {
	Config config.Config

	SearchUC *usecase.HybridSearchUseCase
	AnswerUC *usecase.AnswerUseCase
	Tools    *usecase.ToolRegistry
	Cache    ports.AnswerCache
	Metrics  *metrics.HTTPServerMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	retrievalRepo := postgres.NewRetrievalRepository(db)
	if err := retrievalRepo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	cacheRepo := postgres.NewCacheRepository(db)

	executor := resilience.NewExecutor(resilience.DefaultConfig())
	llmExecutor := resilience.NewExecutor(resilience.GenerationConfig())

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, llmExecutor)
	embedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)

	vectorDB := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)
	if cfg.QdrantEnsureCollection {
		if err := vectorDB.EnsureCollection(ctx, cfg.QdrantVectorSize); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure qdrant collection: %w", err)
		}
	}

	graphClient, err := neo4j.New(cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect neo4j: %w", err)
	}

	publisher, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = graphClient.Close(ctx)
		_ = db.Close()
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	adapters := buildRetrievalAdapters(retrievalRepo, vectorDB, embedder, cfg.SearchFusionRRFK)

	searchUC := usecase.NewHybridSearchUseCase(
		adapters,
		embedder,
		retrievalRepo,
		cfg.SearchFusionRRFK,
		cfg.SearchResultLimit,
		time.Duration(cfg.SearchAdapterTimeoutSeconds)*time.Second,
	)

	serverMetrics := metrics.NewHTTPServerMetrics("api")
	searchUC.SetAdapterFailureHook(func(contentType domain.ContentType) {
		serverMetrics.RecordAdapterFailure("api", string(contentType))
	})

	tools := usecase.NewToolRegistry(adapters, graphClient, 10)

	answerUC := usecase.NewAnswerUseCase(
		generator,
		tools,
		cacheRepo,
		publisher,
		usecase.NewCacheIDGenerator(cfg.CacheIDLength),
		usecase.AnswerLimits{
			MaxToolCalls:     cfg.AnswerMaxToolCalls,
			Timeout:          time.Duration(cfg.AnswerTimeoutSeconds) * time.Second,
			StepTimeout:      time.Duration(cfg.AnswerStepTimeoutSeconds) * time.Second,
			StreamChunkChars: cfg.AnswerStreamChunkChars,
			CacheTTL:         time.Duration(cfg.CacheTTLDays) * 24 * time.Hour,
		},
	)

	return &App{
		Config:   cfg,
		SearchUC: searchUC,
		AnswerUC: answerUC,
		Tools:    tools,
		Cache:    cacheRepo,
		Metrics:  serverMetrics,

		closeFn: func() {
			publisher.Close()
			_ = graphClient.Close(context.Background())
			_ = db.Close()
		},
	}, nil
}

func buildRetrievalAdapters(
	lexical ports.LexicalIndex,
	vector ports.VectorIndex,
	embedder ports.Embedder,
	rrfK int,
) []*usecase.RetrievalAdapter {
	contentTypes := domain.AllContentTypes()
	adapters := make([]*usecase.RetrievalAdapter, 0, len(contentTypes))
	for _, contentType := range contentTypes {
		adapters = append(adapters, usecase.NewRetrievalAdapter(contentType, lexical, vector, embedder, rrfK))
	}
	return adapters
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
