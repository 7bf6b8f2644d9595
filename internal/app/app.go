package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/askpdf/askpdf/internal/config"
	"github.com/askpdf/askpdf/internal/core/llm"
	objectclient "github.com/askpdf/askpdf/internal/core/object-client"
	"github.com/askpdf/askpdf/internal/core/queue"
	"github.com/askpdf/askpdf/internal/core/vectorstore"
	"github.com/askpdf/askpdf/internal/services"
)

// App wires the API process: long-lived clients constructed once at
// startup and shared by every request.
type App struct {
	Store    *vectorstore.Client
	Object   *objectclient.S3Client
	Queue    *queue.RedisQueue
	Embedder *llm.GeminiEmbedder
	LLM      *llm.GeminiLLM
	Query    *services.QueryService
	Server   *Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	store, err := vectorstore.NewClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Vector store initialized and ready.")

	objClient, err := objectclient.NewS3Client(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Object client initialized and ready.")

	jobQueue, err := queue.NewRedisQueue(cfg)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the job queue: %w", err)
	}
	log.Println("Job queue connected.")

	embedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
	}

	llmProvider, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the llm: %w", err)
	}

	queryService := services.NewQueryService(store, embedder, llmProvider, cfg.TopK)

	server := NewServer(cfg, store, objClient, jobQueue, queryService)

	return &App{
		Store:    store,
		Object:   objClient,
		Queue:    jobQueue,
		Embedder: embedder,
		LLM:      llmProvider,
		Query:    queryService,
		Server:   server,
	}, nil
}

func (a *App) Close() {
	if a.Embedder != nil {
		_ = a.Embedder.Close()
	}
	if a.LLM != nil {
		_ = a.LLM.Close()
	}
	if a.Queue != nil {
		_ = a.Queue.Close()
	}
	if a.Store != nil {
		_ = a.Store.Close()
	}
}
