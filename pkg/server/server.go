// Package server is the composition root for the PipeWise agent core. It
// lives in pkg/ so embedders can build the full service and wrap the
// handler with their own middleware:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(fmt.Sprintf(":%d", srv.Port), srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/pipewise/pipewise/agent-core/internal/agent"
	"github.com/pipewise/pipewise/agent-core/internal/api"
	"github.com/pipewise/pipewise/agent-core/internal/api/handlers"
	"github.com/pipewise/pipewise/agent-core/internal/config"
	"github.com/pipewise/pipewise/agent-core/internal/idempotency"
	"github.com/pipewise/pipewise/agent-core/internal/llm"
	"github.com/pipewise/pipewise/agent-core/internal/queue"
	"github.com/pipewise/pipewise/agent-core/internal/ratelimit"
	"github.com/pipewise/pipewise/agent-core/internal/retention"
	"github.com/pipewise/pipewise/agent-core/internal/store"
	"github.com/pipewise/pipewise/agent-core/internal/telemetry"
	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

// Server holds the initialized agent core service.
type Server struct {
	// Handler carries all routes and middleware.
	Handler http.Handler

	// Store is the backing data store, exposed for embedders.
	Store store.Store

	// Registry owns the per-org agents.
	Registry *agent.Registry

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc stops agents, flushes telemetry and closes connections.
	// Call it exactly once on graceful shutdown.
	ShutdownFunc func(context.Context) error
}

// New initializes the service from environment configuration.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the service with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	otelShutdown, err := telemetry.Init(cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	dataStore, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis at %s: %w", cfg.Redis.Addr, err)
		}
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis connected")
	}

	var limiter ratelimit.Limiter
	var keeper idempotency.Keeper
	if redisClient != nil {
		limiter = ratelimit.NewRedisLimiter(redisClient)
		keeper = idempotency.NewRedisKeeper(redisClient)
	} else {
		limiter = ratelimit.NewMemoryLimiter()
		keeper = idempotency.NewMemoryKeeper()
	}

	jobQueue, err := buildQueue(cfg)
	if err != nil {
		return nil, err
	}

	llmClient := llm.NewClient(buildProviders(cfg.LLM), llm.ClientConfig{
		Strategy:    llm.Strategy(cfg.LLM.Strategy),
		CallTimeout: cfg.LLM.CallTimeout,
		MaxRetries:  cfg.LLM.MaxRetries,
	})

	registry := agent.NewRegistry(agent.Deps{
		Store:         dataStore,
		LLM:           llmClient,
		Queue:         jobQueue,
		Keeper:        keeper,
		Limiter:       limiter,
		Executor:      cfg.Executor,
		SweepInterval: cfg.Executor.SweepInterval,
	})

	if cfg.SettingsFile != "" {
		if err := seedSettings(ctx, dataStore, cfg.SettingsFile); err != nil {
			return nil, err
		}
	}

	h := handlers.New(registry, dataStore, cfg.Version)
	router := api.NewRouter(cfg, h)

	var archiver retention.Archiver
	if cfg.Retention.ArchiveDir != "" {
		archiver = retention.NewLocalFileArchiver(cfg.Retention.ArchiveDir, cfg.Retention.Compress)
	}
	janitor := retention.NewJanitor(dataStore, archiver, cfg.Retention.Interval)
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	janitorDone := make(chan struct{})
	go func() {
		defer close(janitorDone)
		janitor.Start(janitorCtx)
	}()

	shutdown := func(ctx context.Context) error {
		stopJanitor()
		select {
		case <-janitorDone:
		case <-ctx.Done():
		}
		if err := registry.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("agent registry shutdown incomplete")
		}
		if err := jobQueue.Close(); err != nil {
			log.Warn().Err(err).Msg("queue close failed")
		}
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				log.Warn().Err(err).Msg("redis close failed")
			}
		}
		if err := dataStore.Close(); err != nil {
			log.Warn().Err(err).Msg("store close failed")
		}
		return otelShutdown(ctx)
	}

	return &Server{
		Handler:      router,
		Store:        dataStore,
		Registry:     registry,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}

func buildStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Database.URL != "" {
		s, err := store.NewPostgresStore(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		log.Info().Msg("postgres store initialized")
		return s, nil
	}
	log.Info().Msg("in-memory store initialized")
	return store.NewMemoryStore(), nil
}

func buildQueue(cfg *config.Config) (queue.Queue, error) {
	if cfg.Queue.AMQPURL != "" {
		q, err := queue.NewAMQPQueue(cfg.Queue)
		if err != nil {
			return nil, fmt.Errorf("connect amqp: %w", err)
		}
		log.Info().
			Str("standard", cfg.Queue.StandardQueue).
			Str("urgent", cfg.Queue.LowLatencyQueue).
			Msg("amqp queue initialized")
		return q, nil
	}
	log.Info().Msg("in-memory queue initialized")
	return queue.NewMemoryQueue(), nil
}

// buildProviders assembles the LLM provider chain from whichever
// credentials are configured. Order matters under the fallback strategy.
func buildProviders(cfg config.LLMConfig) []llm.Provider {
	var providers []llm.Provider
	if cfg.OpenAIKey != "" {
		providers = append(providers, llm.NewOpenAIProvider("openai", cfg.OpenAIEndpoint, cfg.OpenAIKey, ""))
	}
	if cfg.AzureKey != "" && cfg.AzureEndpoint != "" {
		providers = append(providers, llm.NewAzureOpenAIProvider("azure", cfg.AzureEndpoint, cfg.AzureKey, ""))
	}
	if cfg.AnthropicKey != "" {
		providers = append(providers, llm.NewAnthropicProvider("anthropic", "", cfg.AnthropicKey, ""))
	}
	if cfg.OllamaEndpoint != "" {
		providers = append(providers, llm.NewOllamaProvider("ollama", cfg.OllamaEndpoint, ""))
	}
	if len(providers) == 0 {
		log.Warn().Msg("no LLM providers configured, every decision will park for review")
	}
	return providers
}

// seedSettings applies a YAML settings file, creating orgs that do not
// exist yet and refreshing the settings of those that do. Settings changed
// later through the API win over the file.
func seedSettings(ctx context.Context, s store.Store, path string) error {
	sf, err := config.LoadSettings(path)
	if err != nil {
		return err
	}
	for orgID, settings := range sf.Organizations {
		if _, err := s.GetOrg(ctx, orgID); err == nil {
			if err := s.UpdateOrgSettings(ctx, orgID, settings); err != nil {
				return fmt.Errorf("seed settings for %s: %w", orgID, err)
			}
			continue
		}
		org := &models.Organization{
			ID:        orgID,
			Name:      orgID,
			Settings:  settings,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.CreateOrg(ctx, org); err != nil {
			return fmt.Errorf("seed org %s: %w", orgID, err)
		}
		log.Info().Str("org_id", orgID).Msg("org seeded from settings file")
	}
	return nil
}
