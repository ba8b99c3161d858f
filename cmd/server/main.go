package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/philippgille/chromem-go"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/replyforge/server/internal/admission"
	"github.com/replyforge/server/internal/agent/graph"
	"github.com/replyforge/server/internal/agent/model"
	"github.com/replyforge/server/internal/agent/repo"
	"github.com/replyforge/server/internal/core"
	"github.com/replyforge/server/internal/generate"
	"github.com/replyforge/server/internal/memory"
	"github.com/replyforge/server/internal/retrieval"
	"github.com/replyforge/server/internal/transport"
	logx "github.com/replyforge/server/pkg/logger"
	pkgredis "github.com/replyforge/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the service, sourced from
// environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`

	// Infrastructure
	Redis  pkgredis.Config
	DBPath string `envconfig:"DB_PATH" default:"replyforge.db"`

	// Vector index. Empty path keeps the index in memory.
	IndexPath      string `envconfig:"INDEX_PATH"`
	EmbeddingModel string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-004"`

	// LLM provider
	APIKey       string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL      string `envconfig:"GEMINI_BASE_URL"`
	EmbedBaseURL string `envconfig:"GEMINI_EMBED_BASE_URL" default:"https://generativelanguage.googleapis.com/v1beta/openai"`

	// Pipeline configs
	Pipeline model.PipelineConfig
	Response model.ResponseModelConfig
	Memory   model.MemoryConfig
	Trial    model.TrialConfig
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(cfg.Environment)})

	rdb, err := cfg.Redis.New()
	if err != nil {
		logx.Fatal().Err(err).Msg("redis client init failed")
	}
	defer rdb.Close()

	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{})
	if err != nil {
		logx.Fatal().Err(err).Str("path", cfg.DBPath).Msg("sqlite open failed")
	}
	if err := repo.Migrate(db); err != nil {
		logx.Fatal().Err(err).Msg("migration failed")
	}

	embed := chromem.NewEmbeddingFuncOpenAICompat(cfg.EmbedBaseURL, cfg.APIKey, cfg.EmbeddingModel, nil)
	index, err := retrieval.NewChromemIndex(cfg.IndexPath, false, embed)
	if err != nil {
		logx.Fatal().Err(err).Str("path", cfg.IndexPath).Msg("vector index init failed")
	}

	window := memory.NewWindowStore(cfg.Memory.Capacity)
	sweeper, err := memory.NewSweeper(window, cfg.Memory.SweepSpec, cfg.Memory.SweepIdle)
	if err != nil {
		logx.Fatal().Err(err).Msg("memory sweeper init failed")
	}
	sweeper.Start()
	defer sweeper.Stop()

	trials := repo.NewRedisTrialRepository(rdb)
	agents := repo.NewGormAgentRepository(db)
	logs := repo.NewGormConversationLogRepository(db)
	gate := admission.NewGate(trials, cfg.Trial)

	factory := generate.NewGeminiFactory(cfg.APIKey, cfg.BaseURL, cfg.Response)
	generator := generate.NewGenerator(factory, cfg.Response)

	runner, err := graph.BuildPipeline(ctx, graph.Config{
		Gate:      gate,
		Agents:    agents,
		Trials:    trials,
		Retriever: index,
		Memory:    window,
		Generator: generator,
		Logs:      logs,
		Pipeline:  cfg.Pipeline,
		Response:  cfg.Response,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("pipeline build failed")
	}

	srv := &transport.Server{
		Runner: runner,
		Gate:   gate,
		Trials: trials,
		Agents: agents,
		Logs:   logs,
		Index:  index,
	}
	if err := srv.Start(ctx, cfg.HTTPAddr); err != nil {
		logx.Fatal().Err(err).Msg("http server failed")
	}
}
