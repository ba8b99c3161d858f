package generate

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"github.com/replyforge/server/internal/agent/model"
	logx "github.com/replyforge/server/pkg/logger"
)

// GeminiFactory builds Gemini chat models. Trial users share the platform
// key; api-mode users get a model bound to their own credentials. Models are
// cached per (key, model) pair since client construction is not free.
type GeminiFactory struct {
	defaultKey  string
	baseURL     string
	temperature float32
	maxTokens   int

	mu    sync.Mutex
	cache map[string]einomodel.BaseChatModel
}

func NewGeminiFactory(defaultKey, baseURL string, cfg model.ResponseModelConfig) *GeminiFactory {
	return &GeminiFactory{
		defaultKey:  defaultKey,
		baseURL:     baseURL,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		cache:       map[string]einomodel.BaseChatModel{},
	}
}

func (f *GeminiFactory) ChatModel(ctx context.Context, apiKey, modelName string) (einomodel.BaseChatModel, error) {
	if apiKey == "" {
		apiKey = f.defaultKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("no model credentials available")
	}
	if modelName == "" {
		return nil, fmt.Errorf("model name is empty")
	}

	cacheKey := apiKey + "|" + modelName

	f.mu.Lock()
	defer f.mu.Unlock()
	if cm, ok := f.cache[cacheKey]; ok {
		return cm, nil
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if f.baseURL != "" {
		clientCfg.HTTPOptions.BaseURL = f.baseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	temperature := f.temperature
	maxTokens := f.maxTokens
	cm, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       modelName,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Str("model", modelName).Msg("error creating chat model")
		return nil, fmt.Errorf("error creating chat model %s: %w", modelName, err)
	}

	f.cache[cacheKey] = cm
	return cm, nil
}

var _ ModelFactory = (*GeminiFactory)(nil)
