// Package generate invokes the response model with a hard timeout and a safe
// fallback. A broken model integration must never break message delivery, so
// Generate classifies failures instead of returning them.
package generate

import (
	"context"
	"errors"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/replyforge/server/internal/agent/model"
	logx "github.com/replyforge/server/pkg/logger"
)

// Cause classifies why a reply fell back to the fixed text.
type Cause string

const (
	CauseNone        Cause = ""
	CauseModelInit   Cause = "model_init"
	CauseTimeout     Cause = "timeout"
	CauseTransport   Cause = "transport"
	CauseEmptyOutput Cause = "empty_output"
)

// Reply is the generation result. Text is never empty: either the trimmed
// model output or the configured fallback, with Cause naming why.
type Reply struct {
	Text     string
	Fallback bool
	Cause    Cause
}

// Request describes one generation call.
type Request struct {
	SystemPrompt string
	History      []*schema.Message
	UserMessage  string

	// ModelName/APIKey override the platform defaults for api-mode users.
	ModelName string
	APIKey    string
}

// ModelFactory resolves a chat model for the given credentials.
type ModelFactory interface {
	ChatModel(ctx context.Context, apiKey, modelName string) (einomodel.BaseChatModel, error)
}

type Generator struct {
	factory ModelFactory
	cfg     model.ResponseModelConfig
}

func NewGenerator(factory ModelFactory, cfg model.ResponseModelConfig) *Generator {
	return &Generator{factory: factory, cfg: cfg}
}

// Generate builds [system, history tail, user], invokes the model under the
// configured timeout, and returns either the trimmed output or the fallback.
// Timeout, transport failure, and blank output all collapse to the fallback;
// the distinguishing cause is logged here and recorded on the Reply.
func (g *Generator) Generate(ctx context.Context, req Request) Reply {
	modelName := req.ModelName
	if modelName == "" {
		modelName = g.cfg.Model
	}

	cm, err := g.factory.ChatModel(ctx, req.APIKey, modelName)
	if err != nil {
		return g.fallback(CauseModelInit, modelName, err)
	}

	messages := g.buildMessages(req)

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	out, err := cm.Generate(callCtx, messages)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return g.fallback(CauseTimeout, modelName, err)
		}
		return g.fallback(CauseTransport, modelName, err)
	}

	if out == nil || strings.TrimSpace(out.Content) == "" {
		return g.fallback(CauseEmptyOutput, modelName, nil)
	}

	if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
		logUsage(modelName, out.ResponseMeta.Usage)
	}

	return Reply{Text: strings.TrimSpace(out.Content)}
}

func (g *Generator) buildMessages(req Request) []*schema.Message {
	tail := trimTail(req.History, g.cfg.HistoryWindow)
	messages := make([]*schema.Message, 0, len(tail)+2)
	messages = append(messages, schema.SystemMessage(req.SystemPrompt))
	messages = append(messages, tail...)
	messages = append(messages, schema.UserMessage(req.UserMessage))
	return messages
}

func (g *Generator) fallback(cause Cause, modelName string, err error) Reply {
	evt := logx.Warn().Str("model", modelName).Str("cause", string(cause))
	if err != nil {
		evt = evt.Err(err)
	}
	evt.Msg("generation degraded to fallback reply")
	return Reply{Text: g.cfg.FallbackText, Fallback: true, Cause: cause}
}

// trimTail keeps the most recent maxTurns messages.
func trimTail(messages []*schema.Message, maxTurns int) []*schema.Message {
	if maxTurns <= 0 || len(messages) == 0 {
		return nil
	}
	if len(messages) <= maxTurns {
		result := make([]*schema.Message, len(messages))
		copy(result, messages)
		return result
	}
	source := messages[len(messages)-maxTurns:]
	result := make([]*schema.Message, len(source))
	copy(result, source)
	return result
}
