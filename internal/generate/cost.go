package generate

import (
	"github.com/cloudwego/eino/schema"

	logx "github.com/replyforge/server/pkg/logger"
)

// Pricing defines USD cost per 1M tokens for input/output.
type Pricing struct {
	InputPerM  float64
	OutputPerM float64
}

// defaultPricing provides hardcoded USD pricing per 1M text tokens.
var defaultPricing = map[string]Pricing{
	"gemini-2.5-flash":      {InputPerM: 0.30, OutputPerM: 2.50},
	"gemini-2.5-flash-lite": {InputPerM: 0.10, OutputPerM: 0.40},
}

// ResolvePricing returns pricing for a model, zero when unknown.
func ResolvePricing(model string) Pricing {
	if p, ok := defaultPricing[model]; ok {
		return p
	}
	return Pricing{}
}

// ComputeCost converts token usage to USD cost using per-1M pricing.
func ComputeCost(usage *schema.TokenUsage, p Pricing) (inputCost, outputCost, total float64) {
	if usage == nil {
		return 0, 0, 0
	}
	inputCost = p.InputPerM * float64(usage.PromptTokens) / 1_000_000.0
	outputCost = p.OutputPerM * float64(usage.CompletionTokens) / 1_000_000.0
	total = inputCost + outputCost
	return
}

func logUsage(modelName string, usage *schema.TokenUsage) {
	inC, outC, totalC := ComputeCost(usage, ResolvePricing(modelName))
	logx.Debug().
		Str("model", modelName).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Int("total_tokens", usage.TotalTokens).
		Float64("input_cost_usd", inC).
		Float64("output_cost_usd", outC).
		Float64("total_cost_usd", totalC).
		Msg("LLM usage")
}
