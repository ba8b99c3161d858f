package generate

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replyforge/server/internal/agent/model"
)

const fallbackText = "Sorry, something went wrong. Please try again."

type fakeChatModel struct {
	reply    *schema.Message
	err      error
	block    bool
	got      []*schema.Message
	genCalls int
}

func (f *fakeChatModel) Generate(ctx context.Context, in []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	f.genCalls++
	f.got = in
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.reply, f.err
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported")
}

type fakeFactory struct {
	cm  einomodel.BaseChatModel
	err error
}

func (f *fakeFactory) ChatModel(context.Context, string, string) (einomodel.BaseChatModel, error) {
	return f.cm, f.err
}

func testConfig() model.ResponseModelConfig {
	return model.ResponseModelConfig{
		Model:         "gemini-2.5-flash",
		Timeout:       30 * time.Second,
		HistoryWindow: 8,
		FallbackText:  fallbackText,
	}
}

func TestGenerateHappyPathTrimsOutput(t *testing.T) {
	cm := &fakeChatModel{reply: schema.AssistantMessage("  hello there \n", nil)}
	g := NewGenerator(&fakeFactory{cm: cm}, testConfig())

	reply := g.Generate(context.Background(), Request{
		SystemPrompt: "you are a bot",
		UserMessage:  "hi",
	})

	assert.Equal(t, "hello there", reply.Text)
	assert.False(t, reply.Fallback)
	assert.Equal(t, CauseNone, reply.Cause)
}

func TestGenerateMessageOrderAndHistoryWindow(t *testing.T) {
	var history []*schema.Message
	for i := 0; i < 12; i++ {
		history = append(history, schema.UserMessage(fmt.Sprintf("h%d", i)))
	}
	cm := &fakeChatModel{reply: schema.AssistantMessage("ok", nil)}
	g := NewGenerator(&fakeFactory{cm: cm}, testConfig())

	g.Generate(context.Background(), Request{
		SystemPrompt: "sys",
		History:      history,
		UserMessage:  "latest question",
	})

	// [system, last 8 of history, user]
	require.Len(t, cm.got, 10)
	assert.Equal(t, schema.System, cm.got[0].Role)
	assert.Equal(t, "sys", cm.got[0].Content)
	assert.Equal(t, "h4", cm.got[1].Content)
	assert.Equal(t, "h11", cm.got[8].Content)
	assert.Equal(t, schema.User, cm.got[9].Role)
	assert.Equal(t, "latest question", cm.got[9].Content)
}

func TestGenerateTimeoutYieldsFallbackPromptly(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = 50 * time.Millisecond
	cm := &fakeChatModel{block: true}
	g := NewGenerator(&fakeFactory{cm: cm}, cfg)

	start := time.Now()
	reply := g.Generate(context.Background(), Request{UserMessage: "hi"})
	elapsed := time.Since(start)

	assert.True(t, reply.Fallback)
	assert.Equal(t, CauseTimeout, reply.Cause)
	assert.Equal(t, fallbackText, reply.Text)
	assert.Less(t, elapsed, 2*time.Second, "fallback must arrive near the timeout, not indefinitely")
}

func TestGenerateTransportErrorYieldsFallback(t *testing.T) {
	cm := &fakeChatModel{err: errors.New("connection refused")}
	g := NewGenerator(&fakeFactory{cm: cm}, testConfig())

	reply := g.Generate(context.Background(), Request{UserMessage: "hi"})

	assert.True(t, reply.Fallback)
	assert.Equal(t, CauseTransport, reply.Cause)
	assert.Equal(t, fallbackText, reply.Text)
}

func TestGenerateBlankOutputYieldsFallback(t *testing.T) {
	tests := []struct {
		name  string
		reply *schema.Message
	}{
		{"empty content", schema.AssistantMessage("", nil)},
		{"whitespace content", schema.AssistantMessage("   \n\t", nil)},
		{"nil message", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cm := &fakeChatModel{reply: tt.reply}
			g := NewGenerator(&fakeFactory{cm: cm}, testConfig())

			reply := g.Generate(context.Background(), Request{UserMessage: "hi"})
			assert.True(t, reply.Fallback)
			assert.Equal(t, CauseEmptyOutput, reply.Cause)
		})
	}
}

func TestGenerateModelInitFailureYieldsFallback(t *testing.T) {
	g := NewGenerator(&fakeFactory{err: errors.New("bad credentials")}, testConfig())

	reply := g.Generate(context.Background(), Request{UserMessage: "hi"})

	assert.True(t, reply.Fallback)
	assert.Equal(t, CauseModelInit, reply.Cause)
}

func TestComputeCost(t *testing.T) {
	usage := &schema.TokenUsage{PromptTokens: 1_000_000, CompletionTokens: 2_000_000, TotalTokens: 3_000_000}
	inC, outC, total := ComputeCost(usage, Pricing{InputPerM: 0.30, OutputPerM: 2.50})
	assert.InDelta(t, 0.30, inC, 1e-9)
	assert.InDelta(t, 5.00, outC, 1e-9)
	assert.InDelta(t, 5.30, total, 1e-9)

	_, _, zero := ComputeCost(nil, ResolvePricing("unknown-model"))
	assert.Zero(t, zero)
}
