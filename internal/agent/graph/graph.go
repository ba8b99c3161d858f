package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/replyforge/server/internal/admission"
	"github.com/replyforge/server/internal/agent/graph/nodes"
	"github.com/replyforge/server/internal/agent/graph/observers"
	"github.com/replyforge/server/internal/agent/model"
	"github.com/replyforge/server/internal/memory"
	"github.com/replyforge/server/internal/retrieval"
	logx "github.com/replyforge/server/pkg/logger"
)

// Runner executes the response pipeline for one inbound message.
type Runner interface {
	Respond(ctx context.Context, in model.InboundMessage) (model.Outcome, error)
}

// Config holds everything needed to compose the response pipeline end-to-end.
type Config struct {
	Gate      *admission.Gate
	Agents    model.AgentRepository
	Trials    model.TrialRepository
	Retriever retrieval.Retriever
	Memory    *memory.WindowStore
	Generator nodes.ResponseGenerator
	Logs      model.ConversationLogRepository
	Pipeline  model.PipelineConfig
	Response  model.ResponseModelConfig
}

// pipelineBuilder handles the construction of the response pipeline graph.
type pipelineBuilder struct {
	config Config
	graph  *compose.Graph[model.InboundMessage, *schema.Message]
}

type pipelineRunner struct {
	runnable compose.Runnable[model.InboundMessage, *schema.Message]
	fallback string
}

// Respond runs the pipeline. It never returns a transport-visible failure:
// an admitted message yields either the model reply or the fallback text, a
// denied one yields the rejection reason.
func (r *pipelineRunner) Respond(ctx context.Context, in model.InboundMessage) (model.Outcome, error) {
	out, err := r.runnable.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		logx.Error().Err(err).Str("agent_id", in.AgentID).Msg("pipeline invoke failed, replying with fallback")
		return model.Outcome{Reply: r.fallback}, nil
	}
	if out == nil {
		return model.Outcome{Reply: r.fallback}, nil
	}

	if rejected, _ := out.Extra[nodes.ExtraKeyRejected].(bool); rejected {
		return model.Outcome{Rejected: true, Reason: out.Content}, nil
	}

	reply := strings.TrimSpace(out.Content)
	if reply == "" {
		reply = r.fallback
	}
	return model.Outcome{Reply: reply}, nil
}

// BuildPipeline composes and compiles the response pipeline graph.
func BuildPipeline(ctx context.Context, cfg Config) (Runner, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}

	builder := &pipelineBuilder{
		config: cfg,
		graph: compose.NewGraph[model.InboundMessage, *schema.Message](
			compose.WithGenLocalState(func(ctx context.Context) *model.PipelineState {
				return &model.PipelineState{}
			}),
		),
	}

	builder.addNodes()
	if err := builder.addEdges(); err != nil {
		return nil, err
	}
	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	runnable, err := builder.compile(ctx)
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("response pipeline built successfully")
	return &pipelineRunner{runnable: runnable, fallback: cfg.Response.FallbackText}, nil
}

func validate(cfg Config) error {
	switch {
	case cfg.Gate == nil:
		return fmt.Errorf("admission gate is nil")
	case cfg.Agents == nil:
		return fmt.Errorf("agent repository is nil")
	case cfg.Trials == nil:
		return fmt.Errorf("trial repository is nil")
	case cfg.Retriever == nil:
		return fmt.Errorf("retriever is nil")
	case cfg.Memory == nil:
		return fmt.Errorf("memory store is nil")
	case cfg.Generator == nil:
		return fmt.Errorf("response generator is nil")
	case cfg.Logs == nil:
		return fmt.Errorf("conversation log repository is nil")
	case cfg.Response.FallbackText == "":
		return fmt.Errorf("fallback text is empty")
	}
	return nil
}

func (b *pipelineBuilder) addNodes() {
	b.graph.AddLambdaNode(nodes.NodeAdmission,
		nodes.NewAdmissionNode(b.config.Gate, b.config.Agents, b.config.Trials),
		compose.WithStatePreHandler(nodes.NewAdmissionPreHandler()),
	)

	b.graph.AddLambdaNode(nodes.NodeRejection,
		nodes.NewRejectionNode(),
	)

	b.graph.AddLambdaNode(nodes.NodeRetriever,
		nodes.NewRetrieverNode(b.config.Retriever, b.config.Pipeline),
	)

	b.graph.AddLambdaNode(nodes.NodeAssembler,
		nodes.NewAssemblerNode(b.config.Pipeline),
	)

	b.graph.AddLambdaNode(nodes.NodeGenerator,
		nodes.NewGeneratorNode(b.config.Generator, b.config.Memory, b.config.Response),
		compose.WithStatePostHandler(nodes.NewGeneratorPostHandler(b.config.Memory, b.config.Logs)),
	)
}

func (b *pipelineBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeAdmission},
		{nodes.NodeRejection, compose.END},
		{nodes.NodeRetriever, nodes.NodeAssembler},
		{nodes.NodeAssembler, nodes.NodeGenerator},
		{nodes.NodeGenerator, compose.END},
	}

	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			return fmt.Errorf("error adding edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

func (b *pipelineBuilder) addBranches() error {
	admissionBranch := compose.NewGraphBranch(
		nodes.NewAdmissionCondition(),
		map[string]bool{
			nodes.NodeRejection: true,
			nodes.NodeRetriever: true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeAdmission, admissionBranch); err != nil {
		logx.Error().Err(err).Msg("error adding admission branch")
		return fmt.Errorf("error adding admission branch: %w", err)
	}
	return nil
}

func (b *pipelineBuilder) compile(ctx context.Context) (compose.Runnable[model.InboundMessage, *schema.Message], error) {
	runnable, err := b.graph.Compile(ctx)
	if err != nil {
		logx.Error().Err(err).Msg("error compiling pipeline graph")
		return nil, fmt.Errorf("error compiling pipeline graph: %w", err)
	}
	return runnable, nil
}
