package nodes

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/replyforge/server/internal/admission"
	"github.com/replyforge/server/internal/agent/model"
	"github.com/replyforge/server/internal/generate"
	"github.com/replyforge/server/internal/memory"
	"github.com/replyforge/server/internal/prompt"
	"github.com/replyforge/server/internal/retrieval"
	logx "github.com/replyforge/server/pkg/logger"
)

// Node names in the response pipeline graph.
const (
	NodeAdmission = "AdmissionGate"
	NodeRejection = "Rejection"
	NodeRetriever = "KnowledgeRetriever"
	NodeAssembler = "PromptAssembler"
	NodeGenerator = "ResponseGenerator"
)

// ExtraKeyRejected marks the output message of a rejected pipeline run.
const ExtraKeyRejected = "admission_rejected"

// Degradation labels recorded on the Exchange when a stage fails before
// generation. The pipeline answers with the fallback text on any of them.
const (
	DegradedAgentLookup    = "agent_lookup"
	DegradedAdmissionStore = "admission_store"
	DegradedPromptBuild    = "prompt_build"
)

// ResponseGenerator is the generation stage as the graph sees it.
// generate.Generator satisfies it; tests substitute fakes.
type ResponseGenerator interface {
	Generate(ctx context.Context, req generate.Request) generate.Reply
}

// NewAdmissionPreHandler seeds the per-invocation state from the inbound
// message and tags the run with a correlation id.
func NewAdmissionPreHandler() func(context.Context, model.InboundMessage, *model.PipelineState) (model.InboundMessage, error) {
	return func(ctx context.Context, in model.InboundMessage, s *model.PipelineState) (model.InboundMessage, error) {
		s.CorrelationID = uuid.NewString()
		s.SenderNumber = in.SenderNumber
		s.AgentID = in.AgentID
		s.UserMessage = in.MessageText
		return in, nil
	}
}

// NewAdmissionNode resolves the agent and evaluates the admission gate.
// Infrastructure failures here never abort the run: they mark the exchange
// degraded so the pipeline still answers with the fallback text.
func NewAdmissionNode(
	gate *admission.Gate,
	agents model.AgentRepository,
	trials model.TrialRepository,
) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.InboundMessage) (*model.Exchange, error) {
		ex := &model.Exchange{Inbound: in}

		agent, err := agents.GetByID(ctx, in.AgentID)
		if err != nil {
			logx.Error().Err(err).Str("agent_id", in.AgentID).Msg("agent lookup failed")
			ex.Degraded = DegradedAgentLookup
			return ex, nil
		}
		ex.Agent = agent
		if !agent.Active {
			logx.Debug().Str("agent_id", agent.ID).Msg("message routed to an inactive agent")
		}

		if err := compose.ProcessState(ctx, func(_ context.Context, s *model.PipelineState) error {
			s.UserID = agent.UserID
			return nil
		}); err != nil {
			logx.Error().Err(err).Msg("failed to access pipeline state")
		}

		dec, err := gate.Check(ctx, agent.UserID)
		if err != nil {
			logx.Error().Err(err).Str("user_id", agent.UserID).Msg("admission check failed")
			ex.Degraded = DegradedAdmissionStore
			return ex, nil
		}
		ex.Decision = dec

		if dec.Allowed && dec.Mode == model.ModeAPI {
			// api-mode users answer with their own credentials and model.
			st, err := trials.Get(ctx, agent.UserID)
			if err != nil {
				logx.Warn().Err(err).Str("user_id", agent.UserID).Msg("credential lookup failed, using platform key")
			} else {
				ex.APIKey = st.APIKey
				ex.ModelName = st.APIModel
			}
		}
		return ex, nil
	})
}

// NewAdmissionCondition routes denied messages to the rejection node and
// everything else, including degraded runs, onward.
func NewAdmissionCondition() func(context.Context, *model.Exchange) (string, error) {
	return func(ctx context.Context, ex *model.Exchange) (string, error) {
		if ex.Degraded == "" && !ex.Decision.Allowed {
			logx.Debug().Str("reason", ex.Decision.Reason).Msg("message rejected by admission gate")
			return NodeRejection, nil
		}
		return NodeRetriever, nil
	}
}

// NewRejectionNode terminates a denied run with the admission reason. No
// model call, no persistence, no memory write happen on this path.
func NewRejectionNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, ex *model.Exchange) (*schema.Message, error) {
		out := schema.AssistantMessage(ex.Decision.Reason, nil)
		out.Extra = map[string]any{ExtraKeyRejected: true}
		return out, nil
	})
}

// NewRetrieverNode queries the knowledge index under a bounded budget.
// A retrieval timeout or failure is treated identically: empty context,
// logged, pipeline continues. It is never surfaced to the end user.
func NewRetrieverNode(r retrieval.Retriever, cfg model.PipelineConfig) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, ex *model.Exchange) (*model.Exchange, error) {
		if ex.Degraded != "" || ex.Agent == nil {
			return ex, nil
		}

		searchCtx, cancel := context.WithTimeout(ctx, cfg.RetrieveTimeout)
		defer cancel()

		passages, err := r.Search(searchCtx, ex.Agent.UserID, ex.Inbound.MessageText, cfg.TopK, ex.Agent.KnowledgeBaseIDs)
		if err != nil {
			logx.Warn().Err(err).
				Str("agent_id", ex.Agent.ID).
				Msg("retrieval degraded, continuing with empty context")
			return ex, nil
		}
		ex.Passages = passages
		logx.Debug().Int("passages", len(passages)).Msg("knowledge retrieved")
		return ex, nil
	})
}

// NewAssemblerNode composes the system prompt from the agent identity,
// retrieved context, and lead context.
func NewAssemblerNode(cfg model.PipelineConfig) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, ex *model.Exchange) (*model.Exchange, error) {
		if ex.Degraded != "" {
			return ex, nil
		}

		systemPrompt, err := prompt.Build(ctx, prompt.BuildInput{
			AgentName:          ex.Agent.DisplayName,
			Passages:           ex.Passages,
			RelevanceFloor:     cfg.RelevanceFloor,
			LeadName:           ex.Inbound.LeadName,
			Options:            ex.Agent.Options,
			CustomInstructions: ex.Agent.SystemPrompt,
			Now:                time.Now(),
		})
		if err != nil {
			logx.Error().Err(err).Msg("system prompt build failed")
			ex.Degraded = DegradedPromptBuild
			return ex, nil
		}
		ex.SystemPrompt = systemPrompt
		return ex, nil
	})
}

// NewGeneratorNode produces the reply message. The generator itself never
// fails; degraded runs skip the model entirely and answer with the fallback.
func NewGeneratorNode(
	gen ResponseGenerator,
	mem *memory.WindowStore,
	respCfg model.ResponseModelConfig,
) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, ex *model.Exchange) (*schema.Message, error) {
		if ex.Degraded != "" {
			logx.Warn().Str("cause", ex.Degraded).Msg("pipeline degraded before generation, replying with fallback")
			return schema.AssistantMessage(respCfg.FallbackText, nil), nil
		}

		history := mem.Get(ex.Inbound.SenderNumber)
		reply := gen.Generate(ctx, generate.Request{
			SystemPrompt: ex.SystemPrompt,
			History:      history,
			UserMessage:  ex.Inbound.MessageText,
			ModelName:    ex.ModelName,
			APIKey:       ex.APIKey,
		})
		return schema.AssistantMessage(reply.Text, nil), nil
	})
}

// NewGeneratorPostHandler appends the exchange to conversation memory and
// records it durably. Both are best-effort: a persistence failure is logged
// and never blocks or fails the reply.
func NewGeneratorPostHandler(
	mem *memory.WindowStore,
	logs model.ConversationLogRepository,
) func(context.Context, *schema.Message, *model.PipelineState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, s *model.PipelineState) (*schema.Message, error) {
		if out == nil || strings.TrimSpace(out.Content) == "" {
			return out, nil
		}

		mem.Append(s.SenderNumber, schema.UserMessage(s.UserMessage))
		mem.Append(s.SenderNumber, schema.AssistantMessage(out.Content, nil))

		err := logs.Record(ctx, &model.ConversationLog{
			UserID:        s.UserID,
			AgentID:       s.AgentID,
			SenderNumber:  s.SenderNumber,
			UserMessage:   s.UserMessage,
			AgentResponse: out.Content,
		})
		if err != nil {
			logx.Error().Err(err).
				Str("correlation_id", s.CorrelationID).
				Str("sender", s.SenderNumber).
				Msg("failed to record conversation, reply unaffected")
		}
		return out, nil
	}
}
