package model

// InboundMessage is the tuple the transport layer delivers for each inbound
// WhatsApp message event.
type InboundMessage struct {
	SenderNumber string `json:"sender_number"`
	MessageText  string `json:"message_text"`
	AgentID      string `json:"agent_id"`
	LeadName     string `json:"lead_name,omitempty"`
}

// Outcome is the terminal result of one pipeline run. Exactly one of Reply or
// (Rejected, Reason) is meaningful; an admitted message always carries a
// non-empty Reply.
type Outcome struct {
	Reply    string `json:"reply,omitempty"`
	Rejected bool   `json:"rejected,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// AdmissionDecision is the admission gate's read-only verdict.
type AdmissionDecision struct {
	Allowed bool
	Reason  string
	Mode    ConnectionMode
}

// Exchange is the working value threaded through the pipeline graph nodes.
type Exchange struct {
	Inbound  InboundMessage
	Agent    *Agent
	Decision AdmissionDecision

	// Degraded names an internal failure that happened before generation
	// (agent lookup, admission store). The pipeline skips the model call and
	// answers with the fallback text, but still persists the exchange.
	Degraded string

	// Credentials resolved for api-mode users; empty means platform key.
	APIKey    string
	ModelName string

	Passages     []RetrievedPassage
	SystemPrompt string
}

// PipelineState stores per-invocation state for the pipeline graph.
// All reads/writes happen only inside graph state handlers, which the graph
// runtime serializes; do not touch it outside handlers.
type PipelineState struct {
	CorrelationID string
	SenderNumber  string
	AgentID       string
	UserID        string
	UserMessage   string
}
