package model

import "time"

// ================ Config ================

// PipelineConfig tunes the retrieval and admission stages of the pipeline.
// The reference values are deliberately env-tunable rather than constants;
// whether they become per-agent settings is pending a product decision.
type PipelineConfig struct {
	TopK            int           `envconfig:"PIPELINE_TOP_K" default:"5"`
	RelevanceFloor  float64       `envconfig:"PIPELINE_RELEVANCE_FLOOR" default:"0.3"`
	RetrieveTimeout time.Duration `envconfig:"PIPELINE_RETRIEVE_TIMEOUT" default:"5s"`
}

// ResponseModelConfig tunes the response generation stage.
type ResponseModelConfig struct {
	Model         string        `envconfig:"RESPONSE_MODEL" default:"gemini-2.5-flash"`
	MaxTokens     int           `envconfig:"RESPONSE_MAX_TOKENS" default:"2000"`
	Temperature   float32       `envconfig:"RESPONSE_TEMPERATURE" default:"0.4"`
	Timeout       time.Duration `envconfig:"RESPONSE_TIMEOUT" default:"30s"`
	HistoryWindow int           `envconfig:"RESPONSE_HISTORY_WINDOW" default:"8"`
	FallbackText  string        `envconfig:"RESPONSE_FALLBACK_TEXT" default:"Sorry, I'm having trouble answering right now. Please try again in a few minutes."`
}

// MemoryConfig tunes the in-process conversation window store.
type MemoryConfig struct {
	Capacity  int           `envconfig:"MEMORY_CAPACITY" default:"20"`
	SweepIdle time.Duration `envconfig:"MEMORY_SWEEP_IDLE" default:"24h"`
	SweepSpec string        `envconfig:"MEMORY_SWEEP_SPEC" default:"@hourly"`
}

// TrialConfig tunes the admission gate.
type TrialConfig struct {
	Duration time.Duration `envconfig:"TRIAL_DURATION" default:"24h"`
}
