package api

import (
	"github.com/samcharles93/llamabridge/internal/inference"
	"github.com/samcharles93/llamabridge/internal/llm"
)

type LoadModelRequest struct {
	Path    string          `json:"path"`
	Options llm.LoadOptions `json:"options"`
}

type LoadModelResponse struct {
	Status string         `json:"status"`
	Loaded bool           `json:"loaded"`
	Model  *llm.ModelInfo `json:"model,omitempty"`
}

type ModelLoadedResponse struct {
	Loaded bool   `json:"loaded"`
	Path   string `json:"path,omitempty"`
}

// GenerateRequest runs one prompt. Sampling fields override the engine
// configuration for this request only.
type GenerateRequest struct {
	Prompt string `json:"prompt"`
	// Store keeps the record for GET /v1/generations/:id. Defaults to true.
	Store *bool `json:"store,omitempty"`
	inference.Overrides
}

func (r GenerateRequest) validate() error {
	if r.Prompt == "" {
		return newInvalidParam("prompt", "prompt is required")
	}
	return nil
}

func (r GenerateRequest) overrides() inference.Overrides {
	return r.Overrides
}

type SamplingConfig struct {
	Temperature      float32  `json:"temperature"`
	TopP             float32  `json:"top_p"`
	TopK             int32    `json:"top_k"`
	MinP             float32  `json:"min_p"`
	RepeatPenalty    float32  `json:"repeat_penalty"`
	FrequencyPenalty float32  `json:"frequency_penalty"`
	PresencePenalty  float32  `json:"presence_penalty"`
	RepeatLastN      int32    `json:"repeat_last_n"`
	Seed             uint32   `json:"seed"`
	RandomSeed       bool     `json:"random_seed"`
	MaxTokens        int32    `json:"max_tokens"`
	Stop             []string `json:"stop"`
	Timeout          string   `json:"timeout"`
}

// NewSamplingConfig renders c in its wire form.
func NewSamplingConfig(c inference.Config) SamplingConfig {
	stop := c.StopSequences
	if stop == nil {
		stop = []string{}
	}
	return SamplingConfig{
		Temperature:      c.Temperature,
		TopP:             c.TopP,
		TopK:             c.TopK,
		MinP:             c.MinP,
		RepeatPenalty:    c.RepeatPenalty,
		FrequencyPenalty: c.FrequencyPenalty,
		PresencePenalty:  c.PresencePenalty,
		RepeatLastN:      c.RepeatLastN,
		Seed:             c.Seed,
		RandomSeed:       c.Seed == inference.SeedRandom,
		MaxTokens:        c.MaxTokens,
		Stop:             stop,
		Timeout:          c.Timeout.String(),
	}
}

type StopList struct {
	Stop []string `json:"stop"`
}

type StatusResponse struct {
	Loaded    bool   `json:"loaded"`
	ModelPath string `json:"model_path,omitempty"`
	TimedOut  bool   `json:"timed_out"`
	// Timeouts counts timed-out calls since the server started.
	Timeouts int64 `json:"timeouts"`
	Records  int   `json:"records"`
}
