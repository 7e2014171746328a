package main

import (
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/llamabridge/internal/config"
	"github.com/samcharles93/llamabridge/internal/inference"
	"github.com/samcharles93/llamabridge/internal/llm"
)

// fileConfig is populated by setup before any subcommand runs.
var fileConfig config.File

// applyModelConfig fills model flags the user did not set from the config
// file and returns the load options to use.
func applyModelConfig(c *cli.Command, cfg config.File) llm.LoadOptions {
	if cfg.Model.Path != "" && !c.IsSet("model") {
		modelPath = cfg.Model.Path
	}
	if cfg.Model.Provider != "" && !c.IsSet("provider") {
		providerName = cfg.Model.Provider
	}

	var opts llm.LoadOptions
	if c.IsSet("n-gpu-layers") {
		n := int(gpuLayers)
		opts.GPULayers = &n
	}
	if c.IsSet("no-mmap") {
		mmap := !noMmap
		opts.UseMmap = &mmap
	}
	opts.CtxSize = int(ctxSize)
	opts.BatchSize = int(batchSize)
	opts.Threads = int(threads)
	return opts.Merge(cfg.Model.Options)
}

// engineConfig is the engine defaults, then the config file's sampling
// section, then any sampling flags set on the command line.
func engineConfig(c *cli.Command, cfg config.File) inference.Config {
	ec := cfg.EngineConfig()
	ec.Apply(samplingOverrides(c))
	return ec
}

// samplingOverrides collects the sampling flags set on the command line.
func samplingOverrides(c *cli.Command) inference.Overrides {
	var ov inference.Overrides
	if c.IsSet("temperature") {
		ov.Temperature = ptr(float32(temperature))
	}
	if c.IsSet("top-p") {
		ov.TopP = ptr(float32(topP))
	}
	if c.IsSet("top-k") {
		ov.TopK = ptr(int32(topK))
	}
	if c.IsSet("min-p") {
		ov.MinP = ptr(float32(minP))
	}
	if c.IsSet("repeat-penalty") {
		ov.RepeatPenalty = ptr(float32(repeatPenalty))
	}
	if c.IsSet("frequency-penalty") {
		ov.FrequencyPenalty = ptr(float32(frequencyPenalty))
	}
	if c.IsSet("presence-penalty") {
		ov.PresencePenalty = ptr(float32(presencePenalty))
	}
	if c.IsSet("repeat-last-n") {
		ov.RepeatLastN = ptr(int32(repeatLastN))
	}
	if c.IsSet("seed") {
		ov.Seed = ptr(seed)
	}
	if c.IsSet("max-tokens") {
		ov.MaxTokens = ptr(clampInt32(maxTokens))
	}
	if c.IsSet("stop") {
		ov.StopSequences = append([]string(nil), stopSequences...)
	}
	if c.IsSet("timeout") {
		ov.Timeout = ptr(inference.Duration(timeout))
	}
	return ov
}

func ptr[T any](v T) *T { return &v }

func clampInt32(v int64) int32 {
	switch {
	case v > 1<<31-1:
		return 1<<31 - 1
	case v < -1<<31:
		return -1 << 31
	}
	return int32(v)
}
