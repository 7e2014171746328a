package main

import (
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/llamabridge/internal/config"
)

var (
	configPath string
	logLevel   string
	logFormat  string

	modelPath    string
	providerName string
	gpuLayers    int64
	ctxSize      int64
	batchSize    int64
	threads      int64
	noMmap       bool

	temperature      float64
	topP             float64
	topK             int64
	minP             float64
	repeatPenalty    float64
	frequencyPenalty float64
	presencePenalty  float64
	repeatLastN      int64
	seed             int64
	maxTokens        int64
	stopSequences    []string
	timeout          time.Duration
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config file (yaml or toml)",
			Sources:     cli.EnvVars(config.EnvPath),
			Destination: &configPath,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (auto, pretty, text, json)",
			Value:       "auto",
			Destination: &logFormat,
		},
	}
}

func modelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "path to .gguf model file",
			Destination: &modelPath,
		},
		&cli.StringFlag{
			Name:        "provider",
			Usage:       "model runtime provider",
			Destination: &providerName,
		},
		&cli.Int64Flag{
			Name:        "n-gpu-layers",
			Aliases:     []string{"ngl"},
			Usage:       "layers to offload to the GPU",
			Destination: &gpuLayers,
		},
		&cli.Int64Flag{
			Name:        "ctx-size",
			Aliases:     []string{"c"},
			Usage:       "context window in tokens (0 = runtime default)",
			Destination: &ctxSize,
		},
		&cli.Int64Flag{
			Name:        "batch-size",
			Aliases:     []string{"b"},
			Usage:       "prompt batch size (0 = runtime default)",
			Destination: &batchSize,
		},
		&cli.Int64Flag{
			Name:        "threads",
			Aliases:     []string{"t"},
			Usage:       "decode threads (0 = runtime default)",
			Destination: &threads,
		},
		&cli.BoolFlag{
			Name:        "no-mmap",
			Usage:       "read the model into memory instead of mapping it",
			Destination: &noMmap,
		},
	}
}

// samplingFlags carry no defaults of their own; unset flags fall through to
// the config file and then to the engine defaults.
func samplingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Float64Flag{
			Name:        "temperature",
			Aliases:     []string{"temp"},
			Usage:       "sampling temperature (0 = greedy)",
			Destination: &temperature,
		},
		&cli.Float64Flag{
			Name:        "top-p",
			Usage:       "nucleus sampling threshold",
			Destination: &topP,
		},
		&cli.Int64Flag{
			Name:        "top-k",
			Usage:       "keep the k most likely tokens (0 = disabled)",
			Destination: &topK,
		},
		&cli.Float64Flag{
			Name:        "min-p",
			Usage:       "minimum probability relative to the top token",
			Destination: &minP,
		},
		&cli.Float64Flag{
			Name:        "repeat-penalty",
			Usage:       "repetition penalty (1 = disabled)",
			Destination: &repeatPenalty,
		},
		&cli.Float64Flag{
			Name:        "frequency-penalty",
			Usage:       "frequency penalty",
			Destination: &frequencyPenalty,
		},
		&cli.Float64Flag{
			Name:        "presence-penalty",
			Usage:       "presence penalty",
			Destination: &presencePenalty,
		},
		&cli.Int64Flag{
			Name:        "repeat-last-n",
			Usage:       "penalty window in tokens",
			Destination: &repeatLastN,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "sampling seed (-1 = random)",
			Destination: &seed,
		},
		&cli.Int64Flag{
			Name:        "max-tokens",
			Aliases:     []string{"n"},
			Usage:       "token budget per generation",
			Destination: &maxTokens,
		},
		&cli.StringSliceFlag{
			Name:        "stop",
			Usage:       "stop sequence (repeatable)",
			Destination: &stopSequences,
		},
		&cli.DurationFlag{
			Name:        "timeout",
			Usage:       "generation timeout, e.g. 30s (0 = none)",
			Destination: &timeout,
		},
	}
}
