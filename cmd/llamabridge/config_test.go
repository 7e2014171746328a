package main

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/llamabridge/internal/config"
	"github.com/samcharles93/llamabridge/internal/inference"
	"github.com/samcharles93/llamabridge/internal/llm"
)

// runFlags parses args against flags and calls fn with the parsed command.
func runFlags(t *testing.T, flags []cli.Flag, args []string, fn func(*cli.Command)) {
	t.Helper()
	cmd := &cli.Command{
		Name:  "test",
		Flags: flags,
		Action: func(_ context.Context, c *cli.Command) error {
			fn(c)
			return nil
		},
	}
	if err := cmd.Run(context.Background(), append([]string{"test"}, args...)); err != nil {
		t.Fatalf("Run(%v): %v", args, err)
	}
}

func TestEngineConfigLayers(t *testing.T) {
	temp := float32(0.3)
	topK := int32(10)
	cfg := config.File{Sampling: inference.Overrides{Temperature: &temp, TopK: &topK}}

	var got inference.Config
	runFlags(t, samplingFlags(), []string{"--temperature", "0.9", "--stop", "###", "--timeout", "2s"}, func(c *cli.Command) {
		got = engineConfig(c, cfg)
	})

	if got.Temperature != float32(0.9) {
		t.Fatalf("Temperature = %v, want flag value 0.9", got.Temperature)
	}
	if got.TopK != 10 {
		t.Fatalf("TopK = %d, want file value 10", got.TopK)
	}
	if got.TopP != inference.DefaultTopP {
		t.Fatalf("TopP = %v, want default", got.TopP)
	}
	if !slices.Equal(got.StopSequences, []string{"###"}) {
		t.Fatalf("StopSequences = %q", got.StopSequences)
	}
	if got.Timeout != 2*time.Second {
		t.Fatalf("Timeout = %s", got.Timeout)
	}
}

func TestEngineConfigFlagsAreClamped(t *testing.T) {
	var got inference.Config
	runFlags(t, samplingFlags(), []string{"--temperature=-1", "--seed=-1"}, func(c *cli.Command) {
		got = engineConfig(c, config.File{})
	})
	if got.Temperature != 0 {
		t.Fatalf("Temperature = %v, want 0", got.Temperature)
	}
	if got.Seed != inference.SeedRandom {
		t.Fatalf("Seed = %d, want SeedRandom", got.Seed)
	}
}

func TestApplyModelConfig(t *testing.T) {
	mmap := true
	cfg := config.File{Model: config.Model{
		Path:     "from-file.gguf",
		Provider: "file-provider",
		Options:  llm.LoadOptions{CtxSize: 4096, Threads: 8, UseMmap: &mmap},
	}}

	t.Run("file fills unset flags", func(t *testing.T) {
		var opts llm.LoadOptions
		runFlags(t, modelFlags(), []string{"--ctx-size", "1024", "--ngl", "0"}, func(c *cli.Command) {
			opts = applyModelConfig(c, cfg)
		})
		if modelPath != "from-file.gguf" || providerName != "file-provider" {
			t.Fatalf("model=%q provider=%q", modelPath, providerName)
		}
		if opts.CtxSize != 1024 || opts.Threads != 8 {
			t.Fatalf("opts = %+v", opts)
		}
		if opts.GPULayers == nil || *opts.GPULayers != 0 {
			t.Fatalf("GPULayers = %v, want explicit 0", opts.GPULayers)
		}
		if opts.UseMmap == nil || !*opts.UseMmap {
			t.Fatalf("UseMmap = %v, want file value", opts.UseMmap)
		}
	})

	t.Run("flags win", func(t *testing.T) {
		var opts llm.LoadOptions
		runFlags(t, modelFlags(), []string{"-m", "flag.gguf", "--no-mmap"}, func(c *cli.Command) {
			opts = applyModelConfig(c, cfg)
		})
		if modelPath != "flag.gguf" {
			t.Fatalf("model = %q", modelPath)
		}
		if opts.UseMmap == nil || *opts.UseMmap {
			t.Fatalf("UseMmap = %v, want false", opts.UseMmap)
		}
		if opts.GPULayers != nil {
			t.Fatalf("GPULayers = %v, want unset", *opts.GPULayers)
		}
	})
}

func TestClampInt32(t *testing.T) {
	t.Parallel()
	cases := map[int64]int32{
		5:          5,
		-3:         -3,
		1 << 40:    1<<31 - 1,
		-(1 << 40): -1 << 31,
	}
	for in, want := range cases {
		if got := clampInt32(in); got != want {
			t.Fatalf("clampInt32(%d) = %d, want %d", in, got, want)
		}
	}
}
