package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/llamabridge/internal/gguf"
	"github.com/samcharles93/llamabridge/internal/llm"
)

func infoCmd() *cli.Command {
	var jsonOut bool

	return &cli.Command{
		Name:  "info",
		Usage: "Load a model and print what the runtime reports about it",
		Flags: append(modelFlags(),
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print as JSON",
				Destination: &jsonOut,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			engine, err := openEngine(ctx, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			info := engine.ModelInfo()
			if jsonOut {
				return writeJSON(os.Stdout, info)
			}
			return printModelInfo(os.Stdout, info)
		},
	}
}

func printModelInfo(w io.Writer, info llm.ModelInfo) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	row := func(k string, v any) { _, _ = fmt.Fprintf(tw, "%s\t%v\n", k, v) }
	row("path", info.Path)
	if info.Description != "" {
		row("description", info.Description)
	}
	row("size", formatBytes(info.SizeBytes))
	row("params", info.NParams)
	row("n_ctx_train", info.NCtxTrain)
	row("n_ctx", info.NCtx)
	row("n_batch", info.NBatch)
	row("n_embd", info.NEmbd)
	row("n_layer", info.NLayer)
	row("n_head", info.NHead)
	row("vocab_size", info.VocabSize)
	row("vocab_type", vocabTypeName(info.VocabType))
	row("rope_type", ropeTypeName(info.RopeType))
	row("bos_token", tokenString(info.BOSToken))
	row("eos_token", tokenString(info.EOSToken))
	row("has_encoder", info.HasEncoder)
	row("has_decoder", info.HasDecoder)
	row("is_recurrent", info.IsRecurrent)
	return tw.Flush()
}

func tokenString(tok *llm.Token) string {
	if tok == nil {
		return "none"
	}
	return fmt.Sprint(int32(*tok))
}

func vocabTypeName(t int) string {
	switch t {
	case gguf.VocabNone:
		return "none"
	case gguf.VocabSPM:
		return "spm"
	case gguf.VocabBPE:
		return "bpe"
	case gguf.VocabWPM:
		return "wpm"
	case gguf.VocabUGM:
		return "ugm"
	case gguf.VocabRWKV:
		return "rwkv"
	}
	return fmt.Sprintf("unknown(%d)", t)
}

func ropeTypeName(t int) string {
	switch t {
	case gguf.RopeNone:
		return "none"
	case gguf.RopeNorm:
		return "norm"
	case gguf.RopeNeox:
		return "neox"
	case gguf.RopeMRope:
		return "mrope"
	}
	return fmt.Sprintf("unknown(%d)", t)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
