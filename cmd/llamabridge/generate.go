package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/llamabridge/internal/inference"
)

type generateOutput struct {
	Text            string  `json:"text"`
	Reason          string  `json:"reason"`
	StopSequence    string  `json:"stop_sequence,omitempty"`
	Error           string  `json:"error,omitempty"`
	PromptTokens    int     `json:"prompt_tokens"`
	TokensGenerated int     `json:"tokens_generated"`
	DurationMS      int64   `json:"duration_ms"`
	TPS             float64 `json:"tokens_per_second"`
	TimedOut        bool    `json:"timed_out"`
}

func newGenerateOutput(res *inference.Result, timedOut bool) generateOutput {
	out := generateOutput{
		Text:            res.Text,
		Reason:          string(res.Reason),
		StopSequence:    res.StopSequence,
		PromptTokens:    res.PromptTokens,
		TokensGenerated: res.TokensGenerated,
		DurationMS:      res.Duration.Milliseconds(),
		TPS:             res.TPS,
		TimedOut:        timedOut,
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}

func generateCmd() *cli.Command {
	var (
		prompt   string
		jsonOut  bool
		showStat bool
	)

	return &cli.Command{
		Name:      "generate",
		Aliases:   []string{"gen"},
		Usage:     "Generate a completion for one prompt",
		ArgsUsage: "[prompt]",
		Flags: append(append(modelFlags(), samplingFlags()...),
			&cli.StringFlag{
				Name:        "prompt",
				Aliases:     []string{"p"},
				Usage:       "prompt text (default: arguments, then stdin)",
				Destination: &prompt,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print the result as JSON",
				Destination: &jsonOut,
			},
			&cli.BoolFlag{
				Name:        "stats",
				Usage:       "print token statistics to stderr",
				Destination: &showStat,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			text, err := resolvePrompt(prompt, cmd.Args().Slice(), os.Stdin)
			if err != nil {
				return err
			}
			engine, err := openEngine(ctx, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			res, err := engine.GenerateResult(ctx, text)
			if err != nil {
				return err
			}
			if jsonOut {
				if err := writeJSON(os.Stdout, newGenerateOutput(res, engine.HasGenerationTimedOut())); err != nil {
					return err
				}
			} else {
				fmt.Println(res.Text)
			}
			if showStat {
				printStats(os.Stderr, res)
			}
			if res.Err != nil {
				return cli.Exit(fmt.Sprintf("generation failed: %v", res.Err), 1)
			}
			return nil
		},
	}
}

// resolvePrompt takes the prompt from the flag, then from the positional
// arguments, then from r.
func resolvePrompt(flag string, args []string, r io.Reader) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read prompt: %w", err)
	}
	text := strings.TrimRight(string(data), "\r\n")
	if text == "" {
		return "", cli.Exit("empty prompt", 2)
	}
	return text, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printStats(w io.Writer, res *inference.Result) {
	_, _ = fmt.Fprintf(w, "reason=%s prompt_tokens=%d generated=%d duration=%s tps=%.2f\n",
		res.Reason, res.PromptTokens, res.TokensGenerated, res.Duration.Round(time.Millisecond), res.TPS)
}
