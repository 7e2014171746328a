package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/llamabridge/internal/api"
	"github.com/samcharles93/llamabridge/internal/inference"
	"github.com/samcharles93/llamabridge/internal/logger"
)

const replHelp = `commands:
  /quit            exit
  /config          print the sampling configuration
  /reset           restore sampling defaults
  /stop a,b,...    replace the stop sequences ("/stop" alone clears them)
  /help            this text
anything else is sent to the model as a prompt`

func replCmd() *cli.Command {
	return &cli.Command{
		Name:  "repl",
		Usage: "Generate one completion per input line",
		Flags: append(modelFlags(), samplingFlags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			engine, err := openEngine(ctx, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			unsubscribe := engine.OnTimeout(func(ev inference.TimeoutEvent) {
				_, _ = fmt.Fprintf(os.Stderr, "[timed out after %s, %d tokens]\n", ev.Elapsed.Round(time.Millisecond), ev.TokensGenerated)
			})
			defer unsubscribe()

			prompt := ""
			if isTerminal(os.Stdin) {
				prompt = "> "
			}
			return runREPL(ctx, engine, os.Stdin, os.Stdout, prompt)
		},
	}
}

// replEngine is the part of *inference.Engine the REPL drives.
type replEngine interface {
	GenerateResult(ctx context.Context, prompt string) (*inference.Result, error)
	Config() inference.Config
	ResetConfig() inference.Config
	SetStopSequences(seqs []string) []string
	ClearStopSequences()
}

func runREPL(ctx context.Context, engine replEngine, in io.Reader, out io.Writer, prompt string) error {
	log := logger.FromContext(ctx)
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, _ = fmt.Fprint(out, prompt)
		if !sc.Scan() {
			if prompt != "" {
				_, _ = fmt.Fprintln(out)
			}
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit, err := replCommand(engine, line, out)
			if err != nil {
				_, _ = fmt.Fprintln(out, err)
			}
			if quit {
				return nil
			}
			continue
		}

		res, err := engine.GenerateResult(ctx, line)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out, res.Text)
		if res.Err != nil {
			log.Warn("generation failed", "error", res.Err)
		}
	}
}

func replCommand(engine replEngine, line string, out io.Writer) (quit bool, err error) {
	name, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "quit", "exit", "q":
		return true, nil
	case "config":
		return false, writeJSON(out, api.NewSamplingConfig(engine.Config()))
	case "reset":
		engine.ResetConfig()
	case "stop":
		if arg == "" {
			engine.ClearStopSequences()
			return false, nil
		}
		set := engine.SetStopSequences(strings.Split(arg, ","))
		_, _ = fmt.Fprintf(out, "stop sequences: %q\n", set)
	case "help", "?":
		_, _ = fmt.Fprintln(out, replHelp)
	default:
		return false, fmt.Errorf("unknown command /%s (try /help)", name)
	}
	return false, nil
}
