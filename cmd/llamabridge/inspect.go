package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/llamabridge/internal/gguf"
	"github.com/samcharles93/llamabridge/internal/llm"
)

func inspectCmd() *cli.Command {
	var (
		jsonOut bool
		showKV  bool
	)

	return &cli.Command{
		Name:      "inspect",
		Usage:     "Print GGUF header metadata without loading the model",
		ArgsUsage: "<model.gguf>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "kv",
				Usage:       "list every metadata key",
				Destination: &showKV,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print as JSON",
				Destination: &jsonOut,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				path = fileConfig.Model.Path
			}
			if path == "" {
				return cli.Exit("inspect: model path required", 2)
			}
			md, err := gguf.ReadFile(path)
			if err != nil {
				return err
			}
			if jsonOut {
				out := struct {
					Version     uint32         `json:"version"`
					TensorCount uint64         `json:"tensor_count"`
					Info        llm.ModelInfo  `json:"info"`
					KV          map[string]any `json:"kv,omitempty"`
				}{
					Version:     md.Header.Version,
					TensorCount: md.Header.TensorCount,
					Info:        md.Describe(),
				}
				if showKV {
					out.KV = make(map[string]any, len(md.KV))
					for k, v := range md.KV {
						out.KV[k] = v.Value
					}
				}
				return writeJSON(os.Stdout, out)
			}

			_, _ = fmt.Fprintf(os.Stdout, "gguf v%d, %d tensors, %d keys\n", md.Header.Version, md.Header.TensorCount, md.Header.KVCount)
			if err := printModelInfo(os.Stdout, md.Describe()); err != nil {
				return err
			}
			if showKV {
				_, _ = fmt.Fprintln(os.Stdout)
				return printKV(os.Stdout, md)
			}
			return nil
		},
	}
}

func printKV(w io.Writer, md *gguf.Metadata) error {
	keys := make([]string, 0, len(md.KV))
	for k := range md.KV {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, k := range keys {
		v := md.KV[k]
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", k, v.Type, formatValue(v))
	}
	return tw.Flush()
}

func formatValue(v gguf.Value) string {
	arr, ok := v.Value.(gguf.ArrayValue)
	if !ok {
		s := fmt.Sprint(v.Value)
		if len(s) > 80 {
			s = s[:77] + "..."
		}
		return s
	}
	const preview = 8
	parts := make([]string, 0, preview)
	for i, e := range arr.Values {
		if i == preview {
			break
		}
		parts = append(parts, fmt.Sprint(e))
	}
	more := ""
	if arr.Len > uint64(len(parts)) {
		more = fmt.Sprintf(", ... (%d total)", arr.Len)
	}
	return fmt.Sprintf("[%s] %s%s", arr.ElemType, strings.Join(parts, ", "), more)
}
