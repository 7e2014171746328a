package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestOpen(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format  string
		tty     bool
		want    string
		wantErr bool
	}{
		{format: "json", want: `"msg":"opened"`},
		{format: "JSON", want: `"level":"INFO"`},
		{format: "text", want: "msg=opened"},
		{format: "auto", tty: false, want: "msg=opened"},
		{format: "", tty: true, want: ansiBold},
		{format: "pretty", tty: false, want: "INFO  opened"},
		{format: "xml", wantErr: true},
	}

	for _, tc := range tests {
		var buf bytes.Buffer
		log, err := Open(&buf, tc.format, slog.LevelInfo, tc.tty)
		if tc.wantErr {
			if err == nil {
				t.Errorf("Open(%q): expected error", tc.format)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Open(%q): %v", tc.format, err)
		}
		log.Info("opened")
		if !strings.Contains(buf.String(), tc.want) {
			t.Errorf("Open(%q, tty=%v): output %q missing %q", tc.format, tc.tty, buf.String(), tc.want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()

	for name, open := range map[string]func(*bytes.Buffer) Logger{
		"json":   func(b *bytes.Buffer) Logger { return JSON(b, slog.LevelWarn) },
		"text":   func(b *bytes.Buffer) Logger { return Text(b, slog.LevelWarn) },
		"pretty": func(b *bytes.Buffer) Logger { return Pretty(b, slog.LevelWarn) },
	} {
		var buf bytes.Buffer
		log := open(&buf)
		log.Debug("hidden")
		log.Info("hidden")
		if buf.Len() != 0 {
			t.Fatalf("%s: records below warn were written: %q", name, buf.String())
		}
		log.Warn("timeout fired")
		if !strings.Contains(buf.String(), "timeout fired") {
			t.Fatalf("%s: warn record missing: %q", name, buf.String())
		}
	}
}

func TestWithAndGroupJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo).With("component", "engine").WithGroup("gen")
	log.Info("finished", "reason", "budget")

	out := buf.String()
	for _, want := range []string{`"component":"engine"`, `"gen":{"reason":"budget"}`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %s", out, want)
		}
	}
}

func TestContext(t *testing.T) {
	t.Parallel()

	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext without a logger returned nil")
	}

	var buf bytes.Buffer
	ctx := WithContext(context.Background(), Text(&buf, slog.LevelInfo))
	FromContext(ctx).Info("via context")
	if !strings.Contains(buf.String(), "via context") {
		t.Fatalf("context logger not used: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{" Warn ", slog.LevelWarn, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tc := range tests {
		got, err := ParseLevel(tc.input)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseLevel(%q): err = %v, wantErr %v", tc.input, err, tc.wantErr)
		}
		if got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestDiscard(t *testing.T) {
	t.Parallel()
	log := Discard()
	log.Error("dropped")
	log.With("k", "v").WithGroup("g").Warn("dropped")
}

// prettyLine logs one record through a colorless PrettyHandler built by
// wrap and returns the written line.
func prettyLine(t *testing.T, wrap func(slog.Handler) slog.Handler, args ...any) string {
	t.Helper()
	var buf bytes.Buffer
	var h slog.Handler = NewPrettyHandler(&buf, &PrettyOptions{Level: slog.LevelDebug})
	if wrap != nil {
		h = wrap(h)
	}
	slog.New(h).Debug("msg", args...)
	return buf.String()
}

func TestPrettyAttrs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		wrap func(slog.Handler) slog.Handler
		args []any
		want string
	}{
		{name: "plain", args: []any{"key", "simple"}, want: " key=simple\n"},
		{name: "spaces quoted", args: []any{"text", "hello world"}, want: ` text="hello world"`},
		{name: "equals quoted", args: []any{"stop", "a=b"}, want: ` stop="a=b"`},
		{name: "empty quoted", args: []any{"text", ""}, want: ` text=""`},
		{name: "error", args: []any{"err", errors.New("decode failed")}, want: ` err="decode failed"`},
		{name: "duration", args: []any{"took", 1500 * time.Microsecond}, want: " took=1.5ms"},
		{name: "int", args: []any{"tokens", 12}, want: " tokens=12"},
		{
			name: "group attr",
			args: []any{slog.Group("tokens", "prompt", 4, "generated", 2)},
			want: " tokens.prompt=4 tokens.generated=2",
		},
		{
			name: "handler group",
			wrap: func(h slog.Handler) slog.Handler { return h.WithGroup("a").WithGroup("b") },
			args: []any{"key", "val"},
			want: " a.b.key=val",
		},
		{
			name: "attrs bound before group",
			wrap: func(h slog.Handler) slog.Handler {
				return h.WithAttrs([]slog.Attr{slog.String("model", "tiny")}).WithGroup("gen")
			},
			args: []any{"reason", "stopped"},
			want: " model=tiny gen.reason=stopped",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			line := prettyLine(t, tc.wrap, tc.args...)
			if !strings.Contains(line, tc.want) {
				t.Fatalf("line %q missing %q", line, tc.want)
			}
			if strings.Contains(line, "\033[") {
				t.Fatalf("colorless handler wrote escapes: %q", line)
			}
		})
	}
}

func TestPrettyHandler(t *testing.T) {
	t.Parallel()

	h := NewPrettyHandler(&bytes.Buffer{}, &PrettyOptions{Level: slog.LevelWarn})
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info enabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("error disabled at warn level")
	}
	if h.WithGroup("") != slog.Handler(h) {
		t.Error("WithGroup(\"\") should return the receiver")
	}

	var buf bytes.Buffer
	Pretty(&buf, slog.LevelInfo).Warn("slow")
	if out := buf.String(); !strings.Contains(out, ansiYellow) || !strings.HasSuffix(out, "slow\n") {
		t.Fatalf("colored output = %q", out)
	}
}
