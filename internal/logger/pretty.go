package logger

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiRed    = "\033[31m"
	ansiYellow = "\033[33m"
	ansiBlue   = "\033[34m"
	ansiCyan   = "\033[36m"
	ansiGray   = "\033[90m"
)

type PrettyOptions struct {
	Level slog.Leveler
	// Color enables ANSI escapes.
	Color bool
}

// PrettyHandler writes one human-oriented line per record:
//
//	[15:04:05] INFO  model loaded path=/m/tiny.gguf n_ctx=4096
//
// Attributes inside groups are written as group.key=value.
type PrettyHandler struct {
	w      io.Writer
	mu     *sync.Mutex
	level  slog.Leveler
	color  bool
	prefix string
	attrs  []slog.Attr
}

func NewPrettyHandler(w io.Writer, opts *PrettyOptions) *PrettyHandler {
	h := &PrettyHandler{w: w, mu: new(sync.Mutex), level: slog.LevelInfo}
	if opts != nil {
		h.color = opts.Color
		if opts.Level != nil {
			h.level = opts.Level
		}
	}
	return h
}

func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	var line bytes.Buffer

	h.style(&line, ansiGray, func() {
		line.WriteByte('[')
		line.WriteString(r.Time.Format(time.TimeOnly))
		line.WriteByte(']')
	})
	line.WriteByte(' ')
	h.style(&line, levelStyle(r.Level)+ansiBold, func() {
		fmt.Fprintf(&line, "%-5s", r.Level)
	})
	line.WriteByte(' ')
	line.WriteString(r.Message)

	if len(h.attrs) > 0 || r.NumAttrs() > 0 {
		h.style(&line, ansiCyan, func() {
			for _, a := range h.attrs {
				writeAttr(&line, "", a)
			}
			r.Attrs(func(a slog.Attr) bool {
				writeAttr(&line, h.prefix, a)
				return true
			})
		})
	}
	line.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(line.Bytes())
	return err
}

// WithAttrs binds attrs under the current group so later groups do not
// rename them.
func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = slices.Clip(h.attrs)
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		next.attrs = append(next.attrs, a)
	}
	return &next
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func (h *PrettyHandler) style(b *bytes.Buffer, code string, body func()) {
	if !h.color {
		body()
		return
	}
	b.WriteString(code)
	body()
	b.WriteString(ansiReset)
}

func levelStyle(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return ansiRed
	case level >= slog.LevelWarn:
		return ansiYellow
	case level >= slog.LevelInfo:
		return ansiBlue
	}
	return ansiGray
}

func writeAttr(b *bytes.Buffer, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if a.Key == "" && v.Kind() != slog.KindGroup {
		return
	}
	if v.Kind() == slog.KindGroup {
		sub := prefix
		if a.Key != "" {
			sub = prefix + a.Key + "."
		}
		for _, ga := range v.Group() {
			writeAttr(b, sub, ga)
		}
		return
	}

	b.WriteByte(' ')
	b.WriteString(prefix)
	b.WriteString(a.Key)
	b.WriteByte('=')
	switch v.Kind() {
	case slog.KindString:
		writeText(b, v.String())
	case slog.KindDuration:
		b.WriteString(v.Duration().Round(time.Microsecond).String())
	case slog.KindTime:
		b.WriteString(v.Time().Format(time.RFC3339))
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			writeText(b, err.Error())
			return
		}
		writeText(b, v.String())
	default:
		b.WriteString(v.String())
	}
}

func writeText(b *bytes.Buffer, s string) {
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		b.WriteString(strconv.Quote(s))
		return
	}
	b.WriteString(s)
}
