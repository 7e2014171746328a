package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samcharles93/llamabridge/internal/llm"
	"github.com/samcharles93/llamabridge/internal/logger"
	"github.com/samcharles93/llamabridge/internal/logits"
)

// State is a step of the generation state machine.
type State uint8

const (
	StateIdle State = iota
	StatePriming
	StateStepping
	StateCompleted
	StateStopped
	StateTimedOut
	StateCancelled
	StateFailed
)

var stateNames = [...]string{
	StateIdle:      "idle",
	StatePriming:   "priming",
	StateStepping:  "stepping",
	StateCompleted: "completed",
	StateStopped:   "stopped",
	StateTimedOut:  "timed_out",
	StateCancelled: "cancelled",
	StateFailed:    "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Reason says why a call ended.
type Reason string

const (
	ReasonCompleted Reason = "completed" // end-of-generation token
	ReasonBudget    Reason = "budget"    // MaxTokens decoded
	ReasonStopped   Reason = "stopped"   // stop sequence matched
	ReasonTimedOut  Reason = "timed_out"
	ReasonCancelled Reason = "cancelled"
	ReasonFailed    Reason = "failed"
)

// Stats are the token counts and timing of one generation call.
type Stats struct {
	PromptTokens int
	// TokensGenerated counts tokens decoded after the prompt. A token that
	// completes a stop sequence or ends generation is not decoded.
	TokensGenerated int
	Duration        time.Duration
	TPS             float64
}

// Result is the outcome of one generation call. Text is always the best
// available output: trimmed on a stop match and partial on failure.
type Result struct {
	Text         string
	Reason       Reason
	Err          error
	StopSequence string
	Stats
}

// SamplerChain picks one token from a logits vector.
type SamplerChain interface {
	Sample(logits []float32) llm.Token
	Close()
}

// ChainBuilder builds the sampler chain for one call.
type ChainBuilder func(cfg logits.ChainConfig) SamplerChain

func buildChain(cfg logits.ChainConfig) SamplerChain {
	return logits.Build(cfg)
}

// Generator runs one prompt through a context. The context must not be used
// by anything else while Run is in progress.
type Generator struct {
	Context  llm.Context
	Vocab    llm.Vocab
	NewChain ChainBuilder
	Now      func() time.Time
	Log      logger.Logger
}

// Run generates a completion for prompt. It never returns nil.
//
// The cache is reset first so every call is independent. The timeout and
// ctx are polled once per step, before sampling, so cancellation takes
// effect at a step boundary and never interrupts a decode.
func (g *Generator) Run(ctx context.Context, prompt string, cfg Config) *Result {
	now := g.Now
	if now == nil {
		now = time.Now
	}
	newChain := g.NewChain
	if newChain == nil {
		newChain = buildChain
	}
	log := g.Log
	if log == nil {
		log = logger.Discard()
	}

	res := &Result{}
	start := now()
	var text strings.Builder

	chain := newChain(cfg.chainConfig())
	defer chain.Close()

	finish := func(state State, reason Reason, err error) *Result {
		res.Text = text.String()
		if state == StateStopped {
			res.Text = TrimStop(res.Text, res.StopSequence)
		}
		res.Reason = reason
		res.Err = err
		res.Duration = now().Sub(start)
		if secs := res.Duration.Seconds(); secs > 0 {
			res.TPS = float64(res.TokensGenerated) / secs
		}
		args := []any{
			"state", state,
			"reason", reason,
			"prompt_tokens", res.PromptTokens,
			"tokens", res.TokensGenerated,
			"duration", res.Duration,
		}
		if err != nil {
			log.Warn("generation failed", append(args, "error", err)...)
		} else {
			log.Debug("generation finished", args...)
		}
		return res
	}

	// Priming.
	if g.Context == nil || g.Vocab == nil {
		return finish(StateFailed, ReasonFailed, ErrModelNotLoaded)
	}
	if err := safeReset(g.Context); err != nil {
		return finish(StateFailed, ReasonFailed, err)
	}
	tk := &tokenAdapter{vocab: g.Vocab}
	toks, err := tk.encode(prompt)
	if err != nil {
		return finish(StateFailed, ReasonFailed, err)
	}
	if len(toks) == 0 {
		return finish(StateFailed, ReasonFailed, fmt.Errorf("%w: prompt produced no tokens", ErrTokenization))
	}
	res.PromptTokens = len(toks)
	if n := g.Context.Capacity(); n > 0 && len(toks)+int(cfg.MaxTokens) > n {
		log.Warn("prompt and token budget exceed context size",
			"prompt_tokens", len(toks), "max_tokens", cfg.MaxTokens, "n_ctx", n)
	}
	if err := safeDecode(g.Context, toks); err != nil {
		return finish(StateFailed, ReasonFailed, fmt.Errorf("prompt: %w", err))
	}

	// Stepping.
	for res.TokensGenerated < int(cfg.MaxTokens) {
		if cfg.Timeout > 0 && now().Sub(start) > cfg.Timeout {
			return finish(StateTimedOut, ReasonTimedOut, nil)
		}
		if err := ctx.Err(); err != nil {
			return finish(StateCancelled, ReasonCancelled, err)
		}

		next, err := sampleNext(g.Context, chain)
		if err != nil {
			return finish(StateFailed, ReasonFailed, err)
		}
		if g.Vocab.IsEOG(next) {
			return finish(StateCompleted, ReasonCompleted, nil)
		}

		piece, err := tk.piece(next)
		if err != nil {
			return finish(StateFailed, ReasonFailed, err)
		}
		text.WriteString(piece)
		if seq, ok := MatchStop(text.String(), cfg.StopSequences); ok {
			res.StopSequence = seq
			return finish(StateStopped, ReasonStopped, nil)
		}

		if err := safeDecode(g.Context, []llm.Token{next}); err != nil {
			return finish(StateFailed, ReasonFailed, fmt.Errorf("step %d: %w", res.TokensGenerated, err))
		}
		res.TokensGenerated++
	}
	return finish(StateCompleted, ReasonBudget, nil)
}

func sampleNext(c llm.Context, chain SamplerChain) (tok llm.Token, err error) {
	lv, err := c.Logits()
	if err != nil {
		return llm.TokenNull, fmt.Errorf("%w: logits: %w", ErrDecode, err)
	}
	defer func() {
		if rec := recover(); rec != nil {
			tok, err = llm.TokenNull, fmt.Errorf("panic in Sample: %v", rec)
		}
	}()
	return chain.Sample(lv), nil
}

func safeReset(c llm.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in ResetCache: %v", rec)
		}
	}()
	if err := c.ResetCache(); err != nil {
		return fmt.Errorf("reset cache: %w", err)
	}
	return nil
}

func safeDecode(c llm.Context, toks []llm.Token) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: panic in Decode: %v", ErrDecode, rec)
		}
	}()
	if err := c.Decode(toks); err != nil {
		if errors.Is(err, ErrDecode) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return nil
}
