package logits

import (
	"fmt"
	"math/rand"

	"github.com/samcharles93/llamabridge/internal/llm"
)

// SeedRandom asks for a chain seeded from the process RNG.
const SeedRandom uint32 = 0xFFFFFFFF

// StageKind tags a sampling stage.
type StageKind uint8

const (
	StagePenalties StageKind = iota
	StageTopK
	StageMinP
	StageTopP
	StageTempDist
	StageGreedy
)

func (k StageKind) String() string {
	switch k {
	case StagePenalties:
		return "penalties"
	case StageTopK:
		return "top-k"
	case StageMinP:
		return "min-p"
	case StageTopP:
		return "top-p"
	case StageTempDist:
		return "temp-dist"
	case StageGreedy:
		return "greedy"
	default:
		return fmt.Sprintf("stage(%d)", uint8(k))
	}
}

// Stage is one step of a Chain. Only the fields relevant to Kind are set.
type Stage struct {
	Kind StageKind

	LastN     int
	Repeat    float32
	Frequency float32
	Presence  float32

	K int
	P float32

	Temperature float32
	Seed        uint32
}

// ChainConfig configures Build.
type ChainConfig struct {
	Temperature      float32
	TopK             int32
	TopP             float32
	MinP             float32
	RepeatPenalty    float32
	FrequencyPenalty float32
	PresencePenalty  float32
	RepeatLastN      int32
	Seed             uint32
}

// Chain narrows a logits vector down to a single token by running its
// stages in order. A Chain belongs to one generation call and is not safe for
// concurrent use.
type Chain struct {
	stages []Stage
	rng    *rand.Rand

	// window holds the most recently accepted tokens, oldest first.
	window []llm.Token
	counts map[llm.Token]int
	cands  candidates
	closed bool
}

// Build assembles the chain for cfg. The stage order is fixed:
//
//  1. penalties
//  2. top-k, only when TopK > 0
//  3. min-p
//  4. top-p
//  5. temperature then a seeded draw, or greedy when Temperature == 0
//
// Build never fails; a degenerate configuration ends up picking the most
// likely token.
func Build(cfg ChainConfig) *Chain {
	stages := make([]Stage, 0, 5)
	stages = append(stages, Stage{
		Kind:      StagePenalties,
		LastN:     max(int(cfg.RepeatLastN), 0),
		Repeat:    cfg.RepeatPenalty,
		Frequency: cfg.FrequencyPenalty,
		Presence:  cfg.PresencePenalty,
	})
	if cfg.TopK > 0 {
		stages = append(stages, Stage{Kind: StageTopK, K: int(cfg.TopK)})
	}
	stages = append(stages,
		Stage{Kind: StageMinP, P: cfg.MinP},
		Stage{Kind: StageTopP, P: cfg.TopP},
	)

	var rng *rand.Rand
	if cfg.Temperature > 0 {
		stages = append(stages, Stage{Kind: StageTempDist, Temperature: cfg.Temperature, Seed: cfg.Seed})
		seed := int64(cfg.Seed)
		if cfg.Seed == SeedRandom {
			seed = rand.Int63()
		}
		rng = rand.New(rand.NewSource(seed))
	} else {
		stages = append(stages, Stage{Kind: StageGreedy})
	}

	return &Chain{
		stages: stages,
		rng:    rng,
		counts: make(map[llm.Token]int),
	}
}

// Stages returns a copy of the chain's stages in evaluation order.
func (c *Chain) Stages() []Stage {
	return append([]Stage(nil), c.stages...)
}

// Sample picks the next token from logits and records it in the penalty
// window. logits must not be empty and is not modified.
func (c *Chain) Sample(logits []float32) llm.Token {
	if c.closed {
		panic("logits: Sample on closed chain")
	}
	if len(logits) == 0 {
		panic("logits: Sample with empty logits")
	}

	c.cands.reset(logits)
	var picked llm.Token
	for _, st := range c.stages {
		switch st.Kind {
		case StagePenalties:
			c.applyPenalties(st)
		case StageTopK:
			c.cands.topK(st.K)
		case StageMinP:
			c.cands.minP(st.P)
		case StageTopP:
			c.cands.topP(st.P)
		case StageTempDist:
			c.cands.scale(1 / st.Temperature)
			picked = c.cands.draw(c.rng.Float64())
		case StageGreedy:
			picked = c.cands.argmax()
		}
	}
	c.accept(picked)
	return picked
}

// Close releases the chain's buffers. Calling Close more than once is a no-op.
func (c *Chain) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.cands = candidates{}
	c.window = nil
	c.counts = nil
}

// Closed reports whether Close has been called.
func (c *Chain) Closed() bool { return c.closed }

func (c *Chain) accept(tok llm.Token) {
	lastN := c.stages[0].LastN
	if lastN <= 0 {
		return
	}
	if len(c.window) == lastN {
		copy(c.window, c.window[1:])
		c.window = c.window[:lastN-1]
	}
	c.window = append(c.window, tok)
}

// applyPenalties discourages tokens seen in the window: the repeat penalty
// pushes their logit towards -inf multiplicatively, frequency and presence
// subtract count*frequency + presence.
func (c *Chain) applyPenalties(st Stage) {
	if st.LastN == 0 || len(c.window) == 0 {
		return
	}
	if st.Repeat == 1 && st.Frequency == 0 && st.Presence == 0 {
		return
	}
	clear(c.counts)
	for _, tok := range c.window {
		c.counts[tok]++
	}
	for tok, n := range c.counts {
		cand := c.cands.byID(tok)
		if cand == nil {
			continue
		}
		if cand.logit <= 0 {
			cand.logit *= st.Repeat
		} else {
			cand.logit /= st.Repeat
		}
		cand.logit -= float32(n)*st.Frequency + st.Presence
	}
}
