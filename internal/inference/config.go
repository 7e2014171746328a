package inference

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/samcharles93/llamabridge/internal/logits"
)

// SeedRandom selects a fresh random seed for every generation call.
const SeedRandom = logits.SeedRandom

const (
	DefaultTemperature      float32 = 0.8
	DefaultTopP             float32 = 0.95
	DefaultTopK             int32   = 40
	DefaultMinP             float32 = 0.05
	DefaultRepeatPenalty    float32 = 1.1
	DefaultFrequencyPenalty float32 = 0
	DefaultPresencePenalty  float32 = 0
	DefaultRepeatLastN      int32   = 64
	DefaultMaxTokens        int32   = 256
)

// Config is the sampling, stop and timeout configuration of one generation
// call. Invalid values are corrected when set, never at use: each setter
// stores the nearest valid value (or the field default for NaN and similar
// garbage) and returns what it stored.
type Config struct {
	Temperature      float32
	TopP             float32
	TopK             int32
	MinP             float32
	RepeatPenalty    float32
	FrequencyPenalty float32
	PresencePenalty  float32
	RepeatLastN      int32
	Seed             uint32
	MaxTokens        int32
	StopSequences    []string
	// Timeout bounds wall-clock time per call. Zero means unbounded.
	Timeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Temperature:      DefaultTemperature,
		TopP:             DefaultTopP,
		TopK:             DefaultTopK,
		MinP:             DefaultMinP,
		RepeatPenalty:    DefaultRepeatPenalty,
		FrequencyPenalty: DefaultFrequencyPenalty,
		PresencePenalty:  DefaultPresencePenalty,
		RepeatLastN:      DefaultRepeatLastN,
		Seed:             SeedRandom,
		MaxTokens:        DefaultMaxTokens,
	}
}

// Clone returns a deep copy of c.
func (c Config) Clone() Config {
	c.StopSequences = slices.Clone(c.StopSequences)
	return c
}

func finite(v float32) bool {
	return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
}

func (c *Config) SetTemperature(v float32) float32 {
	switch {
	case !finite(v):
		v = DefaultTemperature
	case v < 0:
		v = 0
	}
	c.Temperature = v
	return v
}

func (c *Config) SetTopP(v float32) float32 {
	switch {
	case math.IsNaN(float64(v)) || v <= 0:
		v = DefaultTopP
	case v > 1:
		v = 1
	}
	c.TopP = v
	return v
}

// SetTopK stores v; zero disables the top-k stage.
func (c *Config) SetTopK(v int32) int32 {
	c.TopK = max(v, 0)
	return c.TopK
}

func (c *Config) SetMinP(v float32) float32 {
	switch {
	case math.IsNaN(float64(v)):
		v = DefaultMinP
	case v < 0:
		v = 0
	case v > 1:
		v = 1
	}
	c.MinP = v
	return v
}

func (c *Config) SetRepeatPenalty(v float32) float32 {
	switch {
	case !finite(v):
		v = DefaultRepeatPenalty
	case v < 1:
		v = 1
	}
	c.RepeatPenalty = v
	return v
}

func (c *Config) SetFrequencyPenalty(v float32) float32 {
	c.FrequencyPenalty = clampPenalty(v, DefaultFrequencyPenalty)
	return c.FrequencyPenalty
}

func (c *Config) SetPresencePenalty(v float32) float32 {
	c.PresencePenalty = clampPenalty(v, DefaultPresencePenalty)
	return c.PresencePenalty
}

func clampPenalty(v, def float32) float32 {
	switch {
	case !finite(v):
		return def
	case v < 0:
		return 0
	}
	return v
}

// SetRepeatLastN sets the penalty window. Zero disables penalties.
func (c *Config) SetRepeatLastN(v int32) int32 {
	c.RepeatLastN = max(v, 0)
	return c.RepeatLastN
}

// SetSeed accepts any integer. Values outside the unsigned 32-bit range
// select SeedRandom.
func (c *Config) SetSeed(v int64) uint32 {
	if v < 0 || v > math.MaxUint32 {
		c.Seed = SeedRandom
	} else {
		c.Seed = uint32(v)
	}
	return c.Seed
}

func (c *Config) SetMaxTokens(v int32) int32 {
	c.MaxTokens = max(v, 1)
	return c.MaxTokens
}

// SetStopSequences replaces the stop list. Empty strings are dropped and
// order is kept. The returned slice is a copy of what was stored.
func (c *Config) SetStopSequences(seqs []string) []string {
	out := make([]string, 0, len(seqs))
	for _, s := range seqs {
		if s != "" {
			out = append(out, s)
		}
	}
	c.StopSequences = out
	return slices.Clone(out)
}

func (c *Config) SetTimeout(d time.Duration) time.Duration {
	c.Timeout = max(d, 0)
	return c.Timeout
}

func (c Config) chainConfig() logits.ChainConfig {
	return logits.ChainConfig{
		Temperature:      c.Temperature,
		TopK:             c.TopK,
		TopP:             c.TopP,
		MinP:             c.MinP,
		RepeatPenalty:    c.RepeatPenalty,
		FrequencyPenalty: c.FrequencyPenalty,
		PresencePenalty:  c.PresencePenalty,
		RepeatLastN:      c.RepeatLastN,
		Seed:             c.Seed,
	}
}

// Overrides is a partial Config. Nil fields leave the target untouched; a
// non-nil StopSequences replaces the stop list, so an empty slice clears it.
type Overrides struct {
	Temperature      *float32  `json:"temperature,omitempty" yaml:"temperature,omitempty" toml:"temperature,omitempty"`
	TopP             *float32  `json:"top_p,omitempty" yaml:"top_p,omitempty" toml:"top_p,omitempty"`
	TopK             *int32    `json:"top_k,omitempty" yaml:"top_k,omitempty" toml:"top_k,omitempty"`
	MinP             *float32  `json:"min_p,omitempty" yaml:"min_p,omitempty" toml:"min_p,omitempty"`
	RepeatPenalty    *float32  `json:"repeat_penalty,omitempty" yaml:"repeat_penalty,omitempty" toml:"repeat_penalty,omitempty"`
	FrequencyPenalty *float32  `json:"frequency_penalty,omitempty" yaml:"frequency_penalty,omitempty" toml:"frequency_penalty,omitempty"`
	PresencePenalty  *float32  `json:"presence_penalty,omitempty" yaml:"presence_penalty,omitempty" toml:"presence_penalty,omitempty"`
	RepeatLastN      *int32    `json:"repeat_last_n,omitempty" yaml:"repeat_last_n,omitempty" toml:"repeat_last_n,omitempty"`
	Seed             *int64    `json:"seed,omitempty" yaml:"seed,omitempty" toml:"seed,omitempty"`
	MaxTokens        *int32    `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" toml:"max_tokens,omitempty"`
	StopSequences    []string  `json:"stop,omitempty" yaml:"stop,omitempty" toml:"stop,omitempty"`
	Timeout          *Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" toml:"timeout,omitempty"`
}

// Apply runs every set field of o through the matching setter.
func (c *Config) Apply(o Overrides) {
	if o.Temperature != nil {
		c.SetTemperature(*o.Temperature)
	}
	if o.TopP != nil {
		c.SetTopP(*o.TopP)
	}
	if o.TopK != nil {
		c.SetTopK(*o.TopK)
	}
	if o.MinP != nil {
		c.SetMinP(*o.MinP)
	}
	if o.RepeatPenalty != nil {
		c.SetRepeatPenalty(*o.RepeatPenalty)
	}
	if o.FrequencyPenalty != nil {
		c.SetFrequencyPenalty(*o.FrequencyPenalty)
	}
	if o.PresencePenalty != nil {
		c.SetPresencePenalty(*o.PresencePenalty)
	}
	if o.RepeatLastN != nil {
		c.SetRepeatLastN(*o.RepeatLastN)
	}
	if o.Seed != nil {
		c.SetSeed(*o.Seed)
	}
	if o.MaxTokens != nil {
		c.SetMaxTokens(*o.MaxTokens)
	}
	if o.StopSequences != nil {
		c.SetStopSequences(o.StopSequences)
	}
	if o.Timeout != nil {
		c.SetTimeout(time.Duration(*o.Timeout))
	}
}

// Duration is a time.Duration that reads and writes as "1.5s" text in
// YAML, TOML and JSON.
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(b), err)
	}
	*d = Duration(v)
	return nil
}
