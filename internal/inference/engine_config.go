package inference

import "time"

// Config returns a copy of the current configuration.
func (e *Engine) Config() Config {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg.Clone()
}

// ApplyOverrides updates the configuration and returns the result.
func (e *Engine) ApplyOverrides(o Overrides) Config {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	e.cfg.Apply(o)
	return e.cfg.Clone()
}

// ResetConfig restores the defaults.
func (e *Engine) ResetConfig() Config {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	e.cfg = DefaultConfig()
	return e.cfg.Clone()
}

func setField[T any](e *Engine, set func(*Config, T) T, v T) T {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	return set(&e.cfg, v)
}

func getField[T any](e *Engine, get func(*Config) T) T {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return get(&e.cfg)
}

func (e *Engine) SetTemperature(v float32) float32 {
	return setField(e, (*Config).SetTemperature, v)
}

func (e *Engine) Temperature() float32 {
	return getField(e, func(c *Config) float32 { return c.Temperature })
}

func (e *Engine) SetTopP(v float32) float32 { return setField(e, (*Config).SetTopP, v) }
func (e *Engine) TopP() float32             { return getField(e, func(c *Config) float32 { return c.TopP }) }

func (e *Engine) SetTopK(v int32) int32 { return setField(e, (*Config).SetTopK, v) }
func (e *Engine) TopK() int32           { return getField(e, func(c *Config) int32 { return c.TopK }) }

func (e *Engine) SetMinP(v float32) float32 { return setField(e, (*Config).SetMinP, v) }
func (e *Engine) MinP() float32             { return getField(e, func(c *Config) float32 { return c.MinP }) }

func (e *Engine) SetRepeatPenalty(v float32) float32 {
	return setField(e, (*Config).SetRepeatPenalty, v)
}

func (e *Engine) RepeatPenalty() float32 {
	return getField(e, func(c *Config) float32 { return c.RepeatPenalty })
}

func (e *Engine) SetFrequencyPenalty(v float32) float32 {
	return setField(e, (*Config).SetFrequencyPenalty, v)
}

func (e *Engine) FrequencyPenalty() float32 {
	return getField(e, func(c *Config) float32 { return c.FrequencyPenalty })
}

func (e *Engine) SetPresencePenalty(v float32) float32 {
	return setField(e, (*Config).SetPresencePenalty, v)
}

func (e *Engine) PresencePenalty() float32 {
	return getField(e, func(c *Config) float32 { return c.PresencePenalty })
}

func (e *Engine) SetRepeatLastN(v int32) int32 { return setField(e, (*Config).SetRepeatLastN, v) }
func (e *Engine) RepeatLastN() int32 {
	return getField(e, func(c *Config) int32 { return c.RepeatLastN })
}

// SetSeed returns the stored seed; out-of-range input stores SeedRandom.
func (e *Engine) SetSeed(v int64) uint32 {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	return e.cfg.SetSeed(v)
}
func (e *Engine) Seed() uint32 { return getField(e, func(c *Config) uint32 { return c.Seed }) }

func (e *Engine) SetMaxTokens(v int32) int32 { return setField(e, (*Config).SetMaxTokens, v) }
func (e *Engine) MaxTokens() int32 {
	return getField(e, func(c *Config) int32 { return c.MaxTokens })
}

func (e *Engine) SetStopSequences(seqs []string) []string {
	return setField(e, (*Config).SetStopSequences, seqs)
}

// StopSequences returns a copy of the stop list.
func (e *Engine) StopSequences() []string {
	return getField(e, func(c *Config) []string { return append([]string{}, c.StopSequences...) })
}

func (e *Engine) ClearStopSequences() {
	e.SetStopSequences(nil)
}

func (e *Engine) SetTimeout(d time.Duration) time.Duration {
	return setField(e, (*Config).SetTimeout, d)
}

func (e *Engine) Timeout() time.Duration {
	return getField(e, func(c *Config) time.Duration { return c.Timeout })
}
