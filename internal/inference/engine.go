package inference

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samcharles93/llamabridge/internal/gguf"
	"github.com/samcharles93/llamabridge/internal/llm"
	"github.com/samcharles93/llamabridge/internal/logger"
)

var ErrModelNotLoaded = errors.New("no model loaded")

// Status is the outcome of LoadModel.
type Status int

const (
	StatusOK Status = iota
	StatusFileNotFound
	StatusOpenFailed
	StatusContextCreateFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFileNotFound:
		return "file_not_found"
	case StatusOpenFailed:
		return "open_failed"
	case StatusContextCreateFailed:
		return "context_create_failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// TimeoutEvent describes a call that ended on its timeout.
type TimeoutEvent struct {
	Timeout         time.Duration
	Elapsed         time.Duration
	TokensGenerated int
	// Text is the partial output returned to the caller.
	Text string
}

type Option func(*Engine)

func WithProvider(p llm.Provider) Option { return func(e *Engine) { e.provider = p } }
func WithLogger(l logger.Logger) Option  { return func(e *Engine) { e.log = l } }

// WithChainBuilder replaces the sampler chain used by generation calls.
func WithChainBuilder(b ChainBuilder) Option { return func(e *Engine) { e.newChain = b } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithConfig sets the initial configuration. It is passed through the
// setters, so invalid fields are corrected.
func WithConfig(c Config) Option {
	return func(e *Engine) {
		var cfg Config
		cfg.SetTemperature(c.Temperature)
		cfg.SetTopP(c.TopP)
		cfg.SetTopK(c.TopK)
		cfg.SetMinP(c.MinP)
		cfg.SetRepeatPenalty(c.RepeatPenalty)
		cfg.SetFrequencyPenalty(c.FrequencyPenalty)
		cfg.SetPresencePenalty(c.PresencePenalty)
		cfg.SetRepeatLastN(c.RepeatLastN)
		cfg.Seed = c.Seed
		cfg.SetMaxTokens(c.MaxTokens)
		cfg.SetStopSequences(c.StopSequences)
		cfg.SetTimeout(c.Timeout)
		e.cfg = cfg
	}
}

// Engine owns at most one loaded model and its context, plus the
// configuration applied to every generation call.
//
// Generation calls are serialized: the context's key/value cache is
// mutated in place. Configuration lives behind its own lock so setters do
// not wait for a running call; each call works on a snapshot.
type Engine struct {
	provider llm.Provider
	log      logger.Logger
	newChain ChainBuilder
	now      func() time.Time

	mu    sync.Mutex
	model llm.Model
	lctx  llm.Context
	path  string
	info  llm.ModelInfo

	cfgMu sync.RWMutex
	cfg   Config

	timedOut atomic.Bool

	subMu   sync.Mutex
	subs    map[uint64]func(TimeoutEvent)
	nextSub uint64
}

func New(opts ...Option) *Engine {
	e := &Engine{
		log:      logger.Discard(),
		newChain: buildChain,
		now:      time.Now,
		cfg:      DefaultConfig(),
		subs:     make(map[uint64]func(TimeoutEvent)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LoadModel loads the GGUF model at path, replacing any loaded model. On
// failure nothing stays loaded.
func (e *Engine) LoadModel(path string, opts llm.LoadOptions) Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.unloadLocked()
	log := e.log.With("path", path)

	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Error("model file not found")
			return StatusFileNotFound
		}
		log.Error("cannot stat model file", "error", err)
		return StatusOpenFailed
	}
	if st.IsDir() {
		log.Error("model path is a directory")
		return StatusOpenFailed
	}
	if _, err := gguf.Probe(path); err != nil {
		log.Error("cannot open model file", "error", err)
		return StatusOpenFailed
	}
	if e.provider == nil {
		log.Error("cannot load model", "error", llm.ErrProviderUnavailable)
		return StatusOpenFailed
	}

	model, lctx, err := e.provider.Load(path, opts)
	if err != nil {
		if errors.Is(err, llm.ErrContextCreate) {
			log.Error("cannot create context", "error", err)
			return StatusContextCreateFailed
		}
		log.Error("cannot load model", "error", err)
		return StatusOpenFailed
	}

	info := model.Info()
	info.Path = path
	info.NCtx = lctx.Capacity()
	info.NBatch = lctx.BatchSize()
	if md, err := gguf.ReadFile(path); err != nil {
		log.Debug("gguf metadata unavailable", "error", err)
	} else {
		info = mergeInfo(info, md)
	}

	e.model, e.lctx, e.path, e.info = model, lctx, path, info
	log.Info("model loaded",
		"provider", e.provider.Name(),
		"description", info.Description,
		"n_ctx", info.NCtx,
		"vocab_size", info.VocabSize)
	return StatusOK
}

// mergeInfo fills fields the runtime left empty from the file header.
// Runtime values always win.
func mergeInfo(rt llm.ModelInfo, md *gguf.Metadata) llm.ModelInfo {
	hdr := md.Describe()
	if rt.Description == "" {
		rt.Description = hdr.Description
	}
	if rt.NCtxTrain == 0 {
		rt.NCtxTrain = hdr.NCtxTrain
	}
	if rt.NEmbd == 0 {
		rt.NEmbd = hdr.NEmbd
	}
	if rt.NLayer == 0 {
		rt.NLayer = hdr.NLayer
	}
	if rt.NHead == 0 {
		rt.NHead = hdr.NHead
	}
	if rt.VocabSize == 0 {
		rt.VocabSize = hdr.VocabSize
	}
	if rt.VocabType == 0 {
		rt.VocabType = hdr.VocabType
	}
	if rt.BOSToken == nil {
		rt.BOSToken = hdr.BOSToken
	}
	if rt.EOSToken == nil {
		rt.EOSToken = hdr.EOSToken
	}
	// A zero rope type is also RopeNorm; only a header that knows the
	// architecture may refine it.
	if rt.RopeType == gguf.RopeNorm {
		if rope, ok := md.RopeType(); ok {
			rt.RopeType = rope
		}
	}
	return rt
}

// UnloadModel releases the model and its context. It waits for a running
// generation call to finish.
func (e *Engine) UnloadModel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unloadLocked()
}

func (e *Engine) unloadLocked() {
	if e.model == nil && e.lctx == nil {
		return
	}
	var errs []error
	if e.lctx != nil {
		errs = append(errs, e.lctx.Close())
	}
	if e.model != nil {
		errs = append(errs, e.model.Close())
	}
	if err := errors.Join(errs...); err != nil {
		e.log.Warn("model unload reported errors", "path", e.path, "error", err)
	} else {
		e.log.Info("model unloaded", "path", e.path)
	}
	e.model, e.lctx, e.path, e.info = nil, nil, "", llm.ModelInfo{}
}

// Close unloads the model.
func (e *Engine) Close() error {
	e.UnloadModel()
	return nil
}

func (e *Engine) IsModelLoaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model != nil
}

// ModelInfo returns the zero value when no model is loaded.
func (e *Engine) ModelInfo() llm.ModelInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.info
}

func (e *Engine) ModelPath() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.path
}

// Generate returns the completion of prompt, or "" when there is none. Use
// GenerateResult to tell the failure modes apart.
func (e *Engine) Generate(prompt string) string {
	res, _ := e.GenerateResult(context.Background(), prompt)
	return res.Text
}

// GenerateResult runs prompt with the current configuration. The returned
// Result is never nil; the error is Result.Err.
func (e *Engine) GenerateResult(ctx context.Context, prompt string) (*Result, error) {
	return e.GenerateWith(ctx, prompt, Overrides{})
}

// GenerateWith runs prompt with the current configuration plus ov. The
// overrides apply to this call only.
func (e *Engine) GenerateWith(ctx context.Context, prompt string, ov Overrides) (*Result, error) {
	cfg := e.Config()
	cfg.Apply(ov)

	res, ok := e.run(ctx, prompt, cfg)
	if !ok {
		return res, res.Err
	}
	if res.Reason == ReasonTimedOut {
		e.log.Warn("generation timed out",
			"timeout", cfg.Timeout,
			"elapsed", res.Duration,
			"tokens", res.TokensGenerated)
		// Subscribers run after e.mu is released so they may call back
		// into the engine.
		e.notifyTimeout(TimeoutEvent{
			Timeout:         cfg.Timeout,
			Elapsed:         res.Duration,
			TokensGenerated: res.TokensGenerated,
			Text:            res.Text,
		})
	}
	return res, res.Err
}

// run holds e.mu for one generation. It reports false when no model is
// loaded, leaving the timeout flag untouched.
func (e *Engine) run(ctx context.Context, prompt string, cfg Config) (*Result, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.model == nil || e.lctx == nil {
		return &Result{Reason: ReasonFailed, Err: ErrModelNotLoaded}, false
	}

	g := &Generator{
		Context:  e.lctx,
		Vocab:    e.model.Vocab(),
		NewChain: e.newChain,
		Now:      e.now,
		Log:      e.log,
	}
	res := g.Run(ctx, prompt, cfg)
	e.timedOut.Store(res.Reason == ReasonTimedOut)
	return res, true
}

// HasGenerationTimedOut reports whether the most recent generation call
// ended on its timeout.
func (e *Engine) HasGenerationTimedOut() bool {
	return e.timedOut.Load()
}

// OnTimeout registers fn to run when a call times out. fn runs on the
// generating goroutine before the call returns, after the engine lock is
// released, so it may call engine methods. The returned func removes the
// subscription.
func (e *Engine) OnTimeout(fn func(TimeoutEvent)) (unsubscribe func()) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	return func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		delete(e.subs, id)
	}
}

func (e *Engine) notifyTimeout(ev TimeoutEvent) {
	e.subMu.Lock()
	fns := make([]func(TimeoutEvent), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
