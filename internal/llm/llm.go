// Package llm defines the boundary between llamabridge and the native model
// runtime that owns model weights, the inference context and its key/value
// cache. Implementations live in sub-packages and register themselves with
// Register so callers can select one by name.
package llm

import (
	"errors"
	"io"
)

// Token is a vocabulary id.
type Token int32

// TokenNull marks an absent special token.
const TokenNull Token = -1

var (
	// ErrModelLoad is returned when the weights could not be loaded.
	ErrModelLoad = errors.New("model load failed")
	// ErrContextCreate is returned when the model loaded but no inference
	// context could be created for it.
	ErrContextCreate = errors.New("context create failed")
	// ErrProviderUnavailable is returned when the runtime libraries for a
	// provider are missing or were not compiled in.
	ErrProviderUnavailable = errors.New("provider unavailable")
)

// Vocab is the tokenizer side of a loaded model.
type Vocab interface {
	// Tokenize converts text into tokens. addSpecial requests BOS/EOS framing
	// as configured by the vocabulary; parseSpecial lets control tokens in
	// the text map to their ids.
	Tokenize(text string, addSpecial, parseSpecial bool) ([]Token, error)
	// TokenToPiece writes the text of tok into buf and returns the number of
	// bytes written. A negative return means buf was too small and holds the
	// negated required size.
	TokenToPiece(tok Token, buf []byte) int
	// IsEOG reports whether tok ends generation (EOS, EOT and friends).
	IsEOG(tok Token) bool
	NTokens() int
	BOS() Token
	EOS() Token
}

// Context is an inference context with a mutable key/value cache. It is not
// safe for concurrent use.
type Context interface {
	// ResetCache drops every cached position.
	ResetCache() error
	// Decode evaluates tokens as a single batch appended after the cached
	// positions.
	Decode(tokens []Token) error
	// Logits returns the logits of the last decoded position. The slice is
	// only valid until the next call to Decode.
	Logits() ([]float32, error)
	// Capacity is the context length in tokens.
	Capacity() int
	// BatchSize is the maximum number of tokens per Decode call.
	BatchSize() int
	io.Closer
}

// Model is a loaded set of weights.
type Model interface {
	Vocab() Vocab
	Info() ModelInfo
	io.Closer
}

// Provider loads models and creates contexts for them.
type Provider interface {
	Name() string
	// Load opens the model at path and creates one context for it. On error
	// nothing is left allocated.
	Load(path string, opts LoadOptions) (Model, Context, error)
}

// LoadOptions mirrors the option bag accepted by the host when loading a
// model. Zero values mean "runtime default".
type LoadOptions struct {
	GPULayers    *int  `yaml:"n_gpu_layers" toml:"n_gpu_layers" json:"n_gpu_layers,omitempty"`
	UseMmap      *bool `yaml:"use_mmap" toml:"use_mmap" json:"use_mmap,omitempty"`
	UseMlock     *bool `yaml:"use_mlock" toml:"use_mlock" json:"use_mlock,omitempty"`
	VocabOnly    *bool `yaml:"vocab_only" toml:"vocab_only" json:"vocab_only,omitempty"`
	CtxSize      int   `yaml:"n_ctx" toml:"n_ctx" json:"n_ctx,omitempty"`
	BatchSize    int   `yaml:"n_batch" toml:"n_batch" json:"n_batch,omitempty"`
	Threads      int   `yaml:"n_threads" toml:"n_threads" json:"n_threads,omitempty"`
	ThreadsBatch int   `yaml:"n_threads_batch" toml:"n_threads_batch" json:"n_threads_batch,omitempty"`
}

// Merge returns o with every unset field taken from base.
func (o LoadOptions) Merge(base LoadOptions) LoadOptions {
	if o.GPULayers == nil {
		o.GPULayers = base.GPULayers
	}
	if o.UseMmap == nil {
		o.UseMmap = base.UseMmap
	}
	if o.UseMlock == nil {
		o.UseMlock = base.UseMlock
	}
	if o.VocabOnly == nil {
		o.VocabOnly = base.VocabOnly
	}
	if o.CtxSize == 0 {
		o.CtxSize = base.CtxSize
	}
	if o.BatchSize == 0 {
		o.BatchSize = base.BatchSize
	}
	if o.Threads == 0 {
		o.Threads = base.Threads
	}
	if o.ThreadsBatch == 0 {
		o.ThreadsBatch = base.ThreadsBatch
	}
	return o
}

// ModelInfo describes a loaded model. Special token ids are nil when the
// vocabulary has no such token.
type ModelInfo struct {
	Description string `json:"description,omitempty"`
	Path        string `json:"path"`
	SizeBytes   int64  `json:"size_bytes"`
	// NParams is zero when the runtime does not report a parameter count.
	NParams     int64  `json:"n_params"`
	NCtxTrain   int    `json:"n_ctx_train"`
	NEmbd       int    `json:"n_embd"`
	NLayer      int    `json:"n_layer"`
	NHead       int    `json:"n_head"`
	NCtx        int    `json:"n_ctx"`
	NBatch      int    `json:"n_batch"`
	VocabSize   int    `json:"vocab_size"`
	VocabType   int    `json:"vocab_type"`
	BOSToken    *Token `json:"bos_token,omitempty"`
	EOSToken    *Token `json:"eos_token,omitempty"`
	HasEncoder  bool   `json:"has_encoder"`
	HasDecoder  bool   `json:"has_decoder"`
	IsRecurrent bool   `json:"is_recurrent"`
	RopeType    int    `json:"rope_type"`
}

// SpecialToken returns a pointer to tok, or nil for TokenNull.
func SpecialToken(tok Token) *Token {
	if tok == TokenNull {
		return nil
	}
	return &tok
}
