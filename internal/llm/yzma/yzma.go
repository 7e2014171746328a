//go:build yzma

// Package yzma provides the llama.cpp model runtime through yzma's purego
// bindings. The shared libraries are located through LLAMABRIDGE_LIB (default
// ./lib/llama) and loaded once per process on first use.
//
// Build with -tags yzma to compile it into the binary.
package yzma

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hybridgroup/yzma/pkg/llama"

	"github.com/samcharles93/llamabridge/internal/llm"
)

const envLibPath = "LLAMABRIDGE_LIB"

var (
	initOnce sync.Once
	initErr  error
)

func init() {
	llm.Register(Provider{})
}

func backendInit() {
	libPath := os.Getenv(envLibPath)
	if libPath == "" {
		libPath = filepath.Join(".", "lib", "llama")
	}
	if abs, err := filepath.Abs(libPath); err == nil {
		libPath = abs
	}
	if err := llama.Load(libPath); err != nil {
		initErr = fmt.Errorf("%w: load llama.cpp from %s: %v", llm.ErrProviderUnavailable, libPath, err)
		return
	}
	llama.Init()
}

// Provider loads GGUF models with llama.cpp.
type Provider struct{}

func (Provider) Name() string { return llm.DefaultProvider }

func (Provider) Load(path string, opts llm.LoadOptions) (llm.Model, llm.Context, error) {
	initOnce.Do(backendInit)
	if initErr != nil {
		return nil, nil, initErr
	}

	mp := llama.ModelDefaultParams()
	if opts.GPULayers != nil {
		mp.NGpuLayers = int32(*opts.GPULayers)
	}
	if opts.UseMmap != nil {
		mp.UseMmap = boolByte(*opts.UseMmap)
	}
	if opts.UseMlock != nil {
		mp.UseMlock = boolByte(*opts.UseMlock)
	}
	if opts.VocabOnly != nil {
		mp.VocabOnly = boolByte(*opts.VocabOnly)
	}

	mdl, err := llama.ModelLoadFromFile(path, mp)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", llm.ErrModelLoad, path, err)
	}

	cp := llama.ContextDefaultParams()
	if opts.CtxSize > 0 {
		cp.NCtx = uint32(opts.CtxSize)
	}
	if opts.BatchSize > 0 {
		cp.NBatch = uint32(opts.BatchSize)
	}
	if opts.Threads > 0 {
		cp.NThreads = int32(opts.Threads)
	}
	if opts.ThreadsBatch > 0 {
		cp.NThreadsBatch = int32(opts.ThreadsBatch)
	}

	lctx, err := llama.InitFromModel(mdl, cp)
	if err != nil {
		_ = llama.ModelFree(mdl)
		return nil, nil, fmt.Errorf("%w: %s: %v", llm.ErrContextCreate, path, err)
	}

	m := &model{handle: mdl, vocab: &vocab{handle: llama.ModelGetVocab(mdl)}, path: path}
	c := &context{handle: lctx, nVocab: m.vocab.NTokens()}
	return m, c, nil
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

type model struct {
	handle llama.Model
	vocab  *vocab
	path   string
	once   sync.Once
}

func (m *model) Vocab() llm.Vocab { return m.vocab }

func (m *model) Info() llm.ModelInfo {
	v := m.vocab
	return llm.ModelInfo{
		Description: llama.ModelDesc(m.handle),
		Path:        m.path,
		SizeBytes:   int64(llama.ModelSize(m.handle)),
		NCtxTrain:   int(llama.ModelNCtxTrain(m.handle)),
		NEmbd:       int(llama.ModelNEmbd(m.handle)),
		NLayer:      int(llama.ModelNLayer(m.handle)),
		NHead:       int(llama.ModelNHead(m.handle)),
		VocabSize:   v.NTokens(),
		VocabType:   int(llama.GetVocabType(v.handle)),
		RopeType:    int(llama.ModelRopeType(m.handle)),
		BOSToken:    llm.SpecialToken(v.BOS()),
		EOSToken:    llm.SpecialToken(v.EOS()),
		HasEncoder:  llama.ModelHasEncoder(m.handle),
		HasDecoder:  llama.ModelHasDecoder(m.handle),
		IsRecurrent: llama.ModelIsRecurrent(m.handle),
	}
}

func (m *model) Close() error {
	var err error
	m.once.Do(func() {
		if ferr := llama.ModelFree(m.handle); ferr != nil {
			err = fmt.Errorf("free model %s: %w", m.path, ferr)
		}
	})
	return err
}

type vocab struct {
	handle llama.Vocab
}

func (v *vocab) Tokenize(text string, addSpecial, parseSpecial bool) ([]llm.Token, error) {
	toks := llama.Tokenize(v.handle, text, addSpecial, parseSpecial)
	if len(toks) == 0 && text != "" {
		return nil, fmt.Errorf("tokenize produced no tokens for %d bytes of text", len(text))
	}
	out := make([]llm.Token, len(toks))
	for i, t := range toks {
		out[i] = llm.Token(t)
	}
	return out, nil
}

func (v *vocab) TokenToPiece(tok llm.Token, buf []byte) int {
	return int(llama.TokenToPiece(v.handle, llama.Token(tok), buf, 0, true))
}

func (v *vocab) IsEOG(tok llm.Token) bool { return llama.VocabIsEOG(v.handle, llama.Token(tok)) }
func (v *vocab) NTokens() int             { return int(llama.VocabNTokens(v.handle)) }
func (v *vocab) BOS() llm.Token           { return llm.Token(llama.VocabBOS(v.handle)) }
func (v *vocab) EOS() llm.Token           { return llm.Token(llama.VocabEOS(v.handle)) }

type context struct {
	handle llama.Context
	nVocab int
	once   sync.Once
}

func (c *context) ResetCache() error {
	mem, err := llama.GetMemory(c.handle)
	if err != nil {
		return fmt.Errorf("get memory: %w", err)
	}
	if err := llama.MemoryClear(mem, true); err != nil {
		return fmt.Errorf("clear memory: %w", err)
	}
	return nil
}

// Decode submits tokens in n_batch sized chunks; llama_decode rejects
// larger batches.
func (c *context) Decode(tokens []llm.Token) error {
	if len(tokens) == 0 {
		return nil
	}
	batch := make([]llama.Token, len(tokens))
	for i, t := range tokens {
		batch[i] = llama.Token(t)
	}
	step := c.BatchSize()
	if step <= 0 {
		step = len(batch)
	}
	for off := 0; off < len(batch); off += step {
		end := min(off+step, len(batch))
		// BatchGetOne does not allocate; no BatchFree.
		if _, err := llama.Decode(c.handle, llama.BatchGetOne(batch[off:end])); err != nil {
			return fmt.Errorf("decode tokens %d..%d: %w", off, end, err)
		}
	}
	return nil
}

func (c *context) Logits() ([]float32, error) {
	return llama.GetLogitsIth(c.handle, -1, c.nVocab)
}

func (c *context) Capacity() int  { return int(llama.NCtx(c.handle)) }
func (c *context) BatchSize() int { return int(llama.NBatch(c.handle)) }

func (c *context) Close() error {
	var err error
	c.once.Do(func() {
		if ferr := llama.Free(c.handle); ferr != nil {
			err = fmt.Errorf("free context: %w", ferr)
		}
	})
	return err
}
