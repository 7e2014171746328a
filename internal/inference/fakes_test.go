package inference

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samcharles93/llamabridge/internal/llm"
	"github.com/samcharles93/llamabridge/internal/logits"
)

// The fake vocabulary has EOS, BOS, one token per byte and one token whose
// text does not fit the piece buffer.
const (
	tokEOS         llm.Token = 0
	tokBOS         llm.Token = 1
	tokHuge        llm.Token = 258
	fakeVocabSize            = 259
)

func byteTok(b byte) llm.Token { return llm.Token(2 + int(b)) }

func textToks(s string) []llm.Token {
	out := make([]llm.Token, 0, len(s))
	for i := 0; i < len(s); i++ {
		out = append(out, byteTok(s[i]))
	}
	return out
}

type fakeVocab struct {
	err      error
	panicMsg string
}

func (v *fakeVocab) Tokenize(text string, addSpecial, parseSpecial bool) ([]llm.Token, error) {
	if v.panicMsg != "" {
		panic(v.panicMsg)
	}
	if v.err != nil {
		return nil, v.err
	}
	var out []llm.Token
	if addSpecial {
		out = append(out, tokBOS)
	}
	return append(out, textToks(text)...), nil
}

func (v *fakeVocab) TokenToPiece(tok llm.Token, buf []byte) int {
	switch {
	case tok >= 2 && tok < tokHuge:
		if len(buf) < 1 {
			return -1
		}
		buf[0] = byte(tok - 2)
		return 1
	case tok == tokHuge:
		return -(pieceBufSize + 44)
	default:
		return 0
	}
}

func (v *fakeVocab) IsEOG(tok llm.Token) bool { return tok == tokEOS }
func (v *fakeVocab) NTokens() int             { return fakeVocabSize }
func (v *fakeVocab) BOS() llm.Token           { return tokBOS }
func (v *fakeVocab) EOS() llm.Token           { return tokEOS }

// fakeContext emits script one token per step, then fill. The emitted
// token gets a dominant logit so every reasonable chain picks it.
type fakeContext struct {
	script   []llm.Token
	fill     llm.Token
	logitsFn func(step int) []float32

	capacity   int
	delay      time.Duration
	failDecode int // 1-based Decode call that fails

	mu         sync.Mutex
	resets     int
	decodes    int
	sinceReset int
	batches    [][]llm.Token
	closed     int

	busy    atomic.Int32
	overlap atomic.Bool
}

func (c *fakeContext) ResetCache() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resets++
	c.sinceReset = 0
	return nil
}

func (c *fakeContext) Decode(tokens []llm.Token) error {
	if c.busy.Add(1) != 1 {
		c.overlap.Store(true)
	}
	defer c.busy.Add(-1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.decodes++
	if c.failDecode == c.decodes {
		return errors.New("forced decode failure")
	}
	c.sinceReset++
	c.batches = append(c.batches, append([]llm.Token(nil), tokens...))
	return nil
}

func (c *fakeContext) Logits() ([]float32, error) {
	c.mu.Lock()
	step := c.sinceReset - 1
	c.mu.Unlock()
	if step < 0 {
		return nil, errors.New("nothing decoded")
	}
	if c.logitsFn != nil {
		return c.logitsFn(step), nil
	}
	tok := c.fill
	if step < len(c.script) {
		tok = c.script[step]
	}
	lv := make([]float32, fakeVocabSize)
	lv[tok] = 10
	return lv, nil
}

func (c *fakeContext) Capacity() int  { return c.capacity }
func (c *fakeContext) BatchSize() int { return 512 }

func (c *fakeContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

// letterLogits spreads mass over 'a'..'z' in a step-dependent pattern and
// keeps special tokens out of reach.
func letterLogits(step int) []float32 {
	lv := make([]float32, fakeVocabSize)
	for i := range lv {
		lv[i] = -100
	}
	for b := byte('a'); b <= 'z'; b++ {
		i := int(b - 'a')
		lv[byteTok(b)] = float32((i*31+step*17)%97) / 40
	}
	return lv
}

type fakeModel struct {
	vocab  fakeVocab
	info   llm.ModelInfo
	closed int
}

func (m *fakeModel) Vocab() llm.Vocab     { return &m.vocab }
func (m *fakeModel) Info() llm.ModelInfo { return m.info }
func (m *fakeModel) Close() error {
	m.closed++
	return nil
}

type fakeProvider struct {
	err    error
	newCtx func() *fakeContext
	// info seeds what the runtime reports for each loaded model.
	info llm.ModelInfo

	models []*fakeModel
	ctxs   []*fakeContext
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Load(path string, opts llm.LoadOptions) (llm.Model, llm.Context, error) {
	if p.err != nil {
		return nil, nil, p.err
	}
	c := &fakeContext{fill: byteTok('a'), capacity: 512}
	if p.newCtx != nil {
		c = p.newCtx()
	}
	info := p.info
	info.Description = "fake model"
	info.VocabSize = fakeVocabSize
	m := &fakeModel{info: info}
	p.models = append(p.models, m)
	p.ctxs = append(p.ctxs, c)
	return m, c, nil
}

// countingChain wraps the real chain and counts Close calls.
type countingChain struct {
	*logits.Chain
	closes *atomic.Int32
}

func (c countingChain) Close() {
	c.closes.Add(1)
	c.Chain.Close()
}

func countingBuilder(closes *atomic.Int32) ChainBuilder {
	return func(cfg logits.ChainConfig) SamplerChain {
		return countingChain{Chain: logits.Build(cfg), closes: closes}
	}
}

// writeModelFile writes a GGUF header with string metadata only.
func writeModelFile(t *testing.T, kv map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	w := func(v any) { _ = binary.Write(&buf, binary.LittleEndian, v) }
	str := func(s string) {
		w(uint64(len(s)))
		buf.WriteString(s)
	}
	buf.WriteString("GGUF")
	w(uint32(3))
	w(uint64(0))
	w(uint64(len(kv)))
	for k, v := range kv {
		str(k)
		w(uint32(8))
		str(v)
	}
	path := filepath.Join(t.TempDir(), "model.gguf")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	return path
}

func greedyConfig() Config {
	cfg := DefaultConfig()
	cfg.SetTemperature(0)
	return cfg
}
