package gguf

import (
	"github.com/samcharles93/llamabridge/internal/llm"
)

// Vocabulary types as numbered by llama.cpp.
const (
	VocabNone = 0
	VocabSPM  = 1
	VocabBPE  = 2
	VocabWPM  = 3
	VocabUGM  = 4
	VocabRWKV = 5
)

// Rope types as numbered by llama.cpp.
const (
	RopeNone  = -1
	RopeNorm  = 0
	RopeNeox  = 2
	RopeMRope = 8
)

var tokenizerVocabTypes = map[string]int{
	"no_vocab": VocabNone,
	"none":     VocabNone,
	"llama":    VocabSPM,
	"gpt2":     VocabBPE,
	"bert":     VocabWPM,
	"t5":       VocabUGM,
	"rwkv":     VocabRWKV,
}

var archRopeTypes = map[string]int{
	"gpt2": RopeNone, "bloom": RopeNone, "mpt": RopeNone, "bert": RopeNone,
	"t5": RopeNone, "t5encoder": RopeNone, "jais": RopeNone, "rwkv6": RopeNone,
	"rwkv7": RopeNone, "mamba": RopeNone, "mamba2": RopeNone,

	"llama": RopeNorm, "llama4": RopeNorm, "deci": RopeNorm, "baichuan": RopeNorm,
	"starcoder": RopeNorm, "internlm2": RopeNorm, "minicpm": RopeNorm, "xverse": RopeNorm,
	"command-r": RopeNorm, "cohere2": RopeNorm, "olmo": RopeNorm, "arctic": RopeNorm,
	"deepseek": RopeNorm, "deepseek2": RopeNorm, "granite": RopeNorm, "granitemoe": RopeNorm,
	"chameleon": RopeNorm, "bailingmoe": RopeNorm,

	"falcon": RopeNeox, "grok": RopeNeox, "dbrx": RopeNeox, "stablelm": RopeNeox,
	"bitnet": RopeNeox, "qwen": RopeNeox, "qwen2": RopeNeox, "qwen2moe": RopeNeox,
	"qwen3": RopeNeox, "qwen3moe": RopeNeox, "olmo2": RopeNeox, "olmoe": RopeNeox,
	"phi2": RopeNeox, "phi3": RopeNeox, "phimoe": RopeNeox, "plamo": RopeNeox,
	"gemma": RopeNeox, "gemma2": RopeNeox, "gemma3": RopeNeox, "starcoder2": RopeNeox,
	"openelm": RopeNeox, "gptneox": RopeNeox, "codeshell": RopeNeox, "orion": RopeNeox,
	"exaone": RopeNeox, "minicpm3": RopeNeox, "nemotron": RopeNeox,

	"qwen2vl": RopeMRope,
}

// Architecture returns general.architecture, or "" when absent.
func (m *Metadata) Architecture() string {
	s, _ := m.KV.Text("general.architecture")
	return s
}

// Name returns general.name, or "" when absent.
func (m *Metadata) Name() string {
	s, _ := m.KV.Text("general.name")
	return s
}

// VocabType maps tokenizer.ggml.model to the runtime's vocabulary type.
func (m *Metadata) VocabType() (int, bool) {
	name, ok := m.KV.Text("tokenizer.ggml.model")
	if !ok {
		return VocabNone, false
	}
	vt, ok := tokenizerVocabTypes[name]
	return vt, ok
}

// RopeType maps the architecture to its rotary embedding layout.
func (m *Metadata) RopeType() (int, bool) {
	rt, ok := archRopeTypes[m.Architecture()]
	return rt, ok
}

// Describe fills the ModelInfo fields that are recorded in the file
// header. Fields the runtime reports after loading are left zero.
func (m *Metadata) Describe() llm.ModelInfo {
	info := llm.ModelInfo{Path: m.Path, RopeType: RopeNone, HasDecoder: true}
	arch := m.Architecture()

	if name := m.Name(); name != "" {
		info.Description = name
	} else {
		info.Description = arch
	}
	if v, ok := m.KV.Uint(arch+".context_length"); ok {
		info.NCtxTrain = int(v)
	}
	if v, ok := m.KV.Uint(arch+".embedding_length"); ok {
		info.NEmbd = int(v)
	}
	if v, ok := m.KV.Uint(arch+".block_count"); ok {
		info.NLayer = int(v)
	}
	if v, ok := m.KV.Uint(arch+".attention.head_count"); ok {
		info.NHead = int(v)
	}
	if n, ok := m.KV.Len("tokenizer.ggml.tokens"); ok {
		info.VocabSize = int(n)
	}
	if vt, ok := m.VocabType(); ok {
		info.VocabType = vt
	}
	if rt, ok := m.RopeType(); ok {
		info.RopeType = rt
	}
	if v, ok := m.KV.Uint("tokenizer.ggml.bos_token_id"); ok {
		tok := llm.Token(v)
		info.BOSToken = &tok
	}
	if v, ok := m.KV.Uint("tokenizer.ggml.eos_token_id"); ok {
		tok := llm.Token(v)
		info.EOSToken = &tok
	}
	switch arch {
	case "t5", "t5encoder":
		info.HasEncoder = true
		info.HasDecoder = arch == "t5"
	case "bert", "nomic-bert", "jina-bert-v2":
		info.HasDecoder = false
	case "rwkv6", "rwkv7", "mamba", "mamba2":
		info.IsRecurrent = true
	}
	return info
}
