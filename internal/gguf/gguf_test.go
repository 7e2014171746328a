package gguf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/samcharles93/llamabridge/internal/llm"
)

// builder writes a GGUF v3 header followed by key/value pairs.
type builder struct {
	kv    bytes.Buffer
	count uint64
}

func (b *builder) str(w *bytes.Buffer, s string) {
	_ = binary.Write(w, binary.LittleEndian, uint64(len(s)))
	w.WriteString(s)
}

func (b *builder) key(k string, t ValueType) {
	b.count++
	b.str(&b.kv, k)
	_ = binary.Write(&b.kv, binary.LittleEndian, uint32(t))
}

func (b *builder) Str(k, v string) *builder {
	b.key(k, TypeString)
	b.str(&b.kv, v)
	return b
}

func (b *builder) Uint32(k string, v uint32) *builder {
	b.key(k, TypeUint32)
	_ = binary.Write(&b.kv, binary.LittleEndian, v)
	return b
}

func (b *builder) Bool(k string, v bool) *builder {
	b.key(k, TypeBool)
	var x uint8
	if v {
		x = 1
	}
	b.kv.WriteByte(x)
	return b
}

func (b *builder) Strings(k string, vs []string) *builder {
	b.key(k, TypeArray)
	_ = binary.Write(&b.kv, binary.LittleEndian, uint32(TypeString))
	_ = binary.Write(&b.kv, binary.LittleEndian, uint64(len(vs)))
	for _, v := range vs {
		b.str(&b.kv, v)
	}
	return b
}

func (b *builder) Bytes() []byte {
	var out bytes.Buffer
	out.WriteString(magicGGUF)
	_ = binary.Write(&out, binary.LittleEndian, uint32(3))
	_ = binary.Write(&out, binary.LittleEndian, uint64(0))
	_ = binary.Write(&out, binary.LittleEndian, b.count)
	out.Write(b.kv.Bytes())
	return out.Bytes()
}

func (b *builder) File(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.gguf")
	if err := os.WriteFile(path, b.Bytes(), 0o644); err != nil {
		t.Fatalf("write gguf: %v", err)
	}
	return path
}

func TestReadFile(t *testing.T) {
	path := new(builder).
		Str("general.architecture", "llama").
		Str("general.name", "tiny").
		Uint32("llama.context_length", 2048).
		Uint32("llama.embedding_length", 64).
		Uint32("llama.block_count", 2).
		Uint32("llama.attention.head_count", 4).
		Bool("tokenizer.ggml.add_bos_token", true).
		Str("tokenizer.ggml.model", "llama").
		Strings("tokenizer.ggml.tokens", []string{"<unk>", "<s>", "</s>", "a"}).
		Uint32("tokenizer.ggml.bos_token_id", 1).
		Uint32("tokenizer.ggml.eos_token_id", 2).
		File(t)

	md, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if md.Header.Version != 3 || md.Header.KVCount != 11 {
		t.Fatalf("header = %+v", md.Header)
	}
	if md.Architecture() != "llama" {
		t.Fatalf("architecture = %q", md.Architecture())
	}
	if b, ok := md.KV.Flag("tokenizer.ggml.add_bos_token"); !ok || !b {
		t.Fatalf("add_bos_token = %v, %v", b, ok)
	}

	info := md.Describe()
	if info.Path != path || info.Description != "tiny" {
		t.Fatalf("path/description = %q/%q", info.Path, info.Description)
	}
	if info.NCtxTrain != 2048 || info.NEmbd != 64 || info.NLayer != 2 || info.NHead != 4 {
		t.Fatalf("dims = %+v", info)
	}
	if info.VocabSize != 4 || info.VocabType != VocabSPM || info.RopeType != RopeNorm {
		t.Fatalf("vocab/rope = %d/%d/%d", info.VocabSize, info.VocabType, info.RopeType)
	}
	if info.BOSToken == nil || *info.BOSToken != llm.Token(1) {
		t.Fatalf("bos = %v", info.BOSToken)
	}
	if info.EOSToken == nil || *info.EOSToken != llm.Token(2) {
		t.Fatalf("eos = %v", info.EOSToken)
	}
	if info.HasEncoder || !info.HasDecoder || info.IsRecurrent {
		t.Fatalf("flags = %+v", info)
	}
}

func TestDescribeUnknownArch(t *testing.T) {
	md, err := Read(bytes.NewReader(new(builder).Str("general.architecture", "mystery").Bytes()), 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	info := md.Describe()
	if info.Description != "mystery" {
		t.Fatalf("description = %q", info.Description)
	}
	if info.RopeType != RopeNone || info.VocabType != VocabNone {
		t.Fatalf("rope/vocab = %d/%d", info.RopeType, info.VocabType)
	}
	if info.BOSToken != nil || info.EOSToken != nil {
		t.Fatal("expected no special tokens")
	}
}

func TestLongArrayKeepsLength(t *testing.T) {
	tokens := make([]string, maxArrayValues+10)
	for i := range tokens {
		tokens[i] = "t"
	}
	data := new(builder).Strings("tokenizer.ggml.tokens", tokens).Bytes()
	md, err := Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	n, ok := md.KV.Len("tokenizer.ggml.tokens")
	if !ok || n != uint64(len(tokens)) {
		t.Fatalf("len = %d, %v", n, ok)
	}
	if md.Describe().VocabSize != len(tokens) {
		t.Fatalf("vocab size = %d", md.Describe().VocabSize)
	}
}

func TestProbe(t *testing.T) {
	dir := t.TempDir()

	good := new(builder).File(t)
	if hdr, err := Probe(good); err != nil || hdr.Version != 3 {
		t.Fatalf("Probe(good) = %+v, %v", hdr, err)
	}

	bad := filepath.Join(dir, "bad.bin")
	if err := os.WriteFile(bad, []byte("not a model file"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Probe(bad); !errors.Is(err, ErrNotGGUF) {
		t.Fatalf("Probe(bad) err = %v, want ErrNotGGUF", err)
	}

	short := filepath.Join(dir, "short.bin")
	if err := os.WriteFile(short, []byte("GG"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Probe(short); !errors.Is(err, ErrNotGGUF) {
		t.Fatalf("Probe(short) err = %v, want ErrNotGGUF", err)
	}

	if _, err := Probe(filepath.Join(dir, "missing.gguf")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Probe(missing) err = %v, want ErrNotExist", err)
	}
}

func TestReadTruncated(t *testing.T) {
	data := new(builder).Str("general.architecture", "llama").Bytes()
	data = data[:len(data)-3]
	if _, err := Read(bytes.NewReader(data), int64(len(data))); err == nil {
		t.Fatal("expected error for truncated metadata")
	}
}
