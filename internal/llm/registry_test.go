package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedProvider string

func (p namedProvider) Name() string { return string(p) }
func (p namedProvider) Load(string, LoadOptions) (Model, Context, error) {
	return nil, nil, ErrModelLoad
}

func TestRegistryLookup(t *testing.T) {
	Register(namedProvider("registry-test"))

	p, err := Lookup("registry-test")
	require.NoError(t, err)
	assert.Equal(t, "registry-test", p.Name())
	assert.Contains(t, Providers(), "registry-test")

	_, err = Lookup("missing-provider")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProviderUnavailable))
}

func TestLoadOptionsMerge(t *testing.T) {
	t.Parallel()

	layers := 12
	mmap := false
	base := LoadOptions{GPULayers: &layers, UseMmap: &mmap, CtxSize: 4096, Threads: 8}
	got := LoadOptions{CtxSize: 2048}.Merge(base)

	require.NotNil(t, got.GPULayers)
	assert.Equal(t, 12, *got.GPULayers)
	require.NotNil(t, got.UseMmap)
	assert.False(t, *got.UseMmap)
	assert.Nil(t, got.UseMlock)
	assert.Equal(t, 2048, got.CtxSize)
	assert.Equal(t, 8, got.Threads)
}

func TestSpecialToken(t *testing.T) {
	t.Parallel()

	assert.Nil(t, SpecialToken(TokenNull))
	tok := SpecialToken(2)
	require.NotNil(t, tok)
	assert.Equal(t, Token(2), *tok)
}
