package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	opts := Default()
	assert.EqualValues(t, 2<<20, opts.MaxBufferSize)
	assert.Equal(t, 4096, opts.DefaultChunkSize)
	assert.Equal(t, 262144, opts.DiskMoveSize)
	assert.Equal(t, "/tmp", opts.SwapSubdir)
}

func TestLoadYAMLOverridesSubset(t *testing.T) {
	opts, err := LoadYAML(strings.NewReader(`
max_buffer_size: 1024
swap_subdir: /var/spill
`))
	require.NoError(t, err)
	assert.EqualValues(t, 1024, opts.MaxBufferSize)
	assert.Equal(t, "/var/spill", opts.SwapSubdir)
	assert.Equal(t, 4096, opts.DefaultChunkSize, "unspecified fields keep defaults")
	assert.Equal(t, 262144, opts.DiskMoveSize)
}

func TestLoadYAMLEmpty(t *testing.T) {
	opts, err := LoadYAML(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), opts)
}

func TestLoadYAMLInvalid(t *testing.T) {
	_, err := LoadYAML(strings.NewReader("max_buffer_size: [this is not a number]"))
	assert.Error(t, err)
}
