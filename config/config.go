// Package config holds the tunables that govern spill behavior and chunk
// sizing across the async filesystem engine and the staging buffer.
package config

import (
	"io"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const (
	defaultMaxBufferSize    = 2 << 20 // 2 MiB
	defaultChunkSize        = 4096
	defaultDiskMoveSize     = 4096 * 64 // 262144
	defaultSwapSubdir       = "/tmp"
)

// Options collects the tunable constants referenced throughout the engine.
type Options struct {
	// MaxBufferSize is the in-memory threshold above which a staging
	// buffer spills its tail to a temporary file.
	MaxBufferSize int64 `yaml:"max_buffer_size"`
	// DefaultChunkSize is the chunk size used by the engine's
	// MakeChunkedStreamDefault; MakeChunkedStream itself rejects zero.
	DefaultChunkSize int `yaml:"default_chunk_size"`
	// DiskMoveSize bounds the size of each chunk streamed from a spill
	// file to the destination during an append-variant commit.
	DiskMoveSize int `yaml:"disk_move_size"`
	// SwapSubdir is the directory, relative to a staging buffer's root
	// directory, under which spill files are created.
	SwapSubdir string `yaml:"swap_subdir"`
}

// Default returns the package's built-in tunables.
func Default() *Options {
	return &Options{
		MaxBufferSize:    defaultMaxBufferSize,
		DefaultChunkSize: defaultChunkSize,
		DiskMoveSize:     defaultDiskMoveSize,
		SwapSubdir:       defaultSwapSubdir,
	}
}

// LoadYAML reads a YAML document overriding some or all of the default
// options. Fields absent from the document keep their default value.
func LoadYAML(r io.Reader) (*Options, error) {
	opts := Default()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}
	if len(data) == 0 {
		return opts, nil
	}
	if err := yaml.Unmarshal(data, opts); err != nil {
		return nil, errors.Wrap(err, "parsing config")
	}
	return opts, nil
}
