package staging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swapfs/asyncfs/lib/errkind"
)

func drainReader(t *testing.T, r ChunkReader) ([]byte, []int) {
	t.Helper()
	var all []byte
	var sizes []int
	for {
		var gotErr error
		var gotData []byte
		done := make(chan struct{})
		r.NextChunk(func(err error, data []byte) {
			gotErr = err
			gotData = data
			close(done)
		})
		<-done
		if len(gotData) > 0 {
			all = append(all, gotData...)
			sizes = append(sizes, len(gotData))
		}
		if gotErr != nil {
			require.True(t, errkind.IsEndOfFile(gotErr), "unexpected error: %v", gotErr)
			return all, sizes
		}
	}
}

func TestCacheChunkReaderExactMultiple(t *testing.T) {
	info := NewSharedInfo()
	data := []byte("0123456789AB")
	r := NewCacheChunkReader(info, data, 4)
	all, sizes := drainReader(t, r)
	assert.Equal(t, data, all)
	assert.Equal(t, []int{4, 4, 4}, sizes)
}

func TestCacheChunkReaderRemainder(t *testing.T) {
	info := NewSharedInfo()
	data := []byte("0123456789")
	r := NewCacheChunkReader(info, data, 4)
	all, sizes := drainReader(t, r)
	assert.Equal(t, data, all)
	assert.Equal(t, []int{4, 4, 2}, sizes)
}

func TestCacheChunkReaderEmpty(t *testing.T) {
	info := NewSharedInfo()
	r := NewCacheChunkReader(info, nil, 4)
	all, sizes := drainReader(t, r)
	assert.Empty(t, all)
	assert.Empty(t, sizes)
}

func TestCacheChunkReaderRespectsStop(t *testing.T) {
	info := NewSharedInfo()
	r := NewCacheChunkReader(info, []byte("0123456789"), 4)
	info.StopReading()

	done := make(chan struct{})
	r.NextChunk(func(err error, data []byte) {
		assert.True(t, errkind.IsStopped(err))
		assert.Nil(t, data)
		close(done)
	})
	<-done
}

func TestChainReaderTwoStagesMasksIntermediateEOF(t *testing.T) {
	info := NewSharedInfo()
	first := NewCacheChunkReader(info, []byte("AAAA"), 4)
	second := NewCacheChunkReader(info, []byte("BBBBBB"), 4)
	chain := newChainReader(first, second)

	all, _ := drainReader(t, chain)
	assert.Equal(t, "AAAABBBBBB", string(all))
}

func TestChainReaderThreeStages(t *testing.T) {
	info := NewSharedInfo()
	stages := []ChunkReader{
		NewCacheChunkReader(info, []byte("first-"), 4),
		NewCacheChunkReader(info, []byte("second-"), 4),
		NewCacheChunkReader(info, []byte("third"), 4),
	}
	chain := newChainReader(stages...)

	all, _ := drainReader(t, chain)
	assert.Equal(t, "first-second-third", string(all))
}

func TestChainReaderElidesEmptyIntermediateStage(t *testing.T) {
	info := NewSharedInfo()
	stages := []ChunkReader{
		NewCacheChunkReader(info, nil, 4),
		NewCacheChunkReader(info, []byte("content"), 4),
	}
	chain := newChainReader(stages...)

	all, sizes := drainReader(t, chain)
	assert.Equal(t, "content", string(all))
	for _, s := range sizes {
		assert.NotZero(t, s)
	}
}

func TestChainReaderEmptyFinalStageStillSignalsEOF(t *testing.T) {
	info := NewSharedInfo()
	stages := []ChunkReader{
		NewCacheChunkReader(info, []byte("x"), 4),
		NewCacheChunkReader(info, nil, 4),
	}
	chain := newChainReader(stages...)

	all, _ := drainReader(t, chain)
	assert.Equal(t, "x", string(all))
}
