package staging

import "github.com/swapfs/asyncfs/lib/errkind"

// ChunkReader is the common shape of every chunk-producing stage a
// staging buffer can hand out: the engine's own file ChunkedStream, the
// in-memory CacheChunkReader, and the composite chainReader built from
// both.
type ChunkReader interface {
	NextChunk(h func(error, []byte))
}

// CacheChunkReader returns chunk_size slices of a fixed in-memory byte
// snapshot, each a fresh copy, respecting SharedInfo.StopReading.
type CacheChunkReader struct {
	data      []byte
	pos       int
	chunkSize int
	info      *SharedInfo
}

// NewCacheChunkReader snapshots data (never aliases the caller's slice)
// and returns a reader over it.
func NewCacheChunkReader(info *SharedInfo, data []byte, chunkSize int) *CacheChunkReader {
	snapshot := append([]byte(nil), data...)
	return &CacheChunkReader{data: snapshot, chunkSize: chunkSize, info: info}
}

// NextChunk implements ChunkReader.
func (c *CacheChunkReader) NextChunk(h func(error, []byte)) {
	if c.info.stopped() {
		h(errkind.New(errkind.Stopped, "reader stopped"), nil)
		return
	}
	if c.pos >= len(c.data) {
		h(errkind.New(errkind.EndOfFile, "cache exhausted"), nil)
		return
	}
	end := c.pos + c.chunkSize
	if end > len(c.data) {
		end = len(c.data)
	}
	chunk := append([]byte(nil), c.data[c.pos:end]...)
	c.pos = end
	if c.pos >= len(c.data) {
		h(errkind.New(errkind.EndOfFile, "cache exhausted"), chunk)
		return
	}
	h(nil, chunk)
}

// chainReader stitches a fixed, ordered list of stages (e.g. original
// file -> spill file -> in-memory tail) into a single ChunkReader. Each
// stage's end_of_file is masked as a successful chunk once the chain
// advances to the next stage; only the final stage's end_of_file is
// surfaced to the caller, together with its last chunk of data. An
// intermediate stage's empty terminal chunk is elided rather than
// forwarded, so the caller never sees a spurious zero-byte chunk at a
// stage boundary.
type chainReader struct {
	stages []ChunkReader
	idx    int
}

func newChainReader(stages ...ChunkReader) *chainReader {
	return &chainReader{stages: stages}
}

// NextChunk implements ChunkReader.
func (c *chainReader) NextChunk(h func(error, []byte)) {
	if c.idx >= len(c.stages) {
		h(errkind.New(errkind.EndOfFile, "composite stream exhausted"), nil)
		return
	}
	isLast := c.idx == len(c.stages)-1
	stage := c.stages[c.idx]
	stage.NextChunk(func(err error, data []byte) {
		if err != nil && errkind.IsEndOfFile(err) {
			if isLast {
				c.idx = len(c.stages)
				h(err, data)
				return
			}
			c.idx++
			if len(data) > 0 {
				h(nil, data)
				return
			}
			c.NextChunk(h)
			return
		}
		h(err, data)
	})
}
