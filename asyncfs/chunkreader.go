package asyncfs

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/swapfs/asyncfs/lib/errkind"
)

// ChunkReader is a per-open-file object that feeds a caller sequential
// chunks of a file, issuing one-chunk-ahead prefetch reads through the
// owning Engine's worker and its own double buffer.
type ChunkReader struct {
	engine *Engine
	path   string
	file   *os.File

	fileSize int64
	chunkSize int

	// posToSchedule is mutated only by the caller-side goroutine that
	// calls NextChunk.
	posToSchedule int64
	// bytesReadByWorker is mutated only by the worker goroutine.
	bytesReadByWorker atomic.Int64

	doubleBuffer *DoubleBuffer

	mu                   sync.Mutex
	inFlightCount        int
	queuedCallerHandlers []func(error, []byte)
	queuedReadyBuffers   []BufferView

	stopped atomic.Bool
}

func newChunkReader(e *Engine, path string, chunkSize int) (*ChunkReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errkind.Wrap(errkind.OpenFailure, err, "open %s", path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errkind.Wrap(errkind.OpenFailure, err, "stat %s", path)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, errkind.New(errkind.OpenFailure, "%s is not a regular file", path)
	}
	return &ChunkReader{
		engine:       e,
		path:         path,
		file:         f,
		fileSize:     info.Size(),
		chunkSize:    chunkSize,
		doubleBuffer: NewDoubleBuffer(chunkSize),
	}, nil
}

// Stop marks the reader stopped; in-flight and future reads complete with
// a stopped error instead of data.
func (r *ChunkReader) Stop() {
	r.stopped.Store(true)
}

// NextChunk requests the next chunk of the file. h is invoked, via the
// engine's Poster, with (nil, data) on success, (end_of_file, data) on the
// terminal chunk (data may be non-empty), or (stopped, nil) if the reader
// was stopped.
func (r *ChunkReader) NextChunk(h func(error, []byte)) {
	if r.stopped.Load() {
		r.engine.post(func() { h(errkind.New(errkind.Stopped, "reader stopped"), nil) })
		return
	}

	r.mu.Lock()
	if len(r.queuedReadyBuffers) > 0 {
		view := r.queuedReadyBuffers[0]
		r.queuedReadyBuffers = r.queuedReadyBuffers[1:]
		r.mu.Unlock()
		r.deliver(view, h)
	} else {
		r.queuedCallerHandlers = append(r.queuedCallerHandlers, h)
		r.mu.Unlock()
	}

	r.fillPipeline()
}

// deliver copies out a ready slot's content, clears its hot flag, and
// posts the caller handler with it.
func (r *ChunkReader) deliver(view BufferView, h func(error, []byte)) {
	data := append([]byte(nil), view.Data()...)
	err := view.LastError()
	view.ClearHot()
	r.engine.post(func() { h(errOrNilKind(err), data) })
}

// fillPipeline keeps up to two reads in flight, so the next call to
// NextChunk can usually be served from an already-ready buffer.
func (r *ChunkReader) fillPipeline() {
	for {
		r.mu.Lock()
		if r.inFlightCount >= 2 || r.posToSchedule >= r.fileSize {
			exhausted := r.posToSchedule >= r.fileSize && r.inFlightCount == 0
			var pending []func(error, []byte)
			if exhausted {
				pending = r.queuedCallerHandlers
				r.queuedCallerHandlers = nil
			}
			r.mu.Unlock()
			for _, h := range pending {
				h := h
				r.engine.post(func() { h(errkind.New(errkind.EndOfFile, "end of file reached for %s", r.path), nil) })
			}
			return
		}
		offset := r.posToSchedule
		r.posToSchedule += int64(r.chunkSize)
		r.inFlightCount++
		r.mu.Unlock()

		view := r.doubleBuffer.GetAndSwap()
		r.engine.enqueue(operation{
			kind:         opReadChunk,
			reader:       r,
			fileOffset:   offset,
			view:         view,
			chunkHandler: r.onChunkComplete(view),
		})
	}
}

func (r *ChunkReader) onChunkComplete(view BufferView) func(error, int) {
	return func(err error, _ int) {
		r.mu.Lock()
		r.inFlightCount--
		var h func(error, []byte)
		if len(r.queuedCallerHandlers) > 0 {
			h = r.queuedCallerHandlers[0]
			r.queuedCallerHandlers = r.queuedCallerHandlers[1:]
		} else {
			r.queuedReadyBuffers = append(r.queuedReadyBuffers, view)
		}
		r.mu.Unlock()

		if h != nil {
			if errkind.IsStopped(err) {
				r.engine.post(func() { h(err, nil) })
			} else {
				r.deliver(view, h)
			}
		}
		r.fillPipeline()
	}
}

// close releases the underlying file handle and the double buffer's leased
// slots. It does not call Stop; the owning ChunkedStream is responsible
// for that.
func (r *ChunkReader) close() error {
	r.doubleBuffer.Close()
	return r.file.Close()
}

// ChunkedStream is the caller-facing handle over a ChunkReader. Closing it
// requests the reader to stop.
type ChunkedStream struct {
	reader *ChunkReader
}

// NextChunk delegates to the underlying ChunkReader.
func (s *ChunkedStream) NextChunk(h func(error, []byte)) {
	s.reader.NextChunk(h)
}

// Close stops the reader and releases its file handle.
func (s *ChunkedStream) Close() error {
	s.reader.Stop()
	return s.reader.close()
}
