package asyncfs

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/swapfs/asyncfs/config"
	"github.com/swapfs/asyncfs/lib/errkind"
	"github.com/swapfs/asyncfs/lib/event"
	"github.com/swapfs/asyncfs/lib/pathops"
	"github.com/swapfs/asyncfs/lib/readers"
)

// Engine is the Async FS Engine: it performs the synchronous path
// primitives directly on the calling goroutine, and queues the
// asynchronous operations (whole-file read/write/append, chunked reads)
// for its single worker goroutine, delivering completions through Poster.
type Engine struct {
	opts   *config.Options
	poster Poster
	log    *logrus.Entry

	queue operationQueue
	flag  *event.Flag

	mu   sync.Mutex
	done bool
	wg   sync.WaitGroup
}

// New starts an Engine backed by the given Poster and Options. The worker
// goroutine runs until Close is called.
func New(poster Poster, opts *config.Options) *Engine {
	if opts == nil {
		opts = config.Default()
	}
	e := &Engine{
		opts:   opts,
		poster: poster,
		log:    logrus.WithField("component", "asyncfs.Engine"),
		flag:   event.NewFlag(),
	}
	e.wg.Add(1)
	go e.workerLoop()
	return e
}

// Close stops the worker goroutine. Pending handlers may or may not run.
func (e *Engine) Close() {
	e.mu.Lock()
	e.done = true
	e.mu.Unlock()
	e.flag.Set()
	e.wg.Wait()
	e.log.Debug("worker stopped")
}

func (e *Engine) isDone() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

func (e *Engine) workerLoop() {
	defer e.wg.Done()
	for {
		e.flag.Wait()
		if e.isDone() {
			return
		}
		for {
			op, ok := e.queue.pop()
			if !ok {
				break
			}
			e.performOperation(op)
		}
		e.flag.Reset()
	}
}

func (e *Engine) enqueue(op operation) {
	e.queue.push(op)
	e.flag.Set()
}

func (e *Engine) performOperation(op operation) {
	switch op.kind {
	case opRead:
		data, err := pathops.ReadFile(op.path)
		n := 0
		if err != nil {
			e.log.WithError(err).WithField("path", op.path).Warn("read failed")
		} else {
			*op.out = data
			n = len(data)
		}
		e.post(func() { op.handler(errOrNil(err), n) })
	case opWrite:
		err := pathops.WriteFile(op.path, op.dataIn)
		n := 0
		if err != nil {
			e.log.WithError(err).WithField("path", op.path).Warn("write failed")
		} else {
			n = len(op.dataIn)
		}
		e.post(func() { op.handler(errOrNil(err), n) })
	case opAppend:
		err := pathops.AppendToFile(op.path, op.dataIn)
		n := 0
		if err != nil {
			e.log.WithError(err).WithField("path", op.path).Warn("append failed")
		} else {
			n = len(op.dataIn)
		}
		e.post(func() { op.handler(errOrNil(err), n) })
	case opReadChunk:
		e.performReadChunk(op)
	}
}

// performReadChunk implements the ReadChunk re-enqueue predicate: a
// request that arrives out of order, or whose buffer view the caller has
// not yet drained, goes back to the tail of the queue instead of being
// serviced.
func (e *Engine) performReadChunk(op operation) {
	r := op.reader
	if r.stopped.Load() {
		e.post(func() { op.chunkHandler(errkind.New(errkind.Stopped, "reader stopped"), 0) })
		return
	}
	if r.bytesReadByWorker.Load() != op.fileOffset || op.view.IsHot() {
		e.log.WithField("path", r.path).Trace("re-enqueuing out-of-order or hot-buffer chunk read")
		e.queue.push(op)
		return
	}

	buf := make([]byte, op.view.capacity())
	n, readErr := readers.ReadFill(r.file, buf)
	r.bytesReadByWorker.Add(int64(n))

	var ec *errkind.Error
	switch {
	case readErr != nil && readErr.Error() != "EOF":
		e.log.WithError(readErr).WithField("path", r.path).Warn("chunk read failed")
		ec = errkind.Wrap(errkind.ReadFailure, readErr, "read chunk of %s", r.path)
	case readErr != nil || r.bytesReadByWorker.Load() >= r.fileSize:
		ec = errkind.New(errkind.EndOfFile, "end of file reached for %s", r.path)
	}
	op.view.fill(buf[:n], ec)
	e.post(func() { op.chunkHandler(errOrNilKind(ec), n) })
}

func (e *Engine) post(fn func()) {
	e.poster.Post(fn)
}

func errOrNil(err error) error {
	if err == nil {
		return nil
	}
	return err
}

func errOrNilKind(err *errkind.Error) error {
	if err == nil {
		return nil
	}
	return err
}

// ---- synchronous path primitives ----

func (e *Engine) Exists(p string) (bool, error)            { return pathops.Exists(p) }
func (e *Engine) RemoveFile(p string) (bool, error)        { return pathops.RemoveFile(p) }
func (e *Engine) Move(from, to string) error                { return pathops.Move(from, to) }
func (e *Engine) CopyFile(from, to string) error             { return pathops.CopyFile(from, to) }
func (e *Engine) CopyDirectory(from, to string) error        { return pathops.CopyDirectory(from, to) }
func (e *Engine) RemoveDirectory(p string) (int, error)     { return pathops.RemoveDirectory(p) }
func (e *Engine) CreateDirectory(p string, parents bool) (bool, error) {
	return pathops.CreateDirectory(p, parents)
}
func (e *Engine) ReadFile(p string) ([]byte, error)         { return pathops.ReadFile(p) }
func (e *Engine) WriteFile(p string, data []byte) error     { return pathops.WriteFile(p, data) }
func (e *Engine) AppendToFile(p string, data []byte) error  { return pathops.AppendToFile(p, data) }

// ---- asynchronous operations ----

// AsyncRead reads the whole content of p on the worker, storing it into
// *out and invoking handler(error, bytesRead) via the Poster.
func (e *Engine) AsyncRead(p string, out *[]byte, handler func(error, int)) {
	e.enqueue(operation{kind: opRead, path: p, out: out, handler: handler})
}

// AsyncWrite truncates (or creates) p and writes data to it on the worker.
func (e *Engine) AsyncWrite(p string, data []byte, handler func(error, int)) {
	e.enqueue(operation{kind: opWrite, path: p, dataIn: data, handler: handler})
}

// AsyncAppend appends data to p on the worker, creating p if absent.
func (e *Engine) AsyncAppend(p string, data []byte, handler func(error, int)) {
	e.enqueue(operation{kind: opAppend, path: p, dataIn: data, handler: handler})
}

// MakeChunkedStream opens p and returns a ChunkedStream that delivers its
// content as a sequence of prefetched chunks. It fails with
// invalid_argument if chunkSize is 0.
func (e *Engine) MakeChunkedStream(p string, chunkSize int) (*ChunkedStream, error) {
	if chunkSize == 0 {
		return nil, errkind.New(errkind.InvalidArgument, "chunk size must not be zero")
	}
	reader, err := newChunkReader(e, p, chunkSize)
	if err != nil {
		return nil, err
	}
	return &ChunkedStream{reader: reader}, nil
}

// MakeChunkedStreamDefault is a convenience wrapper that uses the engine's
// configured DefaultChunkSize instead of requiring the caller to supply one.
func (e *Engine) MakeChunkedStreamDefault(p string) (*ChunkedStream, error) {
	return e.MakeChunkedStream(p, e.opts.DefaultChunkSize)
}
