package staging

import (
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/swapfs/asyncfs/asyncfs"
	"github.com/swapfs/asyncfs/config"
	"github.com/swapfs/asyncfs/lib/errkind"
)

// Kind selects a Buffer's commit semantics. The two variants share all
// state and most operations; only spill dispatch, ReadAll,
// SaveAllContents, and MakeChunkedStream differ, dispatched on Kind.
type Kind int

const (
	// Overwrite commits replace the destination file's content.
	Overwrite Kind = iota
	// Append commits append to an existing destination file.
	Append
)

var sessionCounter atomic.Int64

func nextSessionID() int64 {
	return sessionCounter.Add(1) - 1
}

func calculateTmpPath(rootDir, swapSubdir string, sessionID int64) string {
	return filepath.Join(rootDir, swapSubdir, strconv.FormatInt(sessionID, 10))
}

type pendingSpill struct {
	ok    func(int64)
	errCb func(*errkind.Error)
}

// Buffer is the staging buffer: an in-memory tail that transparently
// spills to a temporary file once it grows past opts.MaxBufferSize.
type Buffer struct {
	engine *asyncfs.Engine
	opts   *config.Options
	log    *logrus.Entry

	kind         Kind
	originalPath string // only meaningful for Append

	rootDir   string
	tmpPath   string
	sessionID int64

	mu                sync.Mutex
	currentBuf        []byte
	spillBuf          []byte
	realSize          int64
	onDisk            bool
	swapping          bool
	errorFlag         bool
	firstSwapAttempt  bool
	firstSaveAttempt  bool
	queuedSpills      []pendingSpill
	pendingOps        []func()
}

// NewOverwrite returns a Buffer whose commit semantics replace the
// destination file's content.
func NewOverwrite(engine *asyncfs.Engine, opts *config.Options, rootDir string) *Buffer {
	return newBuffer(engine, opts, rootDir, Overwrite, "")
}

// NewAppend returns a Buffer whose commit semantics append to
// originalPath, which is assumed to already exist.
func NewAppend(engine *asyncfs.Engine, opts *config.Options, rootDir, originalPath string) *Buffer {
	return newBuffer(engine, opts, rootDir, Append, originalPath)
}

func newBuffer(engine *asyncfs.Engine, opts *config.Options, rootDir string, kind Kind, originalPath string) *Buffer {
	if opts == nil {
		opts = config.Default()
	}
	id := nextSessionID()
	return &Buffer{
		engine:           engine,
		opts:             opts,
		log:              logrus.WithFields(logrus.Fields{"component": "staging.Buffer", "session_id": id}),
		kind:             kind,
		originalPath:     originalPath,
		rootDir:          rootDir,
		tmpPath:          calculateTmpPath(rootDir, opts.SwapSubdir, id),
		sessionID:        id,
		firstSwapAttempt: true,
		firstSaveAttempt: true,
	}
}

// Size posts cb with the total number of logical bytes appended so far.
func (b *Buffer) Size(cb func(int64)) {
	b.runSerialized(func() {
		b.mu.Lock()
		n := b.realSize
		b.mu.Unlock()
		cb(n)
	})
}

// Clear resets the buffer to empty and removes its temp file, if any.
func (b *Buffer) Clear(cb func()) {
	b.runSerialized(func() {
		b.mu.Lock()
		b.currentBuf = nil
		b.spillBuf = nil
		b.realSize = 0
		onDisk := b.onDisk
		tmp := b.tmpPath
		b.onDisk = false
		b.errorFlag = false
		b.mu.Unlock()
		if onDisk {
			if _, err := b.engine.RemoveFile(tmp); err != nil {
				b.log.WithError(err).Warn("failed to remove spill file on clear")
			}
		}
		cb()
	})
}

// runSerialized executes op now, unless a spill is in flight, in which
// case it is queued and runs once the spill (and any chained follow-up
// spills) finish draining, in FIFO order with respect to other queued
// operations.
func (b *Buffer) runSerialized(op func()) {
	b.mu.Lock()
	if b.swapping {
		b.pendingOps = append(b.pendingOps, op)
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()
	op()
}

// Append implements the spill state machine: a chunk that fits without
// overflowing the in-memory buffer is appended in place; an oversized
// chunk always triggers a spill by itself; a chunk that would overflow
// the buffer is appended first and then triggers a spill. Appends that
// arrive while a spill is already in flight are chained as queued
// follow-up spills instead of starting a second one concurrently.
func (b *Buffer) Append(chunk []byte, ok func(int64), errCb func(*errkind.Error)) {
	b.mu.Lock()
	if b.errorFlag {
		b.mu.Unlock()
		errCb(errkind.New(errkind.WriteFailure, "staging buffer is in an error state"))
		return
	}

	chunkLen := int64(len(chunk))
	current := int64(len(b.currentBuf))
	oversized := chunkLen > b.opts.MaxBufferSize
	fitsWithoutOverflow := current+chunkLen < b.opts.MaxBufferSize

	b.currentBuf = append(b.currentBuf, chunk...)
	b.realSize += chunkLen

	switch {
	case fitsWithoutOverflow || oversized:
		if !oversized {
			sz := b.realSize
			b.mu.Unlock()
			ok(sz)
			return
		}
		// oversized chunk always triggers a spill by itself.
		swapping := b.swapping
		if swapping {
			b.queuedSpills = append(b.queuedSpills, pendingSpill{ok, errCb})
			b.mu.Unlock()
			return
		}
		b.mu.Unlock()
		b.startSwapping(ok, errCb)

	default:
		// current would overflow and chunk is not oversized.
		if !b.swapping {
			b.mu.Unlock()
			b.startSwapping(ok, errCb)
			return
		}
		b.queuedSpills = append(b.queuedSpills, pendingSpill{ok, errCb})
		b.mu.Unlock()
	}
}

// startSwapping swaps currentBuf into spillBuf and dispatches it to the
// Async FS Engine. ok/errCb fire once this specific spill (including any
// parent-directory retry) completes.
func (b *Buffer) startSwapping(ok func(int64), errCb func(*errkind.Error)) {
	b.mu.Lock()
	b.spillBuf = b.currentBuf
	b.currentBuf = nil
	b.swapping = true
	data := b.spillBuf
	b.mu.Unlock()

	b.log.WithField("bytes", len(data)).Debug("starting spill")
	b.dispatchSpill(data, func(err error, n int) {
		b.postSwapRoutine(err, n, ok, errCb)
	})
}

// dispatchSpill picks AsyncWrite vs AsyncAppend: the Overwrite variant
// truncates on its very first spill and appends thereafter; the Append
// variant always appends to its own temp file.
func (b *Buffer) dispatchSpill(data []byte, handler func(error, int)) {
	b.mu.Lock()
	firstOverwriteSpill := b.kind == Overwrite && !b.onDisk
	b.mu.Unlock()
	if firstOverwriteSpill {
		b.engine.AsyncWrite(b.tmpPath, data, handler)
		return
	}
	b.engine.AsyncAppend(b.tmpPath, data, handler)
}

func (b *Buffer) postSwapRoutine(err error, _ int, ok func(int64), errCb func(*errkind.Error)) {
	b.mu.Lock()
	b.swapping = false
	b.mu.Unlock()

	if err != nil {
		kind := errkind.KindOf(err)
		if (kind == errkind.OpenFailure || kind == errkind.InvalidArgument) && b.consumeFirstAttempt() {
			b.retrySpillAfterCreatingParent(ok, errCb)
			return
		}
		b.mu.Lock()
		b.errorFlag = true
		data := b.spillBuf
		b.mu.Unlock()
		b.log.WithError(err).Warn("spill failed permanently")
		errCb(errkind.Wrap(errkind.WriteFailure, err, "spill %d bytes to %s", len(data), b.tmpPath))
		return
	}

	b.mu.Lock()
	b.onDisk = true
	sz := b.realSize
	b.mu.Unlock()
	ok(sz)
	b.drainAfterSpill()
}

func (b *Buffer) consumeFirstAttempt() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.firstSwapAttempt {
		return false
	}
	b.firstSwapAttempt = false
	return true
}

func (b *Buffer) retrySpillAfterCreatingParent(ok func(int64), errCb func(*errkind.Error)) {
	parent := filepath.Dir(b.tmpPath)
	if _, err := b.engine.CreateDirectory(parent, true); err != nil {
		b.mu.Lock()
		b.errorFlag = true
		b.mu.Unlock()
		errCb(errkind.Wrap(errkind.WriteFailure, err, "create parent directory %s for spill", parent))
		return
	}
	b.mu.Lock()
	data := b.spillBuf
	b.swapping = true
	b.mu.Unlock()
	b.dispatchSpill(data, func(err error, n int) {
		b.postSwapRoutine(err, n, ok, errCb)
	})
}

// drainAfterSpill runs the next queued follow-up spill, if any; otherwise
// it drains the generic pending-operation queue in FIFO order.
func (b *Buffer) drainAfterSpill() {
	b.mu.Lock()
	if len(b.queuedSpills) > 0 {
		next := b.queuedSpills[0]
		b.queuedSpills = b.queuedSpills[1:]
		b.mu.Unlock()
		b.startSwapping(next.ok, next.errCb)
		return
	}
	pending := b.pendingOps
	b.pendingOps = nil
	b.mu.Unlock()
	for _, op := range pending {
		op()
	}
}

func (b *Buffer) snapshot() (currentBuf []byte, onDisk, errored bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.currentBuf...), b.onDisk, b.errorFlag
}

func (b *Buffer) consumeFirstSaveAttempt() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.firstSaveAttempt {
		return false
	}
	b.firstSaveAttempt = false
	return true
}
