package staging

import (
	"path/filepath"

	"github.com/swapfs/asyncfs/lib/errkind"
)

// SaveAllContents commits the buffer to dest. For Overwrite, dest's
// previous content is replaced by the buffer's logical content; for
// Append, the spilled bytes and the in-memory tail (not the original file)
// are appended after dest's existing content.
func (b *Buffer) SaveAllContents(dest string, ok func(), errCb func(*errkind.Error)) {
	b.runSerialized(func() {
		b.mu.Lock()
		errored := b.errorFlag
		b.mu.Unlock()
		if errored {
			errCb(errkind.New(errkind.WriteFailure, "staging buffer is in an error state"))
			return
		}
		switch b.kind {
		case Overwrite:
			b.saveOverwrite(dest, ok, errCb)
		case Append:
			b.saveAppend(dest, ok, errCb)
		}
	})
}

func (b *Buffer) saveOverwrite(dest string, ok func(), errCb func(*errkind.Error)) {
	tail, onDisk, _ := b.snapshot()
	if !onDisk {
		b.engine.AsyncWrite(dest, tail, func(err error, _ int) {
			if err == nil {
				ok()
				return
			}
			b.retrySaveOnMissingParent(err, dest, func() {
				b.engine.AsyncWrite(dest, tail, func(err error, _ int) { b.finishSave(err, ok, errCb) })
			}, ok, errCb)
		})
		return
	}

	b.engine.AsyncAppend(b.tmpPath, tail, func(err error, _ int) {
		if err != nil {
			errCb(errkind.Wrap(errkind.AppendFailure, err, "flush tail to %s", b.tmpPath))
			return
		}
		b.moveSpillToDestination(dest, ok, errCb)
	})
}

func (b *Buffer) moveSpillToDestination(dest string, ok func(), errCb func(*errkind.Error)) {
	moveErr := b.engine.Move(b.tmpPath, dest)
	if moveErr == nil {
		ok()
		return
	}
	b.retrySaveOnMissingParent(moveErr, dest, func() {
		if err := b.engine.Move(b.tmpPath, dest); err != nil {
			errCb(errkind.Wrap(errkind.AppendFailure, err, "move %s to %s", b.tmpPath, dest))
			return
		}
		ok()
	}, ok, errCb)
}

// retrySaveOnMissingParent implements the first-attempt-only
// create-parent-and-retry rule shared by both save paths.
func (b *Buffer) retrySaveOnMissingParent(err error, dest string, retry func(), _ func(), errCb func(*errkind.Error)) {
	kind := errkind.KindOf(err)
	if (kind != errkind.OpenFailure && kind != errkind.InvalidArgument) || !b.consumeFirstSaveAttempt() {
		errCb(errkind.Wrap(errkind.AppendFailure, err, "save to %s", dest))
		return
	}
	parent := filepath.Dir(dest)
	if _, mkErr := b.engine.CreateDirectory(parent, true); mkErr != nil {
		errCb(errkind.Wrap(errkind.AppendFailure, mkErr, "create parent directory %s", parent))
		return
	}
	retry()
}

func (b *Buffer) finishSave(err error, ok func(), errCb func(*errkind.Error)) {
	if err != nil {
		errCb(errkind.Wrap(errkind.WriteFailure, err, "save failed"))
		return
	}
	ok()
}

func (b *Buffer) saveAppend(dest string, ok func(), errCb func(*errkind.Error)) {
	tail, onDisk, _ := b.snapshot()
	if !onDisk {
		b.engine.AsyncAppend(dest, tail, func(err error, _ int) {
			if err != nil {
				errCb(errkind.Wrap(errkind.AppendFailure, err, "append to %s", dest))
				return
			}
			ok()
		})
		return
	}
	b.streamSpillThenTail(dest, tail, ok, errCb)
}

// streamSpillThenTail appends the spill file's content to dest in
// DiskMoveSize chunks, then the in-memory tail, then removes the spill
// file and shrinks the in-memory state.
func (b *Buffer) streamSpillThenTail(dest string, tail []byte, ok func(), errCb func(*errkind.Error)) {
	stream, err := b.engine.MakeChunkedStream(b.tmpPath, b.opts.DiskMoveSize)
	if err != nil {
		errCb(errkind.Wrap(errkind.AppendFailure, err, "open spill file %s", b.tmpPath))
		return
	}

	var step func()
	step = func() {
		stream.NextChunk(func(readErr error, chunk []byte) {
			if readErr != nil && !errkind.IsEndOfFile(readErr) {
				stream.Close()
				errCb(errkind.Wrap(errkind.ReadFailure, readErr, "stream spill file %s", b.tmpPath))
				return
			}
			finished := errkind.IsEndOfFile(readErr)
			appendChunk := func(next func()) {
				if len(chunk) == 0 {
					next()
					return
				}
				b.engine.AsyncAppend(dest, chunk, func(err error, _ int) {
					if err != nil {
						stream.Close()
						errCb(errkind.Wrap(errkind.AppendFailure, err, "append spill chunk to %s", dest))
						return
					}
					next()
				})
			}
			if finished {
				appendChunk(func() {
					stream.Close()
					b.finishAppendCommit(dest, tail, ok, errCb)
				})
				return
			}
			appendChunk(step)
		})
	}
	step()
}

func (b *Buffer) finishAppendCommit(dest string, tail []byte, ok func(), errCb func(*errkind.Error)) {
	b.engine.AsyncAppend(dest, tail, func(err error, _ int) {
		if err != nil {
			errCb(errkind.Wrap(errkind.AppendFailure, err, "append tail to %s", dest))
			return
		}
		if _, rmErr := b.engine.RemoveFile(b.tmpPath); rmErr != nil {
			b.log.WithError(rmErr).Warn("failed to remove spill file after commit")
		}
		b.mu.Lock()
		b.currentBuf = nil
		b.onDisk = false
		b.mu.Unlock()
		ok()
	})
}
