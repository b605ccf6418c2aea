package staging

import "github.com/swapfs/asyncfs/lib/errkind"

// ReadAll returns the buffer's full logical content: for Overwrite, the
// spill file (if any) followed by the in-memory tail; for Append, the
// original file followed by the spill file (if any) followed by the tail.
func (b *Buffer) ReadAll(ok func([]byte), errCb func(*errkind.Error)) {
	b.runSerialized(func() {
		switch b.kind {
		case Overwrite:
			b.readAllOverwrite(ok, errCb)
		case Append:
			b.readAllAppend(ok, errCb)
		}
	})
}

func (b *Buffer) readAllOverwrite(ok func([]byte), errCb func(*errkind.Error)) {
	tail, onDisk, _ := b.snapshot()
	if !onDisk {
		ok(tail)
		return
	}
	var spilled []byte
	b.engine.AsyncRead(b.tmpPath, &spilled, func(err error, _ int) {
		if err != nil {
			errCb(errkind.Wrap(errkind.ReadFailure, err, "read spill file %s", b.tmpPath))
			return
		}
		ok(append(spilled, tail...))
	})
}

func (b *Buffer) readAllAppend(ok func([]byte), errCb func(*errkind.Error)) {
	tail, onDisk, _ := b.snapshot()
	var original []byte
	b.engine.AsyncRead(b.originalPath, &original, func(err error, _ int) {
		if err != nil {
			errCb(errkind.Wrap(errkind.ReadFailure, err, "read original file %s", b.originalPath))
			return
		}
		if !onDisk {
			ok(append(original, tail...))
			return
		}
		var spilled []byte
		b.engine.AsyncRead(b.tmpPath, &spilled, func(err error, _ int) {
			if err != nil {
				errCb(errkind.Wrap(errkind.ReadFailure, err, "read spill file %s", b.tmpPath))
				return
			}
			combined := append(original, spilled...)
			ok(append(combined, tail...))
		})
	})
}
