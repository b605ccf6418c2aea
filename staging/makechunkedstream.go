package staging

import "github.com/swapfs/asyncfs/lib/errkind"

// MakeChunkedStream returns a ChunkReader over the buffer's full logical
// content (the same bytes ReadAll would return), produced in chunkSize
// pieces without materializing the whole content in memory when it has
// been spilled to disk. info is shared with the in-memory tail stage of
// the returned reader, so SharedInfo.StopReading stops that stage without
// waiting for the buffer's own serialization queue. The stages that read
// the spill file or the original file do not check info.
func (b *Buffer) MakeChunkedStream(info *SharedInfo, chunkSize int, ok func(ChunkReader), errCb func(*errkind.Error)) {
	if chunkSize <= 0 {
		errCb(errkind.New(errkind.InvalidArgument, "chunk size must be positive"))
		return
	}
	b.runSerialized(func() {
		switch b.kind {
		case Overwrite:
			b.makeChunkedStreamOverwrite(info, chunkSize, ok, errCb)
		case Append:
			b.makeChunkedStreamAppend(info, chunkSize, ok, errCb)
		}
	})
}

func (b *Buffer) makeChunkedStreamOverwrite(info *SharedInfo, chunkSize int, ok func(ChunkReader), errCb func(*errkind.Error)) {
	tail, onDisk, _ := b.snapshot()
	tailReader := NewCacheChunkReader(info, tail, chunkSize)
	if !onDisk {
		ok(tailReader)
		return
	}
	spillStream, err := b.engine.MakeChunkedStream(b.tmpPath, chunkSize)
	if err != nil {
		errCb(errkind.Wrap(errkind.OpenFailure, err, "open spill file %s", b.tmpPath))
		return
	}
	ok(newChainReader(spillStream, tailReader))
}

func (b *Buffer) makeChunkedStreamAppend(info *SharedInfo, chunkSize int, ok func(ChunkReader), errCb func(*errkind.Error)) {
	tail, onDisk, _ := b.snapshot()
	tailReader := NewCacheChunkReader(info, tail, chunkSize)

	originalStream, err := b.engine.MakeChunkedStream(b.originalPath, chunkSize)
	if err != nil {
		errCb(errkind.Wrap(errkind.OpenFailure, err, "open original file %s", b.originalPath))
		return
	}
	if !onDisk {
		ok(newChainReader(originalStream, tailReader))
		return
	}
	spillStream, err := b.engine.MakeChunkedStream(b.tmpPath, chunkSize)
	if err != nil {
		originalStream.Close()
		errCb(errkind.Wrap(errkind.OpenFailure, err, "open spill file %s", b.tmpPath))
		return
	}
	ok(newChainReader(originalStream, spillStream, tailReader))
}
