package asyncfs

import (
	"sync"
	"sync/atomic"

	"github.com/swapfs/asyncfs/lib/errkind"
	"github.com/swapfs/asyncfs/lib/pool"
)

// slot is one side of a HotDoubleBuffer. data is a fixed-capacity buffer
// leased from a pool; size is the number of valid bytes currently in it.
// hot enforces that the worker may (re)fill a slot only after the consumer
// has copied its previous content out and cleared the flag.
type slot struct {
	data     []byte
	size     int
	hot      atomic.Bool
	lastErr  *errkind.Error
}

// DoubleBuffer holds two fixed-capacity slots and a caller-owned selector.
// GetAndSwap hands out the current slot as a BufferView and flips the
// selector so the next call returns the other slot.
type DoubleBuffer struct {
	mu      sync.Mutex
	current int
	slots   [2]*slot
	pool    *pool.Pool
}

// NewDoubleBuffer leases both slots from a fresh pool sized to capacity.
func NewDoubleBuffer(capacity int) *DoubleBuffer {
	p := pool.New(capacity)
	leased := p.GetN(2)
	return &DoubleBuffer{
		pool: p,
		slots: [2]*slot{
			{data: leased[0]},
			{data: leased[1]},
		},
	}
}

// Close returns both slots to the underlying pool and releases it.
func (d *DoubleBuffer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pool.PutN([][]byte{d.slots[0].data, d.slots[1].data})
	d.pool.Flush()
}

// GetAndSwap returns a view of the current slot and flips the selector.
func (d *DoubleBuffer) GetAndSwap() BufferView {
	d.mu.Lock()
	idx := d.current
	d.current = 1 - d.current
	d.mu.Unlock()
	return BufferView{buf: d, idx: idx}
}

// BufferView is a non-owning reference to one slot of a DoubleBuffer.
type BufferView struct {
	buf *DoubleBuffer
	idx int
}

// IsHot reports whether the worker has filled this slot and the consumer
// has not yet cleared it.
func (v BufferView) IsHot() bool {
	return v.buf.slots[v.idx].hot.Load()
}

// Data returns the valid bytes currently held by the slot. Callers must
// copy it out before calling ClearHot, since the worker may refill it the
// instant the hot flag drops.
func (v BufferView) Data() []byte {
	s := v.buf.slots[v.idx]
	return s.data[:s.size]
}

// LastError returns the error the worker recorded for the most recent fill.
func (v BufferView) LastError() *errkind.Error {
	return v.buf.slots[v.idx].lastErr
}

// ClearHot is called by the consumer once it has copied the slot's data
// out, permitting the worker to refill it.
func (v BufferView) ClearHot() {
	v.buf.slots[v.idx].hot.Store(false)
}

// fill is called by the worker: it must only be invoked when IsHot is
// false. It copies n bytes from data, records err, and sets the hot flag.
func (v BufferView) fill(data []byte, err *errkind.Error) {
	s := v.buf.slots[v.idx]
	n := copy(s.data, data)
	s.size = n
	s.lastErr = err
	s.hot.Store(true)
}

// capacity returns the slot's fixed buffer capacity.
func (v BufferView) capacity() int {
	return len(v.buf.slots[v.idx].data)
}
