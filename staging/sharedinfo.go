// Package staging implements the staging buffer: an in-memory tail that
// transparently spills to a temporary file once it grows past a
// configured threshold, in Overwrite and Append commit flavors.
package staging

import "sync/atomic"

// SharedInfo is passed by the caller to Buffer.MakeChunkedStream and held
// by the in-memory readers it produces, so the caller can ask those
// readers to stop without tracking them individually.
type SharedInfo struct {
	stopReading atomic.Bool
}

// NewSharedInfo returns a fresh, non-stopped SharedInfo.
func NewSharedInfo() *SharedInfo {
	return &SharedInfo{}
}

// StopReading marks every reader sharing this info as stopped.
func (s *SharedInfo) StopReading() {
	s.stopReading.Store(true)
}

func (s *SharedInfo) stopped() bool {
	return s.stopReading.Load()
}
