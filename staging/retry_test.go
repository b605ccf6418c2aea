package staging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swapfs/asyncfs/lib/errkind"
)

// TestBufferSpillRetriesOnceAfterCreatingSwapDirectory exercises the
// first-attempt-only retry: the swap subdirectory does not exist until the
// first spill attempt fails, at which point it is created and the same
// spill is retried exactly once.
func TestBufferSpillRetriesOnceAfterCreatingSwapDirectory(t *testing.T) {
	dir := t.TempDir()
	e := newTestEngine(t)
	b := NewOverwrite(e, testOptions(4), dir)

	_, err := e.Exists(filepath.Join(dir, "swap"))
	require.NoError(t, err)

	done := make(chan struct{})
	b.Append([]byte("0123456789"), func(int64) { close(done) }, failOnError(t))
	waitOrTimeout(t, done)

	b.mu.Lock()
	firstAttemptLeft := b.firstSwapAttempt
	b.mu.Unlock()
	assert.False(t, firstAttemptLeft, "the retry should have been consumed")

	exists, err := e.Exists(filepath.Join(dir, "swap"))
	require.NoError(t, err)
	assert.True(t, exists)
}

// TestBufferSpillPermanentFailureSetsErrorFlag places the swap subdirectory
// under a regular file, so writing the spill file fails with write_failure.
// That kind is not eligible for the create-parent retry, and the buffer
// enters its permanent error state.
func TestBufferSpillPermanentFailureSetsErrorFlag(t *testing.T) {
	dir := t.TempDir()
	e := newTestEngine(t)

	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("not a directory"), 0o644))

	opts := testOptions(4)
	opts.SwapSubdir = filepath.Join("blocker", "swap")
	b := NewOverwrite(e, opts, dir)

	done := make(chan struct{})
	var gotErr *errkind.Error
	b.Append([]byte("0123456789"), func(int64) {
		t.Fatal("expected failure")
	}, func(e *errkind.Error) {
		gotErr = e
		close(done)
	})
	waitOrTimeout(t, done)
	require.NotNil(t, gotErr)

	done = make(chan struct{})
	b.Append([]byte("x"), func(int64) {
		t.Fatal("expected the buffer to stay in its error state")
	}, func(e *errkind.Error) {
		assert.Equal(t, errkind.WriteFailure, e.Kind)
		close(done)
	})
	waitOrTimeout(t, done)
}
