package staging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swapfs/asyncfs/lib/errkind"
)

func TestSaveAllContentsOverwriteNoSpill(t *testing.T) {
	dir := t.TempDir()
	e := newTestEngine(t)
	b := NewOverwrite(e, testOptions(1024), dir)

	done := make(chan struct{})
	b.Append([]byte("small"), func(int64) { close(done) }, failOnError(t))
	waitOrTimeout(t, done)

	dest := filepath.Join(dir, "dest")
	require.NoError(t, os.WriteFile(dest, []byte("stale"), 0o644))

	done = make(chan struct{})
	b.SaveAllContents(dest, func() { close(done) }, func(e *errkind.Error) { t.Fatalf("unexpected: %v", e) })
	waitOrTimeout(t, done)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "small", string(data))
}

func TestSaveAllContentsOverwriteWithSpill(t *testing.T) {
	dir := t.TempDir()
	e := newTestEngine(t)
	b := NewOverwrite(e, testOptions(4), dir)

	done := make(chan struct{})
	b.Append([]byte("0123456789"), func(int64) { close(done) }, failOnError(t))
	waitOrTimeout(t, done)

	done = make(chan struct{})
	b.Append([]byte("AB"), func(int64) { close(done) }, failOnError(t))
	waitOrTimeout(t, done)

	dest := filepath.Join(dir, "nested", "dest")

	done = make(chan struct{})
	b.SaveAllContents(dest, func() { close(done) }, func(e *errkind.Error) { t.Fatalf("unexpected: %v", e) })
	waitOrTimeout(t, done)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "0123456789AB", string(data))
}

func TestSaveAllContentsAppendVariantWithSpillStreamsAndRemovesTemp(t *testing.T) {
	dir := t.TempDir()
	e := newTestEngine(t)
	original := filepath.Join(dir, "original")
	require.NoError(t, os.WriteFile(original, []byte("base-"), 0o644))

	b := NewAppend(e, testOptions(4), dir, original)

	done := make(chan struct{})
	b.Append([]byte("0123456789"), func(int64) { close(done) }, failOnError(t))
	waitOrTimeout(t, done)

	b.mu.Lock()
	tmp := b.tmpPath
	b.mu.Unlock()

	dest := filepath.Join(dir, "dest")
	require.NoError(t, os.WriteFile(dest, []byte("existing-"), 0o644))

	done = make(chan struct{})
	b.SaveAllContents(dest, func() { close(done) }, func(e *errkind.Error) { t.Fatalf("unexpected: %v", e) })
	waitOrTimeout(t, done)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "existing-0123456789", string(data))

	_, statErr := os.Stat(tmp)
	assert.True(t, os.IsNotExist(statErr), "spill file should have been removed after commit")
}

func TestSaveAllContentsAppendVariantNoSpill(t *testing.T) {
	dir := t.TempDir()
	e := newTestEngine(t)
	original := filepath.Join(dir, "original")
	require.NoError(t, os.WriteFile(original, []byte("base"), 0o644))

	b := NewAppend(e, testOptions(1024), dir, original)

	done := make(chan struct{})
	b.Append([]byte("-tail"), func(int64) { close(done) }, failOnError(t))
	waitOrTimeout(t, done)

	dest := filepath.Join(dir, "dest")
	require.NoError(t, os.WriteFile(dest, []byte("existing"), 0o644))

	done = make(chan struct{})
	b.SaveAllContents(dest, func() { close(done) }, func(e *errkind.Error) { t.Fatalf("unexpected: %v", e) })
	waitOrTimeout(t, done)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "existing-tail", string(data))
}
