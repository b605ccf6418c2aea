package event

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFlagWaitReturnsImmediatelyIfSet(t *testing.T) {
	f := NewFlag()
	f.Set()

	done := make(chan struct{})
	go func() {
		f.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return for an already-set flag")
	}
}

func TestFlagWaitBlocksUntilSet(t *testing.T) {
	f := NewFlag()
	done := make(chan struct{})
	go func() {
		f.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned before Set was called")
	case <-time.After(50 * time.Millisecond):
	}

	f.Set()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Set")
	}
}

func TestFlagSetIsIdempotent(t *testing.T) {
	f := NewFlag()
	f.Set()
	f.Set()
	assert.True(t, f.IsSet())
}

func TestFlagResetClearsState(t *testing.T) {
	f := NewFlag()
	f.Set()
	f.Reset()
	assert.False(t, f.IsSet())
}

func TestFlagManySetters(t *testing.T) {
	f := NewFlag()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Set()
		}()
	}
	wg.Wait()
	assert.True(t, f.IsSet())
}
