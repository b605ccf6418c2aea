package errkind

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindStringRoundTrip(t *testing.T) {
	for k, name := range kindNames {
		assert.Equal(t, name, k.String())
		var got Kind
		assert.NoError(t, got.Set(name))
		assert.Equal(t, k, got)
	}
}

func TestKindStringUnknown(t *testing.T) {
	assert.Equal(t, "Unknown(999)", Kind(999).String())
}

func TestKindSetUnknown(t *testing.T) {
	var k Kind
	assert.Error(t, k.Set("not_a_kind"))
}

func TestNewAndError(t *testing.T) {
	err := New(ReadFailure, "could not read %s", "foo.txt")
	assert.Equal(t, ReadFailure, err.Kind)
	assert.Equal(t, "read_failure: could not read foo.txt", err.Error())
}

func TestNewEmptyMessage(t *testing.T) {
	err := New(EndOfFile, "")
	assert.Equal(t, "end_of_file", err.Error())
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(WriteFailure, cause, "writing %s", "bar.txt")
	assert.Equal(t, WriteFailure, err.Kind)
	assert.Equal(t, cause, err.Cause())
	assert.Contains(t, err.Error(), "disk full")
	assert.Contains(t, err.Error(), "writing bar.txt")
}

func TestWrapNilErrBehavesLikeNew(t *testing.T) {
	err := Wrap(OpenFailure, nil, "opening %s", "baz.txt")
	assert.Nil(t, err.Cause())
	assert.Equal(t, "open_failure: opening baz.txt", err.Error())
}

func TestIsAndKindOf(t *testing.T) {
	err := New(Stopped, "reader stopped")
	assert.True(t, Is(err, Stopped))
	assert.False(t, Is(err, EndOfFile))
	assert.Equal(t, Stopped, KindOf(err))

	assert.True(t, Is(nil, Success))
	assert.Equal(t, Success, KindOf(nil))

	other := errors.New("plain error")
	assert.False(t, Is(other, UnknownError))
	assert.Equal(t, UnknownError, KindOf(other))
}

func TestIsEndOfFileAndIsStopped(t *testing.T) {
	assert.True(t, IsEndOfFile(New(EndOfFile, "")))
	assert.False(t, IsEndOfFile(New(ReadFailure, "")))
	assert.True(t, IsStopped(New(Stopped, "")))
	assert.False(t, IsStopped(New(EndOfFile, "")))
}

func TestNilErrorMethods(t *testing.T) {
	var err *Error
	assert.Equal(t, "", err.Error())
	assert.Nil(t, err.Cause())
}
