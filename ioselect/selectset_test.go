//go:build unix

package ioselect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is a minimal in-memory Backend used to exercise SelectSet's
// ownership bookkeeping without touching any real OS polling primitive.
type fakeBackend struct {
	added   map[int]Mask
	removed []int
	closed  bool
}

func newFakeBackend() (Backend, error) {
	return &fakeBackend{added: make(map[int]Mask)}, nil
}

func (f *fakeBackend) Kind() string { return "fake" }

func (f *fakeBackend) Add(fd int, mask Mask) error {
	f.added[fd] |= mask
	return nil
}

func (f *fakeBackend) Remove(fd int, mask Mask) error {
	f.added[fd] &^= mask
	f.removed = append(f.removed, fd)
	return nil
}

func (f *fakeBackend) Wait(timeout time.Duration, dst []Event) ([]Event, error) {
	return dst, nil
}

func (f *fakeBackend) Close() error {
	f.closed = true
	return nil
}

func TestAddSelectConflictingOwnerRejected(t *testing.T) {
	ss, err := New(newFakeBackend)
	require.NoError(t, err)
	defer ss.Close()

	ownerA, ownerB := "a", "b"
	require.NoError(t, ss.AddSelect(5, ownerA, Read))
	err = ss.AddSelect(5, ownerB, Read)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestAddSelectSameOwnerIsIdempotent(t *testing.T) {
	ss, err := New(newFakeBackend)
	require.NoError(t, err)
	defer ss.Close()

	owner := "a"
	require.NoError(t, ss.AddSelect(5, owner, Read))
	require.NoError(t, ss.AddSelect(5, owner, Write))
}

func TestRemoveSelectWrongOwnerRejected(t *testing.T) {
	ss, err := New(newFakeBackend)
	require.NoError(t, err)
	defer ss.Close()

	require.NoError(t, ss.AddSelect(5, "a", Read))
	err = ss.RemoveSelect(5, "b", Read)
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestRemoveSelectThenReaddDifferentOwner(t *testing.T) {
	ss, err := New(newFakeBackend)
	require.NoError(t, err)
	defer ss.Close()

	require.NoError(t, ss.AddSelect(5, "a", Read))
	require.NoError(t, ss.RemoveSelect(5, "a", Read))
	require.NoError(t, ss.AddSelect(5, "b", Read))
}

func TestKindReportsBackend(t *testing.T) {
	ss, err := New(newFakeBackend)
	require.NoError(t, err)
	defer ss.Close()
	assert.Equal(t, "fake", ss.Kind())
}

// blockingFakeBackend.Wait blocks until released is closed, standing in for
// a real backend parked in its blocking syscall.
type blockingFakeBackend struct {
	fakeBackend
	released chan struct{}
}

func newBlockingFakeBackend(released chan struct{}) func() (Backend, error) {
	return func() (Backend, error) {
		return &blockingFakeBackend{fakeBackend: fakeBackend{added: make(map[int]Mask)}, released: released}, nil
	}
}

func (f *blockingFakeBackend) Wait(timeout time.Duration, dst []Event) ([]Event, error) {
	<-f.released
	return dst, nil
}

// TestCrossThreadAddSelectWhileOwnerBlockedInWait is spec.md §8 scenario 6:
// the owning thread is parked in Wait; another goroutine registers a new fd
// via AddSelect. AddSelect must not race the owner's Wait over the owners
// map or the backend, and must be able to proceed once Wait is released.
func TestCrossThreadAddSelectWhileOwnerBlockedInWait(t *testing.T) {
	released := make(chan struct{})
	ss, err := New(newBlockingFakeBackend(released))
	require.NoError(t, err)
	defer ss.Close()

	waitReturned := make(chan struct{})
	go func() {
		_, _ = ss.Wait(-1)
		close(waitReturned)
	}()

	addDone := make(chan error, 1)
	go func() {
		addDone <- ss.AddSelect(7, "cross-thread-owner", Read)
	}()

	select {
	case <-addDone:
		t.Fatal("AddSelect returned before the owner's Wait was released")
	case <-time.After(20 * time.Millisecond):
	}

	close(released)
	<-waitReturned
	require.NoError(t, <-addDone)

	backend := ss.backend.(*blockingFakeBackend)
	assert.Equal(t, Read, backend.added[7])
}
