//go:build unix

package ioselect

import (
	"golang.org/x/sys/unix"
)

// wakePipe is the self-pipe every SelectSet registers for read so a
// blocking Wait can be interrupted from another thread (spec.md §4.G).
type wakePipe struct {
	backend Backend
	readFD  int
	writeFD int
}

func newWakePipe(backend Backend) (*wakePipe, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, err
	}
	if err := backend.Add(fds[0], Read); err != nil {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
		return nil, err
	}
	return &wakePipe{backend: backend, readFD: fds[0], writeFD: fds[1]}, nil
}

func (w *wakePipe) write() error {
	_, err := unix.Write(w.writeFD, []byte{1})
	if err == unix.EAGAIN {
		// pipe buffer already has a pending wake byte; the target thread
		// will observe it on its next Wait regardless.
		return nil
	}
	return err
}

func (w *wakePipe) drain() error {
	var buf [64]byte
	for {
		_, err := unix.Read(w.readFD, buf[:])
		if err != nil {
			return nil
		}
	}
}

func (w *wakePipe) close() error {
	_ = w.backend.Remove(w.readFD, Read)
	err1 := unix.Close(w.readFD)
	err2 := unix.Close(w.writeFD)
	if err1 != nil {
		return err1
	}
	return err2
}
