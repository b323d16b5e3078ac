//go:build unix && !(darwin || freebsd || netbsd || openbsd)

package ioselect

import "errors"

const hasKqueue = false

func kqueueCandidate() func() (Backend, error) {
	return func() (Backend, error) {
		return nil, errors.New("ioselect: kqueue not available on this platform")
	}
}
