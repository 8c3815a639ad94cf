// Package poller implements the single blocking multiplex wait the event
// loop suspends on: a poll(2) over every registered file descriptor, with no
// timeout, surfacing the subset that became readable.
package poller

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/kestrelnet/repeater/internal/rerrors"
)

// Poller tracks a set of file descriptors polled for read-readiness.
//
// Only ingress (listener) sockets are registered by default. Polling
// egress-only sockets purely to discard whatever arrives on them is a
// simpler-looking but pointless habit; unsolicited datagrams on a
// transmitter socket are left queued by the kernel and ignored instead
// (see DESIGN.md).
type Poller struct {
	fds []int
}

// New constructs an empty Poller.
func New() *Poller {
	return &Poller{}
}

// Register adds fd to the set polled for read-readiness. Registering the
// same fd twice polls it twice; callers are expected to register each
// listener fd exactly once at startup.
func (p *Poller) Register(fd int) {
	p.fds = append(p.fds, fd)
}

// Wait blocks until at least one registered fd is readable, with no
// timeout, and returns the readable subset. EINTR is retried transparently;
// any other poll(2) failure is fatal and reported as a rerrors.Poll error.
func (p *Poller) Wait() ([]int, error) {
	pollfds := make([]unix.PollFd, len(p.fds))
	for i, fd := range p.fds {
		pollfds[i] = unix.PollFd{Fd: int32(fd), Events: unix.POLLIN}
	}

	for {
		_, err := unix.Poll(pollfds, -1)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return nil, rerrors.New(rerrors.Poll, "poll", "blocking wait for read-readiness failed", err)
		}
		break
	}

	ready := make([]int, 0, len(pollfds))
	for _, pfd := range pollfds {
		if pfd.Revents&unix.POLLIN != 0 {
			ready = append(ready, int(pfd.Fd))
		}
	}
	return ready, nil
}
