// Package socket owns every UDP socket the daemon holds: it opens
// non-blocking SOCK_DGRAM sockets, sets SO_REUSEADDR, sizes receive/send
// buffers, and optionally binds to a given address/port.
//
// This reworks a net.ListenUDP plus SetReadBuffer socket setup into direct
// golang.org/x/sys/unix calls, which is what lets this package express
// non-blocking mode, SO_REUSEADDR, and distinct receive/send buffer sizing
// in one syscall-level open instead of composing several net.Conn option
// setters.
package socket

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/kestrelnet/repeater/internal/rerrors"
)

const (
	// RecvBufferSize is the SO_RCVBUF set on every ingress socket, sized to
	// absorb bursts when user-space falls behind.
	RecvBufferSize = 5 * 1024 * 1024
	// SendBufferSize is the SO_SNDBUF set on every egress socket.
	SendBufferSize = 5 * 1024 * 1024
	// MaxDatagramSize is the largest UDP payload the dispatcher will read
	// in one receive.
	MaxDatagramSize = 65507
)

// Manager owns every socket fd created for the daemon, recording each one so
// Close can release them all. SendTo, RecvFrom, and Discard act directly on
// the fd they are given.
//
// A plain map imposes no socket-count limit beyond what the OS file
// descriptor table allows, unlike a fixed-size array indexed by raw fd.
type Manager struct {
	fds map[int]struct{}
}

// NewManager constructs an empty socket Manager.
func NewManager() *Manager {
	return &Manager{fds: make(map[int]struct{})}
}

// OpenIngress opens a non-blocking UDP socket for a listener: SO_REUSEADDR
// true, SO_RCVBUF set to RecvBufferSize, bound to (address, port). Port 0 is
// never valid for an ingress socket, callers must validate that before
// calling OpenIngress (see registry.CreateListener).
func (m *Manager) OpenIngress(address uint32, port uint16) (int, error) {
	fd, err := m.open(address, port)
	if err != nil {
		return -1, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, RecvBufferSize); err != nil {
		_ = unix.Close(fd)
		return -1, rerrors.New(rerrors.Socket, "setsockopt SO_RCVBUF", fmt.Sprintf("fd %d", fd), err)
	}
	m.fds[fd] = struct{}{}
	return fd, nil
}

// OpenEgress opens a non-blocking UDP socket for a transmitter: SO_REUSEADDR
// true, SO_SNDBUF set to SendBufferSize, optionally bound to (address,
// port). Both may be 0, leaving the socket unbound until the kernel assigns
// an ephemeral source address/port on first send.
func (m *Manager) OpenEgress(address uint32, port uint16) (int, error) {
	fd, err := m.open(address, port)
	if err != nil {
		return -1, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, SendBufferSize); err != nil {
		_ = unix.Close(fd)
		return -1, rerrors.New(rerrors.Socket, "setsockopt SO_SNDBUF", fmt.Sprintf("fd %d", fd), err)
	}
	m.fds[fd] = struct{}{}
	return fd, nil
}

// open creates a non-blocking SOCK_DGRAM socket, sets SO_REUSEADDR, and
// binds it unless both address and port are 0.
func (m *Manager) open(address uint32, port uint16) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return -1, rerrors.New(rerrors.Socket, "socket", "failed to create UDP socket", err)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, rerrors.New(rerrors.Socket, "setnonblock", fmt.Sprintf("fd %d", fd), err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return -1, rerrors.New(rerrors.Socket, "setsockopt SO_REUSEADDR", fmt.Sprintf("fd %d", fd), err)
	}

	if address == 0 && port == 0 {
		return fd, nil
	}

	sa := &unix.SockaddrInet4{Port: int(port)}
	if address != 0 {
		hostOrderToBytes(address, &sa.Addr)
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return -1, rerrors.New(rerrors.Socket, "bind", fmt.Sprintf("%s:%d", addressString(address), port), &bindError{err})
	}

	return fd, nil
}

// bindError marks a bind(2) failure inside the Socket-kind error's chain and
// wraps the underlying errno. The type is unexported, so outside this
// package a bind failure is told apart only by its "bind" Operation or by
// errors.Is against the errno.
type bindError struct{ err error }

func (b *bindError) Error() string { return b.err.Error() }
func (b *bindError) Unwrap() error { return b.err }

// SendTo transmits payload unchanged through fd to (address, port), both in
// host byte order. A send failure is never retried; the caller logs it and
// moves on to the next target.
func (m *Manager) SendTo(fd int, payload []byte, address uint32, port uint16) error {
	sa := &unix.SockaddrInet4{Port: int(port)}
	hostOrderToBytes(address, &sa.Addr)
	if err := unix.Sendto(fd, payload, 0, sa); err != nil {
		return rerrors.New(rerrors.SendRuntime, "sendto", fmt.Sprintf("%s:%d", addressString(address), port), err)
	}
	return nil
}

// RecvFrom reads exactly one datagram from fd into buf, returning the
// number of bytes read and the source address/port in host byte order.
func (m *Manager) RecvFrom(fd int, buf []byte) (n int, srcAddress uint32, srcPort uint16, err error) {
	nn, from, rerr := unix.Recvfrom(fd, buf, 0)
	if rerr != nil {
		return 0, 0, 0, recvError(rerr)
	}
	sa4, ok := from.(*unix.SockaddrInet4)
	if !ok {
		return 0, 0, 0, rerrors.New(rerrors.RecvRuntime, "recvfrom", "non-IPv4 source address", nil)
	}
	return nn, bytesToHostOrder(sa4.Addr), uint16(sa4.Port), nil
}

func recvError(err error) error {
	return rerrors.New(rerrors.RecvRuntime, "recvfrom", "failed to read datagram", err)
}

// Discard reads and throws away one datagram from fd, used when an
// egress-only socket unexpectedly becomes readable (not reached in the
// default registration scheme, see internal/loop, but kept for a future
// registration mode that polls transmitter sockets too).
func (m *Manager) Discard(fd int) {
	var buf [MaxDatagramSize]byte
	_, _ = unix.Recvfrom(fd, buf[:], 0)
}

// Close closes every socket this Manager opened.
func (m *Manager) Close() {
	for fd := range m.fds {
		_ = unix.Close(fd)
	}
}

// hostOrderToBytes splits a uint32 host-byte-order IPv4 address into the
// 4-byte big-endian array unix.SockaddrInet4 expects.
func hostOrderToBytes(address uint32, out *[4]byte) {
	out[0] = byte(address >> 24)
	out[1] = byte(address >> 16)
	out[2] = byte(address >> 8)
	out[3] = byte(address)
}

// bytesToHostOrder is the inverse of hostOrderToBytes.
func bytesToHostOrder(b [4]byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func addressString(address uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(address>>24), byte(address>>16), byte(address>>8), byte(address))
}
