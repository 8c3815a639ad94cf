// Package registry is the in-memory catalog of configured entities:
// listeners, transmitters, targets, and an ordered list of maps.
//
// All entities are created during configuration and are immutable once the
// event loop starts (see internal/loop); the Registry itself enforces no
// such lifecycle barrier, it is the caller's responsibility to stop calling
// Create* once the loop is running.
package registry

import (
	"fmt"

	"github.com/kestrelnet/repeater/internal/rerrors"
	"github.com/kestrelnet/repeater/internal/socket"
)

// Listener is a configured ingress endpoint: one UDP socket bound to a
// specific address/port that receives datagrams to be repeated.
type Listener struct {
	ID      int32
	Address uint32 // host byte order, 0 = any interface
	Port    uint16 // 1025-65535, mandatory
	FD      int    // owning ingress socket
}

// Transmitter is a configured egress socket, optionally bound, used as the
// send channel for one or more targets.
type Transmitter struct {
	ID      int32
	Address uint32 // host byte order, 0 = any
	Port    uint16 // 0 = ephemeral
	FD      int    // owning egress socket
}

// Target is a destination record named by id, selected by maps.
type Target struct {
	ID            int32
	Address       uint32 // host byte order, must be non-zero
	Port          uint16 // must be non-zero
	TransmitterID int32
}

// Map is a matching rule routing an incoming datagram to a single target.
// Maps have no identity of their own; insertion order is preserved and is
// observable in fan-out ordering (see internal/dispatch).
type Map struct {
	ListenerID int32
	SrcAddress uint32 // 0 = wildcard, matches any source address
	SrcPort    uint16 // 0 = wildcard, matches any source port
	TargetID   int32
}

// Registry holds every configured entity. Zero value is not ready for use;
// construct with New.
type Registry struct {
	sockets *socket.Manager

	listeners    map[int32]*Listener
	transmitters map[int32]*Transmitter
	targets      map[int32]*Target
	maps         []Map

	// fdListener maps an ingress socket fd back to the listener id that
	// owns it, the lookup the Dispatcher performs on every readable fd.
	fdListener map[int]int32
}

// New constructs an empty Registry backed by the given socket manager.
func New(sockets *socket.Manager) *Registry {
	return &Registry{
		sockets:      sockets,
		listeners:    make(map[int32]*Listener),
		transmitters: make(map[int32]*Transmitter),
		targets:      make(map[int32]*Target),
		fdListener:   make(map[int]int32),
	}
}

// CreateListener validates and registers a listener, opening and binding its
// ingress socket. Returns a *rerrors.Error (Kind Configuration or Socket) on
// any failure; the caller decides whether to treat this as fatal.
func (r *Registry) CreateListener(id int32, address uint32, port uint16) error {
	if id <= 0 {
		return rerrors.New(rerrors.Configuration, "create_listener", fmt.Sprintf("id %d must be > 0", id), nil)
	}
	if port == 0 {
		return rerrors.New(rerrors.Configuration, "create_listener", fmt.Sprintf("listener %d: port must be non-zero", id), nil)
	}
	if _, exists := r.listeners[id]; exists {
		return rerrors.New(rerrors.Configuration, "create_listener", fmt.Sprintf("duplicate listener id %d", id), nil)
	}

	fd, err := r.sockets.OpenIngress(address, port)
	if err != nil {
		return err
	}

	r.listeners[id] = &Listener{ID: id, Address: address, Port: port, FD: fd}
	r.fdListener[fd] = id
	return nil
}

// CreateTransmitter validates and registers a transmitter, opening its
// egress socket. Address and port may both be 0 (unbound, ephemeral).
func (r *Registry) CreateTransmitter(id int32, address uint32, port uint16) error {
	if id <= 0 {
		return rerrors.New(rerrors.Configuration, "create_transmitter", fmt.Sprintf("id %d must be > 0", id), nil)
	}
	if _, exists := r.transmitters[id]; exists {
		return rerrors.New(rerrors.Configuration, "create_transmitter", fmt.Sprintf("duplicate transmitter id %d", id), nil)
	}

	fd, err := r.sockets.OpenEgress(address, port)
	if err != nil {
		return err
	}

	r.transmitters[id] = &Transmitter{ID: id, Address: address, Port: port, FD: fd}
	return nil
}

// CreateTarget validates and registers a target. Does not open any socket;
// targets merely name a destination plus the transmitter that reaches it.
func (r *Registry) CreateTarget(id int32, address uint32, port uint16, transmitterID int32) error {
	if id <= 0 {
		return rerrors.New(rerrors.Configuration, "create_target", fmt.Sprintf("id %d must be > 0", id), nil)
	}
	if address == 0 {
		return rerrors.New(rerrors.Configuration, "create_target", fmt.Sprintf("target %d: address must be non-zero", id), nil)
	}
	if port == 0 {
		return rerrors.New(rerrors.Configuration, "create_target", fmt.Sprintf("target %d: port must be non-zero", id), nil)
	}
	if transmitterID <= 0 {
		return rerrors.New(rerrors.Configuration, "create_target", fmt.Sprintf("target %d: transmitter_id must be > 0", id), nil)
	}
	if _, exists := r.targets[id]; exists {
		return rerrors.New(rerrors.Configuration, "create_target", fmt.Sprintf("duplicate target id %d", id), nil)
	}

	r.targets[id] = &Target{ID: id, Address: address, Port: port, TransmitterID: transmitterID}
	return nil
}

// CreateMap appends a map record. No duplicate detection is performed:
// identical maps produce duplicate forwards by design.
func (r *Registry) CreateMap(listenerID int32, srcAddress uint32, srcPort uint16, targetID int32) {
	r.maps = append(r.maps, Map{
		ListenerID: listenerID,
		SrcAddress: srcAddress,
		SrcPort:    srcPort,
		TargetID:   targetID,
	})
}

// FindTransmitter looks up a transmitter by id.
func (r *Registry) FindTransmitter(id int32) (*Transmitter, bool) {
	t, ok := r.transmitters[id]
	return t, ok
}

// FindTarget looks up a target by id.
func (r *Registry) FindTarget(id int32) (*Target, bool) {
	t, ok := r.targets[id]
	return t, ok
}

// ListenerForFD returns the listener id owning an ingress fd, for the
// Dispatcher's role lookup on a readable file descriptor.
func (r *Registry) ListenerForFD(fd int) (int32, bool) {
	id, ok := r.fdListener[fd]
	return id, ok
}

// Maps returns the map list in insertion order. Callers must not mutate it.
func (r *Registry) Maps() []Map { return r.maps }

// Listeners returns every configured listener, iteration order unspecified.
func (r *Registry) Listeners() map[int32]*Listener { return r.listeners }

// Transmitters returns every configured transmitter, iteration order unspecified.
func (r *Registry) Transmitters() map[int32]*Transmitter { return r.transmitters }

// Targets returns every configured target, iteration order unspecified.
func (r *Registry) Targets() map[int32]*Target { return r.targets }

// IngressFDs returns the file descriptors of every listener socket, the set
// the event loop polls for read-readiness.
func (r *Registry) IngressFDs() []int {
	fds := make([]int, 0, len(r.listeners))
	for _, l := range r.listeners {
		fds = append(fds, l.FD)
	}
	return fds
}
