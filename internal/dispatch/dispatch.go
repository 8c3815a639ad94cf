// Package dispatch implements the match-and-fan-out step performed on every
// readable ingress socket: read one datagram, find every map that matches
// its (listener, source address, source port), and send the payload
// unchanged through each matching target's transmitter.
package dispatch

import (
	"github.com/kestrelnet/repeater/internal/registry"
	"github.com/kestrelnet/repeater/internal/rerrors"
	"github.com/kestrelnet/repeater/internal/socket"
)

// Dispatcher reads one datagram from a ready fd and fans it out to every
// matching target. It holds no state of its own beyond references to the
// Registry and socket Manager it was built with.
type Dispatcher struct {
	registry *registry.Registry
	sockets  *socket.Manager
}

// New constructs a Dispatcher over the given registry and socket manager.
func New(r *registry.Registry, s *socket.Manager) *Dispatcher {
	return &Dispatcher{registry: r, sockets: s}
}

// SendResult records the outcome of one fan-out send, for callers that want
// to log or count per-target failures without aborting the rest of the
// fan-out: a send failure on one target never stops dispatch to the others.
type SendResult struct {
	TargetID      int32
	TransmitterID int32
	Err           error
}

// Handle services one readable fd. If fd does not belong to a listener (an
// egress-only socket became readable), the datagram is read and discarded
// and Handle returns immediately with no sends. Otherwise it receives
// exactly one datagram, matches it against the map list in insertion order,
// and sends the unmodified payload to every matching target.
//
// A receive error is reported via the returned error (RuntimeRecvError) and
// produces no sends. Per-target send failures are reported in the returned
// slice rather than as the function's error, since they never abort the
// rest of the fan-out.
func (d *Dispatcher) Handle(fd int) ([]SendResult, error) {
	listenerID, isListener := d.registry.ListenerForFD(fd)
	if !isListener {
		d.sockets.Discard(fd)
		return nil, nil
	}

	var buf [socket.MaxDatagramSize]byte
	n, srcAddress, srcPort, err := d.sockets.RecvFrom(fd, buf[:])
	if err != nil {
		return nil, err
	}
	payload := buf[:n]

	var results []SendResult
	for _, m := range d.registry.Maps() {
		if !matches(m, listenerID, srcAddress, srcPort) {
			continue
		}

		target, ok := d.registry.FindTarget(m.TargetID)
		if !ok {
			// Unreachable once validate.Run has passed, but a defensive
			// log-and-continue keeps one bad map from wedging the loop.
			results = append(results, SendResult{TargetID: m.TargetID, Err: rerrors.New(
				rerrors.SendRuntime, "dispatch", "target not found", nil)})
			continue
		}
		transmitter, ok := d.registry.FindTransmitter(target.TransmitterID)
		if !ok {
			results = append(results, SendResult{TargetID: target.ID, TransmitterID: target.TransmitterID, Err: rerrors.New(
				rerrors.SendRuntime, "dispatch", "transmitter not found", nil)})
			continue
		}

		sendErr := d.sockets.SendTo(transmitter.FD, payload, target.Address, target.Port)
		results = append(results, SendResult{TargetID: target.ID, TransmitterID: transmitter.ID, Err: sendErr})
	}

	return results, nil
}

// matches reports whether map m fires for a datagram arriving on listenerID
// from (srcAddress, srcPort): listener id must match exactly, and a non-zero
// source address or port on the map narrows the match further.
func matches(m registry.Map, listenerID int32, srcAddress uint32, srcPort uint16) bool {
	if m.ListenerID != listenerID {
		return false
	}
	if m.SrcAddress != 0 && m.SrcAddress != srcAddress {
		return false
	}
	if m.SrcPort != 0 && m.SrcPort != srcPort {
		return false
	}
	return true
}
