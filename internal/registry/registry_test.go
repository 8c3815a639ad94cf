package registry

import (
	"errors"
	"testing"

	"github.com/kestrelnet/repeater/internal/rerrors"
	"github.com/kestrelnet/repeater/internal/socket"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return New(socket.NewManager())
}

func TestCreateListener_RejectsNonPositiveID(t *testing.T) {
	r := newTestRegistry(t)
	err := r.CreateListener(0, 0, 8001)
	assertConfigError(t, err)
}

func TestCreateListener_RejectsZeroPort(t *testing.T) {
	r := newTestRegistry(t)
	err := r.CreateListener(1, 0, 0)
	assertConfigError(t, err)
}

func TestCreateListener_RejectsDuplicateID(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.CreateListener(1, 0, 18001); err != nil {
		t.Fatalf("first CreateListener: %v", err)
	}
	err := r.CreateListener(1, 0, 18002)
	assertConfigError(t, err)
}

func TestCreateListener_RegistersFDOwnership(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.CreateListener(7, 0, 18003); err != nil {
		t.Fatalf("CreateListener: %v", err)
	}
	listener := r.Listeners()[7]
	if listener == nil {
		t.Fatal("listener 7 not found")
	}
	id, ok := r.ListenerForFD(listener.FD)
	if !ok || id != 7 {
		t.Fatalf("ListenerForFD(%d) = (%d, %v), want (7, true)", listener.FD, id, ok)
	}
}

func TestCreateTransmitter_AllowsUnboundEphemeral(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.CreateTransmitter(1, 0, 0); err != nil {
		t.Fatalf("CreateTransmitter(0, 0): %v", err)
	}
	tx, ok := r.FindTransmitter(1)
	if !ok {
		t.Fatal("transmitter 1 not found")
	}
	if tx.Address != 0 || tx.Port != 0 {
		t.Fatalf("transmitter = %+v, want zero address and port", tx)
	}
}

func TestCreateTarget_RejectsZeroAddressOrPort(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.CreateTarget(1, 0, 9000, 1); err == nil {
		t.Fatal("expected error for zero address")
	}
	if err := r.CreateTarget(2, 0x7f000001, 0, 1); err == nil {
		t.Fatal("expected error for zero port")
	}
}

func TestCreateTarget_RejectsNonPositiveTransmitterID(t *testing.T) {
	r := newTestRegistry(t)
	err := r.CreateTarget(1, 0x7f000001, 9000, 0)
	assertConfigError(t, err)
}

func TestCreateMap_PreservesInsertionOrderAndAllowsDuplicates(t *testing.T) {
	r := newTestRegistry(t)
	r.CreateMap(1, 0, 0, 1)
	r.CreateMap(1, 0, 0, 1)
	r.CreateMap(1, 0, 4000, 2)

	maps := r.Maps()
	if len(maps) != 3 {
		t.Fatalf("len(Maps()) = %d, want 3", len(maps))
	}
	if maps[0].TargetID != 1 || maps[1].TargetID != 1 || maps[2].TargetID != 2 {
		t.Fatalf("unexpected map order: %+v", maps)
	}
}

func assertConfigError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
	var rerr *rerrors.Error
	if !errors.As(err, &rerr) {
		t.Fatalf("error %v is not a *rerrors.Error", err)
	}
	if rerr.Kind != rerrors.Configuration {
		t.Fatalf("error kind = %v, want Configuration", rerr.Kind)
	}
}
