package loop

import (
	"net"
	"testing"
	"time"

	"github.com/kestrelnet/repeater/internal/diag"
	"github.com/kestrelnet/repeater/internal/dispatch"
	"github.com/kestrelnet/repeater/internal/poller"
	"github.com/kestrelnet/repeater/internal/registry"
	"github.com/kestrelnet/repeater/internal/socket"
)

// TestRun_ForwardsEndToEnd exercises the full listener -> dispatch ->
// transmitter path through the real event loop, the same wiring
// cmd/repeaterd and internal/daemon use in production.
func TestRun_ForwardsEndToEnd(t *testing.T) {
	sockets := socket.NewManager()
	defer sockets.Close()
	reg := registry.New(sockets)

	if err := reg.CreateListener(1, 0, 19601); err != nil {
		t.Fatalf("CreateListener: %v", err)
	}
	if err := reg.CreateTransmitter(1, 0, 0); err != nil {
		t.Fatalf("CreateTransmitter: %v", err)
	}
	if err := reg.CreateTarget(1, 0x7f000001, 19700, 1); err != nil {
		t.Fatalf("CreateTarget: %v", err)
	}
	reg.CreateMap(1, 0, 0, 1)

	recvConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 19700})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer recvConn.Close()

	l := New(reg, poller.New(), dispatch.New(reg, sockets), diag.Discard())
	go func() { _ = l.Run() }()

	conn, err := net.Dial("udp4", "127.0.0.1:19601")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("1234ABCDEF")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	buf := make([]byte, 64)
	if err := recvConn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	n, _, err := recvConn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP: %v", err)
	}
	if string(buf[:n]) != "1234ABCDEF" {
		t.Fatalf("payload = %q, want %q", buf[:n], "1234ABCDEF")
	}
}
