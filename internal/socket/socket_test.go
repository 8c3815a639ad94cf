package socket

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/kestrelnet/repeater/internal/rerrors"
)

func TestOpenIngress_BindsRequestedPort(t *testing.T) {
	m := NewManager()
	defer m.Close()

	fd, err := m.OpenIngress(0, 19401)
	if err != nil {
		t.Fatalf("OpenIngress: %v", err)
	}

	conn, err := net.Dial("udp4", "127.0.0.1:19401")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("hi")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// The socket is non-blocking, so give the datagram a moment to arrive
	// before the unbuffered recv below.
	time.Sleep(50 * time.Millisecond)

	var buf [64]byte
	n, addr, port, err := m.RecvFrom(fd, buf[:])
	if err != nil {
		t.Fatalf("RecvFrom: %v", err)
	}
	if string(buf[:n]) != "hi" {
		t.Fatalf("payload = %q, want %q", buf[:n], "hi")
	}
	if addr != 0x7f000001 {
		t.Fatalf("source address = %#x, want 127.0.0.1", addr)
	}
	if port == 0 {
		t.Fatal("source port = 0, want the ephemeral client port")
	}
}

func TestOpenEgress_AllowsUnbound(t *testing.T) {
	m := NewManager()
	defer m.Close()

	fd, err := m.OpenEgress(0, 0)
	if err != nil {
		t.Fatalf("OpenEgress: %v", err)
	}

	recvConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 19402})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer recvConn.Close()

	if err := m.SendTo(fd, []byte("egress"), 0x7f000001, 19402); err != nil {
		t.Fatalf("SendTo: %v", err)
	}

	buf := make([]byte, 64)
	if err := recvConn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	n, _, err := recvConn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP: %v", err)
	}
	if string(buf[:n]) != "egress" {
		t.Fatalf("payload = %q, want %q", buf[:n], "egress")
	}
}

func TestOpenIngress_DuplicateBindFails(t *testing.T) {
	m := NewManager()
	defer m.Close()

	if _, err := m.OpenIngress(0x7f000001, 19403); err != nil {
		t.Fatalf("first OpenIngress: %v", err)
	}
	_, err := m.open(0x7f000001, 19403)
	if err == nil {
		t.Fatal("expected a bind error for a duplicate explicit bind")
	}
	var rerr *rerrors.Error
	if !errors.As(err, &rerr) || rerr.Kind != rerrors.Socket {
		t.Fatalf("error = %v, want a Socket-kind rerrors.Error", err)
	}
}
