package arylic

import (
	"encoding/binary"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const testTimeout = 2 * time.Second

// fakeDevice is a TCP speaker stand-in. It answers device-info requests
// with its DeviceInfo and records every payload it receives.
type fakeDevice struct {
	t    *testing.T
	ln   net.Listener
	info DeviceInfo

	// silent devices never answer the handshake.
	silent atomic.Bool

	accepts  atomic.Int32
	received chan string

	mu    sync.Mutex
	conns []net.Conn
}

func newFakeDevice(t *testing.T, name string) *fakeDevice {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	d := &fakeDevice{
		t:  t,
		ln: ln,
		info: DeviceInfo{
			APSSID:         "ap",
			Type:           "up2stream",
			Name:           name,
			RouterSSID:     "home",
			SignalStrength: 60,
		},
		received: make(chan string, 256),
	}
	go d.acceptLoop()
	t.Cleanup(d.close)
	return d
}

func (d *fakeDevice) identity() Identity {
	addr := d.ln.Addr().(*net.TCPAddr)
	return Identity{Host: "127.0.0.1", Port: addr.Port}
}

func (d *fakeDevice) acceptLoop() {
	for {
		conn, err := d.ln.Accept()
		if err != nil {
			return
		}
		d.mu.Lock()
		d.conns = append(d.conns, conn)
		d.mu.Unlock()
		d.accepts.Add(1)
		go d.serve(conn)
	}
}

// serve splits the inbound stream into frames using the length header.
func (d *fakeDevice) serve(conn net.Conn) {
	var stream []byte
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		stream = append(stream, buf[:n]...)

		for len(stream) >= HeaderSize {
			length := int(binary.LittleEndian.Uint32(stream[4:8]))
			if len(stream) < HeaderSize+length {
				break
			}
			payload := string(stream[HeaderSize : HeaderSize+length])
			stream = stream[HeaderSize+length:]

			select {
			case d.received <- payload:
			default:
			}

			if payload == string(DeviceInfoRequest{}.Payload()) && !d.silent.Load() {
				_, _ = conn.Write(Encode(d.info))
			}
		}
	}
}

// push writes a frame to every open client connection.
func (d *fakeDevice) push(frame []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.conns {
		_, _ = c.Write(frame)
	}
}

// dropClients closes every client connection from the device side.
func (d *fakeDevice) dropClients() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.conns {
		_ = c.Close()
	}
	d.conns = nil
}

func (d *fakeDevice) close() {
	_ = d.ln.Close()
	d.dropClients()
}

// waitPayload returns the next payload the device received.
func (d *fakeDevice) waitPayload(t *testing.T) string {
	t.Helper()
	select {
	case p := <-d.received:
		return p
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for device to receive a frame")
		return ""
	}
}

// waitFor polls cond until it holds or the test timeout passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// closedPort returns an address nothing listens on.
func closedPort(t *testing.T) Identity {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		t.Fatalf("close: %v", err)
	}
	return Identity{Host: "127.0.0.1", Port: port}
}
