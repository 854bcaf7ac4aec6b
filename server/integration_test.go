package server_test

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/deng-rui/RUDP/client"
	"github.com/deng-rui/RUDP/config"
	"github.com/deng-rui/RUDP/server"
)

func fastProfile() *config.Profile {
	p := config.Default()
	p.RetransTimeoutMs = 150
	p.CumulativeAckTimeoutMs = 50
	p.NullSegmentTimeoutMs = 60000
	return p
}

// TestDialAcceptEcho drives a real client.Dial against a real server.Bind
// over loopback UDP: handshake, one round trip, then teardown.
func TestDialAcceptEcho(t *testing.T) {
	profile := fastProfile()

	ln, err := server.Bind("127.0.0.1:0", profile, 4)
	if err != nil {
		t.Fatalf("server.Bind: %v", err)
	}
	defer ln.Close()

	serverAddr := fmt.Sprintf("127.0.0.1:%d", ln.GetLocalPort())

	done := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			done <- err
			return
		}
		defer conn.Close()

		buf := make([]byte, 64)
		n, err := conn.GetInputStream().Read(buf)
		if err != nil {
			done <- err
			return
		}
		if !bytes.Equal(buf[:n], []byte("ping")) {
			done <- fmt.Errorf("server got %q, want %q", buf[:n], "ping")
			return
		}
		if _, err := conn.GetOutputStream().Write([]byte("pong")); err != nil {
			done <- err
			return
		}
		done <- nil
	}()

	c, err := client.Dial(serverAddr, profile, 2*time.Second)
	if err != nil {
		t.Fatalf("client.Dial: %v", err)
	}
	defer c.Close()

	if _, err := c.GetOutputStream().Write([]byte("ping")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	buf := make([]byte, 64)
	n, err := c.GetInputStream().Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(buf[:n], []byte("pong")) {
		t.Fatalf("Read() = %q, want %q", buf[:n], "pong")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server goroutine: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server goroutine never finished")
	}
}

func TestAcceptTimeout(t *testing.T) {
	profile := fastProfile()
	ln, err := server.Bind("127.0.0.1:0", profile, 4)
	if err != nil {
		t.Fatalf("server.Bind: %v", err)
	}
	defer ln.Close()

	ln.SetTimeout(50 * time.Millisecond)
	if got := ln.GetTimeout(); got != 50*time.Millisecond {
		t.Errorf("GetTimeout() = %v, want 50ms", got)
	}
	if _, err := ln.Accept(); err == nil {
		t.Fatal("expected a timeout error from Accept with no pending connection")
	}
}
