package rudp

import (
	"bytes"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/deng-rui/RUDP/config"
)

// pipeAddr is a trivial net.Addr used to identify the two ends of an
// in-process pipe in these tests, standing in for a real UDP address.
type pipeAddr string

func (a pipeAddr) Network() string { return "pipe" }
func (a pipeAddr) String() string  { return string(a) }

// pipeTransport delivers every Serialize'd segment directly to the peer
// Connection's Deliver, bypassing any real socket - the fastest way to drive
// the engine's state machine deterministically in a test. Until the peer
// engine exists (the moment between a client's first SYN and its server
// engine being constructed from it), sent segments are captured instead of
// dropped, so the handshake's opening packet is never lost.
type pipeTransport struct {
	mu      sync.Mutex
	peer    *Connection
	capture chan *Segment
}

func (p *pipeTransport) setPeer(c *Connection) {
	p.mu.Lock()
	p.peer = c
	p.mu.Unlock()
}

func (p *pipeTransport) SendTo(_ net.Addr, b []byte) error {
	seg, err := Parse(b, 0, len(b))
	if err != nil {
		return err
	}
	p.mu.Lock()
	c := p.peer
	p.mu.Unlock()
	if c != nil {
		c.Deliver(seg)
		return nil
	}
	select {
	case p.capture <- seg:
	default:
	}
	return nil
}

func fastProfile() *config.Profile {
	p := config.Default()
	p.NullSegmentTimeoutMs = 60000
	p.RetransTimeoutMs = 200
	p.CumulativeAckTimeoutMs = 50
	return p
}

func newConnectedPair(t *testing.T) (client, server *Connection) {
	t.Helper()
	profile := fastProfile()

	clientTr := &pipeTransport{capture: make(chan *Segment, 1)}
	serverTr := &pipeTransport{capture: make(chan *Segment, 1)}

	opened := make(chan string, 2)
	listener := recordingListener{opened: opened}

	// Dial sends its opening SYN synchronously before returning; clientTr
	// has no peer yet, so it lands in clientTr.capture instead of being lost.
	clientConn := Dial("client", profile, pipeAddr("client"), pipeAddr("server"), clientTr, []StateListener{listener})
	serverTr.setPeer(clientConn)

	var serverConn *Connection
	select {
	case syn := <-clientTr.capture:
		// Hold the client engine's lock across AcceptSyn (which synchronously
		// sends SYN+ACK into clientConn's input queue) so the client's run
		// loop cannot process that SYN+ACK and reply before clientTr's peer
		// is wired up to route that reply back live.
		clientConn.mu.Lock()
		serverConn = AcceptSyn("server", profile, pipeAddr("server"), pipeAddr("client"), serverTr, syn, []StateListener{listener}, nil)
		clientTr.setPeer(serverConn)
		clientConn.mu.Unlock()
	case <-time.After(time.Second):
		t.Fatal("server never observed client SYN")
	}

	waitFor(t, opened, "client", "server")
	return clientConn, serverConn
}

type recordingListener struct {
	opened chan string
}

func (l recordingListener) OnOpen(c *Connection) {
	if c.isServer {
		l.opened <- "server"
	} else {
		l.opened <- "client"
	}
}
func (l recordingListener) OnClose(c *Connection)            {}
func (l recordingListener) OnFailure(c *Connection, _ error) {}

// waitFor waits until every name in want has reported OnOpen exactly once.
// The two engines run independently, so the order of their notifications
// is not fixed.
func waitFor(t *testing.T, ch chan string, want ...string) {
	t.Helper()
	pending := make(map[string]bool, len(want))
	for _, w := range want {
		pending[w] = true
	}
	for len(pending) > 0 {
		select {
		case got := <-ch:
			if !pending[got] {
				t.Fatalf("unexpected open from %q, still waiting for %v", got, pending)
			}
			delete(pending, got)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %v to open", pending)
		}
	}
}

func TestHandshakeReachesEstablished(t *testing.T) {
	client, server := newConnectedPair(t)
	defer client.Close()
	defer server.Close()

	if client.State() != "ESTAB" {
		t.Errorf("client state = %s, want ESTAB", client.State())
	}
	if server.State() != "ESTAB" {
		t.Errorf("server state = %s, want ESTAB", server.State())
	}
}

func TestDataTransferInOrder(t *testing.T) {
	client, server := newConnectedPair(t)
	defer client.Close()
	defer server.Close()

	msg := []byte("hello reliable udp")
	if _, err := client.GetOutputStream().Write(msg); err != nil {
		t.Fatalf("Write: %v", err)
	}

	buf := make([]byte, len(msg))
	n, err := server.GetInputStream().Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(buf[:n], msg) {
		t.Fatalf("Read() = %q, want %q", buf[:n], msg)
	}
}

func TestOrderlyClosePeerLeavesEstab(t *testing.T) {
	client, server := newConnectedPair(t)
	defer client.Close()
	defer server.Close()

	if err := client.GetOutputStream().Close(); err != nil {
		t.Fatalf("shutdownOutput: %v", err)
	}

	buf := make([]byte, 1)
	for i := 0; i < 100 && server.State() != "CLOSE-WAIT"; i++ {
		time.Sleep(10 * time.Millisecond)
		_, _ = server.GetInputStream().Read(buf)
	}
	if server.State() != "CLOSE-WAIT" && server.State() != "CLOSED" {
		t.Fatalf("server state after peer FIN = %s, want CLOSE-WAIT or CLOSED", server.State())
	}
}
