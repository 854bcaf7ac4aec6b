package rudp

import "net"

// Transport is the outbound datagram sink a Connection writes serialized
// segments to. server.Listener and client.Dial both hand connections a thin
// wrapper over a single shared net.PacketConn, the way the teacher funnels
// every pConn's outgoing packets through one raw socket in lib/service.go.
type Transport interface {
	SendTo(addr net.Addr, b []byte) error
}
