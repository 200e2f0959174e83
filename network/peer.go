// Package network handles peer-to-peer communication over TCP using
// length-prefixed canonical-CBOR frames.
package network

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Asadullah378/MiniChain/wire"
)

// DialTimeout bounds outbound connection attempts.
const DialTimeout = 5 * time.Second

// sendQueueSize is the per-peer outbound queue depth. On overflow,
// non-consensus messages drop oldest-first; consensus messages instead
// exert backpressure on the caller.
const sendQueueSize = 256

type outFrame struct {
	kind wire.Type
	data []byte
}

// Peer is one connected remote node. The registry's read loop owns the
// connection's read side; the peer's writer goroutine owns the write side.
type Peer struct {
	ID      string // validator identity (host:port) once known
	Addr    string // remote network address
	Inbound bool

	log  *logrus.Logger
	conn net.Conn
	out  chan outFrame
	done chan struct{}

	mu       sync.Mutex
	closed   bool
	height   uint64
	lastSeen time.Time
}

// NewPeer wraps an established connection. Callers must invoke StartWriter
// before sending.
func NewPeer(log *logrus.Logger, id, addr string, inbound bool, conn net.Conn) *Peer {
	return &Peer{
		ID:      id,
		Addr:    addr,
		Inbound: inbound,
		log:     log,
		conn:    conn,
		out:     make(chan outFrame, sendQueueSize),
		done:    make(chan struct{}),
	}
}

// Connect dials addr with the standard timeout and returns a connected peer.
func Connect(log *logrus.Logger, id, addr string) (*Peer, error) {
	conn, err := net.DialTimeout("tcp", addr, DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	return NewPeer(log, id, addr, false, conn), nil
}

// StartWriter launches the goroutine draining the outbound queue.
func (p *Peer) StartWriter() {
	go p.writeLoop()
}

// Send hands m to the peer's outbound queue without blocking the caller,
// except for consensus messages on a full queue, where blocking is the
// backpressure signal: PROPOSE, ACK and COMMIT are never dropped.
func (p *Peer) Send(m wire.Message) error {
	select {
	case <-p.done:
		return fmt.Errorf("peer %s closed", p.Addr)
	default:
	}
	data, err := wire.Encode(m)
	if err != nil {
		return fmt.Errorf("encode %s: %w", m.Kind(), err)
	}
	frame := outFrame{kind: m.Kind(), data: data}

	if frame.kind.Consensus() {
		select {
		case p.out <- frame:
			return nil
		case <-p.done:
			return fmt.Errorf("peer %s closed", p.Addr)
		}
	}

	select {
	case p.out <- frame:
		return nil
	case <-p.done:
		return fmt.Errorf("peer %s closed", p.Addr)
	default:
	}
	// Queue full: evict the oldest queued non-consensus frame to make room.
	// If the head is consensus traffic the new message is dropped instead.
	select {
	case old := <-p.out:
		if old.kind.Consensus() {
			select {
			case p.out <- old:
			case <-p.done:
				return fmt.Errorf("peer %s closed", p.Addr)
			}
			p.logDrop(frame.kind)
			return nil
		}
		p.logDrop(old.kind)
	default:
	}
	select {
	case p.out <- frame:
		return nil
	case <-p.done:
		return fmt.Errorf("peer %s closed", p.Addr)
	default:
		p.logDrop(frame.kind)
		return nil
	}
}

func (p *Peer) logDrop(kind wire.Type) {
	p.log.WithFields(logrus.Fields{
		"event": "send_queue_drop",
		"peer":  p.Addr,
		"kind":  string(kind),
	}).Warn("outbound queue overflow")
}

func (p *Peer) writeLoop() {
	for {
		select {
		case <-p.done:
			return
		case frame := <-p.out:
			if err := wire.WriteFrame(p.conn, frame.data); err != nil {
				p.log.WithFields(logrus.Fields{
					"event":  "peer_write_failed",
					"peer":   p.Addr,
					"reason": err.Error(),
				}).Warn("closing connection")
				p.Close()
				return
			}
		}
	}
}

// Receive reads the next frame from the connection and decodes it. The
// connection carries no read deadline; peers are permanent and liveness is
// tracked by application-level heartbeats.
func (p *Peer) Receive() (wire.Message, error) {
	return wire.ReadMessage(p.conn)
}

// SetStatus records the peer's advertised height and refreshes liveness.
func (p *Peer) SetStatus(height uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.height = height
	p.lastSeen = time.Now()
}

// Touch refreshes liveness without a height update.
func (p *Peer) Touch() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastSeen = time.Now()
}

// Status returns the last advertised height and liveness timestamp.
func (p *Peer) Status() (uint64, time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.height, p.lastSeen
}

// Close terminates the connection and wakes the writer.
func (p *Peer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.done)
		p.conn.Close()
	}
}

// Closed reports whether the peer has been shut down.
func (p *Peer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
