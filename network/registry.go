package network

import (
	"fmt"
	"math/rand"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Asadullah378/MiniChain/wire"
)

// Backoff bounds for outbound redials.
const (
	reconnectBase = time.Second
	reconnectMax  = 30 * time.Second
)

// MessageHandler is invoked for every decoded inbound message. The registry
// calls it from per-connection read loops; serialisation across connections
// is the orchestrator's job.
type MessageHandler func(peer *Peer, msg wire.Message)

// PeerHook is invoked when a connection comes up or goes down.
type PeerHook func(peer *Peer)

// PeerInfo is a point-in-time snapshot for the operator surface.
type PeerInfo struct {
	ID       string    `json:"id"`
	Addr     string    `json:"addr"`
	Inbound  bool      `json:"inbound"`
	Height   uint64    `json:"height"`
	LastSeen time.Time `json:"last_seen"`
}

// Registry tracks inbound accepts and outbound dials, maps validator
// identities to live connections, and keeps redialing configured peers with
// exponential backoff until stopped.
type Registry struct {
	log        *logrus.Logger
	selfID     string
	listenAddr string

	handler    MessageHandler
	onPeerUp   PeerHook
	onPeerDown PeerHook

	mu       sync.RWMutex
	inbound  map[string]*Peer // keyed by remote host:port
	outbound map[string]*Peer // keyed by configured identity host:port

	listener net.Listener
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewRegistry creates a registry for selfID listening on listenAddr.
func NewRegistry(log *logrus.Logger, selfID, listenAddr string) *Registry {
	return &Registry{
		log:        log,
		selfID:     selfID,
		listenAddr: listenAddr,
		inbound:    make(map[string]*Peer),
		outbound:   make(map[string]*Peer),
		stopCh:     make(chan struct{}),
	}
}

// OnMessage sets the inbound dispatch callback. Must be called before Start.
func (r *Registry) OnMessage(h MessageHandler) { r.handler = h }

// OnPeerUp sets the connection-established hook.
func (r *Registry) OnPeerUp(h PeerHook) { r.onPeerUp = h }

// OnPeerDown sets the connection-lost hook.
func (r *Registry) OnPeerDown(h PeerHook) { r.onPeerDown = h }

// Start begins accepting inbound connections.
func (r *Registry) Start() error {
	ln, err := net.Listen("tcp", r.listenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", r.listenAddr, err)
	}
	r.listener = ln
	r.wg.Add(1)
	go r.acceptLoop()
	return nil
}

// ConnectPeers starts a maintenance goroutine per configured identity that
// dials, re-dials with backoff, and runs the connection's read loop.
func (r *Registry) ConnectPeers(identities []string) {
	for _, id := range identities {
		r.wg.Add(1)
		go r.maintainPeer(id)
	}
}

// Stop closes the listener and every connection, then waits for workers.
func (r *Registry) Stop() {
	close(r.stopCh)
	if r.listener != nil {
		r.listener.Close()
	}
	r.mu.Lock()
	for _, p := range r.inbound {
		p.Close()
	}
	for _, p := range r.outbound {
		p.Close()
	}
	r.mu.Unlock()
	r.wg.Wait()
}

// Done returns a channel closed once shutdown begins.
func (r *Registry) Done() <-chan struct{} { return r.stopCh }

// Addr returns the bound listener address once Start succeeded, which is the
// configured listen address otherwise.
func (r *Registry) Addr() string {
	if r.listener != nil {
		return r.listener.Addr().String()
	}
	return r.listenAddr
}

// Broadcast fans msg out to every active connection.
func (r *Registry) Broadcast(msg wire.Message) {
	for _, p := range r.activePeers() {
		if err := p.Send(msg); err != nil {
			r.log.WithFields(logrus.Fields{
				"event":  "broadcast_failed",
				"peer":   p.Addr,
				"reason": err.Error(),
			}).Warn("dropping peer from broadcast")
		}
	}
}

// SendTo delivers msg to the peer whose identity matches the full identifier
// or its first label. When no cached connection matches it dials a fresh one
// to the identity's advertised address.
func (r *Registry) SendTo(identity string, msg wire.Message) error {
	if p := r.lookup(identity); p != nil {
		return p.Send(msg)
	}
	peer, err := Connect(r.log, identity, identity)
	if err != nil {
		return fmt.Errorf("no connection to %s: %w", identity, err)
	}
	r.register(identity, peer)
	return peer.Send(msg)
}

// Peers returns a snapshot of all active connections.
func (r *Registry) Peers() []PeerInfo {
	peers := r.activePeers()
	out := make([]PeerInfo, 0, len(peers))
	for _, p := range peers {
		h, seen := p.Status()
		out = append(out, PeerInfo{ID: p.ID, Addr: p.Addr, Inbound: p.Inbound, Height: h, LastSeen: seen})
	}
	return out
}

func (r *Registry) activePeers() []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	peers := make([]*Peer, 0, len(r.inbound)+len(r.outbound))
	for _, p := range r.inbound {
		peers = append(peers, p)
	}
	for _, p := range r.outbound {
		peers = append(peers, p)
	}
	return peers
}

// firstLabel extracts the leftmost DNS label of an identity's host part, so
// short and fully-qualified names resolve to the same peer.
func firstLabel(identity string) string {
	host := identity
	if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	if i := strings.Index(host, "."); i >= 0 {
		host = host[:i]
	}
	return host
}

func (r *Registry) lookup(identity string) *Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.outbound[identity]; ok {
		return p
	}
	label := firstLabel(identity)
	for id, p := range r.outbound {
		if firstLabel(id) == label {
			return p
		}
	}
	for _, p := range r.inbound {
		if p.ID == identity || (p.ID != "" && firstLabel(p.ID) == label) {
			return p
		}
	}
	return nil
}

func (r *Registry) register(identity string, peer *Peer) {
	r.mu.Lock()
	if old, ok := r.outbound[identity]; ok && old != peer {
		old.Close()
	}
	r.outbound[identity] = peer
	r.mu.Unlock()

	peer.StartWriter()
	r.wg.Add(1)
	go r.readLoop(peer, identity)
	if r.onPeerUp != nil {
		r.onPeerUp(peer)
	}
}

func (r *Registry) acceptLoop() {
	defer r.wg.Done()
	for {
		conn, err := r.listener.Accept()
		if err != nil {
			select {
			case <-r.stopCh:
				return
			default:
				r.log.WithFields(logrus.Fields{
					"event":  "accept_failed",
					"reason": err.Error(),
				}).Warn("listener error")
				time.Sleep(100 * time.Millisecond)
				continue
			}
		}
		addr := conn.RemoteAddr().String()
		peer := NewPeer(r.log, "", addr, true, conn)
		r.mu.Lock()
		r.inbound[addr] = peer
		r.mu.Unlock()
		peer.StartWriter()
		r.wg.Add(1)
		go r.readLoop(peer, "")
		if r.onPeerUp != nil {
			r.onPeerUp(peer)
		}
	}
}

// maintainPeer keeps one outbound connection alive: dial, run the read loop
// until it drops, back off and retry. Backoff starts at one second, doubles
// to a 30 s cap, and carries ±20% jitter; a successful session resets it.
func (r *Registry) maintainPeer(identity string) {
	defer r.wg.Done()
	backoff := reconnectBase
	for {
		select {
		case <-r.stopCh:
			return
		default:
		}
		peer, err := Connect(r.log, identity, identity)
		if err != nil {
			r.log.WithFields(logrus.Fields{
				"event":  "dial_failed",
				"peer":   identity,
				"reason": err.Error(),
			}).Warn("retrying with backoff")
			select {
			case <-r.stopCh:
				return
			case <-time.After(jitter(backoff)):
			}
			backoff *= 2
			if backoff > reconnectMax {
				backoff = reconnectMax
			}
			continue
		}
		backoff = reconnectBase

		r.mu.Lock()
		r.outbound[identity] = peer
		r.mu.Unlock()
		peer.StartWriter()
		if r.onPeerUp != nil {
			r.onPeerUp(peer)
		}

		// Run the read loop inline; it returns when the connection drops.
		r.runReadLoop(peer, identity)

		select {
		case <-r.stopCh:
			return
		case <-time.After(jitter(backoff)):
		}
	}
}

func (r *Registry) readLoop(peer *Peer, identity string) {
	defer r.wg.Done()
	r.runReadLoop(peer, identity)
}

func (r *Registry) runReadLoop(peer *Peer, identity string) {
	defer func() {
		peer.Close()
		r.mu.Lock()
		if peer.Inbound {
			delete(r.inbound, peer.Addr)
		} else if identity != "" && r.outbound[identity] == peer {
			delete(r.outbound, identity)
		}
		r.mu.Unlock()
		if r.onPeerDown != nil {
			r.onPeerDown(peer)
		}
	}()
	for {
		msg, err := peer.Receive()
		if err != nil {
			select {
			case <-r.stopCh:
			default:
				r.log.WithFields(logrus.Fields{
					"event":  "peer_read_failed",
					"peer":   peer.Addr,
					"reason": err.Error(),
				}).Info("connection closed")
			}
			return
		}
		if r.handler != nil {
			r.handler(peer, msg)
		}
	}
}

func jitter(d time.Duration) time.Duration {
	// ±20%
	f := 0.8 + 0.4*rand.Float64()
	return time.Duration(float64(d) * f)
}
