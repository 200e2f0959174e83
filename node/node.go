// Package node glues transport, mempool, chain store and consensus into one
// running validator. The Node owns the single orchestrator lock: inbound
// messages are dispatched one at a time, so every consensus state transition
// is serialized no matter which connection delivered the trigger.
package node

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/Asadullah378/MiniChain/config"
	"github.com/Asadullah378/MiniChain/consensus"
	"github.com/Asadullah378/MiniChain/core"
	"github.com/Asadullah378/MiniChain/events"
	"github.com/Asadullah378/MiniChain/indexer"
	"github.com/Asadullah378/MiniChain/network"
	"github.com/Asadullah378/MiniChain/storage"
	"github.com/Asadullah378/MiniChain/wire"
)

// Version is advertised in HELLO frames.
const Version = "minichain/1"

// stopGrace bounds how long Stop waits for workers before abandoning them.
const stopGrace = 5 * time.Second

// Node is the orchestrator: it owns the mempool and chain store, drives the
// consensus engine on a tick, and routes every inbound message.
type Node struct {
	log        *logrus.Logger
	cfg        *config.Config
	selfID     string
	validators []string

	chain   *core.ChainStore
	pool    *core.Mempool
	engine  *consensus.Engine
	reg     *network.Registry
	syncer  *network.Syncer
	emitter *events.Emitter
	idx     *indexer.Indexer
	metrics *Metrics

	mu       sync.Mutex // orchestrator lock: serializes dispatch and commits
	failed   bool
	fatalCh  chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds a node from cfg. The chain is loaded (or initialised to genesis)
// before New returns; a genesis mismatch aborts startup. db backs the
// committed-data indexer and may be nil to disable it. promReg may be nil.
func New(log *logrus.Logger, cfg *config.Config, db storage.DB, promReg prometheus.Registerer) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	validators := cfg.Validators()
	selfID := config.CanonicalID(cfg.NodeID)

	chain := core.NewChainStore(cfg.DataDir, validators)
	if err := chain.LoadOrInit(); err != nil {
		return nil, fmt.Errorf("load chain: %w", err)
	}

	pool := core.NewMempool()
	engine := consensus.New(log, chain, pool, validators, selfID, consensus.Params{
		BlockInterval:   cfg.BlockInterval(),
		ProposalTimeout: cfg.ProposalTimeout(),
		QuorumSize:      cfg.Quorum(),
		MaxTxs:          cfg.MaxTxs(),
	})
	emitter := events.NewEmitter(log)

	n := &Node{
		log:        log,
		cfg:        cfg,
		selfID:     selfID,
		validators: validators,
		chain:      chain,
		pool:       pool,
		engine:     engine,
		emitter:    emitter,
		metrics:    newMetrics(promReg),
		fatalCh:    make(chan struct{}),
		stopCh:     make(chan struct{}),
	}
	if db != nil {
		n.idx = indexer.New(log, db, emitter)
	}
	n.reg = network.NewRegistry(log, selfID, cfg.ListenAddr)
	n.reg.OnMessage(n.dispatch)
	n.reg.OnPeerUp(n.onPeerUp)
	n.reg.OnPeerDown(n.onPeerDown)
	n.syncer = network.NewSyncer(log, chain, n.applySyncedBlock)
	n.metrics.Height.Set(float64(chain.Height()))
	return n, nil
}

// Start opens the listener, dials all configured peers and launches the
// consensus tick and monitor loops.
func (n *Node) Start() error {
	if err := n.reg.Start(); err != nil {
		return err
	}
	n.reg.ConnectPeers(n.cfg.Peers)

	n.wg.Add(2)
	go n.tickLoop()
	go n.monitorLoop()

	n.log.WithFields(logrus.Fields{
		"event":  "node_started",
		"height": n.chain.Height(),
		"peer":   n.selfID,
	}).Info("validator online")
	return nil
}

// Stop shuts the node down cooperatively: listener closed, stop channel
// signalled, then up to five seconds for workers before abandoning them.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		close(n.stopCh)
		done := make(chan struct{})
		go func() {
			n.reg.Stop()
			n.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(stopGrace):
			n.log.WithFields(logrus.Fields{
				"event": "stop_timeout",
			}).Warn("abandoning connections after grace period")
		}
	})
}

// Fatal returns a channel closed when the node hits an unrecoverable error.
// Read accessors stay alive for diagnostics; the launcher decides when to
// exit the process.
func (n *Node) Fatal() <-chan struct{} { return n.fatalCh }

// Events returns the node's event stream for collaborator subscriptions.
func (n *Node) Events() *events.Emitter { return n.emitter }

// ---- consensus drive ----

// tickLoop polls ShouldPropose at 1 Hz and proposes when scheduled.
func (n *Node) tickLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-n.stopCh:
			return
		case now := <-ticker.C:
			n.mu.Lock()
			if n.failed {
				n.mu.Unlock()
				return
			}
			h := n.engine.CurrentHeight() + 1
			if n.engine.ShouldPropose(h, now) {
				n.propose(h, now)
			}
			n.mu.Unlock()
		}
	}
}

// monitorLoop emits heartbeats and checks the view-change hook.
func (n *Node) monitorLoop() {
	defer n.wg.Done()
	heartbeat := n.cfg.HeartbeatInterval()
	var heartbeatC <-chan time.Time
	if heartbeat > 0 {
		t := time.NewTicker(heartbeat)
		defer t.Stop()
		heartbeatC = t.C
	}
	timeout := time.NewTicker(time.Second)
	defer timeout.Stop()
	for {
		select {
		case <-n.stopCh:
			return
		case <-heartbeatC:
			tip := n.chain.Tip()
			n.reg.Broadcast(&wire.HeartbeatMsg{
				Type:          wire.TypeHeartbeat,
				NodeID:        n.selfID,
				Height:        tip.Height,
				LastBlockHash: tip.BlockHash,
			})
		case now := <-timeout.C:
			if n.engine.ShouldViewChange(now) {
				n.broadcastViewChange()
			}
		}
	}
}

func (n *Node) propose(h uint64, now time.Time) {
	block := n.engine.CreateProposal(h, now)
	n.metrics.ProposalsMade.Inc()
	n.log.WithFields(logrus.Fields{
		"event":      "propose",
		"height":     block.Height,
		"block_hash": block.BlockHash,
	}).Info("proposal broadcast")
	n.reg.Broadcast(wire.NewProposeMsg(block))
	// The local vote is routed exactly like a remote one.
	n.handleAck(wire.NewAckMsg(block.Height, block.BlockHash, n.selfID))
}

func (n *Node) broadcastViewChange() {
	height := n.engine.CurrentHeight() + 1
	n.log.WithFields(logrus.Fields{
		"event":  "view_change",
		"height": height,
	}).Warn("leader silent past proposal timeout")
	n.reg.Broadcast(&wire.ViewChangeMsg{
		Type:   wire.TypeViewChange,
		Height: height,
		NodeID: n.selfID,
		Reason: "proposal timeout",
	})
}

// ---- inbound routing ----

// dispatch serializes every inbound message under the orchestrator lock.
func (n *Node) dispatch(peer *network.Peer, msg wire.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failed {
		return
	}
	switch m := msg.(type) {
	case *wire.TxMsg:
		n.handleTx(&m.Transaction)
	case *wire.ProposeMsg:
		n.handlePropose(peer, &m.Block)
	case *wire.AckMsg:
		n.handleAck(m)
	case *wire.CommitMsg:
		n.handleCommit(peer, m)
	case *wire.HelloMsg:
		n.handleHello(peer, m)
	case *wire.HeartbeatMsg:
		n.handleHeartbeat(peer, m)
	case *wire.GetBlocksMsg:
		n.syncer.HandleGetBlocks(peer, m)
	case *wire.GetHeadersMsg:
		n.syncer.HandleGetHeaders(peer, m)
	case *wire.HeadersMsg:
		n.syncer.HandleHeaders(peer, m)
	case *wire.BlockMsg:
		n.syncer.HandleBlock(peer, m)
	case *wire.ViewChangeMsg:
		// Handler behavior past logging is an open protocol item.
		n.log.WithFields(logrus.Fields{
			"event":  "view_change_received",
			"height": m.Height,
			"peer":   m.NodeID,
			"reason": m.Reason,
		}).Warn("view change announced")
	}
}

// handleTx admits a gossiped transaction and re-gossips first sightings.
func (n *Node) handleTx(tx *core.Transaction) {
	err := n.pool.Add(tx)
	if errors.Is(err, core.ErrSeen) {
		return // known: no re-gossip, no log noise
	}
	if err != nil {
		n.metrics.TxsRejected.Inc()
		n.log.WithFields(logrus.Fields{
			"event":  "tx_rejected",
			"tx_id":  tx.TxID,
			"reason": err.Error(),
			"result": "validation",
		}).Warn("transaction dropped")
		return
	}
	n.metrics.TxsAdmitted.Inc()
	n.emitter.Emit(events.Event{
		Type: events.EventTxAdmitted,
		Data: map[string]any{"tx_id": tx.TxID},
	})
	n.reg.Broadcast(wire.NewTxMsg(tx))
}

func (n *Node) handlePropose(peer *network.Peer, block *core.Block) {
	from := peer.ID
	if err := n.engine.OnProposal(block, from); err != nil {
		if errors.Is(err, consensus.ErrDuplicateProposal) {
			return
		}
		n.metrics.ProposalsBad.Inc()
		n.log.WithFields(logrus.Fields{
			"event":      "proposal_rejected",
			"height":     block.Height,
			"peer":       from,
			"block_hash": block.BlockHash,
			"reason":     err.Error(),
			"result":     "validation",
		}).Warn("no ack sent")
		return
	}
	ack := wire.NewAckMsg(block.Height, block.BlockHash, n.selfID)
	if err := n.reg.SendTo(block.ProposerID, ack); err != nil {
		n.log.WithFields(logrus.Fields{
			"event":  "ack_send_failed",
			"height": block.Height,
			"peer":   block.ProposerID,
			"reason": err.Error(),
		}).Warn("vote not delivered")
	}
}

func (n *Node) handleAck(m *wire.AckMsg) {
	decision := n.engine.OnAck(m.Height, m.BlockHash, m.VoterID)
	if decision == nil {
		return
	}
	// Quorum: persist locally, advance, then announce.
	if !n.commitBlock(decision) {
		return
	}
	n.reg.Broadcast(wire.NewCommitMsg(decision, n.selfID))
}

func (n *Node) handleCommit(peer *network.Peer, m *wire.CommitMsg) {
	if m.Height <= n.chain.Height() {
		return // re-delivered commit for an applied height
	}
	block, err := n.engine.OnCommit(m.Height, m.BlockHash)
	if err != nil {
		n.needSync(peer, err)
		return
	}
	n.commitBlock(block)
}

func (n *Node) handleHello(peer *network.Peer, m *wire.HelloMsg) {
	peer.ID = config.CanonicalID(m.NodeID)
	peer.Touch()
	n.log.WithFields(logrus.Fields{
		"event": "hello",
		"peer":  peer.ID,
	}).Debug("peer identified")
}

func (n *Node) handleHeartbeat(peer *network.Peer, m *wire.HeartbeatMsg) {
	if peer.ID == "" {
		peer.ID = config.CanonicalID(m.NodeID)
	}
	peer.SetStatus(m.Height)
	if m.Height > n.chain.Height() {
		n.needSync(peer, fmt.Errorf("peer at height %d, local %d", m.Height, n.chain.Height()))
	}
}

// needSync flags a detected gap and asks the revealing peer for blocks. The
// main loop never stalls on sync; blocks arrive as ordinary BLOCK frames.
func (n *Node) needSync(peer *network.Peer, cause error) {
	n.metrics.NeedSync.Inc()
	n.log.WithFields(logrus.Fields{
		"event":  "need_sync",
		"height": n.chain.Height(),
		"peer":   peer.Addr,
		"reason": cause.Error(),
	}).Info("requesting catch-up")
	n.emitter.Emit(events.Event{
		Type:   events.EventNeedSync,
		Height: n.chain.Height(),
		Data:   map[string]any{"peer": peer.Addr},
	})
	if err := n.syncer.RequestBlocks(peer); err != nil {
		n.log.WithFields(logrus.Fields{
			"event":  "sync_request_failed",
			"peer":   peer.Addr,
			"reason": err.Error(),
		}).Warn("catch-up request not sent")
	}
}

// ---- commit application ----

// commitBlock persists block and advances all owned state. Returns false on
// the fatal path. Caller holds the orchestrator lock.
func (n *Node) commitBlock(block *core.Block) bool {
	if err := n.chain.AddBlock(block); err != nil {
		// The chain refused a block that passed quorum or matched a cached
		// proposal: nothing was persisted, and advancing is impossible.
		n.fail(block, err)
		return false
	}
	n.finishCommit(block)
	return true
}

// applySyncedBlock is the Syncer's applier: same commit path, minus any
// consensus voting state (which a lagging node does not hold).
func (n *Node) applySyncedBlock(block *core.Block) error {
	if err := n.chain.AddBlock(block); err != nil {
		return err
	}
	n.finishCommit(block)
	return nil
}

func (n *Node) finishCommit(block *core.Block) {
	n.engine.OnBlockCommitted(block, time.Now())
	n.pool.RemoveMany(block.TxIDs())
	n.metrics.Height.Set(float64(block.Height))
	n.metrics.BlocksCommitted.Inc()
	n.log.WithFields(logrus.Fields{
		"event":      "block_committed",
		"height":     block.Height,
		"block_hash": block.BlockHash,
		"peer":       block.ProposerID,
	}).Info("chain advanced")
	n.emitter.Emit(events.Event{
		Type:   events.EventBlockCommit,
		Height: block.Height,
		Data:   map[string]any{"block": block, "txs": len(block.TxList)},
	})
}

// fail stops consensus permanently but keeps read accessors alive.
func (n *Node) fail(block *core.Block, err error) {
	n.log.WithFields(logrus.Fields{
		"event":      "fatal",
		"height":     block.Height,
		"block_hash": block.BlockHash,
		"reason":     err.Error(),
		"result":     "fatal",
	}).Error("persistence failed; consensus halted")
	if !n.failed {
		n.failed = true
		close(n.fatalCh)
	}
}

// ---- peer hooks ----

func (n *Node) onPeerUp(peer *network.Peer) {
	n.metrics.ConnectedPeers.Inc()
	if !peer.Inbound {
		_, port := splitHostPort(n.cfg.ListenAddr)
		if err := peer.Send(&wire.HelloMsg{
			Type:          wire.TypeHello,
			NodeID:        n.selfID,
			ListeningPort: port,
			Version:       Version,
		}); err != nil {
			n.log.WithFields(logrus.Fields{
				"event":  "hello_send_failed",
				"peer":   peer.Addr,
				"reason": err.Error(),
			}).Warn("introduction not sent")
		}
	}
	n.emitter.Emit(events.Event{
		Type: events.EventPeerUp,
		Data: map[string]any{"peer": peer.Addr},
	})
}

func (n *Node) onPeerDown(peer *network.Peer) {
	n.metrics.ConnectedPeers.Dec()
	n.emitter.Emit(events.Event{
		Type: events.EventPeerDown,
		Data: map[string]any{"peer": peer.Addr},
	})
}
