package node

import (
	"strconv"
	"strings"
	"time"

	"github.com/Asadullah378/MiniChain/core"
	"github.com/Asadullah378/MiniChain/network"
	"github.com/Asadullah378/MiniChain/wire"
)

// The operator-facing read/submit surface consumed by the HTTP and CLI
// collaborators. None of these block on I/O beyond mempool/chain locks.

// SubmitTransaction builds, admits and gossips a transfer. It returns the
// derived transaction ID, or the admission failure.
func (n *Node) SubmitTransaction(sender, recipient string, amount uint64) (string, error) {
	tx := core.NewTransaction(sender, recipient, amount, unixNow())
	if err := n.pool.Add(tx); err != nil {
		return "", err
	}
	n.metrics.TxsAdmitted.Inc()
	n.reg.Broadcast(wire.NewTxMsg(tx))
	return tx.TxID, nil
}

// Height returns the local committed tip height.
func (n *Node) Height() uint64 { return n.chain.Height() }

// GetBlock returns the committed block at height h.
func (n *Node) GetBlock(h uint64) (*core.Block, error) { return n.chain.GetBlock(h) }

// GetBlockByHash resolves a block hash through the indexer.
func (n *Node) GetBlockByHash(hash string) (*core.Block, error) {
	if n.idx == nil {
		return nil, core.ErrNotFound
	}
	h, err := n.idx.GetHeightByHash(hash)
	if err != nil {
		return nil, err
	}
	return n.chain.GetBlock(h)
}

// GetTransaction returns a committed transaction and its block height.
func (n *Node) GetTransaction(txID string) (*core.Transaction, uint64, error) {
	if n.idx == nil {
		return nil, 0, core.ErrNotFound
	}
	return n.idx.GetTransaction(txID)
}

// MempoolSnapshot returns the pending transactions in insertion order.
func (n *Node) MempoolSnapshot() []*core.Transaction { return n.pool.Snapshot() }

// ClearMempool drops all pending transactions (operator action). The seen
// history survives, so cleared IDs stay rejected.
func (n *Node) ClearMempool() { n.pool.Clear() }

// Peers returns the connection snapshot.
func (n *Node) Peers() []network.PeerInfo { return n.reg.Peers() }

// Leader returns the validator scheduled to propose the next block.
func (n *Node) Leader() string { return n.engine.Leader(n.chain.Height() + 1) }

// IsLeader reports whether this node proposes the next block.
func (n *Node) IsLeader() bool { return n.Leader() == n.selfID }

// Validators returns the fixed validator set of this run.
func (n *Node) Validators() []string {
	out := make([]string, len(n.validators))
	copy(out, n.validators)
	return out
}

func splitHostPort(addr string) (string, int) {
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return addr, 0
	}
	port, err := strconv.Atoi(addr[i+1:])
	if err != nil {
		return addr[:i], 0
	}
	return addr[:i], port
}

func unixNow() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
