package node

import (
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/Asadullah378/MiniChain/config"
	"github.com/Asadullah378/MiniChain/core"
	"github.com/Asadullah378/MiniChain/internal/testutil"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func soloConfig(t *testing.T, blockIntervalMs int64) *config.Config {
	t.Helper()
	port := freePort(t)
	return &config.Config{
		NodeID:          fmt.Sprintf("127.0.0.1:%d", port),
		ListenAddr:      fmt.Sprintf("127.0.0.1:%d", port),
		DataDir:         t.TempDir(),
		BlockIntervalMs: blockIntervalMs,
		HeartbeatMs:     -1,
	}
}

func startNode(t *testing.T, cfg *config.Config) *Node {
	t.Helper()
	n, err := New(quietLogger(), cfg, testutil.NewMemDB(), nil)
	require.NoError(t, err)
	require.NoError(t, n.Start())
	t.Cleanup(n.Stop)
	return n
}

// Submitting the same transfer twice admits it once; the pool holds one entry.
func TestDuplicateSubmission(t *testing.T) {
	// A huge block interval keeps the solo validator from consuming the pool
	// mid-assertion.
	n := startNode(t, soloConfig(t, int64(time.Hour/time.Millisecond)))

	txID, err := n.SubmitTransaction("alice", "bob", 10)
	require.NoError(t, err)
	require.NotEmpty(t, txID)

	// A fresh submission gets a fresh timestamp, so replay the exact payload.
	snap := n.MempoolSnapshot()
	require.Len(t, snap, 1)
	require.ErrorIs(t, n.pool.Add(snap[0]), core.ErrSeen)
	require.Len(t, n.MempoolSnapshot(), 1)
}

// A solo validator is its own quorum: it proposes, self-acks, commits, and
// prunes the mempool.
func TestSoloValidatorCommits(t *testing.T) {
	n := startNode(t, soloConfig(t, 1))
	require.True(t, n.IsLeader())

	txID, err := n.SubmitTransaction("alice", "bob", 10)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return n.Height() >= 1 && len(n.MempoolSnapshot()) == 0
	}, 15*time.Second, 50*time.Millisecond, "solo chain never advanced")

	// The committed chain contains the transfer exactly once (and the
	// indexer can resolve it).
	gotTx, height, err := n.GetTransaction(txID)
	require.NoError(t, err)
	require.Equal(t, txID, gotTx.TxID)

	block, err := n.GetBlock(height)
	require.NoError(t, err)
	require.Contains(t, block.TxIDs(), txID)

	byHash, err := n.GetBlockByHash(block.BlockHash)
	require.NoError(t, err)
	require.Equal(t, block.BlockHash, byHash.BlockHash)
}

// Three-validator happy path: a transfer submitted at one node is gossiped,
// proposed by the scheduled leader, acked, committed, and lands on all three
// chains while every mempool drops it.
func TestThreeValidatorHappyPath(t *testing.T) {
	ports := []int{freePort(t), freePort(t), freePort(t)}
	ids := make([]string, 3)
	for i, p := range ports {
		ids[i] = fmt.Sprintf("127.0.0.1:%d", p)
	}

	nodes := make([]*Node, 3)
	for i := range nodes {
		var peers []string
		for j, id := range ids {
			if j != i {
				peers = append(peers, id)
			}
		}
		cfg := &config.Config{
			NodeID:          ids[i],
			ListenAddr:      ids[i],
			DataDir:         t.TempDir(),
			Peers:           peers,
			QuorumSize:      2,
			BlockIntervalMs: 1,
			HeartbeatMs:     200,
		}
		nodes[i] = startNode(t, cfg)
	}

	// Genesis is identical everywhere before anything moves.
	g0 := nodes[0].chain.Tip().BlockHash
	for _, n := range nodes {
		require.Equal(t, g0, n.chain.Tip().BlockHash)
	}

	// Wait for the mesh before gossiping.
	require.Eventually(t, func() bool {
		for _, n := range nodes {
			if len(n.Peers()) < 2 {
				return false
			}
		}
		return true
	}, 15*time.Second, 50*time.Millisecond, "mesh never formed")

	txID, err := nodes[0].SubmitTransaction("alice", "bob", 10)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for _, n := range nodes {
			if n.Height() < 1 {
				return false
			}
		}
		return true
	}, 30*time.Second, 100*time.Millisecond, "chains never advanced")

	// The transfer was committed exactly once on every chain and the pools
	// dropped it.
	for _, n := range nodes {
		require.Eventually(t, func() bool {
			return countCommitted(t, n, txID) == 1 && !hasPending(n, txID)
		}, 30*time.Second, 100*time.Millisecond, "transfer not settled everywhere")
	}

	// Committed prefixes agree and every block carries its scheduled
	// proposer.
	minHeight := nodes[0].Height()
	for _, n := range nodes[1:] {
		if h := n.Height(); h < minHeight {
			minHeight = h
		}
	}
	validators := nodes[0].Validators()
	for h := uint64(1); h <= minHeight; h++ {
		want, err := nodes[0].GetBlock(h)
		require.NoError(t, err)
		require.Equal(t, validators[h%uint64(len(validators))], want.ProposerID)
		for _, n := range nodes[1:] {
			got, err := n.GetBlock(h)
			require.NoError(t, err)
			require.Equal(t, want.BlockHash, got.BlockHash)
		}
	}
}

// A node restarted over an existing data dir resumes from its persisted tip.
func TestRestartResumesChain(t *testing.T) {
	cfg := soloConfig(t, 1)
	n := startNode(t, cfg)
	_, err := n.SubmitTransaction("alice", "bob", 10)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return n.Height() >= 1 }, 15*time.Second, 50*time.Millisecond)
	tip := n.chain.Tip().BlockHash
	height := n.Height()
	n.Stop()

	restarted, err := New(quietLogger(), cfg, testutil.NewMemDB(), nil)
	require.NoError(t, err)
	require.GreaterOrEqual(t, restarted.Height(), height)
	if restarted.Height() == height {
		require.Equal(t, tip, restarted.chain.Tip().BlockHash)
	}
}

func TestLeaderAccessors(t *testing.T) {
	n := startNode(t, soloConfig(t, int64(time.Hour/time.Millisecond)))
	require.Equal(t, n.selfID, n.Leader())
	require.True(t, n.IsLeader())
	require.Equal(t, []string{n.selfID}, n.Validators())
}

func countCommitted(t *testing.T, n *Node, txID string) int {
	t.Helper()
	count := 0
	for h := uint64(1); h <= n.Height(); h++ {
		block, err := n.GetBlock(h)
		require.NoError(t, err)
		for _, id := range block.TxIDs() {
			if id == txID {
				count++
			}
		}
	}
	return count
}

func hasPending(n *Node, txID string) bool {
	for _, tx := range n.MempoolSnapshot() {
		if tx.TxID == txID {
			return true
		}
	}
	return false
}
