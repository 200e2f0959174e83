package network

import (
	"github.com/sirupsen/logrus"

	"github.com/Asadullah378/MiniChain/core"
	"github.com/Asadullah378/MiniChain/wire"
)

// syncBatchLimit caps the blocks served per GETBLOCKS request.
const syncBatchLimit = 50

// BlockApplier finalises a synced block: validation, persistence, mempool
// pruning and consensus advancement all happen behind this callback, owned
// by the orchestrator.
type BlockApplier func(block *core.Block) error

// Syncer implements pull-based catch-up: a lagging node requests block
// batches from the peer that revealed the gap and applies them in order.
type Syncer struct {
	log   *logrus.Logger
	chain *core.ChainStore
	apply BlockApplier
}

// NewSyncer creates a Syncer reading from chain and applying via apply.
func NewSyncer(log *logrus.Logger, chain *core.ChainStore, apply BlockApplier) *Syncer {
	return &Syncer{log: log, chain: chain, apply: apply}
}

// RequestBlocks asks peer for blocks following the local tip.
func (s *Syncer) RequestBlocks(peer *Peer) error {
	return peer.Send(&wire.GetBlocksMsg{
		Type:       wire.TypeGetBlocks,
		FromHeight: s.chain.Height() + 1,
		Limit:      syncBatchLimit,
	})
}

// RequestHeaders probes peer's chain from the local tip height.
func (s *Syncer) RequestHeaders(peer *Peer) error {
	return peer.Send(&wire.GetHeadersMsg{
		Type:       wire.TypeGetHeaders,
		FromHeight: s.chain.Height(),
		Limit:      syncBatchLimit,
	})
}

// HandleGetBlocks serves a batch of full blocks, one BLOCK frame each.
func (s *Syncer) HandleGetBlocks(peer *Peer, req *wire.GetBlocksMsg) {
	limit := req.Limit
	if limit <= 0 || limit > syncBatchLimit {
		limit = syncBatchLimit
	}
	for _, b := range s.chain.Blocks(req.FromHeight, limit) {
		if err := peer.Send(&wire.BlockMsg{Type: wire.TypeBlock, Block: *b}); err != nil {
			s.log.WithFields(logrus.Fields{
				"event":  "sync_serve_failed",
				"peer":   peer.Addr,
				"height": b.Height,
				"reason": err.Error(),
			}).Warn("aborting block batch")
			return
		}
	}
}

// HandleGetHeaders serves a batch of headers in one HEADERS frame.
func (s *Syncer) HandleGetHeaders(peer *Peer, req *wire.GetHeadersMsg) {
	limit := req.Limit
	if limit <= 0 || limit > syncBatchLimit {
		limit = syncBatchLimit
	}
	blocks := s.chain.Blocks(req.FromHeight, limit)
	headers := make([]wire.Header, 0, len(blocks))
	for _, b := range blocks {
		headers = append(headers, wire.HeaderOf(b))
	}
	if err := peer.Send(&wire.HeadersMsg{Type: wire.TypeHeaders, Headers: headers}); err != nil {
		s.log.WithFields(logrus.Fields{
			"event":  "sync_serve_failed",
			"peer":   peer.Addr,
			"reason": err.Error(),
		}).Warn("headers response failed")
	}
}

// HandleHeaders follows up a header probe: when the remote tip is ahead of
// the local one, request the missing full blocks.
func (s *Syncer) HandleHeaders(peer *Peer, msg *wire.HeadersMsg) {
	local := s.chain.Height()
	for _, h := range msg.Headers {
		if h.Height > local {
			if err := s.RequestBlocks(peer); err != nil {
				s.log.WithFields(logrus.Fields{
					"event":  "sync_request_failed",
					"peer":   peer.Addr,
					"reason": err.Error(),
				}).Warn("block request failed")
			}
			return
		}
	}
}

// HandleBlock applies one synced block. Already-known heights are a silent
// no-op; anything else that fails validation aborts this batch (a later
// heartbeat re-triggers sync).
func (s *Syncer) HandleBlock(peer *Peer, msg *wire.BlockMsg) {
	block := msg.Block
	if block.Height <= s.chain.Height() {
		return
	}
	if err := s.apply(&block); err != nil {
		s.log.WithFields(logrus.Fields{
			"event":      "sync_apply_failed",
			"peer":       peer.Addr,
			"height":     block.Height,
			"block_hash": block.BlockHash,
			"reason":     err.Error(),
		}).Warn("rejected synced block")
	}
}
