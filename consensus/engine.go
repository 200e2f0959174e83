// Package consensus implements the round-robin Proof-of-Authority engine:
// deterministic leader rotation, proposal validation, ACK tallying and the
// commit decision. The engine mutates no chain or network state itself; the
// node orchestrator drives it and applies its decisions.
package consensus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Asadullah378/MiniChain/core"
)

// Phase is the per-height protocol state of the local node.
type Phase string

const (
	PhaseIdle       Phase = "IDLE"
	PhaseProposed   Phase = "PROPOSED"   // leader: proposal broadcast, collecting ACKs
	PhaseAcked      Phase = "ACKED"      // follower: ACK sent, waiting for COMMIT
	PhaseCommitting Phase = "COMMITTING" // leader: quorum reached, finalising
	PhaseCommitted  Phase = "COMMITTED"
)

var (
	// ErrStaleHeight rejects proposals that are not for the next height.
	ErrStaleHeight = errors.New("proposal height does not follow tip")
	// ErrWrongProposer rejects proposals from anyone but the scheduled leader.
	ErrWrongProposer = errors.New("proposer is not the leader for this height")
	// ErrEquivocation marks a second, differently-hashed proposal for a
	// height whose first proposal is already cached.
	ErrEquivocation = errors.New("conflicting proposal for cached height")
	// ErrDuplicateProposal marks a re-delivery of the already-cached proposal.
	ErrDuplicateProposal = errors.New("proposal already cached")
	// ErrNeedSync signals a COMMIT whose proposal this node never saw.
	ErrNeedSync = errors.New("commit without matching proposal")
)

// Params are the consensus timing and sizing knobs, injected by configuration.
type Params struct {
	BlockInterval   time.Duration
	ProposalTimeout time.Duration
	QuorumSize      int
	MaxTxs          int
}

// Engine holds the consensus state for one validator. It keeps back-references
// to the chain store and mempool for reads only; all writes flow through the
// orchestrator.
type Engine struct {
	log   *logrus.Logger
	chain *core.ChainStore
	pool  *core.Mempool

	mu            sync.Mutex
	validators    []string
	selfID        string
	params        Params
	currentHeight uint64
	lastBlockTime time.Time
	phase         Phase
	pending       *core.Block
	ackVoters     map[uint64]map[string]struct{}
	committing    map[uint64]struct{}
}

// New creates an engine for selfID over the sorted validator set. The chain
// tip seeds currentHeight; lastBlockTime starts at now so a freshly started
// leader waits one block interval before proposing.
func New(log *logrus.Logger, chain *core.ChainStore, pool *core.Mempool, validators []string, selfID string, params Params) *Engine {
	return &Engine{
		log:           log,
		chain:         chain,
		pool:          pool,
		validators:    validators,
		selfID:        selfID,
		params:        params,
		currentHeight: chain.Height(),
		lastBlockTime: time.Now(),
		phase:         PhaseIdle,
		ackVoters:     make(map[uint64]map[string]struct{}),
		committing:    make(map[uint64]struct{}),
	}
}

// Leader returns the validator scheduled to propose block h.
func (e *Engine) Leader(h uint64) string {
	return e.validators[h%uint64(len(e.validators))]
}

// CurrentHeight returns the engine's view of the committed tip height.
func (e *Engine) CurrentHeight() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentHeight
}

// Phase returns the local protocol phase at the in-flight height.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// PendingProposal returns the cached proposal, or nil.
func (e *Engine) PendingProposal() *core.Block {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending
}

// ShouldPropose reports whether the local node must propose block h now:
// it is the scheduled leader, h is the next height, a full block interval has
// elapsed, and h is neither mid-commit nor already proposed.
func (e *Engine) ShouldPropose(h uint64, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Leader(h) != e.selfID {
		return false
	}
	if h != e.currentHeight+1 {
		return false
	}
	if now.Sub(e.lastBlockTime) < e.params.BlockInterval {
		return false
	}
	if _, busy := e.committing[h]; busy {
		return false
	}
	if e.pending != nil && e.pending.Height == h {
		return false
	}
	return true
}

// CreateProposal assembles up to MaxTxs mempool transactions in insertion
// order into a sealed block extending the current tip, and caches it as the
// pending proposal.
func (e *Engine) CreateProposal(h uint64, now time.Time) *core.Block {
	txs := e.pool.Take(e.params.MaxTxs)
	tip := e.chain.Tip()
	block := core.NewBlock(h, tip.BlockHash, e.selfID, unixSeconds(now), txs)
	block.Seal()

	e.mu.Lock()
	e.pending = block
	e.phase = PhaseProposed
	e.mu.Unlock()
	return block
}

// OnProposal validates an inbound proposal from peer `from` and caches it.
// A nil return means the node must ACK; the cached proposal is the only one
// it will commit at that height.
func (e *Engine) OnProposal(block *core.Block, from string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if block.Height != e.currentHeight+1 {
		return fmt.Errorf("%w: got %d tip %d", ErrStaleHeight, block.Height, e.currentHeight)
	}
	tip := e.chain.Tip()
	if block.PrevHash != tip.BlockHash {
		return fmt.Errorf("prev_hash mismatch: got %s want %s", block.PrevHash, tip.BlockHash)
	}
	leader := e.Leader(block.Height)
	if block.ProposerID != leader || from != leader {
		return fmt.Errorf("%w: proposer %s from %s want %s", ErrWrongProposer, block.ProposerID, from, leader)
	}
	if err := block.VerifyIntegrity(); err != nil {
		return err
	}
	if e.pending != nil && e.pending.Height == block.Height {
		if e.pending.BlockHash == block.BlockHash {
			return ErrDuplicateProposal
		}
		// First proposal wins; a second hash from the legitimate leader is
		// equivocation and is never ACKed or committed.
		e.log.WithFields(logrus.Fields{
			"event":      "equivocation",
			"height":     block.Height,
			"peer":       from,
			"block_hash": block.BlockHash,
		}).Warn("conflicting proposal dropped")
		return ErrEquivocation
	}

	e.pending = block
	e.phase = PhaseAcked
	return nil
}

// OnAck records a vote on the leader. It returns the pending block as the
// commit decision exactly once, when the tally (including the leader's
// implicit self-vote) first reaches quorum; every other outcome returns nil.
func (e *Engine) OnAck(height uint64, blockHash, voter string) *core.Block {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.isValidator(voter) {
		return nil
	}
	if e.pending == nil || e.pending.Height != height || e.pending.BlockHash != blockHash {
		return nil
	}
	// ACKs only tally on the proposer of the cached block.
	if e.pending.ProposerID != e.selfID {
		return nil
	}
	voters, ok := e.ackVoters[height]
	if !ok {
		voters = make(map[string]struct{})
		e.ackVoters[height] = voters
	}
	voters[voter] = struct{}{}

	// The leader is a validator and votes for its own proposal at the moment
	// of quorum evaluation.
	voters[e.selfID] = struct{}{}
	if len(voters) < e.params.QuorumSize {
		return nil
	}
	if _, busy := e.committing[height]; busy {
		return nil
	}
	e.committing[height] = struct{}{}
	e.phase = PhaseCommitting
	return e.pending
}

// OnCommit resolves a COMMIT announcement against the cached proposal. It
// returns the block to finalise, or ErrNeedSync when this node missed the
// proposal and must catch up instead.
func (e *Engine) OnCommit(height uint64, blockHash string) (*core.Block, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pending != nil && e.pending.Height == height && e.pending.BlockHash == blockHash {
		return e.pending, nil
	}
	return nil, fmt.Errorf("%w: height %d hash %s", ErrNeedSync, height, blockHash)
}

// OnBlockCommitted advances the engine past a locally persisted block:
// the height moves up, the block timer restarts, and all per-height voting
// state at or below the committed height is garbage-collected.
func (e *Engine) OnBlockCommitted(block *core.Block, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.currentHeight = block.Height
	e.lastBlockTime = now
	if e.pending != nil && e.pending.Height <= block.Height {
		e.pending = nil
	}
	for h := range e.ackVoters {
		if h <= block.Height {
			delete(e.ackVoters, h)
		}
	}
	delete(e.committing, block.Height)
	e.phase = PhaseIdle
}

// ShouldViewChange reports whether the local node, as the scheduled leader of
// the next height, has seen no progress for longer than the proposal timeout.
// The VIEWCHANGE flow past this hook is not finalised; callers broadcast the
// announcement and nothing more.
//
// TODO: complete the view-change protocol — new-leader re-proposal of the
// stalled tx set and follower recognition of the rotated leader are open.
func (e *Engine) ShouldViewChange(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.currentHeight + 1
	if e.Leader(next) != e.selfID {
		return false
	}
	if now.Sub(e.lastBlockTime) <= e.params.ProposalTimeout {
		return false
	}
	return e.pending == nil || e.pending.Height != next
}

func (e *Engine) isValidator(id string) bool {
	for _, v := range e.validators {
		if v == id {
			return true
		}
	}
	return false
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
