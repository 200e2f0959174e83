package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Asadullah378/MiniChain/crypto"
)

// GenesisPrevHash is the canonical all-zeros parent hash of block 0.
const GenesisPrevHash = "0000000000000000000000000000000000000000000000000000000000000000"

// GenesisProposer is the reserved proposer identity of block 0.
const GenesisProposer = "genesis"

// Block is a committed (or candidate) batch of transactions. BlockHash covers
// the header fields and the ordered transaction IDs, not a signature, so two
// nodes assembling the same content always derive the same hash.
type Block struct {
	Height     uint64         `json:"height" cbor:"height"`
	PrevHash   string         `json:"prev_hash" cbor:"prev_hash"`
	Timestamp  float64        `json:"timestamp" cbor:"timestamp"`
	TxList     []*Transaction `json:"tx_list" cbor:"tx_list"`
	ProposerID string         `json:"proposer_id" cbor:"proposer_id"`
	BlockHash  string         `json:"block_hash" cbor:"block_hash"`
}

// TxIDsConcat joins the block's transaction IDs in order. The concatenation
// is the transaction component of the hash preimage; IDs are fixed-width
// 64-hex so no separator is needed.
func (b *Block) TxIDsConcat() string {
	var sb strings.Builder
	sb.Grow(len(b.TxList) * 64)
	for _, tx := range b.TxList {
		sb.WriteString(tx.TxID)
	}
	return sb.String()
}

// ComputeHash returns the SHA-256 hex of the canonical encoding of
// (height, prev_hash, tx ids, timestamp, proposer_id).
func (b *Block) ComputeHash() string {
	h, err := crypto.HashValue([]any{b.Height, b.PrevHash, b.TxIDsConcat(), b.Timestamp, b.ProposerID})
	if err != nil {
		return ""
	}
	return h
}

// Seal computes and stores the block hash.
func (b *Block) Seal() {
	b.BlockHash = b.ComputeHash()
}

// VerifyIntegrity checks hash consistency and every embedded transaction.
func (b *Block) VerifyIntegrity() error {
	if !crypto.IsHex64(b.PrevHash) {
		return fmt.Errorf("malformed prev_hash %q", b.PrevHash)
	}
	if computed := b.ComputeHash(); b.BlockHash != computed {
		return fmt.Errorf("block hash mismatch: stored %s computed %s", b.BlockHash, computed)
	}
	for i, tx := range b.TxList {
		if err := tx.Validate(); err != nil {
			return fmt.Errorf("tx %d: %w", i, err)
		}
	}
	return nil
}

// TxIDs returns the block's transaction IDs in order.
func (b *Block) TxIDs() []string {
	ids := make([]string, len(b.TxList))
	for i, tx := range b.TxList {
		ids[i] = tx.TxID
	}
	return ids
}

// NewBlock creates an unsealed block with the given header fields.
func NewBlock(height uint64, prevHash, proposer string, timestamp float64, txs []*Transaction) *Block {
	return &Block{
		Height:     height,
		PrevHash:   prevHash,
		Timestamp:  timestamp,
		TxList:     txs,
		ProposerID: proposer,
	}
}

// GenesisBlock builds the deterministic block 0. Every node constructs it
// identically; a disagreement on its hash is a hard startup failure.
func GenesisBlock() *Block {
	b := NewBlock(0, GenesisPrevHash, GenesisProposer, 0.0, nil)
	b.Seal()
	return b
}

// ErrNotFound is returned when a requested object does not exist.
var ErrNotFound = errors.New("not found")
