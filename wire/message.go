// Package wire defines the protocol messages and their framing. Every frame
// payload is a self-describing map carrying a "type" tag; decoding dispatches
// on the tag into one typed variant per message kind.
package wire

import (
	"fmt"

	"github.com/Asadullah378/MiniChain/codec"
	"github.com/Asadullah378/MiniChain/core"
)

// Type tags a protocol message.
type Type string

const (
	TypeTx         Type = "TX"
	TypePropose    Type = "PROPOSE"
	TypeAck        Type = "ACK"
	TypeCommit     Type = "COMMIT"
	TypeHello      Type = "HELLO"
	TypeHeartbeat  Type = "HEARTBEAT"
	TypeGetHeaders Type = "GETHEADERS"
	TypeHeaders    Type = "HEADERS"
	TypeGetBlocks  Type = "GETBLOCKS"
	TypeBlock      Type = "BLOCK"
	TypeViewChange Type = "VIEWCHANGE"
)

// Consensus reports whether t is one of the quorum-critical kinds that must
// never be dropped by an overflowing send queue.
func (t Type) Consensus() bool {
	return t == TypePropose || t == TypeAck || t == TypeCommit
}

// Message is implemented by every protocol message variant.
type Message interface {
	Kind() Type
}

// TxMsg gossips a single transaction.
type TxMsg struct {
	Type Type `cbor:"type"`
	core.Transaction
}

// ProposeMsg carries the leader's candidate block for the next height.
type ProposeMsg struct {
	Type Type `cbor:"type"`
	core.Block
}

// AckMsg is a follower's vote for a proposal. Signature is reserved and
// carried empty; cryptographic verification is future work.
type AckMsg struct {
	Type      Type   `cbor:"type"`
	Height    uint64 `cbor:"height"`
	BlockHash string `cbor:"block_hash"`
	VoterID   string `cbor:"voter_id"`
	Signature string `cbor:"signature"`
}

// CommitMsg finalises a height. It embeds the full block so nodes that missed
// the proposal can still detect the gap precisely.
type CommitMsg struct {
	Type      Type       `cbor:"type"`
	Height    uint64     `cbor:"height"`
	BlockHash string     `cbor:"block_hash"`
	LeaderID  string     `cbor:"leader_id"`
	Block     core.Block `cbor:"block"`
}

// HelloMsg introduces a node after connecting.
type HelloMsg struct {
	Type          Type   `cbor:"type"`
	NodeID        string `cbor:"node_id"`
	ListeningPort int    `cbor:"listening_port"`
	Version       string `cbor:"version"`
}

// HeartbeatMsg advertises liveness and the sender's tip.
type HeartbeatMsg struct {
	Type          Type   `cbor:"type"`
	NodeID        string `cbor:"node_id"`
	Height        uint64 `cbor:"height"`
	LastBlockHash string `cbor:"last_block_hash"`
}

// Header is a block without its transaction list, served to cheap tip probes.
type Header struct {
	Height     uint64  `cbor:"height"`
	PrevHash   string  `cbor:"prev_hash"`
	Timestamp  float64 `cbor:"timestamp"`
	ProposerID string  `cbor:"proposer_id"`
	BlockHash  string  `cbor:"block_hash"`
}

// HeaderOf extracts the header fields of b.
func HeaderOf(b *core.Block) Header {
	return Header{
		Height:     b.Height,
		PrevHash:   b.PrevHash,
		Timestamp:  b.Timestamp,
		ProposerID: b.ProposerID,
		BlockHash:  b.BlockHash,
	}
}

// GetHeadersMsg requests headers starting at FromHeight.
type GetHeadersMsg struct {
	Type       Type   `cbor:"type"`
	FromHeight uint64 `cbor:"from_height"`
	Limit      int    `cbor:"limit"`
}

// HeadersMsg answers a GetHeadersMsg.
type HeadersMsg struct {
	Type    Type     `cbor:"type"`
	Headers []Header `cbor:"headers"`
}

// GetBlocksMsg requests full blocks starting at FromHeight.
type GetBlocksMsg struct {
	Type       Type   `cbor:"type"`
	FromHeight uint64 `cbor:"from_height"`
	Limit      int    `cbor:"limit"`
}

// BlockMsg delivers one committed block during catch-up.
type BlockMsg struct {
	Type  Type       `cbor:"type"`
	Block core.Block `cbor:"block"`
}

// ViewChangeMsg announces that the sender considers the current leader
// failed. The full view-change flow is not finalised; receivers log it.
type ViewChangeMsg struct {
	Type   Type   `cbor:"type"`
	Height uint64 `cbor:"height"`
	NodeID string `cbor:"node_id"`
	Reason string `cbor:"reason"`
}

func (m *TxMsg) Kind() Type         { return TypeTx }
func (m *ProposeMsg) Kind() Type    { return TypePropose }
func (m *AckMsg) Kind() Type        { return TypeAck }
func (m *CommitMsg) Kind() Type     { return TypeCommit }
func (m *HelloMsg) Kind() Type      { return TypeHello }
func (m *HeartbeatMsg) Kind() Type  { return TypeHeartbeat }
func (m *GetHeadersMsg) Kind() Type { return TypeGetHeaders }
func (m *HeadersMsg) Kind() Type    { return TypeHeaders }
func (m *GetBlocksMsg) Kind() Type  { return TypeGetBlocks }
func (m *BlockMsg) Kind() Type      { return TypeBlock }
func (m *ViewChangeMsg) Kind() Type { return TypeViewChange }

// NewTxMsg wraps tx for gossip.
func NewTxMsg(tx *core.Transaction) *TxMsg {
	return &TxMsg{Type: TypeTx, Transaction: *tx}
}

// NewProposeMsg wraps the leader's candidate block.
func NewProposeMsg(b *core.Block) *ProposeMsg {
	return &ProposeMsg{Type: TypePropose, Block: *b}
}

// NewAckMsg builds a vote for (height, blockHash) by voter.
func NewAckMsg(height uint64, blockHash, voter string) *AckMsg {
	return &AckMsg{Type: TypeAck, Height: height, BlockHash: blockHash, VoterID: voter}
}

// NewCommitMsg builds the finalisation announcement for b.
func NewCommitMsg(b *core.Block, leader string) *CommitMsg {
	return &CommitMsg{Type: TypeCommit, Height: b.Height, BlockHash: b.BlockHash, LeaderID: leader, Block: *b}
}

// Encode serialises m with the canonical encoding.
func Encode(m Message) ([]byte, error) {
	return codec.Marshal(m)
}

// Decode probes the type tag and decodes data into the matching variant.
func Decode(data []byte) (Message, error) {
	var probe struct {
		Type Type `cbor:"type"`
	}
	if err := codec.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	var msg Message
	switch probe.Type {
	case TypeTx:
		msg = &TxMsg{}
	case TypePropose:
		msg = &ProposeMsg{}
	case TypeAck:
		msg = &AckMsg{}
	case TypeCommit:
		msg = &CommitMsg{}
	case TypeHello:
		msg = &HelloMsg{}
	case TypeHeartbeat:
		msg = &HeartbeatMsg{}
	case TypeGetHeaders:
		msg = &GetHeadersMsg{}
	case TypeHeaders:
		msg = &HeadersMsg{}
	case TypeGetBlocks:
		msg = &GetBlocksMsg{}
	case TypeBlock:
		msg = &BlockMsg{}
	case TypeViewChange:
		msg = &ViewChangeMsg{}
	default:
		return nil, fmt.Errorf("unknown message type %q", probe.Type)
	}
	if err := codec.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", probe.Type, err)
	}
	return msg, nil
}
