package core

import (
	"errors"
	"fmt"

	"github.com/Asadullah378/MiniChain/crypto"
)

// Transaction is the atomic unit of value transfer. Amount is denominated in
// integer subunits so the hash preimage is identical on every platform.
// A transaction is immutable once its ID is computed.
type Transaction struct {
	TxID      string  `json:"tx_id" cbor:"tx_id"`
	Sender    string  `json:"sender" cbor:"sender"`
	Recipient string  `json:"recipient" cbor:"recipient"`
	Amount    uint64  `json:"amount" cbor:"amount"`
	Timestamp float64 `json:"timestamp" cbor:"timestamp"` // Unix seconds
}

// Hash returns the deterministic transaction ID: the SHA-256 hex of the
// canonical encoding of (sender, recipient, amount, timestamp).
// The ID field itself is never part of the preimage.
func (tx *Transaction) Hash() string {
	id, err := crypto.HashValue([]any{tx.Sender, tx.Recipient, tx.Amount, tx.Timestamp})
	if err != nil {
		return ""
	}
	return id
}

// Validate checks structural well-formedness and that TxID matches the
// recomputed hash of the remaining fields.
func (tx *Transaction) Validate() error {
	if tx.Sender == "" {
		return errors.New("missing sender")
	}
	if tx.Recipient == "" {
		return errors.New("missing recipient")
	}
	if tx.Timestamp < 0 {
		return fmt.Errorf("negative timestamp %f", tx.Timestamp)
	}
	if !crypto.IsHex64(tx.TxID) {
		return fmt.Errorf("malformed tx_id %q", tx.TxID)
	}
	if computed := tx.Hash(); tx.TxID != computed {
		return fmt.Errorf("tx_id mismatch: stored %s computed %s", tx.TxID, computed)
	}
	return nil
}

// NewTransaction creates a transaction with its ID computed from the given
// fields. timestamp is Unix seconds.
func NewTransaction(sender, recipient string, amount uint64, timestamp float64) *Transaction {
	tx := &Transaction{
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount,
		Timestamp: timestamp,
	}
	tx.TxID = tx.Hash()
	return tx
}
