package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransactionIDDeterminism(t *testing.T) {
	a := NewTransaction("alice", "bob", 10, 1.0)
	b := NewTransaction("alice", "bob", 10, 1.0)
	require.Equal(t, a.TxID, b.TxID, "same fields must derive the same ID")
	require.Len(t, a.TxID, 64)

	c := NewTransaction("alice", "bob", 10, 1.5)
	require.NotEqual(t, a.TxID, c.TxID, "timestamp participates in the ID")
}

func TestTransactionValidate(t *testing.T) {
	tx := NewTransaction("alice", "bob", 10, 1.0)
	require.NoError(t, tx.Validate())

	tampered := *tx
	tampered.Amount = 11
	require.Error(t, tampered.Validate(), "amount change must break the ID")

	missing := *tx
	missing.Sender = ""
	require.Error(t, missing.Validate())

	badID := *tx
	badID.TxID = "not-hex"
	require.Error(t, badID.Validate())

	negative := NewTransaction("alice", "bob", 1, -5)
	require.Error(t, negative.Validate())
}

func TestTransactionZeroAmountIsValid(t *testing.T) {
	tx := NewTransaction("alice", "bob", 0, 1.0)
	require.NoError(t, tx.Validate())
}
