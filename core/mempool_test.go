package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMempoolAddAndDuplicate(t *testing.T) {
	mp := NewMempool()
	tx := NewTransaction("alice", "bob", 10, 1.0)

	require.NoError(t, mp.Add(tx))
	require.Equal(t, 1, mp.Size())

	// Re-delivery is rejected and changes nothing.
	require.ErrorIs(t, mp.Add(tx), ErrSeen)
	require.Equal(t, 1, mp.Size())
}

func TestMempoolRejectsInvalid(t *testing.T) {
	mp := NewMempool()
	bad := NewTransaction("alice", "bob", 10, 1.0)
	bad.Amount = 11 // ID no longer matches
	require.Error(t, mp.Add(bad))
	require.Equal(t, 0, mp.Size())
	require.False(t, mp.HasSeen(bad.TxID))
}

func TestMempoolTakeOrderAndLimit(t *testing.T) {
	mp := NewMempool()
	t1 := NewTransaction("a", "b", 1, 1.0)
	t2 := NewTransaction("c", "d", 2, 2.0)
	t3 := NewTransaction("e", "f", 3, 3.0)
	require.NoError(t, mp.Add(t1))
	require.NoError(t, mp.Add(t2))
	require.NoError(t, mp.Add(t3))

	got := mp.Take(2)
	require.Len(t, got, 2)
	require.Equal(t, t1.TxID, got[0].TxID)
	require.Equal(t, t2.TxID, got[1].TxID)

	// Take does not remove.
	require.Equal(t, 3, mp.Size())
}

func TestMempoolRemoveManyRecordsSeen(t *testing.T) {
	mp := NewMempool()
	t1 := NewTransaction("a", "b", 1, 1.0)
	require.NoError(t, mp.Add(t1))

	// An ID first observed in a synced block is unknown to the pool but must
	// still land in the seen set.
	foreign := NewTransaction("x", "y", 9, 9.0)
	mp.RemoveMany([]string{t1.TxID, foreign.TxID})

	require.Equal(t, 0, mp.Size())
	require.True(t, mp.HasSeen(t1.TxID))
	require.True(t, mp.HasSeen(foreign.TxID))
	require.ErrorIs(t, mp.Add(t1), ErrSeen)
	require.ErrorIs(t, mp.Add(foreign), ErrSeen)
}

func TestMempoolClearKeepsSeen(t *testing.T) {
	mp := NewMempool()
	t1 := NewTransaction("a", "b", 1, 1.0)
	require.NoError(t, mp.Add(t1))
	mp.Clear()
	require.Equal(t, 0, mp.Size())
	require.True(t, mp.HasSeen(t1.TxID))
	require.ErrorIs(t, mp.Add(t1), ErrSeen)
}

func TestMempoolSnapshot(t *testing.T) {
	mp := NewMempool()
	t1 := NewTransaction("a", "b", 1, 1.0)
	t2 := NewTransaction("c", "d", 2, 2.0)
	require.NoError(t, mp.Add(t1))
	require.NoError(t, mp.Add(t2))

	snap := mp.Snapshot()
	require.Len(t, snap, 2)
	require.Equal(t, t1.TxID, snap[0].TxID)
	require.Equal(t, t2.TxID, snap[1].TxID)
}
