package indexer

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/Asadullah378/MiniChain/core"
	"github.com/Asadullah378/MiniChain/events"
	"github.com/Asadullah378/MiniChain/internal/testutil"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestIndexerOnBlockCommit(t *testing.T) {
	log := quietLogger()
	emitter := events.NewEmitter(log)
	idx := New(log, testutil.NewMemDB(), emitter)

	tx := core.NewTransaction("alice", "bob", 10, 1.0)
	block := core.NewBlock(1, core.GenesisBlock().BlockHash, "b:1", 1.5, []*core.Transaction{tx})
	block.Seal()

	emitter.Emit(events.Event{
		Type:   events.EventBlockCommit,
		Height: block.Height,
		Data:   map[string]any{"block": block},
	})

	gotTx, height, err := idx.GetTransaction(tx.TxID)
	require.NoError(t, err)
	require.Equal(t, uint64(1), height)
	require.Equal(t, tx.TxID, gotTx.TxID)
	require.Equal(t, tx.Amount, gotTx.Amount)

	gotHeight, err := idx.GetHeightByHash(block.BlockHash)
	require.NoError(t, err)
	require.Equal(t, uint64(1), gotHeight)
}

func TestIndexerMisses(t *testing.T) {
	log := quietLogger()
	idx := New(log, testutil.NewMemDB(), events.NewEmitter(log))

	_, _, err := idx.GetTransaction("unknown")
	require.ErrorIs(t, err, core.ErrNotFound)

	_, err = idx.GetHeightByHash("unknown")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestIndexerIgnoresMalformedEvents(t *testing.T) {
	log := quietLogger()
	emitter := events.NewEmitter(log)
	idx := New(log, testutil.NewMemDB(), emitter)

	// Events without a block payload must not panic or index anything.
	emitter.Emit(events.Event{Type: events.EventBlockCommit, Data: map[string]any{}})
	_, err := idx.GetHeightByHash("whatever")
	require.ErrorIs(t, err, core.ErrNotFound)
}
