// Package indexer maintains secondary lookup tables over committed blocks so
// operator surfaces can resolve transactions by ID and blocks by hash without
// scanning the chain.
package indexer

import (
	"encoding/json"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/Asadullah378/MiniChain/core"
	"github.com/Asadullah378/MiniChain/events"
	"github.com/Asadullah378/MiniChain/storage"
)

const (
	prefixTx        = "idx:tx:"
	prefixBlockHash = "idx:blockhash:"
)

// txEntry is the persisted record for one committed transaction.
type txEntry struct {
	Height uint64            `json:"height"`
	Tx     *core.Transaction `json:"tx"`
}

// Indexer subscribes to commit events and updates lookup tables.
type Indexer struct {
	log     *logrus.Logger
	db      storage.DB
	emitter *events.Emitter
}

// New creates an Indexer backed by db and subscribes it to commit events.
func New(log *logrus.Logger, db storage.DB, emitter *events.Emitter) *Indexer {
	idx := &Indexer{log: log, db: db, emitter: emitter}
	emitter.Subscribe(events.EventBlockCommit, idx.onBlockCommit)
	return idx
}

// GetTransaction returns a committed transaction and the height of the block
// containing it, or core.ErrNotFound.
func (idx *Indexer) GetTransaction(txID string) (*core.Transaction, uint64, error) {
	data, err := idx.db.Get([]byte(prefixTx + txID))
	if err != nil {
		return nil, 0, err
	}
	var entry txEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, 0, err
	}
	return entry.Tx, entry.Height, nil
}

// GetHeightByHash resolves a block hash to its height, or core.ErrNotFound.
func (idx *Indexer) GetHeightByHash(hash string) (uint64, error) {
	data, err := idx.db.Get([]byte(prefixBlockHash + hash))
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(string(data), 10, 64)
}

func (idx *Indexer) onBlockCommit(ev events.Event) {
	block, _ := ev.Data["block"].(*core.Block)
	if block == nil {
		return
	}
	// One batch per block: either the whole block is indexed or none of it.
	batch := idx.db.NewBatch()
	batch.Set(
		[]byte(prefixBlockHash+block.BlockHash),
		[]byte(strconv.FormatUint(block.Height, 10)),
	)
	for _, tx := range block.TxList {
		data, err := json.Marshal(txEntry{Height: block.Height, Tx: tx})
		if err != nil {
			idx.log.WithFields(logrus.Fields{
				"event":  "index_encode_failed",
				"height": block.Height,
				"tx_id":  tx.TxID,
				"reason": err.Error(),
			}).Error("skipping block index")
			return
		}
		batch.Set([]byte(prefixTx+tx.TxID), data)
	}
	if err := batch.Write(); err != nil {
		idx.log.WithFields(logrus.Fields{
			"event":  "index_write_failed",
			"height": block.Height,
			"reason": err.Error(),
		}).Error("block not indexed")
	}
}
