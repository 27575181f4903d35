package database_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/kryptobot/auditchain/foundation/ledger/database"
	"github.com/kryptobot/auditchain/foundation/ledger/event"
	"github.com/kryptobot/auditchain/foundation/ledger/genesis"
	"github.com/syndtr/goleveldb/leveldb"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

var noopEv = func(v string, args ...any) {}

// =============================================================================

func Test_CommitAndQuery(t *testing.T) {
	t.Log("Given the need to commit a block and query it back.")
	{
		t.Log("\tTest 0:\tWhen mining a block from three pending events.")
		{
			db := openDB(t, 1)

			for i := 0; i < 3; i++ {
				evt := newTrade(t, fmt.Sprintf("evt-%d", i))
				duplicate, err := db.Enqueue(evt)
				if err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould be able to enqueue event: %v", failed, err)
				}
				if duplicate {
					t.Fatalf("\t%s\tTest 0:\tShould not flag a fresh event as duplicate.", failed)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould be able to enqueue three events.", success)

			block := mineBlock(t, db, 3)

			if block.Header.Number != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould have mined block 1, got %d.", failed, block.Header.Number)
			}
			t.Logf("\t%s\tTest 0:\tShould have mined block 1.", success)

			count, err := db.PendingCount()
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to read the pool depth: %v", failed, err)
			}
			if count != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould have an empty pool after the commit, got %d.", failed, count)
			}
			t.Logf("\t%s\tTest 0:\tShould have an empty pool after the commit.", success)

			blockData, err := db.GetBlock(1)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to read block 1 back: %v", failed, err)
			}
			if len(blockData.Trans) != 3 {
				t.Fatalf("\t%s\tTest 0:\tShould have three events in block 1, got %d.", failed, len(blockData.Trans))
			}
			t.Logf("\t%s\tTest 0:\tShould read block 1 back with three events.", success)

			kind := event.KindTrade
			trail, err := db.AuditTrail(database.Filter{Kind: &kind, Limit: 10})
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to walk the audit trail: %v", failed, err)
			}
			if len(trail) != 3 {
				t.Fatalf("\t%s\tTest 0:\tShould find three trade events, got %d.", failed, len(trail))
			}
			for i, ie := range trail {
				if ie.Event.ID != fmt.Sprintf("evt-%d", i) {
					t.Fatalf("\t%s\tTest 0:\tShould keep arrival order in the trail, got %s at %d.", failed, ie.Event.ID, i)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould find three trade events in arrival order.", success)
		}
	}
}

func Test_TamperDetection(t *testing.T) {
	t.Log("Given the need to detect a retroactive edit to a committed block.")
	{
		t.Log("\tTest 0:\tWhen a stored event payload is altered on disk.")
		{
			dbPath := filepath.Join(t.TempDir(), "audit.db")
			gen := genesis.Genesis{ChainID: "test", Difficulty: 1, TransPerBlock: 10}

			db, err := database.New(dbPath, gen, noopEv)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to open database: %v", failed, err)
			}

			evt := newTrade(t, "tamper-evt")
			if _, err := db.Enqueue(evt); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to enqueue event: %v", failed, err)
			}
			mineBlock(t, db, 1)

			if _, err := db.VerifyChain(); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould verify the untouched chain: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould verify the untouched chain.", success)

			if err := db.Close(); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to close database: %v", failed, err)
			}

			// Edit the serialized block behind the store's back.
			ldb, err := leveldb.OpenFile(dbPath, nil)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to open raw store: %v", failed, err)
			}

			key := fmt.Appendf(nil, "b/%016x", 1)
			data, err := ldb.Get(key, nil)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould find block 1 in raw store: %v", failed, err)
			}

			tampered := bytes.Replace(data, []byte(`"quantity":5`), []byte(`"quantity":9`), 1)
			if bytes.Equal(tampered, data) {
				t.Fatalf("\t%s\tTest 0:\tShould have altered the stored payload.", failed)
			}
			if err := ldb.Put(key, tampered, nil); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to write tampered block: %v", failed, err)
			}
			if err := ldb.Close(); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to close raw store: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to alter the stored payload.", success)

			db, err = database.New(dbPath, gen, noopEv)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to reopen database: %v", failed, err)
			}
			defer db.Close()

			_, err = db.VerifyChain()
			var cie *database.ChainIntegrityError
			if !errors.As(err, &cie) {
				t.Fatalf("\t%s\tTest 0:\tShould fail verification with an integrity error, got %v.", failed, err)
			}
			if cie.Number != 1 || cie.Check != database.CheckHash {
				t.Fatalf("\t%s\tTest 0:\tShould fail the hash check at block 1, got blk[%d] check[%s].", failed, cie.Number, cie.Check)
			}
			t.Logf("\t%s\tTest 0:\tShould fail the hash check at block 1.", success)
		}
	}
}

func Test_Dedup(t *testing.T) {
	t.Log("Given the need to absorb duplicate event ids.")
	{
		t.Log("\tTest 0:\tWhen the same id is recorded while pending and after commit.")
		{
			db := openDB(t, 1)

			evt := newTrade(t, "dup-evt")
			if duplicate, err := db.Enqueue(evt); err != nil || duplicate {
				t.Fatalf("\t%s\tTest 0:\tShould accept the first enqueue: dup[%t] err[%v].", failed, duplicate, err)
			}
			t.Logf("\t%s\tTest 0:\tShould accept the first enqueue.", success)

			if duplicate, err := db.Enqueue(evt); err != nil || !duplicate {
				t.Fatalf("\t%s\tTest 0:\tShould absorb a pending duplicate: dup[%t] err[%v].", failed, duplicate, err)
			}
			t.Logf("\t%s\tTest 0:\tShould absorb a pending duplicate.", success)

			count, err := db.PendingCount()
			if err != nil || count != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould hold exactly one pending event, got %d err[%v].", failed, count, err)
			}
			t.Logf("\t%s\tTest 0:\tShould hold exactly one pending event.", success)

			mineBlock(t, db, 1)

			if duplicate, err := db.Enqueue(evt); err != nil || !duplicate {
				t.Fatalf("\t%s\tTest 0:\tShould absorb a committed duplicate: dup[%t] err[%v].", failed, duplicate, err)
			}
			t.Logf("\t%s\tTest 0:\tShould absorb a committed duplicate.", success)

			count, err = db.PendingCount()
			if err != nil || count != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould keep the pool empty, got %d err[%v].", failed, count, err)
			}
			t.Logf("\t%s\tTest 0:\tShould keep the pool empty.", success)
		}
	}
}

func Test_PruneAndVerify(t *testing.T) {
	t.Log("Given the need to prune old blocks and still verify the chain.")
	{
		t.Log("\tTest 0:\tWhen pruning everything but the tip.")
		{
			db := openDB(t, 1)

			for i := 0; i < 3; i++ {
				evt := newTrade(t, fmt.Sprintf("prune-evt-%d", i))
				if _, err := db.Enqueue(evt); err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould be able to enqueue event: %v", failed, err)
				}
				mineBlock(t, db, 1)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to mine three blocks.", success)

			pruned, err := db.Prune(time.Now().Add(time.Hour))
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to prune: %v", failed, err)
			}
			if pruned != 3 {
				t.Fatalf("\t%s\tTest 0:\tShould prune genesis plus two blocks, got %d.", failed, pruned)
			}
			t.Logf("\t%s\tTest 0:\tShould prune genesis plus two blocks.", success)

			checkpoint, isPruned, err := db.Checkpoint()
			if err != nil || !isPruned {
				t.Fatalf("\t%s\tTest 0:\tShould have a pruning checkpoint: %v", failed, err)
			}
			if checkpoint.Index != 3 {
				t.Fatalf("\t%s\tTest 0:\tShould checkpoint the tip, got %d.", failed, checkpoint.Index)
			}
			t.Logf("\t%s\tTest 0:\tShould checkpoint the tip.", success)

			if _, err := db.GetBlock(1); !errors.Is(err, database.ErrNotFound) {
				t.Fatalf("\t%s\tTest 0:\tShould not find a pruned block, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould not find a pruned block.", success)

			result, err := db.VerifyChain()
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould verify the pruned chain from the checkpoint: %v", failed, err)
			}
			if result.Blocks != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould verify exactly the retained block, got %d.", failed, result.Blocks)
			}
			t.Logf("\t%s\tTest 0:\tShould verify the pruned chain from the checkpoint.", success)

			// Committed id markers survive pruning so dedup still holds.
			if duplicate, err := db.Enqueue(newTrade(t, "prune-evt-0")); err != nil || !duplicate {
				t.Fatalf("\t%s\tTest 0:\tShould absorb an id from a pruned block: dup[%t] err[%v].", failed, duplicate, err)
			}
			t.Logf("\t%s\tTest 0:\tShould absorb an id from a pruned block.", success)
		}
	}
}

// =============================================================================

func openDB(t *testing.T, difficulty uint16) *database.Database {
	t.Helper()

	gen := genesis.Genesis{ChainID: "test", Difficulty: difficulty, TransPerBlock: 10}
	db, err := database.New(filepath.Join(t.TempDir(), "audit.db"), gen, noopEv)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to open database: %v", failed, err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func newTrade(t *testing.T, id string) event.Event {
	t.Helper()

	evt, err := event.NewTrade(id, event.Trade{
		Symbol:   "BTC/USDT",
		Side:     "buy",
		Quantity: 5,
		Price:    50000,
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct trade event: %v", failed, err)
	}

	return evt
}

func mineBlock(t *testing.T, db *database.Database, want int) database.Block {
	t.Helper()

	drained, err := db.OldestPending(want)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to drain the pool: %v", failed, err)
	}
	if len(drained) != want {
		t.Fatalf("\t%s\tShould drain %d events, got %d.", failed, want, len(drained))
	}

	trans := make([]event.Event, len(drained))
	for i, pending := range drained {
		trans[i] = pending.Event
	}

	block, err := database.POW(context.Background(), db.Genesis().Difficulty, db.LatestBlock(), trans, 0, noopEv)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to solve the proof of work: %v", failed, err)
	}

	if err := db.Commit(block, drained); err != nil {
		t.Fatalf("\t%s\tShould be able to commit the block: %v", failed, err)
	}

	return block
}
