package state_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kryptobot/auditchain/foundation/ledger/event"
	"github.com/kryptobot/auditchain/foundation/ledger/genesis"
	"github.com/kryptobot/auditchain/foundation/ledger/state"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// =============================================================================

func Test_RecordAndMine(t *testing.T) {
	t.Log("Given the need to record events and mine them into a block.")
	{
		t.Log("\tTest 0:\tWhen recording three trades and forcing a mine.")
		{
			st := newState(t, filepath.Join(t.TempDir(), "audit.db"), 1, 0)

			for i := 0; i < 3; i++ {
				trade := event.Trade{
					Symbol:   "ETH/USDT",
					Side:     "sell",
					Quantity: 1.5,
					Price:    3200,
				}
				if _, err := st.RecordTrade(fmt.Sprintf("trade-%d", i), trade); err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould be able to record trade: %v", failed, err)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould be able to record three trades.", success)

			block, err := st.ForceMine(context.Background())
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to mine a block: %v", failed, err)
			}

			if block.Header.Number != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould have mined block 1, got %d.", failed, block.Header.Number)
			}
			t.Logf("\t%s\tTest 0:\tShould have mined block 1.", success)

			if len(block.Trans) != 3 {
				t.Fatalf("\t%s\tTest 0:\tShould carry three events, got %d.", failed, len(block.Trans))
			}
			t.Logf("\t%s\tTest 0:\tShould carry three events.", success)

			if !strings.HasPrefix(block.Hash(), "0x0") {
				t.Fatalf("\t%s\tTest 0:\tShould have a solved hash, got %s.", failed, block.Hash())
			}
			t.Logf("\t%s\tTest 0:\tShould have a solved hash.", success)

			count, err := st.PendingCount()
			if err != nil || count != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould have an empty pool, got %d err[%v].", failed, count, err)
			}
			t.Logf("\t%s\tTest 0:\tShould have an empty pool.", success)
		}
	}
}

func Test_RejectInvalidEvents(t *testing.T) {
	t.Log("Given the need to reject malformed events before they enter the pool.")
	{
		t.Log("\tTest 0:\tWhen recording a trade with a bad side and no price.")
		{
			st := newState(t, filepath.Join(t.TempDir(), "audit.db"), 1, 0)

			_, err := st.RecordTrade("bad-trade", event.Trade{
				Symbol:   "BTC/USDT",
				Side:     "hold",
				Quantity: 1,
			})
			if !errors.Is(err, event.ErrInvalidEvent) {
				t.Fatalf("\t%s\tTest 0:\tShould reject the event as invalid, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould reject the event as invalid.", success)

			count, err := st.PendingCount()
			if err != nil || count != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould keep the pool empty, got %d err[%v].", failed, count, err)
			}
			t.Logf("\t%s\tTest 0:\tShould keep the pool empty.", success)
		}
	}
}

func Test_ConcurrentForceMine(t *testing.T) {
	t.Log("Given the need to serialize concurrent mining attempts.")
	{
		t.Log("\tTest 0:\tWhen two callers force a mine with one pending event.")
		{
			st := newState(t, filepath.Join(t.TempDir(), "audit.db"), 1, 0)

			login := event.Login{User: "operator", Success: true}
			if _, err := st.RecordLogin("login-1", login); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to record login: %v", failed, err)
			}

			results := make(chan error, 2)
			for i := 0; i < 2; i++ {
				go func() {
					_, err := st.ForceMine(context.Background())
					results <- err
				}()
			}

			var mined, empty int
			for i := 0; i < 2; i++ {
				switch err := <-results; {
				case err == nil:
					mined++
				case errors.Is(err, state.ErrNoPendingEvents):
					empty++
				default:
					t.Fatalf("\t%s\tTest 0:\tShould only see success or an empty pool, got %v.", failed, err)
				}
			}

			if mined != 1 || empty != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould mine exactly one block, got mined[%d] empty[%d].", failed, mined, empty)
			}
			t.Logf("\t%s\tTest 0:\tShould mine exactly one block and report one empty pool.", success)

			if st.LatestBlock().Header.Number != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould have exactly one block on the chain.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould have exactly one block on the chain.", success)
		}
	}
}

func Test_MiningTimeoutKeepsEvents(t *testing.T) {
	t.Log("Given the need to keep events pooled when a mining attempt is abandoned.")
	{
		t.Log("\tTest 0:\tWhen the attempt ceiling is hit before a solution.")
		{
			// Difficulty six with a ceiling of one attempt cannot solve.
			st := newState(t, filepath.Join(t.TempDir(), "audit.db"), 6, 1)

			change := event.ConfigChange{Key: "risk.max_position", NewValue: "100"}
			if _, err := st.RecordConfigChange("cfg-1", change); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to record config change: %v", failed, err)
			}

			_, err := st.ForceMine(context.Background())
			if !errors.Is(err, state.ErrMiningTimeout) {
				t.Fatalf("\t%s\tTest 0:\tShould abandon the attempt with a timeout, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould abandon the attempt with a timeout.", success)

			count, err := st.PendingCount()
			if err != nil || count != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould keep the event pooled, got %d err[%v].", failed, count, err)
			}
			t.Logf("\t%s\tTest 0:\tShould keep the event pooled.", success)

			if st.LatestBlock().Header.Number != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould not have extended the chain.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould not have extended the chain.", success)
		}
	}
}

func Test_ReopenKeepsState(t *testing.T) {
	t.Log("Given the need to survive a restart without losing events or blocks.")
	{
		t.Log("\tTest 0:\tWhen recording, restarting, and mining.")
		{
			dbPath := filepath.Join(t.TempDir(), "audit.db")

			st := newState(t, dbPath, 1, 0)
			if _, err := st.RecordSystemChange("sys-1", event.SystemChange{Component: "engine", Action: "start"}); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to record event: %v", failed, err)
			}
			if _, err := st.RecordSystemChange("sys-2", event.SystemChange{Component: "engine", Action: "stop"}); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to record event: %v", failed, err)
			}
			if err := st.Shutdown(); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to shut down: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to record two events and shut down.", success)

			st = newState(t, dbPath, 1, 0)

			count, err := st.PendingCount()
			if err != nil || count != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould find both events after the restart, got %d err[%v].", failed, count, err)
			}
			t.Logf("\t%s\tTest 0:\tShould find both events after the restart.", success)

			block, err := st.ForceMine(context.Background())
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to mine after the restart: %v", failed, err)
			}
			if len(block.Trans) != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould mine both events, got %d.", failed, len(block.Trans))
			}
			t.Logf("\t%s\tTest 0:\tShould mine both events after the restart.", success)

			// Recording one of the ids again is absorbed, not duplicated.
			if _, err := st.RecordSystemChange("sys-1", event.SystemChange{Component: "engine", Action: "start"}); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould absorb a replayed event id: %v", failed, err)
			}
			count, err = st.PendingCount()
			if err != nil || count != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould keep the pool empty after the replay, got %d err[%v].", failed, count, err)
			}
			t.Logf("\t%s\tTest 0:\tShould absorb a replayed event id.", success)
		}
	}
}

func Test_AuditTrailPaging(t *testing.T) {
	t.Log("Given the need to page the audit trail with a stable cursor.")
	{
		t.Log("\tTest 0:\tWhen walking five committed events two at a time.")
		{
			st := newState(t, filepath.Join(t.TempDir(), "audit.db"), 1, 0)

			for i := 0; i < 5; i++ {
				order := event.Order{
					Symbol:   "SOL/USDT",
					Side:     "buy",
					Type:     "limit",
					Quantity: 10,
					Price:    150,
				}
				if _, err := st.RecordOrder(fmt.Sprintf("order-%d", i), order); err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould be able to record order: %v", failed, err)
				}
			}
			if _, err := st.ForceMine(context.Background()); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to mine a block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould commit five orders in one block.", success)

			var ids []string
			cursor := ""
			pages := 0
			for {
				page, err := st.AuditTrail(state.TrailFilter{Limit: 2, Cursor: cursor})
				if err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould be able to read a page: %v", failed, err)
				}

				for _, ie := range page.Events {
					ids = append(ids, ie.Event.ID)
				}

				pages++
				if page.NextCursor == "" {
					break
				}
				cursor = page.NextCursor
			}

			if pages != 3 || len(ids) != 5 {
				t.Fatalf("\t%s\tTest 0:\tShould walk five events in three pages, got events[%d] pages[%d].", failed, len(ids), pages)
			}
			t.Logf("\t%s\tTest 0:\tShould walk five events in three pages.", success)

			for i, id := range ids {
				if id != fmt.Sprintf("order-%d", i) {
					t.Fatalf("\t%s\tTest 0:\tShould keep commit order across pages, got %s at %d.", failed, id, i)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould keep commit order across pages.", success)
		}

		t.Log("\tTest 1:\tWhen the cursor cannot be decoded.")
		{
			st := newState(t, filepath.Join(t.TempDir(), "audit.db"), 1, 0)

			_, err := st.AuditTrail(state.TrailFilter{Limit: 2, Cursor: "not-a-cursor"})
			if !errors.Is(err, state.ErrInvalidCursor) {
				t.Fatalf("\t%s\tTest 1:\tShould reject a malformed cursor, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould reject a malformed cursor.", success)
		}
	}
}

func Test_StatsAndVerify(t *testing.T) {
	t.Log("Given the need to report ledger statistics and verification results.")
	{
		t.Log("\tTest 0:\tWhen mining a block and verifying the chain.")
		{
			st := newState(t, filepath.Join(t.TempDir(), "audit.db"), 1, 0)

			if _, err := st.RecordTrade("stat-trade", event.Trade{Symbol: "BTC/USDT", Side: "buy", Quantity: 1, Price: 40000}); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to record trade: %v", failed, err)
			}
			if _, err := st.RecordLogin("stat-login", event.Login{User: "bot"}); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to record login: %v", failed, err)
			}
			if _, err := st.ForceMine(context.Background()); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to mine a block: %v", failed, err)
			}

			result, err := st.VerifyChain()
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould verify the chain: %v", failed, err)
			}
			if result.Blocks != 2 || result.Transactions != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould verify two blocks and two events, got blocks[%d] txs[%d].", failed, result.Blocks, result.Transactions)
			}
			t.Logf("\t%s\tTest 0:\tShould verify two blocks and two events.", success)

			stats, err := st.Stats()
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to read stats: %v", failed, err)
			}

			if stats.Blocks != 2 || stats.Events != 2 || stats.Pending != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould report blocks[2] events[2] pending[0], got blocks[%d] events[%d] pending[%d].", failed, stats.Blocks, stats.Events, stats.Pending)
			}
			t.Logf("\t%s\tTest 0:\tShould report the committed counts.", success)

			if stats.EventCounts[event.KindTrade] != 1 || stats.EventCounts[event.KindLogin] != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould count events per kind, got %v.", failed, stats.EventCounts)
			}
			t.Logf("\t%s\tTest 0:\tShould count events per kind.", success)

			if stats.LastVerify == nil || stats.LastVerify.Blocks != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould carry the cached verification result, got %+v.", failed, stats.LastVerify)
			}
			if !stats.MiningAllowed {
				t.Fatalf("\t%s\tTest 0:\tShould keep mining allowed after a clean verification.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould carry the cached verification result.", success)
		}
	}
}

func Test_BlocksPage(t *testing.T) {
	t.Log("Given the need to list committed blocks by page.")
	{
		t.Log("\tTest 0:\tWhen listing two blocks per page over three blocks.")
		{
			st := newState(t, filepath.Join(t.TempDir(), "audit.db"), 1, 0)

			for i := 0; i < 2; i++ {
				if _, err := st.RecordTrade(fmt.Sprintf("page-trade-%d", i), event.Trade{Symbol: "BTC/USDT", Side: "buy", Quantity: 1, Price: 40000}); err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould be able to record trade: %v", failed, err)
				}
				if _, err := st.ForceMine(context.Background()); err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould be able to mine a block: %v", failed, err)
				}
			}

			blocks, total, err := st.BlocksPage(1, 2)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to read page 1: %v", failed, err)
			}
			if total != 3 || len(blocks) != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould report total[3] and two blocks, got total[%d] blocks[%d].", failed, total, len(blocks))
			}
			if blocks[0].Header.Number != 0 || blocks[1].Header.Number != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould list blocks ascending from genesis.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould list the first page ascending from genesis.", success)

			blocks, _, err = st.BlocksPage(2, 2)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to read page 2: %v", failed, err)
			}
			if len(blocks) != 1 || blocks[0].Header.Number != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould list the tip on page 2, got %d blocks.", failed, len(blocks))
			}
			t.Logf("\t%s\tTest 0:\tShould list the tip on page 2.", success)
		}
	}
}

// =============================================================================

func newState(t *testing.T, dbPath string, difficulty uint16, attemptCeiling uint64) *state.State {
	t.Helper()

	gen := genesis.Genesis{
		Date:          time.Now().UTC(),
		ChainID:       "test",
		Difficulty:    difficulty,
		TransPerBlock: 10,
	}

	st, err := state.New(state.Config{
		DBPath:         dbPath,
		Genesis:        gen,
		MiningTimeout:  time.Minute,
		AttemptCeiling: attemptCeiling,
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the ledger: %v", failed, err)
	}
	t.Cleanup(func() { st.Shutdown() })

	return st
}
