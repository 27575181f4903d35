package event_test

import (
	"errors"
	"testing"

	"github.com/kryptobot/auditchain/foundation/ledger/event"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// =============================================================================

func Test_Validation(t *testing.T) {
	type table struct {
		name    string
		kind    event.Kind
		payload any
		valid   bool
	}

	tt := []table{
		{
			name:    "trade",
			kind:    event.KindTrade,
			payload: event.Trade{Symbol: "BTC/USD", Side: "buy", Quantity: 0.5, Price: 42000},
			valid:   true,
		},
		{
			name:    "trade missing symbol",
			kind:    event.KindTrade,
			payload: event.Trade{Side: "buy", Quantity: 0.5, Price: 42000},
			valid:   false,
		},
		{
			name:    "trade bad side",
			kind:    event.KindTrade,
			payload: event.Trade{Symbol: "BTC/USD", Side: "hold", Quantity: 0.5, Price: 42000},
			valid:   false,
		},
		{
			name:    "trade zero quantity",
			kind:    event.KindTrade,
			payload: event.Trade{Symbol: "BTC/USD", Side: "sell", Price: 42000},
			valid:   false,
		},
		{
			name:    "market order without price",
			kind:    event.KindOrder,
			payload: event.Order{Symbol: "ETH/USD", Side: "sell", Type: "market", Quantity: 2},
			valid:   true,
		},
		{
			name:    "limit order without price",
			kind:    event.KindOrder,
			payload: event.Order{Symbol: "ETH/USD", Side: "sell", Type: "limit", Quantity: 2},
			valid:   false,
		},
		{
			name:    "login",
			kind:    event.KindLogin,
			payload: event.Login{User: "operator", Success: true},
			valid:   true,
		},
		{
			name:    "config change missing new value",
			kind:    event.KindConfigChange,
			payload: event.ConfigChange{Key: "risk.max_positions"},
			valid:   false,
		},
		{
			name:    "payload kind mismatch",
			kind:    event.KindTrade,
			payload: event.Login{User: "operator"},
			valid:   false,
		},
	}

	t.Log("Given the need to validate event payloads at construction.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen constructing a %s event.", testID, tst.name)
			{
				f := func(t *testing.T) {
					evt, err := event.New("", tst.kind, tst.payload)

					if tst.valid {
						if err != nil {
							t.Fatalf("\t%s\tTest %d:\tShould accept a valid payload: %v", failed, testID, err)
						}
						t.Logf("\t%s\tTest %d:\tShould accept a valid payload.", success, testID)

						if evt.ID == "" {
							t.Errorf("\t%s\tTest %d:\tShould generate an id when none is provided.", failed, testID)
						} else {
							t.Logf("\t%s\tTest %d:\tShould generate an id when none is provided.", success, testID)
						}
						return
					}

					if err == nil {
						t.Fatalf("\t%s\tTest %d:\tShould reject an invalid payload.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould reject an invalid payload.", success, testID)

					if !errors.Is(err, event.ErrInvalidEvent) {
						t.Errorf("\t%s\tTest %d:\tShould wrap ErrInvalidEvent: got %v", failed, testID, err)
					} else {
						t.Logf("\t%s\tTest %d:\tShould wrap ErrInvalidEvent.", success, testID)
					}
				}

				t.Run(tst.name, f)
			}
		}
	}
}

func Test_PayloadRoundTrip(t *testing.T) {
	t.Log("Given the need to decode a stored payload back into its variant.")
	{
		trade := event.Trade{Symbol: "SOL/USD", Side: "buy", Quantity: 10, Price: 150.25, Strategy: "momentum"}

		evt, err := event.NewTrade("trade-1", trade)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct the event: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to construct the event.", success)

		var got event.Trade
		if err := evt.DecodePayload(&got); err != nil {
			t.Fatalf("\t%s\tShould be able to decode the payload: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to decode the payload.", success)

		if got != trade {
			t.Errorf("\t%s\tShould round trip the payload.", failed)
			t.Logf("\t%s\tgot: %+v", failed, got)
			t.Logf("\t%s\texp: %+v", failed, trade)
		} else {
			t.Logf("\t%s\tShould round trip the payload.", success)
		}
	}
}
