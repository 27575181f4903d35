package public

import "github.com/kryptobot/auditchain/foundation/ledger/event"

// The record models carry an optional caller-supplied id used for
// deduplication. An empty id gets a generated one.

type newTrade struct {
	ID string `json:"id"`
	event.Trade
}

type newOrder struct {
	ID string `json:"id"`
	event.Order
}

type newSystemChange struct {
	ID string `json:"id"`
	event.SystemChange
}

type newLogin struct {
	ID string `json:"id"`
	event.Login
}

type newConfigChange struct {
	ID string `json:"id"`
	event.ConfigChange
}

// recorded is the response for a successful record call.
type recorded struct {
	Status string      `json:"status"`
	Event  event.Event `json:"event"`
}
