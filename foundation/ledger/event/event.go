// Package event defines the audit event variants that can be recorded
// into the ledger and the validation applied at construction time.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kryptobot/auditchain/foundation/validate"
)

// ErrInvalidEvent is returned when an event payload is missing required
// fields or carries malformed values. Such events never enter the pool.
var ErrInvalidEvent = errors.New("invalid event")

// Kind identifies the variant of an audit event.
type Kind string

// Set of event kinds the ledger accepts.
const (
	KindTrade        Kind = "trade"
	KindOrder        Kind = "order"
	KindSystemChange Kind = "system_change"
	KindLogin        Kind = "login"
	KindConfigChange Kind = "config_change"
)

// Kinds returns the set of accepted event kinds.
func Kinds() []Kind {
	return []Kind{KindTrade, KindOrder, KindSystemChange, KindLogin, KindConfigChange}
}

// ParseKind validates the specified string represents a known event kind.
func ParseKind(value string) (Kind, error) {
	kind := Kind(value)
	switch kind {
	case KindTrade, KindOrder, KindSystemChange, KindLogin, KindConfigChange:
		return kind, nil
	}

	return "", fmt.Errorf("unknown event kind %q: %w", value, ErrInvalidEvent)
}

// =============================================================================

// Trade represents an executed trade reported by the trading engine.
type Trade struct {
	Symbol   string  `json:"symbol" validate:"required"`
	Side     string  `json:"side" validate:"required,oneof=buy sell"`
	Quantity float64 `json:"quantity" validate:"required,gt=0"`
	Price    float64 `json:"price" validate:"required,gt=0"`
	OrderID  string  `json:"order_id,omitempty"`
	Strategy string  `json:"strategy,omitempty"`
}

// Order represents an order placed or cancelled with the broker.
type Order struct {
	Symbol   string  `json:"symbol" validate:"required"`
	Side     string  `json:"side" validate:"required,oneof=buy sell"`
	Type     string  `json:"type" validate:"required,oneof=market limit stop"`
	Quantity float64 `json:"quantity" validate:"required,gt=0"`
	Price    float64 `json:"price,omitempty" validate:"required_unless=Type market,omitempty,gt=0"`
	Status   string  `json:"status,omitempty"`
}

// SystemChange represents a lifecycle or operational change in the system.
type SystemChange struct {
	Component string `json:"component" validate:"required"`
	Action    string `json:"action" validate:"required"`
	Detail    string `json:"detail,omitempty"`
}

// Login represents an authentication attempt against the system.
type Login struct {
	User       string `json:"user" validate:"required"`
	Success    bool   `json:"success"`
	RemoteAddr string `json:"remote_addr,omitempty"`
	Method     string `json:"method,omitempty"`
}

// ConfigChange represents a configuration value being modified.
type ConfigChange struct {
	Key       string `json:"key" validate:"required"`
	OldValue  string `json:"old_value,omitempty"`
	NewValue  string `json:"new_value" validate:"required"`
	ChangedBy string `json:"changed_by,omitempty"`
}

// =============================================================================

// Event represents a single validated audit event. Events are immutable
// once constructed and are deduplicated by ID across the pool and chain.
type Event struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

// New constructs an event of the specified kind after validating the
// payload's required fields. An empty id is replaced with a generated one.
func New(id string, kind Kind, payload any) (Event, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return Event{}, err
	}

	if err := checkPayload(kind, payload); err != nil {
		return Event{}, err
	}

	if err := validate.Check(payload); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("%w: marshal payload: %w", ErrInvalidEvent, err)
	}

	if id == "" {
		id = uuid.NewString()
	}

	evt := Event{
		ID:        id,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
		Payload:   data,
	}

	return evt, nil
}

// NewTrade constructs a validated trade event.
func NewTrade(id string, trade Trade) (Event, error) {
	return New(id, KindTrade, trade)
}

// NewOrder constructs a validated order event.
func NewOrder(id string, order Order) (Event, error) {
	return New(id, KindOrder, order)
}

// NewSystemChange constructs a validated system change event.
func NewSystemChange(id string, change SystemChange) (Event, error) {
	return New(id, KindSystemChange, change)
}

// NewLogin constructs a validated login event.
func NewLogin(id string, login Login) (Event, error) {
	return New(id, KindLogin, login)
}

// NewConfigChange constructs a validated config change event.
func NewConfigChange(id string, change ConfigChange) (Event, error) {
	return New(id, KindConfigChange, change)
}

// DecodePayload unmarshals the event payload into the specified value.
func (evt Event) DecodePayload(val any) error {
	return json.Unmarshal(evt.Payload, val)
}

// String implements the fmt.Stringer interface for logging.
func (evt Event) String() string {
	return fmt.Sprintf("%s:%s", evt.Kind, evt.ID)
}

// =============================================================================

// checkPayload makes sure the payload's Go type matches the declared kind.
func checkPayload(kind Kind, payload any) error {
	var ok bool

	switch kind {
	case KindTrade:
		_, ok = payload.(Trade)
	case KindOrder:
		_, ok = payload.(Order)
	case KindSystemChange:
		_, ok = payload.(SystemChange)
	case KindLogin:
		_, ok = payload.(Login)
	case KindConfigChange:
		_, ok = payload.(ConfigChange)
	}

	if !ok {
		return fmt.Errorf("payload type %T does not match kind %q: %w", payload, kind, ErrInvalidEvent)
	}

	return nil
}
