package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Operation names the ledger mutation that produced a change message.
type Operation string

const (
	OpCreate         Operation = "create"
	OpUpdate         Operation = "update"
	OpTransferStatus Operation = "transfer_status"
	OpDelete         Operation = "delete"
	OpBadDebt        Operation = "bad_debt"
	OpFlush          Operation = "flush"
)

// LedgerChangeMessage announces that a table changed. It carries no row
// data: consumers read the current snapshot of Store from the primary
// backend, so replaying or reordering messages is harmless.
type LedgerChangeMessage struct {
	Operation Operation `json:"operation"`
	Store     string    `json:"store"`
	Serial    int       `json:"serial,omitempty"`
	Customer  string    `json:"customer,omitempty"`
	Revision  uint64    `json:"revision"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerChangeMessage(op Operation, store string, serial int, customer string, revision uint64) *LedgerChangeMessage {
	return &LedgerChangeMessage{
		Operation: op,
		Store:     store,
		Serial:    serial,
		Customer:  customer,
		Revision:  revision,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerChangeMessageFromJSON decodes and checks a message body.
func LedgerChangeMessageFromJSON(data []byte) (*LedgerChangeMessage, error) {
	var msg LedgerChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Store == "" {
		return nil, fmt.Errorf("change message without store")
	}
	return &msg, nil
}
