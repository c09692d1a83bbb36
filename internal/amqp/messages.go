package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// MessageVersion is bumped whenever LedgerEvent changes incompatibly.
const MessageVersion = 1

type EventType string

const (
	TransactionCreated EventType = "transaction.created"
	TransactionUpdated EventType = "transaction.updated"
	TransactionDeleted EventType = "transaction.deleted"
	AccountCreated     EventType = "account.created"
	AccountUpdated     EventType = "account.updated"
	AccountDeleted     EventType = "account.deleted"
	BillPaid           EventType = "bill.paid"
	BillUnpaid         EventType = "bill.unpaid"
)

// LedgerEvent announces a committed change to the ledger of one user.
// Consumers reload whatever they need from the store.
type LedgerEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	AppID      string    `json:"appId"`
	UserID     string    `json:"userId"`
	Collection string    `json:"collection"`
	DocumentID string    `json:"documentId"`
	// AccountIDs lists every account whose balance the change touched.
	AccountIDs []string `json:"accountIds,omitempty"`
	// Transaction carries the affected transaction document when there is
	// one, so consumers of deletions still see what was removed.
	Transaction json.RawMessage `json:"transaction,omitempty"`
	Version     int             `json:"version"`
	Timestamp   time.Time       `json:"timestamp"`
}

func NewLedgerEvent(t EventType, appID, userID, collection, documentID string, accountIDs ...string) *LedgerEvent {
	return &LedgerEvent{
		ID:         uuid.NewString(),
		Type:       t,
		AppID:      appID,
		UserID:     userID,
		Collection: collection,
		DocumentID: documentID,
		AccountIDs: accountIDs,
		Version:    MessageVersion,
		Timestamp:  time.Now(),
	}
}

func (m *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var msg LedgerEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type == "" || msg.UserID == "" {
		return nil, errors.New("ledger event missing type or user")
	}
	return &msg, nil
}
