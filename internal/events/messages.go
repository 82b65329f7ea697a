package events

import (
	"encoding/json"
	"time"
)

// Actions carried by a TransactionEvent.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// TransactionEvent is a lightweight notification of a write to a user's
// transaction set. Consumers that need the full record fetch it themselves.
type TransactionEvent struct {
	TransactionID int64     `json:"transactionId"`
	UserID        int64     `json:"userId"`
	Action        string    `json:"action"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// NewTransactionEvent stamps an event with the current time.
func NewTransactionEvent(transactionID, userID int64, action string) TransactionEvent {
	return TransactionEvent{
		TransactionID: transactionID,
		UserID:        userID,
		Action:        action,
		OccurredAt:    time.Now().UTC(),
	}
}

func (e TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func TransactionEventFromJSON(data []byte) (TransactionEvent, error) {
	var e TransactionEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return TransactionEvent{}, err
	}
	return e, nil
}
