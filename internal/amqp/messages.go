package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"butce/internal/core"
)

// MessageTypeTransactionChanged is set as the AMQP type of change messages.
const MessageTypeTransactionChanged = "transaction.changed"

// TransactionChangedMessage tells the worker that a user's month changed.
// It carries no amounts; the worker reads the month from the store.
type TransactionChangedMessage struct {
	UserID    uuid.UUID `json:"userId"`
	Month     string    `json:"month"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTransactionChangedMessage(userID uuid.UUID, month string) *TransactionChangedMessage {
	return &TransactionChangedMessage{
		UserID:    userID,
		Month:     month,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *TransactionChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Period resolves the message month.
func (m *TransactionChangedMessage) Period() (core.MonthRange, error) {
	return core.ParseMonth(m.Month)
}

// TransactionChangedMessageFromJSON decodes and checks a message body.
func TransactionChangedMessageFromJSON(data []byte) (*TransactionChangedMessage, error) {
	var msg TransactionChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == uuid.Nil {
		return nil, fmt.Errorf("missing userId")
	}
	if _, err := msg.Period(); err != nil {
		return nil, fmt.Errorf("month %q: %w", msg.Month, err)
	}
	return &msg, nil
}
