package amqp

import (
	"encoding/json"
	"time"
)

// ExpenseCreatedMessage announces a newly recorded expense. It carries only
// the id; the consumer fetches the full record from the database so the queue
// never becomes a second source of truth.
type ExpenseCreatedMessage struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewExpenseCreatedMessage(id, userID int64) *ExpenseCreatedMessage {
	return &ExpenseCreatedMessage{
		ID:        id,
		UserID:    userID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *ExpenseCreatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseCreatedMessageFromJSON creates a message from JSON bytes.
func ExpenseCreatedMessageFromJSON(data []byte) (*ExpenseCreatedMessage, error) {
	var msg ExpenseCreatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
