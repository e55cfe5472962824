package amqp

import (
	"testing"
	"time"
)

func TestExpenseCreatedMessageRoundTrip(t *testing.T) {
	msg := NewExpenseCreatedMessage(42, 7)
	if msg.ID != 42 || msg.UserID != 7 {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if time.Since(msg.Timestamp) > time.Minute {
		t.Fatal("timestamp should be set to now")
	}

	body, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	decoded, err := ExpenseCreatedMessageFromJSON(body)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.ID != msg.ID || decoded.UserID != msg.UserID {
		t.Fatalf("round trip mismatch: %+v vs %+v", decoded, msg)
	}
}

func TestExpenseCreatedMessageFromJSONInvalid(t *testing.T) {
	if _, err := ExpenseCreatedMessageFromJSON([]byte("{not json")); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestCloseWithNilConnections(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Fatalf("close on zero client: %v", err)
	}
}
