package kafka

import (
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
)

func TestNewPaymentEvent(t *testing.T) {
	event := NewPaymentEvent(EventTypePaymentCompleted, "tx-1", map[string]interface{}{
		"provider_tx_id": "wompi_123",
	})

	if event.EventType != EventTypePaymentCompleted {
		t.Fatalf("unexpected event type: %s", event.EventType)
	}
	if event.TransactionID != "tx-1" {
		t.Fatalf("unexpected transaction id: %s", event.TransactionID)
	}
	if event.Timestamp.IsZero() {
		t.Fatal("timestamp must be set")
	}

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded PaymentEvent
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Metadata["provider_tx_id"] != "wompi_123" {
		t.Fatalf("metadata lost: %+v", decoded.Metadata)
	}
}

func TestParsePaymentEvent(t *testing.T) {
	event, err := ParsePaymentEvent([]byte(`{"event_type":"payment.completed","transaction_id":"tx-1"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.EventType != EventTypePaymentCompleted {
		t.Fatalf("unexpected event type: %s", event.EventType)
	}
	if event.TransactionID != "tx-1" {
		t.Fatalf("unexpected transaction id: %s", event.TransactionID)
	}

	if _, err := ParsePaymentEvent([]byte("{")); err == nil {
		t.Fatal("expected error for malformed json")
	}
	if _, err := ParsePaymentEvent([]byte("{}")); err == nil {
		t.Fatal("expected error for missing event_type")
	}
}

func TestRetryCountFromHeaders(t *testing.T) {
	headers := []*sarama.RecordHeader{
		{Key: []byte(HeaderOriginalTopic), Value: []byte(TopicPaymentEvents)},
		{Key: []byte(HeaderRetryCount), Value: []byte("2")},
	}

	if got := retryCountFromHeaders(headers); got != 2 {
		t.Fatalf("retry count = %d, want 2", got)
	}
	if got := retryCountFromHeaders(nil); got != 0 {
		t.Fatalf("retry count = %d, want 0", got)
	}
	if got := OriginalTopic(headers); got != TopicPaymentEvents {
		t.Fatalf("original topic = %q", got)
	}
}
