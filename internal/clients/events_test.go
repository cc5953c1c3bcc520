package clients

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"pawedaran/internal/domain"

	"github.com/shopspring/decimal"
)

func TestPaymentRecord(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	debt := domain.Debt{
		ID:            "0b5c4f0e-1111-4c3a-9a55-5d1c2c7b9e01",
		UserID:        42,
		TotalDebt:     decimal.NewFromInt(1000000),
		PaidAmount:    decimal.NewFromInt(1000000),
		RemainingDebt: decimal.Zero,
	}
	payment := domain.DebtPayment{ID: "p-1", DebtID: debt.ID, UserID: 42, Amount: decimal.NewFromInt(800000), CreatedAt: at}

	record, err := PaymentRecord("pawedaran.debt.payments", NewPaymentEvent(debt, payment))
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	if record.Topic != "pawedaran.debt.payments" {
		t.Fatalf("unexpected topic %s", record.Topic)
	}
	if string(record.Key) != debt.ID {
		t.Fatalf("expected key %s, got %s", debt.ID, record.Key)
	}
	if len(record.Headers) != 1 || string(record.Headers[0].Value) != EventPaymentApplied {
		t.Fatalf("unexpected headers %+v", record.Headers)
	}

	var got map[string]interface{}
	if err := json.Unmarshal(record.Value, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["type"] != EventPaymentApplied {
		t.Errorf("expected type %s, got %v", EventPaymentApplied, got["type"])
	}
	if got["amount"] != "800000" {
		t.Errorf("expected amount 800000, got %v", got["amount"])
	}
	if got["remaining_debt"] != "0" {
		t.Errorf("expected remaining_debt 0, got %v", got["remaining_debt"])
	}
	if got["occurred_at"] != "2026-03-01T10:00:00Z" {
		t.Errorf("unexpected occurred_at %v", got["occurred_at"])
	}
}

func TestKafkaPublisher_PublishIsBoundedWhenBrokerIsDown(t *testing.T) {
	publisher, err := NewKafkaPublisher(KafkaConfig{
		Brokers:        []string{"127.0.0.1:1"},
		ClientID:       "pawedaran-test",
		Topic:          "pawedaran.debt.payments",
		PublishTimeout: 200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	defer publisher.Close()

	ev := PaymentEvent{Type: EventPaymentApplied, DebtID: "d-1", PaymentID: "p-1"}

	start := time.Now()
	err = publisher.PublishPaymentApplied(context.Background(), ev)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected an error with no reachable broker")
	}
	if elapsed > 3*time.Second {
		t.Fatalf("publish blocked for %v, expected it to give up after the publish timeout", elapsed)
	}
}
