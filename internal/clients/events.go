package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"pawedaran/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

const EventPaymentApplied = "debt.payment.applied"

const defaultPublishTimeout = 5 * time.Second

type KafkaConfig struct {
	Brokers           []string
	ClientID          string
	Topic             string
	Partitions        int
	ReplicationFactor int16
	// PublishTimeout bounds a single produce; the request that triggered it waits at most this long.
	PublishTimeout time.Duration
}

// PaymentEvent is published after a ledger transaction commits.
type PaymentEvent struct {
	SchemaVersion int             `json:"schema_version"`
	Type          string          `json:"type"`
	DebtID        string          `json:"debt_id"`
	PaymentID     string          `json:"payment_id"`
	UserID        int64           `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	RemainingDebt decimal.Decimal `json:"remaining_debt"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func NewPaymentEvent(debt domain.Debt, payment domain.DebtPayment) PaymentEvent {
	return PaymentEvent{
		SchemaVersion: 1,
		Type:          EventPaymentApplied,
		DebtID:        debt.ID,
		PaymentID:     payment.ID,
		UserID:        debt.UserID,
		Amount:        payment.Amount,
		PaidAmount:    debt.PaidAmount,
		RemainingDebt: debt.RemainingDebt,
		OccurredAt:    payment.CreatedAt,
	}
}

// PaymentRecord keys records by debt id so every event of a debt lands on the same partition.
func PaymentRecord(topic string, ev PaymentEvent) (*kgo.Record, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal payment event: %w", err)
	}
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(ev.DebtID),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "type", Value: []byte(ev.Type)},
		},
	}, nil
}

type KafkaPublisher struct {
	client *kgo.Client
	cfg    KafkaConfig
}

func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaPublisher{client: client, cfg: cfg}, nil
}

// EnsureTopic creates the payments topic, treating "already exists" as success.
func (p *KafkaPublisher) EnsureTopic(ctx context.Context) error {
	adm := kadm.NewClient(p.client)

	partitions := p.cfg.Partitions
	if partitions <= 0 {
		partitions = 1
	}
	rf := p.cfg.ReplicationFactor
	if rf <= 0 {
		rf = 1
	}

	resp, err := adm.CreateTopics(ctx, int32(partitions), rf, nil, p.cfg.Topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", p.cfg.Topic, err)
	}
	for _, detail := range resp {
		if detail.Err != nil && !strings.Contains(detail.Err.Error(), "already exists") {
			return fmt.Errorf("create topic %s: %w", detail.Topic, detail.Err)
		}
	}
	return nil
}

func (p *KafkaPublisher) PublishPaymentApplied(ctx context.Context, ev PaymentEvent) error {
	record, err := PaymentRecord(p.cfg.Topic, ev)
	if err != nil {
		return err
	}
	timeout := p.cfg.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce payment event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() {
	if p == nil || p.client == nil {
		return
	}
	p.client.Close()
}
