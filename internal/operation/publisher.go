package operation

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Publisher streams history operations to downstream consumers (deprecation
// and release tooling). Records are keyed by source accession so consumers
// see one accession's events in order.
type Publisher struct {
	client *kgo.Client
	topic  string
}

// NewPublisher connects to the Kafka brokers. The caller owns Close.
func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("connect kafka: %w", err)
	}
	return &Publisher{client: client, topic: topic}, nil
}

// Publish emits one operation record, waiting for broker acknowledgement so
// the job does not advance past an unpersisted event.
func (p *Publisher) Publish(ctx context.Context, op Operation) error {
	value, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("marshal operation %s: %w", op.ID, err)
	}
	record := &kgo.Record{
		Key:   []byte(strconv.FormatUint(op.Accession, 10)),
		Value: value,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("publish operation %s: %w", op.ID, err)
	}
	return nil
}

func (p *Publisher) Close() {
	p.client.Close()
}

// Sink is the narrow interface the clustering job publishes through; a nil
// sink (no Kafka configured) is replaced by Discard.
type Sink interface {
	Publish(ctx context.Context, op Operation) error
}

// Discard drops operations; used when no feed is configured.
type Discard struct{}

func (Discard) Publish(context.Context, Operation) error { return nil }
