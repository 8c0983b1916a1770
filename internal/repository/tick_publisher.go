package repository

import (
	"context"

	"OTCPulse/internal/domain/models"
	domrepo "OTCPulse/internal/domain/repository"
	pkgkafka "OTCPulse/pkg/kafka"
)

// KafkaTickPublisher broadcasts ticks and settlements over Kafka,
// keyed by instrument so per-instrument ordering is preserved.
type KafkaTickPublisher struct {
	producer         *pkgkafka.Producer
	ticksTopic       string
	settlementsTopic string
}

func NewKafkaTickPublisher(producer *pkgkafka.Producer, ticksTopic, settlementsTopic string) *KafkaTickPublisher {
	return &KafkaTickPublisher{
		producer:         producer,
		ticksTopic:       ticksTopic,
		settlementsTopic: settlementsTopic,
	}
}

func (p *KafkaTickPublisher) PublishTick(ctx context.Context, t *models.Tick) error {
	return p.producer.Publish(ctx, p.ticksTopic, []byte(t.Instrument), t)
}

func (p *KafkaTickPublisher) PublishSettlement(ctx context.Context, s *models.Settlement) error {
	return p.producer.Publish(ctx, p.settlementsTopic, []byte(s.Instrument), s)
}

func (p *KafkaTickPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var _ domrepo.TickPublisher = (*KafkaTickPublisher)(nil)
