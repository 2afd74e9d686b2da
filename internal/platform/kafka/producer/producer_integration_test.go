//go:build integration

package producer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"racepass/internal/platform/config"
	"racepass/internal/platform/kafka/producer"
	"racepass/pkg/testutil/containers"
)

type ProducerIntegrationSuite struct {
	suite.Suite
	kafka    *containers.KafkaContainer
	producer *producer.Producer
}

func TestProducerIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ProducerIntegrationSuite))
}

func (s *ProducerIntegrationSuite) SetupSuite() {
	s.kafka = containers.GetManager().GetKafka(s.T())

	prod, err := producer.New(config.KafkaConfig{Brokers: []string{s.kafka.Brokers}, ClientID: "racepass-test"}, nil,
		producer.WithDeliveryTimeout(10*time.Second))
	s.Require().NoError(err)
	s.producer = prod
}

func (s *ProducerIntegrationSuite) TearDownSuite() {
	if s.producer != nil {
		s.Require().NoError(s.producer.Close())
	}
}

func (s *ProducerIntegrationSuite) TestProduceWaitsForAcknowledgement() {
	ctx := context.Background()
	topic := "producer-ack"
	s.Require().NoError(s.kafka.CreateTopic(ctx, topic, 1, 1))

	err := s.producer.Produce(ctx, &producer.Message{
		Topic:   topic,
		Key:     []byte("subject-key"),
		Value:   []byte(`{"ok":true}`),
		Headers: map[string]string{"content-type": "application/json"},
	})
	s.Require().NoError(err)

	consumer, err := s.kafka.NewConsumer(ctx, "producer-ack-group", topic)
	s.Require().NoError(err)
	defer consumer.Close()

	record := s.kafka.WaitForMessage(ctx, consumer, 10*time.Second, func(r *kgo.Record) bool {
		return string(r.Key) == "subject-key"
	})
	s.Require().NotNil(record)
	s.Equal(`{"ok":true}`, string(record.Value))
	s.Require().Len(record.Headers, 1)
	s.Equal("content-type", record.Headers[0].Key)
}

func (s *ProducerIntegrationSuite) TestHealthAndClose() {
	prod, err := producer.New(config.KafkaConfig{Brokers: []string{s.kafka.Brokers}}, nil)
	s.Require().NoError(err)
	s.Require().NoError(prod.Health(context.Background()))

	s.Require().NoError(prod.Close())
	s.Error(prod.Health(context.Background()))
	s.Error(prod.Produce(context.Background(), &producer.Message{Topic: "x"}))
}
