//go:build integration

package consumer_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"racepass/internal/platform/config"
	"racepass/internal/platform/kafka/consumer"
	"racepass/internal/platform/kafka/producer"
	"racepass/pkg/testutil/containers"
)

type ConsumerIntegrationSuite struct {
	suite.Suite
	kafka    *containers.KafkaContainer
	producer *producer.Producer
}

func TestConsumerIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ConsumerIntegrationSuite))
}

func (s *ConsumerIntegrationSuite) SetupSuite() {
	s.kafka = containers.GetManager().GetKafka(s.T())
	prod, err := producer.New(config.KafkaConfig{Brokers: []string{s.kafka.Brokers}}, nil)
	s.Require().NoError(err)
	s.producer = prod
}

func (s *ConsumerIntegrationSuite) TearDownSuite() {
	if s.producer != nil {
		s.Require().NoError(s.producer.Close())
	}
}

type collector struct {
	mu   sync.Mutex
	seen []*consumer.Message
}

func (c *collector) Handle(_ context.Context, msg *consumer.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, msg)
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (s *ConsumerIntegrationSuite) produce(topic string, n int) {
	ctx := context.Background()
	s.Require().NoError(s.kafka.CreateTopic(ctx, topic, 1, 1))
	for i := range n {
		s.Require().NoError(s.producer.Produce(ctx, &producer.Message{
			Topic:   topic,
			Key:     []byte(fmt.Sprintf("k-%d", i)),
			Value:   []byte(fmt.Sprintf("v-%d", i)),
			Headers: map[string]string{"content-type": "text/plain"},
		}))
	}
}

func (s *ConsumerIntegrationSuite) TestReplaysTopicFromStart() {
	topic := "racepass.consumer.replay"
	s.produce(topic, 3)

	h := &collector{}
	c, err := consumer.New(config.KafkaConfig{Brokers: []string{s.kafka.Brokers}}, "", []string{topic}, h, nil)
	s.Require().NoError(err)
	c.Start()
	defer func() { s.NoError(c.Stop(context.Background())) }()

	s.Eventually(func() bool { return h.count() == 3 }, 15*time.Second, 100*time.Millisecond)
	s.Require().NoError(c.Health(context.Background()))

	h.mu.Lock()
	defer h.mu.Unlock()
	s.Equal("k-0", string(h.seen[0].Key))
	s.Equal("v-2", string(h.seen[2].Value))
	s.Equal("text/plain", h.seen[0].Headers["content-type"])
	s.Equal(topic, h.seen[0].Topic)
}

func (s *ConsumerIntegrationSuite) TestGroupCommitsHandledRecords() {
	topic := "racepass.consumer.group"
	s.produce(topic, 2)
	cfg := config.KafkaConfig{Brokers: []string{s.kafka.Brokers}}

	first := &collector{}
	c, err := consumer.New(cfg, "racepass-consumer-test", []string{topic}, first, nil)
	s.Require().NoError(err)
	c.Start()
	s.Eventually(func() bool { return first.count() == 2 }, 15*time.Second, 100*time.Millisecond)
	s.Require().NoError(c.Stop(context.Background()))

	s.produce(topic, 1)
	second := &collector{}
	c, err = consumer.New(cfg, "racepass-consumer-test", []string{topic}, second, nil)
	s.Require().NoError(err)
	c.Start()
	defer func() { s.NoError(c.Stop(context.Background())) }()

	s.Eventually(func() bool { return second.count() >= 1 }, 15*time.Second, 100*time.Millisecond)
	second.mu.Lock()
	defer second.mu.Unlock()
	s.Equal(int64(2), second.seen[0].Offset)
}

func (s *ConsumerIntegrationSuite) TestStopIsIdempotent() {
	c, err := consumer.New(config.KafkaConfig{Brokers: []string{s.kafka.Brokers}}, "", []string{"racepass.consumer.idle"}, &collector{}, nil)
	s.Require().NoError(err)
	c.Start()
	s.Require().NoError(c.Stop(context.Background()))
	s.Require().NoError(c.Stop(context.Background()))
	s.Error(c.Health(context.Background()))
}
