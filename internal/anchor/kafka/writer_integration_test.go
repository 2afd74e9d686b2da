//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"racepass/internal/anchor"
	anchorkafka "racepass/internal/anchor/kafka"
	"racepass/internal/platform/config"
	"racepass/internal/platform/kafka/producer"
	"racepass/pkg/domain"
	"racepass/pkg/testutil/containers"
)

const topic = "racepass.anchors.test"

type WriterIntegrationSuite struct {
	suite.Suite
	kafka    *containers.KafkaContainer
	producer *producer.Producer
}

func TestWriterIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(WriterIntegrationSuite))
}

func (s *WriterIntegrationSuite) SetupSuite() {
	s.kafka = containers.GetManager().GetKafka(s.T())
	s.Require().NoError(s.kafka.CreateTopic(context.Background(), topic, 1, 1))

	prod, err := producer.New(config.KafkaConfig{Brokers: []string{s.kafka.Brokers}}, nil)
	s.Require().NoError(err)
	s.producer = prod
}

func (s *WriterIntegrationSuite) TearDownSuite() {
	if s.producer != nil {
		s.Require().NoError(s.producer.Close())
	}
}

func (s *WriterIntegrationSuite) TestDispatchedFingerprintIsPublished() {
	ctx := context.Background()
	subject := domain.MustSubjectID("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	fp := common.HexToHash("0x42")

	writer := anchorkafka.New(s.producer, topic)
	d := anchor.NewDispatcher([]anchor.Named{{Name: "kafka", Writer: writer}}, anchor.WithTimeout(15*time.Second))
	d.Start()
	defer d.Close()

	res := d.Anchor(ctx, subject, fp)["kafka"]
	s.Require().True(res.Success, res.Reason)
	s.Contains(res.TxRef, topic)
	s.Equal(map[string]bool{"kafka": true}, d.IsAnchored(ctx, subject))

	consumer, err := s.kafka.NewConsumer(ctx, "anchor-writer-test", topic)
	s.Require().NoError(err)
	defer consumer.Close()

	record := s.kafka.WaitForMessage(ctx, consumer, 10*time.Second, func(r *kgo.Record) bool {
		return string(r.Key) == subject.String()
	})
	s.Require().NotNil(record)

	var msg anchorkafka.Message
	s.Require().NoError(json.Unmarshal(record.Value, &msg))
	s.Equal(subject.String(), msg.Subject)
	s.Equal(fp.Hex(), msg.Fingerprint)
}
