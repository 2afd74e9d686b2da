// Package kafka hands fingerprints to an external chain writer through a Kafka
// topic. A published record counts as anchored; the chain transaction itself
// is the consumer's concern.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"racepass/internal/platform/kafka/consumer"
	"racepass/internal/platform/kafka/producer"
	"racepass/pkg/domain"
)

// Publisher is the subset of producer.Producer the writer needs.
type Publisher interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// Message is the JSON record published per anchoring request.
type Message struct {
	Subject     string    `json:"subject"`
	Fingerprint string    `json:"fingerprint"`
	RequestedAt time.Time `json:"requestedAt"`
}

// Writer publishes anchoring requests. IsAnchored reflects records this
// process has published plus any replayed through Handle.
type Writer struct {
	publisher Publisher
	topic     string
	now       func() time.Time

	mu        sync.RWMutex
	published map[domain.SubjectID]string
}

func New(publisher Publisher, topic string) *Writer {
	return &Writer{
		publisher: publisher,
		topic:     topic,
		now:       time.Now,
		published: make(map[domain.SubjectID]string),
	}
}

func (w *Writer) Anchor(ctx context.Context, subject domain.SubjectID, fingerprint common.Hash) (string, error) {
	value, err := json.Marshal(Message{
		Subject:     subject.String(),
		Fingerprint: fingerprint.Hex(),
		RequestedAt: w.now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("encode anchor message: %w", err)
	}
	err = w.publisher.Produce(ctx, &producer.Message{
		Topic:   w.topic,
		Key:     []byte(subject.String()),
		Value:   value,
		Headers: map[string]string{"content-type": "application/json"},
	})
	if err != nil {
		return "", fmt.Errorf("publish anchor request: %w", err)
	}
	return w.remember(subject, fingerprint), nil
}

func (w *Writer) remember(subject domain.SubjectID, fingerprint common.Hash) string {
	ref := fmt.Sprintf("kafka:%s:%s", w.topic, fingerprint.Hex())
	w.mu.Lock()
	w.published[subject] = ref
	w.mu.Unlock()
	return ref
}

// Handle replays a record from the anchor topic into the published index.
// Records that do not decode are skipped.
func (w *Writer) Handle(_ context.Context, msg *consumer.Message) error {
	if msg.Topic != w.topic {
		return nil
	}
	var m Message
	if err := json.Unmarshal(msg.Value, &m); err != nil {
		return nil
	}
	subject, err := domain.ParseSubjectID(m.Subject)
	if err != nil {
		return nil
	}
	fp, err := hexutil.Decode(m.Fingerprint)
	if err != nil || len(fp) != common.HashLength {
		return nil
	}
	w.remember(subject, common.BytesToHash(fp))
	return nil
}

func (w *Writer) IsAnchored(_ context.Context, subject domain.SubjectID) (bool, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.published[subject]
	return ok, nil
}
