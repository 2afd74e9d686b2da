// Package kafka holds broker-level helpers shared by producers.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

const defaultHealthTimeout = 3 * time.Second

// HealthChecker asks the cluster for its broker list over an existing client.
type HealthChecker struct {
	admin   *kadm.Client
	timeout time.Duration
}

// NewHealthChecker borrows client; closing the client stays with its owner.
func NewHealthChecker(client *kgo.Client) *HealthChecker {
	return &HealthChecker{
		admin:   kadm.NewClient(client),
		timeout: defaultHealthTimeout,
	}
}

// Check returns nil when the metadata response names at least one broker.
func (h *HealthChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	brokers, err := h.admin.ListBrokers(ctx)
	if err != nil {
		return fmt.Errorf("list kafka brokers: %w", err)
	}
	if len(brokers) == 0 {
		return errors.New("kafka metadata lists no brokers")
	}
	return nil
}
