//go:build integration

// Package containers starts the backing services integration tests run
// against. Each service is started once per test binary and shared; Ryuk
// removes the containers when the process exits.
package containers

import (
	"sync"
	"testing"
)

// Manager hands out the shared containers, starting each on first use.
type Manager struct {
	mu       sync.Mutex
	postgres *PostgresContainer
	kafka    *KafkaContainer
	redis    *RedisContainer
}

var (
	globalManager *Manager
	initOnce      sync.Once
)

// GetManager returns the process-wide manager.
func GetManager() *Manager {
	initOnce.Do(func() {
		globalManager = &Manager{}
	})
	return globalManager
}

func lazy[T any](m *Manager, slot **T, t *testing.T, start func(*testing.T) *T) *T {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if *slot == nil {
		*slot = start(t)
	}
	return *slot
}

// GetPostgres returns the shared PostgreSQL container with the lifecycle schema applied.
func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	return lazy(m, &m.postgres, t, NewPostgresContainer)
}

// GetKafka returns the shared Kafka-compatible broker.
func (m *Manager) GetKafka(t *testing.T) *KafkaContainer {
	return lazy(m, &m.kafka, t, NewKafkaContainer)
}

// GetRedis returns the shared Redis container.
func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	return lazy(m, &m.redis, t, NewRedisContainer)
}
