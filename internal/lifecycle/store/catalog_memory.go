package store

import (
	"context"
	"sort"
	"sync"

	"racepass/internal/lifecycle/models"
	"racepass/pkg/domain"
	"racepass/pkg/platform/sentinel"
)

// InMemoryEventCatalog holds event metadata for registration and scans.
type InMemoryEventCatalog struct {
	mu     sync.RWMutex
	events map[domain.EventID]models.Event
}

func NewInMemoryEventCatalog(events ...models.Event) *InMemoryEventCatalog {
	c := &InMemoryEventCatalog{events: make(map[domain.EventID]models.Event, len(events))}
	for _, e := range events {
		c.events[e.ID] = e
	}
	return c
}

func (c *InMemoryEventCatalog) FindEvent(_ context.Context, id domain.EventID) (*models.Event, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.events[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &e, nil
}

func (c *InMemoryEventCatalog) UpsertEvent(_ context.Context, event models.Event) error {
	if event.Capacity < 0 {
		return sentinel.ErrInvalidInput
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[event.ID] = event
	return nil
}

// ListEvents returns events ordered by id.
func (c *InMemoryEventCatalog) ListEvents(_ context.Context) ([]models.Event, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Event, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
