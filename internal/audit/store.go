package audit

import "context"

// Store persists activity events. Implementations keep append order per
// subject.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
}
