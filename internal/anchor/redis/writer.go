// Package redis anchors fingerprints into a Redis hash acting as a shared ledger.
package redis

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/ethereum/go-ethereum/common"
	goredis "github.com/redis/go-redis/v9"

	"racepass/internal/anchor"
	"racepass/pkg/domain"
)

// DefaultKey is the ledger hash name.
const DefaultKey = "racepass:anchors"

// Writer stores subject -> fingerprint with HSET.
type Writer struct {
	client goredis.Cmdable
	key    string
}

func New(client goredis.Cmdable, key string) *Writer {
	if key == "" {
		key = DefaultKey
	}
	return &Writer{client: client, key: key}
}

func (w *Writer) Anchor(ctx context.Context, subject domain.SubjectID, fingerprint common.Hash) (string, error) {
	if err := w.client.HSet(ctx, w.key, subject.String(), fingerprint.Hex()).Err(); err != nil {
		return "", classify(err)
	}
	return fmt.Sprintf("redis:%s/%s", w.key, subject.String()), nil
}

func (w *Writer) IsAnchored(ctx context.Context, subject domain.SubjectID) (bool, error) {
	ok, err := w.client.HExists(ctx, w.key, subject.String()).Result()
	if err != nil {
		return false, classify(err)
	}
	return ok, nil
}

// Fingerprint returns the anchored fingerprint for subject.
func (w *Writer) Fingerprint(ctx context.Context, subject domain.SubjectID) (common.Hash, bool, error) {
	v, err := w.client.HGet(ctx, w.key, subject.String()).Result()
	if errors.Is(err, goredis.Nil) {
		return common.Hash{}, false, nil
	}
	if err != nil {
		return common.Hash{}, false, classify(err)
	}
	return common.HexToHash(v), true, nil
}

func classify(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, goredis.ErrClosed) {
		return fmt.Errorf("%w: %w", anchor.ErrUnavailable, err)
	}
	return err
}
