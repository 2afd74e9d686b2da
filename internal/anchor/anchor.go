// Package anchor publishes credential fingerprints to external chain writers.
// The core does not depend on which chain, or how many, sit behind it.
package anchor

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"racepass/pkg/domain"
	dErrors "racepass/pkg/domain-errors"
)

// ReasonCancelled is recorded when the caller gave up before an adapter answered.
const ReasonCancelled = "cancelled"

// Writer is the port to one chain writer. Anchor returns an opaque transaction
// reference on success.
type Writer interface {
	Anchor(ctx context.Context, subject domain.SubjectID, fingerprint common.Hash) (txRef string, err error)
	IsAnchored(ctx context.Context, subject domain.SubjectID) (bool, error)
}

// Named pairs a writer with its registry name. Order is call order.
type Named struct {
	Name   string
	Writer Writer
}

// Result is the receipt recorded for one writer. Failures are data, never errors.
type Result struct {
	Chain      string       `json:"chain"`
	Success    bool         `json:"success"`
	Code       dErrors.Code `json:"code,omitempty"`
	TxRef      string       `json:"txRef,omitempty"`
	Reason     string       `json:"reason,omitempty"`
	AnchoredAt *time.Time   `json:"anchoredAt,omitempty"`
}

// Results maps writer name to receipt.
type Results map[string]Result

// AnySucceeded reports whether at least one writer anchored the fingerprint.
func (r Results) AnySucceeded() bool {
	for _, res := range r {
		if res.Success {
			return true
		}
	}
	return false
}

func succeeded(chain, txRef string, at time.Time) Result {
	return Result{Chain: chain, Success: true, TxRef: txRef, AnchoredAt: &at}
}

func failed(chain string, code dErrors.Code, reason string) Result {
	return Result{Chain: chain, Success: false, Code: code, Reason: reason}
}

func cancelled(chain string) Result {
	return failed(chain, dErrors.CodeAnchorFailure, ReasonCancelled)
}
