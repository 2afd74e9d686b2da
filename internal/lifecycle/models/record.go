package models

import (
	"encoding/json"
	"fmt"

	"racepass/internal/credential"
	"racepass/pkg/platform/sentinel"
)

// RecordVersion is the current persisted SubjectState layout.
const RecordVersion = 1

type record struct {
	Version int           `json:"version"`
	State   *SubjectState `json:"state"`
}

// MarshalRecord encodes s as a versioned canonical JSON record.
func MarshalRecord(s *SubjectState) ([]byte, error) {
	return credential.Canonical(record{Version: RecordVersion, State: s})
}

// UnmarshalRecord decodes a record and checks that the fingerprint recomputed
// from the decoded credential equals the stored one.
func UnmarshalRecord(data []byte) (*SubjectState, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode subject record: %w", err)
	}
	if r.Version != RecordVersion {
		return nil, fmt.Errorf("subject record version %d: %w", r.Version, sentinel.ErrStaleVersion)
	}
	if r.State == nil {
		return nil, fmt.Errorf("subject record without state: %w", sentinel.ErrInvalidState)
	}
	fp, err := credential.Fingerprint(r.State.Credential)
	if err != nil {
		return nil, fmt.Errorf("recompute fingerprint: %w", err)
	}
	if fp != r.State.Fingerprint {
		return nil, fmt.Errorf("fingerprint mismatch for %s: %w", r.State.Subject, sentinel.ErrInvalidState)
	}
	return r.State, nil
}
