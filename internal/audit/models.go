package audit

import "time"

// Event is one activity-log entry. It carries identifiers and outcomes only;
// no personal data, nonces or signatures.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Subject   string    `json:"subject"`
	EventID   string    `json:"eventId,omitempty"`
	Action    Action    `json:"action"`
	Decision  string    `json:"decision,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
}

type Action string

const (
	ActionCredentialIssued    Action = "credential_issued"
	ActionCredentialRevoked   Action = "credential_revoked"
	ActionRegistrationCreated Action = "registration_created"
	ActionRegistrationDenied  Action = "registration_denied"
	ActionTicketScanned       Action = "ticket_scanned"
	ActionThirdPartyCheck     Action = "third_party_check"
	ActionScoreOverridden     Action = "score_overridden"
)

const (
	DecisionGranted = "granted"
	DecisionDenied  = "denied"
)
