package approval

import "time"

// RequestStatus is the lifecycle state of an escalation request.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
	StatusExpired  RequestStatus = "expired"
	StatusRedeemed RequestStatus = "redeemed"
)

// Request is a persisted escalation request record. An approved request is
// a standing grant for exactly one re-evaluation of the same tool+command;
// redemption consumes it.
type Request struct {
	ID           string        `json:"id"`
	Tool         string        `json:"tool"`
	Action       string        `json:"action,omitempty"`
	Command      string        `json:"command"`
	Tier         string        `json:"tier"`
	Reason       string        `json:"reason,omitempty"`
	DecisionNote string        `json:"decision_note,omitempty"`
	Status       RequestStatus `json:"status"`
	RequestedAt  time.Time     `json:"requested_at"`
	ExpiresAt    time.Time     `json:"expires_at,omitempty"`
	DecidedAt    time.Time     `json:"decided_at,omitempty"`
	DecidedBy    string        `json:"decided_by,omitempty"`
	RedeemedAt   time.Time     `json:"redeemed_at,omitempty"`
}

// CreateInput contains fields needed to create an escalation request.
type CreateInput struct {
	Tool    string
	Action  string
	Command string
	Tier    string
	Reason  string
	TTL     time.Duration
}

// DecisionInput contains fields needed to approve/reject a request.
type DecisionInput struct {
	DecidedBy string
	Note      string
}

// Query filters escalation requests when listing.
type Query struct {
	ID     string
	Status RequestStatus
	Tool   string
}
