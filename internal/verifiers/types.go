package verifiers

import "time"

// Status of an elevation request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Request is one wallet's application to review documents in a domain. One
// row per wallet: a decided request is reopened in place when the wallet
// applies again.
type Request struct {
	ID           string     `json:"id"`
	Address      string     `json:"walletAddress"`
	Name         string     `json:"name"`
	Email        string     `json:"email,omitempty"`
	Organization string     `json:"organization,omitempty"`
	Note         string     `json:"note,omitempty"`
	Domain       string     `json:"domain"`
	Status       Status     `json:"status"`
	DecisionNote string     `json:"decisionNote,omitempty"`
	RequestedAt  time.Time  `json:"requestedAt"`
	DecidedAt    *time.Time `json:"decidedAt,omitempty"`
}

// Submission carries the applicant-provided fields of a new request.
type Submission struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Organization string `json:"organization"`
	Note         string `json:"note"`
	Domain       string `json:"domain"`
}
