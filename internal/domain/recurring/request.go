package recurring

import (
	"errors"
	"time"

	"github.com/household-ledger/internal/domain/schedule"
)

var ErrInvalidFireRequest = errors.New("invalid fire request")

// RequestKind selects what a FireRequest asks the worker to do.
type RequestKind string

const (
	// RequestFire fires one template for its current run.
	RequestFire RequestKind = "FIRE"
	// RequestDueCheck fires every due template of a ledger.
	RequestDueCheck RequestKind = "DUE_CHECK"
)

// FireRequest is the message exchanged between the backend and the worker.
type FireRequest struct {
	Kind          RequestKind    `json:"kind"`
	LedgerID      string         `json:"ledgerId"`
	TemplateID    string         `json:"templateId,omitempty"`
	ExpectedRun   *schedule.Date `json:"expectedRun,omitempty"`
	RequestedBy   string         `json:"requestedBy"`
	CorrelationID string         `json:"correlationId,omitempty"`
	RequestedAt   time.Time      `json:"requestedAt"`
}

// Key partitions requests by ledger so one ledger's requests stay ordered.
func (r *FireRequest) Key() string {
	return r.LedgerID
}

// Validate checks the fields required by the request kind.
func (r *FireRequest) Validate() error {
	if r.LedgerID == "" {
		return ErrInvalidFireRequest
	}
	switch r.Kind {
	case RequestDueCheck:
		return nil
	case RequestFire:
		if r.TemplateID == "" {
			return ErrInvalidFireRequest
		}
		return nil
	default:
		return ErrInvalidFireRequest
	}
}
