package approval

import (
	"fmt"
	"time"

	"github.com/turtacn/toda-franchise/internal/domain/calendar"
	apperrors "github.com/turtacn/toda-franchise/pkg/errors"
)

// Record is the capability a franchise or renewal exposes to the machine.
type Record interface {
	ApprovalStatus() Status
	SetApprovalStatus(Status)
	ApprovalDate() *time.Time
	SetApprovalDate(*time.Time)
	ExpiryDate() *time.Time
	SetExpiryDate(*time.Time)
}

// Policy carries the lifecycle constants the machine needs.
type Policy struct {
	ExpiryAfterApprovalDays int
}

// DefaultPolicy issues permits for 365 days.
var DefaultPolicy = Policy{ExpiryAfterApprovalDays: 365}

// Change describes an applied transition.
type Change struct {
	From         Status
	To           Status
	ApprovalDate *time.Time
	ExpiryDate   *time.Time
}

// Machine applies transitions to Records.
type Machine struct {
	cal    calendar.Calendar
	policy Policy
}

func NewMachine(cal calendar.Calendar, policy Policy) *Machine {
	return &Machine{cal: cal, policy: policy}
}

// Plan validates the transition and computes the resulting dates without
// touching rec. An empty requested status means "advance along the happy path".
func (m *Machine) Plan(rec Record, requested Status, now time.Time) (Change, error) {
	from := rec.ApprovalStatus()
	to := requested

	if to == "" {
		next, ok := Next(from)
		if !ok {
			return Change{}, apperrors.InvalidTransition("no forward transition").
				WithDetail(fmt.Sprintf("from=%s", from))
		}
		to = next
	}
	if !to.IsValid() {
		return Change{}, apperrors.Validation("unknown approval status").WithDetail(string(to))
	}
	if !CanTransition(from, to) {
		return Change{}, apperrors.InvalidTransition("transition not allowed").
			WithDetail(fmt.Sprintf("from=%s to=%s", from, to))
	}

	approvalDate := rec.ApprovalDate()
	expiryDate := rec.ExpiryDate()

	switch to {
	case StatusPendingValidation:
		approvalDate = nil
	case StatusRevoked:
		// Revocation keeps the issued dates for the audit record.
	default:
		stamped := now
		approvalDate = &stamped
	}

	if to == StatusApproved {
		exp := m.cal.AddDays(*approvalDate, m.policy.ExpiryAfterApprovalDays)
		expiryDate = &exp
	}

	return Change{From: from, To: to, ApprovalDate: approvalDate, ExpiryDate: expiryDate}, nil
}

// Apply plans the transition and, only when it is valid, writes it to rec.
func (m *Machine) Apply(rec Record, requested Status, now time.Time) (Change, error) {
	ch, err := m.Plan(rec, requested, now)
	if err != nil {
		return Change{}, err
	}
	rec.SetApprovalStatus(ch.To)
	rec.SetApprovalDate(ch.ApprovalDate)
	rec.SetExpiryDate(ch.ExpiryDate)
	return ch, nil
}
