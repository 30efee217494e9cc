// Package approval implements the approval-status state machine shared by
// franchise registrations and renewals.
package approval

import (
	"strings"

	"github.com/samber/lo"

	apperrors "github.com/turtacn/toda-franchise/pkg/errors"
)

// Status is the approval state of a franchise or renewal.
type Status string

const (
	StatusPendingValidation Status = "pending-validation"
	StatusValidated         Status = "validated"
	StatusPaid              Status = "paid"
	StatusApproved          Status = "approved"
	StatusRejected          Status = "rejected"
	StatusCanceled          Status = "canceled"
	StatusRevoked           Status = "revoked"
)

// AllStatuses lists every state in workflow order.
var AllStatuses = []Status{
	StatusPendingValidation,
	StatusValidated,
	StatusPaid,
	StatusApproved,
	StatusRejected,
	StatusCanceled,
	StatusRevoked,
}

var statusLabels = map[Status]string{
	StatusPendingValidation: "Pending Validation",
	StatusValidated:         "Validated",
	StatusPaid:              "Paid",
	StatusApproved:          "Approved",
	StatusRejected:          "Rejected",
	StatusCanceled:          "Canceled",
	StatusRevoked:           "Revoked",
}

func (s Status) String() string { return string(s) }

// Label is the human-readable form used in notifications.
func (s Status) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// IsValid reports whether s is one of the seven known states.
func (s Status) IsValid() bool {
	_, ok := statusLabels[s]
	return ok
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s.IsValid() && len(TargetsFrom(s)) == 0
}

// IsSettled reports whether the record has been paid for. Rate sheets for
// settled records are pinned to the approval date.
func (s Status) IsSettled() bool {
	return s == StatusPaid || s == StatusApproved
}

// ParseStatus parses a single status string.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", apperrors.Validation("unknown approval status").WithDetail(raw)
	}
	return s, nil
}

// ParseStatusList parses a comma-separated filter such as "validated,paid".
// Blank entries are ignored and duplicates collapse.
func ParseStatusList(raw string) ([]Status, error) {
	parts := lo.Compact(lo.Map(strings.Split(raw, ","), func(p string, _ int) string {
		return strings.TrimSpace(p)
	}))
	out := make([]Status, 0, len(parts))
	for _, p := range parts {
		s, err := ParseStatus(p)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return lo.Uniq(out), nil
}
