package approval

import "sort"

// Transition is a single edge of the approval graph.
type Transition struct {
	From Status
	To   Status
}

// allowedTransitions is the complete edge set. Anything absent is rejected.
var allowedTransitions = map[Transition]bool{
	{StatusPendingValidation, StatusValidated}: true,
	{StatusPendingValidation, StatusRejected}:  true,
	{StatusPendingValidation, StatusCanceled}:  true,

	{StatusValidated, StatusPaid}:              true,
	{StatusValidated, StatusPendingValidation}: true, // sent back for corrections
	{StatusValidated, StatusRejected}:          true,
	{StatusValidated, StatusCanceled}:          true,

	{StatusPaid, StatusApproved}: true,
	{StatusPaid, StatusRejected}: true,
	{StatusPaid, StatusCanceled}: true,

	{StatusApproved, StatusRevoked}: true,

	{StatusRejected, StatusPendingValidation}: true, // resubmission
}

// forward is the happy path used when the caller omits a target.
var forward = map[Status]Status{
	StatusPendingValidation: StatusValidated,
	StatusValidated:         StatusPaid,
	StatusPaid:              StatusApproved,
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to Status) bool {
	return allowedTransitions[Transition{From: from, To: to}]
}

// Next returns the inferred forward target of from.
func Next(from Status) (Status, bool) {
	to, ok := forward[from]
	return to, ok
}

// TargetsFrom returns every allowed target of from, sorted.
func TargetsFrom(from Status) []Status {
	targets := make([]Status, 0, 4)
	for t := range allowedTransitions {
		if t.From == from {
			targets = append(targets, t.To)
		}
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })
	return targets
}
