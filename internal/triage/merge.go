package triage

import "helpline/internal/domain"

// State is the triage-relevant slice of a conversation.
type State struct {
	Priority      domain.Priority
	Urgency       domain.Urgency
	IsComplaint   bool
	ComplaintType *domain.ComplaintType
}

// Update carries only the fields a merge decided to change. A nil field
// means "leave as is"; an empty update means no write should happen.
type Update struct {
	Priority      *domain.Priority
	Urgency       *domain.Urgency
	IsComplaint   *bool
	ComplaintType *domain.ComplaintType
}

// Empty reports whether the update changes nothing.
func (u Update) Empty() bool {
	return u.Priority == nil && u.Urgency == nil && u.IsComplaint == nil && u.ComplaintType == nil
}

// Apply returns the state after the update.
func (u Update) Apply(s State) State {
	if u.Priority != nil {
		s.Priority = *u.Priority
	}
	if u.Urgency != nil {
		s.Urgency = *u.Urgency
	}
	if u.IsComplaint != nil {
		s.IsComplaint = *u.IsComplaint
	}
	if u.ComplaintType != nil {
		s.ComplaintType = u.ComplaintType
	}
	return s
}

// Merge computes the automatic triage update for a conversation given a
// fresh classification result. All rules are monotonic:
//
//   - priority only escalates (MEDIUM→HIGH, LOW→MEDIUM, LOW→HIGH)
//   - urgency only moves to a strictly higher rank
//   - the complaint flag latches false→true and sets the type once;
//     an already-complaint conversation is never re-typed automatically
//
// Manual overrides bypass this function entirely.
func Merge(current State, result Result) Update {
	var u Update

	if (current.Priority == domain.PriorityMedium && result.Priority == domain.PriorityHigh) ||
		(current.Priority == domain.PriorityLow && result.Priority != domain.PriorityLow) {
		p := result.Priority
		u.Priority = &p
	}

	if result.Urgency.Rank() > current.Urgency.Rank() {
		ug := result.Urgency
		u.Urgency = &ug
	}

	if result.IsComplaint && !current.IsComplaint {
		flag := true
		u.IsComplaint = &flag
		if result.ComplaintType != nil {
			ct := *result.ComplaintType
			u.ComplaintType = &ct
		}
	}

	return u
}
