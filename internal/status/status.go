// Package status holds the conversation workflow state machine.
package status

import "helpline/internal/domain"

// transitions is the legal-transition table. CLOSED is deliberately not a
// sink: reopening to WORKING is the only exit, reflecting support-ticket
// reopenability.
var transitions = map[domain.Status][]domain.Status{
	domain.StatusNew:            {domain.StatusWorking, domain.StatusNoActionNeeded, domain.StatusClosed},
	domain.StatusWorking:        {domain.StatusPending, domain.StatusResolved, domain.StatusClosed, domain.StatusNoActionNeeded},
	domain.StatusPending:        {domain.StatusWorking, domain.StatusResolved, domain.StatusClosed},
	domain.StatusResolved:       {domain.StatusWorking, domain.StatusClosed},
	domain.StatusClosed:         {domain.StatusWorking},
	domain.StatusNoActionNeeded: {domain.StatusWorking, domain.StatusClosed},
}

// IsValidTransition reports whether from→to is legal. A self-transition is
// always legal (idempotent), checked before the table.
func IsValidTransition(from, to domain.Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AvailableTransitions returns every status reachable from current,
// including current itself.
func AvailableTransitions(current domain.Status) []domain.Status {
	var out []domain.Status
	for _, s := range domain.Statuses() {
		if IsValidTransition(current, s) {
			out = append(out, s)
		}
	}
	return out
}

// DisplayName returns the operator-facing Japanese label for a status.
func DisplayName(s domain.Status) string {
	switch s {
	case domain.StatusNew:
		return "新規"
	case domain.StatusWorking:
		return "対応中"
	case domain.StatusPending:
		return "保留"
	case domain.StatusResolved:
		return "解決済み"
	case domain.StatusClosed:
		return "クローズ"
	case domain.StatusNoActionNeeded:
		return "対応不要"
	}
	return string(s)
}

// Color returns the hex color used by dashboard and CLI rendering.
func Color(s domain.Status) string {
	switch s {
	case domain.StatusNew:
		return "#3B82F6"
	case domain.StatusWorking:
		return "#F59E0B"
	case domain.StatusPending:
		return "#8B5CF6"
	case domain.StatusResolved:
		return "#10B981"
	case domain.StatusClosed:
		return "#6B7280"
	case domain.StatusNoActionNeeded:
		return "#64748B"
	}
	return "#6B7280"
}
