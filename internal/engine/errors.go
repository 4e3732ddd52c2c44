package engine

import (
	"errors"
	"fmt"

	"helpline/internal/domain"
)

// ConflictError reports an optimistic-lock mismatch on a status update.
// It carries the stored version and status so the caller can refetch and
// retry; the engine never retries on its own.
type ConflictError struct {
	CurrentVersion int64
	CurrentStatus  domain.Status
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("conversation was updated by another user (version %d, status %s)", e.CurrentVersion, e.CurrentStatus)
}

// InvalidTransitionError reports a status change the workflow graph forbids.
type InvalidTransitionError struct {
	From domain.Status
	To   domain.Status
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// ErrNoMessages means re-triage found nothing inbound to analyze.
var ErrNoMessages = errors.New("no inbound messages to analyze")
