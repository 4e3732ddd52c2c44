package triage

import (
	"strings"

	"helpline/internal/domain"
)

// Result is the outcome of classifying one message (or one concatenated
// batch of messages). It is ephemeral: the merge step consumes it and only
// the resulting field deltas are persisted.
type Result struct {
	Priority        domain.Priority       `json:"priority"`
	Urgency         domain.Urgency        `json:"urgency"`
	IsComplaint     bool                  `json:"is_complaint"`
	ComplaintType   *domain.ComplaintType `json:"complaint_type,omitempty"`
	Confidence      float64               `json:"confidence"`
	MatchedKeywords []string              `json:"matched_keywords"`
}

// Classifier turns message text into a Result using a fixed rule set.
type Classifier struct {
	rules RuleSet
}

// NewClassifier builds a classifier over the given rules.
func NewClassifier(rules RuleSet) Classifier {
	return Classifier{rules: rules}
}

// Rules returns the rule set the classifier was built with.
func (c Classifier) Rules() RuleSet { return c.rules }

// Classify analyzes message text. It is pure and total: any string input,
// including the empty string, yields a definite result and never panics.
//
// Matched keywords accumulate as a side effect of every containment check
// performed, including checks in urgency tiers that do not end up
// determining the final urgency. Complaint detection checks every keyword;
// urgency and priority detection stop at the first hit within a list.
// Confidence depends on the total match count, so this accumulation is part
// of the observable contract.
func (c Classifier) Classify(text string) Result {
	lower := strings.ToLower(text)
	var matched []string

	contains := func(keyword string) bool {
		ok := strings.Contains(lower, strings.ToLower(keyword))
		if ok {
			matched = append(matched, keyword)
		}
		return ok
	}
	// allMatch checks the whole list; firstMatch stops at the first hit.
	allMatch := func(keywords []string) bool {
		hit := false
		for _, k := range keywords {
			if contains(k) {
				hit = true
			}
		}
		return hit
	}
	firstMatch := func(keywords []string) bool {
		for _, k := range keywords {
			if contains(k) {
				return true
			}
		}
		return false
	}

	isComplaint := allMatch(c.rules.ComplaintKeywords)

	var complaintType *domain.ComplaintType
	if isComplaint {
		for _, ct := range domain.ComplaintTypes() {
			if matchesAny(lower, c.rules.ComplaintTypes[ct]) {
				t := ct
				complaintType = &t
				break
			}
		}
		if complaintType == nil {
			t := domain.ComplaintOther
			complaintType = &t
		}
	}

	urgency := domain.UrgencyAnytime
	if firstMatch(c.rules.UrgencyNowKeywords) {
		urgency = domain.UrgencyNow
	} else if firstMatch(c.rules.UrgencyTodayKeywords) {
		urgency = domain.UrgencyToday
	} else if firstMatch(c.rules.UrgencyWeekKeywords) {
		urgency = domain.UrgencyThisWeek
	}

	priority := domain.PriorityMedium
	if firstMatch(c.rules.PriorityHighKeywords) {
		priority = domain.PriorityHigh
	} else if isComplaint {
		// Complaints escalate automatically.
		priority = domain.PriorityHigh
	}

	confidence := 0.5
	switch {
	case len(matched) >= 3:
		confidence = 0.9
	case len(matched) >= 2:
		confidence = 0.8
	case len(matched) >= 1:
		confidence = 0.7
	}
	if isComplaint || priority == domain.PriorityHigh {
		confidence = max(confidence, 0.8)
	}

	return Result{
		Priority:        priority,
		Urgency:         urgency,
		IsComplaint:     isComplaint,
		ComplaintType:   complaintType,
		Confidence:      confidence,
		MatchedKeywords: matched,
	}
}

// matchesAny is a plain containment test with no keyword accumulation;
// complaint-type detection does not feed the matched list.
func matchesAny(lower string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}
