package triage

import (
	"reflect"
	"testing"

	"helpline/internal/domain"
)

func TestClassifyComplaintWithUrgency(t *testing.T) {
	c := NewClassifier(DefaultRules())

	res := c.Classify("対応が悪い、至急返金してください")

	if !res.IsComplaint {
		t.Fatalf("expected complaint")
	}
	if res.ComplaintType == nil || *res.ComplaintType != domain.ComplaintAttitude {
		t.Fatalf("complaint type = %v, want ATTITUDE", res.ComplaintType)
	}
	if res.Urgency != domain.UrgencyNow {
		t.Fatalf("urgency = %s, want NOW", res.Urgency)
	}
	if res.Priority != domain.PriorityHigh {
		t.Fatalf("priority = %s, want HIGH", res.Priority)
	}
	// 返金 and 対応が悪い from the complaint list, 至急 from the NOW tier,
	// then 返金 again from the high-priority list. Duplicates are kept.
	want := []string{"返金", "対応が悪い", "至急", "返金"}
	if !reflect.DeepEqual(res.MatchedKeywords, want) {
		t.Fatalf("matched = %v, want %v", res.MatchedKeywords, want)
	}
	if res.Confidence != 0.9 {
		t.Fatalf("confidence = %v, want 0.9", res.Confidence)
	}
}

func TestClassifyEmptyText(t *testing.T) {
	c := NewClassifier(DefaultRules())

	res := c.Classify("")

	if res.IsComplaint || res.ComplaintType != nil {
		t.Fatalf("empty text classified as complaint: %+v", res)
	}
	if res.Priority != domain.PriorityMedium || res.Urgency != domain.UrgencyAnytime {
		t.Fatalf("defaults = %s/%s, want MEDIUM/ANYTIME", res.Priority, res.Urgency)
	}
	if res.Confidence != 0.5 {
		t.Fatalf("confidence = %v, want 0.5", res.Confidence)
	}
	if len(res.MatchedKeywords) != 0 {
		t.Fatalf("matched = %v, want none", res.MatchedKeywords)
	}
}

func TestClassifyUrgencyTiers(t *testing.T) {
	c := NewClassifier(DefaultRules())

	cases := []struct {
		text string
		want domain.Urgency
	}{
		{"今すぐ対応お願いします", domain.UrgencyNow},
		{"本日中にご連絡ください", domain.UrgencyToday},
		{"今週中で構いません", domain.UrgencyThisWeek},
		{"よろしくお願いします", domain.UrgencyAnytime},
	}
	for _, tc := range cases {
		if got := c.Classify(tc.text).Urgency; got != tc.want {
			t.Errorf("Classify(%q).Urgency = %s, want %s", tc.text, got, tc.want)
		}
	}
}

func TestClassifyHighPriorityWithoutComplaint(t *testing.T) {
	c := NewClassifier(DefaultRules())

	res := c.Classify("解約したいです")

	if res.IsComplaint {
		t.Fatalf("unexpected complaint")
	}
	if res.Priority != domain.PriorityHigh {
		t.Fatalf("priority = %s, want HIGH", res.Priority)
	}
	// Single keyword match would mean 0.7, but HIGH priority floors at 0.8.
	if res.Confidence != 0.8 {
		t.Fatalf("confidence = %v, want 0.8", res.Confidence)
	}
}

func TestClassifyComplaintDefaultsToOther(t *testing.T) {
	c := NewClassifier(DefaultRules())

	res := c.Classify("最悪です")

	if !res.IsComplaint {
		t.Fatalf("expected complaint")
	}
	if res.ComplaintType == nil || *res.ComplaintType != domain.ComplaintOther {
		t.Fatalf("complaint type = %v, want OTHER", res.ComplaintType)
	}
}

func TestClassifyCaseInsensitive(t *testing.T) {
	rules := DefaultRules()
	rules.PriorityHighKeywords = append(rules.PriorityHighKeywords, "URGENT")
	c := NewClassifier(rules)

	if got := c.Classify("this is urgent!").Priority; got != domain.PriorityHigh {
		t.Fatalf("priority = %s, want HIGH", got)
	}
}

func TestRuleSetValidate(t *testing.T) {
	if err := DefaultRules().Validate(); err != nil {
		t.Fatalf("default rules invalid: %v", err)
	}

	rules := DefaultRules()
	rules.ComplaintKeywords = append(rules.ComplaintKeywords, "")
	if err := rules.Validate(); err == nil {
		t.Fatalf("expected error for empty complaint keyword")
	}

	rules = DefaultRules()
	rules.ComplaintTypes["BOGUS"] = []string{"x"}
	if err := rules.Validate(); err == nil {
		t.Fatalf("expected error for unknown complaint category")
	}
}
