package triage

import (
	"fmt"

	"helpline/internal/domain"
)

// RuleSet is the keyword configuration the classifier consults. It is
// constructed once and treated as immutable; tests substitute their own.
type RuleSet struct {
	ComplaintKeywords    []string
	UrgencyNowKeywords   []string
	UrgencyTodayKeywords []string
	UrgencyWeekKeywords  []string
	PriorityHighKeywords []string
	ComplaintTypes       map[domain.ComplaintType][]string
}

// DefaultRules returns the production rule set.
func DefaultRules() RuleSet {
	return RuleSet{
		ComplaintKeywords: []string{
			"最悪", "返金", "詐欺", "対応が悪い", "ひどい", "許せない", "クレーム",
			"謝罪", "責任者", "訴える", "消費者センター", "二度と", "不快", "失望", "がっかり",
		},
		UrgencyNowKeywords: []string{
			"今すぐ", "至急", "緊急", "今日中", "当日", "すぐに", "急いで", "急ぎ",
		},
		UrgencyTodayKeywords: []string{
			"今日", "本日", "できるだけ早く", "早めに", "なるべく早く",
		},
		UrgencyWeekKeywords: []string{
			"今週", "今週中", "週内",
		},
		PriorityHighKeywords: []string{
			"解約", "退会", "返金", "個人情報", "漏洩", "法的", "弁護士", "警察", "重要", "至急", "緊急",
		},
		ComplaintTypes: map[domain.ComplaintType][]string{
			domain.ComplaintBilling:  {"料金", "請求", "支払い", "金額", "値段", "高い", "課金"},
			domain.ComplaintQuality:  {"品質", "不良", "壊れ", "動かない", "使えない", "機能しない"},
			domain.ComplaintDelay:    {"遅い", "遅れ", "届かない", "来ない", "待たされ"},
			domain.ComplaintAttitude: {"対応", "態度", "失礼", "無視", "返信", "連絡"},
			domain.ComplaintOther:    {},
		},
	}
}

// Validate rejects rule sets that would misbehave at classification time.
// An empty keyword matches every message, so it is a configuration error.
func (rs RuleSet) Validate() error {
	lists := map[string][]string{
		"complaint":     rs.ComplaintKeywords,
		"urgency_now":   rs.UrgencyNowKeywords,
		"urgency_today": rs.UrgencyTodayKeywords,
		"urgency_week":  rs.UrgencyWeekKeywords,
		"priority_high": rs.PriorityHighKeywords,
	}
	for name, list := range lists {
		for _, k := range list {
			if k == "" {
				return fmt.Errorf("rules.%s contains an empty keyword", name)
			}
		}
	}
	for ct, list := range rs.ComplaintTypes {
		if !ct.Valid() {
			return fmt.Errorf("rules.complaint_types has unknown category %q", ct)
		}
		for _, k := range list {
			if k == "" {
				return fmt.Errorf("rules.complaint_types.%s contains an empty keyword", ct)
			}
		}
	}
	return nil
}
