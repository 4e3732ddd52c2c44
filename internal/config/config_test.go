package config

import (
	"os"
	"path/filepath"
	"testing"

	"helpline/internal/domain"
)

func TestDefaultMatchesProductionRules(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	rules := cfg.Rules()
	if len(rules.ComplaintKeywords) == 0 || len(rules.UrgencyNowKeywords) == 0 || len(rules.PriorityHighKeywords) == 0 {
		t.Fatalf("default rules incomplete: %+v", rules)
	}
	for _, ct := range domain.ComplaintTypes() {
		if _, ok := rules.ComplaintTypes[ct]; !ok {
			t.Fatalf("complaint type %s missing from default rules", ct)
		}
	}
}

func TestFromYAMLOverridesKeywords(t *testing.T) {
	cfg, err := FromYAML([]byte(`
channel:
  secret: s3cret
  access_token: tok
triage:
  complaint_keywords: ["angry"]
  urgency_keywords:
    now: ["asap"]
`))
	if err != nil {
		t.Fatalf("from yaml: %v", err)
	}
	if cfg.Channel.Secret != "s3cret" {
		t.Fatalf("secret = %q", cfg.Channel.Secret)
	}
	rules := cfg.Rules()
	if len(rules.ComplaintKeywords) != 1 || rules.ComplaintKeywords[0] != "angry" {
		t.Fatalf("complaint keywords = %v", rules.ComplaintKeywords)
	}
	if len(rules.UrgencyNowKeywords) != 1 || rules.UrgencyNowKeywords[0] != "asap" {
		t.Fatalf("now keywords = %v", rules.UrgencyNowKeywords)
	}
	// Untouched tables keep their defaults.
	if len(rules.PriorityHighKeywords) == 0 {
		t.Fatalf("priority keywords lost on partial override")
	}
}

func TestFromYAMLRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"unknown complaint category", `
triage:
  complaint_type_keywords:
    bogus: ["x"]
`},
		{"empty keyword", `
triage:
  complaint_keywords: ["ok", ""]
`},
		{"webhook without url", `
webhooks:
  - secret: s
`},
		{"negative webhook timeout", `
webhooks:
  - url: https://example.com/hook
    timeout_seconds: -1
`},
		{"malformed yaml", `triage: [`},
	}
	for _, tc := range cases {
		if _, err := FromYAML([]byte(tc.yaml)); err == nil {
			t.Errorf("%s: accepted", tc.name)
		}
	}
}

func TestLoadFallsBackToDefault(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load empty workspace: %v", err)
	}
	if len(cfg.Triage.ComplaintKeywords) == 0 {
		t.Fatalf("fallback config has no rules")
	}
}

func TestLoadReadsWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	content := "channel:\n  secret: from-file\n"
	if err := os.WriteFile(filepath.Join(dir, "helpline.yml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Channel.Secret != "from-file" {
		t.Fatalf("secret = %q", cfg.Channel.Secret)
	}
}
