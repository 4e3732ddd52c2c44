package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"helpline/internal/domain"
	"helpline/internal/triage"
)

// Config models helpline.yml.
type Config struct {
	Channel struct {
		Secret      string `yaml:"secret"`
		AccessToken string `yaml:"access_token"`
		APIBase     string `yaml:"api_base"`
	} `yaml:"channel"`
	Triage struct {
		ComplaintKeywords []string `yaml:"complaint_keywords"`
		UrgencyKeywords   struct {
			Now      []string `yaml:"now"`
			Today    []string `yaml:"today"`
			ThisWeek []string `yaml:"this_week"`
		} `yaml:"urgency_keywords"`
		PriorityHighKeywords  []string            `yaml:"priority_high_keywords"`
		ComplaintTypeKeywords map[string][]string `yaml:"complaint_type_keywords"`
	} `yaml:"triage"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig is one outbound audit-event subscription.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Rules converts the configured keyword tables into the classifier's
// immutable rule set.
func (c *Config) Rules() triage.RuleSet {
	types := make(map[domain.ComplaintType][]string, len(c.Triage.ComplaintTypeKeywords))
	for name, list := range c.Triage.ComplaintTypeKeywords {
		types[domain.ComplaintType(strings.ToUpper(name))] = list
	}
	for _, ct := range domain.ComplaintTypes() {
		if _, ok := types[ct]; !ok {
			types[ct] = nil
		}
	}
	return triage.RuleSet{
		ComplaintKeywords:    c.Triage.ComplaintKeywords,
		UrgencyNowKeywords:   c.Triage.UrgencyKeywords.Now,
		UrgencyTodayKeywords: c.Triage.UrgencyKeywords.Today,
		UrgencyWeekKeywords:  c.Triage.UrgencyKeywords.ThisWeek,
		PriorityHighKeywords: c.Triage.PriorityHighKeywords,
		ComplaintTypes:       types,
	}
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if err := c.Rules().Validate(); err != nil {
		return err
	}
	for name := range c.Triage.ComplaintTypeKeywords {
		if !domain.ComplaintType(strings.ToUpper(name)).Valid() {
			return fmt.Errorf("config.triage.complaint_type_keywords has unknown category %q", name)
		}
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "helpline.yml")
}

// Load reads and validates config from workspace, falling back to the
// defaults when no file exists.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes. Keyword tables
// left empty fall back to the default rule set.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct with the production rule set.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns the default config YAML for `hl config init`.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `channel:
  secret: ""
  access_token: ""
  api_base: https://api.line.me

triage:
  complaint_keywords:
    - 最悪
    - 返金
    - 詐欺
    - 対応が悪い
    - ひどい
    - 許せない
    - クレーム
    - 謝罪
    - 責任者
    - 訴える
    - 消費者センター
    - 二度と
    - 不快
    - 失望
    - がっかり

  urgency_keywords:
    now:
      - 今すぐ
      - 至急
      - 緊急
      - 今日中
      - 当日
      - すぐに
      - 急いで
      - 急ぎ
    today:
      - 今日
      - 本日
      - できるだけ早く
      - 早めに
      - なるべく早く
    this_week:
      - 今週
      - 今週中
      - 週内

  priority_high_keywords:
    - 解約
    - 退会
    - 返金
    - 個人情報
    - 漏洩
    - 法的
    - 弁護士
    - 警察
    - 重要
    - 至急
    - 緊急

  complaint_type_keywords:
    BILLING: [料金, 請求, 支払い, 金額, 値段, 高い, 課金]
    QUALITY: [品質, 不良, 壊れ, 動かない, 使えない, 機能しない]
    DELAY: [遅い, 遅れ, 届かない, 来ない, 待たされ]
    ATTITUDE: [対応, 態度, 失礼, 無視, 返信, 連絡]
    OTHER: []

webhooks: []
`
