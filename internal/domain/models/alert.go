package models

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultRuleLevel applies when an alert carries no rule level.
const DefaultRuleLevel = 5

// Alert is a Wazuh-style detection alert.
type Alert struct {
	ID       string                 `json:"id"`
	Rule     AlertRule              `json:"rule"`
	Agent    AlertAgent             `json:"agent"`
	Data     map[string]interface{} `json:"data,omitempty"`
	Syscheck map[string]interface{} `json:"syscheck,omitempty"`
}

type AlertRule struct {
	ID          string   `json:"id,omitempty"`
	Level       *int     `json:"level,omitempty"`
	Description string   `json:"description,omitempty"`
	Groups      []string `json:"groups,omitempty"`
}

type AlertAgent struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	IP   string `json:"ip,omitempty"`
}

// RuleLevel returns the rule level or DefaultRuleLevel when absent.
func (a Alert) RuleLevel() int {
	if a.Rule.Level == nil {
		return DefaultRuleLevel
	}
	return *a.Rule.Level
}

// AgentName returns the agent name or "unknown".
func (a Alert) AgentName() string {
	if a.Agent.Name == "" {
		return "unknown"
	}
	return a.Agent.Name
}

// SeverityForRuleLevel buckets a rule level: >=12 critical, >=8 high, >=5 medium.
func SeverityForRuleLevel(level int) Severity {
	switch {
	case level >= 12:
		return SeverityCritical
	case level >= 8:
		return SeverityHigh
	case level >= 5:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Incident maps the alert to a new incident record.
func (a Alert) Incident() IncidentRecord {
	title := fmt.Sprintf("Security Alert %s", a.ID)
	if a.Rule.Description != "" {
		title = "[ALERT] " + a.Rule.Description
	}
	level := a.RuleLevel()
	return IncidentRecord{
		Title:       title,
		Description: fmt.Sprintf("Alert ID: %s\nRule Level: %d\nAgent: %s", a.ID, level, a.AgentName()),
		Severity:    SeverityForRuleLevel(level),
		Status:      IncidentOpen,
		Tags:        fmt.Sprintf("source:wazuh,alert_id:%s", a.ID),
		AlertID:     a.ID,
	}
}

var hashPattern = regexp.MustCompile(`^(?:[a-fA-F0-9]{32}|[a-fA-F0-9]{64})$`)

// IsValidHash reports whether s is an MD5 or SHA-256 hex digest.
func IsValidHash(s string) bool {
	return hashPattern.MatchString(s)
}

var hashFields = [][2]string{
	{"syscheck", "md5"},
	{"syscheck", "sha256"},
	{"data", "md5"},
	{"data", "sha256"},
}

// Hashes returns file hashes found in syscheck.{md5,sha256} and data.{md5,sha256}.
// Duplicates are dropped, order follows the field list.
func (a Alert) Hashes() []string {
	var out []string
	seen := make(map[string]bool)
	for _, f := range hashFields {
		var src map[string]interface{}
		if f[0] == "syscheck" {
			src = a.Syscheck
		} else {
			src = a.Data
		}
		v, ok := src[f[1]].(string)
		if !ok || !IsValidHash(v) {
			continue
		}
		key := strings.ToLower(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}

func (a Alert) dataString(keys ...string) string {
	for _, k := range keys {
		if v, ok := a.Data[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// SourceIP returns data.srcip when present.
func (a Alert) SourceIP() string { return a.dataString("srcip", "src_ip") }

// TargetUser returns the affected account, preferring data.dstuser.
func (a Alert) TargetUser() string { return a.dataString("dstuser", "srcuser", "user") }

// MessageID returns the mail message id for phishing alerts.
func (a Alert) MessageID() string { return a.dataString("message_id", "msg_id") }
