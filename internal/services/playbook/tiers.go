package playbook

import "SOCPulse/internal/domain/models"

// Tier names.
const (
	TierCritical            = "critical"
	TierHigh                = "high"
	TierMedium              = "medium"
	TierPhishing            = "phishing"
	TierDataLeak            = "data_leak"
	TierDoS                 = "dos"
	TierPrivilegeEscalation = "privilege_escalation"
	TierDefault             = "default"
)

// Action names.
const (
	ActionEnrichHashes     = "enrich_hashes"
	ActionBlockHashes      = "block_hashes"
	ActionIsolateHost      = "isolate_host"
	ActionEscalateOnCall   = "escalate_oncall"
	ActionNotifySOC        = "notify_soc"
	ActionOpenCase         = "open_case"
	ActionDocument         = "document_incident"
	ActionQuarantineEmail  = "quarantine_email"
	ActionResetCredentials = "reset_credentials"
	ActionBlockSourceIP    = "block_source_ip"
	ActionRateLimitSource  = "rate_limit_source"
	ActionRevokePrivileges = "revoke_privileges"
)

// DefaultTiers returns the stock ordered action list per tier.
func DefaultTiers() map[string][]string {
	return map[string][]string{
		TierCritical:            {ActionEnrichHashes, ActionBlockHashes, ActionIsolateHost, ActionEscalateOnCall, ActionNotifySOC, ActionOpenCase},
		TierHigh:                {ActionEnrichHashes, ActionBlockHashes, ActionNotifySOC, ActionOpenCase, ActionDocument},
		TierMedium:              {ActionEnrichHashes, ActionNotifySOC, ActionOpenCase, ActionDocument},
		TierPhishing:            {ActionQuarantineEmail, ActionEnrichHashes, ActionResetCredentials, ActionNotifySOC, ActionOpenCase},
		TierDataLeak:            {ActionIsolateHost, ActionBlockSourceIP, ActionEscalateOnCall, ActionNotifySOC, ActionOpenCase},
		TierDoS:                 {ActionRateLimitSource, ActionBlockSourceIP, ActionNotifySOC, ActionOpenCase},
		TierPrivilegeEscalation: {ActionRevokePrivileges, ActionResetCredentials, ActionIsolateHost, ActionNotifySOC, ActionOpenCase},
		TierDefault:             {ActionOpenCase, ActionDocument},
	}
}

// SelectTier is the decision table. The first matching row wins.
func SelectTier(in models.DecisionInput) string {
	switch {
	case (in.PredictedType == models.TypeMalware || in.PredictedType == models.TypeIntrusion) && in.Confidence > 0.6:
		switch {
		case in.RuleLevel >= 12 || in.RiskScore > 75:
			return TierCritical
		case in.RuleLevel >= 8 || in.RiskScore > 60:
			return TierHigh
		default:
			return TierMedium
		}
	case in.PredictedType == models.TypePhishing && in.Confidence > 0.5:
		return TierPhishing
	case in.PredictedType == models.TypeDataLeak && in.Confidence > 0.7:
		return TierDataLeak
	case in.PredictedType == models.TypeDenialOfService && in.Confidence > 0.6:
		return TierDoS
	case in.PredictedType == models.TypePrivilegeEscalation && in.Confidence > 0.5:
		return TierPrivilegeEscalation
	default:
		return TierDefault
	}
}
