package classifier

import "SOCPulse/internal/domain/models"

var recommended = map[models.IncidentType][]string{
	models.TypeMalware: {
		"Isolate affected systems",
		"Quarantine detected malware",
		"Scan for additional threats",
		"Update endpoint protection signatures",
	},
	models.TypePhishing: {
		"Block sender domain/email addresses",
		"Educate users about phishing indicators",
		"Reset compromised credentials",
		"Monitor for credential abuse",
	},
	models.TypeIntrusion: {
		"Review access logs and audit trails",
		"Change affected system credentials",
		"Apply security patches",
		"Implement network segmentation",
	},
	models.TypeDataLeak: {
		"Contain data exfiltration",
		"Assess data exposure scope",
		"Notify affected parties",
		"Review data protection controls",
	},
	models.TypeDenialOfService: {
		"Implement traffic filtering",
		"Scale infrastructure resources",
		"Contact ISP for mitigation assistance",
		"Monitor for attack patterns",
	},
	models.TypePrivilegeEscalation: {
		"Review user access permissions",
		"Implement principle of least privilege",
		"Audit privileged account usage",
		"Monitor for lateral movement",
	},
}

var (
	defaultActions  = []string{"Investigate incident details", "Implement containment measures"}
	fallbackActions = []string{"Manual investigation required", "Review incident details"}
)

// RecommendedActions returns a copy of the analyst guidance for t.
func RecommendedActions(t models.IncidentType) []string {
	actions, ok := recommended[t]
	if !ok {
		actions = defaultActions
	}
	return append([]string(nil), actions...)
}
