package features

import (
	"strings"

	"SOCPulse/internal/domain/models"
)

// Match is a keyword containment test over lower-cased text.
// All keywords in All must appear, and at least one of Any when Any is set.
// An empty Match never matches.
type Match struct {
	Any []string `yaml:"any" json:"any,omitempty"`
	All []string `yaml:"all" json:"all,omitempty"`
}

func anyOf(words ...string) Match { return Match{Any: words} }
func allOf(words ...string) Match { return Match{All: words} }

// In reports whether text satisfies m. text must already be lower-cased.
func (m Match) In(text string) bool {
	if len(m.Any) == 0 && len(m.All) == 0 {
		return false
	}
	for _, w := range m.All {
		if !strings.Contains(text, w) {
			return false
		}
	}
	if len(m.Any) == 0 {
		return true
	}
	for _, w := range m.Any {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// LabelRule assigns Label when Primary matches the primary text or
// Secondary matches the secondary text.
type LabelRule struct {
	Label     models.IncidentType `yaml:"label" json:"label"`
	Primary   Match               `yaml:"primary" json:"primary"`
	Secondary Match               `yaml:"secondary" json:"secondary"`
}

// Labeler is an ordered rule list; the first matching rule wins.
type Labeler struct {
	Rules   []LabelRule         `yaml:"rules" json:"rules"`
	Default models.IncidentType `yaml:"default" json:"default"`
}

// Label lower-cases both inputs and walks the rules in order.
func (l Labeler) Label(primary, secondary string) models.IncidentType {
	p := strings.ToLower(primary)
	s := strings.ToLower(secondary)
	for _, r := range l.Rules {
		if r.Primary.In(p) || r.Secondary.In(s) {
			return r.Label
		}
	}
	return l.Default
}

// Rules holds every keyword table used by the Extractor.
type Rules struct {
	Incident map[string]Match
	Anomaly  map[string]Match
	Audit    map[string]Match
	Context  map[string]Match

	IncidentLabels Labeler
	AnomalyLabels  Labeler
	AuditLabels    Labeler
}

// DefaultRules returns the stock keyword tables.
//
// Unclassifiable incident text is labeled intrusion, not unknown. Callers
// that want a different default override IncidentLabels.Default.
func DefaultRules() Rules {
	return Rules{
		Incident: map[string]Match{
			HasMalwareHash:             anyOf("hash", "md5", "sha256", "malware"),
			NetworkTrafficAnomaly:      anyOf("traffic", "network", "connection"),
			LoginFailureCount:          allOf("login", "fail"),
			DataExfiltrationIndicators: anyOf("exfiltrat", "leak", "data"),
			PrivilegeChangeCount:       anyOf("privilege", "admin", "root"),
			ThreatActorIndicators:      anyOf("threat", "actor", "attack"),
			KnownMalwareSignature:      anyOf("malware", "signature"),
		},
		Anomaly: map[string]Match{
			NetworkTrafficAnomaly:      anyOf("network"),
			LoginFailureCount:          anyOf("login"),
			DataExfiltrationIndicators: anyOf("data", "exfiltrat"),
			ThreatActorIndicators:      anyOf("anomaly"),
		},
		Audit: map[string]Match{
			AlertCount:                 anyOf("security"),
			SeverityScore:              anyOf("critical"),
			NetworkTrafficAnomaly:      anyOf("network"),
			LoginFailureCount:          allOf("login", "fail"),
			DataExfiltrationIndicators: anyOf("export", "data"),
			PrivilegeChangeCount:       anyOf("admin", "privilege"),
			ThreatActorIndicators:      anyOf("security"),
		},
		Context: map[string]Match{
			HasMalwareHash:             anyOf("hash", "md5", "sha"),
			NetworkTrafficAnomaly:      anyOf("network", "traffic"),
			DataExfiltrationIndicators: anyOf("exfiltration", "leak"),
			ThreatActorIndicators:      anyOf("threat", "actor"),
			KnownMalwareSignature:      anyOf("malware", "virus"),
		},
		IncidentLabels: Labeler{
			Rules: []LabelRule{
				{Label: models.TypeMalware, Primary: anyOf("malware", "virus", "trojan")},
				{Label: models.TypePhishing, Primary: anyOf("phish", "spam", "email")},
				{Label: models.TypeIntrusion, Primary: anyOf("intrusion", "breach", "unauthorized")},
				{Label: models.TypeDataLeak, Primary: anyOf("leak", "exfiltrat", "data")},
				{Label: models.TypeDenialOfService, Primary: anyOf("dos", "denial", "flood")},
				{Label: models.TypePrivilegeEscalation, Primary: anyOf("privilege", "escalat", "admin")},
			},
			Default: models.TypeIntrusion,
		},
		// primary: anomaly type, secondary: description
		AnomalyLabels: Labeler{
			Rules: []LabelRule{
				{Label: models.TypeIntrusion, Primary: anyOf("cpu"), Secondary: anyOf("memory")},
				{Label: models.TypeIntrusion, Secondary: anyOf("login")},
				{Label: models.TypeDenialOfService, Secondary: anyOf("network")},
			},
			Default: models.TypeIntrusion,
		},
		// primary: action, secondary: resource
		AuditLabels: Labeler{
			Rules: []LabelRule{
				{Label: models.TypeIntrusion, Primary: allOf("login", "fail")},
				{Label: models.TypeDataLeak, Primary: anyOf("export"), Secondary: anyOf("data")},
				{Label: models.TypePrivilegeEscalation, Primary: anyOf("privilege"), Secondary: anyOf("admin")},
			},
			Default: models.TypeNormal,
		},
	}
}
