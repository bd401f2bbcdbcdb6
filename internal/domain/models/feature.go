package models

// IncidentType is the closed label set produced by the classifier.
type IncidentType string

const (
	TypeMalware             IncidentType = "malware"
	TypePhishing            IncidentType = "phishing"
	TypeIntrusion           IncidentType = "intrusion"
	TypeDataLeak            IncidentType = "data_leak"
	TypeDenialOfService     IncidentType = "denial_of_service"
	TypePrivilegeEscalation IncidentType = "privilege_escalation"
	TypeNormal              IncidentType = "normal"
	TypeUnknown             IncidentType = "unknown"
)

// TrainingLabels are the labels a classifier can be trained on.
// Unknown is reserved for fallback results.
var TrainingLabels = []IncidentType{
	TypeMalware,
	TypePhishing,
	TypeIntrusion,
	TypeDataLeak,
	TypeDenialOfService,
	TypePrivilegeEscalation,
	TypeNormal,
}

// FeatureVector is an ordered set of named numeric features.
// Label is only set on training rows.
type FeatureVector struct {
	Names  []string     `json:"names"`
	Values []float64    `json:"values"`
	Label  IncidentType `json:"label,omitempty"`
}

// Get returns the named feature.
func (v FeatureVector) Get(name string) (float64, bool) {
	for i, n := range v.Names {
		if n == name {
			return v.Values[i], true
		}
	}
	return 0, false
}

// HasSchema reports whether v carries exactly names, in order.
func (v FeatureVector) HasSchema(names []string) bool {
	if len(v.Names) != len(names) || len(v.Values) != len(names) {
		return false
	}
	for i := range names {
		if v.Names[i] != names[i] {
			return false
		}
	}
	return true
}
