package features

// Feature names, in schema order.
const (
	AlertCount                 = "alert_count"
	SeverityScore              = "severity_score"
	HasMalwareHash             = "has_malware_hash"
	NetworkTrafficAnomaly      = "network_traffic_anomaly"
	LoginFailureCount          = "login_failure_count"
	DataExfiltrationIndicators = "data_exfiltration_indicators"
	PrivilegeChangeCount       = "privilege_change_count"
	HourOfDay                  = "hour_of_day"
	IsBusinessHours            = "is_business_hours"
	SourceIPCount              = "source_ip_count"
	AffectedSystems            = "affected_systems"
	ThreatActorIndicators      = "threat_actor_indicators"
	KnownMalwareSignature      = "known_malware_signature"
)

// Schema is the fixed feature order shared by every classifier input.
var Schema = []string{
	AlertCount,
	SeverityScore,
	HasMalwareHash,
	NetworkTrafficAnomaly,
	LoginFailureCount,
	DataExfiltrationIndicators,
	PrivilegeChangeCount,
	HourOfDay,
	IsBusinessHours,
	SourceIPCount,
	AffectedSystems,
	ThreatActorIndicators,
	KnownMalwareSignature,
}

// CountFeatures are clipped and min-max scaled by Normalize.
var CountFeatures = []string{
	AlertCount,
	SeverityScore,
	LoginFailureCount,
	PrivilegeChangeCount,
	SourceIPCount,
	AffectedSystems,
}

// neutral is the value used when a source has no signal for a feature.
func neutral(name string) float64 {
	if name == SeverityScore {
		return 2
	}
	return 0
}

// Business hours are [8, 18) local to the event timestamp.
const (
	businessStart = 8
	businessEnd   = 18
	defaultHour   = 12
)

func isBusinessHour(h int) float64 {
	if h >= businessStart && h < businessEnd {
		return 1
	}
	return 0
}
