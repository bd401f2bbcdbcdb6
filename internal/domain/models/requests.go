package models

// Requests for the HTTP endpoints. Defaults are applied by creasty/defaults
// before validation.

type ClassifyRequest struct {
	Title            string `json:"title"`
	Description      string `json:"description" validate:"required"`
	Severity         string `json:"severity" default:"medium" validate:"oneof=low medium high critical"`
	Tags             string `json:"tags"`
	AlertCount       int    `json:"alert_count" default:"1" validate:"gte=0,lte=100000"`
	SourceIPs        int    `json:"source_ips" default:"1" validate:"gte=0,lte=100000"`
	AffectedSystems  int    `json:"affected_systems" default:"1" validate:"gte=0,lte=100000"`
	LoginFailures    int    `json:"login_failures" validate:"gte=0"`
	PrivilegeChanges int    `json:"privilege_changes" validate:"gte=0"`
	BusinessCritical bool   `json:"is_business_critical"`
}

type TrainAnomalyRequest struct {
	Category string `json:"category" query:"category" validate:"omitempty,oneof=cpu memory login network_traffic data_exfiltration"`
}

type ScoreMetricsRequest struct {
	Host          string  `json:"host"`
	CPUPercent    float64 `json:"cpu_percent" validate:"gte=0,lte=100"`
	MemoryPercent float64 `json:"memory_percent" validate:"gte=0,lte=100"`
	MemoryUsed    uint64  `json:"memory_used"`
	MemoryTotal   uint64  `json:"memory_total"`
	NetBytesSent  uint64  `json:"net_bytes_sent"`
	NetBytesRecv  uint64  `json:"net_bytes_recv"`
	LoginCount    float64 `json:"login_count" validate:"gte=0"`
}

type HashRequest struct {
	Hash string `json:"hash" validate:"required"`
}

type DeployRequest struct {
	CloudProvider string `query:"cloud_provider" json:"cloud_provider" default:"aws"`
}

type ListAnomaliesRequest struct {
	Limit int `query:"limit" default:"50" validate:"gte=1,lte=1000"`
}
