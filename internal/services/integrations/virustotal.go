package integrations

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"SOCPulse/internal/domain/models"
	"SOCPulse/internal/domain/service"
	"SOCPulse/pkg/cache"
	xhttp "SOCPulse/pkg/http"
	applogger "SOCPulse/pkg/logger"
)

// ErrNotConfigured is returned by adapters missing credentials or endpoints.
var ErrNotConfigured = errors.New("integration not configured")

// VirusTotalConfig configures the hash enrichment client.
type VirusTotalConfig struct {
	BaseURL     string            `yaml:"base_url" default:"https://www.virustotal.com/api/v3"`
	APIKey      string            `yaml:"api_key"`
	Timeout     time.Duration     `yaml:"timeout" default:"10s"`
	CacheTTL    time.Duration     `yaml:"cache_ttl" default:"6h"`
	Reliability ReliabilityConfig `yaml:"reliability"`
}

// VirusTotal implements service.ThreatIntel against the v3 files API.
// Verdicts are cached, including "not found".
type VirusTotal struct {
	base   *HTTPServiceBase
	apiKey string
	cache  cache.Store
	ttl    time.Duration
	logger *applogger.Logger
}

func NewVirusTotal(cfg VirusTotalConfig, c cache.Store, logger *applogger.Logger, opts ...xhttp.ClientOption) *VirusTotal {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.virustotal.com/api/v3"
	}
	if logger == nil {
		logger = applogger.NewNop()
	}
	rel := NewReliability("virustotal", cfg.Reliability, logger)
	return &VirusTotal{
		base:   NewHTTPServiceBase(cfg.BaseURL, cfg.Timeout, map[string]string{"x-apikey": cfg.APIKey}, rel, opts...),
		apiKey: cfg.APIKey,
		cache:  c,
		ttl:    cfg.CacheTTL,
		logger: logger,
	}
}

func cacheKey(hash string) string {
	return cache.Key("vt", strings.ToLower(hash))
}

// LookupHash returns the VirusTotal verdict for an MD5 or SHA-256 hash.
func (v *VirusTotal) LookupHash(ctx context.Context, hash string) (service.HashReport, error) {
	if !models.IsValidHash(hash) {
		return service.HashReport{}, fmt.Errorf("%w: %q is not an md5 or sha256 hash", models.ErrInvalidInput, hash)
	}
	if v.apiKey == "" {
		return service.HashReport{}, fmt.Errorf("virustotal: %w", ErrNotConfigured)
	}

	rep, hit, err := cache.Fetch(ctx, v.cache, cacheKey(hash), v.ttl, func(ctx context.Context) (service.HashReport, error) {
		var body map[string]interface{}
		err := v.base.GetJSON(ctx, "/files/"+hash, &body)
		var se *xhttp.StatusError
		switch {
		case errors.As(err, &se) && se.Code == http.StatusNotFound:
			body = nil
		case err != nil:
			return service.HashReport{}, err
		}
		return parseFileReport(hash, body), nil
	})
	if err != nil {
		return service.HashReport{}, err
	}
	if hit {
		v.logger.Debug("virustotal: cache hit", applogger.String("hash", hash))
	}
	return rep, nil
}

func parseFileReport(hash string, body map[string]interface{}) service.HashReport {
	rep := service.HashReport{Hash: hash, Provider: "virustotal", Raw: body}
	data, ok := body["data"].(map[string]interface{})
	if !ok {
		return rep
	}
	rep.Found = true
	attrs, _ := data["attributes"].(map[string]interface{})
	stats, _ := attrs["last_analysis_stats"].(map[string]interface{})
	rep.Malicious = count(stats["malicious"])
	rep.Suspicious = count(stats["suspicious"])
	rep.Harmless = count(stats["harmless"])
	rep.Undetected = count(stats["undetected"])
	return rep
}

func count(v interface{}) int {
	if f, ok := v.(float64); ok {
		return int(f)
	}
	return 0
}
