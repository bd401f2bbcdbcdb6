package integrations

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"SOCPulse/internal/domain/service"
	xhttp "SOCPulse/pkg/http"
	applogger "SOCPulse/pkg/logger"
)

// FleetDMConfig configures endpoint containment. Without a URL every
// action is simulated and only logged.
type FleetDMConfig struct {
	URL         string            `yaml:"url"`
	Token       string            `yaml:"token"`
	Timeout     time.Duration     `yaml:"timeout" default:"10s"`
	Reliability ReliabilityConfig `yaml:"reliability"`
}

// FleetDM implements service.Containment. Hash blocking becomes a
// FleetDM policy and host isolation a host lock; network and identity
// actions have no FleetDM equivalent and are simulated.
type FleetDM struct {
	base   *HTTPServiceBase
	sim    *SimulatedContainment
	logger *applogger.Logger
}

func NewFleetDM(cfg FleetDMConfig, logger *applogger.Logger, opts ...xhttp.ClientOption) *FleetDM {
	if logger == nil {
		logger = applogger.NewNop()
	}
	f := &FleetDM{sim: NewSimulatedContainment(logger), logger: logger}
	if cfg.URL != "" {
		rel := NewReliability("fleetdm", cfg.Reliability, logger)
		f.base = NewHTTPServiceBase(cfg.URL, cfg.Timeout, map[string]string{"Authorization": "Bearer " + cfg.Token}, rel, opts...)
	}
	return f
}

// Simulated reports whether no FleetDM server is configured.
func (f *FleetDM) Simulated() bool { return f.base == nil }

type fleetPolicy struct {
	Name        string `json:"name"`
	Query       string `json:"query"`
	Description string `json:"description"`
	Resolution  string `json:"resolution"`
	Critical    bool   `json:"critical"`
}

func (f *FleetDM) BlockHash(ctx context.Context, hash string) (service.ContainmentResult, error) {
	res := service.ContainmentResult{Target: hash, Action: "blocked", Method: "fleetdm_policy", Status: "success"}
	if f.Simulated() {
		f.sim.log(res)
		return res, nil
	}
	policy := fleetPolicy{
		Name:        "Block hash " + hash,
		Query:       fmt.Sprintf("SELECT 1 WHERE NOT EXISTS (SELECT 1 FROM hash WHERE md5 = '%[1]s' OR sha256 = '%[1]s');", hash),
		Description: "Created by automated incident response",
		Resolution:  "Quarantine the file and re-image if it executed",
		Critical:    true,
	}
	if err := f.base.PostJSON(ctx, "/api/v1/fleet/global/policies", policy, nil); err != nil {
		return service.ContainmentResult{}, err
	}
	return res, nil
}

func (f *FleetDM) IsolateHost(ctx context.Context, host string) (service.ContainmentResult, error) {
	res := service.ContainmentResult{Target: host, Action: "isolated", Method: "fleetdm_lock", Status: "success"}
	if f.Simulated() {
		f.sim.log(res)
		return res, nil
	}
	var lookup struct {
		Host struct {
			ID int64 `json:"id"`
		} `json:"host"`
	}
	if err := f.base.GetJSON(ctx, "/api/v1/fleet/hosts/identifier/"+url.PathEscape(host), &lookup); err != nil {
		return service.ContainmentResult{}, err
	}
	if err := f.base.PostJSON(ctx, fmt.Sprintf("/api/v1/fleet/hosts/%d/lock", lookup.Host.ID), struct{}{}, nil); err != nil {
		return service.ContainmentResult{}, err
	}
	return res, nil
}

func (f *FleetDM) BlockIP(ctx context.Context, ip string) (service.ContainmentResult, error) {
	return f.sim.BlockIP(ctx, ip)
}

func (f *FleetDM) ThrottleSource(ctx context.Context, ip string) (service.ContainmentResult, error) {
	return f.sim.ThrottleSource(ctx, ip)
}

func (f *FleetDM) QuarantineMessage(ctx context.Context, messageID string) (service.ContainmentResult, error) {
	return f.sim.QuarantineMessage(ctx, messageID)
}

func (f *FleetDM) RevokeAccess(ctx context.Context, user, mode string) (service.ContainmentResult, error) {
	return f.sim.RevokeAccess(ctx, user, mode)
}

// SimulatedContainment logs the action it would take and reports success.
type SimulatedContainment struct {
	logger *applogger.Logger
}

func NewSimulatedContainment(logger *applogger.Logger) *SimulatedContainment {
	if logger == nil {
		logger = applogger.NewNop()
	}
	return &SimulatedContainment{logger: logger}
}

func (s *SimulatedContainment) log(res service.ContainmentResult) {
	s.logger.Info("containment action",
		applogger.String("action", res.Action),
		applogger.String("target", res.Target),
		applogger.String("method", res.Method),
	)
}

func (s *SimulatedContainment) result(target, action string) (service.ContainmentResult, error) {
	res := service.ContainmentResult{Target: target, Action: action, Method: "simulated", Status: "success"}
	s.log(res)
	return res, nil
}

func (s *SimulatedContainment) BlockHash(_ context.Context, hash string) (service.ContainmentResult, error) {
	return s.result(hash, "blocked")
}

func (s *SimulatedContainment) IsolateHost(_ context.Context, host string) (service.ContainmentResult, error) {
	return s.result(host, "isolated")
}

func (s *SimulatedContainment) BlockIP(_ context.Context, ip string) (service.ContainmentResult, error) {
	return s.result(ip, "blocked")
}

func (s *SimulatedContainment) ThrottleSource(_ context.Context, ip string) (service.ContainmentResult, error) {
	return s.result(ip, "rate_limited")
}

func (s *SimulatedContainment) QuarantineMessage(_ context.Context, messageID string) (service.ContainmentResult, error) {
	return s.result(messageID, "quarantined")
}

func (s *SimulatedContainment) RevokeAccess(_ context.Context, user, mode string) (service.ContainmentResult, error) {
	return s.result(user, mode)
}
