package integrations

import (
	"context"
	"fmt"
	"time"

	"SOCPulse/internal/domain/models"
	"SOCPulse/internal/domain/repository"
)

// LocalCaseManager tracks cases in the incident store itself.
type LocalCaseManager struct {
	incidents repository.IncidentStore
	audits    repository.AuditStore
	now       func() time.Time
}

func NewLocalCaseManager(incidents repository.IncidentStore, audits repository.AuditStore) *LocalCaseManager {
	return &LocalCaseManager{incidents: incidents, audits: audits, now: time.Now}
}

// OpenCase persists the incident when it has no ID yet, moves it to
// in_progress and returns the case reference.
func (m *LocalCaseManager) OpenCase(ctx context.Context, incident models.IncidentRecord, summary string) (string, error) {
	if m.incidents == nil {
		return "", fmt.Errorf("case manager: %w", ErrNotConfigured)
	}
	id := incident.ID
	if id == 0 {
		if incident.Status == "" {
			incident.Status = models.IncidentOpen
		}
		if incident.CreatedAt.IsZero() {
			incident.CreatedAt = m.now().UTC()
		}
		var err error
		if id, err = m.incidents.InsertIncident(ctx, incident); err != nil {
			return "", fmt.Errorf("insert incident: %w", err)
		}
	}
	if err := m.incidents.UpdateStatus(ctx, id, models.IncidentInProgress); err != nil {
		return "", fmt.Errorf("update status: %w", err)
	}
	ref := fmt.Sprintf("INC-%d", id)
	if m.audits != nil {
		_ = m.audits.InsertAudit(ctx, models.AuditEntry{
			Timestamp: m.now().UTC(),
			UserSub:   "system",
			Action:    "open_case",
			Resource:  fmt.Sprintf("incident:%d", id),
			Details:   ref + ": " + summary,
		})
	}
	return ref, nil
}
