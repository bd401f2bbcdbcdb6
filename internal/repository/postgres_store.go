package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"SOCPulse/internal/domain/models"
	domrepo "SOCPulse/internal/domain/repository"
	pkgpg "SOCPulse/pkg/postgres"
	applogger "SOCPulse/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresSchema creates the incident, analysis and audit tables.
var PostgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS incidents (
		id          BIGSERIAL PRIMARY KEY,
		title       TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		severity    TEXT NOT NULL,
		status      TEXT NOT NULL DEFAULT 'open',
		tags        TEXT NOT NULL DEFAULT '',
		alert_id    TEXT UNIQUE,
		escalated   BOOLEAN NOT NULL DEFAULT false,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	// older deployments predate the alert key and escalation marker
	`ALTER TABLE incidents ADD COLUMN IF NOT EXISTS alert_id TEXT`,
	`ALTER TABLE incidents ADD COLUMN IF NOT EXISTS escalated BOOLEAN NOT NULL DEFAULT false`,
	`CREATE UNIQUE INDEX IF NOT EXISTS incidents_alert_id_key ON incidents (alert_id)`,
	`CREATE TABLE IF NOT EXISTS incident_analyses (
		id               BIGSERIAL PRIMARY KEY,
		incident_id      BIGINT NOT NULL REFERENCES incidents(id),
		result           JSONB NOT NULL,
		severity_updated BOOLEAN NOT NULL DEFAULT false,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS incident_analyses_incident_idx ON incident_analyses (incident_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id        BIGSERIAL PRIMARY KEY,
		ts        TIMESTAMPTZ NOT NULL DEFAULT now(),
		user_sub  TEXT NOT NULL DEFAULT '',
		action    TEXT NOT NULL,
		resource  TEXT NOT NULL DEFAULT '',
		details   TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS audit_log_ts_idx ON audit_log (ts DESC)`,
}

// querier is the part of *pgxpool.Pool the store uses; pgx.Tx also fits.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore implements IncidentStore and AuditStore.
type PostgresStore struct {
	db  querier
	l   *applogger.Logger
	now func() time.Time
}

func NewPostgresStore(pg *pkgpg.Client, l *applogger.Logger) *PostgresStore {
	return newPostgresStore(pg.Pool(), l)
}

func newPostgresStore(db querier, l *applogger.Logger) *PostgresStore {
	if l == nil {
		l = applogger.NewNop()
	}
	return &PostgresStore{db: db, l: l, now: time.Now}
}

var (
	_ domrepo.IncidentStore = (*PostgresStore)(nil)
	_ domrepo.AuditStore    = (*PostgresStore)(nil)
)

const incidentCols = `id, title, description, severity, status, tags, COALESCE(alert_id, ''), escalated, created_at, updated_at`

// scanIncident reads incidentCols followed by any extra columns.
func scanIncident(row pgx.Row, extra ...any) (models.IncidentRecord, error) {
	var (
		r        models.IncidentRecord
		severity string
		status   string
	)
	dest := append([]any{&r.ID, &r.Title, &r.Description, &severity, &status, &r.Tags, &r.AlertID, &r.Escalated, &r.CreatedAt, &r.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return models.IncidentRecord{}, err
	}
	r.Severity = models.ParseSeverity(severity)
	r.Status = models.IncidentStatus(status)
	return r, nil
}

func (s *PostgresStore) RecentIncidents(ctx context.Context, limit int) ([]models.IncidentRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+incidentCols+` FROM incidents ORDER BY created_at DESC LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("recent incidents: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.IncidentRecord, error) {
		return scanIncident(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan incidents: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetIncident(ctx context.Context, id int64) (models.IncidentRecord, error) {
	r, err := scanIncident(s.db.QueryRow(ctx,
		`SELECT `+incidentCols+` FROM incidents WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.IncidentRecord{}, fmt.Errorf("incident %d: %w", id, domrepo.ErrNotFound)
	}
	if err != nil {
		return models.IncidentRecord{}, fmt.Errorf("get incident: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) normalize(rec models.IncidentRecord) (models.IncidentRecord, time.Time) {
	now := s.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.Status == "" {
		rec.Status = models.IncidentOpen
	}
	if !rec.Severity.Valid() {
		rec.Severity = models.SeverityMedium
	}
	return rec, now
}

func (s *PostgresStore) InsertIncident(ctx context.Context, rec models.IncidentRecord) (int64, error) {
	rec, now := s.normalize(rec)
	var id int64
	err := s.db.QueryRow(ctx,
		`INSERT INTO incidents (title, description, severity, status, tags, alert_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8) RETURNING id`,
		rec.Title, rec.Description, string(rec.Severity), string(rec.Status), rec.Tags, rec.AlertID, rec.CreatedAt, now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert incident: %w", err)
	}
	return id, nil
}

// UpsertAlertIncident relies on the unique alert_id column. The no-op
// update makes RETURNING yield the existing row; xmax = 0 only for a fresh
// insert.
func (s *PostgresStore) UpsertAlertIncident(ctx context.Context, rec models.IncidentRecord) (models.IncidentRecord, bool, error) {
	if rec.AlertID == "" {
		return models.IncidentRecord{}, false, fmt.Errorf("%w: incident without alert id", models.ErrInvalidInput)
	}
	rec, now := s.normalize(rec)
	var created bool
	out, err := scanIncident(s.db.QueryRow(ctx,
		`INSERT INTO incidents (title, description, severity, status, tags, alert_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (alert_id) DO UPDATE SET alert_id = EXCLUDED.alert_id
		 RETURNING `+incidentCols+`, (xmax = 0)`,
		rec.Title, rec.Description, string(rec.Severity), string(rec.Status), rec.Tags, rec.AlertID, rec.CreatedAt, now,
	), &created)
	if err != nil {
		return models.IncidentRecord{}, false, fmt.Errorf("upsert incident for alert %s: %w", rec.AlertID, err)
	}
	return out, created, nil
}

func (s *PostgresStore) UpdateSeverity(ctx context.Context, id int64, severity models.Severity) error {
	if !severity.Valid() {
		return fmt.Errorf("%w: severity %q", models.ErrInvalidInput, severity)
	}
	return s.update(ctx, id, `UPDATE incidents SET severity = $1, updated_at = $2 WHERE id = $3`, string(severity))
}

func (s *PostgresStore) EscalateSeverity(ctx context.Context, id int64, severity models.Severity) (bool, error) {
	if !severity.Valid() {
		return false, fmt.Errorf("%w: severity %q", models.ErrInvalidInput, severity)
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE incidents SET severity = $1, escalated = true, updated_at = $2 WHERE id = $3 AND NOT escalated`,
		string(severity), s.now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("escalate incident %d: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	// Zero rows: either already escalated or missing.
	if _, err := s.GetIncident(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id int64, status models.IncidentStatus) error {
	return s.update(ctx, id, `UPDATE incidents SET status = $1, updated_at = $2 WHERE id = $3`, string(status))
}

func (s *PostgresStore) update(ctx context.Context, id int64, q string, value string) error {
	tag, err := s.db.Exec(ctx, q, value, s.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update incident %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("incident %d: %w", id, domrepo.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) SaveAnalysis(ctx context.Context, a models.IncidentAnalysis) (int64, error) {
	payload, err := json.Marshal(a.Result)
	if err != nil {
		return 0, fmt.Errorf("marshal analysis: %w", err)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}
	var id int64
	err = s.db.QueryRow(ctx,
		`INSERT INTO incident_analyses (incident_id, result, severity_updated, created_at)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		a.IncidentID, payload, a.SeverityUpdated, a.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("save analysis: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) LatestAnalysis(ctx context.Context, incidentID int64) (models.IncidentAnalysis, error) {
	var (
		a       models.IncidentAnalysis
		payload []byte
	)
	err := s.db.QueryRow(ctx,
		`SELECT id, incident_id, result, severity_updated, created_at
		 FROM incident_analyses WHERE incident_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`,
		incidentID,
	).Scan(&a.ID, &a.IncidentID, &payload, &a.SeverityUpdated, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.IncidentAnalysis{}, fmt.Errorf("analysis for incident %d: %w", incidentID, domrepo.ErrNotFound)
	}
	if err != nil {
		return models.IncidentAnalysis{}, fmt.Errorf("latest analysis: %w", err)
	}
	if err := json.Unmarshal(payload, &a.Result); err != nil {
		return models.IncidentAnalysis{}, fmt.Errorf("unmarshal analysis: %w", err)
	}
	return a, nil
}

const auditCols = `id, ts, user_sub, action, resource, details`

func (s *PostgresStore) RecentAudits(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	return s.queryAudits(ctx,
		`SELECT `+auditCols+` FROM audit_log ORDER BY ts DESC LIMIT $1`, clampLimit(limit))
}

func (s *PostgresStore) AuditsSince(ctx context.Context, since time.Time, limit int) ([]models.AuditEntry, error) {
	return s.queryAudits(ctx,
		`SELECT `+auditCols+` FROM audit_log WHERE ts >= $1 ORDER BY ts DESC LIMIT $2`, since, clampLimit(limit))
}

func (s *PostgresStore) queryAudits(ctx context.Context, q string, args ...any) ([]models.AuditEntry, error) {
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		s.l.Error("postgres audit query error", applogger.Error(err))
		return nil, fmt.Errorf("query audits: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.AuditEntry, error) {
		var e models.AuditEntry
		err := row.Scan(&e.ID, &e.Timestamp, &e.UserSub, &e.Action, &e.Resource, &e.Details)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan audits: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) InsertAudit(ctx context.Context, e models.AuditEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now().UTC()
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO audit_log (ts, user_sub, action, resource, details) VALUES ($1, $2, $3, $4, $5)`,
		e.Timestamp, e.UserSub, e.Action, e.Resource, e.Details,
	)
	if err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

// clampLimit keeps list queries bounded.
func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 10000:
		return 10000
	default:
		return limit
	}
}
