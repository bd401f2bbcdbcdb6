package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"SOCPulse/internal/domain/models"
	domrepo "SOCPulse/internal/domain/repository"
	pkgch "SOCPulse/pkg/clickhouse"
	applogger "SOCPulse/pkg/logger"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
)

// ClickHouseSchema creates the telemetry database and tables.
var ClickHouseSchema = []string{
	"CREATE DATABASE IF NOT EXISTS socpulse",
	`CREATE TABLE IF NOT EXISTS socpulse.metrics (
		ts DateTime64(3), host String,
		cpu_percent Float64, memory_percent Float64,
		memory_used UInt64, memory_total UInt64,
		net_bytes_sent UInt64, net_bytes_recv UInt64,
		login_count Float64
	) ENGINE = MergeTree ORDER BY (ts) TTL toDateTime(ts) + INTERVAL 90 DAY`,
	`CREATE TABLE IF NOT EXISTS socpulse.anomalies (
		id String, ts DateTime64(3), type LowCardinality(String), severity LowCardinality(String),
		score Float64, is_anomaly UInt8, description String, details String,
		source LowCardinality(String), acknowledged UInt8
	) ENGINE = MergeTree ORDER BY (ts, id)`,
}

const (
	metricsTable   = "socpulse.metrics"
	anomaliesTable = "socpulse.anomalies"
	insertChunk    = 2000
)

// chConn is the part of driver.Conn the store uses.
type chConn interface {
	Exec(ctx context.Context, query string, args ...any) error
	Query(ctx context.Context, query string, args ...any) (driver.Rows, error)
	PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error)
}

// CHTelemetryStore keeps metric samples and anomaly records in ClickHouse.
type CHTelemetryStore struct {
	conn chConn
	l    *applogger.Logger
}

func NewCHTelemetryStore(ch *pkgch.Client, l *applogger.Logger) *CHTelemetryStore {
	return newCHTelemetryStore(ch.Conn(), l)
}

func newCHTelemetryStore(conn chConn, l *applogger.Logger) *CHTelemetryStore {
	if l == nil {
		l = applogger.NewNop()
	}
	return &CHTelemetryStore{conn: conn, l: l}
}

var _ domrepo.TelemetryStore = (*CHTelemetryStore)(nil)

const metricCols = "ts, host, cpu_percent, memory_percent, memory_used, memory_total, net_bytes_sent, net_bytes_recv, login_count"

func (s *CHTelemetryStore) InsertMetric(ctx context.Context, m models.MetricSample) error {
	return s.InsertMetrics(ctx, []models.MetricSample{m})
}

// InsertMetrics sends samples in batches of insertChunk. Samples without a
// timestamp are skipped.
func (s *CHTelemetryStore) InsertMetrics(ctx context.Context, samples []models.MetricSample) error {
	for len(samples) > 0 {
		n := min(len(samples), insertChunk)
		if err := s.sendMetrics(ctx, samples[:n]); err != nil {
			s.l.Error("clickhouse insert_metrics error", applogger.Int("rows", n), applogger.Error(err))
			return fmt.Errorf("insert metrics: %w", err)
		}
		samples = samples[n:]
	}
	return nil
}

func (s *CHTelemetryStore) sendMetrics(ctx context.Context, chunk []models.MetricSample) error {
	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s (%s)", metricsTable, metricCols))
	if err != nil {
		return err
	}
	defer func() { _ = batch.Abort() }()

	rows := 0
	for _, m := range chunk {
		if m.Timestamp.IsZero() {
			continue
		}
		if err := batch.Append(chTime(m.Timestamp), m.Host, m.CPUPercent, m.MemoryPercent,
			m.MemoryUsed, m.MemoryTotal, m.NetBytesSent, m.NetBytesRecv, m.LoginCount); err != nil {
			return err
		}
		rows++
	}
	if rows == 0 {
		return nil
	}
	return batch.Send()
}

func (s *CHTelemetryStore) RecentMetrics(ctx context.Context, limit int) ([]models.MetricSample, error) {
	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY ts DESC LIMIT ?", metricCols, metricsTable)
	return s.queryMetrics(ctx, "recent_metrics", q, clampLimit(limit))
}

func (s *CHTelemetryStore) MetricsSince(ctx context.Context, since time.Time, limit int) ([]models.MetricSample, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE ts >= ? ORDER BY ts DESC LIMIT ?", metricCols, metricsTable)
	return s.queryMetrics(ctx, "metrics_since", q, since, clampLimit(limit))
}

func (s *CHTelemetryStore) queryMetrics(ctx context.Context, op, q string, args ...any) ([]models.MetricSample, error) {
	start := time.Now()
	rows, err := s.conn.Query(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse "+op+" query error", applogger.Error(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []models.MetricSample
	for rows.Next() {
		var m models.MetricSample
		if err := rows.Scan(&m.Timestamp, &m.Host, &m.CPUPercent, &m.MemoryPercent,
			&m.MemoryUsed, &m.MemoryTotal, &m.NetBytesSent, &m.NetBytesRecv, &m.LoginCount); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.l.Debug("clickhouse "+op,
		applogger.Int("rows", len(out)),
		applogger.Duration("took", time.Since(start)),
	)
	return out, nil
}

const anomalyCols = "id, ts, type, severity, score, is_anomaly, description, details, source, acknowledged"

// InsertAnomaly assigns a UUID when the record has none and returns it.
func (s *CHTelemetryStore) InsertAnomaly(ctx context.Context, r models.AnomalyRecord) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", anomaliesTable, anomalyCols, placeholders(10))
	err := s.conn.Exec(ctx, q,
		r.ID, chTime(r.Timestamp), string(r.Category), string(r.Severity), r.Score,
		boolToUInt8(r.IsAnomaly), r.Description, r.Details, r.Source, boolToUInt8(r.Acknowledged),
	)
	if err != nil {
		s.l.Error("clickhouse insert_anomaly error", applogger.String("type", string(r.Category)), applogger.Error(err))
		return "", fmt.Errorf("insert anomaly: %w", err)
	}
	return r.ID, nil
}

// chTime fits t to the DateTime64(3) columns.
func chTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func (s *CHTelemetryStore) RecentAnomalies(ctx context.Context, limit int) ([]models.AnomalyRecord, error) {
	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY ts DESC LIMIT ?", anomalyCols, anomaliesTable)
	rows, err := s.conn.Query(ctx, q, clampLimit(limit))
	if err != nil {
		s.l.Error("clickhouse recent_anomalies query error", applogger.Error(err))
		return nil, fmt.Errorf("recent anomalies: %w", err)
	}
	defer rows.Close()

	var out []models.AnomalyRecord
	for rows.Next() {
		var (
			r             models.AnomalyRecord
			category, sev string
			isAnom, ack   uint8
		)
		if err := rows.Scan(&r.ID, &r.Timestamp, &category, &sev, &r.Score,
			&isAnom, &r.Description, &r.Details, &r.Source, &ack); err != nil {
			return nil, fmt.Errorf("scan anomaly: %w", err)
		}
		r.Category = models.AnomalyCategory(category)
		r.Severity = models.ParseSeverity(sev)
		r.IsAnomaly = isAnom == 1
		r.Acknowledged = ack == 1
		out = append(out, r)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	return "(" + strings.TrimSuffix(strings.Repeat("?, ", n), ", ") + ")"
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
