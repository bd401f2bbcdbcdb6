package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"SOCPulse/internal/domain/models"
	domrepo "SOCPulse/internal/domain/repository"
	"SOCPulse/internal/middleware"
	pkgkafka "SOCPulse/pkg/kafka"
	applogger "SOCPulse/pkg/logger"

	"github.com/xeipuuv/gojsonschema"
)

// AlertSchema is the accepted shape of an inbound Wazuh-style alert.
const AlertSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id"],
  "properties": {
    "id": {"type": "string", "minLength": 1, "maxLength": 256},
    "rule": {
      "type": "object",
      "properties": {
        "id": {"type": "string"},
        "level": {"type": "integer", "minimum": 0, "maximum": 15},
        "description": {"type": "string", "maxLength": 4096},
        "groups": {"type": "array", "items": {"type": "string"}}
      }
    },
    "agent": {
      "type": "object",
      "properties": {
        "id": {"type": "string"},
        "name": {"type": "string"},
        "ip": {"type": "string"}
      }
    },
    "data": {"type": "object"},
    "syscheck": {"type": "object"}
  }
}`

// KafkaAlertsHandler validates alerts from the ingest topic and feeds the
// alert pipeline. Malformed payloads are permanent failures and go to the DLQ.
type KafkaAlertsHandler struct {
	topic    string
	schema   *gojsonschema.Schema
	pipeline middleware.Proc
	metrics  domrepo.Metrics
	logger   *applogger.Logger
}

func NewKafkaAlertsHandler(topic string, pipeline middleware.Proc, metrics domrepo.Metrics, logger *applogger.Logger) (*KafkaAlertsHandler, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(AlertSchema))
	if err != nil {
		return nil, fmt.Errorf("compile alert schema: %w", err)
	}
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	if logger == nil {
		logger = applogger.NewNop()
	}
	return &KafkaAlertsHandler{
		topic:    topic,
		schema:   schema,
		pipeline: pipeline,
		metrics:  metrics,
		logger:   logger.Component("alerts_handler"),
	}, nil
}

func (h *KafkaAlertsHandler) Topic() string { return h.topic }

// Validate checks b against AlertSchema and decodes it.
func (h *KafkaAlertsHandler) Validate(b []byte) (*models.Alert, error) {
	res, err := h.schema.Validate(gojsonschema.NewBytesLoader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidInput, strings.Join(msgs, "; "))
	}
	var a models.Alert
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	return &a, nil
}

func (h *KafkaAlertsHandler) Handle(ctx context.Context, b []byte) error {
	start := time.Now()
	a, err := h.Validate(b)
	if err != nil {
		h.metrics.RecordError("alert_invalid")
		return pkgkafka.Permanent(err)
	}

	err = h.pipeline.Process(ctx, a)
	h.metrics.RecordLatency("alert_ingest", time.Since(start).Seconds())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, middleware.ErrDuplicate), errors.Is(err, middleware.ErrThrottled):
		// dropped on purpose, commit the offset
		h.logger.Debug("alert dropped", applogger.String("alert_id", a.ID), applogger.String("reason", err.Error()))
		return nil
	case errors.Is(err, models.ErrInvalidInput):
		h.metrics.RecordError("alert_invalid")
		return pkgkafka.Permanent(err)
	default:
		h.metrics.RecordError("alert_process")
		return err
	}
}

var _ pkgkafka.MessageHandler = (*KafkaAlertsHandler)(nil)
