package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"SOCPulse/internal/domain/models"
	domrepo "SOCPulse/internal/domain/repository"
	domsvc "SOCPulse/internal/domain/service"
	"SOCPulse/internal/services/integrations"
	"SOCPulse/internal/usecase"
	xhttp "SOCPulse/pkg/http"
	xlogger "SOCPulse/pkg/logger"
	xutil "SOCPulse/pkg/util"

	"github.com/labstack/echo/v4"
)

// IncidentAPI is the incident analysis surface used by the handlers.
type IncidentAPI interface {
	AnalyzeIncident(ctx context.Context, id int64, actor string) (usecase.AnalysisReport, error)
	LatestAnalysis(ctx context.Context, id int64) (models.IncidentAnalysis, error)
	ClassifyIncident(ctx context.Context, req models.ClassifyRequest) (models.ClassificationResult, error)
	TrainIncidentModel(ctx context.Context, actor string) (usecase.TrainSummary, error)
	Status(ctx context.Context) usecase.ModelStatus
	DeployModel(ctx context.Context, provider, actor string) (usecase.DeployResult, error)
}

type AnomalyAPI interface {
	TrainAnomalyModels(ctx context.Context, category string) ([]usecase.TrainOutcome, error)
	ScoreCurrentMetrics(ctx context.Context, sample models.MetricSample) ([]models.AnomalyScore, error)
	RecentAnomalies(ctx context.Context, limit int) ([]models.AnomalyRecord, error)
}

type ResponseAPI interface {
	RunAutomatedResponse(ctx context.Context, alert models.Alert) (models.AutomatedResponse, error)
	EnrichHash(ctx context.Context, hash, actor string) (usecase.HashEnrichment, error)
	BlockHash(ctx context.Context, hash, actor string) (domsvc.ContainmentResult, error)
}

type MetricsReader interface {
	MetricsSince(ctx context.Context, since time.Time, limit int) ([]models.MetricSample, error)
}

// SOCEchoHandler serves the analysis, anomaly and playbook endpoints.
type SOCEchoHandler struct {
	logger    *xlogger.Logger
	incidents IncidentAPI
	anomalies AnomalyAPI
	response  ResponseAPI
	telemetry MetricsReader
	stream    http.Handler
}

func NewSOCEchoHandler(
	logger *xlogger.Logger,
	incidents IncidentAPI,
	anomalies AnomalyAPI,
	response ResponseAPI,
	telemetry MetricsReader,
	stream http.Handler,
) *SOCEchoHandler {
	if logger == nil {
		logger = xlogger.NewNop()
	}
	return &SOCEchoHandler{
		logger:    logger.Component("api"),
		incidents: incidents,
		anomalies: anomalies,
		response:  response,
		telemetry: telemetry,
		stream:    stream,
	}
}

func (h *SOCEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/incidents/:id/analyze", h.AnalyzeIncident)
	g.GET("/incidents/:id/analysis", h.LatestAnalysis)

	ai := g.Group("/ai")
	ai.POST("/classify", h.Classify)
	ai.POST("/train-incident-model", h.TrainIncidentModel)
	ai.GET("/incident-analysis-status", h.Status)
	ai.POST("/deploy-to-cloud", h.Deploy)
	ai.POST("/anomaly/train", h.TrainAnomaly)
	ai.POST("/anomaly/score", h.ScoreMetrics)
	ai.GET("/anomalies", h.Anomalies)

	pb := g.Group("/playbooks")
	pb.POST("/virustotal-enrich", h.EnrichHash)
	pb.POST("/block-hash", h.BlockHash)
	pb.POST("/run", h.RunPlaybook)

	g.GET("/metrics", h.MetricHistory)

	if h.stream != nil {
		e.GET("/ws/ai-alerts", echo.WrapHandler(h.stream))
	}
}

func (h *SOCEchoHandler) AnalyzeIncident(c echo.Context) error {
	id, err := incidentID(c)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	res, err := h.incidents.AnalyzeIncident(c.Request().Context(), id, xhttp.UserSub(c))
	if err != nil {
		return h.fail(c, "analyze incident", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SOCEchoHandler) LatestAnalysis(c echo.Context) error {
	id, err := incidentID(c)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	res, err := h.incidents.LatestAnalysis(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, "latest analysis", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SOCEchoHandler) Classify(c echo.Context) error {
	req := &models.ClassifyRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.incidents.ClassifyIncident(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, "classify", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SOCEchoHandler) TrainIncidentModel(c echo.Context) error {
	res, err := h.incidents.TrainIncidentModel(c.Request().Context(), xhttp.UserSub(c))
	if err != nil {
		return h.fail(c, "train incident model", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SOCEchoHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.incidents.Status(c.Request().Context()))
}

func (h *SOCEchoHandler) Deploy(c echo.Context) error {
	req := &models.DeployRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	provider := req.CloudProvider
	if q := c.QueryParam("cloud_provider"); q != "" {
		provider = q
	}
	res, err := h.incidents.DeployModel(c.Request().Context(), provider, xhttp.UserSub(c))
	if err != nil {
		return h.fail(c, "deploy model", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SOCEchoHandler) TrainAnomaly(c echo.Context) error {
	req := &models.TrainAnomalyRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	// echo binds query params only for GET and DELETE
	category := req.Category
	if q := c.QueryParam("category"); q != "" {
		category = q
	}
	res, err := h.anomalies.TrainAnomalyModels(c.Request().Context(), category)
	if err != nil {
		return h.fail(c, "train anomaly models", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SOCEchoHandler) ScoreMetrics(c echo.Context) error {
	req := &models.ScoreMetricsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	sample := models.MetricSample{
		Timestamp:     time.Now().UTC(),
		Host:          req.Host,
		CPUPercent:    req.CPUPercent,
		MemoryPercent: req.MemoryPercent,
		MemoryUsed:    req.MemoryUsed,
		MemoryTotal:   req.MemoryTotal,
		NetBytesSent:  req.NetBytesSent,
		NetBytesRecv:  req.NetBytesRecv,
		LoginCount:    req.LoginCount,
	}
	res, err := h.anomalies.ScoreCurrentMetrics(c.Request().Context(), sample)
	if err != nil {
		return h.fail(c, "score metrics", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SOCEchoHandler) Anomalies(c echo.Context) error {
	req := &models.ListAnomaliesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows, err := h.anomalies.RecentAnomalies(c.Request().Context(), req.Limit)
	if err != nil {
		return h.fail(c, "recent anomalies", err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *SOCEchoHandler) EnrichHash(c echo.Context) error {
	req := &models.HashRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.response.EnrichHash(c.Request().Context(), req.Hash, xhttp.UserSub(c))
	if err != nil {
		return h.fail(c, "virustotal enrich", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SOCEchoHandler) BlockHash(c echo.Context) error {
	req := &models.HashRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.response.BlockHash(c.Request().Context(), req.Hash, xhttp.UserSub(c))
	if err != nil {
		return h.fail(c, "block hash", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SOCEchoHandler) RunPlaybook(c echo.Context) error {
	alert := models.Alert{}
	if err := c.Bind(&alert); err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("malformed alert body"))
	}
	res, err := h.response.RunAutomatedResponse(c.Request().Context(), alert)
	if err != nil {
		return h.fail(c, "run playbook", err)
	}
	return xhttp.SuccessResponse(c, res)
}

var historyWindow = xutil.WindowOptions{Lookback: time.Hour, DefaultLimit: 500, MaxLimit: 5000}

// MetricHistory returns samples newer than ?since (RFC3339 or unix) or
// within ?window (e.g. 6h, 7d), last hour by default.
func (h *SOCEchoHandler) MetricHistory(c echo.Context) error {
	w := xutil.ReadWindow(time.Now().UTC(), c.QueryParam("since"), c.QueryParam("window"), c.QueryParam("limit"), historyWindow)

	rows, err := h.telemetry.MetricsSince(c.Request().Context(), w.Since, w.Limit)
	if err != nil {
		return h.fail(c, "metric history", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *SOCEchoHandler) fail(c echo.Context, op string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", xlogger.Error(err))
	} else {
		h.logger.Debug(op+" rejected", xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, models.ErrInvalidInput), errors.Is(err, usecase.ErrNoModel):
		return xhttp.BadRequestError(err.Error()).Wrap(err)
	case errors.Is(err, domrepo.ErrNotFound):
		return xhttp.NotFoundError(err.Error()).Wrap(err)
	case errors.Is(err, usecase.ErrTrainingInProgress):
		return xhttp.ConflictError(err.Error()).Wrap(err)
	case errors.Is(err, models.ErrInsufficientData):
		return xhttp.UnprocessableError(err.Error()).Wrap(err)
	case errors.Is(err, integrations.ErrNotConfigured):
		return xhttp.UnavailableError(err.Error()).Wrap(err)
	default:
		return xhttp.InternalError("Something went wrong").Wrap(err)
	}
}

func incidentID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, xhttp.BadRequestErrorf("invalid incident id %q", c.Param("id"))
	}
	return id, nil
}
