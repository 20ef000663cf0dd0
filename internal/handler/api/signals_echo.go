package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"

	models "OFISignal/internal/domain/models"
	domrepo "OFISignal/internal/domain/repository"
	"OFISignal/internal/service/metrics"
	"OFISignal/internal/service/ratelimit"
	"OFISignal/internal/services/predictor"
	"OFISignal/internal/usecase"
	xhttp "OFISignal/pkg/http"
	xlogger "OFISignal/pkg/logger"
)

// ControlPredictor is the predictor surface exposed over HTTP.
type ControlPredictor interface {
	Alpha() float64
	Threshold() float64
	EWMA() float64
	Mode() models.ExecutionMode
	SetMode(m models.ExecutionMode) models.ExecutionMode
	AcceleratorAvailable() bool
}

// SnapshotSource provides the in-process view of the streaming state.
type SnapshotSource interface {
	Snapshot() models.Snapshot
	Stats() *usecase.LatencyStats
}

// SignalsEchoHandler serves predictor control, batch and monitoring routes.
type SignalsEchoHandler struct {
	logger    *xlogger.Logger
	pred      ControlPredictor
	runner    *usecase.BatchRunner
	source    SnapshotSource
	snapshots domrepo.SnapshotStore
	rl        *ratelimit.Limiter
	rate      float64
}

func NewSignalsEchoHandler(logger *xlogger.Logger, pred ControlPredictor, runner *usecase.BatchRunner, source SnapshotSource) *SignalsEchoHandler {
	metrics.Register()
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &SignalsEchoHandler{
		logger: logger.With("api"),
		pred:   pred,
		runner: runner,
		source: source,
		rl:     ratelimit.New(),
	}
}

// SetSnapshotStore serves /api/snapshot from the shared store instead of
// the local processor.
func (h *SignalsEchoHandler) SetSnapshotStore(s domrepo.SnapshotStore) { h.snapshots = s }

// SetBatchRateLimit allows perSecond batch calls per client with an equal
// burst. Zero disables limiting.
func (h *SignalsEchoHandler) SetBatchRateLimit(perSecond int) { h.rate = float64(perSecond) }

func (h *SignalsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/predictor", h.Predictor)
	g.PUT("/predictor/mode", h.SetMode)
	g.POST("/batch", h.Batch)
	g.POST("/batch/jobs", h.SubmitBatch)
	g.GET("/batch/jobs/:id", h.BatchJob)
	g.GET("/stats", h.Stats)
	g.GET("/snapshot", h.Snapshot)
}

func observe(c echo.Context, endpoint string, start time.Time) {
	metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if c.Response().Status >= 400 {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
	}
}

func (h *SignalsEchoHandler) status() models.PredictorStatus {
	return models.PredictorStatus{
		Alpha:                h.pred.Alpha(),
		Threshold:            h.pred.Threshold(),
		EWMA:                 h.pred.EWMA(),
		Mode:                 h.pred.Mode().String(),
		AcceleratorAvailable: h.pred.AcceleratorAvailable(),
	}
}

func (h *SignalsEchoHandler) Predictor(c echo.Context) error {
	defer observe(c, "predictor", time.Now())
	return xhttp.SuccessResponse(c, h.status())
}

func (h *SignalsEchoHandler) SetMode(c echo.Context) error {
	defer observe(c, "set_mode", time.Now())

	req := &models.ModeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	mode, perr := models.ParseExecutionMode(req.Mode)
	if perr != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(perr.Error()))
	}

	got := h.pred.SetMode(mode)
	if got != mode {
		h.logger.Warn("mode switch coerced", xlogger.String("requested", mode.String()), xlogger.String("mode", got.String()))
	}
	return xhttp.SuccessResponse(c, models.ModeResponse{
		Requested:            mode.String(),
		Mode:                 got.String(),
		AcceleratorAvailable: h.pred.AcceleratorAvailable(),
	})
}

func (h *SignalsEchoHandler) allow(c echo.Context) bool {
	return h.rl.Allow(c.RealIP(), h.rate, h.rate)
}

func (h *SignalsEchoHandler) Batch(c echo.Context) error {
	defer observe(c, "batch", time.Now())

	if !h.allow(c) {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("batch rate limit exceeded"))
	}
	req := &models.BatchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, rerr := h.runner.Run(*req)
	if rerr != nil {
		return h.batchError(c, rerr)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SignalsEchoHandler) SubmitBatch(c echo.Context) error {
	defer observe(c, "batch_submit", time.Now())

	if !h.allow(c) {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("batch rate limit exceeded"))
	}
	req := &models.BatchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	id, serr := h.runner.Submit(c.Request().Context(), *req)
	if serr != nil {
		return h.batchError(c, serr)
	}
	return xhttp.AcceptedResponse(c, models.JobAccepted{JobID: id, Status: models.BatchStatusQueued})
}

func (h *SignalsEchoHandler) BatchJob(c echo.Context) error {
	defer observe(c, "batch_job", time.Now())

	res, rerr := h.runner.Result(c.Request().Context(), c.Param("id"))
	if rerr != nil {
		return h.batchError(c, rerr)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SignalsEchoHandler) batchError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, predictor.ErrInvalidBatch), errors.Is(err, usecase.ErrBatchTooLarge):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	case errors.Is(err, usecase.ErrJobNotFound):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError(err.Error()))
	case errors.Is(err, usecase.ErrAsyncUnavailable):
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError(err.Error()))
	case errors.Is(err, predictor.ErrAcceleratorFailure):
		h.logger.Error("batch accelerator failure", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("accelerator failure").WithError(err))
	default:
		h.logger.Error("batch usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError(fmt.Sprintf("batch failed: %v", err)))
	}
}

func (h *SignalsEchoHandler) Stats(c echo.Context) error {
	defer observe(c, "stats", time.Now())
	if h.source == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("ingestion is not running"))
	}
	return xhttp.SuccessResponse(c, h.source.Stats().Report())
}

func (h *SignalsEchoHandler) Snapshot(c echo.Context) error {
	defer observe(c, "snapshot", time.Now())

	if h.snapshots != nil {
		snap, serr := h.snapshots.Latest(c.Request().Context())
		if serr == nil {
			c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
			return xhttp.SuccessResponse(c, snap)
		}
		h.logger.Debug("snapshot store miss; using local state", xlogger.Error(serr))
	}
	if h.source == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no snapshot available"))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, h.source.Snapshot())
}
