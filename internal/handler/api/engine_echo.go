package api

import (
	models "QuantDesk/internal/domain/models"
	"QuantDesk/internal/usecase"
	xhttp "QuantDesk/pkg/http"
	xlogger "QuantDesk/pkg/logger"

	"github.com/labstack/echo/v4"
)

// EngineEchoHandler exposes the forecasting and simulation engine over the
// Echo API group. Validation failures are 400s; computation-layer soft
// failures (short history) come back 200 with a status flag so the caller
// can render the empty state.
type EngineEchoHandler struct {
	logger     *xlogger.Logger
	runner     *usecase.ForecastRunner
	comparator *usecase.RunComparator
}

func NewEngineEchoHandler(logger *xlogger.Logger, runner *usecase.ForecastRunner, comparator *usecase.RunComparator) *EngineEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &EngineEchoHandler{logger: logger, runner: runner, comparator: comparator}
}

var _ xhttp.Handler = (*EngineEchoHandler)(nil)

func (h *EngineEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/forecast", h.Forecast)
	g.GET("/volatility", h.Volatility)
	g.GET("/simulate", h.Simulate)
	g.GET("/optimize", h.Optimize)
	g.GET("/compare", h.Compare)
}

func (h *EngineEchoHandler) Forecast(c echo.Context) error {
	req := &models.ForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.runner.Forecast(c.Request().Context(), *req)
	if err != nil {
		h.logger.Error("forecast usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *EngineEchoHandler) Volatility(c echo.Context) error {
	req := &models.VolatilityRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.runner.Volatility(c.Request().Context(), *req)
	if err != nil {
		h.logger.Error("volatility usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *EngineEchoHandler) Simulate(c echo.Context) error {
	req := &models.SimulateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.runner.Simulate(c.Request().Context(), *req)
	if err != nil {
		h.logger.Error("simulate usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *EngineEchoHandler) Optimize(c echo.Context) error {
	req := &models.OptimizeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.runner.Optimize(c.Request().Context(), *req)
	if err != nil {
		h.logger.Error("optimize usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *EngineEchoHandler) Compare(c echo.Context) error {
	req := &models.CompareRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	runs := h.comparator.List(req.Symbol)
	return xhttp.ListResponse(c, runs, int64(len(runs)))
}
