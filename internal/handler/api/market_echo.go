package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	models "OTCPulse/internal/domain/models"
	"OTCPulse/internal/engine"
	"OTCPulse/internal/usecase"
	xhttp "OTCPulse/pkg/http"
	xlogger "OTCPulse/pkg/logger"
)

// MarketEchoHandler exposes the market engine over HTTP.
type MarketEchoHandler struct {
	logger    *xlogger.Logger
	eng       *engine.MarketEngine
	bars      *usecase.BarsUseCase
	positions *usecase.PositionsUseCase
}

func NewMarketEchoHandler(logger *xlogger.Logger, eng *engine.MarketEngine, bars *usecase.BarsUseCase, positions *usecase.PositionsUseCase) *MarketEchoHandler {
	return &MarketEchoHandler{logger: logger, eng: eng, bars: bars, positions: positions}
}

func (h *MarketEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.GET("/bars", h.Bars)
	g.GET("/tick", h.Tick)
	g.GET("/exposure", h.Exposure)
	g.GET("/status", h.Status)
	g.GET("/instruments", h.Instruments)
	g.PATCH("/instruments/:symbol", h.PatchInstrument)
	g.POST("/positions", h.OpenPosition)
	g.POST("/positions/:id/close", h.ClosePosition)
}

func (h *MarketEchoHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *MarketEchoHandler) Bars(c echo.Context) error {
	req := &models.BarsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.bars.GetBars(c.Request().Context(), usecase.GetBarsParams{
		Instrument: req.Instrument,
		Resolution: req.Resolution,
		Limit:      req.Limit,
		From:       xhttp.ParseTimeDefault(req.From, time.Time{}),
		To:         xhttp.ParseTimeDefault(req.To, time.Time{}),
	})
	if err != nil {
		h.logger.Error("bars usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketEchoHandler) Tick(c echo.Context) error {
	req := &models.TickRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	t, err := h.bars.LatestTick(req.Instrument)
	if err != nil {
		return xhttp.NotFoundResponse(c, err.Error())
	}
	return xhttp.SuccessResponse(c, t)
}

func (h *MarketEchoHandler) Exposure(c echo.Context) error {
	req := &models.ExposureRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	if req.Instrument != "" {
		snap, ok := h.eng.GetExposure(req.Instrument)
		if !ok {
			return xhttp.NotFoundResponse(c, "unknown instrument: "+req.Instrument)
		}
		return xhttp.SuccessResponse(c, snap)
	}
	return xhttp.SuccessResponse(c, h.eng.GetAllExposures())
}

func (h *MarketEchoHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.eng.Status())
}

func (h *MarketEchoHandler) Instruments(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.eng.Instruments())
}

func (h *MarketEchoHandler) PatchInstrument(c echo.Context) error {
	symbol := c.Param("symbol")
	patch := &models.InstrumentPatch{}
	if err := c.Bind(patch); err != nil {
		return xhttp.BadRequestResponse(c, err.Error())
	}

	cfg, err := h.eng.ApplyPatch(symbol, patch)
	if err != nil {
		h.logger.Warn("instrument patch rejected",
			xlogger.String("instrument", symbol), xlogger.Error(err))
		return xhttp.BadRequestResponse(c, err.Error())
	}
	return xhttp.SuccessResponse(c, cfg)
}

func (h *MarketEchoHandler) OpenPosition(c echo.Context) error {
	req := &models.OpenPositionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	pos, err := h.positions.Open(req)
	if err != nil {
		h.logger.Error("open position error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.CreatedResponse(c, pos)
}

func (h *MarketEchoHandler) ClosePosition(c echo.Context) error {
	req := &models.ClosePositionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	s, err := h.positions.Close(req.Instrument, req.ID)
	if err != nil {
		h.logger.Error("close position error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, s)
}

var _ xhttp.Handler = (*MarketEchoHandler)(nil)
