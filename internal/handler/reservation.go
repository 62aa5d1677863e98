package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/train-reservation/internal/model"
	"github.com/iliyamo/train-reservation/internal/reservation"
)

// ReservationHandler exposes the reservation engine over HTTP.  Handlers
// only validate primitive inputs; every state change goes through the
// engine.
type ReservationHandler struct {
	Engine *reservation.Engine
}

// NewReservationHandler panics when engine is nil.
func NewReservationHandler(engine *reservation.Engine) *ReservationHandler {
	if engine == nil {
		panic("nil engine passed to NewReservationHandler")
	}
	return &ReservationHandler{Engine: engine}
}

type passengerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (p *passengerRequest) validate() string {
	p.Name = strings.TrimSpace(p.Name)
	p.Email = strings.TrimSpace(p.Email)
	p.Phone = strings.TrimSpace(p.Phone)
	switch {
	case p.Name == "":
		return "name is required"
	case p.Email == "":
		return "email is required"
	case !strings.Contains(p.Email, "@"):
		return "email is invalid"
	case p.Phone == "":
		return "phone is required"
	}
	return ""
}

type cancelResponse struct {
	reservation.CancelResult
	Warning string `json:"warning,omitempty"`
}

// SearchTrains handles GET /v1/trains?source=&destination=.  Both query
// parameters are required; an unmatched route returns an empty list.
func (h *ReservationHandler) SearchTrains(c echo.Context) error {
	source := strings.TrimSpace(c.QueryParam("source"))
	destination := strings.TrimSpace(c.QueryParam("destination"))
	if source == "" || destination == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "source and destination are required"})
	}
	trains, err := h.Engine.Search(c.Request().Context(), source, destination)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, trains)
}

// GetTrain handles GET /v1/trains/:id.
func (h *ReservationHandler) GetTrain(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid train id"})
	}
	train, err := h.Engine.GetTrain(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, train)
}

// BookTicket handles POST /v1/trains/:id/tickets.  It returns 201 with the
// new ticket, or 409 when the train is sold out.
func (h *ReservationHandler) BookTicket(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid train id"})
	}
	var body passengerRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if msg := body.validate(); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	ctx := c.Request().Context()
	t, err := h.Engine.Book(ctx, id, body.Name, body.Email, body.Phone)
	if err != nil {
		return writeError(c, err)
	}
	view, err := h.Engine.GetTicket(ctx, t.ID)
	if err != nil {
		// The booking stands; answer with the bare ticket.
		return c.JSON(http.StatusCreated, model.NewTicketView(t, nil))
	}
	return c.JSON(http.StatusCreated, view)
}

// GetTicket handles GET /v1/tickets/:id.
func (h *ReservationHandler) GetTicket(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket id"})
	}
	view, err := h.Engine.GetTicket(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

// UpdateTicket handles PATCH /v1/tickets/:id and replaces the passenger
// contact details.
func (h *ReservationHandler) UpdateTicket(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket id"})
	}
	var body passengerRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if msg := body.validate(); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	ctx := c.Request().Context()
	if err := h.Engine.UpdateDetails(ctx, id, body.Name, body.Email, body.Phone); err != nil {
		return writeError(c, err)
	}
	view, err := h.Engine.GetTicket(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

// CancelTicket handles POST /v1/tickets/:id/cancel.  A cancellation whose
// seat release failed is still a cancellation: it answers 202 with
// seat_released=false and a warning.
func (h *ReservationHandler) CancelTicket(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket id"})
	}
	res, err := h.Engine.Cancel(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	out := cancelResponse{CancelResult: res}
	if res.Partial() {
		out.Warning = "ticket cancelled but seat not yet released"
		return c.JSON(http.StatusAccepted, out)
	}
	return c.JSON(http.StatusOK, out)
}

// ListTickets handles GET /v1/tickets?email=.
func (h *ReservationHandler) ListTickets(c echo.Context) error {
	email := strings.TrimSpace(c.QueryParam("email"))
	if email == "" || !strings.Contains(email, "@") {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "valid email is required"})
	}
	views, err := h.Engine.ListTicketsForPassenger(c.Request().Context(), email)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, views)
}

// ReconcileTrain handles POST /v1/trains/:id/reconcile.
func (h *ReservationHandler) ReconcileTrain(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid train id"})
	}
	ctx := c.Request().Context()
	delta, err := h.Engine.Reconcile(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	train, err := h.Engine.GetTrain(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"train": train, "corrected_by": delta})
}

func parseID(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

// writeError maps the engine's error taxonomy to a status code.
func writeError(c echo.Context, err error) error {
	status, msg := http.StatusInternalServerError, "internal error"
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, model.ErrTrainNotFound):
		status, msg = http.StatusNotFound, "train not found"
	case errors.Is(err, model.ErrTicketNotFound):
		status, msg = http.StatusNotFound, "ticket not found"
	case errors.Is(err, reservation.ErrRollbackFailed):
		status, msg = http.StatusInternalServerError, "booking failed and could not be rolled back"
	case errors.Is(err, model.ErrNoSeatAvailable):
		status, msg = http.StatusInternalServerError, "seat inventory inconsistent"
	case errors.Is(err, model.ErrNoSeatsAvailable):
		status, msg = http.StatusConflict, "no seats available"
	case errors.Is(err, model.ErrAlreadyCancelled):
		status, msg = http.StatusConflict, "ticket already cancelled"
	case errors.Is(err, model.ErrTicketNotActive):
		status, msg = http.StatusConflict, "ticket is not active"
	case errors.Is(err, model.ErrCapacity):
		status, msg = http.StatusConflict, "seat capacity conflict"
	case errors.Is(err, model.ErrStorage):
		status, msg = http.StatusServiceUnavailable, "storage unavailable"
	}
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", c.Request().Method, "path", c.Path(), "err", err)
	}
	return c.JSON(status, echo.Map{"error": msg})
}
