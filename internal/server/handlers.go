package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"

	"parking-engine/internal/logging"
	"parking-engine/internal/parking"
)

type Handler struct {
	lot         *parking.InstrumentedParkingLot
	hub         *Hub
	serviceName string
}

func NewHandler(lot *parking.InstrumentedParkingLot, hub *Hub, serviceName string) *Handler {
	return &Handler{
		lot:         lot,
		hub:         hub,
		serviceName: serviceName,
	}
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Service: h.serviceName,
		Meta:    extractMeta(r.Context()),
	})
}

func (r VehicleRequest) toRequest() (parking.Request, error) {
	size, err := parking.ParseSize(r.VehicleType)
	if err != nil {
		return parking.Request{}, errors.Wrap(parking.ErrInvalidRequest, "vehicle_type must be small, medium or large")
	}

	tier := parking.TierStandard
	if r.CustomerType != "" {
		if tier, err = parking.ParseTier(r.CustomerType); err != nil {
			return parking.Request{}, errors.Wrap(parking.ErrInvalidRequest, "customer_type must be standard or member")
		}
	}

	plate := strings.TrimSpace(r.LicensePlate)
	if plate == "" {
		return parking.Request{}, errors.Wrap(parking.ErrInvalidRequest, "license_plate is required")
	}

	return parking.Request{Size: size, Tier: tier, Plate: plate, IsEV: r.IsEV}, nil
}

func decodeVehicleRequest(r *http.Request) (parking.Request, error) {
	var body VehicleRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return parking.Request{}, errors.Wrap(parking.ErrInvalidRequest, "invalid request body")
	}
	return body.toRequest()
}

// writeEngineError maps engine errors onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	if reason, ok := parking.IsDenied(err); ok {
		WriteDenied(ctx, w, reason)
		return
	}

	switch {
	case errors.Is(err, parking.ErrInvalidRequest):
		WriteError(ctx, w, http.StatusBadRequest, err.Error())
	case errors.Is(err, parking.ErrNotAvailable):
		WriteError(ctx, w, http.StatusConflict, "No suitable slot available")
	case errors.Is(err, parking.ErrNotFound):
		WriteError(ctx, w, http.StatusNotFound, "Ticket not found")
	default:
		logging.Error(ctx).Err(err).Str("path", r.URL.Path).Msg("request failed")
		WriteError(ctx, w, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *Handler) Allocate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := decodeVehicleRequest(r)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	allocation, err := h.lot.Allocate(ctx, req)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	h.hub.Publish(ctx, Event{
		Type:   EventAllocated,
		SlotID: allocation.SlotID,
		Ticket: allocation.Ticket,
		Status: h.lot.Status(ctx),
	})

	WriteSuccess(ctx, w, "Slot allocated successfully", allocation)
}

func (h *Handler) Exit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ExitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ticket := strings.ToUpper(strings.TrimSpace(req.Ticket))
	if ticket == "" {
		WriteError(ctx, w, http.StatusBadRequest, "ticket is required")
		return
	}

	result, err := h.lot.ProcessExit(ctx, ticket)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	h.hub.Publish(ctx, Event{
		Type:   EventExited,
		SlotID: result.SlotID,
		Ticket: result.Ticket,
		Status: h.lot.Status(ctx),
	})

	WriteSuccess(ctx, w, "Exit processed successfully", result)
}

func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := decodeVehicleRequest(r)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	err = h.lot.ValidateEntry(ctx, req)
	if reason, ok := parking.IsDenied(err); ok {
		WriteSuccess(ctx, w, "Entry denied", ValidationResponse{Allowed: false, Reason: reason})
		return
	}
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	WriteSuccess(ctx, w, "Entry allowed", ValidationResponse{Allowed: true})
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	WriteSuccess(ctx, w, "Status retrieved successfully", h.lot.Status(ctx))
}

func (h *Handler) FindByTicket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ticket := strings.ToUpper(chi.URLParam(r, "ticket"))
	info, err := h.lot.FindByTicket(ctx, ticket)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	WriteSuccess(ctx, w, "Ticket found", info)
}

func (h *Handler) GetExpired(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	expired := h.lot.ExpiredSlots(ctx)
	if expired == nil {
		expired = []parking.SlotInfo{}
	}

	WriteSuccess(ctx, w, "Expired slots retrieved successfully", ExpiredResponse{
		Count: len(expired),
		Slots: expired,
	})
}

func (h *Handler) GetPass(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	plate := chi.URLParam(r, "plate")
	WriteSuccess(ctx, w, "Pass retrieved successfully", h.lot.Pass(ctx, plate))
}
