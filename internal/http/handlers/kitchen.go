package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"genfity-floor-services/internal/floor"
	"genfity-floor-services/internal/tickets"
	"genfity-floor-services/pkg/response"
)

func (h *Handler) KitchenQueue(w http.ResponseWriter, r *http.Request) {
	lines, err := h.Lifecycle.KitchenQueue(r.Context())
	if err != nil {
		h.writeFloorError(w, r, err)
		return
	}
	if lines == nil {
		lines = []floor.OrderLine{}
	}
	response.Success(w, lines)
}

func (h *Handler) KitchenAccept(w http.ResponseWriter, r *http.Request) {
	h.advanceLine(w, r, h.Lifecycle.Accept)
}

func (h *Handler) KitchenComplete(w http.ResponseWriter, r *http.Request) {
	h.advanceLine(w, r, h.Lifecycle.Complete)
}

// advanceLine reports a repeated transition as a success flagged alreadyInState.
func (h *Handler) advanceLine(w http.ResponseWriter, r *http.Request, advance func(ctx context.Context, lineID int64, actorID int64) (floor.OrderLine, error)) {
	lineID, err := readPathInt64(r, "lineId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Line ID is required")
		return
	}

	line, err := advance(r.Context(), lineID, actorID(r))
	if err != nil && !floor.IsAlreadyInState(err) {
		h.writeFloorError(w, r, err)
		return
	}
	response.Success(w, lineResult{Line: line, AlreadyInState: err != nil})
}

func (h *Handler) KitchenTicket(w http.ResponseWriter, r *http.Request) {
	orderID, err := readPathInt64(r, "orderId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Order ID is required")
		return
	}

	order, body, err := h.Tickets.Ticket(r.Context(), orderID)
	if err != nil {
		h.writeFloorError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", tickets.Filename(order)))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
