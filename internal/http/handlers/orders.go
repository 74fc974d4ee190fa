package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"genfity-floor-services/internal/floor"
	"genfity-floor-services/pkg/response"
)

func (h *Handler) OrderCreate(w http.ResponseWriter, r *http.Request) {
	var body createOrderPayload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	if strings.TrimSpace(string(body.TableID)) == "" {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "tableId is required")
		return
	}

	lines := make([]floor.NewOrderLine, 0, len(body.Items))
	for i, item := range body.Items {
		ref, ok := item.itemRef()
		if !ok {
			response.ErrorWithDetails(w, http.StatusBadRequest, string(floor.ErrInvalidItem), "Each item needs exactly one of dishId or comboId", map[string]any{"index": i})
			return
		}
		lines = append(lines, floor.NewOrderLine{
			Item:      ref,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Notes:     item.Notes,
		})
	}

	order, err := h.Lifecycle.CreateOrder(r.Context(), floor.OrderRequest{
		TableIdentity: string(body.TableID),
		Lines:         lines,
		CreatedBy:     actorID(r),
	})
	if err != nil {
		h.writeFloorError(w, r, err)
		return
	}
	response.Created(w, submitResult{OrderID: order.ID, Message: "Order created"})
}

func (h *Handler) OrdersList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	identity := strings.TrimSpace(query.Get("identity"))
	unsettledOnly := strings.EqualFold(strings.TrimSpace(query.Get("unsettled")), "true")

	orders, err := h.Lifecycle.List(r.Context(), identity, unsettledOnly)
	if err != nil {
		h.writeFloorError(w, r, err)
		return
	}
	views := make([]orderView, 0, len(orders))
	for _, order := range orders {
		views = append(views, newOrderView(order))
	}
	response.Success(w, views)
}

func (h *Handler) OrderDetail(w http.ResponseWriter, r *http.Request) {
	orderID, err := readPathInt64(r, "orderId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Order ID is required")
		return
	}

	order, err := h.Lifecycle.Get(r.Context(), orderID)
	if err != nil {
		h.writeFloorError(w, r, err)
		return
	}
	response.Success(w, newOrderView(order))
}

func (h *Handler) OrderSettle(w http.ResponseWriter, r *http.Request) {
	orderID, err := readPathInt64(r, "orderId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Order ID is required")
		return
	}

	order, err := h.Lifecycle.Settle(r.Context(), orderID, actorID(r))
	if err != nil && !floor.IsAlreadyInState(err) {
		h.writeFloorError(w, r, err)
		return
	}
	response.Success(w, settleResult{Order: newOrderView(order), AlreadyInState: err != nil})
}
