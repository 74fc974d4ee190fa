package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"genfity-floor-services/internal/floor"
	"genfity-floor-services/pkg/response"
)

// cartSession resolves the {identity} path segment. Table names carry spaces
// and non-ASCII characters, so clients send them percent-encoded.
func (h *Handler) cartSession(w http.ResponseWriter, r *http.Request) (*floor.CartSession, bool) {
	identity := readPathString(r, "identity")
	if identity == "" {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Table identity is required")
		return nil, false
	}
	return h.Carts.Select(identity), true
}

func readItemRef(w http.ResponseWriter, r *http.Request) (floor.ItemRef, bool) {
	kind, ok := floor.ParseItemKind(readPathString(r, "kind"))
	if !ok {
		response.Error(w, http.StatusBadRequest, string(floor.ErrInvalidItem), "Item kind must be dish or combo")
		return floor.ItemRef{}, false
	}
	itemID, err := readPathInt64(r, "itemId")
	if err != nil || itemID <= 0 {
		response.Error(w, http.StatusBadRequest, string(floor.ErrInvalidItem), "Item ID is required")
		return floor.ItemRef{}, false
	}
	return floor.ItemRef{Kind: kind, ID: itemID}, true
}

func (h *Handler) CartGet(w http.ResponseWriter, r *http.Request) {
	session, ok := h.cartSession(w, r)
	if !ok {
		return
	}

	cart, err := session.Get(r.Context())
	if err != nil {
		h.writeFloorError(w, r, err)
		return
	}
	response.Success(w, newCartView(cart))
}

func (h *Handler) CartAddItem(w http.ResponseWriter, r *http.Request) {
	session, ok := h.cartSession(w, r)
	if !ok {
		return
	}

	var body addCartItemPayload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	kind, ok := floor.ParseItemKind(body.Kind)
	if !ok {
		response.Error(w, http.StatusBadRequest, string(floor.ErrInvalidItem), "Item kind must be dish or combo")
		return
	}

	cart, err := session.AddItem(r.Context(), floor.NewCartItem{
		Item:      floor.ItemRef{Kind: kind, ID: body.ItemID},
		Name:      body.Name,
		UnitPrice: body.UnitPrice,
		Notes:     body.Notes,
	})
	if err != nil {
		h.writeFloorError(w, r, err)
		return
	}
	response.Success(w, newCartView(cart))
}

func (h *Handler) CartUpdateItem(w http.ResponseWriter, r *http.Request) {
	session, ok := h.cartSession(w, r)
	if !ok {
		return
	}
	ref, ok := readItemRef(w, r)
	if !ok {
		return
	}

	var body updateCartItemPayload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	cart, err := session.UpdateQuantity(r.Context(), ref, body.Quantity)
	if err != nil {
		h.writeFloorError(w, r, err)
		return
	}
	response.Success(w, newCartView(cart))
}

func (h *Handler) CartRemoveItem(w http.ResponseWriter, r *http.Request) {
	session, ok := h.cartSession(w, r)
	if !ok {
		return
	}
	ref, ok := readItemRef(w, r)
	if !ok {
		return
	}

	cart, err := session.RemoveItem(r.Context(), ref)
	if err != nil {
		h.writeFloorError(w, r, err)
		return
	}
	response.Success(w, newCartView(cart))
}

func (h *Handler) CartClear(w http.ResponseWriter, r *http.Request) {
	session, ok := h.cartSession(w, r)
	if !ok {
		return
	}

	if err := session.Clear(r.Context()); err != nil {
		h.writeFloorError(w, r, err)
		return
	}
	response.Success(w, newCartView(floor.Cart{Identity: session.Identity()}))
}

func (h *Handler) CartSubmit(w http.ResponseWriter, r *http.Request) {
	session, ok := h.cartSession(w, r)
	if !ok {
		return
	}

	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	order, err := session.Submit(r.Context(), key, actorID(r))
	if err != nil {
		h.writeFloorError(w, r, err)
		return
	}
	response.Created(w, submitResult{OrderID: order.ID, Message: "Order submitted"})
}
