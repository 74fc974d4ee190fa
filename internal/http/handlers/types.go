package handlers

import (
	"encoding/json"
	"strconv"
	"strings"

	"genfity-floor-services/internal/floor"
)

type createTablePayload struct {
	Name        string  `json:"name"`
	Area        string  `json:"area"`
	SeatingType string  `json:"seatingType"`
	Capacity    int32   `json:"capacity"`
	Notes       *string `json:"notes"`
	WindowView  bool    `json:"windowView"`
}

type updateTableStatusPayload struct {
	Status        string  `json:"status"`
	EstimatedTime *string `json:"estimatedTime"`
}

type mergeTablesPayload struct {
	TableIDs  []int64 `json:"tableIds"`
	CreatedBy *int64  `json:"createdBy"`
	Notes     *string `json:"notes"`
}

type addCartItemPayload struct {
	Kind      string  `json:"kind"`
	ItemID    int64   `json:"itemId"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unitPrice"`
	Notes     *string `json:"notes"`
}

type updateCartItemPayload struct {
	Quantity int32 `json:"quantity"`
}

// tableIdentity accepts either a table name or a numeric id.
type tableIdentity string

func (t *tableIdentity) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*t = tableIdentity(strings.TrimSpace(text))
		return nil
	}
	var id int64
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	*t = tableIdentity(strconv.FormatInt(id, 10))
	return nil
}

type createOrderItemPayload struct {
	DishID    *int64  `json:"dishId"`
	ComboID   *int64  `json:"comboId"`
	Name      string  `json:"name"`
	Quantity  int32   `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	Notes     *string `json:"notes"`
}

// itemRef requires exactly one of dishId and comboId.
func (p createOrderItemPayload) itemRef() (floor.ItemRef, bool) {
	switch {
	case p.DishID != nil && p.ComboID == nil:
		return floor.ItemRef{Kind: floor.ItemDish, ID: *p.DishID}, *p.DishID > 0
	case p.ComboID != nil && p.DishID == nil:
		return floor.ItemRef{Kind: floor.ItemCombo, ID: *p.ComboID}, *p.ComboID > 0
	}
	return floor.ItemRef{}, false
}

type createOrderPayload struct {
	TableID tableIdentity            `json:"tableId"`
	Items   []createOrderItemPayload `json:"items"`
}

type submitResult struct {
	OrderID int64  `json:"orderId"`
	Message string `json:"message"`
}

type cartView struct {
	floor.Cart
	ItemCount int32   `json:"itemCount"`
	Total     float64 `json:"total"`
}

func newCartView(cart floor.Cart) cartView {
	view := cartView{Cart: cart}
	if view.Lines == nil {
		view.Lines = []floor.CartLine{}
	}
	for _, line := range view.Lines {
		view.ItemCount += line.Quantity
		view.Total += line.UnitPrice * float64(line.Quantity)
	}
	return view
}

type orderView struct {
	floor.Order
	Status floor.LineStatus `json:"status"`
	Total  float64          `json:"total"`
}

func newOrderView(order floor.Order) orderView {
	if order.Lines == nil {
		order.Lines = []floor.OrderLine{}
	}
	return orderView{Order: order, Status: order.Status(), Total: order.Total()}
}

type lineResult struct {
	Line           floor.OrderLine `json:"line"`
	AlreadyInState bool            `json:"alreadyInState"`
}

type settleResult struct {
	Order          orderView `json:"order"`
	AlreadyInState bool      `json:"alreadyInState"`
}
