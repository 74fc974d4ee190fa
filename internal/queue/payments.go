package queue

import (
	"context"
	"encoding/json"
	"strings"

	"genfity-floor-services/internal/floor"

	"go.uber.org/zap"
)

const PaymentCompleted = "payment.completed"

type paymentEvent struct {
	Type      string `json:"type"`
	OrderID   int64  `json:"orderId"`
	PaymentID string `json:"paymentId"`
	PaidBy    int64  `json:"paidBy"`
}

type Settler interface {
	Settle(ctx context.Context, orderID int64, actorID int64) (floor.Order, error)
}

// ProcessPaymentEvent settles the order a completed payment refers to.
// Returning an error asks the consumer to retry; messages that can never
// succeed are logged and acknowledged.
func ProcessPaymentEvent(ctx context.Context, settler Settler, log *zap.Logger, body []byte) error {
	if settler == nil {
		return nil
	}

	var evt paymentEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		log.Warn("payment event dropped; invalid json", zap.Error(err))
		return nil
	}
	if strings.TrimSpace(evt.Type) != PaymentCompleted {
		return nil
	}
	if evt.OrderID <= 0 {
		log.Warn("payment event dropped; missing orderId", zap.String("paymentId", evt.PaymentID))
		return nil
	}

	_, err := settler.Settle(ctx, evt.OrderID, evt.PaidBy)
	switch floor.CodeOf(err) {
	case "":
		if err != nil {
			return err
		}
		log.Info("order settled from payment", zap.Int64("orderId", evt.OrderID), zap.String("paymentId", evt.PaymentID))
		return nil
	case floor.ErrAlreadyInState:
		return nil
	case floor.ErrNotFound:
		log.Warn("payment event dropped; unknown order", zap.Int64("orderId", evt.OrderID), zap.String("paymentId", evt.PaymentID))
		return nil
	default:
		// Lines still in the kitchen; retry later.
		return err
	}
}
