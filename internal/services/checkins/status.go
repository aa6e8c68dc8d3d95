package checkins

import (
	"github.com/BearBump/CheckinBox/internal/models"
)

// Order status transitions driven by the check-in lifecycle. Pure functions;
// the service persists the outcome through the order store.

// advanceOnCheckin returns the status the order should take after a new
// check-in. Only non-terminal orders move to delivered.
func advanceOnCheckin(order *models.Order) (status string, changed bool) {
	switch order.Status {
	case models.OrderStatusDelivered, models.OrderStatusCompleted, models.OrderStatusCancelled:
		return order.Status, false
	default:
		return models.OrderStatusDelivered, true
	}
}

// checkCompletion reports whether every recipient of the order has a
// completed active check-in.
func checkCompletion(order *models.Order, active []*models.Checkin) bool {
	total := order.TotalRecipients
	if total <= 0 {
		total = 1
	}
	completed := 0
	for _, c := range active {
		if c.Status == models.CheckinStatusCompleted {
			completed++
		}
	}
	return completed >= total
}

// priorStatus scans the status history backward for the most recent
// non-delivered entry; shipped when no history exists.
func priorStatus(order *models.Order) string {
	for i := len(order.StatusHistory) - 1; i >= 0; i-- {
		if order.StatusHistory[i].Status != models.OrderStatusDelivered {
			return order.StatusHistory[i].Status
		}
	}
	return models.OrderStatusShipped
}
