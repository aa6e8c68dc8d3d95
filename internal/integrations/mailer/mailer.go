package mailer

import (
	"context"

	"github.com/BearBump/CheckinBox/internal/models"
)

// Sender delivers the delivery-confirmation email for one check-in.
type Sender interface {
	SendCheckinNotification(ctx context.Context, c *models.Checkin) error
}
