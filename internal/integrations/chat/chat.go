package chat

import (
	"context"

	"github.com/BearBump/CheckinBox/internal/models"
)

// ThreadCreator opens a delivery conversation for a check-in and returns an
// opaque thread handle.
type ThreadCreator interface {
	CreateDeliveryThread(ctx context.Context, c *models.Checkin) (string, error)
}
