package geocoder

import (
	"context"

	"github.com/BearBump/CheckinBox/internal/models"
)

// Resolver maps coordinates to a formatted address. Implementations never
// fail hard: on provider errors they return a coordinate-string fallback.
type Resolver interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) models.Address
}
