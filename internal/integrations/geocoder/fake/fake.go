package fake

import (
	"context"
	"fmt"

	"github.com/BearBump/CheckinBox/internal/models"
)

// FakeResolver returns a deterministic address without any network call.
// Used for local runs when no geocoder is configured.
type FakeResolver struct {
	Country string
}

func New(country string) *FakeResolver {
	if country == "" {
		country = "Vietnam"
	}
	return &FakeResolver{Country: country}
}

func (f *FakeResolver) ReverseGeocode(ctx context.Context, lat, lng float64) models.Address {
	return models.Address{
		Formatted: fmt.Sprintf("%v, %v", lat, lng),
		Country:   f.Country,
	}
}
