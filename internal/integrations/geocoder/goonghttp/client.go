// Package goonghttp resolves addresses through a Goong-style reverse
// geocoding HTTP API.
package goonghttp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/BearBump/CheckinBox/internal/models"
)

type Client struct {
	baseURL        string
	apiKey         string
	defaultCountry string
	httpc          *http.Client
}

func New(baseURL, apiKey, defaultCountry string) *Client {
	if baseURL == "" {
		baseURL = "https://rsapi.goong.io"
	}
	if defaultCountry == "" {
		defaultCountry = "Vietnam"
	}
	return &Client{
		baseURL:        baseURL,
		apiKey:         apiKey,
		defaultCountry: defaultCountry,
		httpc: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type geocodeResp struct {
	Results []struct {
		FormattedAddress string `json:"formatted_address"`
		Compound         struct {
			Commune  string `json:"commune"`
			District string `json:"district"`
			Province string `json:"province"`
		} `json:"compound"`
		AddressComponents []struct {
			LongName string   `json:"long_name"`
			Types    []string `json:"types"`
		} `json:"address_components"`
	} `json:"results"`
}

// ReverseGeocode returns the provider's formatted address, or the
// coordinate-string fallback on any provider failure.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lng float64) models.Address {
	addr, err := c.lookup(ctx, lat, lng)
	if err != nil {
		slog.Warn("reverse geocode failed, using fallback", "error", err.Error())
		return Fallback(lat, lng, c.defaultCountry)
	}
	return addr
}

func (c *Client) lookup(ctx context.Context, lat, lng float64) (models.Address, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return models.Address{}, err
	}
	u.Path = "/Geocode"

	q := u.Query()
	q.Set("latlng", fmt.Sprintf("%f,%f", lat, lng))
	q.Set("api_key", c.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return models.Address{}, err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return models.Address{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return models.Address{}, fmt.Errorf("geocoder http %d", resp.StatusCode)
	}

	var r geocodeResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return models.Address{}, err
	}
	if len(r.Results) == 0 {
		return models.Address{}, fmt.Errorf("geocoder empty result")
	}

	best := r.Results[0]
	addr := models.Address{
		Formatted: best.FormattedAddress,
		Ward:      best.Compound.Commune,
		District:  best.Compound.District,
		City:      best.Compound.Province,
		Country:   c.defaultCountry,
	}
	for _, comp := range best.AddressComponents {
		for _, t := range comp.Types {
			if t == "street" || t == "route" {
				addr.Street = comp.LongName
			}
		}
	}
	return addr, nil
}

// Fallback is the "{lat}, {lng}" address used when the provider is down.
func Fallback(lat, lng float64, country string) models.Address {
	return models.Address{
		Formatted: fmt.Sprintf("%v, %v", lat, lng),
		Country:   country,
	}
}
