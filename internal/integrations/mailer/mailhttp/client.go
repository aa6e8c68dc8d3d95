// Package mailhttp sends delivery-confirmation emails through the mail
// service HTTP API.
package mailhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/BearBump/CheckinBox/internal/models"
	"github.com/pkg/errors"
)

type Client struct {
	baseURL string
	apiKey  string
	from    string
	httpc   *http.Client
}

func New(baseURL, apiKey, from string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9400"
	}
	if from == "" {
		from = "no-reply@checkinbox.local"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		from:    from,
		httpc: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type sendReq struct {
	From     string         `json:"from"`
	To       string         `json:"to"`
	Template string         `json:"template"`
	Vars     map[string]any `json:"vars"`
}

func (c *Client) SendCheckinNotification(ctx context.Context, checkin *models.Checkin) error {
	if checkin.CustomerEmail == "" {
		return errors.New("checkin has no customer email")
	}

	body, err := json.Marshal(sendReq{
		From:     c.from,
		To:       checkin.CustomerEmail,
		Template: "delivery-checkin",
		Vars: map[string]any{
			"orderNumber": checkin.OrderNumber,
			"shipperName": checkin.ShipperName,
			"address":     checkin.Address.Formatted,
			"checkinAt":   checkin.CheckinAt,
			"photoCount":  len(checkin.Photos),
		},
	})
	if err != nil {
		return errors.Wrap(err, "marshal mail request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/send", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("mail service http %d", resp.StatusCode)
	}
	return nil
}
