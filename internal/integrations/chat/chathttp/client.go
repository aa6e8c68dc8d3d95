// Package chathttp creates delivery conversation threads in the chat service.
package chathttp

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
	httpc   *http.Client
}

func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9300"
	}
	return &Client{
		baseURL: baseURL,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type createThreadReq struct {
	Kind          string `json:"kind"`
	CheckinID     uint64 `json:"checkinId"`
	OrderID       uint64 `json:"orderId"`
	OrderNumber   string `json:"orderNumber"`
	ShipperID     uint64 `json:"shipperId"`
	CustomerID    uint64 `json:"customerId"`
	CustomerEmail string `json:"customerEmail,omitempty"`
}

type createThreadResp struct {
	ID string `json:"id"`
}

func (c *Client) CreateDeliveryThread(ctx context.Context, checkin *models.Checkin) (string, error) {
	body, err := json.Marshal(createThreadReq{
		Kind:          "delivery",
		CheckinID:     checkin.ID,
		OrderID:       checkin.OrderID,
		OrderNumber:   checkin.OrderNumber,
		ShipperID:     checkin.ShipperID,
		CustomerID:    checkin.CustomerID,
		CustomerEmail: checkin.CustomerEmail,
	})
	if err != nil {
		return "", errors.Wrap(err, "marshal thread request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/threads", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("chat service http %d", resp.StatusCode)
	}

	var r createThreadResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return "", errors.Wrap(err, "decode")
	}
	if r.ID == "" {
		return "", errors.New("chat service returned empty thread id")
	}
	return r.ID, nil
}
