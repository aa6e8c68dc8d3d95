package chathttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BearBump/CheckinBox/internal/models"
	"github.com/stretchr/testify/require"
)

func TestCreateDeliveryThread_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/threads", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "delivery", body["kind"])
		require.Equal(t, float64(7), body["checkinId"])

		_, _ = w.Write([]byte(`{"id": "thr-99"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	id, err := c.CreateDeliveryThread(context.Background(), &models.Checkin{ID: 7, OrderID: 1, ShipperID: 2, CustomerID: 3})
	require.NoError(t, err)
	require.Equal(t, "thr-99", id)
}

func TestCreateDeliveryThread_serverError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.CreateDeliveryThread(context.Background(), &models.Checkin{ID: 7})
	require.Error(t, err)
}

func TestCreateDeliveryThread_emptyID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": ""}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.CreateDeliveryThread(context.Background(), &models.Checkin{ID: 7})
	require.Error(t, err)
}
