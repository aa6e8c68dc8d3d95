package checkins_api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	geofake "github.com/BearBump/CheckinBox/internal/integrations/geocoder/fake"
	mediafake "github.com/BearBump/CheckinBox/internal/integrations/mediastore/fake"
	"github.com/BearBump/CheckinBox/internal/models"
	"github.com/BearBump/CheckinBox/internal/services/checkins"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	nextID   uint64
	checkins map[uint64]*models.Checkin
	master   map[uint64]*models.Order
	swag     map[uint64]*models.Order
	users    map[uint64]*models.User
	profiles map[uint64]*models.ShipperProfile
}

func newMemStore() *memStore {
	return &memStore{
		nextID:   0,
		checkins: map[uint64]*models.Checkin{},
		master:   map[uint64]*models.Order{},
		swag:     map[uint64]*models.Order{},
		users:    map[uint64]*models.User{},
		profiles: map[uint64]*models.ShipperProfile{},
	}
}

func (m *memStore) CreateCheckin(ctx context.Context, c *models.Checkin) (*models.Checkin, error) {
	m.nextID++
	cp := *c
	cp.ID = m.nextID
	m.checkins[cp.ID] = &cp
	return &cp, nil
}
func (m *memStore) GetCheckinByID(ctx context.Context, id uint64) (*models.Checkin, error) {
	return m.checkins[id], nil
}
func (m *memStore) ListCheckinsByShipper(ctx context.Context, shipperID uint64, opts models.ListOptions) ([]*models.Checkin, error) {
	var out []*models.Checkin
	for _, c := range m.checkins {
		if c.ShipperID == shipperID && !c.IsDeleted {
			out = append(out, c)
		}
	}
	return out, nil
}
func (m *memStore) ListCheckinsByCustomer(ctx context.Context, customerID uint64, opts models.ListOptions) ([]*models.Checkin, error) {
	var out []*models.Checkin
	for _, c := range m.checkins {
		if c.CustomerID == customerID && !c.IsDeleted {
			out = append(out, c)
		}
	}
	return out, nil
}
func (m *memStore) ListCheckinsByOrder(ctx context.Context, orderID uint64, kind models.OrderKind) ([]*models.Checkin, error) {
	var out []*models.Checkin
	for _, c := range m.checkins {
		if c.OrderID == orderID && !c.IsDeleted {
			out = append(out, c)
		}
	}
	return out, nil
}
func (m *memStore) ListCheckinsWithinBounds(ctx context.Context, b models.Bounds, customerID *uint64, kind models.OrderKind, limit int) ([]*models.Checkin, error) {
	var out []*models.Checkin
	for _, c := range m.checkins {
		if c.IsDeleted {
			continue
		}
		lng, lat := c.Location.Lng(), c.Location.Lat()
		if lng >= b.MinLng && lng <= b.MaxLng && lat >= b.MinLat && lat <= b.MaxLat {
			out = append(out, c)
		}
	}
	return out, nil
}
func (m *memStore) SoftDeleteCheckin(ctx context.Context, id, deletedBy uint64) error {
	c := m.checkins[id]
	c.IsDeleted = true
	c.DeletedBy = &deletedBy
	return nil
}
func (m *memStore) AttachThread(ctx context.Context, id uint64, threadID string) error {
	m.checkins[id].ThreadID = &threadID
	return nil
}
func (m *memStore) UpdateCheckinPhotos(ctx context.Context, id uint64, photos []models.Photo) error {
	m.checkins[id].Photos = photos
	return nil
}

func (m *memStore) GetMasterOrder(ctx context.Context, id uint64) (*models.Order, error) {
	return m.master[id], nil
}
func (m *memStore) GetSwagOrder(ctx context.Context, id uint64) (*models.Order, error) {
	return m.swag[id], nil
}
func (m *memStore) UpdateOrderStatus(ctx context.Context, kind models.OrderKind, id uint64, status string, deliveredAt *time.Time) error {
	return nil
}
func (m *memStore) ListAssignedMasterOrders(ctx context.Context, shipperID uint64) ([]*models.Order, error) {
	var out []*models.Order
	for _, o := range m.master {
		if o.AssignedShipperID != nil && *o.AssignedShipperID == shipperID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memStore) GetUserByID(ctx context.Context, id uint64) (*models.User, error) {
	return m.users[id], nil
}
func (m *memStore) GetShipperProfile(ctx context.Context, id uint64) (*models.ShipperProfile, error) {
	return m.profiles[id], nil
}

func uintPtr(v uint64) *uint64 { return &v }

func newTestServer(t *testing.T) (*httptest.Server, *memStore) {
	t.Helper()
	store := newMemStore()

	profileID := uint64(1005)
	store.users[5] = &models.User{ID: 5, DisplayName: "Ship Per", ShipperProfileID: &profileID}
	store.profiles[profileID] = &models.ShipperProfile{ID: profileID, UserID: 5, IsActive: true}
	store.users[9] = &models.User{ID: 9, Email: "cust@example.com", CustomerProfileID: uintPtr(2009)}
	store.users[1] = &models.User{ID: 1, IsAdmin: true}

	store.master[1] = &models.Order{
		ID: 1, Kind: models.OrderKindMaster, OrderNumber: "ORD-0001",
		Status:     models.OrderStatusShipped,
		CustomerID: uintPtr(9),
	}

	svc := checkins.New(store, store, store, geofake.New(""), mediafake.New())
	srv := httptest.NewServer(New(svc, store).Routes())
	t.Cleanup(srv.Close)
	return srv, store
}

func doJSON(t *testing.T, method, url, userID string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestAPI_RequiresAuthentication(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/checkins/1", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, srv.URL+"/checkins/1", "not-a-number", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// known header but unknown user
	resp = doJSON(t, http.MethodGet, srv.URL+"/checkins/1", "777", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestAPI_CreateAndGetCheckin(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/checkins", "5", map[string]any{
		"orderId":  1,
		"lng":      106.6297,
		"lat":      10.8231,
		"accuracy": 12.0,
		"notes":    "left at the door",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[models.Checkin](t, resp)
	require.NotZero(t, created.ID)
	require.Equal(t, "completed", created.Status)

	resp = doJSON(t, http.MethodGet, srv.URL+"/checkins/1", "5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeBody[models.Checkin](t, resp)
	require.Equal(t, created.ID, got.ID)
}

func TestAPI_CreateCheckin_multipart(t *testing.T) {
	srv, _ := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("payload", `{"orderId":1,"lng":106.6,"lat":10.8,"accuracy":9}`))
	fw, err := mw.CreateFormFile("photos", "door.jpg")
	require.NoError(t, err)
	_, err = fw.Write([]byte("jpegbytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/checkins", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-User-Id", "5")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decodeBody[models.Checkin](t, resp)
	require.Len(t, created.Photos, 1)
	require.Equal(t, "door.jpg", created.Photos[0].Filename)
}

func TestAPI_CreateCheckin_validationAndRole(t *testing.T) {
	srv, _ := newTestServer(t)

	// customer has no shipper role
	resp := doJSON(t, http.MethodPost, srv.URL+"/checkins", "9", map[string]any{
		"orderId": 1, "lng": 106.6, "lat": 10.8,
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	// out-of-range coordinates
	resp = doJSON(t, http.MethodPost, srv.URL+"/checkins", "5", map[string]any{
		"orderId": 1, "lng": 200.0, "lat": 10.8,
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// unknown order
	resp = doJSON(t, http.MethodPost, srv.URL+"/checkins", "5", map[string]any{
		"orderId": 404, "lng": 106.6, "lat": 10.8,
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestAPI_DeleteCheckin_ownerOnly(t *testing.T) {
	srv, store := newTestServer(t)
	store.checkins[1] = &models.Checkin{ID: 1, ShipperID: 5, OrderID: 1, OrderKind: models.OrderKindMaster}
	store.nextID = 1

	// admin is not the owner: no override on deletion
	resp := doJSON(t, http.MethodDelete, srv.URL+"/checkins/1", "1", nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodDelete, srv.URL+"/checkins/1", "5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	require.True(t, store.checkins[1].IsDeleted)

	resp = doJSON(t, http.MethodGet, srv.URL+"/checkins/1", "5", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestAPI_BoundsQuery(t *testing.T) {
	srv, store := newTestServer(t)
	store.checkins[1] = &models.Checkin{
		ID: 1, ShipperID: 5, OrderID: 1, OrderKind: models.OrderKindMaster,
		Location: models.NewGeoPoint(106.6, 10.8),
	}

	// viewer without a shipper or customer link
	resp := doJSON(t, http.MethodGet, srv.URL+"/checkins?minLng=106&minLat=10&maxLng=107&maxLat=11", "1", nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	// missing params
	resp = doJSON(t, http.MethodGet, srv.URL+"/checkins?minLng=1", "5", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, srv.URL+"/checkins?minLng=106&minLat=10&maxLng=107&maxLat=11", "5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeBody[[]models.Checkin](t, resp)
	require.Len(t, out, 1)
}

func TestAPI_ListByShipper_selfOrAdmin(t *testing.T) {
	srv, store := newTestServer(t)
	store.checkins[1] = &models.Checkin{ID: 1, ShipperID: 5, OrderID: 1, OrderKind: models.OrderKindMaster}

	resp := doJSON(t, http.MethodGet, srv.URL+"/shippers/5/checkins", "9", nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, srv.URL+"/shippers/5/checkins", "5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeBody[[]models.Checkin](t, resp)
	require.Len(t, out, 1)

	resp = doJSON(t, http.MethodGet, srv.URL+"/shippers/5/checkins", "1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestAPI_ListByCustomer_privacyApplied(t *testing.T) {
	srv, store := newTestServer(t)
	url := "https://media/p.jpg"
	store.checkins[1] = &models.Checkin{
		ID: 1, ShipperID: 5, CustomerID: 9, OrderID: 1, OrderKind: models.OrderKindMaster,
		Location: models.NewGeoPoint(106.629712, 10.823145),
		Photos:   []models.Photo{{URL: &url, Filename: "p.jpg"}},
	}

	// pure-shipper identity is blocked from customer features
	resp := doJSON(t, http.MethodGet, srv.URL+"/customers/9/checkins", "5", nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, srv.URL+"/customers/9/checkins", "9", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeBody[[]models.Checkin](t, resp)
	require.Len(t, out, 1)
	// owner sees full precision and photo URLs
	require.Equal(t, 106.629712, out[0].Location.Lng())
	require.NotNil(t, out[0].Photos[0].URL)

	// admin bypasses the ownership gate
	resp = doJSON(t, http.MethodGet, srv.URL+"/customers/9/checkins", "1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestAPI_ListByOrder(t *testing.T) {
	srv, store := newTestServer(t)
	store.checkins[1] = &models.Checkin{ID: 1, ShipperID: 5, CustomerID: 9, OrderID: 1, OrderKind: models.OrderKindMaster}

	// customer owns master order 1
	resp := doJSON(t, http.MethodGet, srv.URL+"/orders/1/checkins", "9", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeBody[[]models.Checkin](t, resp)
	require.Len(t, out, 1)

	// unknown order
	resp = doJSON(t, http.MethodGet, srv.URL+"/orders/404/checkins", "9", nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestAPI_ListAssignedOrders(t *testing.T) {
	srv, store := newTestServer(t)
	store.master[2] = &models.Order{
		ID: 2, Kind: models.OrderKindMaster, OrderNumber: "ORD-0002",
		Status: models.OrderStatusShipping, PaymentStatus: models.PaymentStatusPaid,
		AssignedShipperID: uintPtr(5),
	}

	resp := doJSON(t, http.MethodGet, srv.URL+"/shippers/me/orders", "5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeBody[[]models.Order](t, resp)
	require.Len(t, out, 1)
	require.Equal(t, "ORD-0002", out[0].OrderNumber)

	// customers have no shipper role
	resp = doJSON(t, http.MethodGet, srv.URL+"/shippers/me/orders", "9", nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestAPI_RetryPhotoUpload(t *testing.T) {
	srv, store := newTestServer(t)
	store.checkins[1] = &models.Checkin{ID: 1, ShipperID: 5, OrderID: 1, OrderKind: models.OrderKindMaster}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("photos", "retry.jpg")
	require.NoError(t, err)
	_, err = fw.Write([]byte("bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/checkins/1/photos", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-User-Id", "5")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decodeBody[models.Checkin](t, resp)
	require.Len(t, out.Photos, 1)
	require.True(t, strings.HasSuffix(*out.Photos[0].URL, "retry.jpg"))
}
