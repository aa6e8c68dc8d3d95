package checkins_api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/CheckinBox/internal/apperr"
	"github.com/BearBump/CheckinBox/internal/models"
	"github.com/BearBump/CheckinBox/internal/services/checkins"
	"github.com/go-chi/chi/v5"
)

const maxUploadBytes = 32 << 20

type UserStore interface {
	GetUserByID(ctx context.Context, id uint64) (*models.User, error)
}

type API struct {
	svc   *checkins.Service
	users UserStore
}

func New(svc *checkins.Service, users UserStore) *API {
	return &API{svc: svc, users: users}
}

// Routes mounts all check-in endpoints. Every route runs behind the viewer
// middleware: requests without a resolvable X-User-Id get 401.
func (a *API) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(a.withViewer)

	r.Post("/checkins", a.createCheckin)
	r.Get("/checkins", a.listWithinBounds)
	r.Get("/checkins/{id}", a.getCheckin)
	r.Delete("/checkins/{id}", a.deleteCheckin)
	r.Post("/checkins/{id}/photos", a.retryPhotoUpload)

	r.Get("/orders/{id}/checkins", a.listByOrder)
	r.Get("/shippers/me/orders", a.listAssignedOrders)
	r.Get("/shippers/{id}/checkins", a.listByShipper)
	r.Get("/customers/{id}/checkins", a.listByCustomer)

	return r
}

type ctxKey int

const viewerKey ctxKey = 0

func viewerFrom(ctx context.Context) *models.User {
	v, _ := ctx.Value(viewerKey).(*models.User)
	return v
}

// withViewer resolves the authenticated user from the X-User-Id header set
// by the gateway in front of this service.
func (a *API) withViewer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-User-Id")
		if raw == "" {
			writeError(w, apperr.Unauthorized("authentication required"))
			return
		}
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			writeError(w, apperr.Unauthorized("invalid user id"))
			return
		}
		user, err := a.users.GetUserByID(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		if user == nil {
			writeError(w, apperr.Unauthorized("unknown user"))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), viewerKey, user)))
	})
}

type createCheckinRequest struct {
	OrderID     uint64 `json:"orderId"`
	OrderKind   string `json:"orderKind"`
	OrderNumber string `json:"orderNumber"`

	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`

	Accuracy   *float64   `json:"accuracy"`
	Altitude   *float64   `json:"altitude"`
	Heading    *float64   `json:"heading"`
	Speed      *float64   `json:"speed"`
	CapturedAt *time.Time `json:"capturedAt"`
	Source     string     `json:"source"`

	Address *models.Address `json:"address"`
	Photos  []models.Photo  `json:"photos"`

	Notes     string     `json:"notes"`
	CheckinAt *time.Time `json:"checkinAt"`

	CustomerID    *uint64 `json:"customerId"`
	CustomerEmail string  `json:"customerEmail"`
	ShipperName   string  `json:"shipperName"`
}

func (a *API) createCheckin(w http.ResponseWriter, r *http.Request) {
	viewer := viewerFrom(r.Context())

	in, err := decodeCreateInput(r)
	if err != nil {
		writeError(w, err)
		return
	}

	out, err := a.svc.CreateCheckin(r.Context(), viewer.ID, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// decodeCreateInput accepts either a JSON body or a multipart form whose
// "payload" part carries the JSON and whose "photos" parts carry the files.
func decodeCreateInput(r *http.Request) (models.CheckinCreateInput, error) {
	var req createCheckinRequest
	var raw []models.RawPhoto

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "multipart/") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return models.CheckinCreateInput{}, apperr.Validation("invalid multipart form")
		}
		if payload := r.FormValue("payload"); payload != "" {
			if err := json.Unmarshal([]byte(payload), &req); err != nil {
				return models.CheckinCreateInput{}, apperr.Validation("invalid payload json")
			}
		}
		files, err := formPhotos(r)
		if err != nil {
			return models.CheckinCreateInput{}, err
		}
		raw = files
	} else {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return models.CheckinCreateInput{}, apperr.Validation("invalid json body")
		}
	}

	return models.CheckinCreateInput{
		OrderID:       req.OrderID,
		OrderKind:     models.OrderKind(req.OrderKind),
		OrderNumber:   req.OrderNumber,
		Lng:           req.Lng,
		Lat:           req.Lat,
		Accuracy:      req.Accuracy,
		Altitude:      req.Altitude,
		Heading:       req.Heading,
		Speed:         req.Speed,
		CapturedAt:    req.CapturedAt,
		Source:        req.Source,
		Address:       req.Address,
		RawPhotos:     raw,
		Photos:        req.Photos,
		Notes:         req.Notes,
		CheckinAt:     req.CheckinAt,
		CustomerID:    req.CustomerID,
		CustomerEmail: req.CustomerEmail,
		ShipperName:   req.ShipperName,
	}, nil
}

func formPhotos(r *http.Request) ([]models.RawPhoto, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	var out []models.RawPhoto
	for _, fh := range r.MultipartForm.File["photos"] {
		f, err := fh.Open()
		if err != nil {
			return nil, apperr.Validation("unreadable photo upload")
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, apperr.Validation("unreadable photo upload")
		}
		out = append(out, models.RawPhoto{
			Filename: fh.Filename,
			MimeType: fh.Header.Get("Content-Type"),
			Data:     data,
		})
	}
	return out, nil
}

func (a *API) getCheckin(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := a.svc.GetCheckin(r.Context(), viewerFrom(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) deleteCheckin(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := a.svc.DeleteCheckin(r.Context(), viewerFrom(r.Context()).ID, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (a *API) retryPhotoUpload(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, apperr.Validation("invalid multipart form"))
		return
	}
	raw, err := formPhotos(r)
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := a.svc.RetryPhotoUpload(r.Context(), viewerFrom(r.Context()).ID, id, raw)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) listWithinBounds(w http.ResponseWriter, r *http.Request) {
	viewer := viewerFrom(r.Context())
	if !viewer.HasShipperLink() && !viewer.HasCustomerLink() {
		writeError(w, apperr.Forbidden("shipper or customer role required"))
		return
	}

	q := r.URL.Query()
	b, err := parseBounds(q)
	if err != nil {
		writeError(w, err)
		return
	}

	var customerID *uint64
	if raw := q.Get("customerId"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, apperr.Validation("invalid customerId"))
			return
		}
		customerID = &id
	}
	limit, _ := strconv.Atoi(q.Get("limit"))

	out, err := a.svc.ListWithinBounds(r.Context(), viewer, b, customerID, models.OrderKind(q.Get("orderKind")), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) listByOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := a.svc.ListByOrder(r.Context(), viewerFrom(r.Context()), id, models.OrderKind(r.URL.Query().Get("orderKind")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) listByShipper(w http.ResponseWriter, r *http.Request) {
	viewer := viewerFrom(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if !viewer.IsAdmin {
		if _, err := a.svc.Resolver().VerifyShipperRole(r.Context(), viewer.ID); err != nil {
			writeError(w, err)
			return
		}
		if viewer.ID != id {
			writeError(w, apperr.Forbidden("cannot view another shipper's checkins"))
			return
		}
	}
	out, err := a.svc.ListByShipper(r.Context(), viewer, id, parseListOptions(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) listByCustomer(w http.ResponseWriter, r *http.Request) {
	viewer := viewerFrom(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if !viewer.IsAdmin {
		if viewer.ExclusivelyShipper() {
			writeError(w, apperr.Forbidden("shippers cannot access customer features"))
			return
		}
		if !viewer.HasCustomerLink() {
			writeError(w, apperr.Forbidden("customer role required"))
			return
		}
		if viewer.ID != id {
			writeError(w, apperr.Forbidden("cannot view another customer's checkins"))
			return
		}
	}
	out, err := a.svc.ListByCustomer(r.Context(), viewer, id, parseListOptions(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) listAssignedOrders(w http.ResponseWriter, r *http.Request) {
	out, err := a.svc.ListAssignedOrders(r.Context(), viewerFrom(r.Context()).ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func pathID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation("invalid id")
	}
	return id, nil
}

func parseBounds(q map[string][]string) (models.Bounds, error) {
	get := func(key string) (float64, error) {
		vals := q[key]
		if len(vals) == 0 || vals[0] == "" {
			return 0, apperr.Validation("minLng, minLat, maxLng, maxLat are required")
		}
		v, err := strconv.ParseFloat(vals[0], 64)
		if err != nil {
			return 0, apperr.Validation("invalid " + key)
		}
		return v, nil
	}

	var b models.Bounds
	var err error
	if b.MinLng, err = get("minLng"); err != nil {
		return b, err
	}
	if b.MinLat, err = get("minLat"); err != nil {
		return b, err
	}
	if b.MaxLng, err = get("maxLng"); err != nil {
		return b, err
	}
	if b.MaxLat, err = get("maxLat"); err != nil {
		return b, err
	}
	return b, nil
}

func parseListOptions(r *http.Request) models.ListOptions {
	q := r.URL.Query()
	opts := models.ListOptions{
		Status:    q.Get("status"),
		OrderKind: models.OrderKind(q.Get("orderKind")),
	}
	opts.Page, _ = strconv.Atoi(q.Get("page"))
	opts.Limit, _ = strconv.Atoi(q.Get("limit"))
	if raw := q.Get("from"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			opts.From = &t
		}
	}
	if raw := q.Get("to"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			opts.To = &t
		}
	}
	return opts
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err.Error())
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindForbidden:
		status = http.StatusForbidden
	case apperr.KindUnauthorized:
		status = http.StatusUnauthorized
	}
	if status == http.StatusInternalServerError {
		slog.Error("internal error", "error", err.Error())
		writeJSON(w, status, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
