package checkins

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/CheckinBox/internal/apperr"
	"github.com/BearBump/CheckinBox/internal/broker/messages"
	"github.com/BearBump/CheckinBox/internal/cache"
	"github.com/BearBump/CheckinBox/internal/geo"
	"github.com/BearBump/CheckinBox/internal/integrations/chat"
	"github.com/BearBump/CheckinBox/internal/integrations/geocoder"
	"github.com/BearBump/CheckinBox/internal/integrations/mediastore"
	"github.com/BearBump/CheckinBox/internal/models"
	"github.com/BearBump/CheckinBox/internal/privacy"
	"github.com/pkg/errors"
)

type Repository interface {
	CreateCheckin(ctx context.Context, c *models.Checkin) (*models.Checkin, error)
	GetCheckinByID(ctx context.Context, id uint64) (*models.Checkin, error)
	ListCheckinsByShipper(ctx context.Context, shipperID uint64, opts models.ListOptions) ([]*models.Checkin, error)
	ListCheckinsByCustomer(ctx context.Context, customerID uint64, opts models.ListOptions) ([]*models.Checkin, error)
	ListCheckinsByOrder(ctx context.Context, orderID uint64, kind models.OrderKind) ([]*models.Checkin, error)
	ListCheckinsWithinBounds(ctx context.Context, b models.Bounds, customerID *uint64, kind models.OrderKind, limit int) ([]*models.Checkin, error)
	SoftDeleteCheckin(ctx context.Context, id, deletedBy uint64) error
	AttachThread(ctx context.Context, id uint64, threadID string) error
	UpdateCheckinPhotos(ctx context.Context, id uint64, photos []models.Photo) error
}

type OrderStore interface {
	GetMasterOrder(ctx context.Context, id uint64) (*models.Order, error)
	GetSwagOrder(ctx context.Context, id uint64) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, kind models.OrderKind, id uint64, status string, deliveredAt *time.Time) error
	ListAssignedMasterOrders(ctx context.Context, shipperID uint64) ([]*models.Order, error)
}

type UserStore interface {
	GetUserByID(ctx context.Context, id uint64) (*models.User, error)
	GetShipperProfile(ctx context.Context, id uint64) (*models.ShipperProfile, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Service struct {
	repo     Repository
	orders   OrderStore
	users    UserStore
	resolver *Resolver

	geocoder geocoder.Resolver
	media    mediastore.Ingestor
	chat     chat.ThreadCreator

	producer Producer
	topic    string

	cache    cache.BytesCache
	cacheTTL time.Duration

	defaultCountry string
}

func New(repo Repository, orders OrderStore, users UserStore, geocoder geocoder.Resolver, media mediastore.Ingestor) *Service {
	return &Service{
		repo:           repo,
		orders:         orders,
		users:          users,
		resolver:       NewResolver(orders, users),
		geocoder:       geocoder,
		media:          media,
		defaultCountry: "Vietnam",
	}
}

func (s *Service) WithThreads(c chat.ThreadCreator) *Service {
	s.chat = c
	return s
}

func (s *Service) WithProducer(p Producer, topic string) *Service {
	s.producer = p
	s.topic = topic
	return s
}

func (s *Service) WithCache(c cache.BytesCache, ttl time.Duration) *Service {
	s.cache = c
	s.cacheTTL = ttl
	return s
}

func (s *Service) WithDefaultCountry(country string) *Service {
	if country != "" {
		s.defaultCountry = country
	}
	return s
}

func (s *Service) Resolver() *Resolver { return s.resolver }

// CreateCheckin runs the creation pipeline. Everything before the insert
// fails the whole operation; everything after it is fire-and-log.
func (s *Service) CreateCheckin(ctx context.Context, shipperID uint64, in models.CheckinCreateInput) (*models.Checkin, error) {
	if in.OrderID == 0 {
		return nil, apperr.Validation("orderId is required")
	}

	// Role check + order resolution, kind hint from the order number when
	// the caller did not say.
	kind := in.OrderKind
	if !kind.Valid() {
		kind = models.DetectOrderKind(in.OrderNumber)
	}
	order, err := s.resolver.ResolveOrderAccessForShipper(ctx, shipperID, in.OrderID, kind)
	if err != nil {
		return nil, err
	}

	acc := geo.ValidateAccuracy(in.Lat, in.Lng, in.Accuracy)
	if !acc.IsValid {
		return nil, apperr.Validation("invalid coordinates")
	}

	address := s.resolveAddress(ctx, in)

	photos, err := s.ingestPhotos(ctx, in)
	if err != nil {
		return nil, err
	}

	customerID, customerEmail := s.deriveCustomer(ctx, order, in)
	shipperName := in.ShipperName
	if shipperName == "" {
		if user, err := s.users.GetUserByID(ctx, shipperID); err == nil && user != nil {
			shipperName = user.DisplayName
		}
	}

	checkinAt := time.Now().UTC()
	if in.CheckinAt != nil {
		checkinAt = in.CheckinAt.UTC()
	}

	record := &models.Checkin{
		OrderID:       order.ID,
		OrderKind:     order.Kind,
		OrderNumber:   order.OrderNumber,
		ShipperID:     shipperID,
		ShipperName:   shipperName,
		CustomerID:    customerID,
		CustomerEmail: customerEmail,
		Location:      models.NewGeoPoint(in.Lng, in.Lat),
		Address:       address,
		GPSMetadata: models.GPSMetadata{
			Accuracy:   acc.Accuracy,
			Altitude:   in.Altitude,
			Heading:    in.Heading,
			Speed:      in.Speed,
			CapturedAt: in.CapturedAt,
			Source:     in.Source,
			Warning:    acc.Warning,
		},
		Photos:    photos,
		Notes:     in.Notes,
		Status:    models.CheckinStatusCompleted,
		CheckinAt: checkinAt,
	}

	created, err := s.repo.CreateCheckin(ctx, record)
	if err != nil {
		return nil, errors.Wrap(err, "persist checkin")
	}

	// Point of no return: side effects must not fail the operation.
	s.attachThread(ctx, created)
	s.advanceOrderStatus(ctx, order, created)
	s.publishCreated(ctx, created)
	s.cacheSet(ctx, created)

	return created, nil
}

func (s *Service) resolveAddress(ctx context.Context, in models.CheckinCreateInput) models.Address {
	if in.Address != nil && in.Address.Formatted != "" {
		addr := *in.Address
		if addr.Country == "" {
			addr.Country = s.defaultCountry
		}
		return addr
	}
	return s.geocoder.ReverseGeocode(ctx, in.Lat, in.Lng)
}

func (s *Service) ingestPhotos(ctx context.Context, in models.CheckinCreateInput) ([]models.Photo, error) {
	if len(in.RawPhotos) > 0 {
		photos, err := s.media.Ingest(ctx, in.RawPhotos)
		if err != nil {
			return nil, apperr.Validation(fmt.Sprintf("photo ingestion failed: %v", err))
		}
		return photos, nil
	}
	if len(in.Photos) > 0 {
		return in.Photos, nil
	}
	return []models.Photo{}, nil
}

// deriveCustomer picks the denormalized customer id/email. Caller-supplied
// values win; for swag orders the customer is the order creator and the
// email comes from the user store when not supplied.
func (s *Service) deriveCustomer(ctx context.Context, order *models.Order, in models.CheckinCreateInput) (uint64, string) {
	var customerID uint64
	email := in.CustomerEmail

	if in.CustomerID != nil {
		customerID = *in.CustomerID
	} else {
		switch order.Kind {
		case models.OrderKindMaster:
			if order.CustomerID != nil {
				customerID = *order.CustomerID
			}
		case models.OrderKindSwag:
			if order.CreatedByID != nil {
				customerID = *order.CreatedByID
			}
		}
	}

	if email == "" {
		switch order.Kind {
		case models.OrderKindMaster:
			email = order.CustomerEmail
		case models.OrderKindSwag:
			if customerID != 0 {
				user, err := s.users.GetUserByID(ctx, customerID)
				if err != nil {
					slog.Warn("customer email lookup failed", "customer_id", customerID, "error", err.Error())
				} else if user != nil {
					email = user.Email
				}
			}
		}
	}
	return customerID, email
}

func (s *Service) attachThread(ctx context.Context, c *models.Checkin) {
	if s.chat == nil {
		return
	}
	threadID, err := s.chat.CreateDeliveryThread(ctx, c)
	if err != nil {
		slog.Error("create delivery thread", "checkin_id", c.ID, "error", err.Error())
		return
	}
	if err := s.repo.AttachThread(ctx, c.ID, threadID); err != nil {
		slog.Error("attach thread", "checkin_id", c.ID, "error", err.Error())
		return
	}
	c.ThreadID = &threadID
}

func (s *Service) advanceOrderStatus(ctx context.Context, order *models.Order, c *models.Checkin) {
	if status, changed := advanceOnCheckin(order); changed {
		deliveredAt := c.CheckinAt
		if err := s.orders.UpdateOrderStatus(ctx, order.Kind, order.ID, status, &deliveredAt); err != nil {
			slog.Error("advance order status", "order_id", order.ID, "order_kind", order.Kind, "error", err.Error())
			return
		}
		order.Status = status
		order.DeliveredAt = &deliveredAt
	}

	active, err := s.repo.ListCheckinsByOrder(ctx, order.ID, order.Kind)
	if err != nil {
		slog.Error("list order checkins", "order_id", order.ID, "error", err.Error())
		return
	}
	if checkCompletion(order, active) && order.Status != models.OrderStatusCompleted {
		if err := s.orders.UpdateOrderStatus(ctx, order.Kind, order.ID, models.OrderStatusCompleted, order.DeliveredAt); err != nil {
			slog.Error("mark order completed", "order_id", order.ID, "error", err.Error())
		}
	}
}

func (s *Service) publishCreated(ctx context.Context, c *models.Checkin) {
	if s.producer == nil || s.topic == "" {
		return
	}
	msg := messages.CheckinCreated{
		CheckinID:     c.ID,
		CreatedAt:     c.CreatedAt,
		OrderID:       c.OrderID,
		OrderKind:     string(c.OrderKind),
		OrderNumber:   c.OrderNumber,
		ShipperID:     c.ShipperID,
		CustomerID:    c.CustomerID,
		CustomerEmail: c.CustomerEmail,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal checkin created", "checkin_id", c.ID, "error", err.Error())
		return
	}
	key := []byte(fmt.Sprintf("%d", c.ID))
	if err := s.producer.Publish(ctx, s.topic, key, b); err != nil {
		slog.Error("publish checkin created", "checkin_id", c.ID, "error", err.Error())
	}
}

// GetCheckin loads one record (read-through cache), runs the unified access
// check, and returns the privacy-sanitized view for the viewer.
func (s *Service) GetCheckin(ctx context.Context, viewer *models.User, id uint64) (*models.Checkin, error) {
	if viewer == nil || viewer.ID == 0 {
		return nil, apperr.Unauthorized("authentication required")
	}

	c := s.cacheGet(ctx, id)
	if c == nil {
		var err error
		c, err = s.repo.GetCheckinByID(ctx, id)
		if err != nil {
			return nil, errors.Wrap(err, "load checkin")
		}
		if c != nil {
			s.cacheSet(ctx, c)
		}
	}
	if c == nil || c.IsDeleted {
		return nil, apperr.NotFound("checkin not found")
	}

	if err := s.resolver.CheckCheckinAccess(ctx, viewer, c); err != nil {
		return nil, err
	}
	return privacy.SanitizeForResponse(viewer, c), nil
}

// DeleteCheckin soft-deletes a record. Only the exact owning shipper may
// delete; there is deliberately no admin override here.
func (s *Service) DeleteCheckin(ctx context.Context, shipperID, id uint64) error {
	c, err := s.repo.GetCheckinByID(ctx, id)
	if err != nil {
		return errors.Wrap(err, "load checkin")
	}
	if c == nil || c.IsDeleted {
		return apperr.NotFound("checkin not found")
	}
	if c.ShipperID != shipperID {
		return apperr.Forbidden("checkin belongs to another shipper")
	}

	if err := s.repo.SoftDeleteCheckin(ctx, id, shipperID); err != nil {
		return errors.Wrap(err, "soft delete checkin")
	}
	s.cacheDel(ctx, id)

	s.revertOrderStatus(ctx, c)
	return nil
}

// revertOrderStatus is the best-effort reversal after a deletion: when the
// order has no active check-ins left and sits at delivered, it goes back to
// the most recent pre-delivery status.
func (s *Service) revertOrderStatus(ctx context.Context, c *models.Checkin) {
	active, err := s.repo.ListCheckinsByOrder(ctx, c.OrderID, c.OrderKind)
	if err != nil {
		slog.Error("list order checkins", "order_id", c.OrderID, "error", err.Error())
		return
	}
	if len(active) > 0 {
		return
	}

	order, err := s.resolver.getByKind(ctx, c.OrderKind, c.OrderID)
	if err != nil {
		slog.Error("load order for reversal", "order_id", c.OrderID, "error", err.Error())
		return
	}
	if order == nil || order.Status != models.OrderStatusDelivered {
		return
	}

	prior := priorStatus(order)
	if err := s.orders.UpdateOrderStatus(ctx, order.Kind, order.ID, prior, nil); err != nil {
		slog.Error("revert order status", "order_id", order.ID, "status", prior, "error", err.Error())
	}
}

func (s *Service) ListByShipper(ctx context.Context, viewer *models.User, shipperID uint64, opts models.ListOptions) ([]*models.Checkin, error) {
	items, err := s.repo.ListCheckinsByShipper(ctx, shipperID, opts)
	if err != nil {
		return nil, errors.Wrap(err, "list shipper checkins")
	}
	return sanitizeAll(viewer, items), nil
}

func (s *Service) ListByCustomer(ctx context.Context, viewer *models.User, customerID uint64, opts models.ListOptions) ([]*models.Checkin, error) {
	items, err := s.repo.ListCheckinsByCustomer(ctx, customerID, opts)
	if err != nil {
		return nil, errors.Wrap(err, "list customer checkins")
	}
	return sanitizeAll(viewer, items), nil
}

// ListByOrder verifies that the viewer can reach the order (customer
// ownership first, assigned-shipper fallback), then returns sanitized
// records.
func (s *Service) ListByOrder(ctx context.Context, viewer *models.User, orderID uint64, kind models.OrderKind) ([]*models.Checkin, error) {
	if viewer == nil || viewer.ID == 0 {
		return nil, apperr.Unauthorized("authentication required")
	}
	if !viewer.IsAdmin {
		order, err := s.resolver.ResolveOrderOwnershipForCustomer(ctx, viewer.ID, orderID, kind)
		if err != nil || order == nil {
			if _, serr := s.resolver.ResolveOrderAccessForShipper(ctx, viewer.ID, orderID, kind); serr != nil {
				if apperr.IsNotFound(serr) {
					return nil, serr
				}
				return nil, apperr.Forbidden("not allowed to view this order")
			}
		}
	}

	items, err := s.repo.ListCheckinsByOrder(ctx, orderID, kind)
	if err != nil {
		return nil, errors.Wrap(err, "list order checkins")
	}
	return sanitizeAll(viewer, items), nil
}

func (s *Service) ListWithinBounds(ctx context.Context, viewer *models.User, b models.Bounds, customerID *uint64, kind models.OrderKind, limit int) ([]*models.Checkin, error) {
	if !geo.ValidRange(b.MinLng, b.MinLat) || !geo.ValidRange(b.MaxLng, b.MaxLat) {
		return nil, apperr.Validation("invalid bounds")
	}
	items, err := s.repo.ListCheckinsWithinBounds(ctx, b, customerID, kind, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list bounds checkins")
	}
	return sanitizeAll(viewer, items), nil
}

// RetryPhotoUpload re-ingests raw files for a check-in whose original
// upload failed. Owner shipper only.
func (s *Service) RetryPhotoUpload(ctx context.Context, shipperID, id uint64, raw []models.RawPhoto) (*models.Checkin, error) {
	if len(raw) == 0 {
		return nil, apperr.Validation("no photos supplied")
	}

	c, err := s.repo.GetCheckinByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "load checkin")
	}
	if c == nil || c.IsDeleted {
		return nil, apperr.NotFound("checkin not found")
	}
	if c.ShipperID != shipperID {
		return nil, apperr.Forbidden("checkin belongs to another shipper")
	}

	photos, err := s.media.Ingest(ctx, raw)
	if err != nil {
		return nil, apperr.Validation(fmt.Sprintf("photo ingestion failed: %v", err))
	}
	if err := s.repo.UpdateCheckinPhotos(ctx, id, photos); err != nil {
		return nil, errors.Wrap(err, "update photos")
	}
	s.cacheDel(ctx, id)

	c.Photos = photos
	return c, nil
}

func (s *Service) ListAssignedOrders(ctx context.Context, shipperID uint64) ([]*models.Order, error) {
	if _, err := s.resolver.VerifyShipperRole(ctx, shipperID); err != nil {
		return nil, err
	}
	orders, err := s.orders.ListAssignedMasterOrders(ctx, shipperID)
	if err != nil {
		return nil, errors.Wrap(err, "list assigned orders")
	}
	return orders, nil
}

func sanitizeAll(viewer *models.User, items []*models.Checkin) []*models.Checkin {
	out := make([]*models.Checkin, 0, len(items))
	for _, c := range items {
		out = append(out, privacy.SanitizeForResponse(viewer, c))
	}
	return out
}

func currentKey(id uint64) string {
	return fmt.Sprintf("checkin:%d:current", id)
}

func (s *Service) cacheGet(ctx context.Context, id uint64) *models.Checkin {
	if s.cache == nil || s.cacheTTL <= 0 {
		return nil
	}
	b, ok, err := s.cache.Get(ctx, currentKey(id))
	if err != nil || !ok {
		return nil
	}
	var c models.Checkin
	if json.Unmarshal(b, &c) != nil {
		return nil
	}
	return &c
}

func (s *Service) cacheSet(ctx context.Context, c *models.Checkin) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	b, err := json.Marshal(c)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, currentKey(c.ID), b, s.cacheTTL)
}

func (s *Service) cacheDel(ctx context.Context, id uint64) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, currentKey(id))
}
