package models

import "time"

// Check-in statuses.
const (
	CheckinStatusPending   = "pending"
	CheckinStatusCompleted = "completed"
)

// GeoPoint is a GeoJSON point: coordinates are [longitude, latitude].
type GeoPoint struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
	Hidden      bool       `json:"hidden,omitempty"`
	Approximate bool       `json:"approximate,omitempty"`
}

func NewGeoPoint(lng, lat float64) GeoPoint {
	return GeoPoint{Type: "Point", Coordinates: [2]float64{lng, lat}}
}

func (p GeoPoint) Lng() float64 { return p.Coordinates[0] }
func (p GeoPoint) Lat() float64 { return p.Coordinates[1] }

type Address struct {
	Formatted string `json:"formatted"`
	Street    string `json:"street,omitempty"`
	Ward      string `json:"ward,omitempty"`
	District  string `json:"district,omitempty"`
	City      string `json:"city,omitempty"`
	Country   string `json:"country,omitempty"`
}

type GPSMetadata struct {
	Accuracy    *float64   `json:"accuracy"`
	Altitude    *float64   `json:"altitude,omitempty"`
	Heading     *float64   `json:"heading,omitempty"`
	Speed       *float64   `json:"speed,omitempty"`
	CapturedAt  *time.Time `json:"capturedAt,omitempty"`
	Source      string     `json:"source,omitempty"`
	Warning     *string    `json:"warning"`
	Hidden      bool       `json:"hidden,omitempty"`
	Approximate bool       `json:"approximate,omitempty"`
}

type Photo struct {
	URL          *string   `json:"url"`
	ThumbnailURL *string   `json:"thumbnailUrl"`
	Filename     string    `json:"filename"`
	Size         int64     `json:"size,omitempty"`
	MimeType     string    `json:"mimeType,omitempty"`
	Width        int       `json:"width,omitempty"`
	Height       int       `json:"height,omitempty"`
	CapturedAt   time.Time `json:"capturedAt,omitempty"`
	Restricted   bool      `json:"restricted,omitempty"`
}

type Checkin struct {
	ID uint64 `json:"id"`

	OrderID     uint64    `json:"orderId"`
	OrderKind   OrderKind `json:"orderKind"`
	OrderNumber string    `json:"orderNumber"`

	ShipperID     uint64 `json:"shipperId"`
	ShipperName   string `json:"shipperName"`
	CustomerID    uint64 `json:"customerId"`
	CustomerEmail string `json:"customerEmail"`

	Location    GeoPoint    `json:"location"`
	Address     Address     `json:"address"`
	GPSMetadata GPSMetadata `json:"gpsMetadata"`

	Photos           []Photo `json:"photos"`
	PhotosRestricted bool    `json:"photosRestricted,omitempty"`

	Notes  string `json:"notes"`
	Status string `json:"status"`

	ThreadID *string `json:"threadId,omitempty"`

	EmailSent        bool       `json:"emailSent"`
	EmailSentAt      *time.Time `json:"emailSentAt,omitempty"`
	EmailAttempts    int32      `json:"-"`
	EmailNextAttempt *time.Time `json:"-"`

	CheckinAt time.Time `json:"checkinAt"`

	IsDeleted bool       `json:"isDeleted"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
	DeletedBy *uint64    `json:"deletedBy,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RawPhoto is an unprocessed upload passed to the media ingestion service.
type RawPhoto struct {
	Filename string
	MimeType string
	Data     []byte
}

type CheckinCreateInput struct {
	OrderID     uint64
	OrderKind   OrderKind // optional; probed when empty
	OrderNumber string    // optional; used to derive the kind hint

	Lng float64
	Lat float64

	Accuracy   *float64
	Altitude   *float64
	Heading    *float64
	Speed      *float64
	CapturedAt *time.Time
	Source     string

	Address *Address // caller-supplied formatted address wins over geocoding

	RawPhotos []RawPhoto // sent to the ingestion service
	Photos    []Photo    // pre-processed descriptors (retry path)

	Notes     string
	CheckinAt *time.Time

	CustomerID    *uint64 // caller override, otherwise derived from the order
	CustomerEmail string
	ShipperName   string
}

// Bounds is a geographic bounding box, inclusive on all four edges.
type Bounds struct {
	MinLng float64
	MinLat float64
	MaxLng float64
	MaxLat float64
}

type ListOptions struct {
	Page      int
	Limit     int
	From      *time.Time
	To        *time.Time
	Status    string
	OrderKind OrderKind
}
