// Package privacy decides photo visibility and GPS precision per viewer.
// Tier selection depends only on viewer identity and record ownership.
package privacy

import (
	"math"

	"github.com/BearBump/CheckinBox/internal/apperr"
	"github.com/BearBump/CheckinBox/internal/models"
)

// Precision tiers.
const (
	TierFull        = "FULL"
	TierApproximate = "APPROXIMATE"
	TierHidden      = "HIDDEN"
)

func isOwner(viewer *models.User, c *models.Checkin) bool {
	if viewer.IsAdmin {
		return true
	}
	if viewer.HasShipperLink() && viewer.ID == c.ShipperID {
		return true
	}
	if viewer.HasCustomerLink() && viewer.ID == c.CustomerID {
		return true
	}
	return false
}

// Tier classifies the viewer against the record: HIDDEN for anonymous,
// FULL for admin/owner, APPROXIMATE for any other authenticated viewer.
func Tier(viewer *models.User, c *models.Checkin) string {
	if viewer == nil || viewer.ID == 0 {
		return TierHidden
	}
	if isOwner(viewer, c) {
		return TierFull
	}
	return TierApproximate
}

// CanViewPhotos decides photo access. The only error case is an absent
// viewer; an authenticated non-owner gets (false, nil).
func CanViewPhotos(viewer *models.User, c *models.Checkin) (bool, error) {
	if viewer == nil || viewer.ID == 0 {
		return false, apperr.Unauthorized("authentication required to view photos")
	}
	return isOwner(viewer, c), nil
}

// CanViewPhotosSafe is the non-throwing wrapper for call sites that treat
// "anonymous" the same as "denied".
func CanViewPhotosSafe(viewer *models.User, c *models.Checkin) bool {
	ok, err := CanViewPhotos(viewer, c)
	return err == nil && ok
}

func roundCoord(v float64) float64 {
	return math.Round(v*100) / 100
}

// SanitizeLocation returns a copy of the record with coordinates and GPS
// metadata reduced to the viewer's tier.
func SanitizeLocation(viewer *models.User, c *models.Checkin) *models.Checkin {
	out := clone(c)

	switch Tier(viewer, c) {
	case TierFull:
		return out
	case TierHidden:
		out.Location.Coordinates = [2]float64{0, 0}
		out.Location.Hidden = true
		nullGPS(&out.GPSMetadata)
		out.GPSMetadata.Hidden = true
	default:
		out.Location.Coordinates = [2]float64{
			roundCoord(c.Location.Lng()),
			roundCoord(c.Location.Lat()),
		}
		out.Location.Approximate = true
		nullGPS(&out.GPSMetadata)
		out.GPSMetadata.Approximate = true
	}
	return out
}

// SanitizeForResponse applies location sanitation, then strips photo URLs
// when the viewer may not see photos. The input record is never mutated.
func SanitizeForResponse(viewer *models.User, c *models.Checkin) *models.Checkin {
	out := SanitizeLocation(viewer, c)

	if !CanViewPhotosSafe(viewer, c) {
		for i := range out.Photos {
			out.Photos[i].URL = nil
			out.Photos[i].ThumbnailURL = nil
			out.Photos[i].Restricted = true
		}
		out.PhotosRestricted = true
	}
	return out
}

func nullGPS(m *models.GPSMetadata) {
	m.Accuracy = nil
	m.Altitude = nil
	m.Heading = nil
	m.Speed = nil
}

func clone(c *models.Checkin) *models.Checkin {
	out := *c
	if c.Photos != nil {
		out.Photos = make([]models.Photo, len(c.Photos))
		copy(out.Photos, c.Photos)
	}
	return &out
}
