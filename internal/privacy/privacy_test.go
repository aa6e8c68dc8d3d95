package privacy

import (
	"testing"

	"github.com/BearBump/CheckinBox/internal/apperr"
	"github.com/BearBump/CheckinBox/internal/models"
	"github.com/stretchr/testify/require"
)

func u64(v uint64) *uint64   { return &v }
func f64(v float64) *float64 { return &v }
func str(s string) *string   { return &s }

func record() *models.Checkin {
	return &models.Checkin{
		ID:         1,
		ShipperID:  100,
		CustomerID: 200,
		Location:   models.NewGeoPoint(106.6297, 10.8231),
		GPSMetadata: models.GPSMetadata{
			Accuracy: f64(12),
			Altitude: f64(5),
			Heading:  f64(90),
			Speed:    f64(1.2),
		},
		Photos: []models.Photo{
			{URL: str("https://cdn/p1.jpg"), ThumbnailURL: str("https://cdn/t1.jpg"), Filename: "p1.jpg"},
		},
	}
}

func shipperViewer() *models.User {
	return &models.User{ID: 100, ShipperProfileID: u64(7)}
}

func customerViewer() *models.User {
	return &models.User{ID: 200, CustomerProfileID: u64(8)}
}

func strangerViewer() *models.User {
	return &models.User{ID: 999, CustomerProfileID: u64(9)}
}

func TestCanViewPhotos(t *testing.T) {
	rec := record()

	_, err := CanViewPhotos(nil, rec)
	require.True(t, apperr.IsUnauthorized(err))

	_, err = CanViewPhotos(&models.User{}, rec)
	require.True(t, apperr.IsUnauthorized(err))

	ok, err := CanViewPhotos(&models.User{ID: 1, IsAdmin: true}, rec)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = CanViewPhotos(shipperViewer(), rec)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = CanViewPhotos(customerViewer(), rec)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = CanViewPhotos(strangerViewer(), rec)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCanViewPhotosSafe(t *testing.T) {
	rec := record()
	require.False(t, CanViewPhotosSafe(nil, rec))
	require.True(t, CanViewPhotosSafe(shipperViewer(), rec))
	require.False(t, CanViewPhotosSafe(strangerViewer(), rec))
}

func TestSanitizeLocation_hidden(t *testing.T) {
	rec := record()
	out := SanitizeLocation(nil, rec)

	require.Equal(t, [2]float64{0, 0}, out.Location.Coordinates)
	require.True(t, out.Location.Hidden)
	require.Nil(t, out.GPSMetadata.Accuracy)
	require.Nil(t, out.GPSMetadata.Altitude)
	require.Nil(t, out.GPSMetadata.Heading)
	require.Nil(t, out.GPSMetadata.Speed)
	require.True(t, out.GPSMetadata.Hidden)

	// input untouched
	require.Equal(t, 106.6297, rec.Location.Lng())
	require.NotNil(t, rec.GPSMetadata.Accuracy)
}

func TestSanitizeLocation_full(t *testing.T) {
	rec := record()

	for _, v := range []*models.User{
		{ID: 1, IsAdmin: true},
		shipperViewer(),
		customerViewer(),
	} {
		out := SanitizeLocation(v, rec)
		require.Equal(t, rec.Location.Coordinates, out.Location.Coordinates)
		require.False(t, out.Location.Hidden)
		require.False(t, out.Location.Approximate)
		require.Equal(t, rec.GPSMetadata.Accuracy, out.GPSMetadata.Accuracy)
	}
}

func TestSanitizeLocation_approximate(t *testing.T) {
	rec := record()
	out := SanitizeLocation(strangerViewer(), rec)

	require.Equal(t, [2]float64{106.63, 10.82}, out.Location.Coordinates)
	require.True(t, out.Location.Approximate)
	require.Nil(t, out.GPSMetadata.Accuracy)
	require.Nil(t, out.GPSMetadata.Speed)
	require.True(t, out.GPSMetadata.Approximate)
}

func TestSanitizeForResponse_anonymous(t *testing.T) {
	rec := record()
	out := SanitizeForResponse(nil, rec)

	require.Equal(t, [2]float64{0, 0}, out.Location.Coordinates)
	require.True(t, out.Location.Hidden)
	require.True(t, out.PhotosRestricted)
	require.Len(t, out.Photos, 1)
	require.Nil(t, out.Photos[0].URL)
	require.Nil(t, out.Photos[0].ThumbnailURL)
	require.Equal(t, "p1.jpg", out.Photos[0].Filename)
	require.True(t, out.Photos[0].Restricted)

	// original photos keep their urls
	require.NotNil(t, rec.Photos[0].URL)
	require.False(t, rec.PhotosRestricted)
}

func TestSanitizeForResponse_owner(t *testing.T) {
	rec := record()
	out := SanitizeForResponse(customerViewer(), rec)

	require.False(t, out.PhotosRestricted)
	require.NotNil(t, out.Photos[0].URL)
	require.Equal(t, rec.Location.Coordinates, out.Location.Coordinates)
}

func TestTier(t *testing.T) {
	rec := record()
	require.Equal(t, TierHidden, Tier(nil, rec))
	require.Equal(t, TierFull, Tier(shipperViewer(), rec))
	require.Equal(t, TierFull, Tier(&models.User{ID: 5, IsAdmin: true}, rec))
	require.Equal(t, TierApproximate, Tier(strangerViewer(), rec))
}
