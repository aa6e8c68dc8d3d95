package mediastore

import (
	"context"

	"github.com/BearBump/CheckinBox/internal/models"
)

// Ingestor uploads raw photo files and returns stored descriptors with URLs
// and thumbnails. Ingestion is all-or-nothing: a partial failure fails the
// whole batch.
type Ingestor interface {
	Ingest(ctx context.Context, files []models.RawPhoto) ([]models.Photo, error)
}
