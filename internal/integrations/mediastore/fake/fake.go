package fake

import (
	"context"
	"fmt"
	"time"

	"github.com/BearBump/CheckinBox/internal/models"
)

// FakeIngestor stores nothing: it fabricates deterministic URLs from the
// filenames. Used for local runs when no media service is configured.
type FakeIngestor struct {
	BaseURL string
}

func New() *FakeIngestor {
	return &FakeIngestor{BaseURL: "https://media.local"}
}

func (f *FakeIngestor) Ingest(ctx context.Context, files []models.RawPhoto) ([]models.Photo, error) {
	now := time.Now().UTC()
	out := make([]models.Photo, 0, len(files))
	for _, raw := range files {
		url := fmt.Sprintf("%s/photos/%s", f.BaseURL, raw.Filename)
		thumb := fmt.Sprintf("%s/thumbs/%s", f.BaseURL, raw.Filename)
		out = append(out, models.Photo{
			URL:          &url,
			ThumbnailURL: &thumb,
			Filename:     raw.Filename,
			Size:         int64(len(raw.Data)),
			MimeType:     raw.MimeType,
			CapturedAt:   now,
		})
	}
	return out, nil
}
