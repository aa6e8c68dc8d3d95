// Package mediahttp talks to the media service that stores delivery photos
// and produces thumbnails.
package mediahttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/BearBump/CheckinBox/internal/models"
	"github.com/pkg/errors"
)

type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9200"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type uploadResp struct {
	Photos []struct {
		URL          string `json:"url"`
		ThumbnailURL string `json:"thumbnailUrl"`
		Filename     string `json:"filename"`
		Size         int64  `json:"size"`
		MimeType     string `json:"mimeType"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
	} `json:"photos"`
}

func (c *Client) Ingest(ctx context.Context, files []models.RawPhoto) ([]models.Photo, error) {
	if len(files) == 0 {
		return []models.Photo{}, nil
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		fw, err := mw.CreateFormFile("photos", f.Filename)
		if err != nil {
			return nil, errors.Wrap(err, "create form file")
		}
		if _, err := io.Copy(fw, bytes.NewReader(f.Data)); err != nil {
			return nil, errors.Wrap(err, "copy file")
		}
	}
	if err := mw.Close(); err != nil {
		return nil, errors.Wrap(err, "close multipart")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/photos", &body)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("media service http %d", resp.StatusCode)
	}

	var r uploadResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, errors.Wrap(err, "decode")
	}
	if len(r.Photos) != len(files) {
		return nil, fmt.Errorf("media service returned %d photos for %d files", len(r.Photos), len(files))
	}

	now := time.Now().UTC()
	out := make([]models.Photo, 0, len(r.Photos))
	for _, p := range r.Photos {
		url := p.URL
		thumb := p.ThumbnailURL
		out = append(out, models.Photo{
			URL:          &url,
			ThumbnailURL: &thumb,
			Filename:     p.Filename,
			Size:         p.Size,
			MimeType:     p.MimeType,
			Width:        p.Width,
			Height:       p.Height,
			CapturedAt:   now,
		})
	}
	return out, nil
}
