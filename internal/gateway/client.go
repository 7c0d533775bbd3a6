// Package gateway is the HTTP client for the tour persistence service: the
// tour document, the quest question bank, the image catalog and uploads.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/playperu/campustour/internal/quest"
	"github.com/playperu/campustour/internal/tour"
)

var (
	// ErrLoadFailure means a document could not be fetched or parsed.
	ErrLoadFailure = errors.New("load failure")
	// ErrWriteFailure means the service did not accept a write.
	ErrWriteFailure = errors.New("write failure")
)

// Paths served by the persistence service.
const (
	PathTour      = "/data/tour.json"
	PathSaveTour  = "/api/save-tour"
	PathQuestBank = "/data/quest.json"
	PathSaveQuest = "/save-quests"
	PathImages    = "/admin/api/images"
	PathUpload    = "/admin/api/upload-image"
)

type Client struct {
	base   string
	client *http.Client
	logger *slog.Logger
}

// New returns a client for the service at baseURL. A nil client gets a 30 s
// timeout.
func New(baseURL string, client *http.Client, logger *slog.Logger) *Client {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), client: client, logger: logger}
}

// FetchTour downloads and decodes the tour document.
func (c *Client) FetchTour(ctx context.Context) (tour.Data, error) {
	var d tour.Data
	if err := c.getJSON(ctx, PathTour, &d); err != nil {
		return tour.Data{}, err
	}
	d.Normalize()
	return d, nil
}

// LoadTour is FetchTour with the empty tour substituted on failure.
func (c *Client) LoadTour(ctx context.Context) tour.Data {
	d, err := c.FetchTour(ctx)
	if err != nil {
		c.logger.Warn("using empty tour", "error", err)
		return tour.Empty()
	}
	return d
}

// SaveTour replaces the tour document.
func (c *Client) SaveTour(ctx context.Context, d tour.Data) error {
	d = d.Clone()
	d.Normalize()
	return c.postJSON(ctx, PathSaveTour, d)
}

func (c *Client) FetchQuestBank(ctx context.Context) (quest.Bank, error) {
	var b quest.Bank
	if err := c.getJSON(ctx, PathQuestBank, &b); err != nil {
		return nil, err
	}
	return b, nil
}

// LoadQuestBank is FetchQuestBank with an empty bank substituted on failure.
func (c *Client) LoadQuestBank(ctx context.Context) quest.Bank {
	b, err := c.FetchQuestBank(ctx)
	if err != nil {
		c.logger.Warn("using empty quest bank", "error", err)
		return quest.Bank{}
	}
	return b
}

func (c *Client) SaveQuestBank(ctx context.Context, b quest.Bank) error {
	return c.postJSON(ctx, PathSaveQuest, b)
}

// ListImages returns the file names available in the image directory.
func (c *Client) ListImages(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.getJSON(ctx, PathImages, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// UploadImage sends one image to the transcoding pipeline and returns the
// files it produced.
func (c *Client) UploadImage(ctx context.Context, filename string, r io.Reader) (tour.Upload, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return tour.Upload{}, fmt.Errorf("building upload: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return tour.Upload{}, fmt.Errorf("reading %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return tour.Upload{}, fmt.Errorf("building upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+PathUpload, &body)
	if err != nil {
		return tour.Upload{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return tour.Upload{}, fmt.Errorf("uploading %s: %w: %w", filename, ErrWriteFailure, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return tour.Upload{}, fmt.Errorf("uploading %s: %w: %s", filename, ErrWriteFailure, errorMessage(resp))
	}

	var u tour.Upload
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return tour.Upload{}, fmt.Errorf("decoding upload result: %w", err)
	}
	if u.Filename == "" {
		return tour.Upload{}, fmt.Errorf("upload result has no filename: %w", ErrWriteFailure)
	}
	return u, nil
}

func (c *Client) getJSON(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w: %w", path, ErrLoadFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %w: %s", path, ErrLoadFailure, errorMessage(resp))
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("GET %s: %w: %w", path, ErrLoadFailure, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s body: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w: %w", path, ErrWriteFailure, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("POST %s: %w: %s", path, ErrWriteFailure, errorMessage(resp))
	}
	// The write already succeeded; a broken body only costs the connection.
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		c.logger.Debug("draining response", "path", path, "error", err)
	}
	return nil
}

// errorMessage reads the {"error": "..."} body the service sends with
// failures, falling back to the status line.
func errorMessage(resp *http.Response) string {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return fmt.Sprintf("status %d: %s", resp.StatusCode, body.Error)
	}
	return fmt.Sprintf("status %d", resp.StatusCode)
}
