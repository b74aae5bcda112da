// Package imagehost uploads avatars to the image hosting service.
package imagehost

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
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// MaxUploadBytes caps the size of an uploaded image.
const MaxUploadBytes = 4 << 20

// ErrNotImage is returned for uploads that are not an accepted image type.
var ErrNotImage = errors.New("imagehost: file is not an image")

var acceptedTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// Client wraps interactions with the image host API.
type Client struct {
	baseURL    string
	key        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient constructs a new client.
func NewClient(baseURL, key string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// Enabled reports whether an image host is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.baseURL != ""
}

type uploadResponse struct {
	Data struct {
		DisplayURL string `json:"display_url"`
		URL        string `json:"url"`
	} `json:"data"`
	Success bool `json:"success"`
	Error   struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Upload sends the image in r and returns its public URL.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	if !c.Enabled() {
		return "", errors.New("imagehost: not configured")
	}
	raw, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return "", err
	}
	if len(raw) > MaxUploadBytes {
		return "", fmt.Errorf("imagehost: file exceeds %d bytes", MaxUploadBytes)
	}
	if !acceptedTypes[http.DetectContentType(raw)] {
		return "", ErrNotImage
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", filepath.Base(filename))
	if err != nil {
		return "", err
	}
	if _, err := part.Write(raw); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	endpoint := c.baseURL
	if c.key != "" {
		endpoint += "?key=" + url.QueryEscape(c.key)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("imagehost: upload: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	var out uploadResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil && resp.StatusCode < 400 {
		return "", fmt.Errorf("imagehost: decode response: %w", err)
	}
	if resp.StatusCode >= 400 {
		c.logger.Warn("image upload rejected", slog.Int("status", resp.StatusCode), slog.String("message", out.Error.Message))
		return "", fmt.Errorf("imagehost: upload failed with status %d", resp.StatusCode)
	}
	link := out.Data.DisplayURL
	if link == "" {
		link = out.Data.URL
	}
	if link == "" {
		return "", errors.New("imagehost: response carried no url")
	}
	return link, nil
}
