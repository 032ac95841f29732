// Package api is the HTTP client for the recording backend: session
// initialization, region-count registration, media upload, and the
// health probe. Every response uses the backend's envelope shape.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"glance/recorder"
)

type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
	}
}

// envelope is the backend's uniform response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

// decode reads the body, enforces the status code, and unpacks the
// envelope, decoding Data into out when out is non-nil.
func decode(resp *http.Response, out any) error {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("backend error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = env.Message
		}
		if msg == "" {
			msg = "request rejected"
		}
		return fmt.Errorf("backend: %s", msg)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("parsing response data: %w", err)
		}
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	return decode(resp, out)
}

// Initialize registers a new recording session and returns its server
// identifier.
func (c *Client) Initialize(ctx context.Context, title string, numRegions int) (string, error) {
	var data struct {
		RecordingUUID string `json:"recording_uuid"`
	}
	payload := map[string]any{"title": title, "num_regions": numRegions}
	if err := c.postJSON(ctx, "/api/recordings/initialize", payload, &data); err != nil {
		return "", fmt.Errorf("initializing recording: %w", err)
	}
	if data.RecordingUUID == "" {
		return "", fmt.Errorf("initializing recording: backend returned no identifier")
	}
	return data.RecordingUUID, nil
}

// SetRegions reports the final region count once the layout is locked.
func (c *Client) SetRegions(ctx context.Context, id string, numRegions int) error {
	payload := map[string]any{"num_regions": numRegions}
	if err := c.postJSON(ctx, "/api/recordings/"+id+"/regions", payload, nil); err != nil {
		return fmt.Errorf("setting region count: %w", err)
	}
	return nil
}

// Upload sends the assembled media as a multipart form. The media bytes
// stay with the caller, so a failed upload can be retried.
func (c *Client) Upload(ctx context.Context, id string, media recorder.Media) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "recording.webm")
	if err != nil {
		return err
	}
	if _, err := part.Write(media.Bytes); err != nil {
		return err
	}
	writer.WriteField("duration", strconv.FormatFloat(media.Duration.Seconds(), 'f', 3, 64))
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/recordings/"+id+"/upload", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("uploading recording: %w", err)
	}
	if err := decode(resp, nil); err != nil {
		return fmt.Errorf("uploading recording: %w", err)
	}
	return nil
}

// Health probes the backend without touching any session state.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != 200 {
		return fmt.Errorf("backend unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
