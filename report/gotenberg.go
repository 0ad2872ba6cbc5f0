package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Paper describes the Chromium print settings sent to Gotenberg. Sizes are
// in inches as Gotenberg expects.
type Paper struct {
	Width     float64
	Height    float64
	Landscape bool
	// WaitDelay gives client side scripts time to settle before printing.
	WaitDelay time.Duration
}

// A4Landscape prints on A4 turned sideways.
var A4Landscape = Paper{Width: 8.27, Height: 11.7, Landscape: true, WaitDelay: time.Second}

// Client wraps interactions with the Gotenberg API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a new client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Ping checks if the remote Gotenberg service is available.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gotenberg returned status %d", resp.StatusCode)
	}
	return nil
}

// RenderHTML converts an HTML document into a PDF printed on paper.
func (c *Client) RenderHTML(ctx context.Context, html string, paper Paper) ([]byte, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("gotenberg endpoint required")
	}
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("files", "index.html")
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(part, html); err != nil {
		return nil, err
	}
	for name, value := range paper.fields() {
		if err := writer.WriteField(name, value); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/forms/chromium/convert/html", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("render failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return io.ReadAll(resp.Body)
}

func (p Paper) fields() map[string]string {
	fields := map[string]string{
		"printBackground": "true",
	}
	if p.Width > 0 {
		fields["paperWidth"] = strconv.FormatFloat(p.Width, 'f', 2, 64)
	}
	if p.Height > 0 {
		fields["paperHeight"] = strconv.FormatFloat(p.Height, 'f', 2, 64)
	}
	if p.Landscape {
		fields["landscape"] = "true"
	}
	if p.WaitDelay > 0 {
		fields["waitDelay"] = p.WaitDelay.String()
	}
	return fields
}
