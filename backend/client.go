// Package backend is the HTTP client for the image-translation backend.
package backend

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"resty.dev/v3"

	"go.aimuz.me/comictl/internal/types"
)

const (
	imagePath = "/translate/image"
	jsonPath  = "/translate/json"

	defaultContentType = "application/octet-stream"
)

// Request is one image submitted for translation.
type Request struct {
	BaseURL     string
	Image       []byte
	ContentType string
	Config      Config
}

// Image is a binary response body.
type Image struct {
	Data        []byte
	ContentType string
}

// JSONResult is the /translate/json response.
// Translations is never nil.
type JSONResult struct {
	Translations []types.TranslationRecord `json:"translations"`
}

// envelope is the request body for both endpoints.
type envelope struct {
	Image  string `json:"image"`
	Config Config `json:"config"`
}

// Client talks to the backend. It holds no per-request state.
type Client struct {
	http *resty.Client
}

// NewClient creates a Client. A zero timeout leaves requests unbounded
// apart from their context.
func NewClient(timeout time.Duration) *Client {
	c := resty.New().
		SetHeader("User-Agent", "comictl").
		SetHeader("Accept", "*/*")
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return &Client{http: c}
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.http.Close()
}

// RequestImage posts to /translate/image and returns the rendered image.
func (c *Client) RequestImage(ctx context.Context, req Request) (Image, error) {
	resp, err := c.post(ctx, req, imagePath)
	if err != nil {
		return Image{}, fmt.Errorf("translate image: %w", err)
	}
	if !resp.IsSuccess() {
		return Image{}, statusError(OpTranslateImage, resp)
	}

	ct := resp.Header().Get("Content-Type")
	if ct == "" {
		ct = defaultContentType
	}
	return Image{Data: resp.Bytes(), ContentType: ct}, nil
}

// RequestJSON posts to /translate/json and returns the detected regions.
// A missing or null translations field is an empty result, a null body is an error.
func (c *Client) RequestJSON(ctx context.Context, req Request) (JSONResult, error) {
	resp, err := c.post(ctx, req, jsonPath)
	if err != nil {
		return JSONResult{}, fmt.Errorf("translate json: %w", err)
	}
	if !resp.IsSuccess() {
		return JSONResult{}, statusError(OpTranslateJSON, resp)
	}

	var result *JSONResult
	if err := json.Unmarshal(resp.Bytes(), &result); err != nil {
		return JSONResult{}, fmt.Errorf("translate json: decode response: %w", err)
	}
	if result == nil {
		return JSONResult{}, errors.New("translate json: invalid response from backend - null result")
	}
	if result.Translations == nil {
		result.Translations = []types.TranslationRecord{}
	}
	return *result, nil
}

// FetchImage downloads the source image at url.
func (c *Client) FetchImage(ctx context.Context, url string) (Image, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return Image{}, fmt.Errorf("%s: %w", OpFetchImage, err)
	}
	if !resp.IsSuccess() {
		return Image{}, &StatusError{Op: OpFetchImage, StatusCode: resp.StatusCode(), Body: resp.Status()}
	}

	ct := resp.Header().Get("Content-Type")
	if ct == "" {
		ct = defaultContentType
	}
	return Image{Data: resp.Bytes(), ContentType: ct}, nil
}

func (c *Client) post(ctx context.Context, req Request, path string) (*resty.Response, error) {
	body := envelope{
		Image:  DataURL(req.Image, req.ContentType),
		Config: req.Config,
	}
	return c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(endpoint(req.BaseURL, path))
}

func statusError(op string, resp *resty.Response) error {
	return &StatusError{
		Op:         op,
		StatusCode: resp.StatusCode(),
		Body:       strings.TrimSpace(resp.String()),
	}
}

func endpoint(baseURL, path string) string {
	return strings.TrimRight(baseURL, "/") + path
}

// DataURL encodes data the way a browser FileReader does.
func DataURL(data []byte, contentType string) string {
	if contentType == "" {
		contentType = defaultContentType
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
