// Package vision holds the clients for the ML collaborators: the face
// embedder and the plate detector/OCR sidecar. Both are black boxes behind
// narrow interfaces; the engine never sees model internals.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/gatewise/gatehub/internal/gateerrors"
)

// Embedder turns an image into a fixed-length face embedding vector.
// Implementations fail with gateerrors.ErrNoFace when no usable face
// region exists in the image.
type Embedder interface {
	EmbedFace(ctx context.Context, image []byte) ([]float32, error)
}

// sidecarError is the error body returned by the inference sidecar on 422.
type sidecarError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HTTPEmbedder calls the face-embedding inference sidecar over HTTP.
type HTTPEmbedder struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPEmbedder creates an embedder client for the sidecar at baseURL.
// Transient failures are retried (the sidecar occasionally drops requests
// while a model reloads); 4xx responses are not.
func NewHTTPEmbedder(baseURL string) *HTTPEmbedder {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil
	rc.HTTPClient.Timeout = 30 * time.Second

	return &HTTPEmbedder{
		baseURL:    baseURL,
		httpClient: rc.StandardClient(),
	}
}

// embedResponse is the sidecar's embedding payload.
type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// EmbedFace posts the image to the sidecar and returns the embedding vector.
func (c *HTTPEmbedder) EmbedFace(ctx context.Context, image []byte) ([]float32, error) {
	url := c.baseURL + "/v1/embed"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}

	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedder request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnprocessableEntity {
		var se sidecarError
		if decErr := json.NewDecoder(resp.Body).Decode(&se); decErr == nil && se.Code == "no_face" {
			return nil, gateerrors.NewNoFaceError(se.Message)
		}

		return nil, fmt.Errorf("embedder rejected image")
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return nil, fmt.Errorf("embedder returned %d: %s", resp.StatusCode, string(body))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}

	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("embedder returned empty vector")
	}

	return out.Embedding, nil
}
