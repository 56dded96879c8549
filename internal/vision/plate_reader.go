package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/gatewise/gatehub/internal/gateerrors"
	"github.com/gatewise/gatehub/internal/plate"
)

// PlateScan is the detector/OCR output for one vehicle image: the plate crop
// split into halves, each with its OCR fragments and the half image itself
// (for the debug composite). Half images may be nil when the sidecar omits them.
type PlateScan struct {
	Left      []plate.Fragment
	Right     []plate.Fragment
	LeftHalf  image.Image
	RightHalf image.Image
}

// PlateReader localizes a plate in an image and OCRs its two halves.
// Implementations fail with gateerrors.ErrNoPlate when no plate is found.
type PlateReader interface {
	ReadPlate(ctx context.Context, image []byte) (*PlateScan, error)
}

// HTTPPlateReader calls the detector/OCR inference sidecar over HTTP.
type HTTPPlateReader struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPPlateReader creates a plate reader client for the sidecar at baseURL.
func NewHTTPPlateReader(baseURL string) *HTTPPlateReader {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil
	// Detection plus two OCR passes; slower than embedding.
	rc.HTTPClient.Timeout = 60 * time.Second

	return &HTTPPlateReader{
		baseURL:    baseURL,
		httpClient: rc.StandardClient(),
	}
}

// plateHalfResponse is one half of the sidecar's plate payload.
type plateHalfResponse struct {
	Fragments []plate.Fragment `json:"fragments"`
	ImageJPEG string           `json:"image_jpeg,omitempty"`
}

// plateScanResponse is the sidecar's plate payload.
type plateScanResponse struct {
	Left  plateHalfResponse `json:"left"`
	Right plateHalfResponse `json:"right"`
}

// ReadPlate posts the image to the sidecar and returns per-half OCR results.
func (c *HTTPPlateReader) ReadPlate(ctx context.Context, imageData []byte) (*PlateScan, error) {
	url := c.baseURL + "/v1/plates/scan"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("create plate scan request: %w", err)
	}

	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("plate reader request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnprocessableEntity {
		var se sidecarError
		if decErr := json.NewDecoder(resp.Body).Decode(&se); decErr == nil && se.Code == "no_plate" {
			return nil, gateerrors.NewNoPlateError(se.Message)
		}

		return nil, fmt.Errorf("plate reader rejected image")
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return nil, fmt.Errorf("plate reader returned %d: %s", resp.StatusCode, string(body))
	}

	var out plateScanResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode plate scan: %w", err)
	}

	scan := &PlateScan{
		Left:  out.Left.Fragments,
		Right: out.Right.Fragments,
	}

	scan.LeftHalf = decodeHalf(out.Left.ImageJPEG)
	scan.RightHalf = decodeHalf(out.Right.ImageJPEG)

	return scan, nil
}

// decodeHalf decodes a base64 JPEG half; nil on any failure (the half image
// only feeds the best-effort debug composite).
func decodeHalf(b64 string) image.Image {
	if b64 == "" {
		return nil
	}

	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil
	}

	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil
	}

	return img
}
