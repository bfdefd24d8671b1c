package classify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxResponseBytes = 1 << 20

// HTTPClassifier posts frames to an external detection service as
// {"image": "<base64>"} and expects {"detected", "label", "confidence"}.
// A bare JSON boolean answer is accepted as well.
type HTTPClassifier struct {
	url    string
	label  string
	client *http.Client
}

// NewHTTPClassifier targets url; label is the class that counts as a hit.
func NewHTTPClassifier(url, label string, timeout time.Duration) *HTTPClassifier {
	if label == "" {
		label = defaultLabel
	}
	return &HTTPClassifier{url: url, label: label, client: &http.Client{Timeout: timeout}}
}

type httpRequest struct {
	Image string `json:"image"`
}

type httpResponse struct {
	Detected   bool    `json:"detected"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Classify sends one frame.
func (c *HTTPClassifier) Classify(ctx context.Context, f Frame) (Result, error) {
	if len(f.Image) == 0 {
		return Result{}, ErrEmptyFrame
	}

	body, err := json.Marshal(httpRequest{Image: base64.StdEncoding.EncodeToString(f.Image)})
	if err != nil {
		return Result{}, fmt.Errorf("encode frame: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("classify: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, fmt.Errorf("%w: %d", ErrClassifierStatus, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}

	var flag bool
	if json.Unmarshal(raw, &flag) == nil {
		if !flag {
			return Result{}, nil
		}
		return Result{Detected: true, Label: c.label, Confidence: 1}, nil
	}

	var out httpResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrBadResponse, err)
	}
	if out.Label == "" && out.Detected {
		out.Label = c.label
	}
	return Result{
		Detected:   out.Detected && out.Label == c.label,
		Label:      out.Label,
		Confidence: out.Confidence,
	}, nil
}
