package receipt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// HTTPReader calls the external receipt reader over REST.
type HTTPReader struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewHTTPReader creates an HTTP-backed receipt reader client.
func NewHTTPReader(baseURL string, timeout time.Duration, logger zerolog.Logger) *HTTPReader {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTPReader{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With().Str("component", "receipt-reader").Logger(),
	}
}

type readRequest struct {
	ImageRef string `json:"image_ref"`
}

type readResponse struct {
	Total int64 `json:"total"`
}

// ReadTotal submits the image reference and returns the detected total.
func (r *HTTPReader) ReadTotal(ctx context.Context, imageRef string) (int64, error) {
	buf, err := json.Marshal(readRequest{ImageRef: imageRef})
	if err != nil {
		return 0, fmt.Errorf("marshal read request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/read-total", bytes.NewReader(buf))
	if err != nil {
		return 0, fmt.Errorf("build read request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("receipt reader request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("receipt reader returned status %d", resp.StatusCode)
	}

	var payload readResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode read response: %w", err)
	}

	r.logger.Debug().Str("image_ref", imageRef).Int64("total", payload.Total).Msg("receipt total detected")
	return payload.Total, nil
}
