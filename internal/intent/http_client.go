package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// HTTPParser calls the external order-intent parser over REST.
type HTTPParser struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewHTTPParser creates an HTTP-backed parser client.
func NewHTTPParser(baseURL string, timeout time.Duration, logger zerolog.Logger) *HTTPParser {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPParser{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With().Str("component", "intent-parser").Logger(),
	}
}

// Parse submits the message and its context to the parser.
func (p *HTTPParser) Parse(ctx context.Context, req Request) (*Result, error) {
	buf, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal parse request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/parse", bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("build parse request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("parser request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("parser returned status %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode parse response: %w", err)
	}

	p.logger.Debug().Str("intent", string(result.Intent)).Msg("message parsed")
	return &result, nil
}
