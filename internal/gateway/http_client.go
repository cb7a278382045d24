package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// HTTPMessenger sends messages through the gateway's REST API.
type HTTPMessenger struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewHTTPMessenger creates an HTTP-backed messenger client.
func NewHTTPMessenger(baseURL, token string, timeout time.Duration, logger zerolog.Logger) *HTTPMessenger {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPMessenger{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With().Str("component", "gateway").Logger(),
	}
}

type textPayload struct {
	Phone string `json:"phone"`
	Body  string `json:"body"`
}

type imagePayload struct {
	Phone    string `json:"phone"`
	ImageRef string `json:"image_ref"`
	Caption  string `json:"caption"`
}

// SendText delivers a plain text message to the phone.
func (m *HTTPMessenger) SendText(ctx context.Context, phone, body string) error {
	return m.post(ctx, "/v1/messages/text", textPayload{Phone: phone, Body: body})
}

// SendImage delivers an image by reference with a caption.
func (m *HTTPMessenger) SendImage(ctx context.Context, phone, imageRef, caption string) error {
	return m.post(ctx, "/v1/messages/image", imagePayload{Phone: phone, ImageRef: imageRef, Caption: caption})
}

func (m *HTTPMessenger) post(ctx context.Context, path string, payload any) error {
	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal gateway payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.token != "" {
		req.Header.Set("Authorization", "Bearer "+m.token)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	m.logger.Debug().Str("path", path).Msg("gateway message sent")
	return nil
}
