package model

// Inbound message types delivered by the gateway webhook.
const (
	MessageText     = "text"
	MessageImage    = "image"
	MessageLocation = "location"
)

// InboundMessage is one message delivered by the gateway webhook. Exactly
// one payload shape applies per type: Text for text, ImageRef+Caption for
// image, Lat/Lng for location.
type InboundMessage struct {
	Phone    string   `json:"phone"`
	Name     string   `json:"name,omitempty"`
	Type     string   `json:"type"`
	Text     string   `json:"text,omitempty"`
	ImageRef string   `json:"imageRef,omitempty"`
	Caption  string   `json:"caption,omitempty"`
	Lat      *float64 `json:"lat,omitempty"`
	Lng      *float64 `json:"lng,omitempty"`
}

// Validate checks the message carries the payload its type requires.
func (m *InboundMessage) Validate() error {
	if m.Phone == "" {
		return MissingFieldError("phone")
	}
	switch m.Type {
	case MessageText:
		if m.Text == "" {
			return MissingFieldError("text")
		}
	case MessageImage:
		if m.ImageRef == "" {
			return MissingFieldError("imageRef")
		}
	case MessageLocation:
		if m.Lat == nil || m.Lng == nil {
			return MissingFieldError("lat/lng")
		}
	default:
		return NewDomainError(ErrCodeInvalidJSON, "unknown message type")
	}
	return nil
}
