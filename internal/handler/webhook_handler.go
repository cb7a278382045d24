package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"antarin/internal/gateway"
	"antarin/internal/model"

	"github.com/rs/zerolog"
)

// CustomerConversation is the customer side of the chat flows.
type CustomerConversation interface {
	HandleText(ctx context.Context, phone, name, text string) error
	HandleLocation(ctx context.Context, phone string, lat, lng float64) error
}

// CourierConversation is the courier side of the chat flows.
type CourierConversation interface {
	HandleText(ctx context.Context, courier *model.Courier, text string) error
	HandleEvidence(ctx context.Context, courier *model.Courier, imageRef, caption string) error
	HandleLocation(ctx context.Context, courier *model.Courier, lat, lng float64) error
}

// CourierLookup resolves a phone number to a courier, nil when the phone
// belongs to a customer.
type CourierLookup interface {
	GetByPhone(ctx context.Context, phone string) (*model.Courier, error)
}

// WebhookHandler receives inbound messages from the messaging gateway and
// routes each to the customer or courier flow. The sender's role is
// decided by a courier-table lookup on the canonical phone.
type WebhookHandler struct {
	customers CustomerConversation
	couriers  CourierConversation
	lookup    CourierLookup
	logger    zerolog.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(
	customers CustomerConversation,
	couriers CourierConversation,
	lookup CourierLookup,
	logger zerolog.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		customers: customers,
		couriers:  couriers,
		lookup:    lookup,
		logger:    logger.With().Str("handler", "webhook").Logger(),
	}
}

// Receive handles POST /webhook/message requests.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", h.logger)
		return
	}

	var msg model.InboundMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", h.logger)
		return
	}
	if err := msg.Validate(); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	phone, err := gateway.NormalizePhone(msg.Phone)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	courier, err := h.lookup.GetByPhone(r.Context(), phone)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to resolve sender", h.logger)
		return
	}

	if courier != nil {
		err = h.dispatchCourier(r.Context(), courier, &msg)
	} else {
		err = h.dispatchCustomer(r.Context(), phone, &msg)
	}
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("phone", phone).
			Str("type", msg.Type).
			Msg("message handling failed")
		writeError(w, http.StatusInternalServerError, "failed to process message", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *WebhookHandler) dispatchCourier(ctx context.Context, courier *model.Courier, msg *model.InboundMessage) error {
	switch msg.Type {
	case model.MessageText:
		return h.couriers.HandleText(ctx, courier, msg.Text)
	case model.MessageImage:
		return h.couriers.HandleEvidence(ctx, courier, msg.ImageRef, msg.Caption)
	case model.MessageLocation:
		return h.couriers.HandleLocation(ctx, courier, *msg.Lat, *msg.Lng)
	}
	return nil
}

func (h *WebhookHandler) dispatchCustomer(ctx context.Context, phone string, msg *model.InboundMessage) error {
	switch msg.Type {
	case model.MessageText:
		return h.customers.HandleText(ctx, phone, msg.Name, msg.Text)
	case model.MessageImage:
		// Customers have no image flow; treat the caption as text when
		// present.
		if msg.Caption != "" {
			return h.customers.HandleText(ctx, phone, msg.Name, msg.Caption)
		}
		return nil
	case model.MessageLocation:
		return h.customers.HandleLocation(ctx, phone, *msg.Lat, *msg.Lng)
	}
	return nil
}
