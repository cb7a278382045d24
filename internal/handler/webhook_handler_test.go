package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"antarin/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockCustomerConversation is a mock implementation of CustomerConversation.
type MockCustomerConversation struct {
	mock.Mock
}

func (m *MockCustomerConversation) HandleText(ctx context.Context, phone, name, text string) error {
	return m.Called(ctx, phone, name, text).Error(0)
}

func (m *MockCustomerConversation) HandleLocation(ctx context.Context, phone string, lat, lng float64) error {
	return m.Called(ctx, phone, lat, lng).Error(0)
}

// MockCourierConversation is a mock implementation of CourierConversation.
type MockCourierConversation struct {
	mock.Mock
}

func (m *MockCourierConversation) HandleText(ctx context.Context, courier *model.Courier, text string) error {
	return m.Called(ctx, courier, text).Error(0)
}

func (m *MockCourierConversation) HandleEvidence(ctx context.Context, courier *model.Courier, imageRef, caption string) error {
	return m.Called(ctx, courier, imageRef, caption).Error(0)
}

func (m *MockCourierConversation) HandleLocation(ctx context.Context, courier *model.Courier, lat, lng float64) error {
	return m.Called(ctx, courier, lat, lng).Error(0)
}

// MockCourierLookup is a mock implementation of CourierLookup.
type MockCourierLookup struct {
	mock.Mock
}

func (m *MockCourierLookup) GetByPhone(ctx context.Context, phone string) (*model.Courier, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Courier), args.Error(1)
}

type webhookFixture struct {
	customers *MockCustomerConversation
	couriers  *MockCourierConversation
	lookup    *MockCourierLookup
	handler   *WebhookHandler
}

func newWebhookFixture() *webhookFixture {
	f := &webhookFixture{
		customers: new(MockCustomerConversation),
		couriers:  new(MockCourierConversation),
		lookup:    new(MockCourierLookup),
	}
	f.handler = NewWebhookHandler(f.customers, f.couriers, f.lookup, zerolog.Nop())
	return f
}

func postMessage(t *testing.T, h *WebhookHandler, msg model.InboundMessage) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(msg)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhook/message", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Receive(rec, req)
	return rec
}

func TestWebhook_CustomerTextRoutesWithNormalizedPhone(t *testing.T) {
	f := newWebhookFixture()

	// Local format in, canonical 62 form everywhere after.
	f.lookup.On("GetByPhone", mock.Anything, "6281234567890").Return(nil, nil)
	f.customers.On("HandleText", mock.Anything, "6281234567890", "Budi", "nasi goreng 2").Return(nil)

	rec := postMessage(t, f.handler, model.InboundMessage{
		Phone: "0812-3456-7890",
		Name:  "Budi",
		Type:  model.MessageText,
		Text:  "nasi goreng 2",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	f.customers.AssertCalled(t, "HandleText", mock.Anything, "6281234567890", "Budi", "nasi goreng 2")
	f.couriers.AssertNotCalled(t, "HandleText", mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhook_CourierTextRoutesToCourierFlow(t *testing.T) {
	f := newWebhookFixture()
	courier := &model.Courier{ID: 7, Phone: "6281100000001", Status: model.CourierIdle}

	f.lookup.On("GetByPhone", mock.Anything, "6281100000001").Return(courier, nil)
	f.couriers.On("HandleText", mock.Anything, courier, "#AMBIL ANT-AB12CD34").Return(nil)

	rec := postMessage(t, f.handler, model.InboundMessage{
		Phone: "6281100000001",
		Type:  model.MessageText,
		Text:  "#AMBIL ANT-AB12CD34",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	f.couriers.AssertCalled(t, "HandleText", mock.Anything, courier, "#AMBIL ANT-AB12CD34")
	f.customers.AssertNotCalled(t, "HandleText", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhook_CourierImageBecomesEvidence(t *testing.T) {
	f := newWebhookFixture()
	courier := &model.Courier{ID: 7, Phone: "6281100000001", Status: model.CourierBusy}

	f.lookup.On("GetByPhone", mock.Anything, "6281100000001").Return(courier, nil)
	f.couriers.On("HandleEvidence", mock.Anything, courier, "media/nota-123.jpg", "#NOTA ANT-AB12CD34").Return(nil)

	rec := postMessage(t, f.handler, model.InboundMessage{
		Phone:    "6281100000001",
		Type:     model.MessageImage,
		ImageRef: "media/nota-123.jpg",
		Caption:  "#NOTA ANT-AB12CD34",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	f.couriers.AssertCalled(t, "HandleEvidence", mock.Anything, courier, "media/nota-123.jpg", "#NOTA ANT-AB12CD34")
}

func TestWebhook_LocationRoutesByRole(t *testing.T) {
	f := newWebhookFixture()
	lat, lng := -6.2, 106.8

	f.lookup.On("GetByPhone", mock.Anything, "6281234567890").Return(nil, nil)
	f.customers.On("HandleLocation", mock.Anything, "6281234567890", lat, lng).Return(nil)

	rec := postMessage(t, f.handler, model.InboundMessage{
		Phone: "6281234567890",
		Type:  model.MessageLocation,
		Lat:   &lat,
		Lng:   &lng,
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	f.customers.AssertCalled(t, "HandleLocation", mock.Anything, "6281234567890", lat, lng)
}

func TestWebhook_Validation(t *testing.T) {
	tests := []struct {
		name string
		msg  model.InboundMessage
	}{
		{"missing phone", model.InboundMessage{Type: model.MessageText, Text: "halo"}},
		{"missing text", model.InboundMessage{Phone: "6281234567890", Type: model.MessageText}},
		{"unknown type", model.InboundMessage{Phone: "6281234567890", Type: "sticker"}},
		{"location without coords", model.InboundMessage{Phone: "6281234567890", Type: model.MessageLocation}},
		{"unusable phone", model.InboundMessage{Phone: "123", Type: model.MessageText, Text: "halo"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWebhookFixture()
			rec := postMessage(t, f.handler, tt.msg)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestWebhook_RejectsInvalidJSON(t *testing.T) {
	f := newWebhookFixture()

	req := httptest.NewRequest(http.MethodPost, "/webhook/message", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	f.handler.Receive(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_RejectsNonPost(t *testing.T) {
	f := newWebhookFixture()

	req := httptest.NewRequest(http.MethodGet, "/webhook/message", nil)
	rec := httptest.NewRecorder()
	f.handler.Receive(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
