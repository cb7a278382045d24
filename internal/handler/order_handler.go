package handler

import (
	"context"
	"net/http"
	"strings"

	"antarin/internal/dispatch"
	"antarin/internal/model"
	"antarin/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CourierRanker computes the current eligible-courier ranking for an order
// without side effects.
type CourierRanker interface {
	RankEligible(ctx context.Context, orderID uuid.UUID) ([]dispatch.RankedCourier, error)
}

// OrderProjection is the admin read view of an order: the row itself plus
// the couriers dispatch would currently consider, nearest first.
type OrderProjection struct {
	Order            *model.Order             `json:"order"`
	EligibleCouriers []dispatch.RankedCourier `json:"eligibleCouriers"`
}

// OrderHandler serves the admin order read surface.
type OrderHandler struct {
	service service.OrderService
	ranker  CourierRanker
	logger  zerolog.Logger
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(service service.OrderService, ranker CourierRanker, logger zerolog.Logger) *OrderHandler {
	return &OrderHandler{
		service: service,
		ranker:  ranker,
		logger:  logger.With().Str("handler", "order").Logger(),
	}
}

// GetByID handles GET /api/orders/{id} requests. The id may be either the
// order uuid or the short code.
func (h *OrderHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", h.logger)
		return
	}

	ref := strings.TrimPrefix(r.URL.Path, "/api/orders/")
	if ref == "" {
		writeError(w, http.StatusBadRequest, "order reference is required", h.logger)
		return
	}

	order, err := h.resolve(r.Context(), ref)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to retrieve order", h.logger)
		return
	}
	if order == nil {
		writeDomainError(w, model.ErrOrderNotFound, h.logger)
		return
	}

	projection := OrderProjection{Order: order}

	// The ranking uses the live dispatch filters but must never touch
	// the offer bookkeeping; a ranking failure degrades the view, not
	// the order itself.
	if order.Status == model.StatusLookingForDriver {
		ranked, err := h.ranker.RankEligible(r.Context(), order.ID)
		if err != nil {
			h.logger.Warn().Err(err).Str("order_id", order.ID.String()).Msg("courier ranking failed")
		} else {
			projection.EligibleCouriers = ranked
		}
	}

	writeJSON(w, http.StatusOK, projection)
}

func (h *OrderHandler) resolve(ctx context.Context, ref string) (*model.Order, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return h.service.GetByID(ctx, id)
	}
	return h.service.GetByCode(ctx, ref)
}
