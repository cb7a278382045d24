package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"antarin/internal/model"
	"antarin/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// orderService implements OrderService.
type orderService struct {
	orderRepo   repository.OrderRepository
	courierRepo repository.CourierRepository
	logger      zerolog.Logger
}

// NewOrderService creates a new order service.
func NewOrderService(
	orderRepo repository.OrderRepository,
	courierRepo repository.CourierRepository,
	logger zerolog.Logger,
) OrderService {
	return &orderService{
		orderRepo:   orderRepo,
		courierRepo: courierRepo,
		logger:      logger.With().Str("service", "order").Logger(),
	}
}

// CreateDraft creates a DRAFT order from the accumulated session draft.
func (s *orderService) CreateDraft(ctx context.Context, draft *model.DraftOrder) (*model.Order, error) {
	id := uuid.New()
	order := &model.Order{
		ID:              id,
		Code:            orderCode(id),
		CustomerPhone:   draft.CustomerPhone,
		PickupAddress:   draft.PickupAddress,
		PickupLat:       draft.PickupLat,
		PickupLng:       draft.PickupLng,
		DeliveryAddress: draft.DeliveryAddress,
		DeliveryLat:     draft.DeliveryLat,
		DeliveryLng:     draft.DeliveryLng,
		Status:          model.StatusDraft,
		CreatedAt:       time.Now(),
		Items:           draft.Items,
	}

	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create draft order: %w", err)
	}

	s.logger.Info().
		Str("order_id", order.ID.String()).
		Str("code", order.Code).
		Str("customer_phone", order.CustomerPhone).
		Msg("draft order created")

	return order, nil
}

// SyncDraft overwrites the order's draft-editable fields from the session draft.
func (s *orderService) SyncDraft(ctx context.Context, orderID uuid.UUID, draft *model.DraftOrder) error {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return model.ErrOrderNotFound
	}
	if order.Status != model.StatusDraft && order.Status != model.StatusPendingConfirmation {
		return model.ErrOrderState
	}

	order.PickupAddress = draft.PickupAddress
	order.PickupLat = draft.PickupLat
	order.PickupLng = draft.PickupLng
	order.DeliveryAddress = draft.DeliveryAddress
	order.DeliveryLat = draft.DeliveryLat
	order.DeliveryLng = draft.DeliveryLng
	order.Items = draft.Items

	return s.orderRepo.UpdateDraftFields(ctx, order)
}

// MarkPendingConfirmation moves a DRAFT order to PENDING_CONFIRMATION.
func (s *orderService) MarkPendingConfirmation(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return model.ErrOrderNotFound
	}
	if order.Status == model.StatusPendingConfirmation {
		return nil
	}
	if !order.Status.CanTransitionTo(model.StatusPendingConfirmation) {
		return model.ErrOrderState
	}

	return s.orderRepo.UpdateStatus(ctx, orderID, model.StatusPendingConfirmation)
}

// Confirm validates the order and moves it to LOOKING_FOR_DRIVER.
func (s *orderService) Confirm(ctx context.Context, orderID uuid.UUID) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, model.ErrOrderNotFound
	}
	if !order.Status.CanTransitionTo(model.StatusLookingForDriver) {
		return nil, model.ErrOrderState
	}

	// Coordinates are deliberately not checked here: an order may sit in
	// LOOKING_FOR_DRIVER until the customer shares a location.
	switch {
	case len(order.Items) == 0:
		return nil, model.MissingFieldError("items")
	case strings.TrimSpace(order.PickupAddress) == "":
		return nil, model.MissingFieldError("pickup_address")
	case strings.TrimSpace(order.DeliveryAddress) == "":
		return nil, model.MissingFieldError("delivery_address")
	}

	if err := s.orderRepo.UpdateStatus(ctx, orderID, model.StatusLookingForDriver); err != nil {
		return nil, err
	}
	order.Status = model.StatusLookingForDriver

	s.logger.Info().
		Str("order_id", orderID.String()).
		Str("code", order.Code).
		Msg("order confirmed, looking for driver")

	return order, nil
}

// Assign gives the order to the courier under an exclusive row lock.
func (s *orderService) Assign(ctx context.Context, orderID uuid.UUID, courierID int64) (*model.Order, error) {
	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer s.rollback(ctx, tx)

	order, err := s.orderRepo.GetForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, model.ErrOrderNotFound
	}

	if order.Status != model.StatusLookingForDriver {
		// A racing courier already took it, or the order left dispatch
		// some other way. Either way the accepting courier needs the
		// specific "taken" answer, not a generic error.
		if order.CourierID != nil || order.Status.IsTerminal() {
			return nil, model.ErrOrderTaken
		}
		return nil, model.ErrOrderState
	}

	courier, err := s.courierRepo.GetForUpdate(ctx, tx, courierID)
	if err != nil {
		return nil, err
	}
	if courier == nil {
		return nil, model.NewDomainError(model.ErrCodeNotFound, "courier not found")
	}
	if courier.Status != model.CourierIdle || !courier.IsActive {
		return nil, model.ErrCourierBusy
	}

	if err := s.orderRepo.MarkAssigned(ctx, tx, orderID, courierID); err != nil {
		return nil, err
	}
	if err := s.courierRepo.SetStatusTx(ctx, tx, courierID, model.CourierBusy); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit assignment: %w", err)
	}

	order.Status = model.StatusOnProcess
	order.CourierID = &courierID

	s.logger.Info().
		Str("order_id", orderID.String()).
		Int64("courier_id", courierID).
		Msg("order assigned")

	return order, nil
}

// RecordBillDraft stores the bill amount and moves the order to BILL_VALIDATION.
func (s *orderService) RecordBillDraft(ctx context.Context, orderID uuid.UUID, amount int64, evidenceRef *string) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, model.ErrOrderNotFound
	}
	if order.Status != model.StatusOnProcess && order.Status != model.StatusBillValidation {
		return nil, model.ErrOrderState
	}

	if err := s.orderRepo.SetBill(ctx, orderID, amount, evidenceRef); err != nil {
		return nil, err
	}
	if order.Status == model.StatusOnProcess {
		if err := s.orderRepo.UpdateStatus(ctx, orderID, model.StatusBillValidation); err != nil {
			return nil, err
		}
	}

	order.Status = model.StatusBillValidation
	order.TotalAmount = amount
	if evidenceRef != nil {
		order.EvidenceRef = evidenceRef
	}

	s.logger.Info().
		Str("order_id", orderID.String()).
		Int64("amount", amount).
		Msg("bill draft recorded")

	return order, nil
}

// FinalizeBill moves BILL_VALIDATION to BILL_SENT.
func (s *orderService) FinalizeBill(ctx context.Context, orderID uuid.UUID) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil || order.Status != model.StatusBillValidation {
		return nil, nil
	}

	if err := s.orderRepo.UpdateStatus(ctx, orderID, model.StatusBillSent); err != nil {
		return nil, err
	}
	order.Status = model.StatusBillSent

	s.logger.Info().Str("order_id", orderID.String()).Msg("bill finalized")
	return order, nil
}

// Complete marks the order delivered and releases the courier.
func (s *orderService) Complete(ctx context.Context, orderID uuid.UUID, courierID int64) (*model.Order, error) {
	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer s.rollback(ctx, tx)

	order, err := s.orderRepo.GetForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, model.ErrOrderNotFound
	}
	if order.Status != model.StatusBillSent || order.CourierID == nil || *order.CourierID != courierID {
		return nil, model.ErrOrderState
	}

	if err := s.orderRepo.MarkCompleted(ctx, tx, orderID); err != nil {
		return nil, err
	}
	if err := s.courierRepo.SetStatusTx(ctx, tx, courierID, model.CourierIdle); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit completion: %w", err)
	}

	now := time.Now()
	order.Status = model.StatusCompleted
	order.CompletedAt = &now

	s.logger.Info().
		Str("order_id", orderID.String()).
		Int64("courier_id", courierID).
		Msg("order completed")

	return order, nil
}

// Cancel cancels the order and releases any held courier.
func (s *orderService) Cancel(ctx context.Context, orderID uuid.UUID, reason string) error {
	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer s.rollback(ctx, tx)

	order, err := s.orderRepo.GetForUpdate(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return model.ErrOrderNotFound
	}
	if order.Status == model.StatusCancelled {
		return nil
	}
	if order.Status == model.StatusCompleted {
		return model.ErrOrderState
	}

	if order.CourierID != nil {
		if err := s.courierRepo.SetStatusTx(ctx, tx, *order.CourierID, model.CourierIdle); err != nil {
			return err
		}
	}
	if err := s.orderRepo.MarkCancelled(ctx, tx, orderID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit cancellation: %w", err)
	}

	s.logger.Info().
		Str("order_id", orderID.String()).
		Str("reason", reason).
		Msg("order cancelled")

	return nil
}

// GetByID retrieves an order.
func (s *orderService) GetByID(ctx context.Context, orderID uuid.UUID) (*model.Order, error) {
	return s.orderRepo.GetByID(ctx, orderID)
}

// GetByCode retrieves an order by its short code.
func (s *orderService) GetByCode(ctx context.Context, code string) (*model.Order, error) {
	return s.orderRepo.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
}

// GetActiveByCustomer retrieves the customer's current non-terminal order.
func (s *orderService) GetActiveByCustomer(ctx context.Context, phone string) (*model.Order, error) {
	return s.orderRepo.GetActiveByCustomer(ctx, phone)
}

func (s *orderService) rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
		s.logger.Error().Err(err).Msg("failed to rollback transaction")
	}
}

// orderCode derives the short human-friendly code couriers and customers
// type in chat commands.
func orderCode(id uuid.UUID) string {
	return "ANT-" + strings.ToUpper(strings.ReplaceAll(id.String()[:8], "-", ""))
}
