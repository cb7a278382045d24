package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"antarin/internal/gateway"
	"antarin/internal/intent"
	"antarin/internal/model"
	"antarin/internal/repository"
	"antarin/internal/service"
	"antarin/internal/session"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Dispatcher is the dispatch entry point the chat flows trigger after a
// confirmation or a location share.
type Dispatcher interface {
	FindCourierForOrder(ctx context.Context, orderID uuid.UUID) error
}

// PickupCoordSetter writes shared coordinates straight onto an order row.
type PickupCoordSetter interface {
	SetPickupCoords(ctx context.Context, id uuid.UUID, lat, lng float64) error
}

const dispatchTimeout = 30 * time.Second

// CustomerFlow drives the customer side of the conversation: it layers
// parser output over the draft session, walks the order through
// confirmation and answers status and cancel requests. Replies go out
// through the messenger; the returned error is for infrastructure
// failures only.
type CustomerFlow struct {
	orders     service.OrderService
	customers  repository.CustomerRepository
	coords     PickupCoordSetter
	drafts     *session.DraftStore
	parser     intent.Parser
	messenger  gateway.Messenger
	dispatcher Dispatcher
	logger     zerolog.Logger
}

// NewCustomerFlow creates the customer conversation flow.
func NewCustomerFlow(
	orders service.OrderService,
	customers repository.CustomerRepository,
	coords PickupCoordSetter,
	drafts *session.DraftStore,
	parser intent.Parser,
	messenger gateway.Messenger,
	dispatcher Dispatcher,
	logger zerolog.Logger,
) *CustomerFlow {
	return &CustomerFlow{
		orders:     orders,
		customers:  customers,
		coords:     coords,
		drafts:     drafts,
		parser:     parser,
		messenger:  messenger,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "customer-flow").Logger(),
	}
}

// HandleText processes one inbound customer message. phone must already be
// in canonical form.
func (f *CustomerFlow) HandleText(ctx context.Context, phone, name, text string) error {
	customer, err := f.customers.Upsert(ctx, phone, name)
	if err != nil {
		return fmt.Errorf("failed to upsert customer: %w", err)
	}

	active, err := f.orders.GetActiveByCustomer(ctx, phone)
	if err != nil {
		return err
	}

	draft, err := f.drafts.Get(ctx, phone)
	if err != nil {
		return err
	}
	if draft == nil {
		// The session may have expired while a pre-confirmation row still
		// holds everything the customer already gave; rebuild from the row
		// so the next merge never regresses it.
		draft = draftFromOrder(phone, active)
	}

	req := intent.Request{Phone: phone, Text: text, Draft: draft}
	if active != nil {
		req.OrderStatus = string(active.Status)
	}

	res, err := f.parser.Parse(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to parse customer message: %w", err)
	}

	f.logger.Debug().
		Str("phone", phone).
		Str("intent", string(res.Intent)).
		Msg("customer message parsed")

	switch res.Intent {
	case intent.IntentOrderIncomplete, intent.IntentOrderComplete:
		return f.handleOrderFragment(ctx, customer, active, draft, res)
	case intent.IntentConfirmFinal:
		return f.handleConfirm(ctx, customer, active, draft)
	case intent.IntentCheckStatus:
		return f.handleStatusCheck(ctx, customer.Phone, active)
	case intent.IntentCancel:
		return f.handleCancel(ctx, phone, active)
	default:
		return f.reply(ctx, phone, res.ReplyText)
	}
}

// handleOrderFragment merges newly parsed fields into the draft and keeps
// the DRAFT order row in sync with it.
func (f *CustomerFlow) handleOrderFragment(ctx context.Context, customer *model.Customer, active *model.Order, draft *model.DraftOrder, res *intent.Result) error {
	draft.Merge(res.Extracted)
	if err := f.drafts.Save(ctx, draft); err != nil {
		return err
	}

	switch {
	case active == nil:
		order, err := f.orders.CreateDraft(ctx, draft)
		if err != nil {
			return err
		}
		active = order
	case active.Status == model.StatusDraft || active.Status == model.StatusPendingConfirmation:
		if err := f.orders.SyncDraft(ctx, active.ID, draft); err != nil {
			return err
		}
	default:
		// The customer's order is already in flight; nothing to merge
		// into. Pass the parser's reply through.
		return f.reply(ctx, customer.Phone, res.ReplyText)
	}

	if draft.Complete(customer.HasSharedLocation) {
		if err := f.orders.MarkPendingConfirmation(ctx, active.ID); err != nil {
			return err
		}
		return f.reply(ctx, customer.Phone, confirmPrompt(active.Code, draft))
	}

	return f.reply(ctx, customer.Phone, res.ReplyText)
}

// handleConfirm moves the draft into dispatch. The draft session ends
// here; the order row carries everything from now on.
func (f *CustomerFlow) handleConfirm(ctx context.Context, customer *model.Customer, active *model.Order, draft *model.DraftOrder) error {
	if active == nil {
		if !draft.Complete(customer.HasSharedLocation) {
			return f.reply(ctx, customer.Phone, missingPrompt(draft.MissingFields(customer.HasSharedLocation)))
		}
		order, err := f.orders.CreateDraft(ctx, draft)
		if err != nil {
			return err
		}
		active = order
	}

	order, err := f.orders.Confirm(ctx, active.ID)
	if err != nil {
		var de *model.DomainError
		if errors.As(err, &de) {
			switch de.Code {
			case model.ErrCodeMissingField:
				return f.reply(ctx, customer.Phone, missingPrompt(draft.MissingFields(customer.HasSharedLocation)))
			case model.ErrCodeOrderState:
				// A repeated "ya" lands here once the order has left
				// PENDING_CONFIRMATION. Answer with where it is.
				return f.reply(ctx, customer.Phone, statusSummary(active))
			}
		}
		return err
	}

	if err := f.drafts.Delete(ctx, customer.Phone); err != nil {
		f.logger.Warn().Err(err).Str("phone", customer.Phone).Msg("failed to delete draft session")
	}

	f.dispatchAsync(order.ID)

	return f.reply(ctx, customer.Phone,
		fmt.Sprintf("Pesanan %s dikonfirmasi. Kami sedang mencarikan kurir terdekat untuk Anda.", order.Code))
}

func (f *CustomerFlow) handleStatusCheck(ctx context.Context, phone string, active *model.Order) error {
	if active == nil {
		return f.reply(ctx, phone, "Tidak ada pesanan aktif saat ini.")
	}
	return f.reply(ctx, phone, statusSummary(active))
}

func (f *CustomerFlow) handleCancel(ctx context.Context, phone string, active *model.Order) error {
	if err := f.drafts.Delete(ctx, phone); err != nil {
		f.logger.Warn().Err(err).Str("phone", phone).Msg("failed to delete draft session")
	}

	if active == nil {
		return f.reply(ctx, phone, "Tidak ada pesanan aktif yang bisa dibatalkan.")
	}

	if err := f.orders.Cancel(ctx, active.ID, "customer"); err != nil {
		var de *model.DomainError
		if errors.As(err, &de) && de.Code == model.ErrCodeOrderState {
			return f.reply(ctx, phone,
				fmt.Sprintf("Pesanan %s sudah selesai dan tidak bisa dibatalkan.", active.Code))
		}
		return err
	}

	return f.reply(ctx, phone, fmt.Sprintf("Pesanan %s dibatalkan.", active.Code))
}

// HandleLocation stores a shared device location. The pickup point of the
// customer's current order follows it, and a waiting order goes straight
// back into dispatch.
func (f *CustomerFlow) HandleLocation(ctx context.Context, phone string, lat, lng float64) error {
	// A location share can be the first contact; make sure the customer
	// row exists before writing to it.
	if _, err := f.customers.Upsert(ctx, phone, ""); err != nil {
		return fmt.Errorf("failed to upsert customer: %w", err)
	}
	if err := f.customers.SetLocation(ctx, phone, lat, lng); err != nil {
		return err
	}

	active, err := f.orders.GetActiveByCustomer(ctx, phone)
	if err != nil {
		return err
	}

	draft, err := f.drafts.Get(ctx, phone)
	if err != nil {
		return err
	}
	if draft == nil {
		draft = draftFromOrder(phone, active)
	}
	draft.PickupLat = &lat
	draft.PickupLng = &lng
	draft.HasCoordinate = true
	if err := f.drafts.Save(ctx, draft); err != nil {
		return err
	}

	if active == nil {
		return f.reply(ctx, phone, "Lokasi Anda tersimpan.")
	}

	if !active.Status.IsTerminal() && active.CourierID == nil {
		if err := f.coords.SetPickupCoords(ctx, active.ID, lat, lng); err != nil {
			return err
		}
	}

	if active.Status == model.StatusLookingForDriver {
		f.dispatchAsync(active.ID)
	}

	return f.reply(ctx, phone, "Lokasi Anda tersimpan.")
}

// dispatchAsync hands the order to the dispatch engine without blocking
// the conversation. A failed attempt is picked up by the retry worker.
func (f *CustomerFlow) dispatchAsync(orderID uuid.UUID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		if err := f.dispatcher.FindCourierForOrder(ctx, orderID); err != nil {
			f.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("initial dispatch attempt failed")
		}
	}()
}

func (f *CustomerFlow) reply(ctx context.Context, phone, body string) error {
	if body == "" {
		return nil
	}
	if err := f.messenger.SendText(ctx, phone, body); err != nil {
		f.logger.Warn().Err(err).Str("phone", phone).Msg("customer reply failed to send")
	}
	return nil
}

// draftFromOrder rebuilds a session draft from a pre-confirmation order
// row, or starts an empty one when there is nothing to rebuild from.
func draftFromOrder(phone string, order *model.Order) *model.DraftOrder {
	draft := &model.DraftOrder{CustomerPhone: phone}
	if order == nil || (order.Status != model.StatusDraft && order.Status != model.StatusPendingConfirmation) {
		return draft
	}
	draft.Items = order.Items
	draft.PickupAddress = order.PickupAddress
	draft.PickupLat = order.PickupLat
	draft.PickupLng = order.PickupLng
	draft.DeliveryAddress = order.DeliveryAddress
	draft.DeliveryLat = order.DeliveryLat
	draft.DeliveryLng = order.DeliveryLng
	draft.HasCoordinate = order.HasPickupCoords()
	return draft
}

func confirmPrompt(code string, draft *model.DraftOrder) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pesanan %s siap dikonfirmasi:\n", code)
	for _, item := range draft.Items {
		if item.Note != "" {
			fmt.Fprintf(&b, "- %dx %s (%s)\n", item.Quantity, item.Name, item.Note)
		} else {
			fmt.Fprintf(&b, "- %dx %s\n", item.Quantity, item.Name)
		}
	}
	fmt.Fprintf(&b, "Jemput: %s\n", draft.PickupAddress)
	fmt.Fprintf(&b, "Antar: %s\n", draft.DeliveryAddress)
	b.WriteString("Balas \"ya\" untuk konfirmasi atau \"batal\" untuk membatalkan.")
	return b.String()
}

func missingPrompt(missing []string) string {
	labels := map[string]string{
		"items":            "daftar pesanan",
		"pickup_address":   "alamat jemput",
		"delivery_address": "alamat antar",
		"location":         "share lokasi Anda",
	}
	parts := make([]string, 0, len(missing))
	for _, m := range missing {
		if label, ok := labels[m]; ok {
			parts = append(parts, label)
		} else {
			parts = append(parts, m)
		}
	}
	if len(parts) == 0 {
		return "Pesanan belum lengkap."
	}
	return "Pesanan belum lengkap, mohon lengkapi: " + strings.Join(parts, ", ") + "."
}

func statusSummary(order *model.Order) string {
	switch order.Status {
	case model.StatusDraft, model.StatusPendingConfirmation:
		return fmt.Sprintf("Pesanan %s masih menunggu konfirmasi Anda.", order.Code)
	case model.StatusLookingForDriver:
		return fmt.Sprintf("Pesanan %s sedang dicarikan kurir. Mohon tunggu.", order.Code)
	case model.StatusOnProcess:
		return fmt.Sprintf("Pesanan %s sedang diproses kurir.", order.Code)
	case model.StatusBillValidation, model.StatusBillSent:
		return fmt.Sprintf("Pesanan %s sedang dalam proses penagihan. Total sementara Rp%d.", order.Code, order.TotalAmount)
	case model.StatusCompleted:
		return fmt.Sprintf("Pesanan %s sudah selesai. Terima kasih!", order.Code)
	case model.StatusCancelled:
		return fmt.Sprintf("Pesanan %s sudah dibatalkan.", order.Code)
	default:
		return fmt.Sprintf("Pesanan %s berstatus %s.", order.Code, order.Status)
	}
}
