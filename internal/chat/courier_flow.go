package chat

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"antarin/internal/gateway"
	"antarin/internal/geo"
	"antarin/internal/model"
	"antarin/internal/receipt"
	"antarin/internal/repository"
	"antarin/internal/service"

	"github.com/rs/zerolog"
)

// PresenceMarker is the write side of the presence registry.
type PresenceMarker interface {
	MarkOnline(ctx context.Context, courierID int64) error
	MarkOffline(ctx context.Context, courierID int64) error
}

// PendingSweeper runs one immediate dispatch pass over waiting orders.
type PendingSweeper interface {
	Sweep(ctx context.Context) error
}

// Courier chat commands. Each one operates on an order code and drives a
// single lifecycle transition.
const (
	cmdAccept    = "#AMBIL"
	cmdBill      = "#NOTA"
	cmdSendBill  = "#KIRIM"
	cmdDelivered = "#SELESAI"
	cmdOffline   = "#OFF"
)

// CourierFlow drives the courier side of the conversation: accepting
// offers, submitting bills, marking delivery and going off shift.
type CourierFlow struct {
	orders    service.OrderService
	couriers  repository.CourierRepository
	reader    receipt.Reader
	messenger gateway.Messenger
	presence  PresenceMarker
	sweeper   PendingSweeper
	logger    zerolog.Logger
}

// NewCourierFlow creates the courier conversation flow.
func NewCourierFlow(
	orders service.OrderService,
	couriers repository.CourierRepository,
	reader receipt.Reader,
	messenger gateway.Messenger,
	presence PresenceMarker,
	sweeper PendingSweeper,
	logger zerolog.Logger,
) *CourierFlow {
	return &CourierFlow{
		orders:    orders,
		couriers:  couriers,
		reader:    reader,
		messenger: messenger,
		presence:  presence,
		sweeper:   sweeper,
		logger:    logger.With().Str("component", "courier-flow").Logger(),
	}
}

// HandleText processes one inbound courier message.
func (f *CourierFlow) HandleText(ctx context.Context, courier *model.Courier, text string) error {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return nil
	}

	cmd := strings.ToUpper(fields[0])
	args := fields[1:]

	switch cmd {
	case cmdAccept:
		return f.handleAccept(ctx, courier, args)
	case cmdBill:
		return f.handleBillAmount(ctx, courier, args)
	case cmdSendBill:
		return f.handleSendBill(ctx, courier, args)
	case cmdDelivered:
		return f.handleDelivered(ctx, courier, args)
	case cmdOffline:
		return f.handleOffline(ctx, courier)
	default:
		return f.reply(ctx, courier.Phone,
			"Perintah tidak dikenal. Gunakan #AMBIL, #NOTA, #KIRIM, #SELESAI atau #OFF.")
	}
}

// handleAccept claims the order for the courier. Losing the race gets an
// explicit "already taken" reply; there is no automatic re-offer for the
// loser.
func (f *CourierFlow) handleAccept(ctx context.Context, courier *model.Courier, args []string) error {
	order, errReply, err := f.resolveOrder(ctx, args, cmdAccept)
	if err != nil || errReply != "" {
		if errReply != "" {
			return f.reply(ctx, courier.Phone, errReply)
		}
		return err
	}

	assigned, err := f.orders.Assign(ctx, order.ID, courier.ID)
	if err != nil {
		var de *model.DomainError
		if errors.As(err, &de) {
			switch de.Code {
			case model.ErrCodeOrderTaken, model.ErrCodeOrderState:
				return f.reply(ctx, courier.Phone,
					fmt.Sprintf("Pesanan %s sudah tidak tersedia.", order.Code))
			case model.ErrCodeCourierBusy:
				return f.reply(ctx, courier.Phone,
					"Selesaikan pesanan Anda yang sedang berjalan terlebih dahulu.")
			}
		}
		return err
	}

	f.notifyCustomer(ctx, assigned.CustomerPhone,
		fmt.Sprintf("Kurir %s menerima pesanan %s dan sedang menuju titik jemput.", courier.Name, assigned.Code))

	return f.reply(ctx, courier.Phone, acceptSummary(assigned))
}

// HandleEvidence processes a receipt image sent by the courier. The
// caption carries the #NOTA command with the order code. The detected
// total stays a draft the courier can correct before sending.
func (f *CourierFlow) HandleEvidence(ctx context.Context, courier *model.Courier, imageRef, caption string) error {
	fields := strings.Fields(strings.TrimSpace(caption))
	if len(fields) < 2 || strings.ToUpper(fields[0]) != cmdBill {
		return f.reply(ctx, courier.Phone,
			"Sertakan caption #NOTA <kode pesanan> pada foto nota.")
	}

	order, errReply, err := f.ownedOrder(ctx, courier, fields[1])
	if err != nil || errReply != "" {
		if errReply != "" {
			return f.reply(ctx, courier.Phone, errReply)
		}
		return err
	}

	amount, err := f.reader.ReadTotal(ctx, imageRef)
	if err != nil {
		// Reader failures are non-fatal; the courier can type the
		// amount instead.
		f.logger.Warn().Err(err).Str("order_code", order.Code).Msg("receipt total detection failed")
		return f.reply(ctx, courier.Phone,
			fmt.Sprintf("Total nota tidak terbaca. Ketik #NOTA %s <jumlah> untuk mengisi manual.", order.Code))
	}

	if _, err := f.orders.RecordBillDraft(ctx, order.ID, amount, &imageRef); err != nil {
		var de *model.DomainError
		if errors.As(err, &de) && de.Code == model.ErrCodeOrderState {
			return f.reply(ctx, courier.Phone,
				fmt.Sprintf("Pesanan %s belum bisa menerima nota.", order.Code))
		}
		return err
	}

	return f.reply(ctx, courier.Phone,
		fmt.Sprintf("Total terbaca Rp%d untuk pesanan %s. Balas #KIRIM %s untuk meneruskan ke pelanggan, atau #NOTA %s <jumlah> untuk koreksi.",
			amount, order.Code, order.Code, order.Code))
}

// handleBillAmount records or corrects the bill amount by hand.
func (f *CourierFlow) handleBillAmount(ctx context.Context, courier *model.Courier, args []string) error {
	if len(args) < 2 {
		return f.reply(ctx, courier.Phone,
			"Format: #NOTA <kode pesanan> <jumlah>, atau kirim foto nota dengan caption #NOTA <kode pesanan>.")
	}

	order, errReply, err := f.ownedOrder(ctx, courier, args[0])
	if err != nil || errReply != "" {
		if errReply != "" {
			return f.reply(ctx, courier.Phone, errReply)
		}
		return err
	}

	amount, err := strconv.ParseInt(strings.TrimSpace(args[1]), 10, 64)
	if err != nil || amount <= 0 {
		return f.reply(ctx, courier.Phone, "Jumlah tagihan harus berupa angka.")
	}

	if _, err := f.orders.RecordBillDraft(ctx, order.ID, amount, nil); err != nil {
		var de *model.DomainError
		if errors.As(err, &de) && de.Code == model.ErrCodeOrderState {
			return f.reply(ctx, courier.Phone,
				fmt.Sprintf("Pesanan %s belum bisa menerima nota.", order.Code))
		}
		return err
	}

	return f.reply(ctx, courier.Phone,
		fmt.Sprintf("Tagihan Rp%d tercatat untuk pesanan %s. Balas #KIRIM %s untuk meneruskan ke pelanggan.",
			amount, order.Code, order.Code))
}

// handleSendBill finalizes the bill and forwards it to the customer.
func (f *CourierFlow) handleSendBill(ctx context.Context, courier *model.Courier, args []string) error {
	order, errReply, err := f.ownedOrderArgs(ctx, courier, args, cmdSendBill)
	if err != nil || errReply != "" {
		if errReply != "" {
			return f.reply(ctx, courier.Phone, errReply)
		}
		return err
	}

	final, err := f.orders.FinalizeBill(ctx, order.ID)
	if err != nil {
		return err
	}
	if final == nil {
		return f.reply(ctx, courier.Phone,
			fmt.Sprintf("Pesanan %s belum punya nota yang bisa dikirim.", order.Code))
	}

	body := fmt.Sprintf("Tagihan pesanan %s: Rp%d. Mohon siapkan pembayaran saat kurir tiba.", final.Code, final.TotalAmount)
	if final.EvidenceRef != nil {
		if err := f.messenger.SendImage(ctx, final.CustomerPhone, *final.EvidenceRef, body); err != nil {
			f.logger.Warn().Err(err).Str("order_code", final.Code).Msg("bill image failed to send")
		}
	} else {
		f.notifyCustomer(ctx, final.CustomerPhone, body)
	}

	return f.reply(ctx, courier.Phone,
		fmt.Sprintf("Tagihan pesanan %s terkirim ke pelanggan. Balas #SELESAI %s setelah pesanan diterima.", final.Code, final.Code))
}

// handleDelivered closes the order out and frees the courier.
func (f *CourierFlow) handleDelivered(ctx context.Context, courier *model.Courier, args []string) error {
	order, errReply, err := f.ownedOrderArgs(ctx, courier, args, cmdDelivered)
	if err != nil || errReply != "" {
		if errReply != "" {
			return f.reply(ctx, courier.Phone, errReply)
		}
		return err
	}

	completed, err := f.orders.Complete(ctx, order.ID, courier.ID)
	if err != nil {
		var de *model.DomainError
		if errors.As(err, &de) && de.Code == model.ErrCodeOrderState {
			return f.reply(ctx, courier.Phone,
				fmt.Sprintf("Pesanan %s belum bisa diselesaikan. Kirim tagihan dengan #KIRIM terlebih dahulu.", order.Code))
		}
		return err
	}

	f.notifyCustomer(ctx, completed.CustomerPhone,
		fmt.Sprintf("Pesanan %s selesai. Terima kasih sudah menggunakan layanan kami!", completed.Code))

	return f.reply(ctx, courier.Phone,
		fmt.Sprintf("Pesanan %s selesai. Anda kembali siap menerima pesanan.", completed.Code))
}

// handleOffline takes the courier out of dispatch consideration.
func (f *CourierFlow) handleOffline(ctx context.Context, courier *model.Courier) error {
	if courier.Status == model.CourierBusy {
		return f.reply(ctx, courier.Phone,
			"Selesaikan pesanan Anda terlebih dahulu sebelum keluar shift.")
	}

	if err := f.couriers.SetStatus(ctx, courier.ID, model.CourierOffline); err != nil {
		return err
	}
	if err := f.presence.MarkOffline(ctx, courier.ID); err != nil {
		f.logger.Warn().Err(err).Int64("courier_id", courier.ID).Msg("failed to clear presence cache")
	}

	return f.reply(ctx, courier.Phone, "Anda keluar shift. Share lokasi untuk kembali menerima pesanan.")
}

// HandleLocation refreshes the courier's position. A courier coming back
// from OFFLINE goes IDLE and waiting orders get an immediate dispatch
// pass.
func (f *CourierFlow) HandleLocation(ctx context.Context, courier *model.Courier, lat, lng float64) error {
	if err := f.couriers.UpdateLocation(ctx, courier.ID, lat, lng); err != nil {
		return err
	}

	if courier.Status != model.CourierOffline {
		return nil
	}

	if err := f.couriers.SetStatus(ctx, courier.ID, model.CourierIdle); err != nil {
		return err
	}
	if err := f.presence.MarkOnline(ctx, courier.ID); err != nil {
		f.logger.Warn().Err(err).Int64("courier_id", courier.ID).Msg("failed to update presence cache")
	}

	f.logger.Info().Int64("courier_id", courier.ID).Msg("courier back online")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		if err := f.sweeper.Sweep(ctx); err != nil {
			f.logger.Error().Err(err).Msg("dispatch sweep after courier online failed")
		}
	}()

	return f.reply(ctx, courier.Phone, "Anda masuk shift dan siap menerima pesanan.")
}

// resolveOrder parses the order code argument and loads the order.
func (f *CourierFlow) resolveOrder(ctx context.Context, args []string, cmd string) (*model.Order, string, error) {
	if len(args) == 0 {
		return nil, fmt.Sprintf("Format: %s <kode pesanan>.", cmd), nil
	}

	order, err := f.orders.GetByCode(ctx, args[0])
	if err != nil {
		return nil, "", err
	}
	if order == nil {
		return nil, fmt.Sprintf("Pesanan %s tidak ditemukan.", strings.ToUpper(args[0])), nil
	}
	return order, "", nil
}

// ownedOrderArgs is resolveOrder plus an ownership check.
func (f *CourierFlow) ownedOrderArgs(ctx context.Context, courier *model.Courier, args []string, cmd string) (*model.Order, string, error) {
	order, errReply, err := f.resolveOrder(ctx, args, cmd)
	if err != nil || errReply != "" {
		return nil, errReply, err
	}
	return f.checkOwned(courier, order)
}

func (f *CourierFlow) ownedOrder(ctx context.Context, courier *model.Courier, code string) (*model.Order, string, error) {
	order, err := f.orders.GetByCode(ctx, code)
	if err != nil {
		return nil, "", err
	}
	if order == nil {
		return nil, fmt.Sprintf("Pesanan %s tidak ditemukan.", strings.ToUpper(code)), nil
	}
	return f.checkOwned(courier, order)
}

func (f *CourierFlow) checkOwned(courier *model.Courier, order *model.Order) (*model.Order, string, error) {
	if order.CourierID == nil || *order.CourierID != courier.ID {
		return nil, fmt.Sprintf("Pesanan %s bukan pesanan Anda.", order.Code), nil
	}
	return order, "", nil
}

func (f *CourierFlow) notifyCustomer(ctx context.Context, phone, body string) {
	if err := f.messenger.SendText(ctx, phone, body); err != nil {
		f.logger.Warn().Err(err).Str("phone", phone).Msg("customer notification failed to send")
	}
}

func (f *CourierFlow) reply(ctx context.Context, phone, body string) error {
	if err := f.messenger.SendText(ctx, phone, body); err != nil {
		f.logger.Warn().Err(err).Str("phone", phone).Msg("courier reply failed to send")
	}
	return nil
}

func acceptSummary(order *model.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pesanan %s milik Anda.\n", order.Code)
	fmt.Fprintf(&b, "Jemput: %s\n", order.PickupAddress)
	if order.HasPickupCoords() {
		fmt.Fprintf(&b, "Peta jemput: %s\n", geo.MapsLink(*order.PickupLat, *order.PickupLng))
	}
	fmt.Fprintf(&b, "Antar: %s\n", order.DeliveryAddress)
	if order.HasDeliveryCoords() {
		fmt.Fprintf(&b, "Peta antar: %s\n", geo.MapsLink(*order.DeliveryLat, *order.DeliveryLng))
	}
	fmt.Fprintf(&b, "Kirim foto nota dengan caption #NOTA %s setelah belanja.", order.Code)
	return b.String()
}
