package dispatch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"antarin/internal/gateway"
	"antarin/internal/geo"
	"antarin/internal/model"
	"antarin/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Notification kinds used for per-order dedup flags.
const (
	noticeNoCoords  = "no-coords"
	noticeNoCourier = "no-courier"
)

// PresenceLister is the read side of the presence registry.
type PresenceLister interface {
	ListOnline(ctx context.Context) (map[int64]bool, error)
}

// NotifyDeduper gates one-shot customer notifications.
type NotifyDeduper interface {
	First(ctx context.Context, kind, ref string) (bool, error)
}

// RankedCourier is a candidate courier with its straight-line distance to
// the order's pickup point.
type RankedCourier struct {
	Courier    *model.Courier `json:"courier"`
	DistanceKm float64        `json:"distanceKm"`
}

// Engine matches orders to couriers. FindCourierForOrder is safe to call
// concurrently for the same order: the offer window check makes overlapping
// invocations collapse into a single offer.
type Engine struct {
	orders       repository.OrderRepository
	couriers     repository.CourierRepository
	presence     PresenceLister
	guard        NotifyDeduper
	messenger    gateway.Messenger
	offerTimeout time.Duration
	windows      ShiftWindows
	now          func() time.Time
	logger       zerolog.Logger
}

// NewEngine creates a dispatch engine.
func NewEngine(
	orders repository.OrderRepository,
	couriers repository.CourierRepository,
	presence PresenceLister,
	guard NotifyDeduper,
	messenger gateway.Messenger,
	offerTimeout time.Duration,
	windows ShiftWindows,
	logger zerolog.Logger,
) *Engine {
	return &Engine{
		orders:       orders,
		couriers:     couriers,
		presence:     presence,
		guard:        guard,
		messenger:    messenger,
		offerTimeout: offerTimeout,
		windows:      windows,
		now:          time.Now,
		logger:       logger.With().Str("component", "dispatch").Logger(),
	}
}

// FindCourierForOrder offers the order to the nearest eligible courier, or
// notifies the customer once when nobody can take it. Calling it while a
// previous offer is still fresh is a no-op.
func (e *Engine) FindCourierForOrder(ctx context.Context, orderID uuid.UUID) error {
	order, err := e.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return model.ErrOrderNotFound
	}
	if order.Status != model.StatusLookingForDriver {
		// A courier accepted between scheduling and now; nothing to do.
		return nil
	}

	now := e.now()

	if !order.HasPickupCoords() {
		// Held until the customer shares a location. Exactly one notice
		// per order, however many scheduler ticks pass.
		e.notifyOnce(ctx, noticeNoCoords, order,
			fmt.Sprintf("Pesanan %s belum punya titik jemput. Bagikan lokasi Anda agar kami bisa mencari kurir.", order.Code))
		return nil
	}

	if order.OfferPending(now, e.offerTimeout) {
		// The last offered courier still holds first refusal.
		return nil
	}

	pool, err := e.candidates(ctx, order, now, true)
	if err != nil {
		return err
	}

	if len(pool) == 0 {
		e.notifyOnce(ctx, noticeNoCourier, order,
			fmt.Sprintf("Maaf, belum ada kurir yang tersedia untuk pesanan %s. Kami akan terus mencarikan.", order.Code))
		return nil
	}

	best := pool[0]
	if err := e.orders.AppendOffer(ctx, order.ID, best.Courier.ID, now); err != nil {
		return err
	}

	// The offer is committed; a failed send just means an unanswered
	// offer, which the retry scheduler handles like any other.
	if err := e.messenger.SendText(ctx, best.Courier.Phone, e.offerBody(order)); err != nil {
		e.logger.Warn().
			Err(err).
			Str("order_id", order.ID.String()).
			Int64("courier_id", best.Courier.ID).
			Msg("offer message failed to send")
	}

	e.logger.Info().
		Str("order_id", order.ID.String()).
		Str("code", order.Code).
		Int64("courier_id", best.Courier.ID).
		Float64("distance_km", best.DistanceKm).
		Msg("offer sent")

	return nil
}

// RankEligible computes the current courier ranking for an order without
// sending anything or touching the offer bookkeeping. The admin projection
// reads it.
func (e *Engine) RankEligible(ctx context.Context, orderID uuid.UUID) ([]RankedCourier, error) {
	order, err := e.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, model.ErrOrderNotFound
	}
	if !order.HasPickupCoords() {
		return nil, nil
	}

	return e.candidates(ctx, order, e.now(), false)
}

// candidates builds the ranked eligible pool for the order. With mutate
// set, an exhausted pool whose last offer has expired resets the exclusion
// list so previously offered couriers become eligible again.
func (e *Engine) candidates(ctx context.Context, order *model.Order, now time.Time, mutate bool) ([]RankedCourier, error) {
	shift := e.windows.Current(now)
	if shift == 0 {
		return nil, nil
	}

	eligible, err := e.couriers.ListEligible(ctx, shift)
	if err != nil {
		return nil, err
	}

	online, err := e.presence.ListOnline(ctx)
	if err != nil {
		return nil, err
	}

	// Offerable re-asserts status, activity and position on the scanned
	// row; the presence set can lag the database.
	var all []*model.Courier
	for _, c := range eligible {
		if online[c.ID] && c.Offerable() {
			all = append(all, c)
		}
	}

	pool := excludeOffered(all, order)
	if len(pool) == 0 && len(order.OfferedCourierIDs) > 0 && order.OfferExpired(now, e.offerTimeout) {
		// Everyone was tried and the last offer ran out; open the whole
		// pool back up.
		if mutate {
			if err := e.orders.ResetOffers(ctx, order.ID); err != nil {
				return nil, err
			}
		}
		pool = all
	}

	ranked := make([]RankedCourier, 0, len(pool))
	for _, c := range pool {
		ranked = append(ranked, RankedCourier{
			Courier:    c,
			DistanceKm: geo.HaversineKm(*c.Lat, *c.Lng, *order.PickupLat, *order.PickupLng),
		})
	}

	// Stable keeps database order as the tie-break.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].DistanceKm < ranked[j].DistanceKm
	})

	return ranked, nil
}

func excludeOffered(couriers []*model.Courier, order *model.Order) []*model.Courier {
	var pool []*model.Courier
	for _, c := range couriers {
		if !order.OfferedTo(c.ID) {
			pool = append(pool, c)
		}
	}
	return pool
}

// notifyOnce sends body to the order's customer at most once per order and
// notice kind. Guard or send failures are logged and swallowed; dispatch
// state never depends on a notification going out.
func (e *Engine) notifyOnce(ctx context.Context, kind string, order *model.Order, body string) {
	first, err := e.guard.First(ctx, kind, order.ID.String())
	if err != nil {
		e.logger.Warn().Err(err).Str("order_id", order.ID.String()).Msg("notification dedup check failed")
		return
	}
	if !first {
		return
	}
	if err := e.messenger.SendText(ctx, order.CustomerPhone, body); err != nil {
		e.logger.Warn().Err(err).Str("order_id", order.ID.String()).Msg("customer notification failed to send")
	}
}

func (e *Engine) offerBody(order *model.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order baru %s\n", order.Code)
	for _, item := range order.Items {
		if item.Note != "" {
			fmt.Fprintf(&b, "- %dx %s (%s)\n", item.Quantity, item.Name, item.Note)
		} else {
			fmt.Fprintf(&b, "- %dx %s\n", item.Quantity, item.Name)
		}
	}
	fmt.Fprintf(&b, "Jemput: %s\n", order.PickupAddress)
	fmt.Fprintf(&b, "Antar: %s\n", order.DeliveryAddress)
	if order.HasDeliveryCoords() {
		fmt.Fprintf(&b, "Peta tujuan: %s\n", geo.MapsLink(*order.DeliveryLat, *order.DeliveryLng))
	}
	fmt.Fprintf(&b, "Balas #AMBIL %s untuk menerima.", order.Code)
	return b.String()
}
