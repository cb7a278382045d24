package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"antarin/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockOrderRepository is a mock implementation of repository.OrderRepository.
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(pgx.Tx), args.Error(1)
}

func (m *MockOrderRepository) Create(ctx context.Context, order *model.Order) error {
	return m.Called(ctx, order).Error(0)
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderRepository) GetByCode(ctx context.Context, code string) (*model.Order, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderRepository) GetActiveByCustomer(ctx context.Context, phone string) (*model.Order, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Order, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *MockOrderRepository) UpdateDraftFields(ctx context.Context, order *model.Order) error {
	return m.Called(ctx, order).Error(0)
}

func (m *MockOrderRepository) SetPickupCoords(ctx context.Context, id uuid.UUID, lat, lng float64) error {
	return m.Called(ctx, id, lat, lng).Error(0)
}

func (m *MockOrderRepository) AppendOffer(ctx context.Context, id uuid.UUID, courierID int64, at time.Time) error {
	return m.Called(ctx, id, courierID, at).Error(0)
}

func (m *MockOrderRepository) ResetOffers(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockOrderRepository) SetBill(ctx context.Context, id uuid.UUID, amount int64, evidenceRef *string) error {
	return m.Called(ctx, id, amount, evidenceRef).Error(0)
}

func (m *MockOrderRepository) MarkAssigned(ctx context.Context, tx pgx.Tx, id uuid.UUID, courierID int64) error {
	return m.Called(ctx, tx, id, courierID).Error(0)
}

func (m *MockOrderRepository) MarkCompleted(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	return m.Called(ctx, tx, id).Error(0)
}

func (m *MockOrderRepository) MarkCancelled(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	return m.Called(ctx, tx, id).Error(0)
}

func (m *MockOrderRepository) ListDispatchable(ctx context.Context, staleBefore time.Time, limit int) ([]*model.Order, error) {
	args := m.Called(ctx, staleBefore, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Order), args.Error(1)
}

func (m *MockOrderRepository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*model.Order, error) {
	args := m.Called(ctx, cutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Order), args.Error(1)
}

// MockCourierRepository is a mock implementation of repository.CourierRepository.
type MockCourierRepository struct {
	mock.Mock
}

func (m *MockCourierRepository) GetByID(ctx context.Context, id int64) (*model.Courier, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Courier), args.Error(1)
}

func (m *MockCourierRepository) GetByPhone(ctx context.Context, phone string) (*model.Courier, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Courier), args.Error(1)
}

func (m *MockCourierRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*model.Courier, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Courier), args.Error(1)
}

func (m *MockCourierRepository) SetStatus(ctx context.Context, id int64, status model.CourierStatus) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *MockCourierRepository) SetStatusTx(ctx context.Context, tx pgx.Tx, id int64, status model.CourierStatus) error {
	return m.Called(ctx, tx, id, status).Error(0)
}

func (m *MockCourierRepository) UpdateLocation(ctx context.Context, id int64, lat, lng float64) error {
	return m.Called(ctx, id, lat, lng).Error(0)
}

func (m *MockCourierRepository) ListEligible(ctx context.Context, shiftCode int) ([]*model.Courier, error) {
	args := m.Called(ctx, shiftCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Courier), args.Error(1)
}

func (m *MockCourierRepository) ListReadyIDs(ctx context.Context) ([]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

// MockPresence is a mock implementation of PresenceLister.
type MockPresence struct {
	mock.Mock
}

func (m *MockPresence) ListOnline(ctx context.Context) (map[int64]bool, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int64]bool), args.Error(1)
}

// MockGuard is a mock implementation of NotifyDeduper.
type MockGuard struct {
	mock.Mock
}

func (m *MockGuard) First(ctx context.Context, kind, ref string) (bool, error) {
	args := m.Called(ctx, kind, ref)
	return args.Bool(0), args.Error(1)
}

// MockMessenger is a mock implementation of gateway.Messenger.
type MockMessenger struct {
	mock.Mock
}

func (m *MockMessenger) SendText(ctx context.Context, phone, body string) error {
	return m.Called(ctx, phone, body).Error(0)
}

func (m *MockMessenger) SendImage(ctx context.Context, phone, imageRef, caption string) error {
	return m.Called(ctx, phone, imageRef, caption).Error(0)
}

type engineFixture struct {
	orders    *MockOrderRepository
	couriers  *MockCourierRepository
	presence  *MockPresence
	guard     *MockGuard
	messenger *MockMessenger
	engine    *Engine
}

// Wednesday 09:00 local time, inside shift 1.
var testNow = time.Date(2025, 5, 14, 9, 0, 0, 0, time.Local)

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	f := &engineFixture{
		orders:    new(MockOrderRepository),
		couriers:  new(MockCourierRepository),
		presence:  new(MockPresence),
		guard:     new(MockGuard),
		messenger: new(MockMessenger),
	}
	f.engine = NewEngine(
		f.orders, f.couriers, f.presence, f.guard, f.messenger,
		3*time.Minute,
		ShiftWindows{Shift1Start: 6, Shift1End: 14, Shift2End: 22},
		zerolog.Nop(),
	)
	f.engine.now = func() time.Time { return testNow }
	return f
}

func coords(lat, lng float64) (*float64, *float64) {
	return &lat, &lng
}

func testCourier(id int64, shift int, lat, lng float64) *model.Courier {
	la, ln := coords(lat, lng)
	return &model.Courier{
		ID:        id,
		Name:      "kurir",
		Phone:     "6281100000000",
		ShiftCode: shift,
		Status:    model.CourierIdle,
		IsActive:  true,
		Lat:       la,
		Lng:       ln,
	}
}

func lookingOrder() *model.Order {
	lat, lng := coords(-6.2000, 106.8000)
	return &model.Order{
		ID:            uuid.New(),
		Code:          "ANT-AB12CD34",
		CustomerPhone: "6281234567890",
		PickupAddress: "Warung Bu Sri",
		PickupLat:     lat,
		PickupLng:     lng,
		Status:        model.StatusLookingForDriver,
		Items:         []model.OrderItem{{Name: "nasi goreng", Quantity: 2}},
	}
}

func TestEngine_OffersNearestCourier(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	order := lookingOrder()

	near := testCourier(1, 1, -6.2010, 106.8010)   // ~0.16 km
	far := testCourier(2, 1, -6.2500, 106.8500)    // ~7.8 km
	medium := testCourier(3, 1, -6.2100, 106.8100) // ~1.6 km

	f.orders.On("GetByID", ctx, order.ID).Return(order, nil)
	f.couriers.On("ListEligible", ctx, 1).Return([]*model.Courier{far, near, medium}, nil)
	f.presence.On("ListOnline", ctx).Return(map[int64]bool{1: true, 2: true, 3: true}, nil)
	f.orders.On("AppendOffer", ctx, order.ID, int64(1), testNow).Return(nil)
	f.messenger.On("SendText", ctx, near.Phone, mock.Anything).Return(nil)

	err := f.engine.FindCourierForOrder(ctx, order.ID)
	require.NoError(t, err)

	f.orders.AssertCalled(t, "AppendOffer", ctx, order.ID, int64(1), testNow)
	f.messenger.AssertNumberOfCalls(t, "SendText", 1)

	body := f.messenger.Calls[0].Arguments.String(2)
	assert.Contains(t, body, order.Code)
	assert.Contains(t, body, "nasi goreng")
	assert.Contains(t, body, "Warung Bu Sri")
	assert.Contains(t, body, "#AMBIL")
}

func TestEngine_NoopWhileOfferPending(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	order := lookingOrder()
	offeredAt := testNow.Add(-time.Minute)
	order.LastOfferedAt = &offeredAt
	order.OfferedCourierIDs = []int64{1}

	f.orders.On("GetByID", ctx, order.ID).Return(order, nil)

	err := f.engine.FindCourierForOrder(ctx, order.ID)
	require.NoError(t, err)

	f.couriers.AssertNotCalled(t, "ListEligible", mock.Anything, mock.Anything)
	f.orders.AssertNotCalled(t, "AppendOffer", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.messenger.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_NoopWhenOrderLeftDispatch(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	order := lookingOrder()
	order.Status = model.StatusOnProcess

	f.orders.On("GetByID", ctx, order.ID).Return(order, nil)

	err := f.engine.FindCourierForOrder(ctx, order.ID)
	require.NoError(t, err)

	f.couriers.AssertNotCalled(t, "ListEligible", mock.Anything, mock.Anything)
}

func TestEngine_TimedOutCourierStaysExcluded(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	order := lookingOrder()
	offeredAt := testNow.Add(-5 * time.Minute)
	order.LastOfferedAt = &offeredAt
	order.OfferedCourierIDs = []int64{1}

	// Courier 1 is nearest but already had its chance.
	courierA := testCourier(1, 1, -6.2001, 106.8001)
	courierB := testCourier(2, 1, -6.2100, 106.8100)

	f.orders.On("GetByID", ctx, order.ID).Return(order, nil)
	f.couriers.On("ListEligible", ctx, 1).Return([]*model.Courier{courierA, courierB}, nil)
	f.presence.On("ListOnline", ctx).Return(map[int64]bool{1: true, 2: true}, nil)
	f.orders.On("AppendOffer", ctx, order.ID, int64(2), testNow).Return(nil)
	f.messenger.On("SendText", ctx, courierB.Phone, mock.Anything).Return(nil)

	err := f.engine.FindCourierForOrder(ctx, order.ID)
	require.NoError(t, err)

	f.orders.AssertCalled(t, "AppendOffer", ctx, order.ID, int64(2), testNow)
	f.orders.AssertNotCalled(t, "ResetOffers", mock.Anything, mock.Anything)
}

func TestEngine_ExhaustedPoolResetsExclusion(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	order := lookingOrder()
	offeredAt := testNow.Add(-5 * time.Minute)
	order.LastOfferedAt = &offeredAt
	order.OfferedCourierIDs = []int64{1, 2}

	courierA := testCourier(1, 1, -6.2001, 106.8001)
	courierB := testCourier(2, 1, -6.2100, 106.8100)

	f.orders.On("GetByID", ctx, order.ID).Return(order, nil)
	f.couriers.On("ListEligible", ctx, 1).Return([]*model.Courier{courierA, courierB}, nil)
	f.presence.On("ListOnline", ctx).Return(map[int64]bool{1: true, 2: true}, nil)
	f.orders.On("ResetOffers", ctx, order.ID).Return(nil)
	f.orders.On("AppendOffer", ctx, order.ID, int64(1), testNow).Return(nil)
	f.messenger.On("SendText", ctx, courierA.Phone, mock.Anything).Return(nil)

	err := f.engine.FindCourierForOrder(ctx, order.ID)
	require.NoError(t, err)

	f.orders.AssertCalled(t, "ResetOffers", ctx, order.ID)
	f.orders.AssertCalled(t, "AppendOffer", ctx, order.ID, int64(1), testNow)
}

func TestEngine_ShiftFilter(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	order := lookingOrder()

	// 09:00 falls in shift 1; only shift-1 couriers are ever queried.
	f.orders.On("GetByID", ctx, order.ID).Return(order, nil)
	f.couriers.On("ListEligible", ctx, 1).Return([]*model.Courier{}, nil)
	f.presence.On("ListOnline", ctx).Return(map[int64]bool{}, nil)
	f.guard.On("First", ctx, "no-courier", order.ID.String()).Return(true, nil)
	f.messenger.On("SendText", ctx, order.CustomerPhone, mock.Anything).Return(nil)

	err := f.engine.FindCourierForOrder(ctx, order.ID)
	require.NoError(t, err)

	f.couriers.AssertCalled(t, "ListEligible", ctx, 1)
	f.couriers.AssertNotCalled(t, "ListEligible", ctx, 2)
}

func TestEngine_OutsideShiftWindowsNobodyEligible(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	order := lookingOrder()
	f.engine.now = func() time.Time {
		return time.Date(2025, 5, 14, 23, 30, 0, 0, time.Local)
	}

	f.orders.On("GetByID", ctx, order.ID).Return(order, nil)
	f.guard.On("First", ctx, "no-courier", order.ID.String()).Return(true, nil)
	f.messenger.On("SendText", ctx, order.CustomerPhone, mock.Anything).Return(nil)

	err := f.engine.FindCourierForOrder(ctx, order.ID)
	require.NoError(t, err)

	f.couriers.AssertNotCalled(t, "ListEligible", mock.Anything, mock.Anything)
	f.messenger.AssertNumberOfCalls(t, "SendText", 1)
}

func TestEngine_OfflineCouriersAreFiltered(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	order := lookingOrder()

	near := testCourier(1, 1, -6.2001, 106.8001)
	far := testCourier(2, 1, -6.2100, 106.8100)

	f.orders.On("GetByID", ctx, order.ID).Return(order, nil)
	f.couriers.On("ListEligible", ctx, 1).Return([]*model.Courier{near, far}, nil)
	// Nearest courier is not in the presence set.
	f.presence.On("ListOnline", ctx).Return(map[int64]bool{2: true}, nil)
	f.orders.On("AppendOffer", ctx, order.ID, int64(2), testNow).Return(nil)
	f.messenger.On("SendText", ctx, far.Phone, mock.Anything).Return(nil)

	err := f.engine.FindCourierForOrder(ctx, order.ID)
	require.NoError(t, err)

	f.orders.AssertCalled(t, "AppendOffer", ctx, order.ID, int64(2), testNow)
}

func TestEngine_NonOfferableCouriersAreFiltered(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	order := lookingOrder()

	// The eligibility query and the presence set can lag: a courier may
	// have gone BUSY or lost its position between scan and ranking.
	busy := testCourier(1, 1, -6.2001, 106.8001)
	busy.Status = model.CourierBusy
	blind := testCourier(2, 1, -6.2002, 106.8002)
	blind.Lat, blind.Lng = nil, nil
	good := testCourier(3, 1, -6.2100, 106.8100)

	f.orders.On("GetByID", ctx, order.ID).Return(order, nil)
	f.couriers.On("ListEligible", ctx, 1).Return([]*model.Courier{busy, blind, good}, nil)
	f.presence.On("ListOnline", ctx).Return(map[int64]bool{1: true, 2: true, 3: true}, nil)
	f.orders.On("AppendOffer", ctx, order.ID, int64(3), testNow).Return(nil)
	f.messenger.On("SendText", ctx, good.Phone, mock.Anything).Return(nil)

	err := f.engine.FindCourierForOrder(ctx, order.ID)
	require.NoError(t, err)

	f.orders.AssertCalled(t, "AppendOffer", ctx, order.ID, int64(3), testNow)
	f.messenger.AssertNumberOfCalls(t, "SendText", 1)
}

func TestEngine_MissingPickupCoordsNotifiesOnce(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	order := lookingOrder()
	order.PickupLat = nil
	order.PickupLng = nil

	f.orders.On("GetByID", ctx, order.ID).Return(order, nil)
	f.guard.On("First", ctx, "no-coords", order.ID.String()).Return(true, nil).Once()
	f.guard.On("First", ctx, "no-coords", order.ID.String()).Return(false, nil)
	f.messenger.On("SendText", ctx, order.CustomerPhone, mock.Anything).Return(nil)

	require.NoError(t, f.engine.FindCourierForOrder(ctx, order.ID))
	require.NoError(t, f.engine.FindCourierForOrder(ctx, order.ID))
	require.NoError(t, f.engine.FindCourierForOrder(ctx, order.ID))

	f.messenger.AssertNumberOfCalls(t, "SendText", 1)
	f.couriers.AssertNotCalled(t, "ListEligible", mock.Anything, mock.Anything)
}

func TestEngine_NoCourierNotifiesOnce(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	order := lookingOrder()

	f.orders.On("GetByID", ctx, order.ID).Return(order, nil)
	f.couriers.On("ListEligible", ctx, 1).Return([]*model.Courier{}, nil)
	f.presence.On("ListOnline", ctx).Return(map[int64]bool{}, nil)
	f.guard.On("First", ctx, "no-courier", order.ID.String()).Return(true, nil).Once()
	f.guard.On("First", ctx, "no-courier", order.ID.String()).Return(false, nil)
	f.messenger.On("SendText", ctx, order.CustomerPhone, mock.Anything).Return(nil)

	require.NoError(t, f.engine.FindCourierForOrder(ctx, order.ID))
	require.NoError(t, f.engine.FindCourierForOrder(ctx, order.ID))

	f.messenger.AssertNumberOfCalls(t, "SendText", 1)
}

func TestEngine_SendFailureDoesNotRollBackOffer(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	order := lookingOrder()

	courierA := testCourier(1, 1, -6.2001, 106.8001)

	f.orders.On("GetByID", ctx, order.ID).Return(order, nil)
	f.couriers.On("ListEligible", ctx, 1).Return([]*model.Courier{courierA}, nil)
	f.presence.On("ListOnline", ctx).Return(map[int64]bool{1: true}, nil)
	f.orders.On("AppendOffer", ctx, order.ID, int64(1), testNow).Return(nil)
	f.messenger.On("SendText", ctx, courierA.Phone, mock.Anything).Return(errors.New("gateway unreachable"))

	// A failed send is just an unanswered offer; the caller sees success.
	err := f.engine.FindCourierForOrder(ctx, order.ID)
	require.NoError(t, err)

	f.orders.AssertCalled(t, "AppendOffer", ctx, order.ID, int64(1), testNow)
}

func TestEngine_RankEligibleIsReadOnly(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	order := lookingOrder()
	offeredAt := testNow.Add(-10 * time.Minute)
	order.LastOfferedAt = &offeredAt
	order.OfferedCourierIDs = []int64{1, 2}

	courierA := testCourier(1, 1, -6.2001, 106.8001)
	courierB := testCourier(2, 1, -6.2100, 106.8100)

	f.orders.On("GetByID", ctx, order.ID).Return(order, nil)
	f.couriers.On("ListEligible", ctx, 1).Return([]*model.Courier{courierB, courierA}, nil)
	f.presence.On("ListOnline", ctx).Return(map[int64]bool{1: true, 2: true}, nil)

	ranked, err := f.engine.RankEligible(ctx, order.ID)
	require.NoError(t, err)

	// Exhausted exclusion with an expired offer opens the pool back up,
	// but the read path must not touch the bookkeeping.
	require.Len(t, ranked, 2)
	assert.Equal(t, int64(1), ranked[0].Courier.ID)
	assert.Equal(t, int64(2), ranked[1].Courier.ID)
	assert.Less(t, ranked[0].DistanceKm, ranked[1].DistanceKm)

	f.orders.AssertNotCalled(t, "ResetOffers", mock.Anything, mock.Anything)
	f.orders.AssertNotCalled(t, "AppendOffer", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.messenger.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything)
}

func TestShiftWindows_Current(t *testing.T) {
	w := ShiftWindows{Shift1Start: 6, Shift1End: 14, Shift2End: 22}

	tests := []struct {
		hour int
		want int
	}{
		{5, 0},
		{6, 1},
		{13, 1},
		{14, 2},
		{21, 2},
		{22, 0},
		{23, 0},
		{0, 0},
	}

	for _, tt := range tests {
		at := time.Date(2025, 5, 14, tt.hour, 0, 0, 0, time.Local)
		assert.Equal(t, tt.want, w.Current(at), "hour %d", tt.hour)
	}
}
