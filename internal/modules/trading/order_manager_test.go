package trading

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aristath/tradeguard/internal/database"
	"github.com/aristath/tradeguard/internal/domain"
	"github.com/aristath/tradeguard/internal/events"
	"github.com/aristath/tradeguard/internal/modules/portfolio"
	"github.com/aristath/tradeguard/internal/modules/risk"
	"github.com/aristath/tradeguard/internal/modules/universe"
	testingpkg "github.com/aristath/tradeguard/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAccount = "A1"

type harness struct {
	manager     *OrderManager
	orders      *OrderRepository
	executions  *ExecutionRepository
	positions   *portfolio.PositionRepository
	instruments *universe.InstrumentRepository
	settings    *testingpkg.StaticSettingsProvider
	snapshots   *testingpkg.StaticSnapshotProvider
	prices      *testingpkg.MockPriceProvider
	broker      *testingpkg.MockBrokerClient

	mu     sync.Mutex
	events []*events.Event
}

func (h *harness) eventTypes() []events.EventType {
	h.mu.Lock()
	defer h.mu.Unlock()
	types := make([]events.EventType, 0, len(h.events))
	for _, e := range h.events {
		types = append(types, e.Type)
	}
	return types
}

func newHarness(t *testing.T, withBroker bool) *harness {
	t.Helper()

	db, cleanup := testingpkg.NewTestDB(t, database.NameLedger)
	t.Cleanup(cleanup)

	log := zerolog.New(nil).Level(zerolog.Disabled)
	conn := db.Conn()

	h := &harness{
		orders:      NewOrderRepository(conn, log),
		executions:  NewExecutionRepository(conn, log),
		positions:   portfolio.NewPositionRepository(conn, log),
		instruments: universe.NewInstrumentRepository(conn, universe.DefaultExchange, log),
		settings:    testingpkg.NewStaticSettingsProvider(testingpkg.NewPaperSettings(testAccount)),
		snapshots:   testingpkg.NewStaticSnapshotProvider(testingpkg.NewTodaySnapshot(testAccount, 100000, 100000)),
		prices:      testingpkg.NewMockPriceProvider(),
		broker:      testingpkg.NewMockBrokerClient(),
	}

	bus := events.NewBus(log)
	bus.SubscribeMany(events.AllEventTypes, func(e *events.Event) {
		h.mu.Lock()
		h.events = append(h.events, e)
		h.mu.Unlock()
	})

	fills := NewFillStore(conn, h.orders, h.executions, h.positions, log)
	deps := OrderManagerDeps{
		Orders:       h.orders,
		Executions:   h.executions,
		Positions:    h.positions,
		Instruments:  h.instruments,
		Settings:     h.settings,
		Snapshots:    h.snapshots,
		Prices:       h.prices,
		Fills:        fills,
		Paper:        NewPaperExecutor(fills, log),
		Events:       events.NewManager(bus, log),
		PriceTimeout: time.Second,
	}
	if withBroker {
		deps.Live = NewLiveExecutor(h.broker, time.Second, log)
	}
	h.manager = NewOrderManager(deps, log)
	return h
}

func buyRequest(symbol string, qty int64, price, stop, target float64) PlaceOrderRequest {
	return PlaceOrderRequest{
		AccountID:       testAccount,
		Symbol:          symbol,
		Side:            "BUY",
		Type:            "LIMIT",
		Quantity:        qty,
		LimitPrice:      domain.Float64Ptr(price),
		StopLossPrice:   domain.Float64Ptr(stop),
		TakeProfitPrice: domain.Float64Ptr(target),
	}
}

func sellRequest(symbol string, qty int64, price float64) PlaceOrderRequest {
	return PlaceOrderRequest{
		AccountID:  testAccount,
		Symbol:     symbol,
		Side:       "SELL",
		Type:       "LIMIT",
		Quantity:   qty,
		LimitPrice: domain.Float64Ptr(price),
	}
}

func (h *harness) openPosition(t *testing.T, symbol string) *domain.Position {
	t.Helper()
	inst, err := h.instruments.GetBySymbol(symbol)
	require.NoError(t, err)
	require.NotNil(t, inst)
	pos, err := h.positions.GetOpen(testAccount, inst.ID)
	require.NoError(t, err)
	return pos
}

func TestPlaceOrder_PaperBuyFillsAndOpensPosition(t *testing.T) {
	h := newHarness(t, false)

	order, err := h.manager.PlaceOrder(context.Background(), buyRequest("shop", 100, 150, 142.5, 165))
	require.NoError(t, err)

	assert.Equal(t, "SHOP", order.Symbol)
	assert.Equal(t, domain.OrderStatusFilled, order.Status)
	assert.Equal(t, int64(100), order.FilledQuantity)
	require.NotNil(t, order.AverageFillPrice)
	assert.InDelta(t, 150.0, *order.AverageFillPrice, 1e-9)
	assert.True(t, order.IsPaper)
	assert.InDelta(t, 15000.0, order.TradeValue, 1e-9)
	assert.InDelta(t, 15.0, order.PositionSizePct, 1e-9)
	assert.InDelta(t, 750.0, order.RiskAmount, 1e-9)
	assert.NotNil(t, order.FilledAt)

	stored, err := h.manager.GetOrderWithExecutions(order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, stored.Order.Status)
	require.Len(t, stored.Executions, 1)
	assert.Equal(t, int64(100), stored.Executions[0].Quantity)
	assert.Zero(t, stored.Executions[0].Commission)

	pos := h.openPosition(t, "SHOP")
	require.NotNil(t, pos)
	assert.Equal(t, int64(100), pos.Quantity)
	assert.InDelta(t, 150.0, pos.AverageCost, 1e-9)
	require.NotNil(t, pos.StopLossPrice)
	assert.InDelta(t, 142.5, *pos.StopLossPrice, 1e-9)
	require.NotNil(t, pos.TakeProfitPrice)
	assert.InDelta(t, 165.0, *pos.TakeProfitPrice, 1e-9)

	assert.Equal(t, []events.EventType{events.OrderPlaced, events.TradeExecuted, events.PositionOpened}, h.eventTypes())
}

func TestPlaceOrder_RiskRejectionPersistsNothing(t *testing.T) {
	h := newHarness(t, false)

	order, err := h.manager.PlaceOrder(context.Background(), buyRequest("SHOP", 100, 250, 237.5, 275))
	require.Error(t, err)
	assert.Nil(t, order)
	assert.True(t, risk.IsRejection(err, risk.ReasonPositionSize))

	rejection, ok := risk.AsRejection(err)
	require.True(t, ok)
	assert.Contains(t, rejection.Message, "25.0%")

	orders, err := h.manager.ListOrders(testAccount, 0)
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Nil(t, h.openPosition(t, "SHOP"))
	assert.Equal(t, []events.EventType{events.RiskRejected}, h.eventTypes())
}

func TestPlaceOrder_StaleSnapshotBlocksBuysOnly(t *testing.T) {
	h := newHarness(t, false)

	_, err := h.manager.PlaceOrder(context.Background(), buyRequest("SHOP", 10, 150, 142.5, 165))
	require.NoError(t, err)

	stale := testingpkg.NewTodaySnapshot(testAccount, 100000, 98500)
	stale.SnapshotDate = stale.SnapshotDate.AddDate(0, 0, -1)
	h.snapshots.Set(stale)

	_, err = h.manager.PlaceOrder(context.Background(), buyRequest("SHOP", 10, 150, 142.5, 165))
	assert.True(t, risk.IsRejection(err, risk.ReasonSnapshotStale))

	order, err := h.manager.PlaceOrder(context.Background(), sellRequest("SHOP", 10, 155))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, order.Status)
}

func TestPlaceOrder_MarketOrderUsesPriceProvider(t *testing.T) {
	h := newHarness(t, false)
	h.prices.SetPrice("RY", 100)

	order, err := h.manager.PlaceOrder(context.Background(), PlaceOrderRequest{
		AccountID:       testAccount,
		Symbol:          "RY",
		Side:            "BUY",
		Type:            "MARKET",
		Quantity:        50,
		StopLossPrice:   domain.Float64Ptr(95),
		TakeProfitPrice: domain.Float64Ptr(110),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, order.Status)
	assert.InDelta(t, 5000.0, order.TradeValue, 1e-9)
	assert.InDelta(t, 100.0, *order.AverageFillPrice, 1e-9)
	assert.Equal(t, 1, h.prices.Calls("RY"))
}

func TestPlaceOrder_MarketDataUnavailable(t *testing.T) {
	h := newHarness(t, false)
	h.prices.SetError("TD", errors.New("quote feed down"))

	req := PlaceOrderRequest{
		AccountID:     testAccount,
		Symbol:        "TD",
		Side:          "BUY",
		Type:          "MARKET",
		Quantity:      10,
		StopLossPrice: domain.Float64Ptr(70),
	}
	_, err := h.manager.PlaceOrder(context.Background(), req)
	require.Error(t, err)
	assert.True(t, domain.IsMarketDataUnavailable(err))

	h.prices.SetError("TD", nil)
	h.prices.SetDelay("TD", 5*time.Second)
	h.prices.SetPrice("TD", 75)
	_, err = h.manager.PlaceOrder(context.Background(), req)
	require.Error(t, err)
	assert.True(t, domain.IsMarketDataUnavailable(err))

	orders, err := h.manager.ListOrders(testAccount, 10)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestPlaceOrder_SellsRealizePnLAndClose(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	_, err := h.manager.PlaceOrder(ctx, buyRequest("SHOP", 100, 150, 142.5, 165))
	require.NoError(t, err)

	order, err := h.manager.PlaceOrder(ctx, sellRequest("SHOP", 40, 170))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, order.Status)

	pos := h.openPosition(t, "SHOP")
	require.NotNil(t, pos)
	assert.Equal(t, int64(60), pos.Quantity)
	assert.InDelta(t, 150.0, pos.AverageCost, 1e-9)
	assert.InDelta(t, 800.0, pos.RealizedPnL, 1e-9)

	h.prices.SetPrice("SHOP", 160)
	_, err = h.manager.PlaceOrder(ctx, PlaceOrderRequest{
		AccountID: testAccount,
		Symbol:    "SHOP",
		Side:      "SELL",
		Type:      "MARKET",
		Quantity:  60,
	})
	require.NoError(t, err)

	assert.Nil(t, h.openPosition(t, "SHOP"))
	all, err := h.positions.List(testAccount, true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].IsOpen)
	assert.Equal(t, int64(0), all[0].Quantity)
	assert.InDelta(t, 1400.0, all[0].RealizedPnL, 1e-9)
	assert.NotNil(t, all[0].ClosedAt)

	types := h.eventTypes()
	assert.Equal(t, events.PositionClosed, types[len(types)-1])
}

func TestPlaceOrder_SellRejections(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	_, err := h.manager.PlaceOrder(ctx, sellRequest("SHOP", 10, 150))
	assert.True(t, risk.IsRejection(err, risk.ReasonNoOpenPosition))

	_, err = h.manager.PlaceOrder(ctx, buyRequest("SHOP", 10, 150, 142.5, 165))
	require.NoError(t, err)

	_, err = h.manager.PlaceOrder(ctx, sellRequest("SHOP", 11, 150))
	assert.True(t, risk.IsRejection(err, risk.ReasonInsufficientShares))
}

func TestPlaceOrder_ActiveSellOrdersReserveShares(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	_, err := h.manager.PlaceOrder(ctx, buyRequest("SHOP", 100, 150, 142.5, 165))
	require.NoError(t, err)

	h.settings.Set(testingpkg.NewLiveSettings(testAccount))

	first, err := h.manager.PlaceOrder(ctx, sellRequest("SHOP", 80, 160))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusSubmitted, first.Status)

	inst, err := h.instruments.GetBySymbol("SHOP")
	require.NoError(t, err)
	active, err := h.manager.HasActiveSellOrder(testAccount, inst.ID)
	require.NoError(t, err)
	assert.True(t, active)

	_, err = h.manager.PlaceOrder(ctx, sellRequest("SHOP", 30, 160))
	require.Error(t, err)
	assert.True(t, risk.IsRejection(err, risk.ReasonInsufficientShares))

	second, err := h.manager.PlaceOrder(ctx, sellRequest("SHOP", 20, 160))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusSubmitted, second.Status)
}

func TestPlaceOrder_LiveSubmitThenFills(t *testing.T) {
	h := newHarness(t, true)
	h.settings.Set(testingpkg.NewLiveSettings(testAccount))
	ctx := context.Background()

	order, err := h.manager.PlaceOrder(ctx, buyRequest("SHOP", 100, 150, 142.5, 165))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusSubmitted, order.Status)
	require.NotNil(t, order.BrokerOrderID)
	assert.Equal(t, "BRK-1", *order.BrokerOrderID)
	assert.NotNil(t, order.SubmittedAt)
	assert.False(t, order.IsPaper)

	placed := h.broker.PlacedOrders()
	require.Len(t, placed, 1)
	assert.Equal(t, "SHOP", placed[0].Symbol)
	assert.Equal(t, domain.OrderSideBuy, placed[0].Side)
	assert.Nil(t, h.openPosition(t, "SHOP"))

	updated, err := h.manager.ApplyExecution(ctx, order.ID, domain.Fill{
		BrokerExecutionID: "E1", Quantity: 40, Price: 150, Commission: 4.95,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPartial, updated.Status)
	assert.Equal(t, int64(40), updated.FilledQuantity)
	assert.Equal(t, int64(40), h.openPosition(t, "SHOP").Quantity)

	dup, err := h.manager.ApplyExecution(ctx, order.ID, domain.Fill{
		BrokerExecutionID: "E1", Quantity: 40, Price: 150, Commission: 4.95,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(40), dup.FilledQuantity)

	updated, err = h.manager.ApplyExecution(ctx, order.ID, domain.Fill{
		BrokerExecutionID: "E2", Quantity: 60, Price: 151,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, updated.Status)
	assert.InDelta(t, 150.6, *updated.AverageFillPrice, 1e-9)

	withExecs, err := h.manager.GetOrderWithExecutions(order.ID)
	require.NoError(t, err)
	assert.Len(t, withExecs.Executions, 2)

	pos := h.openPosition(t, "SHOP")
	require.NotNil(t, pos)
	assert.Equal(t, int64(100), pos.Quantity)
	assert.InDelta(t, 150.6, pos.AverageCost, 1e-9)

	_, err = h.manager.ApplyExecution(ctx, order.ID, domain.Fill{BrokerExecutionID: "E3", Quantity: 1, Price: 151})
	assert.ErrorIs(t, err, domain.ErrOrderNotFillable)
}

func TestApplyExecution_OverfillIsConsistencyError(t *testing.T) {
	h := newHarness(t, true)
	h.settings.Set(testingpkg.NewLiveSettings(testAccount))
	ctx := context.Background()

	order, err := h.manager.PlaceOrder(ctx, buyRequest("SHOP", 100, 150, 142.5, 165))
	require.NoError(t, err)

	_, err = h.manager.ApplyExecution(ctx, order.ID, domain.Fill{BrokerExecutionID: "E1", Quantity: 120, Price: 150})
	require.Error(t, err)
	assert.True(t, domain.IsConsistencyError(err))

	stored, err := h.manager.GetOrderWithExecutions(order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusSubmitted, stored.Order.Status)
	assert.Equal(t, int64(0), stored.Order.FilledQuantity)
	assert.Empty(t, stored.Executions)
	assert.Nil(t, h.openPosition(t, "SHOP"))
	assert.Contains(t, h.eventTypes(), events.ErrorOccurred)
}

func TestApplyExecution_Errors(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	_, err := h.manager.ApplyExecution(ctx, "missing", domain.Fill{Quantity: 1, Price: 1})
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	paper, err := h.manager.PlaceOrder(ctx, buyRequest("SHOP", 10, 150, 142.5, 165))
	require.NoError(t, err)
	_, err = h.manager.ApplyExecution(ctx, paper.ID, domain.Fill{Quantity: 1, Price: 150})
	assert.ErrorIs(t, err, domain.ErrOrderNotFillable)

	h.settings.Set(testingpkg.NewLiveSettings(testAccount))
	live, err := h.manager.PlaceOrder(ctx, buyRequest("SHOP", 10, 150, 142.5, 165))
	require.NoError(t, err)
	_, err = h.manager.ApplyExecution(ctx, live.ID, domain.Fill{Quantity: 0, Price: 150})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
	_, err = h.manager.ApplyExecution(ctx, live.ID, domain.Fill{Quantity: 1, Price: 150, Commission: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestPlaceOrder_LiveRejectedByBroker(t *testing.T) {
	h := newHarness(t, true)
	h.settings.Set(testingpkg.NewLiveSettings(testAccount))
	h.broker.SetPlaceError(&domain.BrokerError{Op: "place_order", Message: "insufficient buying power", Rejected: true})

	order, err := h.manager.PlaceOrder(context.Background(), buyRequest("SHOP", 10, 150, 142.5, 165))
	require.Error(t, err)
	assert.True(t, domain.IsBrokerRejection(err))
	require.NotNil(t, order)
	assert.Equal(t, domain.OrderStatusRejected, order.Status)

	stored, err := h.manager.GetOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusRejected, stored.Status)
	assert.Contains(t, h.eventTypes(), events.OrderRejected)
}

func TestPlaceOrder_LiveAmbiguousStaysPending(t *testing.T) {
	h := newHarness(t, true)
	h.settings.Set(testingpkg.NewLiveSettings(testAccount))
	h.broker.SetPlaceError(errors.New("connection reset by peer"))

	order, err := h.manager.PlaceOrder(context.Background(), buyRequest("SHOP", 10, 150, 142.5, 165))
	require.Error(t, err)
	var brokerErr *domain.BrokerError
	assert.True(t, errors.As(err, &brokerErr))
	assert.False(t, domain.IsBrokerRejection(err))
	require.NotNil(t, order)

	stored, err := h.manager.GetOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, stored.Status)
	assert.Nil(t, stored.BrokerOrderID)
}

func TestPlaceOrder_LiveModeWithoutBroker(t *testing.T) {
	h := newHarness(t, false)
	h.settings.Set(testingpkg.NewLiveSettings(testAccount))

	_, err := h.manager.PlaceOrder(context.Background(), buyRequest("SHOP", 10, 150, 142.5, 165))
	var brokerErr *domain.BrokerError
	require.True(t, errors.As(err, &brokerErr))

	orders, err := h.manager.ListOrders(testAccount, 10)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestPlaceOrder_InvalidShape(t *testing.T) {
	h := newHarness(t, false)

	tests := []struct {
		name   string
		mutate func(r *PlaceOrderRequest)
	}{
		{"missing account", func(r *PlaceOrderRequest) { r.AccountID = " " }},
		{"missing symbol", func(r *PlaceOrderRequest) { r.Symbol = "" }},
		{"bad side", func(r *PlaceOrderRequest) { r.Side = "HOLD" }},
		{"bad type", func(r *PlaceOrderRequest) { r.Type = "ICEBERG" }},
		{"zero quantity", func(r *PlaceOrderRequest) { r.Quantity = 0 }},
		{"limit without price", func(r *PlaceOrderRequest) { r.LimitPrice = nil }},
		{"stop without stop price", func(r *PlaceOrderRequest) { r.Type = "STOP" }},
		{"negative stop loss", func(r *PlaceOrderRequest) { r.StopLossPrice = domain.Float64Ptr(-1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := buyRequest("SHOP", 10, 150, 142.5, 165)
			tt.mutate(&req)
			_, err := h.manager.PlaceOrder(context.Background(), req)
			assert.ErrorIs(t, err, domain.ErrInvalidOrder)
		})
	}
}

func TestPreviewOrder_DoesNotPersist(t *testing.T) {
	h := newHarness(t, false)

	preview, err := h.manager.PreviewOrder(context.Background(), buyRequest("SHOP", 100, 150, 142.5, 165))
	require.NoError(t, err)
	assert.Equal(t, "SHOP", preview.Symbol)
	assert.True(t, preview.IsPaper)
	assert.InDelta(t, 15.0, preview.Metrics.PositionSizePct, 1e-9)
	assert.InDelta(t, 100000.0, preview.Metrics.PortfolioValue, 1e-9)

	orders, err := h.manager.ListOrders(testAccount, 10)
	require.NoError(t, err)
	assert.Empty(t, orders)

	_, err = h.manager.PreviewOrder(context.Background(), buyRequest("SHOP", 100, 150, 148, 165))
	assert.True(t, risk.IsRejection(err, risk.ReasonStopLossTooTight))
}

func TestCancelOrder_Live(t *testing.T) {
	h := newHarness(t, true)
	h.settings.Set(testingpkg.NewLiveSettings(testAccount))
	ctx := context.Background()

	order, err := h.manager.PlaceOrder(ctx, buyRequest("SHOP", 10, 150, 142.5, 165))
	require.NoError(t, err)

	require.NoError(t, h.manager.CancelOrder(ctx, order.ID))
	assert.Equal(t, []string{"BRK-1"}, h.broker.CancelledOrders())

	stored, err := h.manager.GetOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, stored.Status)
	assert.NotNil(t, stored.CancelledAt)

	err = h.manager.CancelOrder(ctx, order.ID)
	assert.ErrorIs(t, err, domain.ErrOrderNotCancellable)

	assert.ErrorIs(t, h.manager.CancelOrder(ctx, "missing"), domain.ErrOrderNotFound)
}

func TestCancelOrder_TooLate(t *testing.T) {
	h := newHarness(t, true)
	h.settings.Set(testingpkg.NewLiveSettings(testAccount))
	ctx := context.Background()

	order, err := h.manager.PlaceOrder(ctx, buyRequest("SHOP", 10, 150, 142.5, 165))
	require.NoError(t, err)

	h.broker.SetCancelError(errors.New("order is not cancellable"))
	h.broker.SetOrderStatus(domain.BrokerOrderStatus{OrderID: "BRK-1", State: "Executed", FilledQuantity: 10, Filled: true})

	err = h.manager.CancelOrder(ctx, order.ID)
	assert.ErrorIs(t, err, domain.ErrCancelTooLate)

	stored, err := h.manager.GetOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusSubmitted, stored.Status)
}

func TestCancelOrder_LiveKeepsFillsMadeBeforeCancel(t *testing.T) {
	h := newHarness(t, true)
	h.settings.Set(testingpkg.NewLiveSettings(testAccount))
	ctx := context.Background()

	order, err := h.manager.PlaceOrder(ctx, buyRequest("SHOP", 100, 150, 142.5, 165))
	require.NoError(t, err)

	h.broker.SetExecutions("BRK-1", []domain.BrokerExecution{
		{ExecutionID: "X1", OrderID: "BRK-1", Quantity: 40, Price: 150, Commission: 4.95},
	})
	h.broker.SetOrderStatus(domain.BrokerOrderStatus{OrderID: "BRK-1", State: "Canceled", FilledQuantity: 40, Cancelled: true})

	require.NoError(t, h.manager.CancelOrder(ctx, order.ID))
	assert.Equal(t, []string{"BRK-1"}, h.broker.CancelledOrders())

	stored, err := h.manager.GetOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, stored.Status)
	assert.Equal(t, int64(40), stored.FilledQuantity)
	assert.NotNil(t, stored.CancelledAt)

	pos := h.openPosition(t, "SHOP")
	require.NotNil(t, pos)
	assert.Equal(t, int64(40), pos.Quantity)
	assert.InDelta(t, 150.0, pos.AverageCost, 1e-9)

	withExecs, err := h.manager.GetOrderWithExecutions(order.ID)
	require.NoError(t, err)
	assert.Len(t, withExecs.Executions, 1)

	result, err := h.manager.SyncLiveOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, result.NewFills)
	assert.Equal(t, int64(40), h.openPosition(t, "SHOP").Quantity)
}

func TestCancelOrder_LiveFilledBeforeCancelIsTooLate(t *testing.T) {
	h := newHarness(t, true)
	h.settings.Set(testingpkg.NewLiveSettings(testAccount))
	ctx := context.Background()

	order, err := h.manager.PlaceOrder(ctx, buyRequest("SHOP", 10, 150, 142.5, 165))
	require.NoError(t, err)

	h.broker.SetExecutions("BRK-1", []domain.BrokerExecution{
		{ExecutionID: "X1", OrderID: "BRK-1", Quantity: 10, Price: 149.5},
	})

	err = h.manager.CancelOrder(ctx, order.ID)
	assert.ErrorIs(t, err, domain.ErrCancelTooLate)

	stored, err := h.manager.GetOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, stored.Status)
	assert.Equal(t, int64(10), h.openPosition(t, "SHOP").Quantity)
}

func TestCancelOrder_LiveExecutionsUnavailableLeavesOrderOpen(t *testing.T) {
	h := newHarness(t, true)
	h.settings.Set(testingpkg.NewLiveSettings(testAccount))
	ctx := context.Background()

	order, err := h.manager.PlaceOrder(ctx, buyRequest("SHOP", 10, 150, 142.5, 165))
	require.NoError(t, err)

	h.broker.SetExecutionsError(errors.New("gateway timeout"))
	assert.Error(t, h.manager.CancelOrder(ctx, order.ID))

	stored, err := h.manager.GetOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusSubmitted, stored.Status)

	active, err := h.orders.ListActiveLive()
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestCancelOrder_FilledPaperOrder(t *testing.T) {
	h := newHarness(t, false)

	order, err := h.manager.PlaceOrder(context.Background(), buyRequest("SHOP", 10, 150, 142.5, 165))
	require.NoError(t, err)

	err = h.manager.CancelOrder(context.Background(), order.ID)
	assert.ErrorIs(t, err, domain.ErrOrderNotCancellable)
}

func TestSyncLiveOrder_AppliesBrokerExecutions(t *testing.T) {
	h := newHarness(t, true)
	h.settings.Set(testingpkg.NewLiveSettings(testAccount))
	ctx := context.Background()

	order, err := h.manager.PlaceOrder(ctx, buyRequest("SHOP", 100, 150, 142.5, 165))
	require.NoError(t, err)

	executedAt := time.Now().UTC().Add(-time.Minute)
	h.broker.SetExecutions("BRK-1", []domain.BrokerExecution{
		{ExecutedAt: executedAt, ExecutionID: "X1", OrderID: "BRK-1", Quantity: 40, Price: 150},
		{ExecutedAt: executedAt, ExecutionID: "X2", OrderID: "BRK-1", Quantity: 60, Price: 150},
	})
	h.broker.SetOrderStatus(domain.BrokerOrderStatus{OrderID: "BRK-1", State: "Executed", FilledQuantity: 100, Filled: true})

	result, err := h.manager.SyncLiveOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.NewFills)
	assert.Equal(t, domain.OrderStatusFilled, result.Status)

	result, err = h.manager.SyncLiveOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, result.NewFills)
	assert.Equal(t, domain.OrderStatusFilled, result.Status)

	assert.Equal(t, int64(100), h.openPosition(t, "SHOP").Quantity)
}

func TestSyncLiveOrder_BrokerCancelAndReject(t *testing.T) {
	h := newHarness(t, true)
	h.settings.Set(testingpkg.NewLiveSettings(testAccount))
	ctx := context.Background()

	partial, err := h.manager.PlaceOrder(ctx, buyRequest("SHOP", 100, 150, 142.5, 165))
	require.NoError(t, err)
	rejected, err := h.manager.PlaceOrder(ctx, buyRequest("RY", 10, 100, 95, 110))
	require.NoError(t, err)

	h.broker.SetExecutions("BRK-1", []domain.BrokerExecution{
		{ExecutionID: "X1", OrderID: "BRK-1", Quantity: 40, Price: 150},
	})
	h.broker.SetOrderStatus(domain.BrokerOrderStatus{OrderID: "BRK-1", State: "Canceled", FilledQuantity: 40, Cancelled: true})
	h.broker.SetOrderStatus(domain.BrokerOrderStatus{OrderID: "BRK-2", State: "Rejected", Rejected: true})

	summary, err := h.manager.SyncLiveOrders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Checked)
	assert.Equal(t, 1, summary.NewFills)
	assert.Equal(t, 0, summary.Failed)

	stored, err := h.manager.GetOrder(partial.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, stored.Status)
	assert.Equal(t, int64(40), stored.FilledQuantity)
	assert.Equal(t, int64(40), h.openPosition(t, "SHOP").Quantity)

	stored, err = h.manager.GetOrder(rejected.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusRejected, stored.Status)

	summary, err = h.manager.SyncLiveOrders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Checked)
}

func TestSyncLiveOrders_ContinuesPastFailures(t *testing.T) {
	h := newHarness(t, true)
	h.settings.Set(testingpkg.NewLiveSettings(testAccount))
	ctx := context.Background()

	_, err := h.manager.PlaceOrder(ctx, buyRequest("SHOP", 10, 150, 142.5, 165))
	require.NoError(t, err)
	_, err = h.manager.PlaceOrder(ctx, buyRequest("RY", 10, 100, 95, 110))
	require.NoError(t, err)

	h.broker.SetExecutionsError(errors.New("gateway timeout"))

	summary, err := h.manager.SyncLiveOrders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Checked)
	assert.Equal(t, 2, summary.Failed)
}

func TestPlaceOrder_ConcurrentSellsNeverOversell(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	_, err := h.manager.PlaceOrder(ctx, buyRequest("SHOP", 100, 150, 142.5, 165))
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var filled, rejected int
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.manager.PlaceOrder(ctx, sellRequest("SHOP", 30, 150))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				filled++
			} else if risk.IsRejection(err, risk.ReasonInsufficientShares) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, filled)
	assert.Equal(t, 2, rejected)
	assert.Equal(t, int64(10), h.openPosition(t, "SHOP").Quantity)
}

func TestPlaceOrder_ConcurrentBuysAverageCost(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	buys := []struct {
		qty   int64
		price float64
	}{
		{10, 100}, {20, 101}, {30, 102.5}, {15, 99}, {25, 100.75},
	}

	var wg sync.WaitGroup
	errs := make([]error, len(buys))
	for i, b := range buys {
		wg.Add(1)
		go func(i int, qty int64, price float64) {
			defer wg.Done()
			_, errs[i] = h.manager.PlaceOrder(ctx, buyRequest("SHOP", qty, price, price*0.95, price*1.15))
		}(i, b.qty, b.price)
	}
	wg.Wait()

	var totalQty int64
	var totalCost float64
	for i, b := range buys {
		require.NoError(t, errs[i])
		totalQty += b.qty
		totalCost += float64(b.qty) * b.price
	}

	pos := h.openPosition(t, "SHOP")
	require.NotNil(t, pos)
	assert.Equal(t, totalQty, pos.Quantity)
	assert.InDelta(t, totalCost/float64(totalQty), pos.AverageCost, 1e-9)
}
