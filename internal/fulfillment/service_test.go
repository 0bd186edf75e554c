package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/aws/dynamotest"
	"github.com/imrishuroy/go-storefront/internal/catalog"
	"github.com/imrishuroy/go-storefront/internal/money"
	"github.com/imrishuroy/go-storefront/internal/orders"
	"github.com/imrishuroy/go-storefront/internal/postcommit"
)

const (
	productsTable = "products"
	ordersTable   = "orders"
)

type recordedEvent struct {
	eventType string
	body      any
	attrs     map[string]string
}

type fakeEvents struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (f *fakeEvents) PublishJSON(ctx context.Context, eventType string, v any, attrs map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{eventType, v, attrs})
	return f.err
}

type fakeMetrics struct {
	mu     sync.Mutex
	counts map[string]float64
}

func (f *fakeMetrics) Count(ctx context.Context, name string, value float64, dims map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts == nil {
		f.counts = map[string]float64{}
	}
	f.counts[name] += value
	return nil
}

type harness struct {
	svc      *Service
	fake     *dynamotest.Fake
	products *catalog.DynamoStore
	orders   *orders.DynamoStore
	runner   *postcommit.Runner
	events   *fakeEvents
	metrics  *fakeMetrics
	logs     *observer.ObservedLogs
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	fake := dynamotest.New()
	fake.CreateTable(productsTable, "product_id")
	fake.CreateTable(ordersTable, "order_id")

	h := &harness{
		fake:     fake,
		products: catalog.NewDynamoStore(fake, productsTable),
		orders:   orders.NewDynamoStore(fake, ordersTable),
		runner:   postcommit.NewRunner(logger, time.Second),
		events:   &fakeEvents{},
		metrics:  &fakeMetrics{},
		logs:     logs,
	}
	opts = append([]Option{WithEvents(h.events), WithMetrics(h.metrics)}, opts...)
	h.svc = NewService(h.orders, h.products, h.runner, logger, opts...)
	return h
}

func (h *harness) seedProduct(t *testing.T, id, name, price string, stock int) {
	t.Helper()
	require.NoError(t, h.products.Create(context.Background(), catalog.Product{
		ID: id, Name: name, Price: money.MustParse(price), Stock: stock,
	}))
}

func (h *harness) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := h.products.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p.Stock
}

func (h *harness) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.runner.Wait(ctx))
}

func TestPlaceOrder_ComputesTotalAndDecrementsStock(t *testing.T) {
	h := newHarness(t)
	h.seedProduct(t, "P1", "Mug", "10.00", 5)

	res, err := h.svc.PlaceOrder(context.Background(), PlaceOrderInput{
		UserID: "u1",
		Items:  []RequestedItem{{ProductID: "P1", Quantity: 2.0}},
	})
	require.NoError(t, err)

	assert.True(t, res.Order.Total.Equal(money.MustParse("20.00")), "total %s", res.Order.Total)
	assert.Nil(t, res.Order.ComputedTotal)
	assert.Equal(t, orders.StatusPending, res.Order.Status)
	assert.Equal(t, orders.PaymentMethodCashOnDelivery, res.Order.PaymentMethod)
	assert.Equal(t, orders.PaymentStatusPending, res.Order.PaymentStatus)
	require.Len(t, res.Order.Items, 1)
	assert.Equal(t, "Mug", res.Order.Items[0].Name)
	assert.True(t, res.Order.Items[0].UnitPrice.Equal(money.MustParse("10")))

	require.Len(t, res.StockUpdates, 1)
	assert.Equal(t, StockUpdateResult{ProductID: "P1", Name: "Mug", PreviousStock: 5, NewStock: 3}, res.StockUpdates[0])
	assert.Equal(t, 3, h.stock(t, "P1"))

	stored, err := h.orders.Get(context.Background(), res.Order.OrderID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "u1", stored.UserID)

	h.drain(t)
	require.Len(t, h.events.events, 1)
	assert.Equal(t, EventOrderPlaced, h.events.events[0].eventType)
	evt := h.events.events[0].body.(OrderPlacedEvent)
	assert.Equal(t, res.Order.OrderID, evt.OrderID)
	assert.Equal(t, float64(1), h.metrics.counts[MetricOrdersPlaced])
	assert.Zero(t, h.metrics.counts[MetricStockUpdateFailures])
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	h := newHarness(t)
	h.seedProduct(t, "P1", "Mug", "10.00", 5)

	_, err := h.svc.PlaceOrder(context.Background(), PlaceOrderInput{
		UserID: "u1",
		Items:  []RequestedItem{{ProductID: "P1", Quantity: 10.0}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrInsufficientStock))

	var ise *InsufficientStockError
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, 10, ise.Requested)
	assert.Equal(t, 5, ise.Available)
	assert.Contains(t, err.Error(), "Mug")
	assert.Contains(t, err.Error(), "available 5")

	assert.Equal(t, 0, h.fake.Len(ordersTable), "no order should be persisted")
	assert.Equal(t, 5, h.stock(t, "P1"))
}

func TestPlaceOrder_UnknownProductAbortsWholeCart(t *testing.T) {
	h := newHarness(t)
	h.seedProduct(t, "P1", "Mug", "10.00", 5)

	_, err := h.svc.PlaceOrder(context.Background(), PlaceOrderInput{
		UserID: "u1",
		Items: []RequestedItem{
			{ProductID: "P1", Quantity: 1.0},
			{ProductID: "ghost", Quantity: 1.0},
		},
	})
	var pnf *ProductNotFoundError
	require.True(t, errors.As(err, &pnf))
	assert.Equal(t, "ghost", pnf.ProductID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	assert.Equal(t, 0, h.fake.Len(ordersTable))
	assert.Equal(t, 5, h.stock(t, "P1"))
}

func TestPlaceOrder_QuantityCoercion(t *testing.T) {
	for _, q := range []any{0.0, -2.0, "abc", nil, true} {
		t.Run(fmt.Sprintf("%v", q), func(t *testing.T) {
			h := newHarness(t)
			h.seedProduct(t, "P1", "Mug", "10.00", 5)

			res, err := h.svc.PlaceOrder(context.Background(), PlaceOrderInput{
				UserID: "u1",
				Items:  []RequestedItem{{ProductID: "P1", Quantity: q}},
			})
			require.NoError(t, err)
			assert.Equal(t, 1, res.Order.Items[0].Quantity)
			assert.True(t, res.Order.Total.Equal(money.MustParse("10")))
			assert.Equal(t, 4, h.stock(t, "P1"))
		})
	}
}

func TestPlaceOrder_OversizedQuantityIsRejected(t *testing.T) {
	for _, q := range []any{3000000000.0, "3000000000", 1e12} {
		t.Run(fmt.Sprintf("%v", q), func(t *testing.T) {
			h := newHarness(t)
			h.seedProduct(t, "P1", "Mug", "10.00", 5)

			_, err := h.svc.PlaceOrder(context.Background(), PlaceOrderInput{
				UserID: "u1",
				Items:  []RequestedItem{{ProductID: "P1", Quantity: q}},
			})
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrInsufficientStock))
			assert.Equal(t, 0, h.fake.Len(ordersTable))
			assert.Equal(t, 5, h.stock(t, "P1"))
		})
	}
}

func TestPlaceOrder_NumericProductID(t *testing.T) {
	h := newHarness(t)
	h.seedProduct(t, "42", "Plate", "3.50", 2)

	res, err := h.svc.PlaceOrder(context.Background(), PlaceOrderInput{
		UserID: "u1",
		Items:  []RequestedItem{{ProductID: 42.0, Quantity: "2"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "42", res.Order.Items[0].ProductID)
	assert.True(t, res.Order.Total.Equal(money.MustParse("7.00")))
}

func TestPlaceOrder_SuppliedTotalIsEchoedAndFlagged(t *testing.T) {
	h := newHarness(t)
	h.seedProduct(t, "P1", "Mug", "10.00", 5)
	supplied := money.MustParse("1.00")

	res, err := h.svc.PlaceOrder(context.Background(), PlaceOrderInput{
		UserID: "u1",
		Items:  []RequestedItem{{ProductID: "P1", Quantity: 2.0}},
		Total:  &supplied,
	})
	require.NoError(t, err)
	assert.True(t, res.Order.Total.Equal(supplied))
	require.NotNil(t, res.Order.ComputedTotal)
	assert.True(t, res.Order.ComputedTotal.Equal(money.MustParse("20")))

	stored, err := h.orders.Get(context.Background(), res.Order.OrderID)
	require.NoError(t, err)
	require.NotNil(t, stored.ComputedTotal)
	assert.True(t, stored.ComputedTotal.Equal(money.MustParse("20")))

	warned := h.logs.FilterMessage("caller-supplied total overrides computed total").All()
	require.Len(t, warned, 1)
	assert.Equal(t, "1.00", warned[0].ContextMap()["supplied_total"])
	assert.Equal(t, "20.00", warned[0].ContextMap()["computed_total"])
}

func TestPlaceOrder_MatchingSuppliedTotalNotFlagged(t *testing.T) {
	h := newHarness(t)
	h.seedProduct(t, "P1", "Mug", "10.00", 5)
	supplied := money.MustParse("20")

	res, err := h.svc.PlaceOrder(context.Background(), PlaceOrderInput{
		UserID: "u1",
		Items:  []RequestedItem{{ProductID: "P1", Quantity: 2.0}},
		Total:  &supplied,
	})
	require.NoError(t, err)
	assert.Nil(t, res.Order.ComputedTotal)
	assert.Zero(t, h.logs.FilterMessage("caller-supplied total overrides computed total").Len())
}

func TestPlaceOrder_InvalidInput(t *testing.T) {
	h := newHarness(t)
	h.seedProduct(t, "P1", "Mug", "10.00", 5)
	ctx := context.Background()

	_, err := h.svc.PlaceOrder(ctx, PlaceOrderInput{Items: []RequestedItem{{ProductID: "P1"}}})
	assert.True(t, errors.Is(err, apperr.ErrInvalidRequest), "missing user: %v", err)

	_, err = h.svc.PlaceOrder(ctx, PlaceOrderInput{UserID: "u1"})
	assert.True(t, errors.Is(err, apperr.ErrInvalidRequest), "no items: %v", err)

	_, err = h.svc.PlaceOrder(ctx, PlaceOrderInput{UserID: "u1", Items: []RequestedItem{{ProductID: ""}}})
	assert.True(t, errors.Is(err, apperr.ErrInvalidRequest), "blank product: %v", err)

	_, err = h.svc.PlaceOrder(ctx, PlaceOrderInput{UserID: "u1", Items: []RequestedItem{{ProductID: "P1"}}, Status: "cancelled"})
	var ise *InvalidStatusError
	assert.True(t, errors.As(err, &ise), "bad status: %v", err)
	assert.True(t, errors.Is(err, apperr.ErrInvalidRequest))

	assert.Equal(t, 0, h.fake.Len(ordersTable))
	assert.Equal(t, 5, h.stock(t, "P1"))
}

func TestPlaceOrder_SuppliedStatusAndPayment(t *testing.T) {
	h := newHarness(t)
	h.seedProduct(t, "P1", "Mug", "10.00", 5)

	res, err := h.svc.PlaceOrder(context.Background(), PlaceOrderInput{
		UserID:          "u1",
		Items:           []RequestedItem{{ProductID: "P1", Quantity: 1.0}},
		Status:          "processing",
		PaymentMethod:   "card",
		PaymentStatus:   "paid",
		PaymentDetails:  map[string]any{"last4": "4242"},
		ShippingAddress: map[string]any{"city": "Pune"},
	})
	require.NoError(t, err)
	assert.Equal(t, orders.StatusProcessing, res.Order.Status)
	assert.Equal(t, "card", res.Order.PaymentMethod)
	assert.Equal(t, "paid", res.Order.PaymentStatus)
	assert.Equal(t, "4242", res.Order.PaymentDetails["last4"])
}

func TestPlaceOrder_OrderWriteFailure(t *testing.T) {
	h := newHarness(t)
	h.seedProduct(t, "P1", "Mug", "10.00", 5)
	h.fake.Hook = func(op, table string) error {
		if op == "PutItem" && table == ordersTable {
			return errors.New("throttled")
		}
		return nil
	}

	_, err := h.svc.PlaceOrder(context.Background(), PlaceOrderInput{
		UserID: "u1",
		Items:  []RequestedItem{{ProductID: "P1", Quantity: 1.0}},
	})
	assert.True(t, errors.Is(err, apperr.ErrPersistence), "got %v", err)
	assert.Equal(t, 5, h.stock(t, "P1"))
}

func TestPlaceOrder_StockFailuresAreReportedNotFatal(t *testing.T) {
	h := newHarness(t)
	h.seedProduct(t, "P1", "Mug", "10.00", 5)
	h.seedProduct(t, "P2", "Bowl", "4.00", 3)
	h.fake.Hook = func(op, table string) error {
		if op == "UpdateItem" && table == productsTable {
			return errors.New("throttled")
		}
		return nil
	}

	res, err := h.svc.PlaceOrder(context.Background(), PlaceOrderInput{
		UserID: "u1",
		Items: []RequestedItem{
			{ProductID: "P1", Quantity: 1.0},
			{ProductID: "P2", Quantity: 1.0},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.StockUpdates, 2)
	for _, u := range res.StockUpdates {
		assert.NotEmpty(t, u.Error)
		assert.Equal(t, u.PreviousStock, u.NewStock)
	}
	assert.Equal(t, 1, h.fake.Len(ordersTable))

	h.drain(t)
	assert.Equal(t, float64(2), h.metrics.counts[MetricStockUpdateFailures])
}

func TestPlaceOrder_PublishFailureDoesNotFailRequest(t *testing.T) {
	h := newHarness(t)
	h.seedProduct(t, "P1", "Mug", "10.00", 5)
	h.events.err = errors.New("queue unavailable")

	_, err := h.svc.PlaceOrder(context.Background(), PlaceOrderInput{
		UserID: "u1",
		Items:  []RequestedItem{{ProductID: "P1", Quantity: 1.0}},
	})
	require.NoError(t, err)
	h.drain(t)
	assert.Equal(t, 1, h.logs.FilterMessage("post-commit task failed").Len())
}

// Stock is written from the snapshot, so a stale read loses an update.
func TestPlaceOrder_StaleSnapshotOversells(t *testing.T) {
	h := newHarness(t)
	h.seedProduct(t, "P1", "Mug", "10.00", 2)
	ctx := context.Background()

	priced, err := PriceLineItems(ctx, h.products, []LineItem{{ProductID: "P1", Quantity: 2}})
	require.NoError(t, err)

	_, err = h.svc.PlaceOrder(ctx, PlaceOrderInput{UserID: "u1", Items: []RequestedItem{{ProductID: "P1", Quantity: 2.0}}})
	require.NoError(t, err)
	assert.Equal(t, 0, h.stock(t, "P1"))

	// a second placement that priced before the first wrote
	updates := h.svc.adjustInventory(ctx, "late", priced.Snapshots)
	assert.Equal(t, 0, updates[0].NewStock)
	assert.Equal(t, 0, h.stock(t, "P1"))
}

func TestPriceLineItems_SumsAndSnapshots(t *testing.T) {
	h := newHarness(t)
	h.seedProduct(t, "P1", "Mug", "10.00", 5)
	h.seedProduct(t, "P2", "Bowl", "0.10", 30)
	writes := h.fake.Calls["PutItem"] + h.fake.Calls["UpdateItem"]

	priced, err := PriceLineItems(context.Background(), h.products, []LineItem{
		{ProductID: "P1", Quantity: 2},
		{ProductID: "P2", Quantity: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, "20.30", priced.Total.StringFixed())
	require.Len(t, priced.Snapshots, 2)
	assert.Equal(t, StockSnapshot{ProductID: "P2", Name: "Bowl", CurrentStock: 30, OrderQuantity: 3, UnitPrice: money.MustParse("0.10")}, priced.Snapshots[1])
	assert.Equal(t, writes, h.fake.Calls["PutItem"]+h.fake.Calls["UpdateItem"], "pricing must not write")
}

func TestUpdateStatus_Permissive(t *testing.T) {
	h := newHarness(t)
	h.seedProduct(t, "P1", "Mug", "10.00", 5)
	ctx := context.Background()
	res, err := h.svc.PlaceOrder(ctx, PlaceOrderInput{UserID: "u1", Items: []RequestedItem{{ProductID: "P1"}}})
	require.NoError(t, err)
	id := res.Order.OrderID

	updated, err := h.svc.UpdateStatus(ctx, id, "shipped")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusShipped, updated.Status)

	got, err := h.svc.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusShipped, got.Status)

	// backwards moves are accepted without strict mode
	updated, err = h.svc.UpdateStatus(ctx, id, "pending")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, updated.Status)

	_, err = h.svc.UpdateStatus(ctx, id, "refunded")
	var ise *InvalidStatusError
	assert.True(t, errors.As(err, &ise))

	_, err = h.svc.UpdateStatus(ctx, "missing", "shipped")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	// invalid value wins over a missing order
	_, err = h.svc.UpdateStatus(ctx, "missing", "bogus")
	assert.True(t, errors.As(err, &ise))
}

func TestUpdateStatus_Strict(t *testing.T) {
	h := newHarness(t, WithStrictTransitions(true))
	h.seedProduct(t, "P1", "Mug", "10.00", 5)
	ctx := context.Background()
	res, err := h.svc.PlaceOrder(ctx, PlaceOrderInput{UserID: "u1", Items: []RequestedItem{{ProductID: "P1"}}})
	require.NoError(t, err)
	id := res.Order.OrderID

	updated, err := h.svc.UpdateStatus(ctx, id, "shipped")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusShipped, updated.Status)

	_, err = h.svc.UpdateStatus(ctx, id, "processing")
	var ite *InvalidTransitionError
	require.True(t, errors.As(err, &ite))
	assert.Equal(t, orders.StatusShipped, ite.From)
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	_, err = h.svc.UpdateStatus(ctx, id, "shipped")
	assert.NoError(t, err)

	_, err = h.svc.UpdateStatus(ctx, "missing", "shipped")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestGetAndListOrders(t *testing.T) {
	h := newHarness(t)
	h.seedProduct(t, "P1", "Mug", "1.00", 50)
	ctx := context.Background()
	for _, u := range []string{"u1", "u2", "u1"} {
		_, err := h.svc.PlaceOrder(ctx, PlaceOrderInput{UserID: u, Items: []RequestedItem{{ProductID: "P1"}}})
		require.NoError(t, err)
	}

	all, err := h.svc.ListOrders(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mine, err := h.svc.ListOrders(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	got, err := h.svc.GetOrder(ctx, mine[0].OrderID)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	_, err = h.svc.GetOrder(ctx, "missing")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestBestSellers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedProduct(t, "A", "Alpha", "1.00", 100)
	h.seedProduct(t, "B", "Beta", "1.00", 100)
	h.seedProduct(t, "C", "Gamma", "1.00", 100)

	seed := []orders.Order{
		{OrderID: "o1", UserID: "u", Status: orders.StatusPending, Items: []orders.LineItem{{ProductID: "B", Quantity: 2}, {ProductID: "A", Quantity: 1}}},
		{OrderID: "o2", UserID: "u", Status: orders.StatusPending, Items: []orders.LineItem{{ProductID: "C", Quantity: 5}, {ProductID: "A", Quantity: 1}}},
		{OrderID: "o3", UserID: "u", Status: orders.StatusPending, Items: []orders.LineItem{{ProductID: "gone", Quantity: 9}}},
	}
	for _, o := range seed {
		require.NoError(t, h.orders.Create(ctx, o))
	}

	top, err := h.svc.BestSellers(ctx, 0)
	require.NoError(t, err)
	require.Len(t, top, 3, "deleted products are skipped")
	assert.Equal(t, "C", top[0].ID)
	assert.Equal(t, 5, top[0].UnitsSold)
	// B and A tie on 2; B was seen first
	assert.Equal(t, "B", top[1].ID)
	assert.Equal(t, "A", top[2].ID)

	top, err = h.svc.BestSellers(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2, "deleted products do not use up the limit")
	assert.Equal(t, "C", top[0].ID)
	assert.Equal(t, "B", top[1].ID)
}
