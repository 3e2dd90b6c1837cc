package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrderThenListIncludesIt(t *testing.T) {
	f := newFakeBackend(t)
	c, tokens := newTestClient(f, "")
	session := NewSessionStore(c, tokens, nil)
	_, err := session.Login(context.Background(), "customer@demo.com", "password")
	require.NoError(t, err)

	qc := NewQueryClient()
	defer qc.Close()
	orders := NewOrderSync(c, qc, session)
	ctx := context.Background()

	before, err := orders.CustomerOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, before)

	created, err := orders.CreateOrder(ctx, CreateOrderRequest{
		Items:           []OrderLine{{ProductID: "p1", Quantity: 2, Price: decimal.NewFromInt(1000)}},
		Total:           decimal.NewFromInt(2000),
		ShippingAddress: "KG 11 Ave, Kigali",
	})
	require.NoError(t, err)

	// the cached list was refetched by the mutation itself
	assert.Equal(t, 2, f.hit("GET /api/orders"))
	list, err := orders.CustomerOrders(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)
	assert.True(t, decimal.NewFromInt(2000).Equal(list[0].Total))

	// customers cannot read producer views, so those stay disabled
	_, err = orders.ProducerOrders(ctx)
	assert.ErrorIs(t, err, ErrQueryDisabled)
	assert.Zero(t, f.hit("GET /api/producer/orders"))
}

func TestValidationUpdateRefetchesBothViews(t *testing.T) {
	f := newFakeBackend(t)
	f.seedOrder(Order{ID: "o1", CustomerID: "u-producer", Status: "pending", ValidationStatus: "pending", Total: decimal.NewFromInt(1000)})
	c, _ := newTestClient(f, tokenFor("u-producer"))

	qc := NewQueryClient()
	defer qc.Close()
	orders := NewOrderSync(c, qc, nil)
	ctx := context.Background()

	_, err := orders.CustomerOrders(ctx)
	require.NoError(t, err)
	_, err = orders.ProducerOrders(ctx)
	require.NoError(t, err)

	for i, status := range []string{"in_progress", "done", "confirmed_by_customer"} {
		updated, err := orders.UpdateValidationStatus(ctx, "o1", status)
		require.NoError(t, err)
		assert.Equal(t, status, updated.ValidationStatus)

		assert.Equal(t, i+2, f.hit("GET /api/orders"), status)
		assert.Equal(t, i+2, f.hit("GET /api/producer/orders"), status)

		cached, ok := orders.Producer.Peek()
		require.True(t, ok)
		assert.Equal(t, status, cached[0].ValidationStatus)
	}
}

func TestFailedValidationUpdateKeepsCaches(t *testing.T) {
	f := newFakeBackend(t)
	c, _ := newTestClient(f, tokenFor("u-producer"))
	qc := NewQueryClient()
	defer qc.Close()
	orders := NewOrderSync(c, qc, nil)
	ctx := context.Background()

	_, _ = orders.ProducerOrders(ctx)
	_, err := orders.UpdateValidationStatus(ctx, "missing", "done")
	assert.True(t, IsNotFound(err))
	assert.Equal(t, 1, f.hit("GET /api/producer/orders"))
}

func TestCreateOrderReusesKeyAfterLostResponse(t *testing.T) {
	f := newFakeBackend(t)
	c, _ := newTestClient(f, tokenFor("u-customer"))
	qc := NewQueryClient()
	defer qc.Close()
	orders := NewOrderSync(c, qc, nil)
	ctx := context.Background()

	var (
		mu   sync.Mutex
		keys []string
		lost = true
	)
	f.hook("POST /api/orders", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		drop := lost
		lost = false
		mu.Unlock()

		rec := httptest.NewRecorder()
		f.authed(f.createOrder)(rec, r)
		if drop {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		for k, v := range rec.Header() {
			w.Header()[k] = v
		}
		w.WriteHeader(rec.Code)
		_, _ = w.Write(rec.Body.Bytes())
	})

	req := CreateOrderRequest{
		Items:           []OrderLine{{ProductID: "p1", Quantity: 1, Price: decimal.NewFromInt(1500)}},
		Total:           decimal.NewFromInt(1500),
		ShippingAddress: "Musanze",
	}
	_, err := orders.CreateOrder(ctx, req)
	require.Error(t, err)

	order, err := orders.CreateOrder(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "o1", order.ID)
	assert.Equal(t, 1, f.orderCount())

	// a fresh submission after success gets a fresh key
	_, err = orders.CreateOrder(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, f.orderCount())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, keys, 3)
	assert.NotEmpty(t, keys[0])
	assert.Equal(t, keys[0], keys[1])
	assert.NotEqual(t, keys[1], keys[2])
}

func TestCheckoutClearsCart(t *testing.T) {
	f := newFakeBackend(t)
	c, _ := newTestClient(f, tokenFor("u-customer"))
	qc := NewQueryClient()
	defer qc.Close()
	orders := NewOrderSync(c, qc, nil)
	cart, _ := NewCart(nil)
	ctx := context.Background()

	_, err := orders.Checkout(ctx, cart, "Kigali", "mobile_money")
	require.Error(t, err)

	require.NoError(t, cart.Add(CartItem{ProductID: "p1", Price: decimal.NewFromInt(1000)}, 2))
	total := cart.Total()
	require.True(t, decimal.NewFromInt(7000).Equal(total))

	order, err := orders.Checkout(ctx, cart, "Kigali", "mobile_money")
	require.NoError(t, err)
	assert.True(t, total.Equal(order.Total), "order total %s", order.Total)
	assert.True(t, ShippingFee.Equal(order.Shipping))
	assert.Empty(t, cart.Items())
}

func TestGroupedOrders(t *testing.T) {
	f := newFakeBackend(t)
	f.seedOrder(Order{ID: "o1", ValidationStatus: "pending"})
	f.seedOrder(Order{ID: "o2", ValidationStatus: "done"})
	f.seedOrder(Order{ID: "o3", ValidationStatus: "pending"})
	f.seedOrder(Order{ID: "o4", ValidationStatus: "archived"})
	c, _ := newTestClient(f, tokenFor("u-producer"))
	qc := NewQueryClient()
	defer qc.Close()

	groups, err := NewOrderSync(c, qc, nil).Grouped(context.Background())
	require.NoError(t, err)
	assert.Len(t, groups["pending"], 2)
	assert.Len(t, groups["done"], 1)
	assert.Empty(t, groups["in_progress"])
	require.Len(t, groups[UnknownValidationStatus], 1)
	assert.Equal(t, "o4", groups[UnknownValidationStatus][0].ID)
}

func TestCancelOrder(t *testing.T) {
	f := newFakeBackend(t)
	f.seedOrder(Order{ID: "o1", CustomerID: "u-customer", Status: "pending", ValidationStatus: "pending"})
	f.seedOrder(Order{ID: "o2", CustomerID: "u-customer", Status: "shipped", ValidationStatus: "done"})
	c, _ := newTestClient(f, tokenFor("u-customer"))
	qc := NewQueryClient()
	defer qc.Close()
	orders := NewOrderSync(c, qc, nil)
	ctx := context.Background()

	cancelled, err := orders.CancelOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "cancelled", cancelled.Status)

	_, err = orders.CancelOrder(ctx, "o2")
	assert.Equal(t, http.StatusConflict, StatusCode(err))
}
