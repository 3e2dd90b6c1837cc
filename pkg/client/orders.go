package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Order cache keys
const (
	KeyOrders         = "orders"
	KeyProducerOrders = "producer-orders"
	KeyProducerStats  = "producer-stats"
)

// Order query timings
const (
	OrdersStaleTime       = 5 * time.Second
	OrdersRefetchInterval = 10 * time.Second
)

// UnknownValidationStatus buckets orders whose status Grouped does not recognise
const UnknownValidationStatus = "unknown"

// ValidationStatuses lists the validation lifecycle in order
var ValidationStatuses = []string{"pending", "in_progress", "done", "confirmed_by_customer"}

// OrderUpdate changes an order's fulfilment fields
type OrderUpdate struct {
	Status         string  `json:"status,omitempty"`
	TrackingNumber *string `json:"trackingNumber,omitempty"`
	Notes          *string `json:"notes,omitempty"`
}

// OrderSync keeps the customer and producer order views and refetches both
// after every mutation, since each side sees the other's changes
type OrderSync struct {
	client  *Client
	queries *QueryClient

	Customer *Query[[]Order]
	Producer *Query[[]Order]
	Stats    *Query[ProducerStats]

	mu      sync.Mutex
	pending *pendingOrder
}

type pendingOrder struct {
	key  string
	body []byte
}

// NewOrderSync registers the order queries with qc. session may be nil, in
// which case the queries are always enabled.
func NewOrderSync(c *Client, qc *QueryClient, session *SessionStore) *OrderSync {
	signedIn := func() bool { return session == nil || session.IsAuthenticated() }
	seller := func() bool {
		return session == nil || session.HasRole(RoleProducer) || session.HasRole(RoleAdmin)
	}
	opts := func(enabled func() bool) QueryOptions {
		return QueryOptions{StaleTime: OrdersStaleTime, RefetchInterval: OrdersRefetchInterval, Enabled: enabled}
	}

	s := &OrderSync{client: c, queries: qc}
	s.Customer = NewQuery(qc, KeyOrders, func(ctx context.Context) ([]Order, error) {
		var orders []Order
		err := c.Get(ctx, "/api/orders", &orders)
		return orders, err
	}, opts(signedIn))
	s.Producer = NewQuery(qc, KeyProducerOrders, func(ctx context.Context) ([]Order, error) {
		var orders []Order
		err := c.Get(ctx, "/api/producer/orders", &orders)
		return orders, err
	}, opts(seller))
	s.Stats = NewQuery(qc, KeyProducerStats, func(ctx context.Context) (ProducerStats, error) {
		var stats ProducerStats
		err := c.Get(ctx, "/api/producer/stats", &stats)
		return stats, err
	}, opts(seller))
	return s
}

// CustomerOrders returns the signed-in customer's orders
func (s *OrderSync) CustomerOrders(ctx context.Context) ([]Order, error) {
	return s.Customer.Get(ctx)
}

// ProducerOrders returns orders containing the producer's products
func (s *OrderSync) ProducerOrders(ctx context.Context) ([]Order, error) {
	return s.Producer.Get(ctx)
}

// Grouped buckets producer orders by validation status
func (s *OrderSync) Grouped(ctx context.Context) (map[string][]Order, error) {
	orders, err := s.Producer.Get(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(ValidationStatuses))
	groups := make(map[string][]Order, len(ValidationStatuses)+1)
	for _, st := range ValidationStatuses {
		known[st] = true
		groups[st] = nil
	}
	for _, o := range orders {
		st := o.ValidationStatus
		if !known[st] {
			st = UnknownValidationStatus
		}
		groups[st] = append(groups[st], o)
	}
	return groups, nil
}

// CreateOrder submits an order with an Idempotency-Key. Resubmitting an
// identical request after a failure without a definitive answer reuses the
// key, so the backend returns the first order instead of creating another.
func (s *OrderSync) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order: %w", err)
	}

	s.mu.Lock()
	if s.pending == nil || !bytes.Equal(s.pending.body, body) {
		s.pending = &pendingOrder{key: uuid.NewString(), body: body}
	}
	key := s.pending.key
	s.mu.Unlock()

	var order Order
	err = s.client.Post(ctx, "/api/orders", json.RawMessage(body), &order, WithHeader("Idempotency-Key", key))
	if err == nil || isDefinitive(err) {
		s.mu.Lock()
		if s.pending != nil && s.pending.key == key {
			s.pending = nil
		}
		s.mu.Unlock()
	}
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, KeyOrders, KeyProducerOrders, KeyProducerStats)
	return &order, nil
}

// isDefinitive reports whether the server rejected the request outright,
// as opposed to failing in a way a retry might fix
func isDefinitive(err error) bool {
	code := StatusCode(err)
	return code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests
}

// Checkout places an order for the cart contents, shipping included, and
// empties the cart on success
func (s *OrderSync) Checkout(ctx context.Context, cart *Cart, shippingAddress, paymentMethod string) (*Order, error) {
	lines := cart.Lines()
	if len(lines) == 0 {
		return nil, fmt.Errorf("cart is empty")
	}
	order, err := s.CreateOrder(ctx, CreateOrderRequest{
		Items:           lines,
		Total:           cart.Total(),
		Shipping:        cart.Shipping(),
		PaymentMethod:   paymentMethod,
		ShippingAddress: shippingAddress,
	})
	if err != nil {
		return nil, err
	}
	if err := cart.Clear(); err != nil {
		log.Printf("[ORDER] Order %s placed but cart not cleared: %v", order.ID, err)
	}
	return order, nil
}

// UpdateValidationStatus advances an order's validation status and
// refetches the producer and customer views
func (s *OrderSync) UpdateValidationStatus(ctx context.Context, orderID, status string) (*Order, error) {
	var order Order
	body := map[string]string{"validationStatus": status}
	if err := s.client.Put(ctx, "/api/orders/"+url.PathEscape(orderID)+"/validation-status", body, &order); err != nil {
		return nil, err
	}
	s.invalidate(ctx, KeyProducerOrders, KeyProducerStats, KeyOrders)
	return &order, nil
}

// UpdateOrder changes fulfilment fields such as status and tracking number
func (s *OrderSync) UpdateOrder(ctx context.Context, orderID string, upd OrderUpdate) (*Order, error) {
	var order Order
	if err := s.client.Put(ctx, "/api/orders/"+url.PathEscape(orderID)+"/status", upd, &order); err != nil {
		return nil, err
	}
	s.invalidate(ctx, KeyProducerOrders, KeyProducerStats, KeyOrders)
	return &order, nil
}

// CancelOrder cancels a pending order
func (s *OrderSync) CancelOrder(ctx context.Context, orderID string) (*Order, error) {
	var resp struct {
		Message string `json:"message"`
		Order   *Order `json:"order"`
	}
	if err := s.client.Delete(ctx, "/api/orders/"+url.PathEscape(orderID), &resp); err != nil {
		return nil, err
	}
	s.invalidate(ctx, KeyOrders, KeyProducerOrders, KeyProducerStats)
	return resp.Order, nil
}

// invalidate refetches keys; the mutation already succeeded, so a failed
// refetch is only logged and polling catches up
func (s *OrderSync) invalidate(ctx context.Context, keys ...string) {
	if err := s.queries.Invalidate(ctx, keys...); err != nil {
		log.Printf("[ORDER] Refetch after mutation failed: %v", err)
	}
}
