package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/nyambika/marketplace/internal/cache"
	"github.com/nyambika/marketplace/internal/db"
	"github.com/nyambika/marketplace/internal/events"
	"github.com/nyambika/marketplace/internal/metrics"
	"github.com/nyambika/marketplace/internal/models"
)

const maxIdempotencyKeyLength = 64

// OrderService handles order-related operations
type OrderService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
	cache   *cache.Cache
	events  *events.Bus
}

// NewOrderService creates a new order service
func NewOrderService(db *db.DB, metrics *metrics.AppMetrics, cache *cache.Cache, bus *events.Bus) *OrderService {
	return &OrderService{
		db:      db,
		metrics: metrics,
		cache:   cache,
		events:  bus,
	}
}

func validateOrderRequest(req *models.CreateOrderRequest) error {
	if len(req.Items) == 0 {
		return userError(ErrValidation, "Order items are required")
	}
	if strings.TrimSpace(req.ShippingAddress) == "" {
		return userError(ErrValidation, "Missing required order information")
	}
	sum := decimal.Zero
	for _, it := range req.Items {
		if it.ProductID == "" || it.Quantity <= 0 || it.Price.IsNegative() {
			return userError(ErrValidation, "Each item must have productId, quantity, and price")
		}
		sum = sum.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	if req.Shipping.IsNegative() {
		return userError(ErrValidation, "Shipping cannot be negative")
	}
	sum = sum.Add(req.Shipping)
	if req.Total.IsZero() {
		req.Total = sum
	} else if !req.Total.Round(2).Equal(sum.Round(2)) {
		return userError(ErrValidation, "Order total does not match items and shipping")
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = "cash_on_delivery"
	}
	return nil
}

// CreateOrder places an order for customerID and clears their cart. When
// idemKey is set a repeated request returns the order it first created and
// created is false.
func (s *OrderService) CreateOrder(ctx context.Context, customerID, idemKey string, req models.CreateOrderRequest) (order *models.Order, created bool, err error) {
	if len(idemKey) > maxIdempotencyKeyLength {
		return nil, false, userError(ErrValidation, "Idempotency-Key is too long")
	}
	if err := validateOrderRequest(&req); err != nil {
		return nil, false, err
	}

	if idemKey != "" {
		if existing, err := s.findIdempotent(ctx, customerID, idemKey); err == nil {
			return existing, false, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, false, err
		}
	}

	orderID := uuid.NewString()
	var key *string
	if idemKey != "" {
		key = &idemKey
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		start := time.Now()
		orderQuery := `INSERT INTO orders (id, customer_id, total, shipping, status, validation_status, payment_method, payment_status, shipping_address, notes, idempotency_key)
			VALUES (?, ?, ?, ?, 'pending', 'pending', ?, 'pending', ?, ?, ?)`
		_, err := tx.ExecContext(ctx, orderQuery, orderID, customerID, req.Total.Round(2), req.Shipping.Round(2), req.PaymentMethod, req.ShippingAddress, req.Notes, key)
		s.metrics.RecordDBQuery(ctx, "INSERT", "orders", orderQuery, start, err == nil)
		if err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		itemQuery := "INSERT INTO order_items (id, order_id, product_id, quantity, price, size, color) VALUES (?, ?, ?, ?, ?, ?, ?)"
		for _, it := range req.Items {
			start = time.Now()
			_, err = tx.ExecContext(ctx, itemQuery, uuid.NewString(), orderID, it.ProductID, it.Quantity, it.Price.Round(2), it.Size, it.Color)
			s.metrics.RecordDBQuery(ctx, "INSERT", "order_items", itemQuery, start, err == nil)
			if err != nil {
				if db.IsMissingReference(err) {
					return userError(ErrValidation, fmt.Sprintf("Unknown product %s", it.ProductID))
				}
				return fmt.Errorf("failed to create order item: %w", err)
			}
		}

		start = time.Now()
		deleteQuery := "DELETE FROM cart_items WHERE user_id = ?"
		_, err = tx.ExecContext(ctx, deleteQuery, customerID)
		s.metrics.RecordDBQuery(ctx, "DELETE", "cart_items", deleteQuery, start, err == nil)
		if err != nil {
			return fmt.Errorf("failed to clear cart: %w", err)
		}
		return nil
	})
	if err != nil {
		if idemKey != "" && db.IsDuplicate(err) {
			existing, findErr := s.findIdempotent(ctx, customerID, idemKey)
			if findErr != nil {
				return nil, false, findErr
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	if idemKey != "" {
		if err := s.cache.Set(ctx, fmt.Sprintf(cache.KeyIdemOrderCreate, customerID, idemKey), orderID, cache.TTLIdempotency); err != nil {
			log.Printf("[ORDER] Could not cache idempotency key: %v", err)
		}
	}

	order, err = s.getOrder(ctx, orderID, "")
	if err != nil {
		return nil, false, err
	}

	attrs := metric.WithAttributes(s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.String("order_status", order.Status),
		attribute.String("payment_method", order.PaymentMethod),
	})...)
	s.metrics.OrdersCreated.Add(ctx, 1, attrs)
	s.metrics.RevenueTotal.Add(ctx, order.Total.InexactFloat64(), attrs)

	s.events.PublishOrder(events.EventOrderCreated, events.OrderPayload{
		OrderID:          order.ID,
		CustomerID:       customerID,
		ProducerIDs:      producersOf(order.Items),
		ValidationStatus: order.ValidationStatus,
		Status:           order.Status,
	})

	log.Printf("[ORDER] Order created: order_id=%s, total=%s RWF, items=%d", order.ID, order.Total.StringFixed(2), len(order.Items))
	return order, true, nil
}

func (s *OrderService) findIdempotent(ctx context.Context, customerID, idemKey string) (*models.Order, error) {
	cacheKey := fmt.Sprintf(cache.KeyIdemOrderCreate, customerID, idemKey)
	if orderID, err := s.cache.Get(ctx, cacheKey); err == nil {
		s.metrics.RecordCache(ctx, "idempotency", true)
		return s.getOrder(ctx, orderID, "")
	}
	s.metrics.RecordCache(ctx, "idempotency", false)

	start := time.Now()
	query := "SELECT id FROM orders WHERE customer_id = ? AND idempotency_key = ?"
	var orderID string
	err := s.db.QueryRowContext(ctx, query, customerID, idemKey).Scan(&orderID)
	s.metrics.RecordDBQuery(ctx, "SELECT", "orders", query, start, err == nil || err == sql.ErrNoRows)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	return s.getOrder(ctx, orderID, "")
}

const orderColumns = `o.id, o.customer_id, o.total, o.shipping, o.status, o.validation_status, COALESCE(o.payment_method, ''),
	COALESCE(o.payment_status, ''), COALESCE(o.shipping_address, ''), o.tracking_number, o.notes, o.created_at`

func scanOrder(row interface{ Scan(...any) error }, o *models.Order) error {
	return row.Scan(&o.ID, &o.CustomerID, &o.Total, &o.Shipping, &o.Status, &o.ValidationStatus, &o.PaymentMethod,
		&o.PaymentStatus, &o.ShippingAddress, &o.TrackingNumber, &o.Notes, &o.CreatedAt)
}

// getOrder loads one order; a non-empty producerID limits the items to theirs
func (s *OrderService) getOrder(ctx context.Context, orderID, producerID string) (*models.Order, error) {
	start := time.Now()
	query := "SELECT " + orderColumns + " FROM orders o WHERE o.id = ?"
	var o models.Order
	err := scanOrder(s.db.QueryRowContext(ctx, query, orderID), &o)
	s.metrics.RecordDBQuery(ctx, "SELECT", "orders", query, start, err == nil || err == sql.ErrNoRows)
	if err == sql.ErrNoRows {
		return nil, userError(ErrNotFound, "Order not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	items, err := s.loadItems(ctx, []string{orderID}, producerID)
	if err != nil {
		return nil, err
	}
	o.Items = items[orderID]
	if o.Items == nil {
		o.Items = []models.OrderItem{}
	}
	return &o, nil
}

func (s *OrderService) loadItems(ctx context.Context, orderIDs []string, producerID string) (map[string][]models.OrderItem, error) {
	out := make(map[string][]models.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}

	args := make([]any, 0, len(orderIDs)+1)
	for _, id := range orderIDs {
		args = append(args, id)
	}
	query := `SELECT oi.id, oi.order_id, oi.product_id, oi.quantity, oi.price, oi.size, oi.color, COALESCE(p.name, ''), p.producer_id
		FROM order_items oi
		LEFT JOIN products p ON oi.product_id = p.id
		WHERE oi.order_id IN (` + placeholders(len(orderIDs)) + `)`
	if producerID != "" {
		query += " AND p.producer_id = ?"
		args = append(args, producerID)
	}

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	s.metrics.RecordDBQuery(ctx, "SELECT", "order_items", query, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it models.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.Price, &it.Size, &it.Color, &it.ProductName, &it.ProducerID); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return out, rows.Err()
}

func (s *OrderService) listOrders(ctx context.Context, query, producerID string, args ...any) ([]models.Order, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	s.metrics.RecordDBQuery(ctx, "SELECT", "orders", query, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	var ids []string
	for rows.Next() {
		var o models.Order
		if err := scanOrder(rows, &o); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, err := s.loadItems(ctx, ids, producerID)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
		if orders[i].Items == nil {
			orders[i].Items = []models.OrderItem{}
		}
	}
	return orders, nil
}

// ListCustomerOrders returns the customer's orders, newest first
func (s *OrderService) ListCustomerOrders(ctx context.Context, customerID string) ([]models.Order, error) {
	query := "SELECT " + orderColumns + " FROM orders o WHERE o.customer_id = ? ORDER BY o.created_at DESC"
	return s.listOrders(ctx, query, "", customerID)
}

// ListProducerOrders returns orders containing the producer's products with
// only their items. Admins see every order.
func (s *OrderService) ListProducerOrders(ctx context.Context, actor Actor) ([]models.Order, error) {
	if actor.IsAdmin() {
		query := "SELECT " + orderColumns + " FROM orders o ORDER BY o.created_at DESC"
		return s.listOrders(ctx, query, "")
	}
	query := "SELECT " + orderColumns + ` FROM orders o
		WHERE EXISTS (
			SELECT 1 FROM order_items oi JOIN products p ON oi.product_id = p.id
			WHERE oi.order_id = o.id AND p.producer_id = ?
		)
		ORDER BY o.created_at DESC`
	return s.listOrders(ctx, query, actor.UserID, actor.UserID)
}

// ProducerStats counts the producer's orders by validation status
func (s *OrderService) ProducerStats(ctx context.Context, actor Actor) (*models.ProducerStats, error) {
	orders, err := s.ListProducerOrders(ctx, actor)
	if err != nil {
		return nil, err
	}
	stats := &models.ProducerStats{
		TotalOrders:        len(orders),
		ByValidationStatus: map[string]int{},
		Revenue:            decimal.Zero,
	}
	for _, o := range orders {
		stats.ByValidationStatus[o.ValidationStatus]++
		if o.Status == "cancelled" {
			continue
		}
		for _, it := range o.Items {
			stats.Revenue = stats.Revenue.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}
	}
	return stats, nil
}

// GetOrder returns an order the actor may see. Customers see their own
// orders, producers see orders with their items (and only those items).
func (s *OrderService) GetOrder(ctx context.Context, actor Actor, orderID string) (*models.Order, error) {
	producerID := ""
	if actor.IsProducer() {
		producerID = actor.UserID
	}
	o, err := s.getOrder(ctx, orderID, producerID)
	if err != nil {
		return nil, err
	}
	switch {
	case actor.IsAdmin():
	case o.CustomerID == actor.UserID:
	case actor.IsProducer() && len(o.Items) > 0:
	default:
		return nil, userError(ErrNotFound, "Order not found")
	}
	return o, nil
}

// UpdateValidationStatus advances an order's validation status
func (s *OrderService) UpdateValidationStatus(ctx context.Context, actor Actor, orderID, status string) (*models.Order, error) {
	if !IsValidationStatus(status) {
		return nil, userError(ErrValidation, "Invalid validation status")
	}

	var from, customerID string
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		start := time.Now()
		query := "SELECT customer_id, validation_status FROM orders WHERE id = ? FOR UPDATE"
		err := tx.QueryRowContext(ctx, query, orderID).Scan(&customerID, &from)
		s.metrics.RecordDBQuery(ctx, "SELECT", "orders", query, start, err == nil || err == sql.ErrNoRows)
		if err == sql.ErrNoRows {
			return userError(ErrNotFound, "Order not found")
		}
		if err != nil {
			return fmt.Errorf("failed to lock order: %w", err)
		}

		if err := s.checkParticipant(ctx, tx, actor, orderID, customerID); err != nil {
			return err
		}
		if !canSetValidation(actor.Role, status) {
			return userError(ErrForbidden, "You cannot set this validation status")
		}
		if !CanAdvanceValidation(from, status, actor.IsAdmin()) {
			return userError(ErrInvalidTransition, fmt.Sprintf("Cannot change validation status from %s to %s", from, status))
		}

		start = time.Now()
		update := "UPDATE orders SET validation_status = ? WHERE id = ?"
		_, err = tx.ExecContext(ctx, update, status, orderID)
		s.metrics.RecordDBQuery(ctx, "UPDATE", "orders", update, start, err == nil)
		if err != nil {
			return fmt.Errorf("failed to update validation status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ValidationTransitions.Add(ctx, 1, metric.WithAttributes(s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.String("from", from),
		attribute.String("to", status),
		attribute.String("role", actor.Role),
	})...))
	log.Printf("[ORDER] Validation status changed: order_id=%s, %s -> %s by %s", orderID, from, status, actor.Role)

	order, err := s.GetOrder(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.EventOrderValidationUpdated, orderID, customerID, order)
	return order, nil
}

// UpdateOrder changes fulfilment status, tracking number or notes
func (s *OrderService) UpdateOrder(ctx context.Context, actor Actor, orderID string, req models.UpdateOrderRequest) (*models.Order, error) {
	var customerID string
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		start := time.Now()
		query := "SELECT customer_id, status FROM orders WHERE id = ? FOR UPDATE"
		var current string
		err := tx.QueryRowContext(ctx, query, orderID).Scan(&customerID, &current)
		s.metrics.RecordDBQuery(ctx, "SELECT", "orders", query, start, err == nil || err == sql.ErrNoRows)
		if err == sql.ErrNoRows {
			return userError(ErrNotFound, "Order not found")
		}
		if err != nil {
			return fmt.Errorf("failed to lock order: %w", err)
		}
		if err := s.checkParticipant(ctx, tx, actor, orderID, customerID); err != nil {
			return err
		}

		var sets []string
		var args []any
		if req.Status != "" && req.Status != current {
			if !actor.IsAdmin() && !actor.IsProducer() {
				return userError(ErrForbidden, "Only producers can change order status")
			}
			if !CanTransitionOrder(current, req.Status) {
				return userError(ErrInvalidTransition, fmt.Sprintf("Cannot change status from %s to %s", current, req.Status))
			}
			sets = append(sets, "status = ?")
			args = append(args, req.Status)
		}
		if req.TrackingNumber != nil {
			sets = append(sets, "tracking_number = ?")
			args = append(args, *req.TrackingNumber)
		}
		if req.Notes != nil {
			sets = append(sets, "notes = ?")
			args = append(args, *req.Notes)
		}
		if len(sets) == 0 {
			return nil
		}

		start = time.Now()
		update := "UPDATE orders SET " + strings.Join(sets, ", ") + " WHERE id = ?"
		_, err = tx.ExecContext(ctx, update, append(args, orderID)...)
		s.metrics.RecordDBQuery(ctx, "UPDATE", "orders", update, start, err == nil)
		if err != nil {
			return fmt.Errorf("failed to update order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, actor, orderID)
}

// CancelOrder cancels a pending order on behalf of its customer or an admin
func (s *OrderService) CancelOrder(ctx context.Context, actor Actor, orderID string) (*models.Order, error) {
	var customerID string
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		start := time.Now()
		query := "SELECT customer_id, status FROM orders WHERE id = ? FOR UPDATE"
		var status string
		err := tx.QueryRowContext(ctx, query, orderID).Scan(&customerID, &status)
		s.metrics.RecordDBQuery(ctx, "SELECT", "orders", query, start, err == nil || err == sql.ErrNoRows)
		if err == sql.ErrNoRows {
			return userError(ErrNotFound, "Order not found")
		}
		if err != nil {
			return fmt.Errorf("failed to lock order: %w", err)
		}
		if customerID != actor.UserID && !actor.IsAdmin() {
			return userError(ErrForbidden, "You can only cancel your own orders")
		}
		if status != "pending" {
			return userError(ErrConflict, fmt.Sprintf("Orders with status '%s' cannot be cancelled. Only pending orders can be cancelled.", status))
		}

		start = time.Now()
		update := "UPDATE orders SET status = 'cancelled' WHERE id = ?"
		_, err = tx.ExecContext(ctx, update, orderID)
		s.metrics.RecordDBQuery(ctx, "UPDATE", "orders", update, start, err == nil)
		if err != nil {
			return fmt.Errorf("failed to cancel order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	order, err := s.getOrder(ctx, orderID, "")
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.EventOrderCancelled, orderID, customerID, order)
	log.Printf("[ORDER] Order cancelled: order_id=%s", orderID)
	return order, nil
}

// checkParticipant verifies the actor is the customer, a producer with items
// in the order, or an admin. Outsiders get not-found so ids do not leak.
func (s *OrderService) checkParticipant(ctx context.Context, tx *sql.Tx, actor Actor, orderID, customerID string) error {
	if actor.IsAdmin() || actor.UserID == customerID {
		return nil
	}
	if actor.IsProducer() {
		start := time.Now()
		query := `SELECT COUNT(*) FROM order_items oi JOIN products p ON oi.product_id = p.id
			WHERE oi.order_id = ? AND p.producer_id = ?`
		var n int
		err := tx.QueryRowContext(ctx, query, orderID, actor.UserID).Scan(&n)
		s.metrics.RecordDBQuery(ctx, "SELECT", "order_items", query, start, err == nil)
		if err != nil {
			return fmt.Errorf("failed to check order access: %w", err)
		}
		if n > 0 {
			return nil
		}
	}
	return userError(ErrNotFound, "Order not found")
}

// publish notifies the customer and every producer in the order
func (s *OrderService) publish(ctx context.Context, eventType, orderID, customerID string, order *models.Order) {
	full, err := s.getOrder(ctx, orderID, "")
	if err != nil {
		log.Printf("[ORDER] Could not load order for event: %v", err)
		return
	}
	s.events.PublishOrder(eventType, events.OrderPayload{
		OrderID:          orderID,
		CustomerID:       customerID,
		ProducerIDs:      producersOf(full.Items),
		ValidationStatus: order.ValidationStatus,
		Status:           order.Status,
	})
}

func producersOf(items []models.OrderItem) []string {
	seen := map[string]bool{}
	var out []string
	for _, it := range items {
		if it.ProducerID == nil || seen[*it.ProducerID] {
			continue
		}
		seen[*it.ProducerID] = true
		out = append(out, *it.ProducerID)
	}
	return out
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}
