package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nyambika/marketplace/internal/db"
	"github.com/nyambika/marketplace/internal/metrics"
	"github.com/nyambika/marketplace/internal/models"
)

// CartService handles the server-side cart
type CartService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
}

// NewCartService creates a new cart service
func NewCartService(db *db.DB, metrics *metrics.AppMetrics) *CartService {
	return &CartService{
		db:      db,
		metrics: metrics,
	}
}

// GetCart returns the user's cart lines priced from the catalog
func (s *CartService) GetCart(ctx context.Context, userID string) ([]models.CartItem, error) {
	start := time.Now()
	query := `SELECT ci.id, ci.user_id, ci.product_id, ci.quantity, ci.size, ci.color, p.price, ci.created_at
		FROM cart_items ci
		JOIN products p ON ci.product_id = p.id
		WHERE ci.user_id = ?
		ORDER BY ci.created_at`
	rows, err := s.db.QueryContext(ctx, query, userID)
	s.metrics.RecordDBQuery(ctx, "SELECT", "cart_items", query, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	defer rows.Close()

	items := []models.CartItem{}
	for rows.Next() {
		var it models.CartItem
		if err := rows.Scan(&it.ID, &it.UserID, &it.ProductID, &it.Quantity, &it.Size, &it.Color, &it.Price, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// AddToCart adds quantity of a product; an existing line with the same
// size and color grows instead of duplicating.
func (s *CartService) AddToCart(ctx context.Context, userID string, req models.AddToCartRequest) (*models.CartItem, error) {
	if req.ProductID == "" {
		return nil, userError(ErrValidation, "Product is required")
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}

	var item models.CartItem
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		start := time.Now()
		query := `SELECT id, quantity FROM cart_items
			WHERE user_id = ? AND product_id = ? AND size <=> ? AND color <=> ?
			FOR UPDATE`
		var existingID string
		var qty int
		err := tx.QueryRowContext(ctx, query, userID, req.ProductID, req.Size, req.Color).Scan(&existingID, &qty)
		s.metrics.RecordDBQuery(ctx, "SELECT", "cart_items", query, start, err == nil || err == sql.ErrNoRows)

		switch {
		case err == nil:
			start = time.Now()
			update := "UPDATE cart_items SET quantity = ? WHERE id = ?"
			_, err = tx.ExecContext(ctx, update, qty+req.Quantity, existingID)
			s.metrics.RecordDBQuery(ctx, "UPDATE", "cart_items", update, start, err == nil)
			if err != nil {
				return fmt.Errorf("failed to update cart item: %w", err)
			}
			item = models.CartItem{ID: existingID, UserID: userID, ProductID: req.ProductID, Quantity: qty + req.Quantity, Size: req.Size, Color: req.Color}
		case err == sql.ErrNoRows:
			item = models.CartItem{
				ID:        uuid.NewString(),
				UserID:    userID,
				ProductID: req.ProductID,
				Quantity:  req.Quantity,
				Size:      req.Size,
				Color:     req.Color,
				CreatedAt: time.Now().UTC(),
			}
			start = time.Now()
			insert := "INSERT INTO cart_items (id, user_id, product_id, quantity, size, color, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)"
			_, err = tx.ExecContext(ctx, insert, item.ID, userID, item.ProductID, item.Quantity, item.Size, item.Color, item.CreatedAt)
			s.metrics.RecordDBQuery(ctx, "INSERT", "cart_items", insert, start, err == nil)
			if err != nil {
				if db.IsMissingReference(err) {
					return userError(ErrNotFound, "Product not found")
				}
				return fmt.Errorf("failed to add to cart: %w", err)
			}
		default:
			return fmt.Errorf("failed to look up cart item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateQuantity sets a line's quantity; zero or less removes the line
func (s *CartService) UpdateQuantity(ctx context.Context, userID, itemID string, quantity int) error {
	if quantity <= 0 {
		return s.RemoveItem(ctx, userID, itemID)
	}
	start := time.Now()
	query := "UPDATE cart_items SET quantity = ? WHERE id = ? AND user_id = ?"
	res, err := s.db.ExecContext(ctx, query, quantity, itemID, userID)
	s.metrics.RecordDBQuery(ctx, "UPDATE", "cart_items", query, start, err == nil)
	if err != nil {
		return fmt.Errorf("failed to update cart item: %w", err)
	}
	return requireAffected(res, "Cart item not found")
}

// RemoveItem deletes one line
func (s *CartService) RemoveItem(ctx context.Context, userID, itemID string) error {
	start := time.Now()
	query := "DELETE FROM cart_items WHERE id = ? AND user_id = ?"
	res, err := s.db.ExecContext(ctx, query, itemID, userID)
	s.metrics.RecordDBQuery(ctx, "DELETE", "cart_items", query, start, err == nil)
	if err != nil {
		return fmt.Errorf("failed to remove cart item: %w", err)
	}
	return requireAffected(res, "Cart item not found")
}

// ClearCart empties the user's cart
func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	start := time.Now()
	query := "DELETE FROM cart_items WHERE user_id = ?"
	_, err := s.db.ExecContext(ctx, query, userID)
	s.metrics.RecordDBQuery(ctx, "DELETE", "cart_items", query, start, err == nil)
	if err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

func requireAffected(res sql.Result, notFound string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return userError(ErrNotFound, notFound)
	}
	return nil
}
