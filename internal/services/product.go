package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/nyambika/marketplace/internal/db"
	"github.com/nyambika/marketplace/internal/metrics"
	"github.com/nyambika/marketplace/internal/models"
)

const productCacheTTL = 5 * time.Minute

// ProductCache holds recently read products
type ProductCache struct {
	mu    sync.RWMutex
	items map[string]cachedProduct
}

type cachedProduct struct {
	product models.Product
	expires time.Time
}

func NewProductCache() *ProductCache {
	return &ProductCache{
		items: make(map[string]cachedProduct),
	}
}

func (c *ProductCache) get(id string) (models.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cached, ok := c.items[id]
	if !ok || time.Now().After(cached.expires) {
		return models.Product{}, false
	}
	return cached.product, true
}

func (c *ProductCache) put(p models.Product) {
	c.mu.Lock()
	c.items[p.ID] = cachedProduct{product: p, expires: time.Now().Add(productCacheTTL)}
	c.mu.Unlock()
}

// evictExpired drops stale entries and returns how many were removed
func (c *ProductCache) evictExpired(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, cached := range c.items {
		if now.After(cached.expires) {
			delete(c.items, id)
			n++
		}
	}
	return n
}

// ProductFilter narrows ListProducts
type ProductFilter struct {
	CategoryID string
	ProducerID string
	Search     string
	Limit      int
	Offset     int
}

// ProductService handles catalog operations
type ProductService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
	cache   *ProductCache
}

// NewProductService creates a new product service
func NewProductService(db *db.DB, metrics *metrics.AppMetrics) *ProductService {
	return &ProductService{
		db:      db,
		metrics: metrics,
		cache:   NewProductCache(),
	}
}

// RunCacheJanitor evicts expired products every interval until ctx is done
func (s *ProductService) RunCacheJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.cache.evictExpired(now); n > 0 {
				log.Printf("[CACHE] Evicted %d expired products", n)
			}
		}
	}
}

const productColumns = `id, name, name_rw, description, price, category_id, producer_id, image_url,
	COALESCE(stock_quantity, 0), COALESCE(in_stock, TRUE), COALESCE(is_approved, FALSE), created_at`

func scanProduct(row interface{ Scan(...any) error }, p *models.Product) error {
	return row.Scan(&p.ID, &p.Name, &p.NameRw, &p.Description, &p.Price, &p.CategoryID, &p.ProducerID,
		&p.ImageURL, &p.StockQuantity, &p.InStock, &p.IsApproved, &p.CreatedAt)
}

// ListProducts returns a page of products matching filter
func (s *ProductService) ListProducts(ctx context.Context, filter ProductFilter) ([]models.Product, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var where []string
	var args []any
	if filter.CategoryID != "" {
		where = append(where, "category_id = ?")
		args = append(args, filter.CategoryID)
	}
	if filter.ProducerID != "" {
		where = append(where, "producer_id = ?")
		args = append(args, filter.ProducerID)
	}
	if filter.Search != "" {
		where = append(where, "(name LIKE ? OR name_rw LIKE ? OR description LIKE ?)")
		like := "%" + filter.Search + "%"
		args = append(args, like, like, like)
	}

	query := "SELECT " + productColumns + " FROM products"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	s.metrics.RecordDBQuery(ctx, "SELECT", "products", query, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		var p models.Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// GetProduct returns a product by ID, served from cache when fresh
func (s *ProductService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	if p, ok := s.cache.get(id); ok {
		s.metrics.RecordCache(ctx, "product", true)
		s.recordView(ctx, &p)
		return &p, nil
	}
	s.metrics.RecordCache(ctx, "product", false)

	start := time.Now()
	query := "SELECT " + productColumns + " FROM products WHERE id = ?"
	var p models.Product
	err := scanProduct(s.db.QueryRowContext(ctx, query, id), &p)
	s.metrics.RecordDBQuery(ctx, "SELECT", "products", query, start, err == nil || err == sql.ErrNoRows)
	if err == sql.ErrNoRows {
		return nil, userError(ErrNotFound, "Product not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	s.cache.put(p)
	s.recordView(ctx, &p)
	return &p, nil
}

func (s *ProductService) recordView(ctx context.Context, p *models.Product) {
	category := ""
	if p.CategoryID != nil {
		category = *p.CategoryID
	}
	s.metrics.ProductsViewed.Add(ctx, 1, metric.WithAttributes(s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.String("product_id", p.ID),
		attribute.String("product_category", category),
	})...))
}

// CreateProduct lists a new product for producerID
func (s *ProductService) CreateProduct(ctx context.Context, producerID string, req models.CreateProductRequest) (*models.Product, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, userError(ErrValidation, "Name is required")
	}
	if !req.Price.IsPositive() {
		return nil, userError(ErrValidation, "Price must be greater than zero")
	}
	if req.StockQuantity < 0 {
		return nil, userError(ErrValidation, "Stock quantity cannot be negative")
	}
	nameRw := req.NameRw
	if nameRw == "" {
		nameRw = req.Name
	}

	p := models.Product{
		ID:            uuid.NewString(),
		Name:          strings.TrimSpace(req.Name),
		NameRw:        nameRw,
		Description:   req.Description,
		Price:         req.Price.Round(2),
		CategoryID:    req.CategoryID,
		ProducerID:    &producerID,
		ImageURL:      req.ImageURL,
		StockQuantity: req.StockQuantity,
		InStock:       req.StockQuantity > 0,
		CreatedAt:     time.Now().UTC(),
	}

	start := time.Now()
	query := `INSERT INTO products (id, name, name_rw, description, price, category_id, producer_id, image_url, stock_quantity, in_stock, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, p.ID, p.Name, p.NameRw, p.Description, p.Price, p.CategoryID, producerID,
		p.ImageURL, p.StockQuantity, p.InStock, p.CreatedAt)
	s.metrics.RecordDBQuery(ctx, "INSERT", "products", query, start, err == nil)
	if err != nil {
		if db.IsMissingReference(err) {
			return nil, userError(ErrValidation, "Unknown category")
		}
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return &p, nil
}

// ListCategories returns all categories by name
func (s *ProductService) ListCategories(ctx context.Context) ([]models.Category, error) {
	start := time.Now()
	query := "SELECT id, name, name_rw, description, image_url, created_at FROM categories ORDER BY name"
	rows, err := s.db.QueryContext(ctx, query)
	s.metrics.RecordDBQuery(ctx, "SELECT", "categories", query, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.NameRw, &c.Description, &c.ImageURL, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}
