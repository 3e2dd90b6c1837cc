package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/nyambika/marketplace/internal/cache"
	"github.com/nyambika/marketplace/internal/db"
	"github.com/nyambika/marketplace/internal/events"
	"github.com/nyambika/marketplace/internal/metrics"
	"github.com/nyambika/marketplace/internal/models"
)

const (
	BillingMonthly = "monthly"
	BillingAnnual  = "annual"
)

// SubscriptionService handles producer plans and subscriptions
type SubscriptionService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
	cache   *cache.Cache
	events  *events.Bus
	now     func() time.Time
}

// NewSubscriptionService creates a new subscription service
func NewSubscriptionService(db *db.DB, metrics *metrics.AppMetrics, cache *cache.Cache, bus *events.Bus) *SubscriptionService {
	return &SubscriptionService{
		db:      db,
		metrics: metrics,
		cache:   cache,
		events:  bus,
		now:     time.Now,
	}
}

// Status reports whether the producer currently has an active, unexpired subscription
func (s *SubscriptionService) Status(ctx context.Context, userID string) (*models.SubscriptionStatus, error) {
	key := fmt.Sprintf(cache.KeySubscriptionStatus, userID)
	if raw, err := s.cache.Get(ctx, key); err == nil {
		var st models.SubscriptionStatus
		if json.Unmarshal([]byte(raw), &st) == nil {
			s.metrics.RecordCache(ctx, "subscription_status", true)
			return &st, nil
		}
	}
	s.metrics.RecordCache(ctx, "subscription_status", false)

	start := time.Now()
	query := `SELECT id, plan_id, status, end_date FROM subscriptions
		WHERE user_id = ? AND status = 'active'
		ORDER BY end_date DESC LIMIT 1`
	var id, planID, status string
	var endDate time.Time
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&id, &planID, &status, &endDate)
	s.metrics.RecordDBQuery(ctx, "SELECT", "subscriptions", query, start, err == nil || err == sql.ErrNoRows)

	var st models.SubscriptionStatus
	switch {
	case err == sql.ErrNoRows:
		st = models.SubscriptionStatus{HasActiveSubscription: false, Message: "No active subscription found"}
	case err != nil:
		return nil, fmt.Errorf("failed to get subscription status: %w", err)
	case endDate.Before(s.now()):
		st = models.SubscriptionStatus{
			HasActiveSubscription: false,
			SubscriptionID:        id,
			Status:                "expired",
			ExpiresAt:             &endDate,
			Message:               "Subscription has expired",
		}
	default:
		st = models.SubscriptionStatus{
			HasActiveSubscription: true,
			SubscriptionID:        id,
			Status:                status,
			ExpiresAt:             &endDate,
			PlanID:                planID,
		}
	}

	if b, err := json.Marshal(st); err == nil {
		if err := s.cache.Set(ctx, key, b, cache.TTLSubscriptionStatus); err != nil {
			log.Printf("[SUBSCRIPTION] Could not cache status: %v", err)
		}
	}
	return &st, nil
}

// HasActive reports whether the producer's store is visible
func (s *SubscriptionService) HasActive(ctx context.Context, producerID string) (bool, error) {
	st, err := s.Status(ctx, producerID)
	if err != nil {
		return false, err
	}
	return st.HasActiveSubscription, nil
}

// ListPlans returns the active plans, cheapest first
func (s *SubscriptionService) ListPlans(ctx context.Context) ([]models.SubscriptionPlan, error) {
	start := time.Now()
	query := `SELECT id, name, name_rw, description, monthly_price, annual_price, max_products, max_orders, is_active
		FROM subscription_plans WHERE is_active = TRUE ORDER BY monthly_price`
	rows, err := s.db.QueryContext(ctx, query)
	s.metrics.RecordDBQuery(ctx, "SELECT", "subscription_plans", query, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	plans := []models.SubscriptionPlan{}
	for rows.Next() {
		var p models.SubscriptionPlan
		if err := rows.Scan(&p.ID, &p.Name, &p.NameRw, &p.Description, &p.MonthlyPrice, &p.AnnualPrice, &p.MaxProducts, &p.MaxOrders, &p.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

// Subscribe starts a subscription to planID, superseding any active one
func (s *SubscriptionService) Subscribe(ctx context.Context, userID string, req models.CreateSubscriptionRequest) (*models.Subscription, error) {
	now := s.now().UTC().Truncate(time.Second)
	var end time.Time
	switch req.BillingCycle {
	case BillingMonthly, "":
		req.BillingCycle = BillingMonthly
		end = now.AddDate(0, 1, 0)
	case BillingAnnual:
		end = now.AddDate(1, 0, 0)
	default:
		return nil, userError(ErrValidation, "Billing cycle must be monthly or annual")
	}

	sub := &models.Subscription{
		ID:           uuid.NewString(),
		UserID:       userID,
		PlanID:       req.PlanID,
		Status:       "active",
		BillingCycle: req.BillingCycle,
		StartDate:    now,
		EndDate:      end,
		CreatedAt:    now,
	}

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		start := time.Now()
		query := "SELECT monthly_price, annual_price FROM subscription_plans WHERE id = ? AND is_active = TRUE"
		var plan models.SubscriptionPlan
		err := tx.QueryRowContext(ctx, query, req.PlanID).Scan(&plan.MonthlyPrice, &plan.AnnualPrice)
		s.metrics.RecordDBQuery(ctx, "SELECT", "subscription_plans", query, start, err == nil || err == sql.ErrNoRows)
		if err == sql.ErrNoRows {
			return userError(ErrNotFound, "Subscription plan not found")
		}
		if err != nil {
			return fmt.Errorf("failed to get plan: %w", err)
		}
		sub.Amount = plan.MonthlyPrice
		if req.BillingCycle == BillingAnnual {
			sub.Amount = plan.AnnualPrice
		}

		start = time.Now()
		supersede := "UPDATE subscriptions SET status = 'cancelled' WHERE user_id = ? AND status = 'active'"
		_, err = tx.ExecContext(ctx, supersede, userID)
		s.metrics.RecordDBQuery(ctx, "UPDATE", "subscriptions", supersede, start, err == nil)
		if err != nil {
			return fmt.Errorf("failed to supersede subscriptions: %w", err)
		}

		start = time.Now()
		insert := `INSERT INTO subscriptions (id, user_id, plan_id, status, billing_cycle, start_date, end_date, amount, payment_method, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		_, err = tx.ExecContext(ctx, insert, sub.ID, userID, sub.PlanID, sub.Status, sub.BillingCycle, sub.StartDate, sub.EndDate, sub.Amount, req.PaymentMethod, sub.CreatedAt)
		s.metrics.RecordDBQuery(ctx, "INSERT", "subscriptions", insert, start, err == nil)
		if err != nil {
			return fmt.Errorf("failed to create subscription: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.cache.Del(ctx, fmt.Sprintf(cache.KeySubscriptionStatus, userID)); err != nil {
		log.Printf("[SUBSCRIPTION] Could not invalidate status cache: %v", err)
	}
	s.events.PublishUser(events.EventSubscriptionChanged, userID, map[string]any{
		"subscriptionId": sub.ID,
		"planId":         sub.PlanID,
		"expiresAt":      sub.EndDate,
	})
	log.Printf("[SUBSCRIPTION] user_id=%s subscribed to %s (%s) until %s", userID, sub.PlanID, sub.BillingCycle, sub.EndDate.Format(time.DateOnly))
	return sub, nil
}
