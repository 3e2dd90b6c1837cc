package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/crypto/bcrypt"

	"github.com/nyambika/marketplace/internal/auth"
	"github.com/nyambika/marketplace/internal/cache"
	"github.com/nyambika/marketplace/internal/db"
	"github.com/nyambika/marketplace/internal/metrics"
	"github.com/nyambika/marketplace/internal/models"
)

const (
	bcryptCost        = 10
	minPasswordLength = 6
)

// UserService handles accounts and authentication
type UserService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
	cache   *cache.Cache
	tokens  *auth.Issuer
}

// NewUserService creates a new user service
func NewUserService(db *db.DB, metrics *metrics.AppMetrics, cache *cache.Cache, tokens *auth.Issuer) *UserService {
	return &UserService{
		db:      db,
		metrics: metrics,
		cache:   cache,
		tokens:  tokens,
	}
}

// Register creates an account and returns it with a session token
func (s *UserService) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, userError(ErrValidation, "A valid email is required")
	}
	if len(req.Password) < minPasswordLength {
		return nil, userError(ErrValidation, fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, userError(ErrValidation, "Name is required")
	}
	role := req.Role
	switch role {
	case "":
		role = models.RoleCustomer
	case models.RoleCustomer, models.RoleProducer, models.RoleAgent:
	default:
		return nil, userError(ErrValidation, "Invalid role")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		Role:         role,
		Phone:        req.Phone,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}

	start := time.Now()
	query := "INSERT INTO users (id, email, password, full_name, phone, role, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)"
	_, err = s.db.ExecContext(ctx, query, user.ID, user.Email, user.PasswordHash, user.Name, user.Phone, user.Role, user.CreatedAt)
	s.metrics.RecordDBQuery(ctx, "INSERT", "users", query, start, err == nil)
	if err != nil {
		if db.IsDuplicate(err) {
			return nil, userError(ErrValidation, "User already exists")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	token, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	log.Printf("[AUTH] Registered user_id=%s role=%s", user.ID, user.Role)
	return &models.AuthResponse{User: user, Token: token}, nil
}

// Login checks credentials and returns a session token
func (s *UserService) Login(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	user, err := s.findByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, ErrNotFound) {
		s.recordLogin(ctx, false)
		return nil, userError(ErrUnauthorized, "Invalid credentials")
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		s.recordLogin(ctx, false)
		return nil, userError(ErrUnauthorized, "Invalid credentials")
	}

	token, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	s.recordLogin(ctx, true)
	return &models.AuthResponse{User: user, Token: token}, nil
}

func (s *UserService) recordLogin(ctx context.Context, ok bool) {
	result := "success"
	if !ok {
		result = "invalid_credentials"
	}
	s.metrics.LoginsTotal.Add(ctx, 1, metric.WithAttributes(s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.String("result", result),
	})...))
}

// GetUser returns the user with their company name when they are a producer
func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	start := time.Now()
	query := `SELECT u.id, u.email, u.password, COALESCE(u.full_name, ''), u.phone, u.role, u.created_at, c.id, c.name
		FROM users u LEFT JOIN companies c ON c.producer_id = u.id
		WHERE u.id = ?`
	var u models.User
	err := s.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Phone, &u.Role, &u.CreatedAt, &u.BusinessID, &u.BusinessName)
	s.metrics.RecordDBQuery(ctx, "SELECT", "users", query, start, err == nil || err == sql.ErrNoRows)
	if err == sql.ErrNoRows {
		return nil, userError(ErrNotFound, "User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

func (s *UserService) findByEmail(ctx context.Context, email string) (*models.User, error) {
	start := time.Now()
	query := "SELECT id, email, password, COALESCE(full_name, ''), phone, role, created_at FROM users WHERE email = ?"
	var u models.User
	err := s.db.QueryRowContext(ctx, query, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Phone, &u.Role, &u.CreatedAt)
	s.metrics.RecordDBQuery(ctx, "SELECT", "users", query, start, err == nil || err == sql.ErrNoRows)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &u, nil
}

// ChangePassword replaces the password after checking the current one
func (s *UserService) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error {
	if len(req.NewPassword) < minPasswordLength {
		return userError(ErrValidation, fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
	}
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)) != nil {
		return userError(ErrValidation, "Current password is incorrect")
	}
	return s.setPassword(ctx, userID, req.NewPassword)
}

func (s *UserService) setPassword(ctx context.Context, userID, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	start := time.Now()
	query := "UPDATE users SET password = ? WHERE id = ?"
	_, err = s.db.ExecContext(ctx, query, string(hash), userID)
	s.metrics.RecordDBQuery(ctx, "UPDATE", "users", query, start, err == nil)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// RequestPasswordReset stores a one-hour reset token for the account, if any.
// It never reports whether the email exists. The token is logged, not mailed.
func (s *UserService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.findByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !s.cache.Enabled() {
		log.Printf("[AUTH] Password reset requested for user_id=%s but no cache is configured", user.ID)
		return nil
	}
	token := uuid.NewString()
	if err := s.cache.Set(ctx, fmt.Sprintf(cache.KeyPasswordReset, token), user.ID, cache.TTLPasswordReset); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}
	log.Printf("[AUTH] Password reset token issued for user_id=%s token=%s", user.ID, token)
	return nil
}

// ResetPassword consumes a reset token and sets a new password
func (s *UserService) ResetPassword(ctx context.Context, token, password string) error {
	if len(password) < minPasswordLength {
		return userError(ErrValidation, fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
	}
	userID, err := s.cache.GetDel(ctx, fmt.Sprintf(cache.KeyPasswordReset, token))
	if errors.Is(err, cache.ErrMiss) || errors.Is(err, cache.ErrDisabled) {
		return userError(ErrValidation, "Invalid or expired reset token")
	}
	if err != nil {
		return err
	}
	return s.setPassword(ctx, userID, password)
}
