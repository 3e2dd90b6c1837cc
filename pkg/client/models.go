package client

import (
	"time"

	"github.com/shopspring/decimal"
)

// Roles
const (
	RoleCustomer = "customer"
	RoleProducer = "producer"
	RoleAdmin    = "admin"
	RoleAgent    = "agent"
)

// User is the authenticated account held by a SessionStore
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	Phone        *string   `json:"phone,omitempty"`
	BusinessName *string   `json:"businessName,omitempty"`
	BusinessID   *string   `json:"business_id,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// IsProducer reports whether the user sells on the marketplace
func (u *User) IsProducer() bool {
	return u != nil && u.Role == RoleProducer
}

type authResponse struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

// RegisterRequest is the body of POST /api/auth/register
type RegisterRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Name     string  `json:"name"`
	Role     string  `json:"role"`
	Phone    *string `json:"phone,omitempty"`
}

// OrderItem is one line of an order
type OrderItem struct {
	ID         string          `json:"id"`
	ProductID  string          `json:"productId"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Size       *string         `json:"size,omitempty"`
	Color      *string         `json:"color,omitempty"`
	Name       string          `json:"name,omitempty"`
	ProducerID *string         `json:"producerId,omitempty"`
}

// Order is the client's cached view of a server order
type Order struct {
	ID               string          `json:"id"`
	CustomerID       string          `json:"customerId"`
	Total            decimal.Decimal `json:"total"`
	Shipping         decimal.Decimal `json:"shipping"`
	Status           string          `json:"status"`
	ValidationStatus string          `json:"validationStatus"`
	PaymentMethod    string          `json:"paymentMethod"`
	PaymentStatus    string          `json:"paymentStatus"`
	ShippingAddress  string          `json:"shippingAddress"`
	TrackingNumber   *string         `json:"trackingNumber,omitempty"`
	Notes            *string         `json:"notes,omitempty"`
	Items            []OrderItem     `json:"items"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// OrderLine is one line of a checkout submission
type OrderLine struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Size      *string         `json:"size,omitempty"`
	Color     *string         `json:"color,omitempty"`
}

// CreateOrderRequest is the body of POST /api/orders
type CreateOrderRequest struct {
	Items           []OrderLine     `json:"items"`
	Total           decimal.Decimal `json:"total"`
	Shipping        decimal.Decimal `json:"shipping"`
	PaymentMethod   string          `json:"paymentMethod,omitempty"`
	ShippingAddress string          `json:"shippingAddress"`
	Notes           *string         `json:"notes,omitempty"`
}

// ProducerStats is the body of GET /api/producer/stats
type ProducerStats struct {
	TotalOrders        int             `json:"totalOrders"`
	ByValidationStatus map[string]int  `json:"byValidationStatus"`
	Revenue            decimal.Decimal `json:"revenue"`
}

// Company is a producer's storefront
type Company struct {
	ID         string    `json:"id"`
	ProducerID string    `json:"producerId"`
	TIN        *string   `json:"tin,omitempty"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	Location   string    `json:"location"`
	LogoURL    *string   `json:"logoUrl,omitempty"`
	WebsiteURL *string   `json:"websiteUrl,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// CompanyInput is the body of company create and update; nil fields are left alone
type CompanyInput struct {
	TIN        *string `json:"tin,omitempty"`
	Name       *string `json:"name,omitempty"`
	Email      *string `json:"email,omitempty"`
	Phone      *string `json:"phone,omitempty"`
	Location   *string `json:"location,omitempty"`
	LogoURL    *string `json:"logoUrl,omitempty"`
	WebsiteURL *string `json:"websiteUrl,omitempty"`
}

// Wallet is a read-only balance view
type Wallet struct {
	ID      string          `json:"id"`
	Balance decimal.Decimal `json:"balance"`
	Status  string          `json:"status"`
}

// SubscriptionStatus gates producer-only features
type SubscriptionStatus struct {
	HasActiveSubscription bool       `json:"hasActiveSubscription"`
	SubscriptionID        string     `json:"subscriptionId,omitempty"`
	Status                string     `json:"status,omitempty"`
	ExpiresAt             *time.Time `json:"expiresAt,omitempty"`
	PlanID                string     `json:"planId,omitempty"`
	Message               string     `json:"message,omitempty"`
}
