package models

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

// Validation statuses, in the only order they may advance
const (
	ValidationPending             = "pending"
	ValidationInProgress          = "in_progress"
	ValidationDone                = "done"
	ValidationConfirmedByCustomer = "confirmed_by_customer"
)

// User represents a user account
type User struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	Name         string    `json:"name" db:"full_name"`
	Role         string    `json:"role" db:"role"`
	Phone        *string   `json:"phone,omitempty" db:"phone"`
	PasswordHash string    `json:"-" db:"password"`
	BusinessName *string   `json:"businessName,omitempty"`
	BusinessID   *string   `json:"business_id,omitempty"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// Category represents a product category
type Category struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	NameRw      string    `json:"nameRw" db:"name_rw"`
	Description *string   `json:"description,omitempty" db:"description"`
	ImageURL    *string   `json:"imageUrl,omitempty" db:"image_url"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// Product represents a product in the catalog
type Product struct {
	ID            string          `json:"id" db:"id"`
	Name          string          `json:"name" db:"name"`
	NameRw        string          `json:"nameRw" db:"name_rw"`
	Description   string          `json:"description" db:"description"`
	Price         decimal.Decimal `json:"price" db:"price"`
	CategoryID    *string         `json:"categoryId,omitempty" db:"category_id"`
	ProducerID    *string         `json:"producerId,omitempty" db:"producer_id"`
	ImageURL      string          `json:"imageUrl" db:"image_url"`
	StockQuantity int             `json:"stockQuantity" db:"stock_quantity"`
	InStock       bool            `json:"inStock" db:"in_stock"`
	IsApproved    bool            `json:"isApproved" db:"is_approved"`
	CreatedAt     time.Time       `json:"createdAt" db:"created_at"`
}

// CartItem represents a server-side cart line
type CartItem struct {
	ID        string          `json:"id" db:"id"`
	UserID    string          `json:"userId" db:"user_id"`
	ProductID string          `json:"productId" db:"product_id"`
	Quantity  int             `json:"quantity" db:"quantity"`
	Size      *string         `json:"size,omitempty" db:"size"`
	Color     *string         `json:"color,omitempty" db:"color"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time       `json:"createdAt" db:"created_at"`
}

// Order represents an order
type Order struct {
	ID               string          `json:"id" db:"id"`
	CustomerID       string          `json:"customerId" db:"customer_id"`
	Total            decimal.Decimal `json:"total" db:"total"`
	Shipping         decimal.Decimal `json:"shipping" db:"shipping"`
	Status           string          `json:"status" db:"status"`
	ValidationStatus string          `json:"validationStatus" db:"validation_status"`
	PaymentMethod    string          `json:"paymentMethod" db:"payment_method"`
	PaymentStatus    string          `json:"paymentStatus" db:"payment_status"`
	ShippingAddress  string          `json:"shippingAddress" db:"shipping_address"`
	TrackingNumber   *string         `json:"trackingNumber,omitempty" db:"tracking_number"`
	Notes            *string         `json:"notes,omitempty" db:"notes"`
	Items            []OrderItem     `json:"items"`
	CreatedAt        time.Time       `json:"createdAt" db:"created_at"`
}

// OrderItem represents an item in an order
type OrderItem struct {
	ID          string          `json:"id" db:"id"`
	OrderID     string          `json:"orderId" db:"order_id"`
	ProductID   string          `json:"productId" db:"product_id"`
	Quantity    int             `json:"quantity" db:"quantity"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Size        *string         `json:"size,omitempty" db:"size"`
	Color       *string         `json:"color,omitempty" db:"color"`
	ProductName string          `json:"name,omitempty"`
	ProducerID  *string         `json:"producerId,omitempty"`
}

// Company represents a producer's storefront
type Company struct {
	ID         string    `json:"id" db:"id"`
	ProducerID string    `json:"producerId" db:"producer_id"`
	TIN        *string   `json:"tin,omitempty" db:"tin"`
	Name       string    `json:"name" db:"name"`
	Email      string    `json:"email" db:"email"`
	Phone      string    `json:"phone" db:"phone"`
	Location   string    `json:"location" db:"location"`
	LogoURL    *string   `json:"logoUrl,omitempty" db:"logo_url"`
	WebsiteURL *string   `json:"websiteUrl,omitempty" db:"website_url"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// Wallet represents a user wallet
type Wallet struct {
	ID        string          `json:"id" db:"id"`
	UserID    string          `json:"-" db:"user_id"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	Status    string          `json:"status" db:"status"`
	CreatedAt time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time       `json:"updatedAt" db:"updated_at"`
}

// SubscriptionPlan represents a producer subscription plan
type SubscriptionPlan struct {
	ID           string          `json:"id" db:"id"`
	Name         string          `json:"name" db:"name"`
	NameRw       string          `json:"nameRw" db:"name_rw"`
	Description  string          `json:"description" db:"description"`
	MonthlyPrice decimal.Decimal `json:"monthlyPrice" db:"monthly_price"`
	AnnualPrice  decimal.Decimal `json:"annualPrice" db:"annual_price"`
	MaxProducts  int             `json:"maxProducts" db:"max_products"`
	MaxOrders    int             `json:"maxOrders" db:"max_orders"`
	IsActive     bool            `json:"isActive" db:"is_active"`
}

// Subscription represents a producer subscription
type Subscription struct {
	ID           string          `json:"id" db:"id"`
	UserID       string          `json:"userId" db:"user_id"`
	PlanID       string          `json:"planId" db:"plan_id"`
	Status       string          `json:"status" db:"status"`
	BillingCycle string          `json:"billingCycle" db:"billing_cycle"`
	StartDate    time.Time       `json:"startDate" db:"start_date"`
	EndDate      time.Time       `json:"endDate" db:"end_date"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	CreatedAt    time.Time       `json:"createdAt" db:"created_at"`
}

// SubscriptionStatus is the producer-facing view of the current subscription
type SubscriptionStatus struct {
	HasActiveSubscription bool       `json:"hasActiveSubscription"`
	SubscriptionID        string     `json:"subscriptionId,omitempty"`
	Status                string     `json:"status,omitempty"`
	ExpiresAt             *time.Time `json:"expiresAt,omitempty"`
	PlanID                string     `json:"planId,omitempty"`
	Message               string     `json:"message,omitempty"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Name     string  `json:"name"`
	Role     string  `json:"role"`
	Phone    *string `json:"phone,omitempty"`
}

// AuthResponse is returned by login and register
type AuthResponse struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

// ChangePasswordRequest represents a password change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// AddToCartRequest represents a request to add item to cart
type AddToCartRequest struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	Size      *string `json:"size,omitempty"`
	Color     *string `json:"color,omitempty"`
}

// CreateOrderItem is one line of a checkout request
type CreateOrderItem struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Size      *string         `json:"size,omitempty"`
	Color     *string         `json:"color,omitempty"`
}

// CreateOrderRequest represents a checkout submission
type CreateOrderRequest struct {
	Items           []CreateOrderItem `json:"items"`
	Total           decimal.Decimal   `json:"total"`
	Shipping        decimal.Decimal   `json:"shipping"`
	PaymentMethod   string            `json:"paymentMethod"`
	ShippingAddress string            `json:"shippingAddress"`
	Notes           *string           `json:"notes,omitempty"`
}

// CompanyInput is the body of company create and update
type CompanyInput struct {
	TIN        *string `json:"tin,omitempty"`
	Name       *string `json:"name,omitempty"`
	Email      *string `json:"email,omitempty"`
	Phone      *string `json:"phone,omitempty"`
	Location   *string `json:"location,omitempty"`
	LogoURL    *string `json:"logoUrl,omitempty"`
	WebsiteURL *string `json:"websiteUrl,omitempty"`
}

// CreateProductRequest represents a producer listing a product
type CreateProductRequest struct {
	Name          string          `json:"name"`
	NameRw        string          `json:"nameRw"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	CategoryID    *string         `json:"categoryId,omitempty"`
	ImageURL      string          `json:"imageUrl"`
	StockQuantity int             `json:"stockQuantity"`
}

// CreateSubscriptionRequest represents a producer buying a plan
type CreateSubscriptionRequest struct {
	PlanID        string `json:"planId"`
	BillingCycle  string `json:"billingCycle"`
	PaymentMethod string `json:"paymentMethod"`
}

// UpdateOrderRequest updates fulfilment fields of an order
type UpdateOrderRequest struct {
	Status         string  `json:"status,omitempty"`
	TrackingNumber *string `json:"trackingNumber,omitempty"`
	Notes          *string `json:"notes,omitempty"`
}

// UpdateValidationStatusRequest moves an order's validation status
type UpdateValidationStatusRequest struct {
	ValidationStatus string `json:"validationStatus"`
}

// ProducerStats summarises a producer's orders
type ProducerStats struct {
	TotalOrders        int             `json:"totalOrders"`
	ByValidationStatus map[string]int  `json:"byValidationStatus"`
	Revenue            decimal.Decimal `json:"revenue"`
}
