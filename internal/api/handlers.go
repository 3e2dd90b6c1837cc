package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/nyambika/marketplace/internal/auth"
	"github.com/nyambika/marketplace/internal/cache"
	"github.com/nyambika/marketplace/internal/db"
	"github.com/nyambika/marketplace/internal/events"
	"github.com/nyambika/marketplace/internal/metrics"
	"github.com/nyambika/marketplace/internal/middleware"
	"github.com/nyambika/marketplace/internal/models"
	"github.com/nyambika/marketplace/internal/services"
	"github.com/nyambika/marketplace/pkg/config"
)

// Services groups the domain services the handlers call
type Services struct {
	Users         *services.UserService
	Products      *services.ProductService
	Cart          *services.CartService
	Orders        *services.OrderService
	Companies     *services.CompanyService
	Wallets       *services.WalletService
	Subscriptions *services.SubscriptionService
}

// App holds application dependencies
type App struct {
	config  *config.Config
	db      *db.DB
	cache   *cache.Cache
	metrics *metrics.AppMetrics
	tokens  *auth.Issuer
	hub     *events.Hub
	svc     Services
	tryOn   http.Handler
}

// NewApp creates a new application instance
func NewApp(cfg *config.Config, database *db.DB, c *cache.Cache, m *metrics.AppMetrics, tokens *auth.Issuer, hub *events.Hub, svc Services) *App {
	return &App{
		config:  cfg,
		db:      database,
		cache:   c,
		metrics: m,
		tokens:  tokens,
		hub:     hub,
		svc:     svc,
		tryOn:   NewTryOnProxy(cfg.TryOnAPIURL),
	}
}

// SetupRoutes configures the HTTP routes
func (a *App) SetupRoutes(r *mux.Router) {
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.CORSMiddleware)
	r.Use(middleware.ErrorHandlerMiddleware)
	r.Use(middleware.MetricsMiddleware(a.metrics))

	r.HandleFunc("/health", a.HealthHandler).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Public
	api.HandleFunc("/auth/login", a.LoginHandler).Methods("POST")
	api.HandleFunc("/auth/register", a.RegisterHandler).Methods("POST")
	api.HandleFunc("/auth/forgot-password", a.ForgotPasswordHandler).Methods("POST")
	api.HandleFunc("/auth/reset-password", a.ResetPasswordHandler).Methods("POST")
	api.HandleFunc("/products", a.ListProductsHandler).Methods("GET")
	api.HandleFunc("/products/{id}", a.GetProductHandler).Methods("GET")
	api.HandleFunc("/categories", a.ListCategoriesHandler).Methods("GET")
	api.HandleFunc("/companies", a.ListCompaniesHandler).Methods("GET")
	api.HandleFunc("/companies/me", a.withAuth(a.GetMyCompanyHandler, models.RoleProducer)).Methods("GET")
	api.HandleFunc("/companies/{id}", a.GetCompanyHandler).Methods("GET")
	api.HandleFunc("/companies/{id}/products", a.GetCompanyProductsHandler).Methods("GET")
	api.HandleFunc("/subscription-plans", a.ListPlansHandler).Methods("GET")
	api.PathPrefix("/tryon/").Handler(a.tryOn)

	// Any signed-in user
	api.HandleFunc("/auth/me", a.withAuth(a.MeHandler)).Methods("GET")
	api.HandleFunc("/auth/change-password", a.withAuth(a.ChangePasswordHandler)).Methods("POST", "PUT")
	api.HandleFunc("/cart", a.withAuth(a.GetCartHandler)).Methods("GET")
	api.HandleFunc("/cart", a.withAuth(a.AddToCartHandler)).Methods("POST")
	api.HandleFunc("/cart", a.withAuth(a.ClearCartHandler)).Methods("DELETE")
	api.HandleFunc("/cart/{id}", a.withAuth(a.UpdateCartItemHandler)).Methods("PUT")
	api.HandleFunc("/cart/{id}", a.withAuth(a.RemoveCartItemHandler)).Methods("DELETE")
	api.HandleFunc("/orders", a.withAuth(a.ListOrdersHandler)).Methods("GET")
	api.HandleFunc("/orders", a.withAuth(a.CreateOrderHandler)).Methods("POST")
	api.HandleFunc("/orders/{id}", a.withAuth(a.GetOrderHandler)).Methods("GET")
	api.HandleFunc("/orders/{id}", a.withAuth(a.UpdateOrderHandler)).Methods("PUT")
	api.HandleFunc("/orders/{id}", a.withAuth(a.CancelOrderHandler)).Methods("DELETE")
	api.HandleFunc("/orders/{id}/status", a.withAuth(a.UpdateOrderHandler)).Methods("PUT")
	api.HandleFunc("/orders/{id}/validation-status", a.withAuth(a.UpdateValidationStatusHandler)).Methods("PUT")
	api.HandleFunc("/wallet", a.withAuth(a.GetWalletHandler)).Methods("GET")
	api.HandleFunc("/events", a.withAuth(a.EventsHandler)).Methods("GET")

	// Producers
	api.HandleFunc("/products", a.withAuth(a.CreateProductHandler, models.RoleProducer)).Methods("POST")
	api.HandleFunc("/producer/orders", a.withAuth(a.ListProducerOrdersHandler, models.RoleProducer)).Methods("GET")
	api.HandleFunc("/producer/stats", a.withAuth(a.ProducerStatsHandler, models.RoleProducer)).Methods("GET")
	api.HandleFunc("/producer/subscription-status", a.withAuth(a.SubscriptionStatusHandler, models.RoleProducer)).Methods("GET")
	api.HandleFunc("/companies", a.withAuth(a.CreateCompanyHandler, models.RoleProducer)).Methods("POST")
	api.HandleFunc("/companies", a.withAuth(a.UpdateCompanyHandler, models.RoleProducer)).Methods("PUT")
	api.HandleFunc("/subscriptions", a.withAuth(a.CreateSubscriptionHandler, models.RoleProducer)).Methods("POST")
}

// withAuth wraps h in bearer auth and, when roles are given, a role guard
func (a *App) withAuth(h http.HandlerFunc, roles ...string) http.HandlerFunc {
	var next http.Handler = h
	if len(roles) > 0 {
		next = middleware.RequireRole(roles...)(next)
	}
	return middleware.Auth(a.tokens)(next).ServeHTTP
}

func actorFrom(r *http.Request) services.Actor {
	c := middleware.ClaimsFrom(r.Context())
	if c == nil {
		return services.Actor{}
	}
	return services.Actor{UserID: c.UserID, Role: c.Role}
}

// HealthHandler reports database and cache reachability
func (a *App) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "healthy"}
	code := http.StatusOK
	if a.db != nil {
		if err := a.db.PingContext(ctx); err != nil {
			status["status"] = "unhealthy"
			status["database"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	if a.cache.Enabled() {
		if err := a.cache.Ping(ctx); err != nil {
			status["cache"] = err.Error()
		}
	}
	writeJSON(w, code, status)
}

// writeJSON encodes v with the given status
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] Failed to encode response: %v", err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteMessage(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// writeError maps service errors to status codes. Only messages from
// services.UserError reach the caller; anything else is logged as a 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := "Internal server error"
	var ue *services.UserError
	if errors.As(err, &ue) {
		msg = ue.Message
	} else if status != http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	if status == http.StatusInternalServerError {
		log.Printf("[API] %s %s failed [%s]: %v", r.Method, r.URL.Path, middleware.RequestID(r.Context()), err)
	}
	middleware.WriteMessage(w, status, msg)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrConflict), errors.Is(err, services.ErrInvalidTransition):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}
