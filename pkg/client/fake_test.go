package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

// fakeBackend is an in-memory stand-in for the marketplace API
type fakeBackend struct {
	srv *httptest.Server

	mu        sync.Mutex
	hits      map[string]int
	hooks     map[string]http.HandlerFunc
	accounts  map[string]fakeAccount
	orders    []Order
	idem      map[string]string
	companies map[string]*Company
	wallet    Wallet
	sub       SubscriptionStatus
}

type fakeAccount struct {
	password string
	user     User
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	f := &fakeBackend{
		hits:      make(map[string]int),
		hooks:     make(map[string]http.HandlerFunc),
		idem:      make(map[string]string),
		companies: make(map[string]*Company),
		wallet:    Wallet{ID: "w1", Balance: decimal.NewFromInt(12500), Status: "active"},
		accounts: map[string]fakeAccount{
			"customer@demo.com": {password: "password", user: User{ID: "u-customer", Email: "customer@demo.com", Name: "Demo Customer", Role: RoleCustomer}},
			"producer@demo.com": {password: "password", user: User{ID: "u-producer", Email: "producer@demo.com", Name: "Demo Producer", Role: RoleProducer}},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", f.login)
	mux.HandleFunc("POST /api/auth/register", f.register)
	mux.HandleFunc("GET /api/auth/me", f.authed(func(w http.ResponseWriter, r *http.Request, u User) {
		writeTestJSON(w, http.StatusOK, u)
	}))
	mux.HandleFunc("POST /api/auth/forgot-password", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusOK, map[string]string{"message": "sent"})
	})
	mux.HandleFunc("PUT /api/auth/change-password", f.authed(func(w http.ResponseWriter, r *http.Request, u User) {
		writeTestJSON(w, http.StatusOK, map[string]string{"message": "Password updated successfully"})
	}))
	mux.HandleFunc("GET /api/orders", f.authed(f.listOrders))
	mux.HandleFunc("POST /api/orders", f.authed(f.createOrder))
	mux.HandleFunc("DELETE /api/orders/{id}", f.authed(f.cancelOrder))
	mux.HandleFunc("PUT /api/orders/{id}/validation-status", f.authed(f.updateValidation))
	mux.HandleFunc("GET /api/producer/orders", f.authed(f.producerOrders))
	mux.HandleFunc("GET /api/producer/stats", f.authed(func(w http.ResponseWriter, r *http.Request, u User) {
		f.mu.Lock()
		n := len(f.orders)
		f.mu.Unlock()
		writeTestJSON(w, http.StatusOK, ProducerStats{TotalOrders: n})
	}))
	mux.HandleFunc("GET /api/companies/me", f.authed(f.myCompany))
	mux.HandleFunc("POST /api/companies", f.authed(f.createCompany))
	mux.HandleFunc("GET /api/wallet", f.authed(func(w http.ResponseWriter, r *http.Request, u User) {
		f.mu.Lock()
		wallet := f.wallet
		f.mu.Unlock()
		writeTestJSON(w, http.StatusOK, wallet)
	}))
	mux.HandleFunc("GET /api/producer/subscription-status", f.authed(func(w http.ResponseWriter, r *http.Request, u User) {
		f.mu.Lock()
		st := f.sub
		f.mu.Unlock()
		writeTestJSON(w, http.StatusOK, st)
	}))

	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		f.mu.Lock()
		f.hits[key]++
		hook := f.hooks[key]
		f.mu.Unlock()
		if hook != nil {
			hook(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeBackend) URL() string { return f.srv.URL }

func (f *fakeBackend) hit(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[key]
}

func (f *fakeBackend) hook(key string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks[key] = h
}

func (f *fakeBackend) setSubscription(st SubscriptionStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sub = st
}

func (f *fakeBackend) seedOrder(o Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, o)
}

func (f *fakeBackend) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

func tokenFor(userID string) string { return "tok-" + userID }

func (f *fakeBackend) authed(h func(http.ResponseWriter, *http.Request, User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		f.mu.Lock()
		var (
			user  User
			found bool
		)
		for _, acc := range f.accounts {
			if tokenFor(acc.user.ID) == token {
				user, found = acc.user, true
			}
		}
		f.mu.Unlock()
		if !found {
			writeTestJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid token"})
			return
		}
		h(w, r, user)
	}
}

func (f *fakeBackend) login(w http.ResponseWriter, r *http.Request) {
	var req struct{ Email, Password string }
	_ = json.NewDecoder(r.Body).Decode(&req)
	f.mu.Lock()
	acc, ok := f.accounts[req.Email]
	f.mu.Unlock()
	if !ok || acc.password != req.Password {
		writeTestJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
		return
	}
	writeTestJSON(w, http.StatusOK, authResponse{User: &acc.user, Token: tokenFor(acc.user.ID)})
}

func (f *fakeBackend) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.accounts[req.Email]; exists {
		writeTestJSON(w, http.StatusBadRequest, map[string]string{"message": "User already exists"})
		return
	}
	u := User{ID: fmt.Sprintf("u-%d", len(f.accounts)+1), Email: req.Email, Name: req.Name, Role: req.Role}
	f.accounts[req.Email] = fakeAccount{password: req.Password, user: u}
	writeTestJSON(w, http.StatusCreated, authResponse{User: &u, Token: tokenFor(u.ID)})
}

func (f *fakeBackend) listOrders(w http.ResponseWriter, r *http.Request, u User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []Order{}
	for _, o := range f.orders {
		if o.CustomerID == u.ID {
			out = append(out, o)
		}
	}
	writeTestJSON(w, http.StatusOK, out)
}

func (f *fakeBackend) producerOrders(w http.ResponseWriter, r *http.Request, u User) {
	if u.Role != RoleProducer && u.Role != RoleAdmin {
		writeTestJSON(w, http.StatusForbidden, map[string]string{"message": "Insufficient permissions"})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	writeTestJSON(w, http.StatusOK, append([]Order{}, f.orders...))
}

func (f *fakeBackend) createOrder(w http.ResponseWriter, r *http.Request, u User) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeTestJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
		return
	}
	sum := req.Shipping
	for _, it := range req.Items {
		sum = sum.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	if !req.Total.Equal(sum) {
		writeTestJSON(w, http.StatusBadRequest, map[string]string{"message": "Order total does not match items and shipping"})
		return
	}
	key := r.Header.Get("Idempotency-Key")

	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.idem[u.ID+"/"+key]; ok && key != "" {
		for _, o := range f.orders {
			if o.ID == id {
				writeTestJSON(w, http.StatusOK, o)
				return
			}
		}
	}
	o := Order{
		ID:               fmt.Sprintf("o%d", len(f.orders)+1),
		CustomerID:       u.ID,
		Total:            req.Total,
		Shipping:         req.Shipping,
		Status:           "pending",
		ValidationStatus: "pending",
		ShippingAddress:  req.ShippingAddress,
	}
	for _, it := range req.Items {
		o.Items = append(o.Items, OrderItem{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price})
	}
	f.orders = append(f.orders, o)
	if key != "" {
		f.idem[u.ID+"/"+key] = o.ID
	}
	writeTestJSON(w, http.StatusCreated, o)
}

func (f *fakeBackend) updateValidation(w http.ResponseWriter, r *http.Request, u User) {
	var req struct {
		ValidationStatus string `json:"validationStatus"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.orders {
		if f.orders[i].ID == r.PathValue("id") {
			f.orders[i].ValidationStatus = req.ValidationStatus
			writeTestJSON(w, http.StatusOK, f.orders[i])
			return
		}
	}
	writeTestJSON(w, http.StatusNotFound, map[string]string{"message": "Order not found"})
}

func (f *fakeBackend) cancelOrder(w http.ResponseWriter, r *http.Request, u User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.orders {
		if f.orders[i].ID == r.PathValue("id") {
			if f.orders[i].Status != "pending" {
				writeTestJSON(w, http.StatusConflict, map[string]string{"message": "Only pending orders can be cancelled."})
				return
			}
			f.orders[i].Status = "cancelled"
			writeTestJSON(w, http.StatusOK, map[string]any{"message": "Order cancelled successfully", "order": f.orders[i]})
			return
		}
	}
	writeTestJSON(w, http.StatusNotFound, map[string]string{"message": "Order not found"})
}

func (f *fakeBackend) myCompany(w http.ResponseWriter, r *http.Request, u User) {
	f.mu.Lock()
	c := f.companies[u.ID]
	f.mu.Unlock()
	if c == nil {
		writeTestJSON(w, http.StatusNotFound, map[string]string{"message": "Company not found"})
		return
	}
	writeTestJSON(w, http.StatusOK, c)
}

func (f *fakeBackend) createCompany(w http.ResponseWriter, r *http.Request, u User) {
	var in CompanyInput
	_ = json.NewDecoder(r.Body).Decode(&in)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.companies[u.ID] != nil {
		writeTestJSON(w, http.StatusConflict, map[string]string{"message": "Company already exists. Use update instead."})
		return
	}
	c := &Company{ID: "c1", ProducerID: u.ID}
	if in.Name != nil {
		c.Name = *in.Name
	}
	f.companies[u.ID] = c
	writeTestJSON(w, http.StatusCreated, c)
}

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// newTestClient returns a client for f whose token store holds token
func newTestClient(f *fakeBackend, token string, mw ...Middleware) (*Client, *MemoryTokenStore) {
	tokens := NewMemoryTokenStore()
	_ = tokens.SetToken(token)
	mw = append(mw, BearerAuth(tokens))
	return New(f.URL(), WithMiddleware(mw...)), tokens
}
