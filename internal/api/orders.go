package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nyambika/marketplace/internal/models"
)

// CreateOrderHandler handles POST /api/orders. A repeated Idempotency-Key
// returns the original order with 200 instead of 201.
func (a *App) CreateOrderHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	order, created, err := a.svc.Orders.CreateOrder(r.Context(), actorFrom(r).UserID, r.Header.Get("Idempotency-Key"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	writeJSON(w, status, order)
}

// ListOrdersHandler handles GET /api/orders
func (a *App) ListOrdersHandler(w http.ResponseWriter, r *http.Request) {
	orders, err := a.svc.Orders.ListCustomerOrders(r.Context(), actorFrom(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetOrderHandler handles GET /api/orders/{id}
func (a *App) GetOrderHandler(w http.ResponseWriter, r *http.Request) {
	order, err := a.svc.Orders.GetOrder(r.Context(), actorFrom(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// UpdateOrderHandler handles PUT /api/orders/{id} and /api/orders/{id}/status
func (a *App) UpdateOrderHandler(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	order, err := a.svc.Orders.UpdateOrder(r.Context(), actorFrom(r), mux.Vars(r)["id"], req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// CancelOrderHandler handles DELETE /api/orders/{id}
func (a *App) CancelOrderHandler(w http.ResponseWriter, r *http.Request) {
	order, err := a.svc.Orders.CancelOrder(r.Context(), actorFrom(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Order cancelled successfully", "order": order})
}

// UpdateValidationStatusHandler handles PUT /api/orders/{id}/validation-status
func (a *App) UpdateValidationStatusHandler(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateValidationStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	order, err := a.svc.Orders.UpdateValidationStatus(r.Context(), actorFrom(r), mux.Vars(r)["id"], req.ValidationStatus)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// ListProducerOrdersHandler handles GET /api/producer/orders
func (a *App) ListProducerOrdersHandler(w http.ResponseWriter, r *http.Request) {
	orders, err := a.svc.Orders.ListProducerOrders(r.Context(), actorFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// ProducerStatsHandler handles GET /api/producer/stats
func (a *App) ProducerStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := a.svc.Orders.ProducerStats(r.Context(), actorFrom(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
