package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nyambika/marketplace/internal/models"
)

// GetCartHandler handles GET /api/cart
func (a *App) GetCartHandler(w http.ResponseWriter, r *http.Request) {
	items, err := a.svc.Cart.GetCart(r.Context(), actorFrom(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// AddToCartHandler handles POST /api/cart
func (a *App) AddToCartHandler(w http.ResponseWriter, r *http.Request) {
	var req models.AddToCartRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	item, err := a.svc.Cart.AddToCart(r.Context(), actorFrom(r).UserID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// UpdateCartItemHandler handles PUT /api/cart/{id}
func (a *App) UpdateCartItemHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.svc.Cart.UpdateQuantity(r.Context(), actorFrom(r).UserID, mux.Vars(r)["id"], req.Quantity); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Cart updated"})
}

// RemoveCartItemHandler handles DELETE /api/cart/{id}
func (a *App) RemoveCartItemHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Cart.RemoveItem(r.Context(), actorFrom(r).UserID, mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Item removed from cart"})
}

// ClearCartHandler handles DELETE /api/cart
func (a *App) ClearCartHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Cart.ClearCart(r.Context(), actorFrom(r).UserID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Cart cleared"})
}
