package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nyambika/marketplace/internal/middleware"
	"github.com/nyambika/marketplace/internal/models"
	"github.com/nyambika/marketplace/internal/services"
)

// ListProductsHandler handles GET /api/products
func (a *App) ListProductsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	products, err := a.svc.Products.ListProducts(r.Context(), services.ProductFilter{
		CategoryID: q.Get("category"),
		ProducerID: q.Get("producer"),
		Search:     q.Get("search"),
		Limit:      queryInt(r, "limit", 50),
		Offset:     queryInt(r, "offset", 0),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

// GetProductHandler handles GET /api/products/{id}
func (a *App) GetProductHandler(w http.ResponseWriter, r *http.Request) {
	product, err := a.svc.Products.GetProduct(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// CreateProductHandler handles POST /api/products
func (a *App) CreateProductHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateProductRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	product, err := a.svc.Products.CreateProduct(r.Context(), actorFrom(r).UserID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

// ListCategoriesHandler handles GET /api/categories
func (a *App) ListCategoriesHandler(w http.ResponseWriter, r *http.Request) {
	categories, err := a.svc.Products.ListCategories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

// ListCompaniesHandler handles GET /api/companies
func (a *App) ListCompaniesHandler(w http.ResponseWriter, r *http.Request) {
	companies, err := a.svc.Companies.ListCompanies(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, companies)
}

// GetCompanyHandler handles GET /api/companies/{id}
func (a *App) GetCompanyHandler(w http.ResponseWriter, r *http.Request) {
	company, err := a.svc.Companies.GetByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, company)
}

// GetCompanyProductsHandler handles GET /api/companies/{id}/products. A store
// is only visible while its producer has an active subscription.
func (a *App) GetCompanyProductsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	company, err := a.svc.Companies.GetByID(ctx, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	active, err := a.svc.Subscriptions.HasActive(ctx, company.ProducerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !active {
		middleware.WriteMessage(w, http.StatusForbidden, "Producer subscription inactive. Store temporarily unavailable.")
		return
	}
	products, err := a.svc.Products.ListProducts(ctx, services.ProductFilter{
		ProducerID: company.ProducerID,
		Limit:      queryInt(r, "limit", 50),
		Offset:     queryInt(r, "offset", 0),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"company": company, "products": products})
}
