package api

import (
	"net/http"

	"github.com/nyambika/marketplace/internal/models"
)

// GetMyCompanyHandler handles GET /api/companies/me
func (a *App) GetMyCompanyHandler(w http.ResponseWriter, r *http.Request) {
	company, err := a.svc.Companies.GetByProducer(r.Context(), actorFrom(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, company)
}

// CreateCompanyHandler handles POST /api/companies
func (a *App) CreateCompanyHandler(w http.ResponseWriter, r *http.Request) {
	var in models.CompanyInput
	if !decodeJSON(w, r, &in) {
		return
	}
	company, err := a.svc.Companies.CreateCompany(r.Context(), actorFrom(r).UserID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, company)
}

// UpdateCompanyHandler handles PUT /api/companies
func (a *App) UpdateCompanyHandler(w http.ResponseWriter, r *http.Request) {
	var in models.CompanyInput
	if !decodeJSON(w, r, &in) {
		return
	}
	company, err := a.svc.Companies.UpdateCompany(r.Context(), actorFrom(r).UserID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, company)
}

// GetWalletHandler handles GET /api/wallet
func (a *App) GetWalletHandler(w http.ResponseWriter, r *http.Request) {
	wallet, err := a.svc.Wallets.GetWallet(r.Context(), actorFrom(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

// SubscriptionStatusHandler handles GET /api/producer/subscription-status
func (a *App) SubscriptionStatusHandler(w http.ResponseWriter, r *http.Request) {
	status, err := a.svc.Subscriptions.Status(r.Context(), actorFrom(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// ListPlansHandler handles GET /api/subscription-plans
func (a *App) ListPlansHandler(w http.ResponseWriter, r *http.Request) {
	plans, err := a.svc.Subscriptions.ListPlans(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

// CreateSubscriptionHandler handles POST /api/subscriptions
func (a *App) CreateSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSubscriptionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sub, err := a.svc.Subscriptions.Subscribe(r.Context(), actorFrom(r).UserID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}
