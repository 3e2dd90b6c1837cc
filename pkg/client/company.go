package client

import (
	"context"
	"errors"
	"log"
	"sync"
)

// Notice is a toast-style message for the user
type Notice struct {
	Title       string
	Description string
	Error       bool
}

// Notifier shows notices to the user
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(Notice)

// Notify calls f(n)
func (f NotifierFunc) Notify(n Notice) { f(n) }

// CompanyStore holds the signed-in producer's storefront. A producer
// without one is in the "missing" state and sees the creation modal.
type CompanyStore struct {
	client   *Client
	notifier Notifier

	mu        sync.RWMutex
	company   *Company
	missing   bool
	modalOpen bool
	loading   bool
	refreshes uint64
}

// NewCompanyStore creates an empty store. notifier may be nil.
func NewCompanyStore(c *Client, notifier Notifier) *CompanyStore {
	if notifier == nil {
		notifier = NotifierFunc(func(Notice) {})
	}
	return &CompanyStore{client: c, notifier: notifier}
}

// Refresh loads the company for user. Non-producers reset the store. A 404
// is the valid "no company yet" state; other failures are logged and leave
// the store as it was. Only the latest of overlapping refreshes is applied.
func (s *CompanyStore) Refresh(ctx context.Context, user *User) error {
	s.mu.Lock()
	s.refreshes++
	seq := s.refreshes
	if !user.IsProducer() {
		s.company, s.missing, s.modalOpen, s.loading = nil, false, false, false
		s.mu.Unlock()
		return nil
	}
	s.loading = true
	s.mu.Unlock()

	var company Company
	err := s.client.Get(ctx, "/api/companies/me", &company)

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.refreshes {
		return err
	}
	s.loading = false
	switch {
	case err == nil:
		s.company, s.missing = &company, false
	case IsNotFound(err):
		s.company, s.missing, s.modalOpen = nil, true, true
		return nil
	default:
		log.Printf("[COMPANY] Failed to load company: %v", err)
	}
	return err
}

// Create registers the producer's company and closes the modal
func (s *CompanyStore) Create(ctx context.Context, in CompanyInput) (*Company, error) {
	var company Company
	if err := s.client.Post(ctx, "/api/companies", in, &company); err != nil {
		s.notifier.Notify(Notice{Title: "Company", Description: messageOf(err, "Failed to create company"), Error: true})
		return nil, err
	}

	s.mu.Lock()
	s.refreshes++
	s.company, s.missing, s.modalOpen = &company, false, false
	s.mu.Unlock()

	s.notifier.Notify(Notice{Title: "Company saved", Description: "Your company details were created."})
	cp := company
	return &cp, nil
}

// Update changes the producer's company; nil fields are left alone
func (s *CompanyStore) Update(ctx context.Context, in CompanyInput) (*Company, error) {
	var company Company
	if err := s.client.Put(ctx, "/api/companies", in, &company); err != nil {
		s.notifier.Notify(Notice{Title: "Company", Description: messageOf(err, "Failed to update company"), Error: true})
		return nil, err
	}

	s.mu.Lock()
	s.refreshes++
	s.company, s.missing = &company, false
	s.mu.Unlock()

	s.notifier.Notify(Notice{Title: "Company updated", Description: "Your company details were updated."})
	cp := company
	return &cp, nil
}

func messageOf(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

// Company returns a copy of the loaded company, or nil
func (s *CompanyStore) Company() *Company {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.company == nil {
		return nil
	}
	cp := *s.company
	return &cp
}

// IsMissing reports the "no company yet" state
func (s *CompanyStore) IsMissing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.missing
}

// IsLoading reports whether a refresh is in flight
func (s *CompanyStore) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// ModalOpen reports whether the creation modal is showing
func (s *CompanyStore) ModalOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modalOpen
}

// SetModalOpen shows or dismisses the creation modal
func (s *CompanyStore) SetModalOpen(open bool) {
	s.mu.Lock()
	s.modalOpen = open
	s.mu.Unlock()
}
