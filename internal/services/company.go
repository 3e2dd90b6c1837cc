package services

import (
	"context"
	"database/sql"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nyambika/marketplace/internal/db"
	"github.com/nyambika/marketplace/internal/metrics"
	"github.com/nyambika/marketplace/internal/models"
)

// CompanyService manages producer storefronts
type CompanyService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
}

// NewCompanyService creates a new company service
func NewCompanyService(db *db.DB, metrics *metrics.AppMetrics) *CompanyService {
	return &CompanyService{db: db, metrics: metrics}
}

const companyColumns = "id, producer_id, tin, name, email, phone, location, logo_url, website_url, created_at"

func scanCompany(row interface{ Scan(...any) error }, c *models.Company) error {
	return row.Scan(&c.ID, &c.ProducerID, &c.TIN, &c.Name, &c.Email, &c.Phone, &c.Location, &c.LogoURL, &c.WebsiteURL, &c.CreatedAt)
}

func (s *CompanyService) getBy(ctx context.Context, column, value string) (*models.Company, error) {
	start := time.Now()
	query := "SELECT " + companyColumns + " FROM companies WHERE " + column + " = ?"
	var c models.Company
	err := scanCompany(s.db.QueryRowContext(ctx, query, value), &c)
	s.metrics.RecordDBQuery(ctx, "SELECT", "companies", query, start, err == nil || err == sql.ErrNoRows)
	if err == sql.ErrNoRows {
		return nil, userError(ErrNotFound, "Company not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return &c, nil
}

// GetByProducer returns the producer's company
func (s *CompanyService) GetByProducer(ctx context.Context, producerID string) (*models.Company, error) {
	return s.getBy(ctx, "producer_id", producerID)
}

// GetByID returns a company for its public store page
func (s *CompanyService) GetByID(ctx context.Context, id string) (*models.Company, error) {
	return s.getBy(ctx, "id", id)
}

// ListCompanies returns every company by name
func (s *CompanyService) ListCompanies(ctx context.Context) ([]models.Company, error) {
	start := time.Now()
	query := "SELECT " + companyColumns + " FROM companies ORDER BY name"
	rows, err := s.db.QueryContext(ctx, query)
	s.metrics.RecordDBQuery(ctx, "SELECT", "companies", query, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	defer rows.Close()

	companies := []models.Company{}
	for rows.Next() {
		var c models.Company
		if err := scanCompany(rows, &c); err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

// CreateCompany registers the producer's single company
func (s *CompanyService) CreateCompany(ctx context.Context, producerID string, in models.CompanyInput) (*models.Company, error) {
	if in.Name == nil || in.Email == nil || in.Phone == nil || in.Location == nil {
		return nil, userError(ErrValidation, "Validation error")
	}
	if err := validateCompanyInput(in); err != nil {
		return nil, err
	}

	c := models.Company{
		ID:         uuid.NewString(),
		ProducerID: producerID,
		TIN:        in.TIN,
		Name:       strings.TrimSpace(*in.Name),
		Email:      strings.TrimSpace(*in.Email),
		Phone:      strings.TrimSpace(*in.Phone),
		Location:   strings.TrimSpace(*in.Location),
		LogoURL:    in.LogoURL,
		WebsiteURL: in.WebsiteURL,
		CreatedAt:  time.Now().UTC(),
	}

	start := time.Now()
	query := "INSERT INTO companies (" + companyColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	_, err := s.db.ExecContext(ctx, query, c.ID, c.ProducerID, c.TIN, c.Name, c.Email, c.Phone, c.Location, c.LogoURL, c.WebsiteURL, c.CreatedAt)
	s.metrics.RecordDBQuery(ctx, "INSERT", "companies", query, start, err == nil)
	if err != nil {
		if db.IsDuplicate(err) {
			return nil, userError(ErrConflict, "Company already exists. Use update instead.")
		}
		return nil, fmt.Errorf("failed to create company: %w", err)
	}
	return &c, nil
}

// UpdateCompany applies the non-nil fields of in to the producer's company
func (s *CompanyService) UpdateCompany(ctx context.Context, producerID string, in models.CompanyInput) (*models.Company, error) {
	if err := validateCompanyInput(in); err != nil {
		return nil, err
	}

	var sets []string
	var args []any
	add := func(col string, v *string) {
		if v != nil {
			sets = append(sets, col+" = ?")
			args = append(args, strings.TrimSpace(*v))
		}
	}
	add("tin", in.TIN)
	add("name", in.Name)
	add("email", in.Email)
	add("phone", in.Phone)
	add("location", in.Location)
	add("logo_url", in.LogoURL)
	add("website_url", in.WebsiteURL)

	if len(sets) > 0 {
		start := time.Now()
		query := "UPDATE companies SET " + strings.Join(sets, ", ") + " WHERE producer_id = ?"
		res, err := s.db.ExecContext(ctx, query, append(args, producerID)...)
		s.metrics.RecordDBQuery(ctx, "UPDATE", "companies", query, start, err == nil)
		if err != nil {
			return nil, fmt.Errorf("failed to update company: %w", err)
		}
		if err := requireAffected(res, "Company not found"); err != nil {
			return nil, err
		}
	}
	return s.GetByProducer(ctx, producerID)
}

func validateCompanyInput(in models.CompanyInput) error {
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return userError(ErrValidation, "Validation error: name is required")
	}
	if in.Email != nil {
		if _, err := mail.ParseAddress(strings.TrimSpace(*in.Email)); err != nil {
			return userError(ErrValidation, "Validation error: invalid email")
		}
	}
	if in.Phone != nil && len(strings.TrimSpace(*in.Phone)) < 3 {
		return userError(ErrValidation, "Validation error: phone is too short")
	}
	if in.Location != nil && strings.TrimSpace(*in.Location) == "" {
		return userError(ErrValidation, "Validation error: location is required")
	}
	for _, u := range []*string{in.LogoURL, in.WebsiteURL} {
		if u == nil {
			continue
		}
		if parsed, err := url.Parse(*u); err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return userError(ErrValidation, "Validation error: invalid url")
		}
	}
	return nil
}
