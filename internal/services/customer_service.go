package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/seera-lab/api/internal/domain"
	"github.com/seera-lab/api/internal/repositories"
)

var (
	// ErrCustomerInvalidInput signals the caller provided invalid data.
	ErrCustomerInvalidInput = errors.New("customer: invalid input")
	// ErrCustomerNotFound indicates no aggregate exists for the email.
	ErrCustomerNotFound = errors.New("customer: not found")
)

// CustomerServiceDeps bundles collaborators for the customer read model.
type CustomerServiceDeps struct {
	Customers repositories.CustomerRepository
}

type customerService struct {
	customers repositories.CustomerRepository
}

var _ CustomerService = (*customerService)(nil)

// NewCustomerService wires dependencies into a concrete CustomerService.
// The aggregates themselves are maintained by checkout; this service only reads.
func NewCustomerService(deps CustomerServiceDeps) (CustomerService, error) {
	if deps.Customers == nil {
		return nil, errors.New("customer service: customer repository is required")
	}
	return &customerService{customers: deps.Customers}, nil
}

func (s *customerService) List(ctx context.Context, filter CustomerListFilter) (domain.CursorPage[Customer], error) {
	page, err := s.customers.List(ctx, repositories.CustomerListFilter{
		Search:     strings.TrimSpace(filter.Search),
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Customer]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *customerService) Get(ctx context.Context, email string) (Customer, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return Customer{}, fmt.Errorf("%w: email is required", ErrCustomerInvalidInput)
	}
	customer, err := s.customers.FindByEmail(ctx, email)
	if err != nil {
		return Customer{}, s.mapRepositoryError(err)
	}
	return customer, nil
}

func (s *customerService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCustomerNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("customer: repository unavailable: %w", err)
		}
	}

	return err
}
