package customers

import (
	"context"

	"github.com/odyssey-erp/odyssey-wms/internal/masterdata/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Customer, int, error) {
	return s.repo.List(ctx, filters.Normalize())
}

func (s *Service) Get(ctx context.Context, id int64) (Customer, error) {
	if id <= 0 {
		return Customer{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, customer Customer) (Customer, error) {
	if err := s.validate(customer); err != nil {
		return Customer{}, err
	}
	return s.repo.Create(ctx, customer)
}

func (s *Service) Update(ctx context.Context, id int64, customer Customer) (Customer, error) {
	if id <= 0 {
		return Customer{}, shared.ErrInvalidID
	}
	if err := s.validate(customer); err != nil {
		return Customer{}, err
	}
	customer.ID = id
	if err := s.repo.Update(ctx, customer); err != nil {
		return Customer{}, err
	}
	return s.repo.Get(ctx, id)
}

// Delete removes the customer. Orders keep their contact snapshot.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	return s.repo.Delete(ctx, id)
}
