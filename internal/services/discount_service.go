package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/seera-lab/api/internal/domain"
	"github.com/seera-lab/api/internal/repositories"
)

// DiscountServiceDeps bundles dependencies required to construct a DiscountService implementation.
type DiscountServiceDeps struct {
	Discounts repositories.DiscountRepository
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type discountService struct {
	repo   repositories.DiscountRepository
	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

var _ DiscountService = (*discountService)(nil)

// NewDiscountService wires a DiscountService backed by the provided repository.
func NewDiscountService(deps DiscountServiceDeps) (DiscountService, error) {
	if deps.Discounts == nil {
		return nil, ErrDiscountRepositoryMissing
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &discountService{
		repo:   deps.Discounts,
		clock:  func() time.Time { return clock().UTC() },
		logger: logger,
	}, nil
}

// Resolve validates the code and returns the stored discount. Expiry is
// checked before the active flag so an expired-and-disabled code reports
// as expired. Resolution never mutates usage state.
func (s *discountService) Resolve(ctx context.Context, code string) (DiscountCode, error) {
	normalized := normaliseCode(code)
	if normalized == "" {
		return DiscountCode{}, ErrDiscountCodeEmpty
	}

	discount, err := s.repo.FindByCode(ctx, normalized)
	if err != nil {
		return DiscountCode{}, s.mapRepositoryError(err)
	}

	now := s.clock()
	if discount.ExpiresAt != nil && now.After(*discount.ExpiresAt) {
		return DiscountCode{}, fmt.Errorf("%w: %s", ErrDiscountCodeExpired, normalized)
	}
	if !discount.Active {
		return DiscountCode{}, fmt.Errorf("%w: %s", ErrDiscountCodeInactive, normalized)
	}
	return discount, nil
}

// RecordRedemption bumps the usage counter once the associated order is
// durably created. Failures are logged by the caller and never retried.
func (s *discountService) RecordRedemption(ctx context.Context, code string) error {
	normalized := normaliseCode(code)
	if normalized == "" {
		return ErrDiscountCodeEmpty
	}
	if err := s.repo.IncrementUsage(ctx, normalized, 1); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *discountService) ListCodes(ctx context.Context, filter DiscountListFilter) (domain.CursorPage[DiscountCode], error) {
	page, err := s.repo.List(ctx, repositories.DiscountListFilter{
		ActiveOnly: filter.ActiveOnly,
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[DiscountCode]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *discountService) CreateCode(ctx context.Context, cmd UpsertDiscountCommand) (DiscountCode, error) {
	normalized := normaliseCode(cmd.Code)
	if normalized == "" {
		return DiscountCode{}, ErrDiscountCodeEmpty
	}
	if cmd.Percent < 0 || cmd.Percent > 100 {
		return DiscountCode{}, fmt.Errorf("%w: percent %d outside [0, 100]", ErrDiscountInvalidInput, cmd.Percent)
	}

	now := s.clock()
	active := true
	if cmd.Active != nil {
		active = *cmd.Active
	}
	discount := domain.DiscountCode{
		ID:        normalized,
		Code:      normalized,
		Percent:   cmd.Percent,
		ExpiresAt: normaliseExpiry(cmd.ExpiresAt),
		Active:    active,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, discount); err != nil {
		return DiscountCode{}, s.mapRepositoryError(err)
	}
	s.logger(ctx, "discount.created", map[string]any{
		"code":    normalized,
		"percent": cmd.Percent,
		"actor":   cmd.ActorID,
	})
	return discount, nil
}

func (s *discountService) UpdateCode(ctx context.Context, cmd UpsertDiscountCommand) (DiscountCode, error) {
	normalized := normaliseCode(cmd.Code)
	if normalized == "" {
		return DiscountCode{}, ErrDiscountCodeEmpty
	}
	if cmd.Percent < 0 || cmd.Percent > 100 {
		return DiscountCode{}, fmt.Errorf("%w: percent %d outside [0, 100]", ErrDiscountInvalidInput, cmd.Percent)
	}

	existing, err := s.repo.FindByCode(ctx, normalized)
	if err != nil {
		return DiscountCode{}, s.mapRepositoryError(err)
	}

	existing.Percent = cmd.Percent
	if cmd.ExpiresAt != nil {
		existing.ExpiresAt = normaliseExpiry(cmd.ExpiresAt)
	}
	if cmd.Active != nil {
		existing.Active = *cmd.Active
	}
	existing.UpdatedAt = s.clock()

	if err := s.repo.Update(ctx, existing); err != nil {
		return DiscountCode{}, s.mapRepositoryError(err)
	}
	s.logger(ctx, "discount.updated", map[string]any{
		"code":  normalized,
		"actor": cmd.ActorID,
	})
	return existing, nil
}

func (s *discountService) DeleteCode(ctx context.Context, code string) error {
	normalized := normaliseCode(code)
	if normalized == "" {
		return ErrDiscountCodeEmpty
	}
	if err := s.repo.Delete(ctx, normalized); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *discountService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrDiscountCodeNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrDiscountCodeConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("discount service: repository unavailable: %w", err)
		}
	}
	return err
}

func normaliseCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func normaliseExpiry(expiry *time.Time) *time.Time {
	if expiry == nil || expiry.IsZero() {
		return nil
	}
	value := expiry.UTC()
	return &value
}
