package services

import "errors"

var (
	// ErrDiscountRepositoryMissing indicates the discount repository dependency is absent.
	ErrDiscountRepositoryMissing = errors.New("discount service: repository is not configured")
	// ErrDiscountCodeEmpty signals the supplied code is empty after normalisation.
	ErrDiscountCodeEmpty = errors.New("discount service: empty code")
	// ErrDiscountCodeNotFound indicates no discount exists for the provided code.
	ErrDiscountCodeNotFound = errors.New("discount service: code not found")
	// ErrDiscountCodeExpired indicates the discount exists but its expiry has passed.
	ErrDiscountCodeExpired = errors.New("discount service: code expired")
	// ErrDiscountCodeInactive indicates the discount exists but is switched off.
	ErrDiscountCodeInactive = errors.New("discount service: code inactive")
	// ErrDiscountInvalidInput signals invalid admin input such as a percentage outside [0, 100].
	ErrDiscountInvalidInput = errors.New("discount service: invalid input")
	// ErrDiscountCodeConflict indicates a code with the same normalised value already exists.
	ErrDiscountCodeConflict = errors.New("discount service: code already exists")
)
