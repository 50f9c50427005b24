package service

import (
	"errors"
	"fmt"

	"github.com/SergeiKhy/url-analytics/internal/repository"
)

var (
	// ErrValidation matches every input validation failure.
	ErrValidation = errors.New("validation failed")

	ErrInvalidURL   = fmt.Errorf("%w: invalid URL", ErrValidation)
	ErrSpamDomain   = fmt.Errorf("%w: domain is blacklisted", ErrValidation)
	ErrInvalidRange = fmt.Errorf("%w: invalid date range", ErrValidation)

	ErrLinkNotFound       = repository.ErrLinkNotFound
	ErrForbidden          = errors.New("link belongs to another owner")
	ErrCodeSpaceExhausted = errors.New("could not allocate a unique short code")
	ErrUnavailable        = errors.New("storage temporarily unavailable")
)

// storeErr surfaces transient storage failures as ErrUnavailable.
func storeErr(err error) error {
	if errors.Is(err, repository.ErrTransient) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}
