package tool

import (
	"fmt"
	"strings"

	"wayfinder/internal/domain"
)

// requireField rejects an empty or whitespace-only value.
func requireField(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %q is required", domain.ErrInvalidInput, name)
	}
	return nil
}

// maxLength rejects value when it exceeds limit bytes.
func maxLength(name, value string, limit int) error {
	if len(value) > limit {
		return fmt.Errorf("%w: %s exceeds %d bytes", domain.ErrInvalidInput, name, limit)
	}
	return nil
}

// firstErr returns the first non-nil error.
func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
