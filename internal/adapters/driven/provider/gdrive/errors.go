package gdrive

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"

	"github.com/celalgokce/gdrive-sync-clean/internal/core/domain"
)

// wrapError classifies a Drive API failure into the domain's error
// taxonomy. Rate limits and server-side failures are transient; auth
// and missing resources are not. Errors the API client surfaces
// without a status code are almost always network trouble, so they
// count as transient too.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return fmt.Errorf("%s: %v: %w", op, err, domain.ErrTransientProvider)
	}

	switch gerr.Code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s: %v: %w", op, err, domain.ErrAuthentication)
	case http.StatusNotFound:
		return fmt.Errorf("%s: %v: %w", op, err, domain.ErrNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%s: %v: %w", op, err, domain.ErrTransientProvider)
	}
	if gerr.Code >= 500 {
		return fmt.Errorf("%s: %v: %w", op, err, domain.ErrTransientProvider)
	}
	return fmt.Errorf("%s: %v: %w", op, err, domain.ErrPermanent)
}
