// Package services implements the sync pipeline's core behaviour:
// the change notifier, the reconciler and the upload coordinator.
// Services depend only on the driven ports, never on concrete adapters.
package services

import (
	"errors"

	"github.com/celalgokce/gdrive-sync-clean/internal/core/domain"
)

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
