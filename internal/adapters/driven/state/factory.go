// Package state selects a StateStore backend from a DSN.
package state

import (
	"fmt"
	"strings"

	"github.com/celalgokce/gdrive-sync-clean/internal/adapters/driven/state/bolt"
	"github.com/celalgokce/gdrive-sync-clean/internal/adapters/driven/state/memory"
	"github.com/celalgokce/gdrive-sync-clean/internal/adapters/driven/state/sqlite"
	"github.com/celalgokce/gdrive-sync-clean/internal/core/domain"
	"github.com/celalgokce/gdrive-sync-clean/internal/core/ports/driven"
)

// Open builds a StateStore from a DSN of the form "scheme:path".
//
// Supported schemes:
//
//	sqlite:/var/lib/drivesync/state.db   (default when no scheme given)
//	bolt:/var/lib/drivesync/state.db
//	memory:                              (volatile, for tests)
func Open(dsn string) (driven.StateStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty state DSN", domain.ErrInvalidInput)
	}

	scheme, path, found := strings.Cut(dsn, ":")
	if !found {
		// A bare path is treated as the default backend.
		scheme, path = "sqlite", dsn
	}

	switch strings.ToLower(scheme) {
	case "sqlite":
		return sqlite.NewStore(path)
	case "bolt":
		return bolt.NewStore(path)
	case "memory", "mem":
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported state backend scheme %q", domain.ErrInvalidInput, scheme)
	}
}
