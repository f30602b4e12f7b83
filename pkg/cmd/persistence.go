// Package cmd shares the wiring helpers used by the binaries.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/leadmill/leadmill/pkg/persistence"
	"github.com/leadmill/leadmill/pkg/persistence/file"
	"github.com/leadmill/leadmill/pkg/persistence/postgresql"
)

// NewPersistence selects the storage backend from the database URL scheme.
// postgres URLs get the real database; everything else is treated as a
// directory path for the JSON file store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	}

	return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://")), nil
}
