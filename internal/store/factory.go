package store

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
)

// NewStore selects the backend for a domain: postgres when a database URL is
// configured, else a CSV file under dataDir.
func NewStore(ctx context.Context, spec Spec, databaseURL, dataDir string, logger *slog.Logger) (Store, error) {
	if strings.TrimSpace(databaseURL) != "" {
		return NewPostgresStore(ctx, spec, databaseURL, logger)
	}
	if dataDir == "" {
		dataDir = "."
	}
	return NewCSVStore(spec, filepath.Join(dataDir, spec.Domain+"s.csv"), logger)
}
