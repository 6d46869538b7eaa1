package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/braidflow/braid/pkg/persistence"
	"github.com/braidflow/braid/pkg/persistence/file"
	"github.com/braidflow/braid/pkg/persistence/postgresql"
)

var supportedPersistenceProviders = []string{"file", "postgres", "postgresql"}

// NewPersistence builds the storage backend named by the database URL.
// postgres:// and postgresql:// URLs connect and migrate; anything else is
// treated as a file path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Store {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to connect to PostgreSQL: %w", err))
		}

		return store
	default:
		return file.NewPersistence(databaseURL)
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider := strings.Split(databaseURL, "://")[0]
	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}
