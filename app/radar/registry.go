package radar

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/rss-radar/app/database"
	"github.com/lysyi3m/rss-radar/app/feed"
)

// SyncSourcesFile seeds an empty source registry from the YAML file at path.
// A registry that already holds sources is left untouched.
func SyncSourcesFile(ctx context.Context, sourceRepo database.SourceRepository, path string) (int, error) {
	count, err := sourceRepo.GetSourceCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count sources: %w", err)
	}
	if count > 0 {
		slog.Debug("Source registry already populated", "sources", count)
		return 0, nil
	}

	configs, err := feed.LoadSourcesFile(path)
	if err != nil {
		return 0, err
	}
	if len(configs) == 0 {
		slog.Warn("No sources configured", "path", path)
		return 0, nil
	}

	if err := sourceRepo.ReplaceSources(ctx, sourcesFromConfig(configs)); err != nil {
		return 0, fmt.Errorf("failed to seed sources: %w", err)
	}

	slog.Info("Sources seeded from file", "path", path, "sources", len(configs))
	return len(configs), nil
}
