package radar

import (
	"context"
	"log/slog"

	"github.com/lysyi3m/rss-radar/app/database"
)

// Notifier is told about newly inserted items that reached the notification
// score threshold.
type Notifier interface {
	Notify(ctx context.Context, item database.Item) error
}

type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Notify(ctx context.Context, item database.Item) error {
	slog.Info("High scoring item",
		"item_id", item.ID,
		"source", item.Source,
		"score", item.Score,
		"title", item.Title,
		"url", item.URL)
	return nil
}
