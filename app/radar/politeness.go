package radar

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/lysyi3m/rss-radar/app/database"
)

// Policy is the politeness and volume configuration of one run.
type Policy struct {
	Polite       bool
	Jitter       time.Duration
	Backoff      time.Duration
	MaxPerRun    int
	MaxPerSource int
}

func PolicyFromSettings(settings database.Settings) Policy {
	return Policy{
		Polite:       settings.PoliteModeEnabled,
		Jitter:       time.Duration(settings.JitterSeconds) * time.Second,
		Backoff:      time.Duration(settings.BackoffSeconds) * time.Second,
		MaxPerRun:    settings.MaxItemsPerRun,
		MaxPerSource: settings.MaxItemsPerSource,
	}
}

// JitterDelay returns a uniform random duration in [0, Jitter].
func (p Policy) JitterDelay() time.Duration {
	if !p.Polite || p.Jitter <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(p.Jitter) + 1))
}

// BackoffDelay is the pause after a rate-limited source.
func (p Policy) BackoffDelay() time.Duration {
	if !p.Polite || p.Backoff <= 0 {
		return 0
	}
	return p.Backoff
}

type Pauser interface {
	Pause(ctx context.Context, d time.Duration) error
}

// TimerPauser sleeps for real, returning early when ctx is done.
type TimerPauser struct{}

func (TimerPauser) Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
