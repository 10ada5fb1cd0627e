package radar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lysyi3m/rss-radar/app/database"
	"github.com/lysyi3m/rss-radar/app/feed"
)

var ErrInvalidSettings = errors.New("invalid settings")

// DefaultSettings is the configuration created when none has been stored yet.
func DefaultSettings() database.Settings {
	return database.Settings{
		IncludeKeywords: []string{
			"vergunning", "omgevingsvergunning", "bestemmingsplan", "dakkapel",
			"aanbouw", "erfafscheiding", "schutting", "vve", "verhuurder", "huurder",
		},
		ExcludeKeywords: []string{"te koop", "gezocht", "advertentie"},
		QuestionSignals: []string{
			"mag ik", "weet iemand", "hoe zit het", "is het toegestaan",
			"wie heeft ervaring", "moet ik",
		},
		LanguageFilterEnabled:      true,
		ScanIntervalMinutes:        30,
		MaxItemsPerRun:             50,
		MaxItemsPerSource:          25,
		PoliteModeEnabled:          true,
		JitterSeconds:              5,
		BackoffSeconds:             60,
		NotificationScoreThreshold: 70,
	}
}

// SettingsPatch is a partial update. Nil lists and booleans and non-positive
// numbers keep the stored value.
type SettingsPatch struct {
	IncludeKeywords            []string      `json:"includeKeywords"`
	ExcludeKeywords            []string      `json:"excludeKeywords"`
	QuestionSignals            []string      `json:"questionSignals"`
	LanguageFilterEnabled      *bool         `json:"languageFilterEnabled"`
	ScanIntervalMinutes        int           `json:"scanIntervalMinutes"`
	MaxItemsPerRun             int           `json:"maxItemsPerRun"`
	MaxItemsPerSource          int           `json:"maxItemsPerSource"`
	PoliteModeEnabled          *bool         `json:"politeModeEnabled"`
	JitterSeconds              int           `json:"jitterSeconds"`
	BackoffSeconds             int           `json:"backoffSeconds"`
	NotificationScoreThreshold int           `json:"notificationScoreThreshold"`
	Sources                    []SourceInput `json:"sources"`
}

type SourceInput struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Enabled *bool  `json:"enabled"`
}

type SettingsService struct {
	settingsRepo database.SettingsRepository
	sourceRepo   database.SourceRepository
	now          func() time.Time

	mu        sync.Mutex
	listeners []func(database.Settings)
}

func NewSettingsService(settingsRepo database.SettingsRepository, sourceRepo database.SourceRepository) *SettingsService {
	return &SettingsService{
		settingsRepo: settingsRepo,
		sourceRepo:   sourceRepo,
		now:          time.Now,
	}
}

// OnUpdate registers fn to be called with the new settings after every update.
func (s *SettingsService) OnUpdate(fn func(database.Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// GetActive returns the stored settings, persisting the defaults first when
// nothing is stored.
func (s *SettingsService) GetActive(ctx context.Context) (database.Settings, error) {
	settings, err := s.settingsRepo.GetSettings(ctx)
	if err != nil {
		return database.Settings{}, fmt.Errorf("failed to load settings: %w", err)
	}
	if settings != nil {
		return *settings, nil
	}

	defaults := DefaultSettings()
	defaults.UpdatedAt = s.now().UTC()
	if err := s.settingsRepo.CreateSettingsIfAbsent(ctx, defaults); err != nil {
		return database.Settings{}, fmt.Errorf("failed to create default settings: %w", err)
	}

	settings, err = s.settingsRepo.GetSettings(ctx)
	if err != nil {
		return database.Settings{}, fmt.Errorf("failed to load settings: %w", err)
	}
	if settings == nil {
		return database.Settings{}, fmt.Errorf("settings missing after creating defaults")
	}

	slog.Info("Default settings created")
	return *settings, nil
}

func (s *SettingsService) Sources(ctx context.Context) ([]database.Source, error) {
	sources, err := s.sourceRepo.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	return sources, nil
}

// Update applies patch to the active settings and, when the patch carries a
// source list, replaces the registry with it.
func (s *SettingsService) Update(ctx context.Context, patch SettingsPatch) (database.Settings, []database.Source, error) {
	var sources []database.Source
	if patch.Sources != nil {
		var err error
		sources, err = sourcesFromInput(patch.Sources)
		if err != nil {
			return database.Settings{}, nil, err
		}
	}

	current, err := s.GetActive(ctx)
	if err != nil {
		return database.Settings{}, nil, err
	}

	updated := applyPatch(current, patch)
	updated.UpdatedAt = s.now().UTC()

	if patch.Sources != nil {
		err = s.settingsRepo.SaveSettingsWithSources(ctx, updated, sources)
	} else {
		err = s.settingsRepo.SaveSettings(ctx, updated)
	}
	if err != nil {
		return database.Settings{}, nil, fmt.Errorf("failed to save settings: %w", err)
	}

	stored, err := s.Sources(ctx)
	if err != nil {
		return database.Settings{}, nil, err
	}

	slog.Info("Settings updated",
		"scan_interval_minutes", updated.ScanIntervalMinutes,
		"include_keywords", len(updated.IncludeKeywords),
		"sources", len(stored))

	s.mu.Lock()
	listeners := append([]func(database.Settings){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(updated)
	}

	return updated, stored, nil
}

func applyPatch(current database.Settings, patch SettingsPatch) database.Settings {
	updated := current

	if patch.IncludeKeywords != nil {
		updated.IncludeKeywords = cleanKeywords(patch.IncludeKeywords)
	}
	if patch.ExcludeKeywords != nil {
		updated.ExcludeKeywords = cleanKeywords(patch.ExcludeKeywords)
	}
	if patch.QuestionSignals != nil {
		updated.QuestionSignals = cleanKeywords(patch.QuestionSignals)
	}
	if patch.LanguageFilterEnabled != nil {
		updated.LanguageFilterEnabled = *patch.LanguageFilterEnabled
	}
	if patch.PoliteModeEnabled != nil {
		updated.PoliteModeEnabled = *patch.PoliteModeEnabled
	}

	updated.ScanIntervalMinutes = positiveOr(patch.ScanIntervalMinutes, current.ScanIntervalMinutes)
	updated.MaxItemsPerRun = positiveOr(patch.MaxItemsPerRun, current.MaxItemsPerRun)
	updated.MaxItemsPerSource = positiveOr(patch.MaxItemsPerSource, current.MaxItemsPerSource)
	updated.JitterSeconds = positiveOr(patch.JitterSeconds, current.JitterSeconds)
	updated.BackoffSeconds = positiveOr(patch.BackoffSeconds, current.BackoffSeconds)
	updated.NotificationScoreThreshold = positiveOr(patch.NotificationScoreThreshold, current.NotificationScoreThreshold)

	return updated
}

func positiveOr(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

// cleanKeywords trims entries and drops blanks and case-insensitive duplicates,
// keeping the first spelling.
func cleanKeywords(keywords []string) []string {
	cleaned := make([]string, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))
	for _, keyword := range keywords {
		keyword = strings.TrimSpace(keyword)
		if keyword == "" {
			continue
		}
		key := strings.ToLower(keyword)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		cleaned = append(cleaned, keyword)
	}
	return cleaned
}

func sourcesFromInput(inputs []SourceInput) ([]database.Source, error) {
	configs := make([]feed.SourceConfig, 0, len(inputs))
	for _, input := range inputs {
		configs = append(configs, feed.SourceConfig{
			Name:    input.Name,
			URL:     strings.TrimSpace(input.URL),
			Enabled: input.Enabled,
		})
	}
	if err := feed.ValidateSources(configs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	return sourcesFromConfig(configs), nil
}

func sourcesFromConfig(configs []feed.SourceConfig) []database.Source {
	sources := make([]database.Source, 0, len(configs))
	for _, config := range configs {
		sources = append(sources, database.Source{
			Name:    strings.TrimSpace(config.Name),
			URL:     strings.TrimSpace(config.URL),
			Enabled: config.IsEnabled(),
		})
	}
	return sources
}
