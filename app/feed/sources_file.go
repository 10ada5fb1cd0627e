package feed

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type sourcesFile struct {
	Sources []SourceConfig `yaml:"sources"`
}

// LoadSourcesFile reads the YAML source list. A missing file yields no sources.
func LoadSourcesFile(path string) ([]SourceConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Debug("Sources file not found", "path", path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var file sourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse sources file %s: %w", path, err)
	}

	if err := ValidateSources(file.Sources); err != nil {
		return nil, fmt.Errorf("invalid sources file %s: %w", path, err)
	}

	for i := range file.Sources {
		file.Sources[i].Name = strings.TrimSpace(file.Sources[i].Name)
		file.Sources[i].URL = strings.TrimSpace(file.Sources[i].URL)
	}

	return file.Sources, nil
}

// ValidateSources checks names are present and unique ignoring case, and that
// explicit URLs are absolute http(s) URLs.
func ValidateSources(sources []SourceConfig) error {
	seen := make(map[string]struct{}, len(sources))
	for i, source := range sources {
		name := strings.TrimSpace(source.Name)
		if name == "" {
			return fmt.Errorf("source %d: name is required", i+1)
		}

		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			return fmt.Errorf("source %q is listed more than once", name)
		}
		seen[key] = struct{}{}

		if source.URL == "" {
			continue
		}
		parsed, err := url.Parse(strings.TrimSpace(source.URL))
		if err != nil {
			return fmt.Errorf("source %q: invalid URL: %w", name, err)
		}
		if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return fmt.Errorf("source %q: URL must be absolute http(s)", name)
		}
	}
	return nil
}
