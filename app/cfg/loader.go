package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/lysyi3m/rss-radar/app/feed"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DBPath      string `long:"db-path" env:"DB_PATH" default:"./data/radar.db" description:"Path to the SQLite database file"`
	SourcesFile string `long:"sources-file" env:"SOURCES_FILE" default:"./sources.yml" description:"YAML file seeding the source registry on first start"`

	// Application configuration
	Port             string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	FeedURLTemplate  string `long:"feed-url-template" env:"FEED_URL_TEMPLATE" default:"https://www.reddit.com/r/%s/new/.rss" description:"Feed URL template for sources without an explicit URL (%s is the source name)"`
	FetchTimeout     int    `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"20" description:"Per-request fetch timeout in seconds"`
	ScanOnStart      bool   `long:"scan-on-start" env:"SCAN_ON_START" description:"Queue a scan right after startup"`
	DisableScheduler bool   `long:"disable-scheduler" env:"DISABLE_SCHEDULER" description:"Disable periodic scans; manual scans still work"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"RSS Radar/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, Europe/Amsterdam)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

func Load() (*Cfg, error) {
	return load(nil)
}

func load(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	var err error
	if args == nil {
		_, err = parser.Parse()
	} else {
		_, err = parser.ParseArgs(args)
	}
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg, err := newCfg(raw)
	if err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	return cfg, nil
}

func newCfg(raw rawCfg) (*Cfg, error) {
	if raw.FetchTimeout <= 0 {
		return nil, fmt.Errorf("fetch timeout must be positive, got %d", raw.FetchTimeout)
	}

	template := cmp.Or(raw.FeedURLTemplate, feed.DefaultFeedURLTemplate)
	if err := feed.ValidateSources([]feed.SourceConfig{{Name: "template", URL: fmt.Sprintf(template, "template")}}); err != nil {
		return nil, fmt.Errorf("invalid feed URL template %q: %w", template, err)
	}

	return &Cfg{
		DBPath:           raw.DBPath,
		SourcesFile:      raw.SourcesFile,
		Port:             raw.Port,
		FeedURLTemplate:  template,
		FetchTimeout:     time.Duration(raw.FetchTimeout) * time.Second,
		UserAgent:        raw.UserAgent,
		ScanOnStart:      raw.ScanOnStart,
		DisableScheduler: raw.DisableScheduler,
		Timezone:         raw.Timezone,
		Debug:            raw.Debug,
		Version:          GetVersion(),
	}, nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			fmt.Printf("Timezone configured: %s\n", timezone)
		}
	}
	return nil
}
