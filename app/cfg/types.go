package cfg

import "time"

type Cfg struct {
	// Storage
	DBPath      string
	SourcesFile string

	// HTTP server
	Port string

	// Feed fetching
	FeedURLTemplate string
	FetchTimeout    time.Duration
	UserAgent       string

	// Scheduling
	ScanOnStart      bool
	DisableScheduler bool

	// Application metadata
	Timezone string
	Debug    bool
	Version  string
}
