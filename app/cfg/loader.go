package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DBPath   string `long:"db-path" env:"DB_PATH" default:"./data/feed-sync.db" description:"Path to the SQLite cache database"`
	FeedsDir string `long:"feeds-dir" env:"FEEDS_DIR" default:"./feeds" description:"Directory containing feed source files"`
	DataDir  string `long:"data-dir" env:"DATA_DIR" default:"./data" description:"Directory for the local tag list cache"`

	// Tag list configuration
	TagListURL      string `long:"tag-list-url" env:"TAG_LIST_URL" default:"http://pastebin.com/raw.php?i=dMePcZ9e" description:"Remote tag list document"`
	TagListInterval int    `long:"tag-list-interval" env:"TAG_LIST_INTERVAL" default:"3600" description:"Tag list refresh interval in seconds"`

	// Application configuration
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	PublicURL         string `long:"public-url" env:"PUBLIC_URL" description:"Externally visible base URL for feed self links (default http://localhost:<port>)"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"2" description:"Number of background sync workers"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"60" description:"Scheduler interval in seconds"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for sync endpoints (optional)"`

	// Remote fetching
	UserAgent         string  `long:"user-agent" env:"USER_AGENT" default:"Feed Sync/1.0" description:"User agent string for HTTP requests"`
	RequestsPerSecond float64 `long:"requests-per-second" env:"REQUESTS_PER_SECOND" default:"2" description:"Outbound request rate limit"`

	// Application metadata
	Timezone string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for all-day events (e.g., UTC, America/Vancouver)"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
	LogFile  string `long:"log-file" env:"LOG_FILE" description:"Also write logs to this rotated file"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	return parse(nil)
}

func parse(args []string) (*Cfg, error) {
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

	if raw.WorkerCount <= 0 {
		return nil, fmt.Errorf("worker count must be positive")
	}
	if raw.SchedulerInterval <= 0 {
		return nil, fmt.Errorf("scheduler interval must be positive")
	}
	if raw.RequestsPerSecond <= 0 {
		return nil, fmt.Errorf("requests per second must be positive")
	}

	cfg := &Cfg{
		DBPath:            raw.DBPath,
		FeedsDir:          raw.FeedsDir,
		DataDir:           raw.DataDir,
		TagListURL:        raw.TagListURL,
		TagListInterval:   raw.TagListInterval,
		Port:              raw.Port,
		PublicURL:         cmp.Or(raw.PublicURL, "http://localhost:"+raw.Port),
		WorkerCount:       raw.WorkerCount,
		SchedulerInterval: raw.SchedulerInterval,
		APIAccessKey:      raw.APIAccessKey,
		UserAgent:         raw.UserAgent,
		RequestsPerSecond: raw.RequestsPerSecond,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		LogFile:           raw.LogFile,
		Version:           GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func (c *Cfg) GetSchedulerInterval() time.Duration {
	return time.Duration(c.SchedulerInterval) * time.Second
}

func (c *Cfg) GetTagListInterval() time.Duration {
	if c.TagListInterval <= 0 {
		return time.Hour
	}
	return time.Duration(c.TagListInterval) * time.Second
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
