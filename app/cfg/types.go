package cfg

type Cfg struct {
	// Storage configuration
	DBPath   string
	FeedsDir string
	DataDir  string

	// Tag list configuration
	TagListURL      string
	TagListInterval int

	// Application configuration
	Port              string
	PublicURL         string
	WorkerCount       int
	SchedulerInterval int
	APIAccessKey      string

	// Remote fetching
	UserAgent         string
	RequestsPerSecond float64

	// Application metadata
	Timezone string
	Debug    bool
	LogFile  string
	Version  string
}
