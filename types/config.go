package types

// AppConfig is the application configuration loaded from the config file.
type AppConfig struct {
	Port    int    `yaml:"port"`
	DataDir string `yaml:"dataDir"` // each owner gets <dataDir>/<owner>

	// Upload session lifecycle.
	SessionTTLSeconds   int `yaml:"sessionTTLSeconds"`   // abandoned sessions are swept after this
	SweepIntervalSec    int `yaml:"sweepIntervalSec"`    // expiry sweep cadence
	SessionGraceSeconds int `yaml:"sessionGraceSeconds"` // completed/aborted sessions stay pollable this long

	// Admission ceilings.
	MaxSessionsPerOwner int     `yaml:"maxSessionsPerOwner"`
	MaxFilesPerSession  int     `yaml:"maxFilesPerSession"`
	MaxChunkStreams     int     `yaml:"maxChunkStreams"`  // process-wide in-flight chunk bodies
	MutationRatePerSec  float64 `yaml:"mutationRate"`     // token-bucket refill for mutating routes
	MutationBurst       int     `yaml:"mutationBurst"`

	// Server-side clamps for tree-operation budgets.
	MaxTreeDepth  int   `yaml:"maxTreeDepth"`
	MaxTreeFiles  int   `yaml:"maxTreeFiles"`
	MaxTreeMillis int64 `yaml:"maxTreeMillis"`
	MaxZipEntries int   `yaml:"maxZipEntries"`

	// Directory-listing cache.
	ListingTTLSeconds int `yaml:"listingTTLSeconds"`
}

// Config holds runtime overrides from CLI flags.
type Config struct {
	Log           string
	UseConfigPath string
	UseDataDir    string
	UsePort       int
}
