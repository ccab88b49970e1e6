package tool

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"cabinet/types"
)

var ConfigPath = "config.yaml"

func defaultConfig() types.AppConfig {
	return types.AppConfig{
		Port:                8090,
		DataDir:             "data",
		SessionTTLSeconds:   3600,
		SweepIntervalSec:    60,
		SessionGraceSeconds: 120,
		MaxSessionsPerOwner: 8,
		MaxFilesPerSession:  512,
		MaxChunkStreams:     64,
		MutationRatePerSec:  50,
		MutationBurst:       100,
		MaxTreeDepth:        32,
		MaxTreeFiles:        20000,
		MaxTreeMillis:       30000,
		MaxZipEntries:       20000,
		ListingTTLSeconds:   30,
	}
}

// LoadConfig reads the YAML config at path, writing a default file when none
// exists yet. Zero-valued fields are filled with defaults so partial configs
// stay valid.
func LoadConfig(path string) (types.AppConfig, error) {
	if path == "" {
		path = ConfigPath
	}
	ConfigPath = path

	cfg := defaultConfig()

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if writeErr := writeConfig(path, cfg); writeErr != nil {
				return cfg, fmt.Errorf("config file not found, and failed to generate default config: %v", writeErr)
			}
			DefaultLogger.Infof("Created new config file at %s", path)
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %v", err)
	}
	if info.IsDir() {
		return cfg, fmt.Errorf("config file path is a directory: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %v", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %v", err)
	}
	fillDefaults(&cfg)
	return cfg, nil
}

func fillDefaults(cfg *types.AppConfig) {
	def := defaultConfig()
	if cfg.Port <= 0 {
		cfg.Port = def.Port
	}
	if cfg.DataDir == "" {
		cfg.DataDir = def.DataDir
	}
	if cfg.SessionTTLSeconds <= 0 {
		cfg.SessionTTLSeconds = def.SessionTTLSeconds
	}
	if cfg.SweepIntervalSec <= 0 {
		cfg.SweepIntervalSec = def.SweepIntervalSec
	}
	if cfg.SessionGraceSeconds <= 0 {
		cfg.SessionGraceSeconds = def.SessionGraceSeconds
	}
	if cfg.MaxSessionsPerOwner <= 0 {
		cfg.MaxSessionsPerOwner = def.MaxSessionsPerOwner
	}
	if cfg.MaxFilesPerSession <= 0 {
		cfg.MaxFilesPerSession = def.MaxFilesPerSession
	}
	if cfg.MaxChunkStreams <= 0 {
		cfg.MaxChunkStreams = def.MaxChunkStreams
	}
	if cfg.MutationRatePerSec <= 0 {
		cfg.MutationRatePerSec = def.MutationRatePerSec
	}
	if cfg.MutationBurst <= 0 {
		cfg.MutationBurst = def.MutationBurst
	}
	if cfg.MaxTreeDepth <= 0 {
		cfg.MaxTreeDepth = def.MaxTreeDepth
	}
	if cfg.MaxTreeFiles <= 0 {
		cfg.MaxTreeFiles = def.MaxTreeFiles
	}
	if cfg.MaxTreeMillis <= 0 {
		cfg.MaxTreeMillis = def.MaxTreeMillis
	}
	if cfg.MaxZipEntries <= 0 {
		cfg.MaxZipEntries = def.MaxZipEntries
	}
	if cfg.ListingTTLSeconds <= 0 {
		cfg.ListingTTLSeconds = def.ListingTTLSeconds
	}
}

func writeConfig(path string, cfg types.AppConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
