package tool

import (
	"flag"

	"cabinet/types"
)

// SetFlags parses CLI flags and returns the override config.
func SetFlags() types.Config {
	var cfg types.Config
	flag.StringVar(&cfg.Log, "log", "", "log mode: dev|prod|none")
	flag.StringVar(&cfg.UseConfigPath, "useConfigPath", "", "override config file path")
	flag.StringVar(&cfg.UseDataDir, "useDataDir", "", "override sandbox data directory")
	flag.IntVar(&cfg.UsePort, "usePort", 0, "override listen port")
	flag.Parse()
	return cfg
}
