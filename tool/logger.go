package tool

import (
	"github.com/charmbracelet/log"
)

// DefaultLogger is the shared logger for every package; main selects the
// level from the -log flag.
var DefaultLogger = log.Default()

// InitLogger applies the process-wide output format.
func InitLogger() {
	DefaultLogger.SetTimeFormat("2006-01-02 15:04:05")
	DefaultLogger.SetReportCaller(true)
}
