// Package sysutil holds small process-level helpers shared by the HTTP
// server and the one-shot backfill command.
package sysutil

import (
	"strings"

	"github.com/rs/zerolog"
)

// SetLogLevel configures the global zerolog level from a string value.
// "warning" is accepted as an alias for "warn"; empty or unrecognized
// values fall back to info so a typo in LOG_LEVEL never silences logs.
func SetLogLevel(lvl string) {
	s := strings.ToLower(strings.TrimSpace(lvl))
	if s == "warning" {
		s = "warn"
	}
	parsed, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}
