// Package modes selects which services the server binary runs:
//   - all: HTTP and WebSocket services (default)
//   - http: only the HTTP service, without the realtime transport
package modes

import (
	"fmt"
	"slices"
	"strings"
)

// Mode is the set of services one server process runs
type Mode string

const (
	ModeAll  Mode = "all"
	ModeHTTP Mode = "http"
)

// ValidModes lists the accepted -mode values
var ValidModes = []Mode{ModeAll, ModeHTTP}

func (m Mode) IsValid() bool {
	return slices.Contains(ValidModes, m)
}

// ParseMode is case-insensitive; an empty value selects ModeAll
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ModeAll, nil
	}
	if mode := Mode(s); mode.IsValid() {
		return mode, nil
	}
	return "", fmt.Errorf("unknown mode %q, expected one of %v", s, ValidModes)
}

// RunsWebSocket reports whether the mode includes the realtime transport
func (m Mode) RunsWebSocket() bool {
	return m == ModeAll
}
