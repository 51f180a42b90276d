// Package config provides configuration helpers for go-facetrack commands.
package config

import (
	"os"
	"strconv"
)

// Defaults used when the environment leaves a setting unset.
const (
	DefaultListenPort    = 8000
	DefaultConfigPath    = "config/facetrack.json"
	DefaultCompanionHost = "localhost"
)

// ListenPort returns the HTTP port from PORT env var.
// Falls back to DefaultListenPort if unset or not a valid port.
func ListenPort() int {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 && port < 65536 {
			return port
		}
	}
	return DefaultListenPort
}

// ConfigPath returns the overlay file path from FACETRACK_CONFIG env var or default.
func ConfigPath() string {
	if path := os.Getenv("FACETRACK_CONFIG"); path != "" {
		return path
	}
	return DefaultConfigPath
}

// CompanionHost returns the companion host from COMPANION_HOST env var.
// Falls back to the provided default if not set.
func CompanionHost(defaultHost string) string {
	if host := os.Getenv("COMPANION_HOST"); host != "" {
		return host
	}
	return defaultHost
}
