// Package config provides centralized configuration management.
// All environment lookups live here instead of scattered os.Getenv calls.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// Env holds all statecore environment variables.
type Env struct {
	// DatabaseDSN is the durable store DSN (STATECORE_DB)
	DatabaseDSN string

	// MetricsPort is the metrics HTTP port (STATECORE_METRICS_PORT)
	MetricsPort int

	// QueueDepth bounds pending detached writes (STATECORE_QUEUE_DEPTH)
	QueueDepth int

	// QueueWorkers bounds concurrent detached writes (STATECORE_QUEUE_WORKERS)
	QueueWorkers int

	// Pretty enables colored human output (STATECORE_PRETTY)
	Pretty bool
}

var (
	env     *Env
	envOnce sync.Once
)

// Get returns the singleton environment configuration.
// Thread-safe, loads once on first call.
func Get() *Env {
	envOnce.Do(func() {
		env = &Env{
			DatabaseDSN:  getEnvDefault("STATECORE_DB", defaultDSN()),
			MetricsPort:  getEnvInt("STATECORE_METRICS_PORT", 9464),
			QueueDepth:   getEnvInt("STATECORE_QUEUE_DEPTH", 256),
			QueueWorkers: getEnvInt("STATECORE_QUEUE_WORKERS", 4),
			Pretty:       os.Getenv("STATECORE_PRETTY") != "0",
		}
	})
	return env
}

// Reset resets the cached environment (for testing).
func Reset() {
	envOnce = sync.Once{}
	env = nil
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// Home returns the statecore home directory (~/.statecore).
func Home() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".statecore")
}

func defaultDSN() string {
	return filepath.Join(Home(), "statecore.db")
}

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
