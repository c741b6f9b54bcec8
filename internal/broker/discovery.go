// Package broker locates the shortbus broker binary.
package broker

import (
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/shortbus-io/shortbus-go/internal/errors"
)

// BinaryName is the broker binary searched for when no explicit path is set.
const BinaryName = "shortbus"

// Config holds configuration for broker discovery.
type Config struct {
	// BrokerPath is an explicit broker path that skips PATH search.
	// If empty, discovery will search PATH and common locations.
	BrokerPath string

	// Logger is an optional logger for discovery operations.
	// If nil, a default no-op logger is used.
	Logger *slog.Logger
}

// Discoverer locates the shortbus broker binary.
type Discoverer interface {
	// Discover locates the broker binary.
	// Returns the path to the binary or a *BrokerNotFoundError.
	Discover() (string, error)
}

// discoverer implements the Discoverer interface.
type discoverer struct {
	cfg *Config
	log *slog.Logger
}

// Compile-time verification that discoverer implements Discoverer.
var _ Discoverer = (*discoverer)(nil)

// NewDiscoverer creates a new broker discoverer with the given configuration.
func NewDiscoverer(cfg *Config) Discoverer {
	if cfg == nil {
		cfg = &Config{}
	}

	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	}

	return &discoverer{
		cfg: cfg,
		log: log,
	}
}

// Discover locates the broker binary.
func (d *discoverer) Discover() (string, error) {
	// If explicit path provided, use it and only it
	if d.cfg.BrokerPath != "" {
		d.log.Debug("Using explicit broker path", "broker_path", d.cfg.BrokerPath)

		if _, err := os.Stat(d.cfg.BrokerPath); err == nil {
			return d.cfg.BrokerPath, nil
		}

		d.log.Debug("Explicit broker path not found", "broker_path", d.cfg.BrokerPath)

		return "", &errors.BrokerNotFoundError{SearchedPaths: []string{d.cfg.BrokerPath}}
	}

	searchedPaths := make([]string, 0, 4)

	// Search in PATH
	d.log.Debug("Searching for broker in PATH", "binary", BinaryName)

	if path, err := exec.LookPath(BinaryName); err == nil {
		d.log.Debug("Found broker in PATH", "path", path)

		return path, nil
	}

	searchedPaths = append(searchedPaths, "$PATH")

	// Check common locations
	commonPaths := []string{
		filepath.Join("/usr/local/bin", BinaryName),
		filepath.Join("/usr/bin", BinaryName),
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		commonPaths = append(commonPaths, filepath.Join(homeDir, ".local/bin", BinaryName))
	}

	for _, path := range commonPaths {
		searchedPaths = append(searchedPaths, path)
		d.log.Debug("Checking common path", "path", path)

		if _, err := os.Stat(path); err == nil {
			d.log.Debug("Found broker at common path", "path", path)

			return path, nil
		}
	}

	d.log.Warn("Broker not found in any searched paths", "searched_paths", searchedPaths)

	return "", &errors.BrokerNotFoundError{SearchedPaths: searchedPaths}
}
