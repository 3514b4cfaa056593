package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the tracker home directory.
	DefaultDirName = ".tracker"

	// DatabaseFileName is the default chat database file name.
	DatabaseFileName = "tracker.db"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// ExportsDirName is the subdirectory for exported chats.
	ExportsDirName = "exports"
)

// Dir represents the tracker home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.tracker).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// DatabasePath returns the path to the default chat database.
func (d *Dir) DatabasePath() string {
	return filepath.Join(d.path, DatabaseFileName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// ExportsDir returns the directory for exported chats.
func (d *Dir) ExportsDir() string {
	return filepath.Join(d.path, ExportsDirName)
}

// ExportPath returns the export file path for a chat.
func (d *Dir) ExportPath(chatID string) string {
	return filepath.Join(d.ExportsDir(), chatID+".yaml")
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	// Create exports directory (this also creates the parent)
	if err := os.MkdirAll(d.ExportsDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create exports directory: %w", err)
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// ResolveDatabase returns path when set, otherwise the home database path.
func (d *Dir) ResolveDatabase(path string) string {
	if path != "" {
		return path
	}
	return d.DatabasePath()
}
