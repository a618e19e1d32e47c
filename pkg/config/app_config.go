// Package config holds the process-level configuration sshpod needs: build
// metadata, debug toggling, and the cache directory the local key is rooted
// at. There is no user-editable config file: every
// other decision (hostname, login user) arrives per-invocation on the CLI.
package config

import (
	"os"
	"path/filepath"

	"github.com/imos/sshpod/pkg/sshpoderr"
)

// AppConfig is the root configuration object, built once in main and passed
// down to the logger and the composition root.
type AppConfig struct {
	Name      string
	Version   string
	Commit    string
	BuildDate string
	Debug     bool

	// CacheDir is $HOME/.cache/sshpod, the root of the local key cache.
	CacheDir string
}

// NewAppConfig builds an AppConfig from build-time linker variables (version,
// commit, date — set via -ldflags the way the teacher's main.go does) plus
// the runtime debug flag.
func NewAppConfig(version, commit, date string, debug bool) (*AppConfig, error) {
	cacheDir, err := CacheDir()
	if err != nil {
		return nil, err
	}
	return &AppConfig{
		Name:      "sshpod",
		Version:   version,
		Commit:    commit,
		BuildDate: date,
		Debug:     debug,
		CacheDir:  cacheDir,
	}, nil
}

// CacheDir returns $HOME/.cache/sshpod, failing if HOME is unset — the same
// directory pkg/keys.Dir resolves, kept here too since the logger and other
// ambient concerns may want it without importing pkg/keys.
func CacheDir() (string, error) {
	home := os.Getenv("HOME")
	if home == "" {
		return "", sshpoderr.New(sshpoderr.SshdStartFailed, "HOME is not set; cannot determine cache directory")
	}
	return filepath.Join(home, ".cache", "sshpod"), nil
}
