package config

import (
	"os"
	"path/filepath"
)

const defaultBaseDir = ".livechat"

// Paths holds resolved filesystem paths for livechat data.
type Paths struct {
	Base   string // ~/.livechat
	Config string // ~/.livechat/config.yaml
	Data   string // ~/.livechat/data (sqlite database)
	Widget string // ~/.livechat/widget (visitor-side local state)
}

// ResolvePaths computes all standard paths from the home directory.
// If LIVECHAT_HOME is set, it overrides the default base directory.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("LIVECHAT_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}

	return Paths{
		Base:   base,
		Config: filepath.Join(base, "config.yaml"),
		Data:   filepath.Join(base, "data"),
		Widget: filepath.Join(base, "widget"),
	}, nil
}

// EnsureDirs creates all standard directories if they don't exist.
func (p Paths) EnsureDirs() error {
	for _, d := range []string{p.Base, p.Data, p.Widget} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}
