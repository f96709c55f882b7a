package profile

import (
	"errors"
	"os"

	"github.com/matheus3301/peerchat/internal/config"
)

const DefaultName = "main"

// Resolve determines the active profile name using precedence:
// 1. flagOverride (--profile flag)
// 2. config.toml default_profile
// 3. "main"
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultProfile != "" {
		return cfg.DefaultProfile
	}
	return DefaultName
}

// LoadConfig returns the config for a profile: the profile's own
// config.toml when present, otherwise the global one, otherwise defaults.
func LoadConfig(name string) (*config.Config, error) {
	cfg, err := config.Load(ProfileConfigPath(name))
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return config.LoadOrDefault(ConfigPath())
}
