package main

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

// Config merges flags, the optional config file, and environment
// overrides. Flags win over the file; the environment wins over both.
type Config struct {
	FPS            int      `toml:"fps"`
	Quality        int      `toml:"quality"`
	NoToolbar      bool     `toml:"no_toolbar"`
	DisableHotkeys bool     `toml:"disable_hotkeys"`
	DisableHints   bool     `toml:"disable_hints"`
	Headed         bool     `toml:"headed"`
	Profile        string   `toml:"profile"`
	AllowedRoots   []string `toml:"allowed_roots"`
	NaturalScroll  *bool    `toml:"natural_scroll"`
	Debug          bool     `toml:"debug"`
	DebugAddr      string   `toml:"debug_addr"`
}

func configPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "termweb", "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "termweb", "config.toml")
}

// loadConfigFile fills fields from the config file; flags the user
// actually passed (per changed) win over the file.
func loadConfigFile(flags Config, changed func(string) bool) Config {
	path := configPath()
	if path == "" {
		return flags
	}
	var file Config
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return flags
	}
	if file.Quality == 0 && !fileHasKey(path, "quality") {
		file.Quality = flags.Quality
	}

	merged := file
	if changed("fps") {
		merged.FPS = flags.FPS
	}
	if changed("quality") {
		merged.Quality = flags.Quality
	}
	merged.NoToolbar = merged.NoToolbar || flags.NoToolbar
	merged.DisableHotkeys = merged.DisableHotkeys || flags.DisableHotkeys
	merged.DisableHints = merged.DisableHints || flags.DisableHints
	merged.Headed = merged.Headed || flags.Headed
	merged.Debug = merged.Debug || flags.Debug
	if flags.Profile != "" {
		merged.Profile = flags.Profile
	}
	if flags.DebugAddr != "" {
		merged.DebugAddr = flags.DebugAddr
	}
	return merged
}

// fileHasKey distinguishes "quality = 0" from an absent key, which toml
// cannot express through the zero value alone.
func fileHasKey(path, key string) bool {
	var raw map[string]any
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return false
	}
	_, ok := raw[key]
	return ok
}

func applyEnvOverrides(cfg *Config) {
	switch os.Getenv("TERMWEB_NATURAL_SCROLL") {
	case "0":
		f := false
		cfg.NaturalScroll = &f
	case "1":
		t := true
		cfg.NaturalScroll = &t
	}
	if os.Getenv("TERMWEB_DEBUG_INPUT") == "1" {
		cfg.Debug = true
	}
}

// naturalScroll resolves the scroll direction: explicit setting first,
// otherwise the platform convention (macOS ships with natural scrolling
// on).
func (c Config) naturalScroll() bool {
	if c.NaturalScroll != nil {
		return *c.NaturalScroll
	}
	return runtime.GOOS == "darwin"
}
