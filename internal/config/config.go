package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the optional carve configuration file.
type Config struct {
	Defaults DefaultsConfig `toml:"defaults"`
}

// DefaultsConfig holds persistent flag defaults. Every field is a pointer
// so an explicit command-line flag can be told apart from an unset one.
type DefaultsConfig struct {
	Video     *bool   `toml:"video"`
	BlockSize *string `toml:"block_size"`
	BWLimit   *string `toml:"bwlimit"`
	Dedupe    *bool   `toml:"dedupe"`
	Manifest  *bool   `toml:"manifest"`
	ImageMax  *string `toml:"image_max"`
	VideoMax  *string `toml:"video_max"`
	Quiet     *bool   `toml:"quiet"`
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "carve", "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist. Config is always optional.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}

	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	return cfg, nil
}
