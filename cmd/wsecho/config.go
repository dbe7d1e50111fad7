package main

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config is wsecho's on-disk configuration, loaded once at startup: a
// single flat struct rather than a layered/hierarchical config tree --
// this server has one listener and one upgrade route, nothing to nest.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	Path       string `yaml:"path"`
	// EnableCompression, when true, offers/negotiates permessage-deflate
	// on every accepted connection (RFC 7692).
	EnableCompression bool `yaml:"enable_compression"`
	// PrettyLog switches zerolog from JSON to a human-readable console
	// writer, for local runs.
	PrettyLog bool `yaml:"pretty_log"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr: ":8080",
		Path:       "/ws",
	}
}

// loadConfig reads path as YAML if it exists, overlaying it on top of
// defaultConfig. A missing file is not an error -- wsecho runs fine with
// nothing but the defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
