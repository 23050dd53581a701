package main

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/goccy/go-json"
	"github.com/tailscale/hujson"
)

// ConfigFileName is looked up in the working directory when --config is not
// given.
const ConfigFileName = "doctable.json"

// Config holds the shell settings. Fields left empty in the file keep their
// defaults; command-line flags override both.
type Config struct {
	DB         string `json:"db,omitempty"`
	Memory     bool   `json:"memory,omitempty"`
	Archive    string `json:"archive,omitempty"`
	Database   string `json:"database,omitempty"`
	Collection string `json:"collection,omitempty"`
	History    string `json:"history,omitempty"`
	ShowRows   int    `json:"show_rows,omitempty"`
	Verbose    bool   `json:"verbose,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		DB:       "doctable.db",
		ShowRows: 20,
	}
}

var errShowRows = errors.New("show_rows must not be negative")

// loadConfig applies the config file at path on top of the defaults. A
// missing file is an error only when mustExist is set.
func loadConfig(path string, mustExist bool) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !mustExist {
		return cfg, nil
	} else if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	overlay, err := parseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	cfg = mergeConfig(cfg, overlay)
	if err := validateConfig(cfg); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func parseConfig(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}
	return cfg, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.DB != "" {
		base.DB = overlay.DB
	}
	if overlay.Memory {
		base.Memory = true
	}
	if overlay.Archive != "" {
		base.Archive = overlay.Archive
	}
	if overlay.Database != "" {
		base.Database = overlay.Database
	}
	if overlay.Collection != "" {
		base.Collection = overlay.Collection
	}
	if overlay.History != "" {
		base.History = overlay.History
	}
	if overlay.ShowRows != 0 {
		base.ShowRows = overlay.ShowRows
	}
	if overlay.Verbose {
		base.Verbose = true
	}
	return base
}

func validateConfig(cfg Config) error {
	if cfg.ShowRows < 0 {
		return errShowRows
	}
	return nil
}
