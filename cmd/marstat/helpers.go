package main

import (
	"fmt"

	"marstat/internal/config"
	"marstat/internal/store"
)

// loadConfig returns the config at path, or the defaults when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.LoadFromPath(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func openStore(path string) (*store.SqlStore, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", path, err)
	}
	return st, nil
}
