package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFromPath reads a config file (YAML or JSON), overlays it on Default and
// validates the result. Format is detected by extension (.yaml/.yml → YAML,
// .json → JSON) or by content (first non-whitespace char).
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Load(data, filepath.Ext(path))
}

// Load parses config from bytes. ext is the file extension (e.g. ".json",
// ".yaml") for format hint; empty = detect from content. Fields absent from
// data keep their Default values.
func Load(data []byte, ext string) (*Config, error) {
	cfg := Default()
	ext = strings.ToLower(ext)
	if ext == ".yml" {
		ext = ".yaml"
	}
	if ext == "" && strings.HasPrefix(strings.TrimSpace(string(data)), "{") {
		ext = ".json"
	}
	var set aliasesSet
	switch ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("parse config json: %w", err)
		}
		_ = json.Unmarshal(data, &set)
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config yaml: %w", err)
		}
		_ = yaml.Unmarshal(data, &set)
	}
	set.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// aliasesSet captures the alias maps a config file sets explicitly. Both
// decoders merge into the default maps; a file that sets aliases replaces
// them instead, so "aliases: {}" clears the defaults.
type aliasesSet struct {
	Factors struct {
		PopCenter struct {
			Aliases *map[string]string `json:"aliases" yaml:"aliases"`
		} `json:"pop_center" yaml:"pop_center"`
		Income struct {
			Aliases *map[string]string `json:"aliases" yaml:"aliases"`
		} `json:"income" yaml:"income"`
	} `json:"factors" yaml:"factors"`
}

func (s aliasesSet) apply(cfg *Config) {
	replace := func(dst *map[string]string, src *map[string]string) {
		if src == nil {
			return
		}
		if len(*src) == 0 {
			*dst = nil
			return
		}
		*dst = *src
	}
	replace(&cfg.Factors.PopCenter.Aliases, s.Factors.PopCenter.Aliases)
	replace(&cfg.Factors.Income.Aliases, s.Factors.Income.Aliases)
}

// Marshal renders cfg as YAML, the format `marstat config default` prints.
func Marshal(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encode config yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode config yaml: %w", err)
	}
	return buf.Bytes(), nil
}
