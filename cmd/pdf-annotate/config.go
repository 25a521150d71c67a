// seehuhn.de/go/annotate - persistent annotations for PDF documents
// Copyright (C) 2026  Jochen Voss <voss@seehuhn.de>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


package main

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/language"

	"seehuhn.de/go/annotate/processor"
	"seehuhn.de/go/annotate/search"
)

// config is the content of the configuration file.
//
// Example:
//
//	author = "Jane Doe"
//
//	[processor]
//	workers = 2
//	producer = "pdf-annotate"
//
//	[search]
//	max_results = 100
//	language = "de"
//
//	[log]
//	level = "debug"
//	format = "json"
type config struct {
	// Author is stored in new annotations.  The empty string selects the
	// login name of the user.
	Author string `toml:"author" validate:"max=256"`

	Processor processor.Config `toml:"processor"`
	Search    searchConfig     `toml:"search"`
	Log       logConfig        `toml:"log"`
}

type searchConfig struct {
	MaxResults   int    `toml:"max_results" validate:"gte=0,lte=100000"`
	ContextRunes int    `toml:"context_runes" validate:"gte=-1,lte=1000"`
	Language     string `toml:"language" validate:"omitempty,bcp47_language_tag"`
}

type logConfig struct {
	Level  string `toml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Format string `toml:"format" validate:"omitempty,oneof=text json"`
}

func defaultConfig() *config {
	return &config{
		Processor: processor.Config{
			Producer: "pdf-annotate",
		},
		Search: searchConfig{
			MaxResults: search.DefaultMaxResults,
		},
		Log: logConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// defaultConfigFile returns the location of the configuration file in the
// user's configuration directory.
func defaultConfigFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "pdf-annotate", "config.toml")
}

// loadConfig reads a configuration file.  Settings not given in the file
// keep their default values.  A missing file at the default location is
// not an error.
func loadConfig(path string) (*config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && path == defaultConfigFile() {
		return cfg, nil
	} else if err != nil {
		return nil, err
	}
	if err := parseConfig(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func parseConfig(data []byte, cfg *config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return fmt.Errorf("line %d, column %d: %s", row, col, derr.Error())
		}
		return err
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg); err != nil {
		return err
	}
	return nil
}

// language returns the collation language for searches.
func (c *searchConfig) language() language.Tag {
	if c.Language == "" {
		return language.Und
	}
	return language.Make(c.Language)
}
