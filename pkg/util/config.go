// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package util

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

const (
	DeformLate  = "late"
	DeformEager = "eager"
)

type VectorizeOptions struct {
	Enable bool `toml:"enable" mapstructure:"enable"`
	// Notice returns the fallback advisory to the client.
	Notice bool `toml:"notice" mapstructure:"notice"`
	// Deform is "late" or "eager".
	Deform string `toml:"deform" mapstructure:"deform"`
	// ColumnStream decodes column relations straight from their
	// datum streams instead of reading formed tuples.
	ColumnStream bool `toml:"columnStream" mapstructure:"columnStream"`
	// BatchSize is the row capacity of a batch.
	BatchSize int `toml:"batchSize" mapstructure:"batchSize"`
}

type ServerOptions struct {
	Addr string `toml:"addr" mapstructure:"addr"`
}

type DebugOptions struct {
	MaxOutputRowCount int    `toml:"maxOutputRowCount" mapstructure:"maxOutputRowCount"`
	PrintResult       bool   `toml:"printResult" mapstructure:"printResult"`
	PrintPlan         bool   `toml:"printPlan" mapstructure:"printPlan"`
	LogLevel          string `toml:"logLevel" mapstructure:"logLevel"`
}

type ColumnConfig struct {
	Name string `toml:"name" mapstructure:"name"`
	Type string `toml:"type" mapstructure:"type"`
}

type TableConfig struct {
	Name string `toml:"name" mapstructure:"name"`
	Path string `toml:"path" mapstructure:"path"`
	// Format is csv or parquet.
	Format string `toml:"format" mapstructure:"format"`
	// Storage is heap, temp or column.
	Storage   string         `toml:"storage" mapstructure:"storage"`
	Delimiter string         `toml:"delimiter" mapstructure:"delimiter"`
	Columns   []ColumnConfig `toml:"columns" mapstructure:"columns"`
}

type Config struct {
	Vectorize VectorizeOptions `toml:"vectorize" mapstructure:"vectorize"`
	Server    ServerOptions    `toml:"server" mapstructure:"server"`
	Debug     DebugOptions     `toml:"debug" mapstructure:"debug"`
	Tables    []TableConfig    `toml:"tables" mapstructure:"tables"`
}

func DefaultConfig() *Config {
	return &Config{
		Vectorize: VectorizeOptions{
			Enable:       false,
			Notice:       true,
			Deform:       DeformLate,
			ColumnStream: true,
			BatchSize:    DefaultVectorSize,
		},
		Server: ServerOptions{
			Addr: "127.0.0.1:5432",
		},
		Debug: DebugOptions{
			LogLevel: "info",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) Validate() error {
	switch cfg.Vectorize.Deform {
	case "":
		cfg.Vectorize.Deform = DeformLate
	case DeformLate, DeformEager:
	default:
		return fmt.Errorf("invalid deform policy %q", cfg.Vectorize.Deform)
	}
	if cfg.Vectorize.BatchSize <= 0 {
		cfg.Vectorize.BatchSize = DefaultVectorSize
	}
	for _, tab := range cfg.Tables {
		if tab.Name == "" {
			return fmt.Errorf("table without name")
		}
		switch tab.Format {
		case "csv", "parquet":
		default:
			return fmt.Errorf("table %s: invalid format %q", tab.Name, tab.Format)
		}
		switch tab.Storage {
		case "", "heap", "temp", "column":
		default:
			return fmt.Errorf("table %s: invalid storage %q", tab.Name, tab.Storage)
		}
		if len(tab.Columns) == 0 {
			return fmt.Errorf("table %s has no columns", tab.Name)
		}
	}
	return nil
}
