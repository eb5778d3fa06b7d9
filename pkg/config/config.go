// Package config holds the settings of one conversion run.
package config

import (
	"errors"
	"fmt"
	"os"

	"lidarextract/pkg/pipeline"

	"gopkg.in/yaml.v3"
)

const (
	FormatPCD           = "pcd"
	FormatPCDCompressed = "pcd-compressed"
	FormatSQLite        = "sqlite"
)

var ErrInvalidConfig = errors.New("invalid config")

// Run is the run file layout. Command-line flags override its values. A
// ChunkSize of zero or less reads the whole capture as one chunk.
type Run struct {
	Pcap        string `yaml:"pcap"`
	Calibration string `yaml:"calibration"`
	ChunkSize   int    `yaml:"chunk_size"`
	OutDir      string `yaml:"out_dir"`
	Format      string `yaml:"format"`
	DBPath      string `yaml:"db"`
	Libpcap     bool   `yaml:"libpcap"`
}

func Default() Run {
	return Run{
		ChunkSize: pipeline.DefaultChunkSize,
		Format:    FormatPCD,
	}
}

// Load reads a YAML run file on top of the defaults.
func Load(path string) (Run, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read run config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse run config: %w", err)
	}
	return cfg, nil
}

func (r *Run) Validate() error {
	if r.Pcap == "" {
		return fmt.Errorf("%w: capture file is required", ErrInvalidConfig)
	}
	if r.Calibration == "" {
		return fmt.Errorf("%w: calibration file is required", ErrInvalidConfig)
	}
	switch r.Format {
	case FormatPCD, FormatPCDCompressed:
	case FormatSQLite:
		if r.DBPath == "" {
			return fmt.Errorf("%w: sqlite output needs a database path", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown format %q", ErrInvalidConfig, r.Format)
	}
	return nil
}
