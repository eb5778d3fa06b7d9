// Package calib loads the per-channel beam angles of a sensor.
package calib

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"lidarextract/pkg/packet"

	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidCalibration = errors.New("invalid calibration")
)

// Set holds the intrinsic beam angles in degrees, indexed by channel.
type Set struct {
	Altitude [packet.ChannelsPerBlock]float64
	Azimuth  [packet.ChannelsPerBlock]float64
}

// document mirrors the sensor metadata keys; other keys are ignored. Entries
// are pointers so that null angles can be told apart from zero.
type document struct {
	Altitudes []*float64 `json:"beam_altitude_angles" yaml:"beam_altitude_angles"`
	Azimuths  []*float64 `json:"beam_azimuth_angles" yaml:"beam_azimuth_angles"`
}

// Load reads a calibration document. Files ending in .yaml or .yml are
// parsed as YAML, everything else as JSON.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCalibration, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return ParseJSON(data)
	}
}

func ParseJSON(data []byte) (*Set, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCalibration, err)
	}
	return doc.set()
}

func ParseYAML(data []byte) (*Set, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCalibration, err)
	}
	return doc.set()
}

func (d *document) set() (*Set, error) {
	s := &Set{}
	if err := fill(s.Altitude[:], d.Altitudes, "beam_altitude_angles"); err != nil {
		return nil, err
	}
	if err := fill(s.Azimuth[:], d.Azimuths, "beam_azimuth_angles"); err != nil {
		return nil, err
	}
	return s, nil
}

func fill(dst []float64, src []*float64, key string) error {
	if len(src) != len(dst) {
		return fmt.Errorf("%w: %s has %d entries, want %d", ErrInvalidCalibration, key, len(src), len(dst))
	}
	for i, v := range src {
		if v == nil {
			return fmt.Errorf("%w: %s[%d] is null", ErrInvalidCalibration, key, i)
		}
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			return fmt.Errorf("%w: %s[%d] is not finite", ErrInvalidCalibration, key, i)
		}
		dst[i] = *v
	}
	return nil
}
