package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"lidarextract/pkg/pcd"

	"github.com/spf13/cobra"
)

type pcdInfo struct {
	File   string  `json:"file"`
	Points int     `json:"points"`
	Area   float32 `json:"area"`
	Error  string  `json:"error,omitempty"`
}

func newInfoCmd() *cobra.Command {
	var cfg struct {
		precision float32
		json      bool
	}
	cmd := &cobra.Command{
		Use:   "info FILE.pcd...",
		Short: "Print point count and XY footprint of PCD files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.precision <= 0 {
				return fmt.Errorf("precision must be positive, got %v", cfg.precision)
			}
			return printInfo(cmd.OutOrStdout(), args, cfg.precision, cfg.json)
		},
	}
	cmd.PersistentFlags().Float32VarP(&cfg.precision, "precision", "r", 10, "grid cells per meter of the area estimate")
	cmd.PersistentFlags().BoolVar(&cfg.json, "json", false, "print one JSON object per file")
	return cmd
}

func readInfo(path string, precision float32) (info pcdInfo, err error) {
	info.File = path
	f, err := os.Open(path)
	if err != nil {
		return info, err
	}
	defer f.Close()
	p, err := pcd.DecodePcd(f)
	if err != nil {
		return info, fmt.Errorf("%s: %w", path, err)
	}
	info.Points = p.PointCount()
	info.Area = p.XYArea(precision)
	return info, nil
}

// printInfo reports every file and returns the first failure.
func printInfo(w io.Writer, paths []string, precision float32, asJSON bool) error {
	var first error
	enc := json.NewEncoder(w)
	for _, path := range paths {
		info, err := readInfo(path, precision)
		if err != nil {
			info.Error = err.Error()
			if first == nil {
				first = err
			}
		}
		if asJSON {
			if err := enc.Encode(info); err != nil {
				return err
			}
			continue
		}
		if info.Error != "" {
			fmt.Fprintf(w, "%s: error: %s\n", path, info.Error)
			continue
		}
		fmt.Fprintf(w, "%s: %d points, %.2f m2\n", path, info.Points, info.Area)
	}
	return first
}
