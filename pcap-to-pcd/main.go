package main

import (
	"errors"
	"os"

	"lidarextract/pkg/calib"
	"lidarextract/pkg/capture"

	"github.com/spf13/cobra"
)

const (
	exitFailure     = 1
	exitOpenFailure = 2
	exitCalibration = 3
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "pcap-to-pcd",
		Short:        "Extract lidar point clouds from pcap captures",
		SilenceUsage: true,
	}
	root.AddCommand(newConvertCmd(), newInfoCmd())
	return root
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, capture.ErrOpen):
		return exitOpenFailure
	case errors.Is(err, calib.ErrInvalidCalibration):
		return exitCalibration
	default:
		return exitFailure
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}
