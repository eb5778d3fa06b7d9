package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"lidarextract/pkg/calib"
	"lidarextract/pkg/capture"
	"lidarextract/pkg/config"
	"lidarextract/pkg/geometry"
	"lidarextract/pkg/packet"
	"lidarextract/pkg/pcd"
	"lidarextract/pkg/pipeline"
	"lidarextract/pkg/store"

	"github.com/spf13/cobra"
)

func newConvertCmd() *cobra.Command {
	var cfg struct {
		config string
		run    config.Run
	}
	cfg.run = config.Default()

	cmd := &cobra.Command{
		Use:   "convert [PCAP CALIB [CHUNK]]",
		Short: "Convert a lidar capture into chunked point cloud files",
		Args: func(cmd *cobra.Command, args []string) error {
			if n := len(args); n != 0 && n != 2 && n != 3 {
				return fmt.Errorf("convert takes PCAP CALIB [CHUNK] or flags, got %d arguments", n)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := resolveRun(cmd, cfg.config, cfg.run, args)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return convert(ctx, run)
		},
	}

	f := cmd.PersistentFlags()
	f.StringVarP(&cfg.config, "config", "c", "", "YAML run file; flags override its values")
	f.StringVarP(&cfg.run.Pcap, "pcap", "p", "", "input pcap or pcapng capture")
	f.StringVarP(&cfg.run.Calibration, "calib", "a", "", "beam angle calibration (json or yaml)")
	f.IntVarP(&cfg.run.ChunkSize, "chunk", "n", cfg.run.ChunkSize, "records per chunk, 0 for the whole capture")
	f.StringVarP(&cfg.run.OutDir, "out", "o", "", "output dir, defaults to the capture's dir")
	f.StringVarP(&cfg.run.Format, "format", "f", cfg.run.Format, "output format: pcd, pcd-compressed or sqlite")
	f.StringVar(&cfg.run.DBPath, "db", "", "sqlite database for --format sqlite")
	f.BoolVar(&cfg.run.Libpcap, "libpcap", false, "read the capture through libpcap (needs -tags=pcap)")
	return cmd
}

// resolveRun layers the run file, the flags set on the command line and the
// positional arguments, in that order.
func resolveRun(cmd *cobra.Command, configPath string, flags config.Run, args []string) (config.Run, error) {
	run := config.Default()
	if configPath != "" {
		var err error
		if run, err = config.Load(configPath); err != nil {
			return run, err
		}
	}

	changed := cmd.Flags().Changed
	if changed("pcap") {
		run.Pcap = flags.Pcap
	}
	if changed("calib") {
		run.Calibration = flags.Calibration
	}
	if changed("chunk") {
		run.ChunkSize = flags.ChunkSize
	}
	if changed("out") {
		run.OutDir = flags.OutDir
	}
	if changed("format") {
		run.Format = flags.Format
	}
	if changed("db") {
		run.DBPath = flags.DBPath
	}
	if changed("libpcap") {
		run.Libpcap = flags.Libpcap
	}

	if len(args) >= 2 {
		run.Pcap, run.Calibration = args[0], args[1]
	}
	if len(args) == 3 {
		n, err := strconv.Atoi(args[2])
		if err != nil {
			return run, fmt.Errorf("%w: chunk size %q: %v", config.ErrInvalidConfig, args[2], err)
		}
		run.ChunkSize = n
	}
	return run, run.Validate()
}

func openSource(run config.Run) (capture.Source, error) {
	if run.Libpcap {
		return capture.OpenLibpcap(run.Pcap, packet.SensorPort)
	}
	return capture.Open(run.Pcap)
}

type sink interface {
	pipeline.Writer
	outputs() []string
	close() error
}

type pcdSink struct{ *pcd.ChunkWriter }

func (s pcdSink) outputs() []string { return s.Paths }
func (s pcdSink) close() error      { return nil }

type sqliteSink struct {
	*store.SQLiteWriter
	path string
}

func (s sqliteSink) outputs() []string { return []string{s.path} }
func (s sqliteSink) close() error      { return s.Close() }

func openSink(run config.Run, id store.Run) (sink, error) {
	switch run.Format {
	case config.FormatSQLite:
		w, err := store.Open(run.DBPath, id)
		if err != nil {
			return nil, fmt.Errorf("open database %s: %w", run.DBPath, err)
		}
		return sqliteSink{SQLiteWriter: w, path: run.DBPath}, nil
	case config.FormatPCDCompressed:
		return pcdSink{pcd.NewChunkWriter(run.Pcap, run.OutDir, pcd.BinaryCompressed)}, nil
	default:
		return pcdSink{pcd.NewChunkWriter(run.Pcap, run.OutDir, pcd.Binary)}, nil
	}
}

func convert(ctx context.Context, run config.Run) (err error) {
	src, err := openSource(run)
	if err != nil {
		return err
	}
	defer src.Close()

	cal, err := calib.Load(run.Calibration)
	if err != nil {
		return err
	}

	if run.OutDir != "" {
		if err = os.MkdirAll(run.OutDir, 0o755); err != nil {
			return err
		}
	}

	id := store.NewRun(run.Pcap, run.Calibration, run.ChunkSize)
	out, err := openSink(run, id)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.close(); err == nil {
			err = cerr
		}
	}()

	fmt.Printf("run %s: %s -> %s\n", id.ID, run.Pcap, run.Format)
	progress := pipeline.WriterFunc(func(index int, ms []geometry.Measurement) error {
		if err := out.WriteChunk(index, ms); err != nil {
			return err
		}
		fmt.Printf("chunk %d: %d points\n", index, len(ms))
		return nil
	})

	report, err := pipeline.Run(ctx, src, cal, run.ChunkSize, progress)
	if err != nil {
		return err
	}

	m := newManifest(id, run, report, out.outputs())
	path := manifestPath(run)
	if err = writeManifest(path, m); err != nil {
		return err
	}
	fmt.Printf("%d chunks, %d points, %d truncated packets, manifest %s\n",
		report.Stats.ChunksWritten, report.Stats.Measurements, report.Stats.TruncatedPackets, path)
	return nil
}

func manifestPath(run config.Run) string {
	dir := run.OutDir
	if dir == "" {
		dir = filepath.Dir(run.Pcap)
	}
	base := filepath.Base(run.Pcap)
	return filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base))+"_manifest.json")
}
