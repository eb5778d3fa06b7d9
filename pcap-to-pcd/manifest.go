package main

import (
	"encoding/json"
	"os"
	"time"

	"lidarextract/pkg/config"
	"lidarextract/pkg/pipeline"
	"lidarextract/pkg/store"
)

// manifest records what one run read and produced.
type manifest struct {
	RunID       string    `json:"run_id"`
	Capture     string    `json:"capture"`
	Calibration string    `json:"calibration"`
	ChunkSize   int       `json:"chunk_size"`
	Format      string    `json:"format"`
	Started     time.Time `json:"started"`
	Finished    time.Time `json:"finished"`
	Outputs     []string  `json:"outputs"`
	pipeline.Report
}

func newManifest(id store.Run, run config.Run, report *pipeline.Report, outputs []string) *manifest {
	if outputs == nil {
		outputs = []string{}
	}
	return &manifest{
		RunID:       id.ID,
		Capture:     run.Pcap,
		Calibration: run.Calibration,
		ChunkSize:   run.ChunkSize,
		Format:      run.Format,
		Started:     id.Started,
		Finished:    time.Now(),
		Outputs:     outputs,
		Report:      *report,
	}
}

func writeManifest(path string, m *manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
