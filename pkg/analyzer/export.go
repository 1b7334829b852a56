package analyzer

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"pinscope/pkg/config"
	"pinscope/pkg/flashstore"
)

// ErrNoCapture is returned by the export operations when the active mode
// keeps no in-RAM capture to export.
var ErrNoCapture = errors.New("analyzer: no in-memory capture to export")

type exportSample struct {
	TimeUs uint64 `json:"time_us"`
	Level  int    `json:"level"`
}

type exportCapture struct {
	SampleRateHz int            `json:"sample_rate_hz"`
	TriggerMode  string         `json:"trigger_mode"`
	SampleCount  int            `json:"sample_count"`
	Samples      []exportSample `json:"samples"`
}

// ExportJSON writes the current RAM capture as a JSON document. Flash and
// streaming sessions live on flash already and are not re-serialized here.
func (a *Analyzer) ExportJSON(w io.Writer) error {
	samples := a.ctrl.snapshot()
	if samples == nil {
		return ErrNoCapture
	}

	out := exportCapture{
		SampleRateHz: a.cfg.Logic.SampleRateHz,
		TriggerMode:  a.cfg.Logic.TriggerMode.String(),
		SampleCount:  len(samples),
		Samples:      make([]exportSample, 0, len(samples)),
	}
	for _, s := range samples {
		level := 0
		if s.Level {
			level = 1
		}
		out.Samples = append(out.Samples, exportSample{TimeUs: s.Time, Level: level})
	}

	enc := json.NewEncoder(w)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to encode capture: %w", err)
	}
	return nil
}

// ExportCSV writes the current RAM capture as "time_us,level" rows.
func (a *Analyzer) ExportCSV(w io.Writer) error {
	samples := a.ctrl.snapshot()
	if samples == nil {
		return ErrNoCapture
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time_us", "level"}); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, s := range samples {
		level := "0"
		if s.Level {
			level = "1"
		}
		if err := cw.Write([]string{strconv.FormatUint(s.Time, 10), level}); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

// SaveCapture persists the active RAM or compressed capture into a flash
// file with a proper header, outside the live session's budget-managed
// path.
func (a *Analyzer) SaveCapture(path string) error {
	switch a.ctrl.mode {
	case config.BufferRAM:
		samples := a.ctrl.snapshot()
		store, err := flashstore.OpenSampleStore(a.fs, path, a.budget, a.cfg.Flash.ChunkBytes, flashstore.Header{
			Capacity:     uint32(a.cfg.Logic.BufferCapacity),
			SampleRateHz: uint32(a.cfg.Logic.SampleRateHz),
			Compression:  config.CompressionNone,
		})
		if err != nil {
			return fmt.Errorf("failed to save capture: %w", err)
		}
		for _, s := range samples {
			if err := store.WriteSample(s); err != nil {
				store.Close()
				return fmt.Errorf("failed to save capture: %w", err)
			}
		}
		return store.Close()

	case config.BufferCompressed:
		records := a.ctrl.records()
		store, err := flashstore.OpenSampleStore(a.fs, path, a.budget, a.cfg.Flash.ChunkBytes, flashstore.Header{
			Capacity:     uint32(a.cfg.Logic.BufferCapacity),
			SampleRateHz: uint32(a.cfg.Logic.SampleRateHz),
			Compression:  a.ctrl.compression,
		})
		if err != nil {
			return fmt.Errorf("failed to save capture: %w", err)
		}
		for _, r := range records {
			if err := store.WriteRecord(r); err != nil {
				store.Close()
				return fmt.Errorf("failed to save capture: %w", err)
			}
		}
		return store.Close()

	default:
		return ErrNoCapture
	}
}
