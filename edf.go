// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package nanoindent

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/OpenPSG/nanoindent/internal/edf"
	"gonum.org/v1/gonum/floats"
)

// Signal labels of an indentation trace stored as EDF.
const (
	LabelTime      = "time"
	LabelTimeFine  = "time fine"
	LabelDepth     = "depth"
	LabelForce     = "force"
	LabelStiffness = "stiffness"
)

// unitScale converts a physical dimension into the canonical unit of a
// channel.
var unitScale = map[string]map[string]float64{
	LabelTime:      {"s": 1, "ms": 1e-3, "min": 60},
	LabelTimeFine:  {"s": 1, "ms": 1e-3, "min": 60},
	LabelDepth:     {"um": 1, "nm": 1e-3, "mm": 1e3, "m": 1e6},
	LabelForce:     {"mN": 1, "uN": 1e-3, "N": 1e3},
	LabelStiffness: {"mN/um": 1, "uN/nm": 1, "N/m": 1e-3},
}

var canonicalUnit = map[string]string{
	LabelTime:      "s",
	LabelTimeFine:  "s",
	LabelDepth:     "um",
	LabelForce:     "mN",
	LabelStiffness: "mN/um",
}

// WriteEDF stores a test as an EDF recording with one signal per channel in
// canonical units. Samples are quantised to 16 bits over each channel's
// range; the valid mask is not stored. Time is split into a coarse signal
// and a fine signal holding the quantisation residual, so that long traces
// keep distinct time stamps. WriteEDF fails rather than merge two distinct
// time stamps.
func WriteEDF(w io.WriteSeeker, test *Test) error {
	if err := test.Check(); err != nil {
		return err
	}
	n := test.Len()
	if n == 0 {
		return fmt.Errorf("test %q has no samples", test.Name)
	}
	nch := 4
	if test.Stiffness != nil {
		nch++
	}
	perRecord := min(n, 61440/(2*nch))

	coarse, err := edf.Signal{
		Label:       LabelTime,
		PhysicalMin: floats.Min(test.T),
		PhysicalMax: floats.Max(test.T),
	}.Normalized()
	if err != nil {
		return fmt.Errorf("error writing test %q: %w", test.Name, err)
	}
	fine, err := edf.Signal{
		Label:       LabelTimeFine,
		PhysicalMin: -coarse.Step(),
		PhysicalMax: coarse.Step(),
	}.Normalized()
	if err != nil {
		return fmt.Errorf("error writing test %q: %w", test.Name, err)
	}
	residual := make([]float64, n)
	for i, v := range test.T {
		residual[i] = v - coarse.Quantize(v)
		if i == 0 || test.T[i] <= test.T[i-1] {
			continue
		}
		cur := coarse.Quantize(v) + fine.Quantize(residual[i])
		prev := coarse.Quantize(test.T[i-1]) + fine.Quantize(residual[i-1])
		if cur <= prev {
			return fmt.Errorf("test %q: time stamps %g and %g at sample %d collapse in EDF",
				test.Name, test.T[i-1], v, i)
		}
	}

	labels := []string{LabelTime, LabelTimeFine, LabelDepth, LabelForce}
	channels := [][]float64{test.T, residual, test.H, test.P}
	if test.Stiffness != nil {
		labels = append(labels, LabelStiffness)
		channels = append(channels, test.Stiffness)
	}
	hdr := edf.Header{
		Subject:        test.Name,
		Recording:      fmt.Sprintf("samples=%d method=%s", n, test.Method),
		Start:          time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		RecordDuration: time.Second,
	}
	for i, label := range labels {
		sig := edf.Signal{
			Label:       label,
			PhysicalMin: floats.Min(channels[i]),
			PhysicalMax: floats.Max(channels[i]),
		}
		switch label {
		case LabelTime:
			sig = coarse
		case LabelTimeFine:
			sig = fine
		}
		sig.Dimension = canonicalUnit[label]
		sig.SamplesPerRecord = perRecord
		hdr.Signals = append(hdr.Signals, sig)
	}

	ew, err := edf.Create(w, hdr)
	if err != nil {
		return fmt.Errorf("error writing test %q: %w", test.Name, err)
	}
	record := make([][]float64, len(channels))
	for start := 0; start < n; start += perRecord {
		for i, ch := range channels {
			record[i] = make([]float64, perRecord)
			for j := range record[i] {
				// The last record repeats the final sample.
				record[i][j] = ch[min(start+j, n-1)]
			}
		}
		if err := ew.WriteRecord(record); err != nil {
			return fmt.Errorf("error writing test %q: %w", test.Name, err)
		}
	}
	return ew.Close()
}

// ReadEDF reads a test from an EDF recording holding time, depth and force
// signals and optionally a stiffness signal.
func ReadEDF(r io.ReadSeeker, name string) (*Test, error) {
	er, err := edf.Open(r)
	if err != nil {
		return nil, err
	}
	hdr := er.Header()

	read := func(label string, required bool) ([]float64, error) {
		idx := er.SignalIndex(label)
		if idx < 0 {
			if required {
				return nil, fmt.Errorf("no %s signal", label)
			}
			return nil, nil
		}
		dim := strings.ReplaceAll(hdr.Signals[idx].Dimension, "µ", "u")
		scale, ok := unitScale[label][dim]
		if !ok {
			return nil, fmt.Errorf("%s signal: unsupported dimension %q", label, hdr.Signals[idx].Dimension)
		}
		sr, err := er.Signal(idx)
		if err != nil {
			return nil, err
		}
		values, err := sr.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("error reading %s signal: %w", label, err)
		}
		floats.Scale(scale, values)
		return values, nil
	}

	t, err := read(LabelTime, true)
	if err != nil {
		return nil, err
	}
	tf, err := read(LabelTimeFine, false)
	if err != nil {
		return nil, err
	}
	if tf != nil {
		if len(tf) != len(t) {
			return nil, fmt.Errorf("%s signal has %d samples, expected %d", LabelTimeFine, len(tf), len(t))
		}
		floats.Add(t, tf)
	}
	h, err := read(LabelDepth, true)
	if err != nil {
		return nil, err
	}
	p, err := read(LabelForce, true)
	if err != nil {
		return nil, err
	}
	s, err := read(LabelStiffness, false)
	if err != nil {
		return nil, err
	}

	n := min(len(t), len(h), len(p))
	method := MethodISO
	for _, field := range strings.Fields(hdr.Recording) {
		key, value, _ := strings.Cut(field, "=")
		switch key {
		case "samples":
			if v, err := strconv.Atoi(value); err == nil && v >= 0 && v < n {
				n = v
			}
		case "method":
			for _, m := range []Method{MethodISO, MethodMulti, MethodCSM} {
				if value == m.String() {
					method = m
				}
			}
		}
	}

	if name == "" {
		name = hdr.Subject
	}
	test, err := NewTest(name, t[:n], h[:n], p[:n])
	if err != nil {
		return nil, err
	}
	test.Method = method
	if s != nil {
		if len(s) < n {
			return nil, fmt.Errorf("stiffness signal has %d samples, expected %d", len(s), n)
		}
		test.Stiffness = s[:n]
	}
	return test, nil
}

// EDFSource reads one test per EDF file.
type EDFSource struct {
	vendor Vendor
	paths  []string
}

// NewEDFSource returns a source over the given files. Files are opened
// lazily by Test.
func NewEDFSource(vendor Vendor, paths ...string) *EDFSource {
	return &EDFSource{vendor: vendor, paths: paths}
}

func (s *EDFSource) Vendor() Vendor { return s.vendor }

func (s *EDFSource) Len() int { return len(s.paths) }

// Test reads the i-th file. The test is named after the file.
func (s *EDFSource) Test(i int) (*Test, error) {
	if i < 0 || i >= len(s.paths) {
		return nil, fmt.Errorf("test index %d out of range [0, %d)", i, len(s.paths))
	}
	f, err := os.Open(s.paths[i])
	if err != nil {
		return nil, err
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(s.paths[i]), filepath.Ext(s.paths[i]))
	test, err := ReadEDF(f, name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.paths[i], err)
	}
	test.Vendor = s.vendor
	return test, nil
}
