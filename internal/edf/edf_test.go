// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package edf_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/OpenPSG/nanoindent/internal/edf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter(t *testing.T) {
	f, err := os.OpenFile(filepath.Join(t.TempDir(), "test.edf"), os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, f.Close())
	})

	start := time.Date(2024, 3, 14, 9, 26, 53, 0, time.UTC)
	hdr := edf.Header{
		Version:        edf.Version0,
		Subject:        "fused silica",
		Recording:      "samples=512 method=ISO",
		Start:          start,
		RecordDuration: 60 * time.Second,
		Signals: []edf.Signal{
			{
				Label:            "depth",
				Dimension:        "um",
				PhysicalMin:      0,
				PhysicalMax:      512,
				DigitalMin:       -2048,
				DigitalMax:       2047,
				SamplesPerRecord: 256,
			},
			{
				Label:            "force",
				Dimension:        "mN",
				PhysicalMin:      -1,
				PhysicalMax:      1,
				SamplesPerRecord: 128,
			},
		},
	}

	ew, err := edf.Create(f, hdr)
	require.NoError(t, err)
	assert.Equal(t, 256+2*256, ew.Header().HeaderBytes)

	depth := make([]float64, 256)
	force := make([]float64, 128)
	for rec := 0; rec < 2; rec++ {
		for i := range depth {
			depth[i] = float64(i + rec*256)
		}
		for i := range force {
			force[i] = float64(i)/64 - 1
		}
		require.NoError(t, ew.WriteRecord([][]float64{depth, force}))
	}

	// Close the writer (this writes the header)
	require.NoError(t, ew.Close())

	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)

	er, err := edf.Open(f)
	require.NoError(t, err)

	got := er.Header()
	assert.Equal(t, "fused silica", got.Subject)
	assert.Equal(t, "samples=512 method=ISO", got.Recording)
	assert.True(t, start.Equal(got.Start))
	assert.Equal(t, 2, got.DataRecords)
	assert.Equal(t, 60*time.Second, got.RecordDuration)
	require.Len(t, got.Signals, 2)
	assert.Equal(t, "mN", got.Signals[1].Dimension)
	assert.Equal(t, -32768, got.Signals[1].DigitalMin)
	assert.Equal(t, 1, er.SignalIndex("FORCE"))
	assert.Equal(t, -1, er.SignalIndex("stiffness"))

	sr, err := er.Signal(0)
	require.NoError(t, err)

	samples := make([]float64, 512)
	n, err := sr.Read(samples)
	require.NoError(t, err)
	require.Equal(t, 512, n)
	for i := range samples {
		require.InDelta(t, float64(i), samples[i], 0.1)
	}

	// Reader should now return EOF
	_, err = sr.Read(samples)
	require.Equal(t, io.EOF, err)

	sr, err = er.Signal(1)
	require.NoError(t, err)
	all, err := sr.ReadAll()
	require.NoError(t, err)
	require.Len(t, all, 256)
	for i, v := range all {
		require.InDelta(t, float64(i%128)/64-1, v, 1e-4)
	}
}

func TestWriterSaturates(t *testing.T) {
	f, err := os.OpenFile(filepath.Join(t.TempDir(), "test.edf"), os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, f.Close())
	})

	ew, err := edf.Create(f, edf.Header{
		Start:          time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		RecordDuration: time.Second,
		Signals:        []edf.Signal{{Label: "force", PhysicalMin: 0, PhysicalMax: 10, SamplesPerRecord: 2}},
	})
	require.NoError(t, err)
	require.NoError(t, ew.WriteRecord([][]float64{{-5, 20}}))
	require.NoError(t, ew.Close())

	er, err := edf.Open(f)
	require.NoError(t, err)
	sr, err := er.Signal(0)
	require.NoError(t, err)
	samples, err := sr.ReadAll()
	require.NoError(t, err)
	assert.InDelta(t, 0, samples[0], 1e-9)
	assert.InDelta(t, 10, samples[1], 1e-9)
}

func TestCreateErrors(t *testing.T) {
	f, err := os.OpenFile(filepath.Join(t.TempDir(), "test.edf"), os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, f.Close())
	})

	_, err = edf.Create(f, edf.Header{})
	assert.Error(t, err)

	_, err = edf.Create(f, edf.Header{
		Signals: []edf.Signal{{Label: "depth", PhysicalMax: 1, SamplesPerRecord: 40000}},
	})
	assert.ErrorContains(t, err, "data record too large")

	_, err = edf.Create(f, edf.Header{
		Subject: strings.Repeat("x", 81),
		Signals: []edf.Signal{{Label: "depth", PhysicalMax: 1, SamplesPerRecord: 1}},
	})
	assert.Error(t, err)

	ew, err := edf.Create(f, edf.Header{
		Signals: []edf.Signal{{Label: "depth", PhysicalMax: 1, SamplesPerRecord: 4}},
	})
	require.NoError(t, err)
	assert.Error(t, ew.WriteRecord([][]float64{{0, 1}}))
	assert.Error(t, ew.WriteRecord(nil))
}

func TestOpenInvalid(t *testing.T) {
	_, err := edf.Open(bytes.NewReader([]byte("0       short")))
	assert.Error(t, err)

	// A valid fixed header announcing more signal headers than present.
	var sb strings.Builder
	field := func(v string, width int) {
		sb.WriteString(v + strings.Repeat(" ", width-len(v)))
	}
	field("0", 8)
	field("", 80)
	field("", 80)
	field("01.01.00", 8)
	field("00.00.00", 8)
	field("768", 8)
	field("", 44)
	field("1", 8)
	field("1", 8)
	field("2", 4)
	_, err = edf.Open(bytes.NewReader([]byte(sb.String())))
	assert.ErrorContains(t, err, "signal headers")

	// Header size does not match the signal count.
	sb.Reset()
	field("0", 8)
	field("", 80)
	field("", 80)
	field("01.01.00", 8)
	field("00.00.00", 8)
	field("512", 8)
	field("", 44)
	field("1", 8)
	field("1", 8)
	field("2", 4)
	_, err = edf.Open(bytes.NewReader([]byte(sb.String())))
	assert.ErrorContains(t, err, "inconsistent header")
}

func TestNormalizePhysical(t *testing.T) {
	lo, hi, err := edf.NormalizePhysical(0.123456789, 12.3456789)
	require.NoError(t, err)
	assert.LessOrEqual(t, lo, 0.123456789)
	assert.GreaterOrEqual(t, hi, 12.3456789)
	assert.InDelta(t, 0.123456789, lo, 1e-6)
	assert.InDelta(t, 12.3456789, hi, 1e-5)

	again, _, err := edf.NormalizePhysical(lo, hi)
	require.NoError(t, err)
	assert.Equal(t, lo, again)

	s, err := edf.Signal{PhysicalMin: -0.15, PhysicalMax: 0.15}.Normalized()
	require.NoError(t, err)
	assert.Equal(t, -0.15, s.PhysicalMin)
	assert.InDelta(t, 0.3/65535, s.Step(), 1e-15)
	assert.InDelta(t, 0.1, s.Quantize(0.1), s.Step())

	lo, hi, err = edf.NormalizePhysical(3, 3)
	require.NoError(t, err)
	assert.Equal(t, 3.0, lo)
	assert.Equal(t, 4.0, hi)
}
