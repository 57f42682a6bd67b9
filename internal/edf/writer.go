// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package edf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Writer writes EDF files.
type Writer struct {
	w           io.WriteSeeker
	hdr         *Header
	dataRecords int // Number of data records written so far.
}

// Create writes a provisional header and returns a writer for the data
// records. Physical ranges are normalised to what the header text can hold.
func Create(w io.WriteSeeker, hdr Header) (*Writer, error) {
	if len(hdr.Signals) == 0 {
		return nil, fmt.Errorf("no signals")
	}
	if hdr.Version == "" {
		hdr.Version = Version0
	}
	hdr.Signals = append([]Signal(nil), hdr.Signals...)
	recordBytes := 0
	for i, s := range hdr.Signals {
		s, err := s.Normalized()
		if err != nil {
			return nil, err
		}
		hdr.Signals[i] = s
		recordBytes += 2 * s.SamplesPerRecord
	}
	// As recommended by the EDF standard.
	if recordBytes > maxRecordBytes {
		return nil, fmt.Errorf("data record too large: %d bytes, max is %d bytes", recordBytes, maxRecordBytes)
	}
	hdr.HeaderBytes = fixedHeaderBytes + len(hdr.Signals)*signalHeaderBytes
	hdr.DataRecords = -1

	ew := &Writer{w: w, hdr: &hdr}
	if err := ew.writeHeader(); err != nil {
		return nil, fmt.Errorf("error writing header: %w", err)
	}
	return ew, nil
}

// Header returns the header as written, with normalised physical ranges.
func (ew *Writer) Header() Header {
	return *ew.hdr
}

// WriteRecord writes one data record; signals[i] must hold exactly
// SamplesPerRecord samples of signal i.
func (ew *Writer) WriteRecord(signals [][]float64) error {
	if len(signals) != len(ew.hdr.Signals) {
		return fmt.Errorf("expected %d signals, got %d", len(ew.hdr.Signals), len(signals))
	}
	if _, err := ew.w.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("error seeking to end: %w", err)
	}

	bw := bufio.NewWriter(ew.w)
	buf := make([]byte, 2)
	for i, s := range ew.hdr.Signals {
		if len(signals[i]) != s.SamplesPerRecord {
			return fmt.Errorf("signal %q: expected %d samples, got %d", s.Label, s.SamplesPerRecord, len(signals[i]))
		}
		for _, v := range signals[i] {
			binary.LittleEndian.PutUint16(buf, uint16(s.toDigital(v)))
			if _, err := bw.Write(buf); err != nil {
				return err
			}
		}
	}
	if err := bw.Flush(); err != nil {
		return err
	}

	ew.dataRecords++
	return nil
}

// Close rewrites the header with the number of data records.
func (ew *Writer) Close() error {
	ew.hdr.DataRecords = ew.dataRecords
	if err := ew.writeHeader(); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}
	return nil
}

func (ew *Writer) writeHeader() error {
	if _, err := ew.w.Seek(0, io.SeekStart); err != nil {
		return err
	}

	var sb strings.Builder
	fixed := []struct {
		value string
		width int
	}{
		{ew.hdr.Version, 8},
		{ew.hdr.Subject, 80},
		{ew.hdr.Recording, 80},
		{ew.hdr.Start.Format("02.01.06"), 8},
		{ew.hdr.Start.Format("15.04.05"), 8},
		{strconv.Itoa(ew.hdr.HeaderBytes), 8},
		{"", 44},
		{strconv.Itoa(ew.hdr.DataRecords), 8},
		{formatPhysical(ew.hdr.RecordDuration.Seconds(), true), 8},
		{strconv.Itoa(len(ew.hdr.Signals)), 4},
	}
	for _, f := range fixed {
		v, err := pad(f.value, f.width)
		if err != nil {
			return err
		}
		sb.WriteString(v)
	}
	for _, f := range signalFields {
		for i := range ew.hdr.Signals {
			v, err := pad(f.format(&ew.hdr.Signals[i]), f.width)
			if err != nil {
				return fmt.Errorf("%s of signal %d: %w", f.name, i, err)
			}
			sb.WriteString(v)
		}
	}

	_, err := io.WriteString(ew.w, sb.String())
	return err
}

// Normalized returns the signal as Create writes it: the physical range
// rounded outwards to what the header text can hold and the full 16-bit
// digital range if none was set.
func (s Signal) Normalized() (Signal, error) {
	lo, hi, err := NormalizePhysical(s.PhysicalMin, s.PhysicalMax)
	if err != nil {
		return s, fmt.Errorf("signal %q: %w", s.Label, err)
	}
	s.PhysicalMin, s.PhysicalMax = lo, hi
	if s.DigitalMin == 0 && s.DigitalMax == 0 {
		s.DigitalMin, s.DigitalMax = math.MinInt16, math.MaxInt16
	}
	return s, nil
}

// Quantize returns the physical value a reader gets back after v is
// written to a normalised signal.
func (s Signal) Quantize(v float64) float64 {
	return s.toPhysical(s.toDigital(v))
}

// Step is the physical size of one digital step.
func (s Signal) Step() float64 {
	if s.DigitalMax == s.DigitalMin {
		return 0
	}
	return (s.PhysicalMax - s.PhysicalMin) / float64(s.DigitalMax-s.DigitalMin)
}

// toDigital maps a physical value onto the digital range, rounding to the
// nearest step and saturating at the range ends.
func (s Signal) toDigital(physical float64) int16 {
	if s.PhysicalMax == s.PhysicalMin {
		return int16(s.DigitalMin)
	}
	d := (physical-s.PhysicalMin)*float64(s.DigitalMax-s.DigitalMin)/(s.PhysicalMax-s.PhysicalMin) + float64(s.DigitalMin)
	d = math.Round(d)
	d = math.Max(d, float64(s.DigitalMin))
	d = math.Min(d, float64(s.DigitalMax))
	return int16(d)
}
