// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package edf reads and writes the European Data Format, used here as a
// neutral multi-channel container for indentation traces.
package edf

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Version0 is the only version of the EDF standard.
const Version0 = "0"

const (
	fixedHeaderBytes  = 256
	signalHeaderBytes = 256
	// maxRecordBytes is the data record size recommended by the standard.
	maxRecordBytes = 61440
)

// Header is the EDF file header.
type Header struct {
	Version        string
	Subject        string        // local subject (specimen) identification
	Recording      string        // local recording identification
	Start          time.Time     // start of the recording, second resolution
	HeaderBytes    int           // size of the header including signal headers
	DataRecords    int           // -1 while the writer is open
	RecordDuration time.Duration // nominal duration of one data record
	Signals        []Signal
}

// Signal is the header of one signal.
type Signal struct {
	Label            string
	Transducer       string
	Dimension        string // physical unit, e.g. "um", "mN"
	PhysicalMin      float64
	PhysicalMax      float64
	DigitalMin       int
	DigitalMax       int
	Prefiltering     string
	SamplesPerRecord int
}

// signalField is one column of the signal header block. Each field is
// stored for all signals before the next field starts.
type signalField struct {
	name   string
	width  int
	format func(*Signal) string
	parse  func(*Signal, string) error
}

var signalFields = []signalField{
	{"label", 16,
		func(s *Signal) string { return s.Label },
		func(s *Signal, v string) error { s.Label = v; return nil }},
	{"transducer", 80,
		func(s *Signal) string { return s.Transducer },
		func(s *Signal, v string) error { s.Transducer = v; return nil }},
	{"physical dimension", 8,
		func(s *Signal) string { return s.Dimension },
		func(s *Signal, v string) error { s.Dimension = v; return nil }},
	{"physical minimum", 8,
		func(s *Signal) string { return formatPhysical(s.PhysicalMin, false) },
		func(s *Signal, v string) error { return parseFloat(v, &s.PhysicalMin) }},
	{"physical maximum", 8,
		func(s *Signal) string { return formatPhysical(s.PhysicalMax, true) },
		func(s *Signal, v string) error { return parseFloat(v, &s.PhysicalMax) }},
	{"digital minimum", 8,
		func(s *Signal) string { return strconv.Itoa(s.DigitalMin) },
		func(s *Signal, v string) error { return parseInt(v, &s.DigitalMin) }},
	{"digital maximum", 8,
		func(s *Signal) string { return strconv.Itoa(s.DigitalMax) },
		func(s *Signal, v string) error { return parseInt(v, &s.DigitalMax) }},
	{"prefiltering", 80,
		func(s *Signal) string { return s.Prefiltering },
		func(s *Signal, v string) error { s.Prefiltering = v; return nil }},
	{"samples per record", 8,
		func(s *Signal) string { return strconv.Itoa(s.SamplesPerRecord) },
		func(s *Signal, v string) error { return parseInt(v, &s.SamplesPerRecord) }},
	{"reserved", 32,
		func(*Signal) string { return "" },
		func(*Signal, string) error { return nil }},
}

// formatPhysical renders v in at most 8 characters with as many decimals as
// fit. The value is rounded outwards (up when ceil is set) so that a range
// written as header text still contains the original value.
func formatPhysical(v float64, ceil bool) string {
	if s := strconv.FormatFloat(v, 'f', -1, 64); len(s) <= 8 {
		return s
	}
	for decimals := 7; decimals >= 0; decimals-- {
		scale := math.Pow10(decimals)
		r := math.Floor(v * scale)
		if ceil {
			r = math.Ceil(v * scale)
		}
		s := strconv.FormatFloat(r/scale, 'f', decimals, 64)
		if len(s) <= 8 {
			return s
		}
	}
	return strconv.FormatFloat(v, 'g', 2, 64)
}

// NormalizePhysical returns the physical range as it will read back from
// the header text.
func NormalizePhysical(lo, hi float64) (float64, float64, error) {
	if hi <= lo {
		hi = lo + 1
	}
	l, err := strconv.ParseFloat(formatPhysical(lo, false), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("physical minimum %g: %w", lo, err)
	}
	h, err := strconv.ParseFloat(formatPhysical(hi, true), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("physical maximum %g: %w", hi, err)
	}
	return l, h, nil
}

func pad(s string, width int) (string, error) {
	if len(s) > width {
		return "", fmt.Errorf("%q exceeds %d bytes", s, width)
	}
	return s + strings.Repeat(" ", width-len(s)), nil
}

func parseFloat(v string, dst *float64) error {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return err
	}
	*dst = f
	return nil
}

func parseInt(v string, dst *int) error {
	i, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = i
	return nil
}
