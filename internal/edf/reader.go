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
	"strconv"
	"strings"
	"time"
)

// Reader reads EDF files.
type Reader struct {
	r   io.ReadSeeker
	hdr *Header
}

// Open parses the header of an EDF file.
func Open(r io.ReadSeeker) (*Reader, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("error seeking to header: %w", err)
	}
	br := bufio.NewReader(r)

	b := make([]byte, fixedHeaderBytes)
	if _, err := io.ReadFull(br, b); err != nil {
		return nil, fmt.Errorf("error reading header: %w", err)
	}
	text := func(from, to int) string { return strings.TrimSpace(string(b[from:to])) }

	hdr := &Header{
		Version:   text(0, 8),
		Subject:   text(8, 88),
		Recording: text(88, 168),
	}
	start, err := time.Parse("02.01.06 15.04.05", text(168, 176)+" "+text(176, 184))
	if err != nil {
		return nil, fmt.Errorf("error parsing start time: %w", err)
	}
	hdr.Start = start
	if hdr.HeaderBytes, err = strconv.Atoi(text(184, 192)); err != nil {
		return nil, fmt.Errorf("error parsing header bytes: %w", err)
	}
	if hdr.DataRecords, err = strconv.Atoi(text(236, 244)); err != nil {
		return nil, fmt.Errorf("error parsing number of data records: %w", err)
	}
	seconds, err := strconv.ParseFloat(text(244, 252), 64)
	if err != nil {
		return nil, fmt.Errorf("error parsing data record duration: %w", err)
	}
	hdr.RecordDuration = time.Duration(seconds * float64(time.Second))
	signalCount, err := strconv.Atoi(text(252, 256))
	if err != nil {
		return nil, fmt.Errorf("error parsing signal count: %w", err)
	}
	if signalCount < 1 || hdr.HeaderBytes != fixedHeaderBytes+signalCount*signalHeaderBytes {
		return nil, fmt.Errorf("inconsistent header: %d signals in %d bytes", signalCount, hdr.HeaderBytes)
	}

	raw := make([]byte, signalCount*signalHeaderBytes)
	if _, err := io.ReadFull(br, raw); err != nil {
		return nil, fmt.Errorf("error reading signal headers: %w", err)
	}
	hdr.Signals = make([]Signal, signalCount)
	off := 0
	for _, f := range signalFields {
		for i := range hdr.Signals {
			v := strings.TrimSpace(string(raw[off : off+f.width]))
			if err := f.parse(&hdr.Signals[i], v); err != nil {
				return nil, fmt.Errorf("error parsing %s of signal %d: %w", f.name, i, err)
			}
			off += f.width
		}
	}

	return &Reader{r: r, hdr: hdr}, nil
}

// Header returns the parsed header.
func (er *Reader) Header() Header {
	return *er.hdr
}

// SignalIndex returns the index of the first signal with the given label,
// compared case-insensitively, or -1.
func (er *Reader) SignalIndex(label string) int {
	for i, s := range er.hdr.Signals {
		if strings.EqualFold(s.Label, label) {
			return i
		}
	}
	return -1
}

// SignalReader reads the physical values of one signal, a data record at a
// time.
type SignalReader struct {
	r            io.ReadSeeker
	hdr          *Header
	signal       Signal
	recordSize   int64 // bytes per data record
	signalOffset int64 // byte offset of the signal within a record
	record       int   // next record to load
	buf          []float64
}

// Signal returns a reader positioned at the first sample of a signal.
func (er *Reader) Signal(index int) (*SignalReader, error) {
	if index < 0 || index >= len(er.hdr.Signals) {
		return nil, fmt.Errorf("signal index %d out of range", index)
	}
	sr := &SignalReader{r: er.r, hdr: er.hdr, signal: er.hdr.Signals[index]}
	for i, s := range er.hdr.Signals {
		if i < index {
			sr.signalOffset += int64(s.SamplesPerRecord) * 2
		}
		sr.recordSize += int64(s.SamplesPerRecord) * 2
	}
	return sr, nil
}

// Read fills data with physical values. It returns io.EOF once all data
// records are consumed.
func (sr *SignalReader) Read(data []float64) (int, error) {
	n := 0
	for n < len(data) {
		if len(sr.buf) == 0 {
			if err := sr.load(); err != nil {
				return n, err
			}
		}
		c := copy(data[n:], sr.buf)
		sr.buf = sr.buf[c:]
		n += c
	}
	return n, nil
}

// ReadAll returns the remaining samples of the signal.
func (sr *SignalReader) ReadAll() ([]float64, error) {
	var out []float64
	for {
		if len(sr.buf) == 0 {
			if err := sr.load(); err == io.EOF {
				return out, nil
			} else if err != nil {
				return out, err
			}
		}
		out = append(out, sr.buf...)
		sr.buf = nil
	}
}

func (sr *SignalReader) load() error {
	if sr.record >= sr.hdr.DataRecords {
		return io.EOF
	}
	pos := int64(sr.hdr.HeaderBytes) + int64(sr.record)*sr.recordSize + sr.signalOffset
	if _, err := sr.r.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("error seeking to record %d: %w", sr.record, err)
	}
	raw := make([]byte, sr.signal.SamplesPerRecord*2)
	if _, err := io.ReadFull(sr.r, raw); err != nil {
		return fmt.Errorf("error reading record %d: %w", sr.record, err)
	}
	sr.buf = make([]float64, sr.signal.SamplesPerRecord)
	for i := range sr.buf {
		digital := int16(binary.LittleEndian.Uint16(raw[2*i:]))
		sr.buf[i] = sr.signal.toPhysical(digital)
	}
	sr.record++
	return nil
}

func (s Signal) toPhysical(digital int16) float64 {
	if s.DigitalMax == s.DigitalMin {
		return s.PhysicalMin
	}
	return s.PhysicalMin + (float64(digital)-float64(s.DigitalMin))*(s.PhysicalMax-s.PhysicalMin)/float64(s.DigitalMax-s.DigitalMin)
}
