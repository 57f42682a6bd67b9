// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package nanoindent analyses nanoindentation load-hold-unload experiments
// with the Oliver-Pharr method and calibrates the indenter tip.
//
// Units are fixed throughout: force [mN], length [µm], time [s],
// modulus and stress [GPa].
package nanoindent

import "fmt"

// Method is the indentation test method.
type Method int

const (
	MethodISO   Method = iota // one unloading
	MethodMulti               // several unloadings in one loading curve
	MethodCSM                 // continuous stiffness measurement
)

func (m Method) String() string {
	switch m {
	case MethodISO:
		return "ISO"
	case MethodMulti:
		return "Multi"
	case MethodCSM:
		return "CSM"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// Cycle holds the sample indices of one load-hold-unload cycle.
type Cycle struct {
	LoadStart   int // First sample of loading
	LoadEnd     int // First sample after loading (start of hold)
	UnloadStart int // First sample of unloading
	UnloadEnd   int // First sample after unloading
}

// Ordered reports whether LoadStart < LoadEnd <= UnloadStart < UnloadEnd.
func (c Cycle) Ordered() bool {
	return c.LoadStart < c.LoadEnd && c.LoadEnd <= c.UnloadStart && c.UnloadStart < c.UnloadEnd
}

func (c Cycle) indices() []int {
	return []int{c.LoadStart, c.LoadEnd, c.UnloadStart, c.UnloadEnd}
}

// Drift locates the quasi-static interval after the last unload.
type Drift struct {
	Start int
	End   int
}

// Valid reports whether the drift segment has been located.
func (d Drift) Valid() bool {
	return d.Start >= 0 && d.Start < d.End
}

// Test is one indentation experiment as produced by a Source.
type Test struct {
	Name   string
	Vendor Vendor
	Method Method

	T     []float64 // Time [s]
	H     []float64 // Depth [µm]
	P     []float64 // Force [mN]
	Valid []bool    // Samples usable for Oliver-Pharr evaluation

	// Stiffness is the optional per-sample harmonic stiffness [mN/µm] of
	// CSM tests.
	Stiffness []float64

	// Filled by segmentation.
	Cycles []Cycle
	Drift  Drift
}

// NewTest builds a test with an all-true valid mask.
func NewTest(name string, t, h, p []float64) (*Test, error) {
	test := &Test{Name: name, T: t, H: h, P: p, Valid: make([]bool, len(h)), Drift: Drift{-1, -1}}
	for i := range test.Valid {
		test.Valid[i] = true
	}
	if err := test.Check(); err != nil {
		return nil, err
	}
	return test, nil
}

// Check verifies that all per-sample sequences are aligned.
func (t *Test) Check() error {
	n := len(t.H)
	if len(t.P) != n || len(t.T) != n || len(t.Valid) != n {
		return fmt.Errorf("test %q: misaligned arrays: h=%d p=%d t=%d valid=%d", t.Name, n, len(t.P), len(t.T), len(t.Valid))
	}
	if t.Stiffness != nil && len(t.Stiffness) != n {
		return fmt.Errorf("test %q: stiffness has %d samples, expected %d", t.Name, len(t.Stiffness), n)
	}
	return nil
}

// Len returns the number of samples.
func (t *Test) Len() int {
	return len(t.H)
}

// Clone returns a deep copy.
func (t *Test) Clone() *Test {
	c := *t
	c.T = append([]float64(nil), t.T...)
	c.H = append([]float64(nil), t.H...)
	c.P = append([]float64(nil), t.P...)
	c.Valid = append([]bool(nil), t.Valid...)
	if t.Stiffness != nil {
		c.Stiffness = append([]float64(nil), t.Stiffness...)
	}
	c.Cycles = append([]Cycle(nil), t.Cycles...)
	return &c
}

// Result holds the analysis of one test. The per-point slices share the
// same length: one entry per cycle, or one per evaluated sample for CSM.
type Result struct {
	Test   string
	Method Method
	Cycles []Cycle // evaluated cycles
	Drift  Drift
	// DriftRate [µm/s], zero unless drift correction ran.
	DriftRate float64

	Index        []int     // evaluated sample in Trace
	Stiffness    []float64 // S = dP/dh [mN/µm]
	Depth        []float64 // Compliance corrected depth [µm]
	Force        []float64 // [mN]
	ModulusRed   []float64 // [GPa]
	Modulus      []float64 // [GPa]
	Area         []float64 // Projected contact area [µm²]
	ContactDepth []float64 // [µm]
	Hardness     []float64 // [GPa]
	K2P          []float64 // Stiffness squared over load [mN/µm²]

	// LowConfidence marks points whose contact area was clamped.
	LowConfidence []bool
	// Fits holds the unloading fit of each cycle, nil for CSM.
	Fits []UnloadingFit
	// Valid marks the evaluated samples of Trace.
	Valid []bool

	// Trace is the segmented and depth corrected copy of the test.
	Trace *Test
	// Errors collects the isolated failures of segmentation and cycles.
	Errors []error
}

// Summary is the mean and standard deviation of a quantity.
type Summary struct {
	Mean float64
	Std  float64
	N    int
}
