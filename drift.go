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
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/stat"
)

// DriftRate returns the thermal drift rate [µm/s] as the least-squares slope
// of depth over time in the second half of the drift segment. The test must
// have been segmented.
func DriftRate(test *Test) (float64, error) {
	d := test.Drift
	if !d.Valid() || d.End >= test.Len() {
		return 0, fmt.Errorf("test %q: no drift segment", test.Name)
	}
	start := d.Start + (d.End-d.Start)/2
	t, h := test.T[start:d.End+1], test.H[start:d.End+1]
	if len(t) < 2 || t[len(t)-1] == t[0] {
		return 0, fmt.Errorf("test %q: drift segment too short: %d samples", test.Name, len(t))
	}
	_, rate := stat.LinearRegression(t, h, nil, false)
	return rate, nil
}

// DriftSpectrum returns the single-sided amplitude spectrum of the linearly
// detrended depth in the drift segment, assuming uniform sampling at the
// mean time step. freq is in Hz and amp in µm.
func DriftSpectrum(test *Test) (freq, amp []float64, err error) {
	d := test.Drift
	if !d.Valid() || d.End >= test.Len() {
		return nil, nil, fmt.Errorf("test %q: no drift segment", test.Name)
	}
	t, h := test.T[d.Start:d.End+1], test.H[d.Start:d.End+1]
	n := len(t)
	if n < 4 {
		return nil, nil, fmt.Errorf("test %q: drift segment too short: %d samples", test.Name, n)
	}
	dt := (t[n-1] - t[0]) / float64(n-1)
	if !(dt > 0) {
		return nil, nil, fmt.Errorf("test %q: drift segment has no time extent", test.Name)
	}

	offset, slope := stat.LinearRegression(t, h, nil, false)
	detrended := make([]float64, n)
	for i := range h {
		detrended[i] = h[i] - (offset + slope*t[i])
	}

	spectrum := fft.FFTReal(detrended)
	half := n/2 + 1
	freq = make([]float64, half)
	amp = make([]float64, half)
	for i := 0; i < half; i++ {
		freq[i] = float64(i) / (float64(n) * dt)
		amp[i] = 2 * cmplx.Abs(spectrum[i]) / float64(n)
	}
	amp[0] /= 2
	return freq, amp, nil
}
