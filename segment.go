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
	"slices"

	"github.com/OpenPSG/nanoindent/internal/numeric"
	"gonum.org/v1/gonum/floats"
)

// minCleanLength is the number of samples below which the masks are not
// cleaned morphologically.
const minCleanLength = 100

// Segment identifies the load-hold-unload cycles and the drift segment.
//
// It returns a copy of the test with samples at duplicated timestamps
// removed and Cycles, Drift and Method filled in; indices refer to the
// returned copy. Like io.Reader, it may return both a usable test and an
// error: an error wrapping ErrSegmentation marks the test as unsuccessful,
// while the cycles that passed the ordering check remain usable. The input
// is never modified.
func (a *Analyzer) Segment(test *Test) (*Test, error) {
	if err := test.Check(); err != nil {
		return nil, err
	}
	out := dropDuplicateTimes(test)
	out.Cycles = nil
	out.Drift = Drift{-1, -1}
	if out.Len() < 5 {
		return out, &CycleError{Test: test.Name, Stage: "segment", Cycle: -1, Index: []int{out.Len()},
			Err: fmt.Errorf("%w: too few samples", ErrSegmentation)}
	}

	if out.Method == MethodCSM {
		return out, a.segmentCSM(out)
	}

	loadIdx, unloadIdx, ok := a.rateEdges(out)
	if !ok {
		a.log.Warn("no stable load/unload edge pattern, using coarse segmentation", "test", test.Name)
		return out, a.segmentCSM(out)
	}

	// Partial unload, hold, full unload: the drift pattern adds one trailing
	// unload pair.
	if len(unloadIdx) == len(loadIdx)+2 && len(unloadIdx) >= 4 && len(loadIdx) > 0 {
		last := loadIdx[len(loadIdx)-1]
		if slices.Min(unloadIdx[len(unloadIdx)-4:]) > last {
			a.log.Debug("dropping trailing unload pair", "test", test.Name)
			unloadIdx = unloadIdx[:len(unloadIdx)-2]
		}
	}
	for len(unloadIdx) < len(loadIdx) && len(loadIdx) > 2 && loadIdx[2] < unloadIdx[0] {
		loadIdx = loadIdx[2:]
	}

	var segErr error
	if len(loadIdx) != len(unloadIdx) {
		a.log.Error("load-hold-unload identification did not work", "test", test.Name,
			"load", loadIdx, "unload", unloadIdx)
		segErr = &CycleError{Test: test.Name, Stage: "segment", Cycle: -1,
			Index: append(append([]int(nil), loadIdx...), unloadIdx...),
			Err:   fmt.Errorf("%w: %d load edges, %d unload edges", ErrSegmentation, len(loadIdx), len(unloadIdx))}
	}

	n := out.Len()
	pairs := min(len(loadIdx), len(unloadIdx)) / 2
	for i := 0; i < pairs; i++ {
		c := Cycle{loadIdx[2*i], loadIdx[2*i+1], unloadIdx[2*i], unloadIdx[2*i+1]}
		if !c.Ordered() || c.LoadStart < 0 || c.UnloadEnd >= n {
			a.log.Error("dropping malformed cycle", "test", test.Name, "cycle", i, "indices", c.indices())
			if segErr == nil {
				segErr = &CycleError{Test: test.Name, Stage: "segment", Cycle: i, Index: c.indices(),
					Err: fmt.Errorf("%w: cycle indices out of order or bounds", ErrSegmentation)}
			}
			continue
		}
		out.Cycles = append(out.Cycles, c)
	}
	if len(out.Cycles) == 0 && segErr == nil {
		segErr = &CycleError{Test: test.Name, Stage: "segment", Cycle: -1,
			Err: fmt.Errorf("%w: no load-hold-unload cycle", ErrSegmentation)}
	}
	if len(out.Cycles) > 1 {
		out.Method = MethodMulti
	}

	if len(unloadIdx) >= 2 {
		start := unloadIdx[2*(len(unloadIdx)/2)-1] + 1
		end := n - 1
		if start+1 > end {
			start = end - 1
		}
		out.Drift = Drift{start, end}
	}
	return out, segErr
}

// rateEdges classifies every sample by its normalised force rate and
// returns the alternating start/end indices of loading and unloading.
func (a *Analyzer) rateEdges(test *Test) (loadIdx, unloadIdx []int, ok bool) {
	var p []float64
	switch a.cfg.RateFilter {
	case FilterMedian:
		p = numeric.MedianFilter(test.P, int(a.cfg.RateFilterWidth))
	default:
		p = numeric.GaussianFilter(test.P, a.cfg.RateFilterWidth)
	}
	rate := numeric.Gradient(p, test.T)
	maxRate := floats.Max(rate)
	if !(maxRate > 0) {
		return nil, nil, false
	}
	floats.Scale(1/maxRate, rate)

	n := len(rate)
	loadMask := make([]bool, n)
	unloadMask := make([]bool, n)
	for i, r := range rate {
		loadMask[i] = r > a.cfg.RelForceRateNoise && p[i] > a.cfg.ForceNoise
		unloadMask[i] = r < -a.cfg.RelForceRateNoise && p[i] > a.cfg.ForceNoise
	}

	if n > minCleanLength {
		size := a.cfg.MaxSizeFluctuations
		loadTry := numeric.Open(numeric.Close(loadMask, size), size)
		unloadTry := numeric.Open(numeric.Close(unloadMask, size), size)
		if numeric.Any(loadTry) && numeric.Any(unloadTry) {
			loadMask, unloadMask = loadTry, unloadTry
		}
	}

	loadIdx = numeric.Edges(loadMask)
	unloadIdx = numeric.Edges(unloadMask)
	return loadIdx, unloadIdx, len(loadIdx) > 0 && len(unloadIdx) > 0
}

// segmentCSM builds a single coarse cycle from force thresholds and locates
// the drift segment at the modal post-hold force. It serves CSM tests and
// traces without a stable edge pattern.
func (a *Analyzer) segmentCSM(test *Test) error {
	n := test.Len()
	h, p := test.H, test.P

	iSurface := -1
	for i, v := range h {
		if v >= 0 {
			iSurface = i
			break
		}
	}
	pMax := floats.Max(p)
	threshold := pMax * a.cfg.UnloadPMax
	iLoad, iHold := -1, -1
	for i, v := range p {
		if v > threshold {
			if iLoad < 0 {
				iLoad = i
			}
			iHold = i
		}
	}
	if iSurface < 0 || iLoad < 0 || !(pMax > a.cfg.ForceNoise) {
		return &CycleError{Test: test.Name, Stage: "segment", Cycle: -1, Index: []int{iSurface, iLoad},
			Err: fmt.Errorf("%w: no samples above surface and force thresholds", ErrSegmentation)}
	}

	var iDriftS, iDriftE int
	if iLoad < n-1 {
		if iHold == iLoad {
			iHold++
		}
		pDrift, err := numeric.HistogramMode(p[iHold:], 1000)
		if err != nil {
			return &CycleError{Test: test.Name, Stage: "segment", Cycle: -1, Index: []int{iHold},
				Err: fmt.Errorf("%w: drift force histogram: %v", ErrSegmentation, err)}
		}
		iDriftS, iDriftE = -1, -1
		count := 0
		for i := iHold; i < n; i++ {
			if p[i] > pDrift*a.cfg.UnloadPMax && p[i] < pDrift/a.cfg.UnloadPMax {
				if iDriftS < 0 {
					iDriftS = i
				}
				iDriftE = i
				count++
			}
		}
		if count <= 3 {
			iDriftS, iDriftE = n-2, n-1
		}
		if !(iSurface < iLoad && iLoad < iHold && iHold < iDriftS && iDriftS < iDriftE && iDriftE < n) {
			a.log.Warn("could not identify load-hold-unload cycle, only loading?", "test", test.Name,
				"indices", []int{iSurface, iLoad, iHold, iDriftS, iDriftE})
			iLoad, iHold, iDriftS, iDriftE = n-4, n-3, n-2, n-1
		}
	} else {
		if test.Method != MethodCSM {
			a.log.Warn("no hold or unloading segment in data", "test", test.Name)
		}
		iLoad, iHold, iDriftS, iDriftE = n-4, n-3, n-2, n-1
	}
	if iSurface >= iLoad {
		iSurface = 0
	}

	test.Cycles = []Cycle{{iSurface, iLoad, iHold, iDriftS}}
	test.Drift = Drift{iDriftS, iDriftE}
	return nil
}

// dropDuplicateTimes removes samples whose time increment is below 1/1000
// of the 80th percentile increment. The first sample is always dropped,
// it has no increment.
func dropDuplicateTimes(test *Test) *Test {
	out := test.Clone()
	dt := numeric.Diff(test.T)
	if len(dt) == 0 {
		return out
	}
	threshold := numeric.Percentile(dt, 80) / 1e3
	out.T, out.H, out.P, out.Valid = out.T[:0], out.H[:0], out.P[:0], out.Valid[:0]
	if out.Stiffness != nil {
		out.Stiffness = out.Stiffness[:0]
	}
	for i, d := range dt {
		if d < threshold {
			continue
		}
		j := i + 1
		out.T = append(out.T, test.T[j])
		out.H = append(out.H, test.H[j])
		out.P = append(out.P, test.P[j])
		out.Valid = append(out.Valid, test.Valid[j])
		if test.Stiffness != nil {
			out.Stiffness = append(out.Stiffness, test.Stiffness[j])
		}
	}
	return out
}
