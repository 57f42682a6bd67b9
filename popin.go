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
	"errors"
	"fmt"
	"math"

	"github.com/OpenPSG/nanoindent/internal/numeric"
	"gonum.org/v1/gonum/floats"
)

// PopInOptions tunes the pop-in search.
type PopInOptions struct {
	// RemoveInitial drops the first depth [µm] of the curve, which scatters.
	RemoveInitial float64
	// MaxPlasticFit limits the plastic fit to this many samples after the jump.
	MaxPlasticFit int
	// MinElasticForce is the force [mN] above which the elastic fit starts.
	MinElasticForce float64
}

// DefaultPopInOptions returns the usual settings: 2 nm, 150 samples, 0.01 mN.
func DefaultPopInOptions() PopInOptions {
	return PopInOptions{RemoveInitial: 0.002, MaxPlasticFit: 150, MinElasticForce: 0.01}
}

// PopIn describes the elastic-plastic transition of a loading curve. The
// certainty metrics are advisory.
type PopIn struct {
	Index int     // sample before the jump
	Force float64 // [mN]
	Depth float64 // [µm]

	// Hertzian fit p = Prefactor·(h - H0)^1.5 before the jump.
	Prefactor float64
	H0        float64

	DeltaSlope float64 // elastic minus plastic slope at the jump, higher is better
	DeltaRate  float64 // detrended depth rate of the jump, higher is better
	DeltaH     float64 // depth increment of the jump [µm]
	CovElast   float64 // variance of the prefactor, lower is better
	SecondRate float64 // largest detrended rate 3 or more samples after the jump, lower is better
}

// Correct shifts the depth of test so that the Hertzian fit starts at zero.
func (pi *PopIn) Correct(test *Test) {
	for i := range test.H {
		test.H[i] -= pi.H0
	}
}

func hertz(h, k, h0 float64) float64 {
	return k * math.Pow(math.Max(h-h0, 0), 1.5)
}

// PopIn searches the loading branch for the largest jump in depth rate and
// fits a Hertzian law before and a parabola after it. The loading branch is
// the first cycle's loading of a segmented test, or the whole test.
func (a *Analyzer) PopIn(test *Test, opts PopInOptions) (*PopIn, error) {
	if err := test.Check(); err != nil {
		return nil, err
	}
	start, end := 0, test.Len()
	if len(test.Cycles) > 0 {
		start, end = test.Cycles[0].LoadStart, test.Cycles[0].LoadEnd
	}

	hMin := math.Inf(1)
	for i := start; i < end; i++ {
		if test.Valid[i] {
			hMin = math.Min(hMin, test.H[i])
		}
	}
	var h, p []float64
	var index []int
	for i := start; i < end; i++ {
		if test.Valid[i] && test.H[i]-hMin > opts.RemoveInitial {
			h = append(h, test.H[i])
			p = append(p, test.P[i])
			index = append(index, i)
		}
	}
	if len(h) < 8 {
		return nil, fmt.Errorf("pop-in: test %q: %d loading samples", test.Name, len(h))
	}

	rate := numeric.Diff(h)
	x := make([]float64, len(rate))
	for i := range x {
		x[i] = float64(i)
	}
	trend, err := numeric.PolyFit(x, rate, 2)
	if err != nil {
		return nil, fmt.Errorf("pop-in: depth rate trend: %w", err)
	}
	for i := range rate {
		rate[i] -= trend.Eval(x[i])
	}
	iJump := floats.MaxIdx(rate)
	iMax := min(floats.MaxIdx(p), iJump+opts.MaxPlasticFit)
	iMin := -1
	for i, v := range p {
		if v > opts.MinElasticForce {
			iMin = i
			break
		}
	}
	if iMin < 0 || iJump-iMin < 3 || iMax-(iJump+1) < 3 {
		return nil, &CycleError{Test: test.Name, Stage: "pop-in", Cycle: -1, Index: []int{iMin, iJump, iMax},
			Err: errors.New("too few samples around the jump")}
	}

	plastic, err := numeric.PolyFit(h[iJump+1:iMax], p[iJump+1:iMax], 2)
	if err != nil {
		return nil, fmt.Errorf("pop-in: plastic fit: %w", err)
	}

	he, pe := h[iMin:iJump], p[iMin:iJump]
	elastic, err := numeric.LevenbergMarquardt(numeric.Problem{
		Residuals: func(dst, x []float64) {
			for i := range dst {
				dst[i] = hertz(he[i], x[0], x[1]) - pe[i]
			}
		},
		M: len(he),
	}, []float64{100, 0}, nil)
	if err != nil {
		return nil, fmt.Errorf("pop-in: elastic fit: %w", err)
	}
	k, h0 := elastic.X[0], elastic.X[1]
	hj := h[iJump]
	slopeElast := (hertz(hj, k, h0) - hertz(0.9*hj, k, h0)) / (0.1 * hj)

	res := &PopIn{
		Index:      index[iJump],
		Force:      p[iJump],
		Depth:      hj,
		Prefactor:  k,
		H0:         h0,
		DeltaSlope: slopeElast - plastic.Derivative(h[iJump+1]),
		DeltaRate:  rate[iJump],
		DeltaH:     h[iJump+1] - hj,
		CovElast:   math.NaN(),
		SecondRate: math.NaN(),
	}
	if elastic.Covariance != nil {
		res.CovElast = elastic.Covariance.At(0, 0)
	}
	// Precursor bursts before the jump do not count against it.
	for i := iJump + 3; i < len(rate); i++ {
		if math.IsNaN(res.SecondRate) || rate[i] > res.SecondRate {
			res.SecondRate = rate[i]
		}
	}
	a.log.Debug("pop-in found", "test", test.Name, "index", res.Index, "force", res.Force,
		"deltaSlope", res.DeltaSlope, "secondRate", res.SecondRate)
	return res, nil
}
