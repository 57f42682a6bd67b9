// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package nanoindent_test

import (
	"errors"
	"math"
	"testing"

	"github.com/OpenPSG/nanoindent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitPowerLaw(t *testing.T) {
	pl := nanoindent.PowerLaw{B: 120, Hf: 0.25, M: 1.4}
	var h, p []float64
	for i := 0; i < 50; i++ {
		hi := 0.4 - 0.0015*float64(i)
		h = append(h, hi)
		p = append(p, pl.Force(hi))
	}

	fit := nanoindent.FitPowerLaw(h, p)
	require.NoError(t, fit.Err)
	assert.True(t, fit.Success)
	assert.False(t, fit.UsedFallback)
	assert.InEpsilon(t, pl.B, fit.B, 0.01)
	assert.InEpsilon(t, pl.Hf, fit.Hf, 0.01)
	assert.InEpsilon(t, pl.M, fit.M, 0.01)
	assert.InEpsilon(t, pl.Slope(0.4), fit.Slope(0.4), 0.01)
}

func TestFitPowerLawFallback(t *testing.T) {
	fit := nanoindent.FitPowerLaw([]float64{0.5, 0.4}, []float64{10, 6})
	assert.False(t, fit.Success)
	assert.True(t, fit.UsedFallback)
	assert.ErrorIs(t, fit.Err, nanoindent.ErrNonlinearFit)
	assert.Equal(t, 1.0, fit.M)
	assert.InDelta(t, 40, fit.B, 1e-9)
	assert.InDelta(t, 0.25, fit.Hf, 1e-9)
	assert.InDelta(t, 40, fit.Slope(0.45), 1e-9)

	fit = nanoindent.FitPowerLaw([]float64{0.5}, []float64{10})
	assert.False(t, fit.Success || fit.UsedFallback)
	assert.Error(t, fit.Err)
	assert.True(t, math.IsNaN(fit.B))
}

func TestPowerLawBelowFinalDepth(t *testing.T) {
	pl := nanoindent.PowerLaw{B: 10, Hf: 0.2, M: 1.5}
	assert.Equal(t, 0.0, pl.Force(0.1))
	assert.Equal(t, 0.0, pl.Slope(0.1))
}

func TestStiffnessFromUnloading(t *testing.T) {
	a := newAnalyzer(t, nanoindent.DefaultsFor(nanoindent.VendorAgilent), fixtureTip())

	trace, err := a.Segment(endToEnd.trace(t, "silica"))
	require.NoError(t, err)
	require.Len(t, trace.Cycles, 1)

	fits, valid, err := a.StiffnessFromUnloading(trace)
	require.NoError(t, err)
	require.Len(t, fits, 1)

	fit := fits[0]
	assert.True(t, fit.Success)
	assert.Equal(t, trace.Cycles[0].UnloadStart, fit.Index)
	assert.True(t, valid[fit.Index])
	assert.InEpsilon(t, endToEnd.s, fit.Stiffness, 0.01)
	assert.InEpsilon(t, endToEnd.m, fit.M, 0.01)
	_, hf := endToEnd.powerLaw()
	assert.InEpsilon(t, hf, fit.Hf, 0.01)
	for _, j := range fit.Window {
		assert.Less(t, trace.P[j], 0.999*trace.P[trace.Cycles[0].LoadEnd])
		assert.Greater(t, trace.P[j], 0.5*trace.P[trace.Cycles[0].LoadEnd])
	}

	// Evaluated at the first sample of the fit window instead.
	cfg := a.Config()
	cfg.EvaluateAtMax = false
	b := newAnalyzer(t, cfg, fixtureTip())
	fits, _, err = b.StiffnessFromUnloading(trace)
	require.NoError(t, err)
	assert.Equal(t, fits[0].Window[0], fits[0].Index)
	assert.Less(t, fits[0].Stiffness, endToEnd.s)
}

func TestStiffnessFromUnloadingEmptyWindow(t *testing.T) {
	a := newAnalyzer(t, nanoindent.DefaultsFor(nanoindent.VendorAgilent), fixtureTip())

	trace, err := a.Segment(endToEnd.trace(t, "silica"))
	require.NoError(t, err)

	// A second cycle pointing at the constant force hold.
	c := trace.Cycles[0]
	trace.Cycles = append(trace.Cycles, nanoindent.Cycle{
		LoadStart:   c.LoadStart,
		LoadEnd:     c.LoadEnd,
		UnloadStart: c.LoadEnd + 1,
		UnloadEnd:   c.LoadEnd + 10,
	})

	fits, _, err := a.StiffnessFromUnloading(trace)
	require.Len(t, fits, 1)
	assert.Equal(t, 0, fits[0].Cycle)
	require.ErrorIs(t, err, nanoindent.ErrFitWindowEmpty)

	var cycleErr *nanoindent.CycleError
	require.True(t, errors.As(err, &cycleErr))
	assert.Equal(t, 1, cycleErr.Cycle)
	assert.Equal(t, "unloading", cycleErr.Stage)
}

func TestStiffnessFromUnloadingCSM(t *testing.T) {
	a := newAnalyzer(t, nanoindent.DefaultConfig(), fixtureTip())
	test := endToEnd.trace(t, "csm")
	test.Method = nanoindent.MethodCSM
	_, _, err := a.StiffnessFromUnloading(test)
	assert.Error(t, err)
}
