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
	"math"
	"testing"

	"github.com/OpenPSG/nanoindent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTipArea(t *testing.T) {
	assert.InDelta(t, 24.494, nanoindent.NewTip().Area(1), 1e-9)
	assert.InDelta(t, 24.5*110*110/1e6, nanoindent.NewISOPlusConstantTip(10, 24.5).Area(0.1), 1e-12)
	assert.Equal(t, 0.0, nanoindent.NewISOTip(-1).Area(0.1))

	// Depths below 1 pm are raised to 1 pm.
	tip := nanoindent.NewISOTip(24.5)
	assert.Equal(t, tip.Area(1e-6), tip.Area(-3))
	assert.Greater(t, tip.Area(-3), 0.0)
}

func TestTipAreaMonotone(t *testing.T) {
	curve, err := nanoindent.NewCurve([]float64{0.1, 0.2, 0.4, 1}, []float64{1, 2, 5, 25})
	require.NoError(t, err)
	tips := map[string]*nanoindent.Tip{
		"perfect":  nanoindent.NewTip(),
		"iso":      fixtureTip(),
		"constant": nanoindent.NewISOPlusConstantTip(20, 24.5, 800),
		"sphere":   nanoindent.NewSphereTip(1, 60),
		"curve":    nanoindent.NewCurveTip(curve),
	}
	var hc []float64
	for i := -5; i < 200; i++ {
		hc = append(hc, 0.01*float64(i))
	}
	for name, tip := range tips {
		t.Run(name, func(t *testing.T) {
			area := tip.Areas(hc)
			require.Len(t, area, len(hc))
			for i := range area {
				assert.GreaterOrEqual(t, area[i], 0.0, "hc %g", hc[i])
				if i > 0 {
					assert.GreaterOrEqual(t, area[i], area[i-1], "hc %g", hc[i])
				}
				if hc[i] >= 0.01 {
					assert.Greater(t, area[i], area[i-1], "hc %g", hc[i])
				}
			}
		})
	}
}

func TestTipAreaInverse(t *testing.T) {
	tips := map[string]*nanoindent.Tip{
		"perfect":  nanoindent.NewTip(),
		"iso":      fixtureTip(),
		"constant": nanoindent.NewISOPlusConstantTip(20, 24.5, 800),
		"sphere":   nanoindent.NewSphereTip(2, 70.3),
	}
	for name, tip := range tips {
		t.Run(name, func(t *testing.T) {
			for _, hc := range []float64{0.02, 0.15, 0.8} {
				area := tip.Area(hc)
				got, err := tip.AreaInverse(area, math.Sqrt(area/24.494))
				require.NoError(t, err)
				assert.InEpsilon(t, hc, got, 1e-6)
			}
		})
	}

	_, err := fixtureTip().AreaInverse(-1, 0.1)
	assert.ErrorIs(t, err, nanoindent.ErrAreaDomain)
}

func TestSphereTipContinuity(t *testing.T) {
	const radius, angle = 1.0, 60.0
	tip := nanoindent.NewSphereTip(radius, angle)

	// Spherical cap below the transition.
	h := 0.05
	assert.InEpsilon(t, math.Pi*(2*radius*h-h*h), tip.Area(h), 1e-9)

	transition := radius * (1 - math.Sin(angle/180*math.Pi))
	below, above := tip.Area(transition-1e-9), tip.Area(transition+1e-9)
	assert.InEpsilon(t, below, above, 1e-6)
	assert.Greater(t, tip.Area(2*transition), above)
}

func TestCurve(t *testing.T) {
	c, err := nanoindent.NewCurve([]float64{0.1, 0.2, 0.4}, []float64{1, 2, 5})
	require.NoError(t, err)
	assert.Equal(t, 3, c.Len())

	assert.InDelta(t, 1.5, c.At(0.15), 1e-12)
	assert.InDelta(t, 3.5, c.At(0.3), 1e-12)
	// Linear extrapolation on both sides.
	assert.InDelta(t, 0.5, c.At(0.05), 1e-12)
	assert.InDelta(t, 6.5, c.At(0.5), 1e-12)

	tip := nanoindent.NewCurveTip(c)
	assert.Equal(t, nanoindent.ShapeCurve, tip.Shape())
	assert.InDelta(t, 3.5, tip.Area(0.3), 1e-12)
	// The area never extrapolates below zero.
	assert.InDelta(t, 0.5, tip.Area(0.05), 1e-12)
	assert.Equal(t, 0.0, tip.Area(-0.05))

	_, err = nanoindent.NewCurve([]float64{0.1}, []float64{1})
	assert.Error(t, err)
	_, err = nanoindent.NewCurve([]float64{0.1, 0.2}, []float64{1})
	assert.Error(t, err)
	_, err = nanoindent.NewCurve([]float64{0.2, 0.1}, []float64{1, 2})
	assert.Error(t, err)
}

func TestTipVersion(t *testing.T) {
	tip := nanoindent.NewTip()
	assert.Equal(t, 0, tip.Version())
	assert.Equal(t, nanoindent.ShapePerfect, tip.Shape())

	tip.SetCompliance(0.002)
	assert.Equal(t, 1, tip.Version())
	assert.Equal(t, 0.002, tip.Compliance())

	constant := 12.0
	tip.SetPrefactors([]float64{24.5, 300}, &constant)
	assert.Equal(t, 2, tip.Version())
	assert.Equal(t, nanoindent.ShapeISOPlusConstant, tip.Shape())
	assert.Equal(t, 12.0, tip.Constant())

	clone := tip.Clone()
	clone.SetPrefactors([]float64{30}, nil)
	assert.Equal(t, []float64{24.5, 300}, tip.Prefactors())
	assert.Equal(t, 2, tip.Version())
	assert.Equal(t, 3, clone.Version())
	assert.Equal(t, nanoindent.ShapeISO, clone.Shape())

	c, err := nanoindent.NewCurve([]float64{0, 1}, []float64{0, 24.5})
	require.NoError(t, err)
	tip.SetCurve(c)
	assert.Equal(t, 3, tip.Version())
	assert.Nil(t, tip.Prefactors())
	assert.Contains(t, tip.String(), "interpolation curve with 2 points")
}
