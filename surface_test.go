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
	"testing"

	"github.com/OpenPSG/nanoindent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// approachTest approaches the surface at depth 0.05 µm: force stays zero for
// the first 50 samples and rises linearly with depth afterwards.
func approachTest(t *testing.T) *nanoindent.Test {
	t.Helper()
	n := 150
	ts := make([]float64, n)
	hs := make([]float64, n)
	ps := make([]float64, n)
	for i := range ts {
		ts[i] = dt * float64(i)
		hs[i] = 0.001 * float64(i)
		if i > 50 {
			ps[i] = 0.2 * float64(i-50)
		}
	}
	test, err := nanoindent.NewTest("approach", ts, hs, ps)
	require.NoError(t, err)
	return test
}

func TestFindSurface(t *testing.T) {
	tests := []struct {
		name    string
		surface nanoindent.Surface
		index   int
	}{
		{"none", nanoindent.Surface{}, -1},
		{"load", nanoindent.Surface{Criterion: nanoindent.CriterionLoad, Threshold: 0.5}, 53},
		{"rate", nanoindent.Surface{Criterion: nanoindent.CriterionRate, Threshold: 1.5}, 51},
		{"slope", nanoindent.Surface{Criterion: nanoindent.CriterionSlope, Threshold: 150}, 51},
		{"median", nanoindent.Surface{Criterion: nanoindent.CriterionLoad, Threshold: 0.5, MedianWidth: 3}, 53},
		{"override", nanoindent.Surface{Criterion: nanoindent.CriterionLoad, Index: map[string]int{"approach": 7}}, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := nanoindent.DefaultConfig()
			cfg.Surface = tt.surface
			a := newAnalyzer(t, cfg, nanoindent.NewTip())

			idx, err := a.FindSurface(approachTest(t))
			require.NoError(t, err)
			assert.Equal(t, tt.index, idx)
		})
	}
}

func TestFindSurfaceErrors(t *testing.T) {
	tests := []struct {
		name    string
		surface nanoindent.Surface
	}{
		{"never exceeded", nanoindent.Surface{Criterion: nanoindent.CriterionLoad, Threshold: 1000}},
		{"no stiffness", nanoindent.Surface{Criterion: nanoindent.CriterionStiffness, Threshold: 1}},
		{"unknown", nanoindent.Surface{Criterion: "hardness"}},
		{"override out of range", nanoindent.Surface{Index: map[string]int{"approach": 1000}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := nanoindent.DefaultConfig()
			cfg.Surface = tt.surface
			a := newAnalyzer(t, cfg, nanoindent.NewTip())

			_, err := a.FindSurface(approachTest(t))
			assert.Error(t, err)
		})
	}
}

func TestAnalyseShiftsSurface(t *testing.T) {
	cfg := nanoindent.DefaultsFor(nanoindent.VendorAgilent)
	cfg.NuMat = 0.2
	a := newAnalyzer(t, cfg, fixtureTip())
	want, err := a.Analyse(endToEnd.trace(t, "silica"))
	require.NoError(t, err)

	// The same test recorded 0.1 µm above the surface.
	test := endToEnd.trace(t, "silica")
	for i := range test.H {
		test.H[i] += 0.1
	}
	cfg.Surface = nanoindent.Surface{Index: map[string]int{"silica": 0}}
	a = newAnalyzer(t, cfg, fixtureTip())
	got, err := a.Analyse(test)
	require.NoError(t, err)
	assert.InDelta(t, want.Depth[0], got.Depth[0], 1e-9)
	assert.InDelta(t, want.Modulus[0], got.Modulus[0], 1e-3)
}
