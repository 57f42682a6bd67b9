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
)

// FindSurface returns the index of the first sample in contact with the
// surface, or -1 when surface detection is not configured.
func (a *Analyzer) FindSurface(test *Test) (int, error) {
	sc := a.cfg.Surface
	if idx, ok := sc.Index[test.Name]; ok {
		if idx < 0 || idx >= test.Len() {
			return -1, &CycleError{Test: test.Name, Stage: "surface", Cycle: -1, Index: []int{idx},
				Err: errors.New("surface index out of range")}
		}
		return idx, nil
	}

	var values []float64
	switch sc.Criterion {
	case CriterionNone:
		return -1, nil
	case CriterionLoad:
		values = append([]float64(nil), test.P...)
	case CriterionRate:
		values = numeric.Gradient(test.P, test.T)
	case CriterionSlope:
		values = numeric.Gradient(test.P, test.H)
		for i, v := range values {
			values[i] = math.Abs(v)
		}
	case CriterionStiffness:
		if test.Stiffness == nil {
			return -1, &CycleError{Test: test.Name, Stage: "surface", Cycle: -1,
				Err: errors.New("stiffness criterion without stiffness channel")}
		}
		values = append([]float64(nil), test.Stiffness...)
	default:
		return -1, fmt.Errorf("unknown surface criterion %q", sc.Criterion)
	}

	for i, v := range values {
		if math.IsInf(v, 0) {
			values[i] = math.NaN()
		}
	}
	values = numeric.FillNaN(values)
	switch {
	case sc.MedianWidth > 0:
		values = numeric.MedianFilter(values, sc.MedianWidth)
	case sc.GaussSigma > 0:
		values = numeric.GaussianFilter(values, sc.GaussSigma)
	}

	for i, v := range values {
		if v > sc.Threshold {
			return i, nil
		}
	}
	return -1, &CycleError{Test: test.Name, Stage: "surface", Cycle: -1,
		Err: fmt.Errorf("%s never exceeds %g", sc.Criterion, sc.Threshold)}
}

// applySurface shifts the depth so that the surface sample is at zero.
func (a *Analyzer) applySurface(test *Test) error {
	idx, err := a.FindSurface(test)
	if err != nil {
		return err
	}
	if idx < 0 {
		return nil
	}
	h0 := test.H[idx]
	for i := range test.H {
		test.H[i] -= h0
	}
	return nil
}
