// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package numeric

import (
	"errors"
	"fmt"
	"math"
)

// ErrNoRoot is returned when a root finder gives up.
var ErrNoRoot = errors.New("root not found")

// Secant finds a root of f near x0 with the secant variant of Newton's
// method (no analytic derivative needed).
func Secant(f func(float64) float64, x0, tol float64, maxIter int) (float64, error) {
	p0 := x0
	p1 := x0*(1+1e-4) + 1e-4
	if x0 < 0 {
		p1 = x0*(1+1e-4) - 1e-4
	}
	q0, q1 := f(p0), f(p1)
	if math.Abs(q1) < math.Abs(q0) {
		p0, p1, q0, q1 = p1, p0, q1, q0
	}
	for i := 0; i < maxIter; i++ {
		if q1 == q0 {
			if p1 == p0 {
				return p1, nil
			}
			return (p0 + p1) / 2, fmt.Errorf("flat function at %g: %w", p1, ErrNoRoot)
		}
		var p float64
		if math.Abs(q1) > math.Abs(q0) {
			p = (-q0/q1*p1 + p0) / (1 - q0/q1)
		} else {
			p = (-q1/q0*p0 + p1) / (1 - q1/q0)
		}
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return p1, fmt.Errorf("diverged at iteration %d: %w", i, ErrNoRoot)
		}
		if math.Abs(p-p1) <= tol*(1+math.Abs(p)) {
			return p, nil
		}
		p0, q0 = p1, q1
		p1, q1 = p, f(p)
	}
	return p1, fmt.Errorf("after %d iterations: %w", maxIter, ErrNoRoot)
}

// Bisect finds a root of a continuous f on [lo, hi] where f(lo) and f(hi)
// have opposite signs.
func Bisect(f func(float64) float64, lo, hi, tol float64, maxIter int) (float64, error) {
	flo, fhi := f(lo), f(hi)
	if flo == 0 {
		return lo, nil
	}
	if fhi == 0 {
		return hi, nil
	}
	if (flo > 0) == (fhi > 0) {
		return 0, fmt.Errorf("no sign change on [%g, %g]: %w", lo, hi, ErrNoRoot)
	}
	for i := 0; i < maxIter; i++ {
		mid := (lo + hi) / 2
		fm := f(mid)
		if fm == 0 || (hi-lo)/2 < tol {
			return mid, nil
		}
		if (fm > 0) == (flo > 0) {
			lo, flo = mid, fm
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2, nil
}
