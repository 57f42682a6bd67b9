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
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Polynomial coefficients in increasing order: c[0] + c[1]*x + c[2]*x^2 ...
type Polynomial []float64

// Eval evaluates the polynomial at x.
func (c Polynomial) Eval(x float64) float64 {
	v := 0.0
	for i := len(c) - 1; i >= 0; i-- {
		v = v*x + c[i]
	}
	return v
}

// Derivative evaluates the first derivative at x.
func (c Polynomial) Derivative(x float64) float64 {
	v := 0.0
	for i := len(c) - 1; i >= 1; i-- {
		v = v*x + float64(i)*c[i]
	}
	return v
}

// PolyFit fits a polynomial of the given degree to (x, y) by linear least
// squares (QR decomposition of the Vandermonde matrix).
func PolyFit(x, y []float64, degree int) (Polynomial, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("length mismatch: %d x values, %d y values", len(x), len(y))
	}
	if len(x) < degree+1 {
		return nil, fmt.Errorf("need at least %d points for degree %d, got %d", degree+1, degree, len(x))
	}

	a := vandermonde(x, degree)
	b := mat.NewVecDense(len(y), append([]float64(nil), y...))

	var qr mat.QR
	qr.Factorize(a)
	var coef mat.VecDense
	if err := qr.SolveVecTo(&coef, false, b); err != nil {
		return nil, fmt.Errorf("error solving least squares: %w", err)
	}

	out := make(Polynomial, degree+1)
	for i := range out {
		out[i] = coef.AtVec(i)
	}
	return out, nil
}

func vandermonde(x []float64, degree int) *mat.Dense {
	a := mat.NewDense(len(x), degree+1, nil)
	for i, xi := range x {
		v := 1.0
		for j := 0; j <= degree; j++ {
			a.Set(i, j, v)
			v *= xi
		}
	}
	return a
}
