// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package numeric holds the small numerical kernels used by the indentation
// analysis: bounded least squares, polynomial fits, filters and root finding.
package numeric

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNotConverged is returned when the iteration budget is exhausted
	// before any stopping criterion was met.
	ErrNotConverged = errors.New("least squares did not converge")
	// ErrNonFinite is returned when the residuals become NaN or Inf.
	ErrNonFinite = errors.New("non-finite residual")
)

// Problem describes a bounded nonlinear least-squares problem: minimise
// sum(r_i(x)^2) subject to Lower <= x <= Upper.
type Problem struct {
	// Residuals fills dst (length M) with the residuals at x.
	Residuals func(dst, x []float64)
	// M is the number of residuals.
	M int
	// Lower and Upper bound every parameter. Nil means unbounded.
	Lower, Upper []float64
}

// Settings controls the Levenberg-Marquardt iteration.
type Settings struct {
	MaxIterations int
	// FTol is the relative reduction of the cost below which the iteration stops.
	FTol float64
	// XTol is the relative step size below which the iteration stops.
	XTol float64
}

// DefaultSettings are tight enough to recover exact synthetic data.
var DefaultSettings = Settings{
	MaxIterations: 500,
	FTol:          1e-14,
	XTol:          1e-12,
}

// Result of a least-squares fit.
type Result struct {
	X          []float64
	Cost       float64 // sum of squared residuals
	Iterations int
	// Covariance is s^2 (J^T J)^-1 with s^2 = Cost/(M-N); nil if singular or M<=N.
	Covariance *mat.SymDense
}

// LevenbergMarquardt minimises the problem starting at x0. Steps are
// projected onto the bounds.
func LevenbergMarquardt(p Problem, x0 []float64, s *Settings) (*Result, error) {
	if s == nil {
		s = &DefaultSettings
	}
	n := len(x0)
	if p.M < 1 || n < 1 {
		return nil, fmt.Errorf("invalid problem size %dx%d", p.M, n)
	}

	x := make([]float64, n)
	copy(x, x0)
	project(x, p.Lower, p.Upper)

	r := make([]float64, p.M)
	p.Residuals(r, x)
	cost := sumSquares(r)
	if !isFinite(cost) {
		return nil, fmt.Errorf("at initial guess: %w", ErrNonFinite)
	}

	jac := mat.NewDense(p.M, n, nil)
	var jtj mat.SymDense
	jtr := mat.NewVecDense(n, nil)
	a := mat.NewSymDense(n, nil)
	step := mat.NewVecDense(n, nil)
	rhs := mat.NewVecDense(n, nil)
	trial := make([]float64, n)
	rTrial := make([]float64, p.M)

	lambda := 1e-3
	iter := 0
	converged := false
	for ; iter < s.MaxIterations && !converged; iter++ {
		fd.Jacobian(jac, p.Residuals, x, &fd.JacobianSettings{
			Formula:     fd.Central,
			OriginValue: r,
		})
		jtj.SymOuterK(1, jac.T())
		jtr.MulVec(jac.T(), mat.NewVecDense(p.M, r))

		improved := false
		for attempt := 0; attempt < 30; attempt++ {
			a.CopySym(&jtj)
			for i := 0; i < n; i++ {
				d := jtj.At(i, i)
				if d == 0 {
					d = 1e-12
				}
				a.SetSym(i, i, d*(1+lambda))
			}
			if !solveStep(step, a, jtr) {
				lambda *= 10
				continue
			}
			// Parameters pinned at a bound and pushed outwards are frozen and
			// the step is recomputed in the remaining subspace.
			if freezeActive(a, rhs, jtr, step, x, p.Lower, p.Upper) && !solveStep(step, a, rhs) {
				lambda *= 10
				continue
			}
			for i := 0; i < n; i++ {
				trial[i] = x[i] - step.AtVec(i)
			}
			project(trial, p.Lower, p.Upper)
			p.Residuals(rTrial, trial)
			trialCost := sumSquares(rTrial)
			if isFinite(trialCost) && trialCost < cost {
				reduction := (cost - trialCost) / math.Max(cost, math.SmallestNonzeroFloat64)
				dx := 0.0
				xn := 0.0
				for i := range x {
					dx += (trial[i] - x[i]) * (trial[i] - x[i])
					xn += x[i] * x[i]
				}
				copy(x, trial)
				copy(r, rTrial)
				cost = trialCost
				lambda = math.Max(lambda/10, 1e-15)
				improved = true
				if reduction < s.FTol || math.Sqrt(dx) <= s.XTol*(math.Sqrt(xn)+s.XTol) || cost == 0 {
					converged = true
				}
				break
			}
			lambda *= 10
		}
		if !improved {
			// No descent direction left: the current point is a minimum
			// to working precision.
			converged = true
		}
	}

	res := &Result{X: x, Cost: cost, Iterations: iter}
	if p.M > n {
		fd.Jacobian(jac, p.Residuals, x, &fd.JacobianSettings{Formula: fd.Central, OriginValue: r})
		jtj.SymOuterK(1, jac.T())
		var chol mat.Cholesky
		if chol.Factorize(&jtj) {
			var inv mat.SymDense
			if err := chol.InverseTo(&inv); err == nil {
				inv.ScaleSym(cost/float64(p.M-n), &inv)
				res.Covariance = &inv
			}
		}
	}
	if !converged {
		return res, ErrNotConverged
	}
	return res, nil
}

func solveStep(dst *mat.VecDense, a *mat.SymDense, b *mat.VecDense) bool {
	var chol mat.Cholesky
	if !chol.Factorize(a) {
		return false
	}
	return chol.SolveVecTo(dst, b) == nil
}

// freezeActive decouples every parameter that sits on a bound while the step
// x - step would leave the feasible box. It reports whether any was frozen;
// a and rhs then describe the reduced system.
func freezeActive(a *mat.SymDense, rhs, jtr, step *mat.VecDense, x, lower, upper []float64) bool {
	n := len(x)
	active := make([]bool, n)
	frozen := false
	for i := range x {
		s := step.AtVec(i)
		if (lower != nil && x[i] <= lower[i] && s > 0) || (upper != nil && x[i] >= upper[i] && s < 0) {
			active[i] = true
			frozen = true
		}
	}
	if !frozen {
		return false
	}
	rhs.CopyVec(jtr)
	for i := 0; i < n; i++ {
		if !active[i] {
			continue
		}
		for j := 0; j < n; j++ {
			a.SetSym(i, j, 0)
		}
		a.SetSym(i, i, 1)
		rhs.SetVec(i, 0)
	}
	return true
}

func project(x, lower, upper []float64) {
	for i := range x {
		if lower != nil && x[i] < lower[i] {
			x[i] = lower[i]
		}
		if upper != nil && x[i] > upper[i] {
			x[i] = upper[i]
		}
	}
}

func sumSquares(r []float64) float64 {
	s := 0.0
	for _, v := range r {
		s += v * v
	}
	return s
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
