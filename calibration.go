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
	"sort"

	"github.com/OpenPSG/nanoindent/internal/numeric"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	// minCompliancePoints is the smallest regression that still has a
	// standard error.
	minCompliancePoints = 3
	// minAreaPoints guards the area function fit against an unconstrained
	// solution.
	minAreaPoints = 5
	// curvePoints is the number of log-spaced samples of an interpolated
	// area function, starting at curveMinDepth [µm].
	curvePoints   = 50
	curveMinDepth = 1e-4
)

// CalibrationOptions controls the two calibration stages.
type CalibrationOptions struct {
	// TargetModulus is the Young's modulus [GPa] of the reference material;
	// its Poisson ratio is Config.NuMat.
	TargetModulus float64
	// Terms is the number of ISO prefactors to fit. Zero builds an
	// interpolated area curve instead.
	Terms int
	// ConstantTerm adds a depth offset [nm] to the ISO area function.
	ConstantTerm bool
	// Minimum depth [µm] and force [mN] of points used for the compliance.
	CritDepthCompliance float64
	CritForceCompliance float64
	// CritDepthTip is the minimum depth [µm] of points used for the area fit.
	CritDepthTip float64
}

// DefaultCalibrationOptions returns options for a fused silica reference
// and a three term ISO area function.
func DefaultCalibrationOptions() CalibrationOptions {
	return CalibrationOptions{
		TargetModulus:       72,
		Terms:               3,
		CritDepthCompliance: 1,
		CritForceCompliance: 1,
	}
}

// ComplianceFit is the regression of the measured compliance 1/S against
// 1/sqrt(P).
type ComplianceFit struct {
	Compliance     float64 // intercept [µm/mN]
	FrameStiffness float64 // 1/Compliance [mN/µm]
	Slope          float64
	// StdErr is the relative standard error of the compliance.
	StdErr  float64
	Points  int
	Relaxed bool // the depth and force filters had to be relaxed

	X, Y []float64 // all candidate points
	Used []bool
}

// AreaFit is the fitted area function together with the data it was
// fitted to.
type AreaFit struct {
	Prefactors  []float64 // nil for an interpolated curve
	Constant    float64   // depth offset [nm] if HasConstant
	HasConstant bool
	StdErr      []float64 // per parameter, NaN when not available
	Residual    float64   // sum of squared residuals
	Curve       *Curve

	ContactDepth []float64 // [µm]
	Area         []float64 // [µm²]
}

// Calibration is the outcome of both stages.
type Calibration struct {
	Compliance *ComplianceFit
	Area       *AreaFit
	TipVersion int
}

// Calibrate fits the frame compliance and then the area function of the
// tip against a reference material. The tip is mutated after each stage
// succeeds; a failing stage leaves it untouched.
func (a *Analyzer) Calibrate(src Source, opts CalibrationOptions) (*Calibration, error) {
	cur := NewCursor(src)
	cf, err := a.calibrateStiffness(cur, opts)
	if err != nil {
		return nil, err
	}
	cur.Rewind()
	af, err := a.calibrateArea(cur, opts)
	if err != nil {
		return &Calibration{Compliance: cf, TipVersion: a.tip.Version()}, err
	}
	return &Calibration{Compliance: cf, Area: af, TipVersion: a.tip.Version()}, nil
}

// CalibrateStiffness fits the frame compliance as the intercept of the
// measured compliance 1/S over 1/sqrt(P), extrapolated to infinite force.
// The tests are analysed without frame compliance. Failing tests are
// skipped.
func (a *Analyzer) CalibrateStiffness(src Source, opts CalibrationOptions) (*ComplianceFit, error) {
	return a.calibrateStiffness(NewCursor(src), opts)
}

func (a *Analyzer) calibrateStiffness(cur *Cursor, opts CalibrationOptions) (*ComplianceFit, error) {
	bare := a.tip.Clone()
	bare.SetCompliance(0)
	b := a.withTip(bare)

	fit := &ComplianceFit{}
	var depth []float64
	for cur.HasNext() {
		test, err := cur.Advance()
		if err != nil {
			a.log.Warn("skipping test in compliance calibration", "index", cur.Index(), "error", err)
			continue
		}
		b.report("compliance", test.Name, cur.Index(), cur.Len())
		res, err := b.Analyse(test)
		if err != nil {
			a.log.Warn("skipping test in compliance calibration", "test", test.Name, "error", err)
			continue
		}
		pMin := 0.
		if res.Method == MethodCSM {
			pMin = floats.Min(res.Force)
		}
		for i, s := range res.Stiffness {
			x := 1 / math.Sqrt(res.Force[i])
			if res.Method == MethodCSM {
				x = 1 / math.Sqrt(res.Force[i]-pMin+0.001)
			}
			fit.X = append(fit.X, x)
			fit.Y = append(fit.Y, 1/s)
			depth = append(depth, res.Depth[i])
		}
	}
	if len(fit.X) == 0 {
		return nil, fmt.Errorf("compliance: no analysable test: %w", ErrInsufficientData)
	}

	xMax := 1 / math.Sqrt(opts.CritForceCompliance)
	fit.Used = make([]bool, len(fit.X))
	count := 0
	for i := range fit.X {
		fit.Used[i] = depth[i] > opts.CritDepthCompliance && fit.X[i] < xMax
		if fit.Used[i] {
			count++
		}
	}
	if count == 0 {
		a.log.Warn("compliance filter too restrictive, using top half of depth and force",
			"critDepth", opts.CritDepthCompliance, "critForce", opts.CritForceCompliance)
		fit.Relaxed = true
		hMax, x := floats.Max(depth), floats.Max(fit.X)
		for i := range fit.X {
			fit.Used[i] = depth[i] > 0.5*hMax && fit.X[i] < 0.5*x
			if fit.Used[i] {
				count++
			}
		}
	}
	if count < minCompliancePoints {
		return nil, fmt.Errorf("compliance: %d points after filtering, need %d: %w",
			count, minCompliancePoints, ErrInsufficientData)
	}

	x := make([]float64, 0, count)
	y := make([]float64, 0, count)
	for i, used := range fit.Used {
		if used {
			x = append(x, fit.X[i])
			y = append(y, fit.Y[i])
		}
	}
	fit.Compliance, fit.Slope = stat.LinearRegression(x, y, nil, false)
	fit.FrameStiffness = 1 / fit.Compliance
	fit.Points = count
	fit.StdErr = interceptStdErr(x, y, fit.Compliance, fit.Slope) / math.Abs(fit.Compliance)

	a.log.Info("frame compliance fitted", "compliance", fit.Compliance, "frameStiffness", fit.FrameStiffness,
		"slope", fit.Slope, "stdErr", fit.StdErr, "points", count)
	a.tip.SetCompliance(fit.Compliance)
	return fit, nil
}

// interceptStdErr is the standard error of the intercept of a straight
// line fit with N-2 degrees of freedom.
func interceptStdErr(x, y []float64, alpha, beta float64) float64 {
	n := float64(len(x))
	mean := stat.Mean(x, nil)
	var ssr, sxx, sx2 float64
	for i := range x {
		r := y[i] - (alpha + beta*x[i])
		ssr += r * r
		sxx += (x[i] - mean) * (x[i] - mean)
		sx2 += x[i] * x[i]
	}
	if n <= 2 || sxx == 0 {
		return math.NaN()
	}
	return math.Sqrt(ssr / (n - 2) * sx2 / (n * sxx))
}

// CalibrateArea fits the area function of the tip against the target
// modulus using the tip's current frame compliance. Every test must be
// analysable: the first failure aborts the stage.
func (a *Analyzer) CalibrateArea(src Source, opts CalibrationOptions) (*AreaFit, error) {
	return a.calibrateArea(NewCursor(src), opts)
}

func (a *Analyzer) calibrateArea(cur *Cursor, opts CalibrationOptions) (*AreaFit, error) {
	if opts.TargetModulus <= 0 {
		return nil, fmt.Errorf("area: target modulus %g must be positive", opts.TargetModulus)
	}
	var s, h, p []float64
	for cur.HasNext() {
		test, err := cur.Advance()
		if err != nil {
			return nil, fmt.Errorf("area: %w", err)
		}
		a.report("area", test.Name, cur.Index(), cur.Len())
		res, err := a.Analyse(test)
		if err != nil {
			return nil, fmt.Errorf("area: aborted at test %q: %w", test.Name, err)
		}
		s = append(s, res.Stiffness...)
		h = append(h, res.Depth...)
		p = append(p, res.Force...)
	}

	erGoal := a.ReducedModulus(opts.TargetModulus, a.cfg.NuMat)
	fit := &AreaFit{}
	for i := range s {
		if !(h[i] > opts.CritDepthTip) {
			continue
		}
		fit.Area = append(fit.Area, math.Pow(s[i]/(2*erGoal/math.Sqrt(math.Pi)), 2))
		fit.ContactDepth = append(fit.ContactDepth, a.contactDepth(s[i], p[i], h[i]))
	}
	if len(fit.Area) < minAreaPoints {
		return nil, fmt.Errorf("area: %d points after filtering, need %d: %w",
			len(fit.Area), minAreaPoints, ErrInsufficientData)
	}

	if opts.Terms == 0 {
		c, err := interpolatedArea(fit.ContactDepth, fit.Area)
		if err != nil {
			return nil, fmt.Errorf("area: %w", err)
		}
		fit.Curve = c
		a.log.Info("area function interpolated", "points", c.Len())
		a.tip.SetCurve(c)
		return fit, nil
	}

	if err := a.fitPrefactors(fit, opts); err != nil {
		return nil, fmt.Errorf("area: %w", err)
	}
	var constant *float64
	if fit.HasConstant {
		constant = &fit.Constant
	}
	a.tip.SetPrefactors(fit.Prefactors, constant)
	return fit, nil
}

// fitPrefactors fits the ISO prefactors minimising |Ac - A(hc)|/N. The
// leading prefactor is bounded to [10, 60]; higher orders are scaled by
// 100^i so that all parameters move on comparable steps.
func (a *Analyzer) fitPrefactors(fit *AreaFit, opts CalibrationOptions) error {
	terms := opts.Terms
	if terms < 1 {
		return fmt.Errorf("invalid number of terms %d", terms)
	}
	nParams := terms
	if opts.ConstantTerm {
		nParams++
	}
	x0 := make([]float64, nParams)
	lower := make([]float64, nParams)
	upper := make([]float64, nParams)
	scale := make([]float64, nParams)
	x0[0], lower[0], upper[0], scale[0] = 24.3, 10, 60, 1
	for i := 1; i < terms; i++ {
		x0[i], lower[i], upper[i], scale[i] = 1e-3, -100, 100, math.Pow(100, float64(i))
	}
	if opts.ConstantTerm {
		x0[terms], lower[terms], upper[terms], scale[terms] = 20, 0.5, 300, 1
	}

	trial := &Tip{shape: ShapeISO, prefactors: make([]float64, terms)}
	if opts.ConstantTerm {
		trial.shape = ShapeISOPlusConstant
	}
	apply := func(x []float64) {
		for i := 0; i < terms; i++ {
			trial.prefactors[i] = x[i] * scale[i]
		}
		if opts.ConstantTerm {
			trial.constant = x[terms]
		}
	}
	n := float64(len(fit.Area))
	prob := numeric.Problem{
		Residuals: func(dst, x []float64) {
			apply(x)
			for k, hc := range fit.ContactDepth {
				dst[k] = math.Abs(fit.Area[k]-trial.Area(hc)) / n
			}
		},
		M:     len(fit.Area),
		Lower: lower,
		Upper: upper,
	}
	res, err := numeric.LevenbergMarquardt(prob, x0, &numeric.Settings{MaxIterations: 2000, FTol: 1e-12, XTol: 1e-12})
	if errors.Is(err, numeric.ErrNotConverged) {
		a.log.Warn("area function fit reached the iteration limit", "iterations", res.Iterations)
	} else if err != nil {
		return err
	}

	apply(res.X)
	fit.Prefactors = append([]float64(nil), trial.prefactors...)
	fit.HasConstant = opts.ConstantTerm
	fit.Constant = trial.constant
	fit.Residual = res.Cost
	fit.StdErr = make([]float64, nParams)
	for i := range fit.StdErr {
		fit.StdErr[i] = math.NaN()
		if res.Covariance != nil {
			fit.StdErr[i] = math.Sqrt(res.Covariance.At(i, i)) * scale[i]
		}
	}
	a.log.Info("area function fitted", "prefactors", fit.Prefactors, "stdErr", fit.StdErr,
		"constant", fit.Constant, "residual", fit.Residual)
	return nil
}

// interpolatedArea smooths the sorted (hc, Ac) cloud with a cubic
// Savitzky-Golay filter over an adaptive window and resamples it on a
// log-spaced depth grid.
func interpolatedArea(hc, ac []float64) (*Curve, error) {
	idx := make([]int, len(hc))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool { return hc[idx[i]] < hc[idx[j]] })
	hs := make([]float64, len(idx))
	as := make([]float64, len(idx))
	for k, i := range idx {
		hs[k], as[k] = hc[i], ac[i]
	}

	window := len(hs) / 20
	if window%2 == 0 {
		window--
	}
	window = max(window, minAreaPoints)
	var err error
	if hs, err = numeric.SavitzkyGolay(hs, window, 3); err != nil {
		return nil, err
	}
	if as, err = numeric.SavitzkyGolay(as, window, 3); err != nil {
		return nil, err
	}

	// Smoothing may leave ties or reversals in depth.
	var hu, au []float64
	for i := range hs {
		if len(hu) == 0 || hs[i] > hu[len(hu)-1] {
			hu = append(hu, hs[i])
			au = append(au, as[i])
		}
	}
	smooth, err := NewCurve(hu, au)
	if err != nil {
		return nil, err
	}
	hMax := hu[len(hu)-1]
	if !(hMax > curveMinDepth) {
		return nil, fmt.Errorf("maximum contact depth %g µm: %w", hMax, ErrInsufficientData)
	}
	grid := floats.LogSpan(make([]float64, curvePoints), curveMinDepth, hMax)
	area := make([]float64, len(grid))
	for i, g := range grid {
		area[i] = smooth.At(g)
	}
	return NewCurve(grid, area)
}
