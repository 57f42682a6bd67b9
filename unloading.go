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

// PowerLaw is the unloading curve p = B (h - hf)^m.
type PowerLaw struct {
	B  float64 // scale [mN/µm^m]
	Hf float64 // final depth [µm]
	M  float64 // exponent
}

// Force evaluates the power law; depths below Hf give zero force.
func (pl PowerLaw) Force(h float64) float64 {
	return pl.B * math.Pow(math.Max(h-pl.Hf, 0), pl.M)
}

// Slope is the analytic derivative dp/dh [mN/µm].
func (pl PowerLaw) Slope(h float64) float64 {
	return pl.B * pl.M * math.Pow(math.Max(h-pl.Hf, 0), pl.M-1)
}

// PowerLawFit is the outcome of fitting an unloading branch. When the
// nonlinear fit fails the linear secant through the first and last point is
// returned instead, with UsedFallback set and Err describing the cause.
type PowerLawFit struct {
	PowerLaw
	Success      bool
	UsedFallback bool
	Err          error
}

var unloadingSettings = numeric.Settings{
	MaxIterations: 1000,
	FTol:          1e-14,
	XTol:          1e-12,
}

// FitPowerLaw fits p = B (h - hf)^m to one unloading branch, ordered from
// the top of the unloading downwards, with B in [0, inf), hf in
// [0, max(min h, hf0)] and m in [0.8, 10].
func FitPowerLaw(h, p []float64) PowerLawFit {
	n := len(h)
	if n != len(p) || n < 2 {
		return PowerLawFit{
			PowerLaw: PowerLaw{B: math.NaN(), Hf: math.NaN(), M: math.NaN()},
			Err:      fmt.Errorf("power-law fit needs at least 2 aligned points, got %d/%d", len(h), len(p)),
		}
	}
	if n < 3 {
		return linearFit(h, p, fmt.Errorf("%w: %d points for 3 parameters", ErrNonlinearFit, n))
	}

	hf0 := h[n-1] / 2
	m0 := 2.
	b0 := math.Max(math.Abs(p[0]/math.Pow(h[0]-hf0, m0)), 0.001)
	hMin := h[0]
	for _, v := range h {
		hMin = math.Min(hMin, v)
	}

	prob := numeric.Problem{
		Residuals: func(dst, x []float64) {
			pl := PowerLaw{x[0], x[1], x[2]}
			for i := range dst {
				dst[i] = pl.Force(h[i]) - p[i]
			}
		},
		M:     n,
		Lower: []float64{0, 0, 0.8},
		Upper: []float64{math.Inf(1), math.Max(hMin, hf0), 10},
	}
	res, err := numeric.LevenbergMarquardt(prob, []float64{b0, hf0, m0}, &unloadingSettings)
	if err != nil {
		return linearFit(h, p, fmt.Errorf("%w: %w", ErrNonlinearFit, err))
	}
	pl := PowerLaw{res.X[0], res.X[1], res.X[2]}
	if math.IsNaN(pl.B) || pl.B == 0 {
		return linearFit(h, p, fmt.Errorf("%w: degenerate scale %g", ErrNonlinearFit, pl.B))
	}
	return PowerLawFit{PowerLaw: pl, Success: true}
}

func linearFit(h, p []float64, cause error) PowerLawFit {
	n := len(h)
	b := (p[n-1] - p[0]) / (h[n-1] - h[0])
	if math.IsNaN(b) || math.IsInf(b, 0) || b == 0 {
		return PowerLawFit{
			PowerLaw: PowerLaw{B: math.NaN(), Hf: math.NaN(), M: math.NaN()},
			Err:      errors.Join(cause, fmt.Errorf("linear secant undefined between %g and %g µm", h[0], h[n-1])),
		}
	}
	return PowerLawFit{
		PowerLaw:     PowerLaw{B: b, Hf: h[0] - p[0]/b, M: 1},
		UsedFallback: true,
		Err:          cause,
	}
}

// UnloadingFit is the stiffness evaluation of one cycle.
type UnloadingFit struct {
	PowerLawFit
	Cycle     int
	Stiffness float64 // [mN/µm]
	Index     int     // sample at which the stiffness is evaluated
	Window    []int   // samples used for the fit
}

// StiffnessFromUnloading fits every cycle of a segmented test and returns
// one fit per cycle together with the mask of evaluated samples.
//
// Cycles whose fit window is empty are omitted from the fits and reported
// through the joined error as *CycleError wrapping ErrFitWindowEmpty; the
// remaining cycles are still evaluated.
func (a *Analyzer) StiffnessFromUnloading(test *Test) ([]UnloadingFit, []bool, error) {
	if test.Method == MethodCSM {
		return nil, nil, fmt.Errorf("test %q: CSM stiffness comes from the stiffness channel", test.Name)
	}
	valid := make([]bool, test.Len())
	var fits []UnloadingFit
	var errs []error
	for i, c := range test.Cycles {
		fit, err := a.fitCycle(test, i, c)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		valid[fit.Index] = true
		fits = append(fits, fit)
	}
	return fits, valid, errors.Join(errs...)
}

func (a *Analyzer) fitCycle(test *Test, num int, c Cycle) (UnloadingFit, error) {
	if !c.Ordered() {
		return UnloadingFit{}, &CycleError{Test: test.Name, Stage: "unloading", Cycle: num, Index: c.indices(),
			Err: fmt.Errorf("%w: indices not in order", ErrSegmentation)}
	}
	pRef := test.P[c.LoadEnd]
	hi, lo := pRef*a.cfg.UnloadPMax, pRef*a.cfg.UnloadPMin
	end := min(c.UnloadEnd, test.Len()-1)
	var window []int
	for j := c.UnloadStart; j <= end; j++ {
		if test.P[j] < hi && test.P[j] > lo {
			window = append(window, j)
		}
	}
	if len(window) == 0 {
		a.log.Error("unloading fit window is empty", "test", test.Name, "cycle", num,
			"pmin", lo, "pmax", hi)
		return UnloadingFit{}, &CycleError{Test: test.Name, Stage: "unloading", Cycle: num, Index: c.indices(),
			Err: ErrFitWindowEmpty}
	}

	h := make([]float64, len(window))
	p := make([]float64, len(window))
	for k, j := range window {
		h[k], p[k] = test.H[j], test.P[j]
	}
	fit := FitPowerLaw(h, p)
	if fit.UsedFallback {
		a.log.Warn("power-law fit failed, using linear secant", "test", test.Name, "cycle", num, "error", fit.Err)
	}
	if !fit.Success && !fit.UsedFallback {
		return UnloadingFit{}, &CycleError{Test: test.Name, Stage: "unloading", Cycle: num, Index: window,
			Err: fit.Err}
	}

	at := window[0]
	if a.cfg.EvaluateAtMax {
		at = c.UnloadStart
	}
	return UnloadingFit{
		PowerLawFit: fit,
		Cycle:       num,
		Stiffness:   fit.Slope(test.H[at]),
		Index:       at,
		Window:      window,
	}, nil
}
