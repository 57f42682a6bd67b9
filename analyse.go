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
	"log/slog"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Progress reports the advance of a batch operation.
type Progress struct {
	Stage string // "analyse", "compliance" or "area"
	Test  string
	Index int
	Total int
}

// Analyzer runs the Oliver-Pharr pipeline with a fixed configuration
// against a tip. The tip stays owned by the caller; the Analyzer reads it
// and only the calibration methods mutate it.
type Analyzer struct {
	cfg      Config
	tip      *Tip
	log      *slog.Logger
	progress func(Progress)
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the structured logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.log = l
		}
	}
}

// WithProgress sets a sink called once per test in batch operations.
func WithProgress(fn func(Progress)) Option {
	return func(a *Analyzer) {
		a.progress = fn
	}
}

// NewAnalyzer validates the configuration and returns an Analyzer.
func NewAnalyzer(cfg Config, tip *Tip, opts ...Option) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if tip == nil {
		return nil, errors.New("tip is required")
	}
	a := &Analyzer{cfg: cfg.Clone(), tip: tip, log: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Config returns a copy of the configuration.
func (a *Analyzer) Config() Config { return a.cfg.Clone() }

// Tip returns the tip the Analyzer evaluates against.
func (a *Analyzer) Tip() *Tip { return a.tip }

// withTip returns a shallow copy evaluating against another tip.
func (a *Analyzer) withTip(t *Tip) *Analyzer {
	c := *a
	c.tip = t
	return &c
}

func (a *Analyzer) report(stage, test string, index, total int) {
	if a.progress != nil {
		a.progress(Progress{Stage: stage, Test: test, Index: index, Total: total})
	}
}

// Analyse segments the test, corrects the depth for surface, drift and frame
// compliance, evaluates the stiffness and applies the Oliver-Pharr method.
//
// Cycle level failures are isolated: they are collected in Result.Errors
// and the remaining cycles are still evaluated. An error is returned only
// when no point could be evaluated; the partial result, if any, is returned
// with it.
func (a *Analyzer) Analyse(test *Test) (*Result, error) {
	if err := test.Check(); err != nil {
		return nil, err
	}
	work := test.Clone()
	if err := a.applySurface(work); err != nil {
		return nil, err
	}

	trace, err := a.Segment(work)
	if trace == nil {
		return nil, err
	}
	res := &Result{Test: test.Name, Method: trace.Method, Drift: trace.Drift, Trace: trace}
	if err != nil {
		res.Errors = append(res.Errors, err)
	}
	if len(trace.Cycles) == 0 {
		return res, res.Err()
	}

	if a.cfg.CorrectDrift && trace.Drift.Valid() {
		rate, err := DriftRate(trace)
		if err != nil {
			a.log.Warn("drift rate not available", "test", test.Name, "error", err)
		} else {
			t0 := trace.T[0]
			for i := range trace.H {
				trace.H[i] -= rate * (trace.T[i] - t0)
			}
			res.DriftRate = rate
		}
	}

	compliance := a.tip.Compliance()
	for i := range trace.H {
		trace.H[i] -= compliance * trace.P[i]
	}

	if trace.Method == MethodCSM {
		err = a.evaluateCSM(trace, res)
	} else {
		err = a.evaluateUnloading(trace, res)
	}
	if err != nil {
		res.Errors = append(res.Errors, err)
	}
	if len(res.Stiffness) == 0 {
		return res, fmt.Errorf("test %q: no point evaluated: %w", test.Name, res.Err())
	}
	return res, nil
}

func (a *Analyzer) evaluateUnloading(trace *Test, res *Result) error {
	fits, valid, err := a.StiffnessFromUnloading(trace)
	res.Valid = valid
	for _, f := range fits {
		res.Cycles = append(res.Cycles, trace.Cycles[f.Cycle])
		res.Fits = append(res.Fits, f)
		a.evaluate(res, f.Index, f.Stiffness, trace.H[f.Index], trace.P[f.Index])
	}
	return err
}

// evaluateCSM evaluates every valid loading sample of a CSM test with the
// compliance corrected harmonic stiffness.
func (a *Analyzer) evaluateCSM(trace *Test, res *Result) error {
	if trace.Stiffness == nil {
		return &CycleError{Test: trace.Name, Stage: "csm", Cycle: -1,
			Err: errors.New("CSM test without stiffness channel")}
	}
	compliance := a.tip.Compliance()
	c := trace.Cycles[0]
	res.Cycles = trace.Cycles
	res.Valid = make([]bool, trace.Len())
	for i := c.LoadStart; i <= c.LoadEnd && i < trace.Len(); i++ {
		raw := trace.Stiffness[i]
		if !trace.Valid[i] || !(raw > 0) || !(trace.P[i] > a.cfg.ForceNoise) {
			continue
		}
		s := 1 / (1/raw - compliance)
		if !(s > 0) || math.IsInf(s, 0) {
			continue
		}
		res.Valid[i] = true
		a.evaluate(res, i, s, trace.H[i], trace.P[i])
	}
	return nil
}

func (a *Analyzer) evaluate(res *Result, index int, s, h, p float64) {
	c := a.OliverPharr(s, p, h)
	if c.Clamped {
		a.log.Debug("contact area clamped", "test", res.Test, "index", index, "hc", c.Depth,
			"error", ErrAreaDomain)
	}
	res.Index = append(res.Index, index)
	res.Stiffness = append(res.Stiffness, s)
	res.Depth = append(res.Depth, h)
	res.Force = append(res.Force, p)
	res.ModulusRed = append(res.ModulusRed, c.ModulusRed)
	res.Modulus = append(res.Modulus, a.YoungsModulus(c.ModulusRed))
	res.Area = append(res.Area, c.Area)
	res.ContactDepth = append(res.ContactDepth, c.Depth)
	res.Hardness = append(res.Hardness, p/c.Area)
	res.K2P = append(res.K2P, s*s/p)
	res.LowConfidence = append(res.LowConfidence, c.Clamped)
}

// AnalyseAll analyses every test of the source. Failing tests are skipped
// and their errors joined; the results of the others are returned.
func (a *Analyzer) AnalyseAll(src Source) ([]*Result, error) {
	var results []*Result
	var errs []error
	cur := NewCursor(src)
	for cur.HasNext() {
		test, err := cur.Advance()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		a.report("analyse", test.Name, cur.Index(), src.Len())
		res, err := a.Analyse(test)
		if err != nil {
			a.log.Warn("skipping test", "test", test.Name, "error", err)
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// Err joins the isolated failures recorded during the analysis.
func (r *Result) Err() error {
	return errors.Join(r.Errors...)
}

// Summary returns mean and standard deviation of modulus and hardness over
// the evaluated points deeper than minDepth [µm] with positive values.
func (r *Result) Summary(minDepth float64) (modulus, hardness Summary) {
	var e, h []float64
	for i := range r.Stiffness {
		if r.Depth[i] > minDepth && r.Modulus[i] > 0 && r.Hardness[i] > 0 {
			e = append(e, r.Modulus[i])
			h = append(h, r.Hardness[i])
		}
	}
	return summarize(e), summarize(h)
}

func summarize(v []float64) Summary {
	switch len(v) {
	case 0:
		return Summary{Mean: math.NaN(), Std: math.NaN()}
	case 1:
		return Summary{Mean: v[0], N: 1}
	}
	mean, std := stat.MeanStdDev(v, nil)
	return Summary{Mean: mean, Std: std, N: len(v)}
}
