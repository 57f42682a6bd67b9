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
	"fmt"
	"math"
	"strings"

	"github.com/OpenPSG/nanoindent/internal/numeric"
	"gonum.org/v1/gonum/interp"
)

// Shape is the representation of the indenter area function.
type Shape int

const (
	ShapePerfect         Shape = iota // perfect Berkovich: Ac = 24.494 hc²
	ShapeISO                          // Ac = Σ cᵢ hc^(2/2^i), hc in nm
	ShapeISOPlusConstant              // ISO evaluated at hc + constant
	ShapeSphere                       // spherical cap blending into a cone
	ShapeCurve                        // empirical interpolation curve
)

func (s Shape) String() string {
	switch s {
	case ShapePerfect:
		return "perfect"
	case ShapeISO:
		return "iso"
	case ShapeISOPlusConstant:
		return "isoPlusConstant"
	case ShapeSphere:
		return "sphere"
	case ShapeCurve:
		return "curve"
	default:
		return fmt.Sprintf("Shape(%d)", int(s))
	}
}

// berkovich is the area prefactor of a perfect Berkovich indenter.
const berkovich = 24.494

const (
	// Prefactors are fitted with depths in nm, so the area function must be
	// evaluated in nm as well.
	nmPerMicron = 1000.
	// minDepthNM is the smallest depth fed into the area function [nm].
	minDepthNM = 1e-3
)

// Tip describes the indenter shape and the frame compliance of the
// instrument it is mounted in.
//
// A Tip is owned by the caller. Only calibration mutates it, and every
// mutation increments Version; the analysis only reads it.
type Tip struct {
	shape        Shape
	prefactors   []float64 // ISO prefactors, nm based
	constant     float64   // depth offset [nm] for ShapeISOPlusConstant
	radius       float64   // sphere radius [µm]
	openingAngle float64   // cone half angle [deg]
	curve        *Curve
	compliance   float64 // frame compliance [µm/mN]
	version      int
}

// NewTip returns a perfect Berkovich tip with zero frame compliance.
func NewTip() *Tip {
	return &Tip{shape: ShapePerfect}
}

// NewISOTip returns a tip with the polynomial area function
// Ac = Σ cᵢ hc^(2/2^i), hc in nm, Ac in nm².
func NewISOTip(prefactors ...float64) *Tip {
	return &Tip{shape: ShapeISO, prefactors: append([]float64(nil), prefactors...)}
}

// NewISOPlusConstantTip returns an ISO tip evaluated at hc + constant [nm].
func NewISOPlusConstantTip(constant float64, prefactors ...float64) *Tip {
	return &Tip{shape: ShapeISOPlusConstant, constant: constant, prefactors: append([]float64(nil), prefactors...)}
}

// NewSphereTip returns a spherical tip of the given radius [µm] that turns
// into a cone of the given half angle [deg].
func NewSphereTip(radius, openingAngle float64) *Tip {
	return &Tip{shape: ShapeSphere, radius: radius, openingAngle: openingAngle}
}

// NewCurveTip returns a tip whose area function is an empirical curve.
func NewCurveTip(c *Curve) *Tip {
	return &Tip{shape: ShapeCurve, curve: c}
}

// Shape returns the area function representation.
func (t *Tip) Shape() Shape { return t.shape }

// Prefactors returns a copy of the ISO prefactors.
func (t *Tip) Prefactors() []float64 { return append([]float64(nil), t.prefactors...) }

// Constant returns the depth offset [nm] of an ISOPlusConstant tip.
func (t *Tip) Constant() float64 { return t.constant }

// Curve returns the empirical area curve, if any.
func (t *Tip) Curve() *Curve { return t.curve }

// Compliance returns the frame compliance [µm/mN].
func (t *Tip) Compliance() float64 { return t.compliance }

// Version counts the mutations applied to the tip.
func (t *Tip) Version() int { return t.version }

// Clone returns an independent copy with the same version.
func (t *Tip) Clone() *Tip {
	c := *t
	c.prefactors = append([]float64(nil), t.prefactors...)
	return &c
}

// SetCompliance replaces the frame compliance.
func (t *Tip) SetCompliance(c float64) {
	t.compliance = c
	t.version++
}

// SetPrefactors switches to an ISO (constant == nil) or ISOPlusConstant
// area function.
func (t *Tip) SetPrefactors(prefactors []float64, constant *float64) {
	t.prefactors = append([]float64(nil), prefactors...)
	t.curve = nil
	if constant != nil {
		t.shape = ShapeISOPlusConstant
		t.constant = *constant
	} else {
		t.shape = ShapeISO
		t.constant = 0
	}
	t.version++
}

// SetCurve switches to an empirical area curve.
func (t *Tip) SetCurve(c *Curve) {
	t.shape = ShapeCurve
	t.curve = c
	t.prefactors = nil
	t.version++
}

func (t *Tip) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "compliance: %g; ", t.compliance)
	switch t.shape {
	case ShapeCurve:
		fmt.Fprintf(&sb, "interpolation curve with %d points", t.curve.Len())
	case ShapeSphere:
		fmt.Fprintf(&sb, "sphere radius %g µm, opening angle %g°", t.radius, t.openingAngle)
	case ShapeISOPlusConstant:
		fmt.Fprintf(&sb, "isoPlusConstant prefactors %v, constant %g nm", t.prefactors, t.constant)
	default:
		fmt.Fprintf(&sb, "%s prefactors %v", t.shape, t.prefactors)
	}
	return sb.String()
}

// Area returns the projected contact area [µm²] at contact depth hc [µm].
// Depths below 1 pm are raised to 1 pm and negative areas are clamped to
// zero; the curve representation is extrapolated beyond its samples.
func (t *Tip) Area(hc float64) float64 {
	if t.shape == ShapeCurve {
		return math.Max(0, t.curve.At(hc))
	}

	h := hc * nmPerMicron
	if h < minDepthNM || math.IsNaN(h) {
		h = minDepthNM
	}
	var area float64
	switch t.shape {
	case ShapeISO:
		area = isoArea(t.prefactors, h)
	case ShapeISOPlusConstant:
		area = isoArea(t.prefactors, h+t.constant)
	case ShapePerfect:
		area = berkovich * h * h
	case ShapeSphere:
		area = sphereArea(t.radius*nmPerMicron, t.openingAngle, h)
	}
	if area < 0 {
		area = 0
	}
	return area / (nmPerMicron * nmPerMicron)
}

// Areas applies Area to every contact depth.
func (t *Tip) Areas(hc []float64) []float64 {
	out := make([]float64, len(hc))
	for i, h := range hc {
		out[i] = t.Area(h)
	}
	return out
}

func isoArea(prefactors []float64, h float64) float64 {
	area := 0.0
	for i, c := range prefactors {
		area += c * math.Pow(h, 2/math.Pow(2, float64(i)))
	}
	return area
}

func sphereArea(radius, openingAngle, h float64) float64 {
	rad := openingAngle / 180 * math.Pi
	sin, cos, tan := math.Sin(rad), math.Cos(rad), math.Tan(rad)
	var r float64
	if radius-h > radius*sin {
		r = math.Sqrt(radius*radius - (radius-h)*(radius-h))
	} else {
		r = radius/cos - tan*(radius-h)
	}
	return math.Pi * r * r
}

// AreaInverse returns the contact depth [µm] at which the area function
// equals area [µm²], starting the search at hc0 [µm]. Use the perfect
// Berkovich depth sqrt(area/24.494) as hc0 when nothing better is known.
func (t *Tip) AreaInverse(area, hc0 float64) (float64, error) {
	if area < 0 || math.IsNaN(area) {
		return 0, fmt.Errorf("area %g: %w", area, ErrAreaDomain)
	}
	if t.shape == ShapePerfect {
		return math.Sqrt(area / berkovich), nil
	}

	f := func(hc float64) float64 { return t.Area(hc) - area }
	tol := 1e-10
	hc, err := numeric.Secant(f, hc0, tol, 100)
	if err == nil && hc >= 0 && math.Abs(f(hc)) <= 1e-8*math.Max(area, 1e-12) {
		return hc, nil
	}

	// The area functions are monotone on the physical domain: bracket and
	// bisect.
	hi := math.Max(hc0, 1e-3)
	for i := 0; f(hi) < 0; i++ {
		if i > 60 {
			return 0, fmt.Errorf("no contact depth for area %g: %w", area, ErrAreaDomain)
		}
		hi *= 2
	}
	hc, err = numeric.Bisect(f, 0, hi, 1e-14, 200)
	if err != nil {
		return 0, fmt.Errorf("area %g: %w: %w", area, ErrAreaDomain, err)
	}
	return hc, nil
}

// Curve is an empirical area function Ac(hc), both in µm units, linearly
// interpolated between its samples and linearly extrapolated beyond them.
type Curve struct {
	hc, ac []float64
	pl     interp.PiecewiseLinear
}

// NewCurve builds a curve from strictly increasing contact depths.
func NewCurve(hc, ac []float64) (*Curve, error) {
	if len(hc) != len(ac) {
		return nil, fmt.Errorf("curve: %d depths, %d areas", len(hc), len(ac))
	}
	if len(hc) < 2 {
		return nil, fmt.Errorf("curve: need at least 2 points, got %d", len(hc))
	}
	c := &Curve{hc: append([]float64(nil), hc...), ac: append([]float64(nil), ac...)}
	if err := c.pl.Fit(c.hc, c.ac); err != nil {
		return nil, fmt.Errorf("curve: %w", err)
	}
	return c, nil
}

// Len returns the number of samples.
func (c *Curve) Len() int {
	if c == nil {
		return 0
	}
	return len(c.hc)
}

// At evaluates the curve at hc [µm].
func (c *Curve) At(hc float64) float64 {
	n := len(c.hc)
	switch {
	case hc < c.hc[0]:
		slope := (c.ac[1] - c.ac[0]) / (c.hc[1] - c.hc[0])
		return c.ac[0] + slope*(hc-c.hc[0])
	case hc > c.hc[n-1]:
		slope := (c.ac[n-1] - c.ac[n-2]) / (c.hc[n-1] - c.hc[n-2])
		return c.ac[n-1] + slope*(hc-c.hc[n-1])
	default:
		return c.pl.Predict(hc)
	}
}
