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
)

// minArea is the floor of the contact area [µm²], 1 pm².
const minArea = 1e-12

// Contact is the Oliver-Pharr solution at one evaluation point.
type Contact struct {
	ModulusRed float64 // [GPa]
	Area       float64 // [µm²]
	Depth      float64 // contact depth hc [µm]
	// Clamped is set when the area fell below the floor or the contact depth
	// was not positive; the values are defined but low confidence.
	Clamped bool
}

// contactDepth is hc = h - nonMetal·β·P/S.
func (a *Analyzer) contactDepth(s, p, h float64) float64 {
	return h - a.cfg.NonMetal*a.cfg.Beta*p/s
}

// OliverPharr converts stiffness S [mN/µm], force P [mN] and compliance
// corrected depth h [µm] into reduced modulus, contact area and contact depth.
func (a *Analyzer) OliverPharr(s, p, h float64) Contact {
	hc := a.contactDepth(s, p, h)
	c := Contact{Depth: hc, Area: a.tip.Area(hc)}
	if !(c.Area >= minArea) || !(hc > 0) {
		c.Clamped = true
		if !(c.Area >= minArea) {
			c.Area = minArea
		}
	}
	c.ModulusRed = s / (2 * math.Sqrt(c.Area/math.Pi))
	return c
}

// InverseOliverPharr recovers the total depth h [µm] that produces the given
// reduced modulus. It only serves to cross-check the forward path.
func (a *Analyzer) InverseOliverPharr(s, p, modulusRed float64) (float64, error) {
	ac := math.Pow(s/(2*modulusRed/math.Sqrt(math.Pi)), 2)
	hc, err := a.tip.AreaInverse(ac, math.Sqrt(ac/berkovich))
	if err != nil {
		return 0, fmt.Errorf("inverse Oliver-Pharr: %w", err)
	}
	return hc + a.cfg.NonMetal*a.cfg.Beta*p/s, nil
}

// YoungsModulus converts a reduced modulus into the sample modulus [GPa].
func (a *Analyzer) YoungsModulus(modulusRed float64) float64 {
	return (1 - a.cfg.NuMat*a.cfg.NuMat) / (1/modulusRed - (1-a.cfg.NuTip*a.cfg.NuTip)/a.cfg.ModulusTip)
}

// ReducedModulus is the inverse of YoungsModulus for a sample of Poisson
// ratio nu.
func (a *Analyzer) ReducedModulus(modulus, nu float64) float64 {
	return 1 / ((1-nu*nu)/modulus + (1-a.cfg.NuTip*a.cfg.NuTip)/a.cfg.ModulusTip)
}

// Verify runs the forward Oliver-Pharr evaluation and then its inverse and
// returns the contact solution together with the relative depth error of the
// round trip.
func (a *Analyzer) Verify(s, p, h float64) (Contact, float64, error) {
	c := a.OliverPharr(s, p, h)
	back, err := a.InverseOliverPharr(s, p, c.ModulusRed)
	if err != nil {
		return c, math.NaN(), err
	}
	return c, math.Abs(back-h) / math.Abs(h), nil
}
