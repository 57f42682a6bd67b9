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
	"maps"
)

// Filter selects the smoothing applied to force before differentiating.
type Filter int

const (
	FilterGaussian Filter = iota
	FilterMedian
)

// Criterion selects the signal used to locate the surface.
type Criterion string

const (
	CriterionNone      Criterion = ""
	CriterionLoad      Criterion = "load"
	CriterionRate      Criterion = "dp/dt"
	CriterionSlope     Criterion = "abs(dp/dh)"
	CriterionStiffness Criterion = "stiffness"
)

// Surface configures surface detection. The depth is shifted so that the
// first sample whose (optionally filtered) criterion exceeds Threshold
// becomes zero. Index overrides detection for named tests.
type Surface struct {
	Criterion   Criterion
	Threshold   float64
	MedianWidth int     // 0 disables
	GaussSigma  float64 // 0 disables
	Index       map[string]int
}

// Config holds the model parameters governing segmentation, fitting and the
// Oliver-Pharr evaluation. It is a value: copy it, change fields, pass it on.
// Use Clone for a copy that does not share Surface.Index.
type Config struct {
	// Unloading fit window as fractions of the force at the end of loading.
	UnloadPMax float64
	UnloadPMin float64
	// RelForceRateNoise is the fraction of the peak force rate separating
	// loading, hold and unloading.
	RelForceRateNoise float64
	// ForceNoise is the force floor [mN] below which samples are never
	// classified as loading or unloading.
	ForceNoise float64
	// MaxSizeFluctuations is the morphological window [samples].
	MaxSizeFluctuations int
	RateFilter          Filter
	RateFilterWidth     float64 // Gaussian sigma or median width [samples]

	NuMat      float64 // material Poisson ratio
	NuTip      float64
	ModulusTip float64 // [GPa]
	Beta       float64 // contact depth geometry coefficient
	NonMetal   float64 // 1 for amorphous/non-metals, 0 for metals

	// EvaluateAtMax evaluates the stiffness at the unload-start depth instead
	// of the first sample in the fit window.
	EvaluateAtMax bool

	Surface Surface
	// CorrectDrift subtracts the drift rate measured in the drift segment.
	CorrectDrift bool
}

// Vendor identifies the instrument family that produced a test.
type Vendor int

const (
	VendorAgilent Vendor = iota
	VendorHysitron
	VendorMicromaterials
	VendorFischerScope
	VendorCommonHDF5
)

func (v Vendor) String() string {
	switch v {
	case VendorAgilent:
		return "Agilent"
	case VendorHysitron:
		return "Hysitron"
	case VendorMicromaterials:
		return "Micromaterials"
	case VendorFischerScope:
		return "FischerScope"
	case VendorCommonHDF5:
		return "CommonHDF5"
	default:
		return fmt.Sprintf("Vendor(%d)", int(v))
	}
}

// DefaultConfig returns the vendor independent defaults.
func DefaultConfig() Config {
	return Config{
		UnloadPMax:          0.99,
		UnloadPMin:          0.5,
		RelForceRateNoise:   0.02,
		ForceNoise:          0.01,
		MaxSizeFluctuations: 10,
		RateFilter:          FilterGaussian,
		RateFilterWidth:     5,
		NuMat:               0.3,
		NuTip:               0.07,
		ModulusTip:          1140,
		Beta:                0.75,
		NonMetal:            1,
		EvaluateAtMax:       true,
	}
}

// DefaultsFor returns the defaults with the vendor specific thresholds
// applied. These values are starting points, not calibrated truth.
func DefaultsFor(v Vendor) Config {
	c := DefaultConfig()
	switch v {
	case VendorAgilent:
		c.UnloadPMax, c.UnloadPMin, c.RelForceRateNoise = 0.999, 0.5, 0.02
	case VendorHysitron:
		c.UnloadPMax, c.UnloadPMin, c.RelForceRateNoise = 0.95, 0.4, 0.2
	case VendorMicromaterials:
		c.UnloadPMax, c.UnloadPMin, c.RelForceRateNoise = 0.99, 0.5, 0.02
	case VendorFischerScope:
		c.UnloadPMax, c.UnloadPMin, c.RelForceRateNoise = 0.95, 0.21, 0.01
	case VendorCommonHDF5:
		c.UnloadPMax, c.UnloadPMin, c.RelForceRateNoise = 0.99, 0.5, 0.02
	}
	return c
}

// Clone returns a deep copy of the configuration.
func (c Config) Clone() Config {
	c.Surface.Index = maps.Clone(c.Surface.Index)
	return c
}

// Validate checks the configuration for inconsistent values.
func (c Config) Validate() error {
	var errs []error
	if !(c.UnloadPMin >= 0 && c.UnloadPMin < c.UnloadPMax && c.UnloadPMax <= 1) {
		errs = append(errs, fmt.Errorf("unload window [%g, %g] must satisfy 0 <= min < max <= 1", c.UnloadPMin, c.UnloadPMax))
	}
	if c.RelForceRateNoise <= 0 || c.RelForceRateNoise >= 1 {
		errs = append(errs, fmt.Errorf("relative force-rate noise %g must be in (0, 1)", c.RelForceRateNoise))
	}
	if c.MaxSizeFluctuations < 1 {
		errs = append(errs, fmt.Errorf("morphological window %d must be positive", c.MaxSizeFluctuations))
	}
	if c.ModulusTip <= 0 {
		errs = append(errs, fmt.Errorf("tip modulus %g must be positive", c.ModulusTip))
	}
	if c.NuMat < 0 || c.NuMat >= 0.5 || c.NuTip < 0 || c.NuTip >= 0.5 {
		errs = append(errs, fmt.Errorf("Poisson ratios (%g, %g) must be in [0, 0.5)", c.NuMat, c.NuTip))
	}
	if c.Beta <= 0 {
		errs = append(errs, fmt.Errorf("beta %g must be positive", c.Beta))
	}
	return errors.Join(errs...)
}
