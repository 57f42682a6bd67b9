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
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// GaussianFilter smooths data with a normalised Gaussian kernel truncated
// at four standard deviations. Samples beyond the ends repeat the nearest
// edge value.
func GaussianFilter(data []float64, sigma float64) []float64 {
	out := make([]float64, len(data))
	if len(data) == 0 {
		return out
	}
	if sigma <= 0 {
		copy(out, data)
		return out
	}

	half := int(math.Ceil(4 * sigma))
	kernel := make([]float64, 2*half+1)
	sum := 0.0
	for i := range kernel {
		x := float64(i - half)
		kernel[i] = math.Exp(-(x * x) / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	last := len(data) - 1
	for i := range data {
		v := 0.0
		for j, k := range kernel {
			idx := i + j - half
			if idx < 0 {
				idx = 0
			} else if idx > last {
				idx = last
			}
			v += data[idx] * k
		}
		out[i] = v
	}
	return out
}

// MedianFilter applies a running median of odd width. The signal is padded
// with zeros at both ends.
func MedianFilter(data []float64, width int) []float64 {
	if width%2 == 0 {
		width++
	}
	half := width / 2
	out := make([]float64, len(data))
	window := make([]float64, width)
	for i := range data {
		for j := 0; j < width; j++ {
			idx := i + j - half
			if idx < 0 || idx >= len(data) {
				window[j] = 0
			} else {
				window[j] = data[idx]
			}
		}
		sort.Float64s(window)
		out[i] = window[half]
	}
	return out
}

// Gradient returns dy/dx using second-order central differences on the
// interior and first-order one-sided differences at the ends. The spacing
// of x may be non-uniform.
func Gradient(y, x []float64) []float64 {
	n := len(y)
	out := make([]float64, n)
	if n < 2 {
		return out
	}
	out[0] = (y[1] - y[0]) / (x[1] - x[0])
	out[n-1] = (y[n-1] - y[n-2]) / (x[n-1] - x[n-2])
	for i := 1; i < n-1; i++ {
		hd := x[i] - x[i-1]
		hs := x[i+1] - x[i]
		out[i] = (hs*hs*y[i+1] + (hd*hd-hs*hs)*y[i] - hd*hd*y[i-1]) / (hs * hd * (hd + hs))
	}
	return out
}

// Diff returns the first differences y[i+1]-y[i].
func Diff(y []float64) []float64 {
	if len(y) < 2 {
		return nil
	}
	out := make([]float64, len(y)-1)
	for i := range out {
		out[i] = y[i+1] - y[i]
	}
	return out
}

// Percentile returns the p-th percentile (0..100) of data.
func Percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	return stat.Quantile(p/100, stat.LinInterp, sorted, nil)
}

// HistogramMode splits [min, max] of data into the given number of bins and
// returns the upper edge of the most populated bin.
func HistogramMode(data []float64, bins int) (float64, error) {
	if len(data) == 0 || bins < 1 {
		return 0, fmt.Errorf("empty histogram input")
	}
	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	lo, hi := sorted[0], sorted[len(sorted)-1]
	if hi == lo {
		return hi, nil
	}
	dividers := make([]float64, bins+1)
	width := (hi - lo) / float64(bins)
	for i := range dividers {
		dividers[i] = lo + float64(i)*width
	}
	// The last bin is closed on the right.
	dividers[bins] = math.Nextafter(hi, math.Inf(1))
	counts := stat.Histogram(nil, dividers, sorted, nil)
	best := 0
	for i, c := range counts {
		if c > counts[best] {
			best = i
		}
	}
	return dividers[best+1], nil
}

// FillNaN replaces NaN entries by linear interpolation between the
// neighbouring finite values; leading and trailing NaNs take the nearest
// finite value.
func FillNaN(y []float64) []float64 {
	out := append([]float64(nil), y...)
	prev := -1
	for i, v := range out {
		if math.IsNaN(v) {
			continue
		}
		if prev == -1 {
			for j := 0; j < i; j++ {
				out[j] = v
			}
		} else if i-prev > 1 {
			for j := prev + 1; j < i; j++ {
				f := float64(j-prev) / float64(i-prev)
				out[j] = out[prev]*(1-f) + v*f
			}
		}
		prev = i
	}
	if prev >= 0 {
		for j := prev + 1; j < len(out); j++ {
			out[j] = out[prev]
		}
	}
	return out
}
