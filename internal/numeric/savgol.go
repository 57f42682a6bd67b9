// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package numeric

import "fmt"

// SavitzkyGolay smooths y with a local polynomial of the given order fitted
// over an odd window. Near the ends the window is held against the boundary
// and the fitted polynomial is evaluated at the off-centre sample.
func SavitzkyGolay(y []float64, window, order int) ([]float64, error) {
	if window%2 == 0 || window < 1 {
		return nil, fmt.Errorf("window must be a positive odd number, got %d", window)
	}
	if order >= window {
		return nil, fmt.Errorf("polynomial order %d must be less than window %d", order, window)
	}
	if len(y) < window {
		return nil, fmt.Errorf("window %d larger than data length %d", window, len(y))
	}

	half := window / 2
	x := make([]float64, window)
	out := make([]float64, len(y))
	for i := range y {
		start := i - half
		if start < 0 {
			start = 0
		} else if start > len(y)-window {
			start = len(y) - window
		}
		for j := range x {
			x[j] = float64(start + j - i)
		}
		poly, err := PolyFit(x, y[start:start+window], order)
		if err != nil {
			return nil, fmt.Errorf("error fitting window at %d: %w", i, err)
		}
		out[i] = poly[0]
	}
	return out, nil
}
