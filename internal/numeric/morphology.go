// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package numeric

// Binary morphology on 1-D masks with a flat structuring window of the
// given size. Samples outside the mask count as false.

// Dilate sets a sample if any sample under the (reflected) window is set.
func Dilate(mask []bool, size int) []bool {
	c := size / 2
	out := make([]bool, len(mask))
	for i := range mask {
		for k := -c; k < size-c; k++ {
			j := i - k
			if j >= 0 && j < len(mask) && mask[j] {
				out[i] = true
				break
			}
		}
	}
	return out
}

// Erode keeps a sample only if every sample under the window is set.
func Erode(mask []bool, size int) []bool {
	c := size / 2
	out := make([]bool, len(mask))
	for i := range mask {
		ok := true
		for k := -c; k < size-c; k++ {
			j := i + k
			if j < 0 || j >= len(mask) || !mask[j] {
				ok = false
				break
			}
		}
		out[i] = ok
	}
	return out
}

// Close fills gaps shorter than the window.
func Close(mask []bool, size int) []bool {
	return Erode(Dilate(mask, size), size)
}

// Open removes runs shorter than the window.
func Open(mask []bool, size int) []bool {
	return Dilate(Erode(mask, size), size)
}

// Any reports whether at least one sample is set.
func Any(mask []bool) bool {
	for _, v := range mask {
		if v {
			return true
		}
	}
	return false
}

// Edges returns the indices at which the mask switches state, treating the
// mask as padded with false on both sides. Even entries are rising edges
// (first set sample), odd entries falling edges (first unset sample after a
// run, possibly len(mask)).
func Edges(mask []bool) []int {
	var idx []int
	prev := false
	for i, v := range mask {
		if v != prev {
			idx = append(idx, i)
			prev = v
		}
	}
	if prev {
		idx = append(idx, len(mask))
	}
	return idx
}
