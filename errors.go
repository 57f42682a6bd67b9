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
)

var (
	// ErrSegmentation means the load-hold-unload cycles could not be established.
	ErrSegmentation = errors.New("segmentation failed")
	// ErrFitWindowEmpty means no samples fall inside the unloading fit window.
	ErrFitWindowEmpty = errors.New("unloading fit window is empty")
	// ErrNonlinearFit is recorded on an UnloadingFit that fell back to a linear secant.
	ErrNonlinearFit = errors.New("power-law fit failed")
	// ErrAreaDomain flags contact depths or areas outside the tip's valid domain.
	ErrAreaDomain = errors.New("outside area function domain")
	// ErrInsufficientData means too few points survived calibration filtering.
	ErrInsufficientData = errors.New("insufficient calibration data")
)

// CycleError identifies the test, stage and cycle indices implicated in a
// failure.
type CycleError struct {
	Test  string
	Stage string
	Cycle int // -1 if not cycle specific
	Index []int
	Err   error
}

func (e *CycleError) Error() string {
	if e.Cycle < 0 {
		return fmt.Sprintf("%s: test %q: %v %s", e.Stage, e.Test, e.Err, formatIndex(e.Index))
	}
	return fmt.Sprintf("%s: test %q cycle %d: %v %s", e.Stage, e.Test, e.Cycle, e.Err, formatIndex(e.Index))
}

// maxListedIndices bounds how many indices an error message spells out.
const maxListedIndices = 8

// formatIndex lists short index sets in full and long ones, such as a fit
// window, by their first and last index.
func formatIndex(idx []int) string {
	if len(idx) <= maxListedIndices {
		return fmt.Sprint(idx)
	}
	return fmt.Sprintf("[%d ... %d] (%d indices)", idx[0], idx[len(idx)-1], len(idx))
}

func (e *CycleError) Unwrap() error {
	return e.Err
}
