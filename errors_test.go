// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package nanoindent_test

import (
	"testing"

	"github.com/OpenPSG/nanoindent"
	"github.com/stretchr/testify/assert"
)

func TestCycleError(t *testing.T) {
	window := make([]int, 300)
	for i := range window {
		window[i] = 100 + i
	}

	tests := []struct {
		name string
		err  *nanoindent.CycleError
		want string
	}{
		{
			"short index list",
			&nanoindent.CycleError{Test: "a", Stage: "segment", Cycle: -1, Index: []int{1, 2},
				Err: nanoindent.ErrSegmentation},
			`segment: test "a": segmentation failed [1 2]`,
		},
		{
			"fit window",
			&nanoindent.CycleError{Test: "a", Stage: "unloading", Cycle: 2, Index: window,
				Err: nanoindent.ErrNonlinearFit},
			`unloading: test "a" cycle 2: power-law fit failed [100 ... 399] (300 indices)`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
			assert.ErrorIs(t, tt.err, tt.err.Err)
		})
	}
}
