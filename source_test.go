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
	"github.com/stretchr/testify/require"
)

func TestMemorySource(t *testing.T) {
	test := endToEnd.trace(t, "silica")
	src := nanoindent.NewMemorySource(nanoindent.VendorHysitron, test)
	assert.Equal(t, nanoindent.VendorHysitron, src.Vendor())
	assert.Equal(t, 1, src.Len())

	got, err := src.Test(0)
	require.NoError(t, err)
	assert.Equal(t, nanoindent.VendorHysitron, got.Vendor)
	assert.Equal(t, test.H, got.H)

	// Every call returns an independent copy.
	got.H[0] = 42
	assert.NotEqual(t, 42.0, test.H[0])
	again, err := src.Test(0)
	require.NoError(t, err)
	assert.NotEqual(t, 42.0, again.H[0])

	_, err = src.Test(1)
	assert.Error(t, err)
}

func TestCursor(t *testing.T) {
	src := nanoindent.NewMemorySource(nanoindent.VendorAgilent,
		endToEnd.trace(t, "a"), endToEnd.trace(t, "b"))
	cur := nanoindent.NewCursor(src)
	assert.Equal(t, -1, cur.Index())
	assert.Equal(t, 2, cur.Len())

	var names []string
	for cur.HasNext() {
		test, err := cur.Advance()
		require.NoError(t, err)
		names = append(names, test.Name)
	}
	assert.Equal(t, []string{"a", "b"}, names)
	assert.Equal(t, 1, cur.Index())

	_, err := cur.Advance()
	assert.Error(t, err)

	cur.Rewind()
	assert.Equal(t, -1, cur.Index())
	test, err := cur.Advance()
	require.NoError(t, err)
	assert.Equal(t, "a", test.Name)
}

func TestTest(t *testing.T) {
	_, err := nanoindent.NewTest("bad", []float64{0, 1}, []float64{0}, []float64{0, 1})
	assert.Error(t, err)

	test, err := nanoindent.NewTest("ok", []float64{0, 1}, []float64{0, 1}, []float64{0, 1})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true}, test.Valid)
	assert.False(t, test.Drift.Valid())

	test.Stiffness = []float64{1}
	assert.Error(t, test.Check())
}
