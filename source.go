// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package nanoindent

import "fmt"

// Source produces the tests of one dataset. Every call to Test returns an
// independent copy, so a dataset can be processed more than once.
type Source interface {
	Vendor() Vendor
	Len() int
	Test(i int) (*Test, error)
}

// MemorySource serves tests held in memory.
type MemorySource struct {
	vendor Vendor
	tests  []*Test
}

// NewMemorySource returns a source over the given tests.
func NewMemorySource(vendor Vendor, tests ...*Test) *MemorySource {
	return &MemorySource{vendor: vendor, tests: tests}
}

func (s *MemorySource) Vendor() Vendor { return s.vendor }

func (s *MemorySource) Len() int { return len(s.tests) }

func (s *MemorySource) Test(i int) (*Test, error) {
	if i < 0 || i >= len(s.tests) {
		return nil, fmt.Errorf("test index %d out of range [0, %d)", i, len(s.tests))
	}
	t := s.tests[i].Clone()
	t.Vendor = s.vendor
	return t, nil
}

// Cursor walks a Source in order.
type Cursor struct {
	src   Source
	index int // index of the test last returned, -1 before the first
}

// NewCursor returns a cursor positioned before the first test.
func NewCursor(src Source) *Cursor {
	return &Cursor{src: src, index: -1}
}

// HasNext reports whether Advance will return another test.
func (c *Cursor) HasNext() bool {
	return c.index+1 < c.src.Len()
}

// Advance moves to the next test and returns it. The cursor moves even when
// the test cannot be produced, so a broken test does not stall a batch.
func (c *Cursor) Advance() (*Test, error) {
	if !c.HasNext() {
		return nil, fmt.Errorf("cursor exhausted after %d tests", c.src.Len())
	}
	c.index++
	t, err := c.src.Test(c.index)
	if err != nil {
		return nil, fmt.Errorf("error reading test %d: %w", c.index, err)
	}
	return t, nil
}

// Rewind positions the cursor before the first test again.
func (c *Cursor) Rewind() {
	c.index = -1
}

// Index returns the index of the test last returned by Advance, or -1.
func (c *Cursor) Index() int {
	return c.index
}

// Len returns the number of tests in the underlying source.
func (c *Cursor) Len() int {
	return c.src.Len()
}
