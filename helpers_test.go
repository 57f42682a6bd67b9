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
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/OpenPSG/nanoindent"
	"github.com/stretchr/testify/require"
)

const dt = 0.1

// fixtureTip is a calibrated Berkovich tip with its area function in nm.
func fixtureTip() *nanoindent.Tip {
	return nanoindent.NewISOTip(24.695, 395.77, -16.132, 133.41, 106.46)
}

func newAnalyzer(t *testing.T, cfg nanoindent.Config, tip *nanoindent.Tip, opts ...nanoindent.Option) *nanoindent.Analyzer {
	t.Helper()
	opts = append([]nanoindent.Option{nanoindent.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	a, err := nanoindent.NewAnalyzer(cfg, tip, opts...)
	require.NoError(t, err)
	return a
}

// unloading describes one synthetic load-hold-unload experiment whose
// unloading branch follows p = B (h - hf)^m with stiffness s at the top.
type unloading struct {
	pMax, hMax, s, m float64
	pEnd             float64 // force at the end of unloading, fraction of pMax
	compliance       float64 // frame compliance added to the depth [µm/mN]
	noise            func() float64
}

func (u unloading) powerLaw() (b, hf float64) {
	hf = u.hMax - u.m*u.pMax/u.s
	return u.pMax / math.Pow(u.hMax-hf, u.m), hf
}

// trace builds loading over 200 samples, a hold of 50, unloading over 100 and
// a final hold of 60 at the end force.
func (u unloading) trace(t *testing.T, name string) *nanoindent.Test {
	t.Helper()
	b, hf := u.powerLaw()
	pEnd := u.pEnd
	if pEnd == 0 {
		pEnd = 0.02
	}
	var ts, hs, ps []float64
	add := func(h, p float64) {
		if u.noise != nil {
			h += u.noise()
		}
		ts = append(ts, dt*float64(len(ts)))
		hs = append(hs, h+u.compliance*p)
		ps = append(ps, p)
	}
	for i := 0; i < 200; i++ {
		p := u.pMax * float64(i) / 200
		add(u.hMax*math.Sqrt(p/u.pMax), p)
	}
	for i := 0; i < 50; i++ {
		add(u.hMax, u.pMax)
	}
	var h float64
	for k := 1; k <= 100; k++ {
		p := u.pMax * (1 - (1-pEnd)*float64(k)/100)
		h = hf + math.Pow(p/b, 1/u.m)
		add(h, p)
	}
	for i := 0; i < 60; i++ {
		add(h, u.pMax*pEnd)
	}
	test, err := nanoindent.NewTest(name, ts, hs, ps)
	require.NoError(t, err)
	return test
}

// endToEnd is a measured point on fused silica analysed with fixtureTip.
var endToEnd = unloading{pMax: 20.09, hMax: 0.4013, s: 232.4, m: 1.5}
