/*
DESCRIPTION
  plot.go provides plotting of block impedance estimates.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package main

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/ausocean/spkrprot/codec/vi"
)

// plotEstimates writes a plot of the block estimates of each speaker to path.
func plotEstimates(path string, ests []vi.Estimate) error {
	p := plot.New()
	p.Title.Text = "Speaker impedance"
	p.X.Label.Text = "Block"
	p.Y.Label.Text = "Ohms"

	var lines []interface{}
	for s, est := range ests {
		xys := make(plotter.XYs, len(est.Blocks))
		for i, z := range est.Blocks {
			xys[i].X = float64(i)
			xys[i].Y = z
		}
		lines = append(lines, fmt.Sprintf("speaker %d", s), xys)
	}
	err := plotutil.AddLinePoints(p, lines...)
	if err != nil {
		return fmt.Errorf("could not add estimates: %w", err)
	}
	return p.Save(8*vg.Inch, 4*vg.Inch, path)
}
