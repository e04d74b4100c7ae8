// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package plots

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// PNG image size.
var (
	PNGWidth  = 8 * vg.Inch
	PNGHeight = 4 * vg.Inch
)

// NewPlot creates a line plot, one line per metric of the given metric type, over the epochs.
// Non-finite values are skipped. If metricType is empty, all metrics are plotted.
func (points Points) NewPlot(title, metricType string) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = metricType
	p.Legend.Top = true

	var numLines int
	for _, name := range points.MetricsNames() {
		var (
			xys     plotter.XYs
			skipped bool
		)
		points.Map(func(pt *Point) {
			if pt.MetricName != name || (metricType != "" && pt.MetricType != metricType) {
				return
			}
			if math.IsNaN(pt.Value) || math.IsInf(pt.Value, 0) {
				skipped = true
				return
			}
			xys = append(xys, plotter.XY{X: float64(pt.Epoch), Y: pt.Value})
		})
		if len(xys) == 0 {
			continue
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to plot %q", name)
		}
		line.LineStyle.Color = plotutil.Color(numLines)
		line.LineStyle.Dashes = plotutil.Dashes(numLines)
		p.Add(line)
		label := name
		if skipped {
			label += " (non-finite values skipped)"
		}
		p.Legend.Add(label, line)
		numLines++
	}
	if numLines == 0 {
		return nil, errors.Errorf("no points of metric type %q to plot", metricType)
	}
	p.Add(plotter.NewGrid())
	return p, nil
}

// SavePNG renders the metrics of the given type to a PNG file.
func (points Points) SavePNG(filePath, title, metricType string) error {
	p, err := points.NewPlot(title, metricType)
	if err != nil {
		return err
	}
	if err = p.Save(PNGWidth, PNGHeight, filePath); err != nil {
		return errors.Wrapf(err, "failed to save plot to %q", filePath)
	}
	return nil
}
