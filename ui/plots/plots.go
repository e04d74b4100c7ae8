// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package plots collects the training curves of a loop (loss and validation metrics per epoch),
// saves them as JSON lines and renders them as PNG images.
package plots

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"sort"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/gomlx/linkpred/pkg/support/sets"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Point represents a training plot point. It is used to save/load plots.
type Point struct {
	// MetricName of this point.
	MetricName string

	// Short name
	Short string

	// MetricType typically will be "loss" or "ranking".
	// It's used in plotting to aggregate similar metric types in the same plot.
	MetricType string

	// Epoch this metric was measured.
	Epoch int

	// Value is the metric captured.
	Value float64
}

// LoadPoints parses all plot points saved in the given file.
func LoadPoints(filePath string) ([]Point, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read plots file %q", filePath)
	}
	defer func() { _ = f.Close() }()

	dec := json.NewDecoder(f)
	var points []Point
	for {
		var point Point
		err := dec.Decode(&point)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "error while decoding plots file %q", filePath)
		}
		points = append(points, point)
	}
	return points, nil
}

// CreatePointsWriter creates a channel to write Point to the given file, truncating it.
// It creates an errReport channel to report an error (or nil) back at the very end.
// If any error occurs, it stops writing, and will report the error back once pointWriter is closed.
func CreatePointsWriter(filePath string) (pointWriter chan<- Point, errReport <-chan error) {
	pointChan := make(chan Point, 100)
	errChan := make(chan error, 1)
	go func() {
		f, err := os.Create(filePath)
		if err != nil {
			err = errors.Wrapf(err, "failed to create plots file %q", filePath)
			klog.Errorf("Error: %v", err)
		}
		enc := json.NewEncoder(f)
		for point := range pointChan {
			if err != nil {
				// Drain the channel.
				continue
			}
			if err = enc.Encode(point); err != nil {
				err = errors.Wrapf(err, "failed to encode point %v", point)
				klog.Errorf("Error: %v", err)
			}
		}
		if f != nil {
			if closeErr := f.Close(); err == nil && closeErr != nil {
				err = errors.Wrapf(closeErr, "failed to close plots file %q", filePath)
			}
		}
		errChan <- err
	}()
	return pointChan, errChan
}

// Points is a collection of Point objects organized by their Epoch.
type Points map[int][]Point

// NewPoints create a Points object from a collection of individual `Point`.
func NewPoints(rawPoints []Point) Points {
	points := make(Points)
	for _, p := range rawPoints {
		points[p.Epoch] = append(points[p.Epoch], p)
	}
	return points
}

// Epochs returns the epochs with points, sorted.
func (points Points) Epochs() []int {
	return slices.Sorted(maps.Keys(points))
}

// Map executes the given function on all individual points, in epoch order.
func (points Points) Map(fn func(p *Point)) {
	for _, epoch := range points.Epochs() {
		epochPoints := points[epoch]
		for ii := range epochPoints {
			fn(&epochPoints[ii])
		}
	}
}

// Extract converts the Points back to a list of individual points, sorted by epoch.
func (points Points) Extract() (rawPoints []Point) {
	points.Map(func(p *Point) {
		rawPoints = append(rawPoints, *p)
	})
	return
}

// Series returns the (epoch, value) pairs of the metric, in epoch order.
func (points Points) Series(metricName string) (epochs []int, values []float64) {
	points.Map(func(p *Point) {
		if p.MetricName == metricName {
			epochs = append(epochs, p.Epoch)
			values = append(values, p.Value)
		}
	})
	return
}

// MetricsNames return the list of metrics names in the whole collection, sorted alphabetically by their type and
// then by their name.
func (points Points) MetricsNames() []string {
	metricNames := sets.Make[string]()
	nameToType := make(map[string]string)
	points.Map(func(p *Point) {
		metricNames.Insert(p.MetricName)
		nameToType[p.MetricName] = p.MetricType
	})
	names := slices.Sorted(maps.Keys(metricNames))
	sort.SliceStable(names, func(i, j int) bool {
		return nameToType[names[i]] < nameToType[names[j]]
	})
	return names
}

// MetricsTypes returns the sorted list of metric types in the collection.
func (points Points) MetricsTypes() []string {
	types := sets.Make[string]()
	points.Map(func(p *Point) { types.Insert(p.MetricType) })
	return slices.Sorted(maps.Keys(types))
}

// TableForMetrics returns a table with the first column being the epoch followed
// by the columns given by the `metrics` names.
// If `metrics` is empty, it will include all metrics in the table.
func (points Points) TableForMetrics(metrics ...string) string {
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	headerStyle := lipgloss.NewStyle().Padding(0, 1).Bold(true).Reverse(true)
	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == lgtable.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	if len(metrics) == 0 {
		metrics = points.MetricsNames()
	}
	table.Headers(append([]string{"Epoch"}, metrics...)...)
	for _, epoch := range points.Epochs() {
		row := make([]string, 1+len(metrics))
		row[0] = fmt.Sprintf("%d", epoch)
		for _, pt := range points[epoch] {
			if idx := slices.Index(metrics, pt.MetricName); idx != -1 {
				row[idx+1] = fmt.Sprintf("%.4f", pt.Value)
			}
		}
		table.Row(row...)
	}
	return table.String()
}

func (points Points) String() string {
	return points.TableForMetrics()
}
