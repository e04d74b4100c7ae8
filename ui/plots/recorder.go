// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package plots

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/gomlx/linkpred/ml/train"
	"github.com/gomlx/linkpred/ml/train/metrics"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// RecorderName is the name of the hooks registered by Attach.
const RecorderName = "linkpred.ui.plots.Recorder"

// Recorder collects the points of a training loop: the loss and the validation ranking metrics of
// every epoch. They are written to "<dir>/<name>.json" as they are collected, and at the end of the
// loop a PNG is rendered for each metric type ("<dir>/<name>-<type>.png").
type Recorder struct {
	Dir, Name string

	points    []Point
	writer    chan<- Point
	errReport <-chan error
}

// Attach creates a Recorder and attaches it to the loop. The directory is created if needed.
func Attach(loop *train.Loop, dir, name string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return nil, errors.Wrapf(err, "failed to create plots directory %q", dir)
	}
	r := &Recorder{Dir: dir, Name: name}
	loop.OnStart(RecorderName, 0, r.onStart)
	loop.OnEpoch(RecorderName, 0, r.onEpoch)
	loop.OnEnd(RecorderName, 0, r.onEnd)
	return r, nil
}

// PointsPath returns the path of the JSON file with the points.
func (r *Recorder) PointsPath() string {
	return filepath.Join(r.Dir, r.Name+".json")
}

// PNGPath returns the path of the image for the metric type.
func (r *Recorder) PNGPath(metricType string) string {
	return filepath.Join(r.Dir, fmt.Sprintf("%s-%s.png", r.Name, metricType))
}

// Points returns the points collected so far.
func (r *Recorder) Points() Points {
	return NewPoints(r.points)
}

func (r *Recorder) onStart(_ *train.Loop, _ *train.Batch) error {
	r.points = nil
	r.writer, r.errReport = CreatePointsWriter(r.PointsPath())
	return nil
}

// EpochPoints converts the metrics of an epoch to points: the training loss and, if validation was
// evaluated, the validation AUC and AP. Non-finite values (JSON can't represent them) are skipped.
func EpochPoints(m train.EpochMetrics) []Point {
	var points []Point
	if !math.IsNaN(m.Loss) && !math.IsInf(m.Loss, 0) {
		points = append(points, Point{
			MetricName: "Train: Loss",
			Short:      "Loss",
			MetricType: metrics.LossMetricType,
			Epoch:      m.Epoch,
			Value:      m.Loss,
		})
	}
	for _, metric := range []metrics.Interface{metrics.AUC, metrics.AP} {
		value := metric.FromResult(m.Validation)
		if math.IsNaN(value) || math.IsInf(value, 0) {
			continue
		}
		points = append(points, Point{
			MetricName: "Validation: " + metric.Name(),
			Short:      "V/" + metric.ShortName(),
			MetricType: metric.MetricType(),
			Epoch:      m.Epoch,
			Value:      value,
		})
	}
	return points
}

func (r *Recorder) onEpoch(_ *train.Loop, m train.EpochMetrics) error {
	for _, point := range EpochPoints(m) {
		r.points = append(r.points, point)
		r.writer <- point
	}
	return nil
}

func (r *Recorder) onEnd(_ *train.Loop, _ train.EpochMetrics) error {
	close(r.writer)
	if err := <-r.errReport; err != nil {
		return err
	}
	points := r.Points()
	for _, metricType := range points.MetricsTypes() {
		title := fmt.Sprintf("%s: %s", r.Name, metricType)
		if err := points.SavePNG(r.PNGPath(metricType), title, metricType); err != nil {
			// A curve with no finite value can't be plotted, it's not fatal.
			klog.Warningf("plots: %v", err)
		}
	}
	return nil
}
