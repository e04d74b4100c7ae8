// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package metrics evaluates link predictions and describes the metrics it reports.
//
// Evaluate is the evaluator: it converts scores of candidate pairs and their true labels into
// AUC, average precision and F1 (plus a few classification metrics from the same confusion matrix).
// The Interface descriptors (AUC, AP, F1, ...) are used to display and aggregate those values.
package metrics

import (
	"fmt"
	"math"
	"strings"
)

// Interface for a Metric.
type Interface interface {
	// Name of the metric.
	Name() string

	// ShortName is a shortened version of the name (preferably a few characters) to display in progress bars or
	// similar UIs.
	ShortName() string

	// MetricType is a key for metrics that share the same quantity or semantics. Eg.:
	// "AUC" and "AP" are both "ranking" metrics, in [0, 1], and can be displayed on the same plot,
	// sharing the Y-axis.
	MetricType() string

	// FromResult extracts the metric value from an evaluation Result.
	FromResult(r Result) float64

	// PrettyPrint is used to pretty-print a metric value, usually in a short form.
	PrettyPrint(value float64) string
}

const (
	LossMetricType           = "loss"
	RankingMetricType        = "ranking"
	ClassificationMetricType = "classification"
)

// ResultFn extracts a metric value from a Result.
type ResultFn func(r Result) float64

// PrettyPrintFn is a function to convert a metric value to a string.
type PrettyPrintFn func(value float64) string

// baseMetric implements metrics.Interface.
type baseMetric struct {
	name, shortName, metricType string
	resultFn                    ResultFn
	pPrintFn                    PrettyPrintFn // if nil will display default.
}

func (m *baseMetric) Name() string {
	return m.name
}

func (m *baseMetric) ShortName() string {
	return m.shortName
}

func (m *baseMetric) MetricType() string {
	return m.metricType
}

func (m *baseMetric) FromResult(r Result) float64 {
	return m.resultFn(r)
}

func (m *baseMetric) PrettyPrint(value float64) string {
	if m.pPrintFn == nil {
		return fmt.Sprintf("%.4f", value)
	}
	return m.pPrintFn(value)
}

// NewBaseMetric creates a metric descriptor from a function that extracts its value from a Result.
// pPrintFn can be left as nil, and a default will be used.
func NewBaseMetric(name, shortName, metricType string, resultFn ResultFn, pPrintFn PrettyPrintFn) Interface {
	return &baseMetric{name: name, shortName: shortName, metricType: metricType, resultFn: resultFn, pPrintFn: pPrintFn}
}

// Metrics reported by Evaluate, in reporting order.
var (
	AUC         = NewBaseMetric("AUC", "AUC", RankingMetricType, func(r Result) float64 { return r.AUC }, nil)
	AP          = NewBaseMetric("AP", "AP", RankingMetricType, func(r Result) float64 { return r.AP }, nil)
	F1          = NewBaseMetric("F1", "F1", ClassificationMetricType, func(r Result) float64 { return r.F1 }, nil)
	Precision   = NewBaseMetric("Precision", "Prec", ClassificationMetricType, func(r Result) float64 { return r.Precision }, nil)
	Recall      = NewBaseMetric("Recall", "Rec", ClassificationMetricType, func(r Result) float64 { return r.Recall }, nil)
	Accuracy    = NewBaseMetric("Accuracy", "Acc", ClassificationMetricType, func(r Result) float64 { return r.Accuracy }, nil)
	Specificity = NewBaseMetric("Specificity", "Spec", ClassificationMetricType, func(r Result) float64 { return r.Specificity }, nil)
	MCC         = NewBaseMetric("MCC", "MCC", ClassificationMetricType, func(r Result) float64 { return r.MCC },
		func(value float64) string { return fmt.Sprintf("%+.4f", value) })
)

// All returns the descriptors of all metrics reported by Evaluate: AUC, AP and F1 first.
func All() []Interface {
	return []Interface{AUC, AP, F1, Precision, Recall, Accuracy, Specificity, MCC}
}

// ByName returns the metric with the given name or short name (case-insensitive).
func ByName(name string) (Interface, bool) {
	for _, m := range All() {
		if strings.EqualFold(m.Name(), name) || strings.EqualFold(m.ShortName(), name) {
			return m, true
		}
	}
	return nil, false
}

// PrettyPrintLoss formats a loss value, using scientific notation for small values.
func PrettyPrintLoss(value float64) string {
	if math.IsNaN(value) || math.IsInf(value, 0) || math.Abs(value) >= 1e-3 {
		return fmt.Sprintf("%.4f", value)
	}
	return fmt.Sprintf("%.3e", value)
}
