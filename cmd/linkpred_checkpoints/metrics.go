// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gomlx/linkpred/pkg/support/sets"
	"github.com/gomlx/linkpred/ui/plots"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagMetrics      = flag.Bool("metrics", true, "Lists the training curves of the -points files, one row per epoch.")
	flagMetricsNames = flag.String("metrics_names", "", "Regular expression: if it matches the name or short name, the metric is included.")
	flagMetricsTypes = flag.String("metrics_types", "", "Comma-separated list of metric types (\"loss\", \"ranking\") to include.")
	flagPlot         = flag.Bool("plot", false, "Saves one PNG per metric type with the curves of all -points files.")
	flagPlotDir      = flag.String("plot_dir", "", "Directory where -plot saves the PNGs. A temporary directory if empty.")
)

// metricsFilter selects the points to report.
type metricsFilter struct {
	names *regexp.Regexp
	types sets.Set[string]
}

func newMetricsFilter(namesRegexp, types string) (*metricsFilter, error) {
	f := &metricsFilter{}
	if namesRegexp != "" {
		var err error
		f.names, err = regexp.Compile(namesRegexp)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid metrics names regular expression %q", namesRegexp)
		}
	}
	if types != "" {
		f.types = sets.Make[string]()
		for _, t := range strings.Split(types, ",") {
			f.types.Insert(strings.TrimSpace(t))
		}
	}
	return f, nil
}

// Match returns whether the point is selected: if a filter is given, either the name or the type must match it.
func (f *metricsFilter) Match(pt plots.Point) bool {
	if f.names == nil && f.types == nil {
		return true
	}
	if f.names != nil && (f.names.MatchString(pt.MetricName) || f.names.MatchString(pt.Short)) {
		return true
	}
	return f.types != nil && f.types.Has(pt.MetricType)
}

// mergePoints loads the training curves of the files into one collection. With more than one file,
// metrics are prefixed by the shortest unique name of their file.
func mergePoints(files []string, filter *metricsFilter) (plots.Points, error) {
	names := MinimalUniquePaths(files...)
	var merged []plots.Point
	for ii, file := range files {
		filePoints, err := plots.LoadPoints(file)
		if err != nil {
			return nil, err
		}
		if len(filePoints) == 0 {
			klog.Warningf("No points found in %q", file)
		}
		runName := strings.TrimSuffix(names[ii], filepath.Ext(names[ii]))
		for _, pt := range filePoints {
			if !filter.Match(pt) {
				continue
			}
			if len(files) > 1 {
				pt.MetricName = fmt.Sprintf("%s: %s", runName, pt.MetricName)
				pt.Short = fmt.Sprintf("#%d %s", ii+1, pt.Short)
			}
			merged = append(merged, pt)
		}
	}
	return plots.NewPoints(merged), nil
}

// savePlots renders one PNG per metric type into dir and returns the files written.
func savePlots(points plots.Points, dir string) ([]string, error) {
	var files []string
	for _, metricType := range points.MetricsTypes() {
		filePath := filepath.Join(dir, metricType+".png")
		if err := points.SavePNG(filePath, metricType, metricType); err != nil {
			return files, err
		}
		files = append(files, filePath)
	}
	return files, nil
}

func metrics(files []string) {
	filter := must.M1(newMetricsFilter(*flagMetricsNames, *flagMetricsTypes))
	points := must.M1(mergePoints(files, filter))
	if len(points) == 0 {
		klog.Errorf("No metrics selected from %q", files)
		return
	}
	if *flagMetrics {
		fmt.Println(titleStyle.Render("Metrics"))
		fmt.Println(points.TableForMetrics())
	}
	if *flagPlot {
		dir := *flagPlotDir
		if dir == "" {
			dir = must.M1(os.MkdirTemp("", "linkpred-plots-"))
		} else {
			must.M(os.MkdirAll(dir, 0770))
		}
		saved := must.M1(savePlots(points, dir))
		fmt.Printf("\nPlots written to:\n\t%s\n\n", strings.Join(saved, "\n\t"))
	}
}
