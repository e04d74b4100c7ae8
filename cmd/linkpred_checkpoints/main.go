// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// linkpred_checkpoints inspects the checkpoints and training curves saved by linkpred.
//
// Arguments are checkpoint directories: each one, and any subdirectory holding checkpoints
// (e.g.: "<checkpoint>/<dataset>/<method>/run-003"), is reported as a run.
//
// Example:
//
//	linkpred_checkpoints -list ~/work/cora_ckpts
//	linkpred_checkpoints -points=~/work/plots -metrics_names='AUC' -plot
package main

import (
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/linkpred/ml/data"
	"github.com/gomlx/linkpred/ml/train/checkpoints"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagSummary = flag.Bool("summary", true, "Display one row per run with its latest checkpoint.")
	flagList    = flag.Bool("list", false, "Lists every checkpoint of every run.")
	flagPoints  = flag.String("points", "",
		"Comma-separated list of training curves files (\".json\" written by linkpred -plots), or directories with them.")
)

var titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 && *flagPoints == "" {
		klog.Errorf("Missing checkpoint directory (or -points) to read from. See 'linkpred_checkpoints -help'")
		os.Exit(1)
	}

	if len(args) > 0 {
		runDirs := must.M1(findRunDirs(args...))
		if len(runDirs) == 0 {
			klog.Exitf("No checkpoints found in %q", args)
		}
		runs := must.M1(loadRuns(runDirs))
		if *flagSummary {
			fmt.Println(titleStyle.Render("Summary"))
			fmt.Println(SummaryTable(runs))
		}
		if *flagList {
			fmt.Println(titleStyle.Render("Checkpoints"))
			fmt.Println(ListTable(runs))
		}
	}

	if *flagPoints != "" {
		files := must.M1(findPointsFiles(strings.Split(*flagPoints, ",")...))
		if len(files) == 0 {
			klog.Exitf("No training curves found in -points=%q", *flagPoints)
		}
		metrics(files)
	}
}

// hasCheckpoints returns whether dir holds checkpoints saved by a checkpoints.Handler.
func hasCheckpoints(dir string) (bool, error) {
	handler, err := checkpoints.Build().Dir(dir).Done()
	if err != nil {
		return false, err
	}
	return handler.HasCheckpoints()
}

// findRunDirs returns the sorted list of directories under the roots (included) that hold checkpoints.
func findRunDirs(roots ...string) ([]string, error) {
	var dirs []string
	for _, root := range roots {
		root = data.ReplaceTildeInDir(root)
		fi, err := os.Stat(root)
		if err != nil {
			return nil, errors.Wrapf(err, "checkpoint directory %q", root)
		}
		if !fi.IsDir() {
			return nil, errors.Errorf("%q is not a directory", root)
		}
		err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !entry.IsDir() {
				return nil
			}
			found, err := hasCheckpoints(path)
			if err != nil {
				return err
			}
			if found {
				dirs = append(dirs, path)
			}
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "while scanning %q", root)
		}
	}
	slices.Sort(dirs)
	return slices.Compact(dirs), nil
}

// findPointsFiles expands directories into the ".json" files they hold.
func findPointsFiles(paths ...string) ([]string, error) {
	var files []string
	for _, p := range paths {
		p = data.ReplaceTildeInDir(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		fi, err := os.Stat(p)
		if err != nil {
			return nil, errors.Wrapf(err, "training curves %q", p)
		}
		if !fi.IsDir() {
			files = append(files, p)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(p, "*.json"))
		if err != nil {
			return nil, errors.Wrapf(err, "listing %q", p)
		}
		files = append(files, matches...)
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}
