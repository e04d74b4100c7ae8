// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"math"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/linkpred/ml/train/checkpoints"
	"github.com/pkg/errors"
)

// run holds the checkpoints of one run directory.
type run struct {
	Dir  string
	Name string

	// BaseNames and Checkpoints in save order, older first.
	BaseNames   []string
	Checkpoints []checkpoints.Checkpoint
}

// Latest checkpoint of the run.
func (r *run) Latest() checkpoints.Checkpoint {
	return r.Checkpoints[len(r.Checkpoints)-1]
}

// loadRuns reads every checkpoint of the directories. Runs are named by the shortest suffix of
// their path that tells them apart.
func loadRuns(dirs []string) ([]*run, error) {
	names := MinimalUniquePaths(dirs...)
	runs := make([]*run, 0, len(dirs))
	for ii, dir := range dirs {
		handler, err := checkpoints.Build().Dir(dir).Done()
		if err != nil {
			return nil, err
		}
		r := &run{Dir: dir, Name: names[ii]}
		if r.BaseNames, err = handler.ListCheckpoints(); err != nil {
			return nil, err
		}
		if len(r.BaseNames) == 0 {
			return nil, errors.Errorf("no checkpoints in %q", dir)
		}
		for _, baseName := range r.BaseNames {
			ckpt, err := handler.Load(baseName)
			if err != nil {
				return nil, err
			}
			r.Checkpoints = append(r.Checkpoints, ckpt)
		}
		runs = append(runs, r)
	}
	return runs, nil
}

func formatScore(ckpt checkpoints.Checkpoint) string {
	if isBadScore(ckpt) {
		return fmt.Sprintf("%g", ckpt.Score)
	}
	return fmt.Sprintf("%.4f", ckpt.Score)
}

func formatEpoch(ckpt checkpoints.Checkpoint) string {
	if ckpt.IsInitial() {
		return "initial"
	}
	return humanize.Comma(int64(ckpt.Epoch))
}

func isBadScore(ckpt checkpoints.Checkpoint) bool {
	return math.IsNaN(ckpt.Score) || math.IsInf(ckpt.Score, 0)
}

// SummaryTable has one row per run, with its latest checkpoint: the one restored at the end of training.
func SummaryTable(runs []*run) string {
	table := newTable(lipgloss.Left, lipgloss.Right, lipgloss.Right, lipgloss.Left, lipgloss.Right)
	table.Headers("Run", "# Checkpoints", "Epoch", "Monitor", "Score", "Saved", "Size")
	for _, r := range runs {
		latest := r.Latest()
		table.Row(isBadScore(latest),
			r.Name,
			humanize.Comma(int64(len(r.Checkpoints))),
			formatEpoch(latest),
			latest.Monitor,
			formatScore(latest),
			humanize.Time(latest.Time),
			humanize.Bytes(uint64(len(latest.State))),
		)
	}
	return table.Render()
}

// ListTable has one row per checkpoint of every run.
func ListTable(runs []*run) string {
	table := newTable(lipgloss.Left, lipgloss.Left, lipgloss.Right, lipgloss.Left, lipgloss.Right)
	table.Headers("Run", "Checkpoint", "Epoch", "Monitor", "Score", "Saved", "Size")
	for _, r := range runs {
		for ii, ckpt := range r.Checkpoints {
			table.Row(isBadScore(ckpt),
				r.Name,
				filepath.Base(r.BaseNames[ii]),
				formatEpoch(ckpt),
				ckpt.Monitor,
				formatScore(ckpt),
				ckpt.Time.Format("2006-01-02 15:04:05"),
				humanize.Bytes(uint64(len(ckpt.State))),
			)
		}
	}
	return table.Render()
}
