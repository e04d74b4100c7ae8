// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/gomlx/linkpred/ml/train"
	"github.com/gomlx/linkpred/ml/train/metrics"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"
)

// progressBar holds a progressbar being displayed.
type progressBar struct {
	out               io.Writer
	numEpochs         int
	lastEpochReported int
	bar               *progressbar.ProgressBar

	// lipgloss-based rich and asynchronous display for the command-line.
	termenv          *termenv.Output
	statsStyle       lipgloss.Style
	statsTable       *lgtable.Table
	isFirstOutput    bool
	updates          chan progressBarUpdate
	asyncUpdatesDone sync.WaitGroup
}

type progressBarUpdate struct {
	amount int
	rows   [][2]string
}

// maxUpdateFrequency is the time between updates to the commandline display of stats.
const maxUpdateFrequency = time.Millisecond * 200

// ProgressBarName is the name of the hooks registered by AttachProgressBar.
const ProgressBarName = "linkpred.ml.train.commandline.progressBar"

var (
	normalStyle       = lipgloss.NewStyle().Padding(0, 1)
	rightAlignedStyle = lipgloss.NewStyle().Align(lipgloss.Right).Padding(0, 1)
)

func (pBar *progressBar) onStart(loop *train.Loop, _ *train.Batch) error {
	pBar.lastEpochReported = loop.Epoch
	pBar.numEpochs = loop.EndEpoch - loop.StartEpoch
	pBar.isFirstOutput = true
	pBar.bar = progressbar.NewOptions(pBar.numEpochs,
		progressbar.OptionSetDescription(fmt.Sprintf("Training (%d epochs): ", pBar.numEpochs)),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("epochs"),
		progressbar.OptionSetTheme(progressbar.ThemeUnicode),
		progressbar.OptionSetWriter(pBar.out),
	)

	// Updates are drawn asynchronously: training may be faster than the terminal.
	pBar.updates = make(chan progressBarUpdate, 100)
	pBar.asyncUpdatesDone.Add(1)
	go pBar.drawUpdates(pBar.updates)
	return nil
}

func (pBar *progressBar) drawUpdates(updates <-chan progressBarUpdate) {
	defer pBar.asyncUpdatesDone.Done()
	for update := range updates {
		// Exhaust the updates in buffer:
		amount := update.amount
	exhaust:
		for {
			select {
			case newUpdate, ok := <-updates:
				if !ok {
					break exhaust
				}
				amount += newUpdate.amount
				update = newUpdate
			default:
				break exhaust
			}
		}

		// Clear the previous lines that will be overwritten.
		if !pBar.isFirstOutput {
			pBar.termenv.ClearLines(len(update.rows) + 1 + 2)
		}
		pBar.isFirstOutput = false

		_ = pBar.bar.Add(amount) // Prints progress bar line.
		pBar.statsTable.Data(lgtable.NewStringData())
		for _, row := range update.rows {
			pBar.statsTable.Row(row[0], row[1])
		}
		_, _ = fmt.Fprintln(pBar.out)
		_, _ = fmt.Fprintln(pBar.out, pBar.statsStyle.Render(pBar.statsTable.String()))
		time.Sleep(maxUpdateFrequency)
	}
}

func (pBar *progressBar) onEpoch(loop *train.Loop, m train.EpochMetrics) error {
	if pBar.bar.IsFinished() {
		return nil
	}
	amount := m.Epoch + 1 - pBar.lastEpochReported // +1 because the current epoch is finished.
	if amount <= 0 {
		return nil
	}
	pBar.lastEpochReported = m.Epoch + 1
	pBar.updates <- progressBarUpdate{
		amount: amount,
		rows: [][2]string{
			{"Epoch", fmt.Sprintf("%d / %d", m.Epoch, loop.EndEpoch)},
			{"Loss", metrics.PrettyPrintLoss(m.Loss)},
			{"Median Loss", metrics.PrettyPrintLoss(loop.MedianLoss.Value())},
			{"Val AUC", metrics.AUC.PrettyPrint(m.Validation.AUC)},
			{"Val AP", metrics.AP.PrettyPrint(m.Validation.AP)},
		},
	}
	return nil
}

func (pBar *progressBar) onEnd(_ *train.Loop, _ train.EpochMetrics) error {
	if pBar.updates != nil {
		close(pBar.updates)
		pBar.updates = nil
	}
	pBar.asyncUpdatesDone.Wait()
	_, _ = fmt.Fprintln(pBar.out)
	return nil
}

// AttachProgressBar creates a commandline progress bar and attaches it to the Loop, so that
// everytime Loop is run it will display a progress bar with progression and metrics.
//
// The associated data will be attached to the train.Loop, so nothing is returned.
func AttachProgressBar(loop *train.Loop) {
	attachProgressBar(loop, os.Stdout)
}

func attachProgressBar(loop *train.Loop, out io.Writer) {
	pBar := &progressBar{
		out:        out,
		termenv:    termenv.NewOutput(out),
		statsStyle: lipgloss.NewStyle().PaddingLeft(8),
		statsTable: lgtable.New().
			Border(lipgloss.RoundedBorder()).
			StyleFunc(func(row, col int) lipgloss.Style {
				if col == 0 {
					return rightAlignedStyle
				}
				return normalStyle
			}),
	}
	loop.OnStart(ProgressBarName, 0, pBar.onStart)
	// Update at most 100 times during the loop, or at least every 3 seconds.
	train.NTimesDuringLoop(loop, 100, ProgressBarName, 0, pBar.onEpoch)
	train.PeriodicCallback(loop, 3*time.Second, false, ProgressBarName, 0, pBar.onEpoch)
	loop.OnEnd(ProgressBarName, 0, pBar.onEnd)
}
