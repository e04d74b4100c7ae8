// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	"fmt"
	"math"

	"github.com/gomlx/linkpred/ml/train/checkpoints"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Monitor is the quantity watched by EarlyStopping.
type Monitor string

const (
	// MonitorLoss watches the training loss, lower is better.
	MonitorLoss Monitor = "loss"

	// MonitorValAUC watches the validation AUC, higher is better.
	MonitorValAUC Monitor = "val_auc"
)

// ParseMonitor converts a name to a Monitor. Empty defaults to MonitorValAUC.
func ParseMonitor(name string) (Monitor, error) {
	switch Monitor(name) {
	case "":
		return MonitorValAUC, nil
	case MonitorLoss, MonitorValAUC:
		return Monitor(name), nil
	}
	return "", errors.Errorf("unknown early stopping monitor %q, valid values are %q and %q",
		name, MonitorLoss, MonitorValAUC)
}

// EarlyStoppingName is the name of the hooks registered by EarlyStopping.
const EarlyStoppingName = "linkpred.ml.train.EarlyStopping"

// EarlyStopping checkpoints the model every time the monitored quantity improves, stops training
// once it hasn't improved for Patience epochs, and at the end of the loop restores the best
// checkpoint into the model.
//
// A checkpoint of the initial model is saved at the start, so there is always something to
// restore, even if no epoch improved (e.g.: the loss was NaN from the first epoch).
// Epochs with a non-finite loss never improve.
type EarlyStopping struct {
	monitor, active Monitor
	patience        int
	handler         *checkpoints.Handler

	bestScore float64
	bestEpoch int
	wait      int

	// StoppedEpoch is the epoch where training was stopped, or -1 if it ran all epochs.
	StoppedEpoch int
}

// NewEarlyStopping creates the EarlyStopping. A patience <= 0 never stops training, but still
// restores the best checkpoint at the end. If handler is nil, an in-memory one is used.
func NewEarlyStopping(monitor Monitor, patience int, handler *checkpoints.Handler) (*EarlyStopping, error) {
	if _, err := ParseMonitor(string(monitor)); err != nil {
		return nil, err
	}
	if handler == nil {
		var err error
		handler, err = checkpoints.Build().InMemory().Done()
		if err != nil {
			return nil, err
		}
	}
	return &EarlyStopping{monitor: monitor, patience: patience, handler: handler, StoppedEpoch: -1}, nil
}

// Attach registers the EarlyStopping hooks to the loop. It runs after hooks of lower priority.
func (es *EarlyStopping) Attach(loop *Loop, priority Priority) {
	loop.OnStart(EarlyStoppingName, priority, es.onStart)
	loop.OnEpoch(EarlyStoppingName, priority, es.onEpoch)
	loop.OnEnd(EarlyStoppingName, priority, es.onEnd)
}

// Monitor returns the quantity being monitored. It may differ from the one configured if
// validation AUC was requested but no usable validation set was given.
func (es *EarlyStopping) Monitor() Monitor {
	if es.active == "" {
		return es.monitor
	}
	return es.active
}

// BestEpoch returns the epoch of the best checkpoint, or -1 if no epoch improved on the initial model.
func (es *EarlyStopping) BestEpoch() int { return es.bestEpoch }

// BestScore returns the best value of the monitored quantity.
func (es *EarlyStopping) BestScore() float64 { return es.bestScore }

// String implements fmt.Stringer.
func (es *EarlyStopping) String() string {
	return fmt.Sprintf("EarlyStopping(monitor=%s, patience=%d, best=%.4f@%d)", es.Monitor(), es.patience, es.bestScore, es.bestEpoch)
}

func (es *EarlyStopping) better(score float64) bool {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return false
	}
	if es.active == MonitorLoss {
		return score < es.bestScore
	}
	return score > es.bestScore
}

func (es *EarlyStopping) save(loop *Loop, epoch int, score float64) error {
	state, err := loop.Model.SaveState()
	if err != nil {
		return errors.WithMessage(err, "failed to save model state")
	}
	return es.handler.Save(checkpoints.Checkpoint{Epoch: epoch, Score: score, Monitor: string(es.active), State: state})
}

func (es *EarlyStopping) onStart(loop *Loop, _ *Batch) error {
	es.active = es.monitor
	if es.active == MonitorValAUC && !loop.HasValidation() {
		klog.Warningf("early stopping: no validation pairs with both classes, monitoring %q instead of %q",
			MonitorLoss, MonitorValAUC)
		es.active = MonitorLoss
	}
	es.bestScore = math.Inf(1)
	if es.active == MonitorValAUC {
		es.bestScore = math.Inf(-1)
	}
	es.bestEpoch = -1
	es.wait = 0
	es.StoppedEpoch = -1
	return es.save(loop, -1, math.NaN())
}

func (es *EarlyStopping) onEpoch(loop *Loop, m EpochMetrics) error {
	score := m.Loss
	if es.active == MonitorValAUC {
		score = m.Validation.AUC
	}
	finiteLoss := !math.IsNaN(m.Loss) && !math.IsInf(m.Loss, 0)
	if finiteLoss && es.better(score) {
		es.bestScore = score
		es.bestEpoch = m.Epoch
		es.wait = 0
		return es.save(loop, m.Epoch, score)
	}
	es.wait++
	if es.patience > 0 && es.wait >= es.patience {
		klog.V(1).Infof("early stopping at epoch %d: %s did not improve for %d epochs (best %.4f at epoch %d)",
			m.Epoch, es.active, es.wait, es.bestScore, es.bestEpoch)
		es.StoppedEpoch = m.Epoch
		return ErrStopTraining
	}
	return nil
}

func (es *EarlyStopping) onEnd(loop *Loop, _ EpochMetrics) error {
	best, err := es.handler.Latest()
	if err != nil {
		return errors.WithMessage(err, "failed to load best checkpoint")
	}
	if err = loop.Model.LoadState(best.State); err != nil {
		return errors.WithMessagef(err, "failed to restore checkpoint of epoch %d", best.Epoch)
	}
	klog.V(1).Infof("restored checkpoint of epoch %d (%s=%.4f)", best.Epoch, es.active, es.bestScore)
	return nil
}
