// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package train holds the training Loop, the Model interface it trains and the tools attached to it,
// like EarlyStopping.
package train

import (
	"math"
	"slices"
	"sort"
	"time"

	"github.com/gomlx/linkpred/ml/data/edgesplit"
	"github.com/gomlx/linkpred/ml/data/graph"
	"github.com/gomlx/linkpred/ml/train/metrics"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// Model is a link prediction model trained by the Loop.
//
// Models own their random sources and parameters: two models reset with the same seed and trained on
// the same Batch must produce the same results.
type Model interface {
	// Reset re-initializes the model parameters (and optimizer state) from the given seed.
	Reset(seed uint64) error

	// TrainEpoch runs one epoch of training over the batch and returns the epoch's mean loss.
	// A NaN or infinite loss means training diverged.
	TrainEpoch(batch *Batch) (loss float64, err error)

	// Predict returns one score per pair: the probability, in [0, 1], of the pair being an edge.
	// Scores outside [0, 1] fail the evaluation.
	Predict(pairs []graph.Edge) ([]float64, error)

	// SaveState serializes the model parameters.
	SaveState() ([]byte, error)

	// LoadState restores parameters saved with SaveState.
	LoadState(state []byte) error
}

// Batch holds everything a Model needs to train one epoch.
type Batch struct {
	// Graph is the residual training graph: only training positives are edges.
	Graph *graph.Graph

	// Features is the NumNodes x dim matrix of node features. It may be nil for models that don't use it.
	Features *mat.Dense

	// Positives and Negatives training pairs.
	Positives, Negatives []graph.Edge
}

// NewBatch creates the training Batch from a split.
func NewBatch(split *edgesplit.Split, features *mat.Dense) *Batch {
	return &Batch{
		Graph:     split.Train,
		Features:  features,
		Positives: split.TrainPos,
		Negatives: split.TrainNeg,
	}
}

// Pairs returns positives followed by negatives, and the corresponding 0/1 labels.
func (b *Batch) Pairs() (pairs []graph.Edge, labels []float64) {
	pairs = make([]graph.Edge, 0, len(b.Positives)+len(b.Negatives))
	pairs = append(pairs, b.Positives...)
	pairs = append(pairs, b.Negatives...)
	labels = make([]float64, len(pairs))
	for ii := range b.Positives {
		labels[ii] = 1
	}
	return
}

// ErrStopTraining can be returned by OnEpoch hooks to end training after the current epoch.
// It is not reported as an error by the Loop.
var ErrStopTraining = errors.New("stop training")

// Priority for hooks, the lowest values are run first. Defaults to 0, but negative
// values are ok.
type Priority int

// EpochMetrics are the measurements of one epoch, passed to the hooks.
type EpochMetrics struct {
	// Epoch that just finished, starting from 0.
	Epoch int

	// Loss returned by Model.TrainEpoch.
	Loss float64

	// Validation results. All NaN if there is no validation set, or if the loss is not finite.
	Validation metrics.Result
}

// OnStartFn is the type of OnStart hooks.
type OnStartFn func(loop *Loop, batch *Batch) error

// OnEpochFn is the type of OnEpoch hooks.
type OnEpochFn func(loop *Loop, m EpochMetrics) error

// OnEndFn is the type of OnEnd hooks. m holds the metrics of the last epoch run.
type OnEndFn func(loop *Loop, m EpochMetrics) error

// Loop will run a training loop, invoking Model.TrainEpoch every epoch,
// evaluating the validation pairs (if set) and calling the appropriate hooks.
//
// In itself it doesn't do much, but one can attach functionality to it, like
// checkpointing, plotting tools, early-stopping strategies, etc.
//
// The public attributes are meant for reading only, don't change them -- behavior
// can be undefined.
type Loop struct {
	// Model being trained.
	Model Model

	// Epoch currently being executed. Defaults to 0.
	Epoch int

	// StartEpoch is the value of Epoch at the start of a run. If Loop.RunEpochs is called
	// multiple times, it picks up where it left of last time.
	StartEpoch int

	// EndEpoch is one-past the last epoch to be executed.
	EndEpoch int

	// Diverged is set if the model returned a NaN or infinite loss in any epoch. Training continues, and
	// such epochs are not validated: it's up to hooks (EarlyStopping) to discard them.
	Diverged bool

	// Stopped is set if a hook stopped training with ErrStopTraining.
	Stopped bool

	// MedianLoss of the epochs run so far, skipping non-finite values.
	MedianLoss metrics.StreamingMedian

	// SharedData allows for cross-tools to publish and consume information. Keys (strings)
	// and semantics/type of their values are not specified by loop.
	SharedData map[string]any

	// EpochDurations collected during training.
	EpochDurations []time.Duration

	validationPairs  []graph.Edge
	validationLabels []float64

	// Registered hooks.
	onStart *priorityHooks[*hookWithName[OnStartFn]]
	onEpoch *priorityHooks[*hookWithName[OnEpochFn]]
	onEnd   *priorityHooks[*hookWithName[OnEndFn]]
}

// NewLoop creates a new training loop for the model.
func NewLoop(model Model) *Loop {
	return &Loop{
		Model:      model,
		SharedData: make(map[string]any),
		onStart:    newPriorityHooks[*hookWithName[OnStartFn]](),
		onEpoch:    newPriorityHooks[*hookWithName[OnEpochFn]](),
		onEnd:      newPriorityHooks[*hookWithName[OnEndFn]](),
	}
}

// WithValidation sets the pairs (and 0/1 labels) evaluated after each epoch.
//
// It returns loop itself after it has been configured, so calls can be cascaded.
func (loop *Loop) WithValidation(pairs []graph.Edge, labels []float64) *Loop {
	loop.validationPairs = pairs
	loop.validationLabels = labels
	return loop
}

// HasValidation returns whether validation pairs with both classes are configured.
func (loop *Loop) HasValidation() bool {
	var numPos int
	for _, l := range loop.validationLabels {
		if l == 1 {
			numPos++
		}
	}
	return numPos > 0 && numPos < len(loop.validationLabels)
}

// start of loop: it calls the appropriate hooks.
func (loop *Loop) start(batch *Batch) (err error) {
	loop.onStart.Enumerate(func(hook *hookWithName[OnStartFn]) {
		if err != nil {
			// After the first error stop.
			return
		}
		err = hook.fn(loop, batch)
		if err != nil {
			err = errors.WithMessagef(err, "OnStart(hook %q)", hook.name)
		}
	})
	return
}

// validate evaluates the model on the validation pairs.
func (loop *Loop) validate() (metrics.Result, error) {
	if len(loop.validationPairs) == 0 {
		return metrics.NaNResult(), nil
	}
	scores, err := loop.Model.Predict(loop.validationPairs)
	if err != nil {
		return metrics.Result{}, errors.WithMessage(err, "failed to predict validation pairs")
	}
	result, err := metrics.Evaluate(scores, loop.validationLabels)
	if err != nil {
		var degenerate *metrics.DegenerateLabelsError
		if errors.As(err, &degenerate) {
			return metrics.NaNResult(), nil
		}
		return metrics.Result{}, errors.WithMessage(err, "failed to evaluate validation pairs")
	}
	return result, nil
}

// epoch trains one epoch and calls the OnEpoch hooks.
// It returns stop=true if training should stop after this epoch.
func (loop *Loop) epoch(batch *Batch) (m EpochMetrics, stop bool, err error) {
	startTime := time.Now()
	m.Epoch = loop.Epoch
	m.Loss, err = loop.Model.TrainEpoch(batch)
	loop.EpochDurations = append(loop.EpochDurations, time.Since(startTime))
	if err != nil {
		return
	}
	if math.IsNaN(m.Loss) || math.IsInf(m.Loss, 0) {
		klog.Warningf("epoch %d: loss is %g", loop.Epoch, m.Loss)
		loop.Diverged = true
		m.Validation = metrics.NaNResult()
	} else {
		loop.MedianLoss.Update(m.Loss)
		m.Validation, err = loop.validate()
		if err != nil {
			return
		}
	}
	klog.V(1).Infof("epoch %d: loss=%s, val_auc=%.4f", loop.Epoch, metrics.PrettyPrintLoss(m.Loss), m.Validation.AUC)

	loop.onEpoch.Enumerate(func(hook *hookWithName[OnEpochFn]) {
		if err != nil {
			// After the first error stop.
			return
		}
		hookErr := hook.fn(loop, m)
		if errors.Is(hookErr, ErrStopTraining) {
			// Other hooks still see this epoch.
			stop = true
			loop.Stopped = true
			return
		}
		if hookErr != nil {
			err = errors.WithMessagef(hookErr, "OnEpoch(hook %q)", hook.name)
		}
	})
	return
}

// end of loop: it calls the appropriate hooks.
func (loop *Loop) end(m EpochMetrics) (err error) {
	loop.onEnd.Enumerate(func(hook *hookWithName[OnEndFn]) {
		if err != nil {
			// After the first error stop.
			return
		}
		err = hook.fn(loop, m)
		if err != nil {
			err = errors.WithMessagef(err, "OnEnd(hook %q)", hook.name)
		}
	})
	return
}

// RunEpochs trains for those many epochs, or until a hook returns ErrStopTraining.
// StartEpoch is adjusted to the current Epoch, so it can be called multiple times, and it will simply pick up
// where it left of last time.
//
// It returns the metrics of the last epoch run.
func (loop *Loop) RunEpochs(batch *Batch, epochs int) (m EpochMetrics, err error) {
	loop.StartEpoch = loop.Epoch
	loop.EndEpoch = loop.Epoch + epochs
	loop.Stopped, loop.Diverged = false, false
	loop.MedianLoss.Reset()
	loop.EpochDurations = nil
	m = EpochMetrics{Epoch: loop.Epoch - 1, Loss: math.NaN(), Validation: metrics.NaNResult()}
	if err = loop.start(batch); err != nil {
		return m, err
	}
	for ; loop.Epoch < loop.EndEpoch; loop.Epoch++ {
		var stop bool
		m, stop, err = loop.epoch(batch)
		if err != nil {
			return m, errors.WithMessagef(err, "Loop.RunEpochs(%d): failed at epoch %d", epochs, loop.Epoch)
		}
		if stop {
			loop.Epoch++
			break
		}
	}
	if err = loop.end(m); err != nil {
		return m, errors.WithMessagef(err, "Loop.RunEpochs(%d): failed end (Epoch=%d)", epochs, loop.Epoch)
	}
	return m, nil
}

// MedianEpochDuration returns the median duration of each epoch. It returns 1 millisecond
// if no epoch was recorded (to avoid potential division by 0).
func (loop *Loop) MedianEpochDuration() time.Duration {
	if len(loop.EpochDurations) == 0 {
		// Return something different than 0 to avoid division by 0.
		return time.Millisecond
	}
	times := slices.Clone(loop.EpochDurations)
	slices.Sort(times)
	return times[len(times)/2]
}

// OnStart adds a hook with given priority and name (for error reporting) to the start of a loop.
func (loop *Loop) OnStart(name string, priority Priority, fn OnStartFn) {
	loop.onStart.Add(priority, &hookWithName[OnStartFn]{
		name: name,
		fn:   fn,
	})
}

// OnEpoch adds a hook with given priority and name (for error reporting) to each epoch of a loop.
// The function `fn` is called after each `Model.TrainEpoch` and validation.
func (loop *Loop) OnEpoch(name string, priority Priority, fn OnEpochFn) {
	loop.onEpoch.Add(priority, &hookWithName[OnEpochFn]{
		name: name,
		fn:   fn,
	})
}

// OnEnd adds a hook with given priority and name (for error reporting) to the end of a loop,
// after the last epoch.
func (loop *Loop) OnEnd(name string, priority Priority, fn OnEndFn) {
	loop.onEnd.Add(priority, &hookWithName[OnEndFn]{
		name: name,
		fn:   fn,
	})
}

// hookWithName stores a hook name and function.
type hookWithName[F any] struct {
	name string
	fn   F
}

// priorityHooks organizes hooks for type F per priority.
type priorityHooks[H any] struct {
	hooks map[Priority][]H
}

func newPriorityHooks[H any]() *priorityHooks[H] {
	return &priorityHooks[H]{
		hooks: make(map[Priority][]H),
	}
}

// Add hook at the given priority.
func (h *priorityHooks[H]) Add(priority Priority, hook H) {
	h.hooks[priority] = append(h.hooks[priority], hook)
}

// Enumerate will call fn for all registered hooks in priority order.
func (h *priorityHooks[H]) Enumerate(fn func(hook H)) {
	keys := make([]Priority, 0, len(h.hooks))
	for key := range h.hooks {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i] < keys[j]
	})
	for _, key := range keys {
		for _, hook := range h.hooks[key] {
			fn(hook)
		}
	}
}
