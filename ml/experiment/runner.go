// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package experiment runs a link prediction method several times over a dataset, and aggregates
// the test metrics of the runs into mean ± standard deviation.
//
// Example:
//
//	cfg := must.M1(experiment.LoadConfig("experiment.yaml"))
//	runner := must.M1(experiment.NewRunner(cfg, nil))
//	for _, dsCfg := range cfg.Datasets {
//		ds := must.M1(experiment.LoadDataset(dsCfg, runner.LoadOptions()))
//		results, summary := must.M2(runner.Run(ds))
//		summary.Report(os.Stdout)
//		...
//	}
package experiment

import (
	"fmt"
	"time"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/linkpred/ml/data/edgesplit"
	"github.com/gomlx/linkpred/ml/models"
	"github.com/gomlx/linkpred/ml/params"
	"github.com/gomlx/linkpred/ml/train"
	"github.com/gomlx/linkpred/ml/train/checkpoints"
	"github.com/gomlx/linkpred/ml/train/metrics"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// EarlyStoppingPriority is the priority of the early stopping hooks: they run after the other hooks
// of the loop, so those see every epoch, including the one where training stops.
const EarlyStoppingPriority train.Priority = 1000

// RunResult holds the outcome of one training run.
type RunResult struct {
	// ID is unique for every run.
	ID string

	Dataset string
	Method  string
	Run     int
	Seed    uint64

	// Test metrics of the restored (best) checkpoint.
	Test metrics.Result

	// BestEpoch is the epoch of the restored checkpoint, -1 for the initial model.
	BestEpoch int

	// EpochsRun is the number of epochs trained before stopping.
	EpochsRun int

	// Monitor is the quantity that was watched by early stopping.
	Monitor train.Monitor

	// Diverged is set if any epoch had a NaN or infinite loss.
	Diverged bool

	// History of the epochs trained.
	History []train.EpochMetrics

	Duration time.Duration
}

// Runner trains and evaluates a method over a dataset several times.
type Runner struct {
	Config Config
	Method models.Method

	// Params are the hyperparameters of the method: its defaults updated with the configuration.
	Params params.Params

	// OnLoop, if set, is called with the loop of each run before training, so it can attach hooks
	// (progress bar, plots, ...).
	OnLoop func(ds *Dataset, run int, loop *train.Loop)
}

// NewRunner creates a Runner for the method in cfg. The hyperparameters p are applied on top of the
// method defaults and the cfg.Hyperparameters, and can be nil.
func NewRunner(cfg Config, p params.Params) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	method, err := models.Get(cfg.Method)
	if err != nil {
		return nil, err
	}
	hyper, err := models.Defaults(cfg.Method)
	if err != nil {
		return nil, err
	}
	if err = hyper.Update(cfg.Hyperparameters); err != nil {
		return nil, errors.WithMessagef(err, "hyperparameters of %q", cfg.Method)
	}
	if err = hyper.Update(p); err != nil {
		return nil, errors.WithMessagef(err, "hyperparameters of %q", cfg.Method)
	}
	// Fail early on invalid hyperparameters.
	if _, err = models.New(cfg.Method, hyper); err != nil {
		return nil, err
	}
	return &Runner{Config: cfg, Method: method, Params: hyper}, nil
}

// LoadOptions returns the options to load datasets for the Runner's method.
func (r *Runner) LoadOptions() LoadOptions {
	return LoadOptions{
		DataDir:       r.Config.DataDir,
		NeedFeatures:  r.Method.UsesFeatures,
		FeatureDim:    params.GetParamOr(r.Params, models.ParamFeatureDim, 0),
		FeatureOffset: params.GetParamOr(r.Params, models.ParamFeatureOffset, 0.0),
		Seed:          r.Config.Seed,
	}
}

// monitor returns the early stopping monitor: the configured one or the method's default.
func (r *Runner) monitor() train.Monitor {
	if r.Config.Monitor != "" {
		return train.Monitor(r.Config.Monitor)
	}
	return r.Method.Monitor
}

// Run trains and evaluates the method Config.Runs times on the dataset, and returns the results of
// each run and their Summary.
//
// Any error in any run aborts the whole experiment: no partial summary is returned.
func (r *Runner) Run(ds *Dataset) (results []RunResult, summary Summary, err error) {
	if r.Method.UsesFeatures && ds.Features == nil {
		return nil, Summary{}, errors.Errorf("method %q requires node features, dataset %q has none", r.Method.Name, ds.Name)
	}
	var split *edgesplit.Split
	if !r.Config.Resplit {
		split, err = edgesplit.New(ds.Graph, r.Config.SplitConfig(ds.Name, r.Config.Seed))
		if err != nil {
			return nil, Summary{}, err
		}
		logSplit(split)
	}
	for run := range r.Config.Runs {
		seed := r.Config.Seed + uint64(run)
		if r.Config.Resplit {
			split, err = edgesplit.New(ds.Graph, r.Config.SplitConfig(ds.Name, seed))
			if err != nil {
				return nil, Summary{}, errors.WithMessagef(err, "run %d", run)
			}
			logSplit(split)
		}
		var (
			result RunResult
			runErr error
		)
		err = exceptions.TryCatch[error](func() { result, runErr = r.runOnce(ds, split, run, seed) })
		if err == nil {
			err = runErr
		}
		if err != nil {
			return nil, Summary{}, errors.WithMessagef(err, "dataset %q, method %q, run %d", ds.Name, r.Method.Name, run)
		}
		klog.V(1).Infof("%s run %d: %s (best epoch %d of %d)", ds.Name, run, result.Test, result.BestEpoch, result.EpochsRun)
		results = append(results, result)
	}
	summary, err = Aggregate(ds.Name, results)
	if err != nil {
		return nil, Summary{}, err
	}
	return results, summary, nil
}

func logSplit(split *edgesplit.Split) {
	klog.V(1).Infof("split: %d/%d/%d train/val/test positives, %d train negatives, %d components",
		len(split.TrainPos), len(split.ValPos), len(split.TestPos), len(split.TrainNeg), split.Components)
}

// checkpointHandler for a run: in a subdirectory of the CheckpointDir, or in memory.
func (r *Runner) checkpointHandler(ds *Dataset, run int) (*checkpoints.Handler, error) {
	config := checkpoints.Build().InMemory()
	if r.Config.CheckpointDir != "" {
		config = checkpoints.Build().
			DirFromBase(fmt.Sprintf("%s/%s/run-%03d", ds.Name, r.Method.Name, run), r.Config.CheckpointDir).
			Keep(r.Config.KeepCheckpoints)
	}
	return config.Done()
}

// runOnce trains a freshly created model and evaluates its best checkpoint on the test split.
func (r *Runner) runOnce(ds *Dataset, split *edgesplit.Split, run int, seed uint64) (RunResult, error) {
	start := time.Now()
	result := RunResult{
		ID:      uuid.NewString(),
		Dataset: ds.Name,
		Method:  r.Method.Name,
		Run:     run,
		Seed:    seed,
	}
	model, err := models.New(r.Method.Name, r.Params)
	if err != nil {
		return result, err
	}
	if err = model.Reset(seed); err != nil {
		return result, errors.WithMessagef(err, "failed to reset model with seed %d", seed)
	}

	handler, err := r.checkpointHandler(ds, run)
	if err != nil {
		return result, err
	}
	es, err := train.NewEarlyStopping(r.monitor(), r.Config.Patience, handler)
	if err != nil {
		return result, err
	}
	loop := train.NewLoop(model).WithValidation(split.Pairs(edgesplit.Validation))
	es.Attach(loop, EarlyStoppingPriority)
	loop.OnEpoch("history", 0, func(_ *train.Loop, m train.EpochMetrics) error {
		result.History = append(result.History, m)
		klog.V(2).Infof("epoch %d: loss=%s val_auc=%.4f", m.Epoch, metrics.PrettyPrintLoss(m.Loss), m.Validation.AUC)
		return nil
	})
	if r.OnLoop != nil {
		r.OnLoop(ds, run, loop)
	}

	if _, err = loop.RunEpochs(train.NewBatch(split, ds.Features), r.Config.Epochs); err != nil {
		return result, err
	}
	result.EpochsRun = loop.Epoch - loop.StartEpoch
	result.Diverged = loop.Diverged
	result.BestEpoch = es.BestEpoch()
	result.Monitor = es.Monitor()
	if result.Diverged {
		klog.Warningf("%s run %d diverged: reporting the checkpoint of epoch %d", ds.Name, run, result.BestEpoch)
	}

	testPairs, testLabels := split.Pairs(edgesplit.Test)
	scores, err := model.Predict(testPairs)
	if err != nil {
		return result, errors.WithMessage(err, "failed to score test pairs")
	}
	result.Test, err = metrics.Evaluate(scores, testLabels)
	if err != nil {
		return result, errors.WithMessage(err, "failed to evaluate test pairs")
	}
	result.Duration = time.Since(start)
	return result, nil
}
