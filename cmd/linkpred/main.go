// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// linkpred trains and evaluates a link prediction method over one or more graphs, several times with
// different seeds, and reports the mean ± standard deviation of the test AUC, AP and F1.
//
// Example:
//
//	linkpred -data=~/data/cora.csv -method=sage -runs=10 -epochs=200 -progress
//	linkpred -synthetic=500,0.02 -method=adamic_adar
//	linkpred -config=experiment.yaml -results_csv=results.csv
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gomlx/linkpred/ml/data/edgesplit"
	"github.com/gomlx/linkpred/ml/data/graph"
	"github.com/gomlx/linkpred/ml/experiment"
	"github.com/gomlx/linkpred/ml/models"
	"github.com/gomlx/linkpred/ml/params"
	"github.com/gomlx/linkpred/ml/train"
	"github.com/gomlx/linkpred/ml/train/commandline"
	"github.com/gomlx/linkpred/ui/plots"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var defaultConfig = experiment.DefaultConfig()

var (
	flagConfig = flag.String("config", "", "YAML experiment configuration. Flags explicitly set override its values.")

	flagData      = flag.String("data", "", "Graph file (or URL) to evaluate on.")
	flagFormat    = flag.String("format", "", fmt.Sprintf("Format of the graph file, one of %q. Inferred from the file name if empty.", graph.Formats))
	flagFeatures  = flag.String("features", "", "Optional node features file (or URL). Random features are used otherwise.")
	flagName      = flag.String("name", "", "Name of the dataset. Defaults to the file name.")
	flagNumNodes  = flag.Int("num_nodes", 0, "Number of nodes of the graph. If 0 it's inferred from the largest node index.")
	flagSynthetic = flag.String("synthetic", "", "Generate a random G(n, p) graph instead, given as \"n,p\", e.g.: \"1000,0.01\".")
	flagDataDir   = flag.String("data_dir", "~/.cache/linkpred", "Directory where downloaded datasets are stored.")

	flagMethod   = flag.String("method", defaultConfig.Method, fmt.Sprintf("Link prediction method, one of %q.", models.Methods()))
	flagRuns     = flag.Int("runs", defaultConfig.Runs, "Number of runs, each with seed+run.")
	flagEpochs   = flag.Int("epochs", defaultConfig.Epochs, "Maximum number of training epochs per run.")
	flagPatience = flag.Int("patience", defaultConfig.Patience, "Early stopping patience in epochs, 0 to disable.")
	flagMonitor  = flag.String("monitor", "", fmt.Sprintf("Early stopping monitor, %q or %q. Defaults to the method's.",
		train.MonitorLoss, train.MonitorValAUC))

	flagTestFrac   = flag.Float64("test_frac", defaultConfig.TestFrac, "Fraction of edges held out for test.")
	flagValFrac    = flag.Float64("val_frac", defaultConfig.ValFrac, "Fraction of edges held out for validation.")
	flagSeed       = flag.Uint64("seed", defaultConfig.Seed, "Random seed of the split, the features and the first run.")
	flagSampling   = flag.String("sampling", string(defaultConfig.Sampling), fmt.Sprintf("Negative sampling, %q or %q.", edgesplit.Rejection, edgesplit.Exhaustive))
	flagMaxRetries = flag.Int("max_retries", 0, "Maximum random pairs drawn by rejection sampling. 0 uses a default based on the number of negatives.")
	flagResplit    = flag.Bool("resplit", false, "Split the edges again for every run, with seed+run.")

	flagCheckpoint = flag.String("checkpoint", "", "Base directory for the checkpoints of each run. If empty checkpoints are kept in memory.")
	flagKeep       = flag.Int("keep", defaultConfig.KeepCheckpoints, "Number of checkpoints to keep per run, -1 keeps all.")
	flagPlots      = flag.String("plots", "", "Directory where to save the training curves of each run (JSON points and PNGs).")
	flagResultsCSV = flag.String("results_csv", "", "File where to save the test metrics of every run, as CSV.")
	flagProgress   = flag.Bool("progress", false, "Display a progress bar while training.")
)

func main() {
	flagSettings := commandline.CreateSettingsFlag(allDefaults(), "set")
	klog.InitFlags(nil)
	flag.Parse()

	cfg := defaultConfig
	if *flagConfig != "" {
		cfg = must.M1(experiment.LoadConfig(*flagConfig))
	}
	applyFlags(&cfg)
	if len(cfg.Datasets) == 0 {
		klog.Exitf("No dataset given: use -data, -synthetic or -config. See \"linkpred -help\".")
	}

	hyper := must.M1(models.Defaults(cfg.Method))
	must.M(hyper.Update(cfg.Hyperparameters))
	must.M(commandline.ParseSettings(hyper, *flagSettings))
	cfg.Hyperparameters = nil
	runner := must.M1(experiment.NewRunner(cfg, hyper))
	klog.V(1).Info(commandline.SprintSettings(runner.Params))
	runner.OnLoop = func(ds *experiment.Dataset, run int, loop *train.Loop) {
		if *flagProgress {
			commandline.AttachProgressBar(loop)
		}
		if *flagPlots != "" {
			must.M1(plots.Attach(loop, *flagPlots, fmt.Sprintf("%s-%s-run%03d", ds.Name, cfg.Method, run)))
		}
	}

	var allResults []experiment.RunResult
	for _, dsCfg := range cfg.Datasets {
		loadOpts := runner.LoadOptions()
		loadOpts.ShowProgressBar = *flagProgress
		ds, err := experiment.LoadDataset(dsCfg, loadOpts)
		if err != nil {
			klog.Fatalf("Failed to load dataset: %+v", err)
		}
		fmt.Println(ds)
		results, summary, err := runner.Run(ds)
		if err != nil {
			klog.Fatalf("Failed: %+v", err)
		}
		must.M(commandline.ReportSummary(os.Stdout, summary))
		allResults = append(allResults, results...)
	}
	if *flagResultsCSV != "" {
		must.M(experiment.SaveResultsCSV(*flagResultsCSV, allResults))
		klog.Infof("Results of %d runs saved to %q", len(allResults), *flagResultsCSV)
	}
}

// allDefaults returns the union of the hyperparameters of all methods, for the help of the -set flag.
func allDefaults() params.Params {
	all := params.New()
	for _, name := range models.Methods() {
		for key, value := range must.M1(models.Defaults(name)) {
			if _, found := all[key]; !found {
				all[key] = value
			}
		}
	}
	return all
}

// applyFlags overrides the configuration with the flags explicitly set. Without a configuration
// file, the flags are also the defaults.
func applyFlags(cfg *experiment.Config) {
	isSet := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { isSet[f.Name] = true })
	useFlag := func(name string) bool { return *flagConfig == "" || isSet[name] }

	if useFlag("method") {
		cfg.Method = *flagMethod
	}
	if useFlag("runs") {
		cfg.Runs = *flagRuns
	}
	if useFlag("epochs") {
		cfg.Epochs = *flagEpochs
	}
	if useFlag("patience") {
		cfg.Patience = *flagPatience
	}
	if useFlag("monitor") {
		cfg.Monitor = *flagMonitor
	}
	if useFlag("test_frac") {
		cfg.TestFrac = *flagTestFrac
	}
	if useFlag("val_frac") {
		cfg.ValFrac = *flagValFrac
	}
	if useFlag("seed") {
		cfg.Seed = *flagSeed
	}
	if useFlag("sampling") {
		cfg.Sampling = edgesplit.Sampling(*flagSampling)
	}
	if useFlag("max_retries") {
		cfg.MaxRetries = *flagMaxRetries
	}
	if useFlag("resplit") {
		cfg.Resplit = *flagResplit
	}
	if useFlag("data_dir") {
		cfg.DataDir = *flagDataDir
	}
	if useFlag("checkpoint") {
		cfg.CheckpointDir = *flagCheckpoint
	}
	if useFlag("keep") {
		cfg.KeepCheckpoints = *flagKeep
	}

	switch {
	case *flagSynthetic != "":
		synthetic := must.M1(parseSynthetic(*flagSynthetic))
		cfg.Datasets = []experiment.DatasetConfig{{Name: *flagName, Synthetic: synthetic}}
	case *flagData != "":
		cfg.Datasets = []experiment.DatasetConfig{{
			Name:     *flagName,
			Path:     *flagData,
			Format:   must.M1(graph.ParseFormat(*flagFormat)),
			NumNodes: *flagNumNodes,
			Features: *flagFeatures,
		}}
	}
}

// parseSynthetic parses "n,p".
func parseSynthetic(value string) (*experiment.SyntheticConfig, error) {
	nStr, pStr, found := strings.Cut(value, ",")
	if !found {
		return nil, errors.Errorf("invalid -synthetic=%q, it should be \"n,p\"", value)
	}
	n, err := strconv.Atoi(strings.TrimSpace(nStr))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid number of nodes in -synthetic=%q", value)
	}
	p, err := strconv.ParseFloat(strings.TrimSpace(pStr), 64)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid edge probability in -synthetic=%q", value)
	}
	return &experiment.SyntheticConfig{Nodes: n, P: p}, nil
}
