// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package experiment

import (
	"bytes"
	"io"
	"os"

	"github.com/gomlx/linkpred/ml/data/edgesplit"
	"github.com/gomlx/linkpred/ml/train"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config of an experiment: which datasets, which method and how many runs.
//
// It can be loaded from a YAML file, see LoadConfig.
type Config struct {
	Datasets []DatasetConfig `yaml:"datasets"`

	// Method is the name of a registered method, see models.Methods.
	Method string `yaml:"method"`

	// Runs is the number of training runs per dataset, each with seed Seed+run.
	Runs int `yaml:"runs"`

	// Epochs is the maximum number of epochs per run.
	Epochs int `yaml:"epochs"`

	// Patience of the early stopping. If <= 0 training never stops early.
	Patience int `yaml:"patience"`

	// Monitor is the quantity watched by early stopping: "loss" or "val_auc".
	// If empty the method's default is used.
	Monitor string `yaml:"monitor"`

	TestFrac float64 `yaml:"test_frac"`
	ValFrac  float64 `yaml:"val_frac"`
	Seed     uint64  `yaml:"seed"`

	Sampling             edgesplit.Sampling `yaml:"sampling"`
	MaxRetries           int                `yaml:"max_retries"`
	StrictTrainNegatives bool               `yaml:"strict_train_negatives"`

	// Resplit the edges for every run (with seed Seed+run), instead of splitting once.
	Resplit bool `yaml:"resplit"`

	// DataDir where downloaded datasets are stored.
	DataDir string `yaml:"data_dir"`

	// CheckpointDir, if set, is the base directory for the checkpoints of each run.
	// Otherwise, checkpoints are kept in memory.
	CheckpointDir string `yaml:"checkpoint_dir"`

	// KeepCheckpoints is the number of checkpoints kept on disk per run, -1 keeps all.
	KeepCheckpoints int `yaml:"keep_checkpoints"`

	// Hyperparameters override the method's defaults.
	Hyperparameters map[string]any `yaml:"hyperparameters"`
}

// DefaultConfig returns the default configuration, with no datasets.
func DefaultConfig() Config {
	split := edgesplit.DefaultConfig()
	return Config{
		Method:          "sage",
		Runs:            10,
		Epochs:          100,
		Patience:        20,
		TestFrac:        split.TestFrac,
		ValFrac:         split.ValFrac,
		Sampling:        split.Sampling,
		KeepCheckpoints: 1,
	}
}

// LoadConfig reads a YAML configuration from path. Values not set in the file keep their defaults,
// and unknown fields are an error.
func LoadConfig(path string) (Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "failed to read configuration %q", path)
	}
	cfg, err := ParseConfig(contents)
	if err != nil {
		return Config{}, errors.WithMessagef(err, "configuration %q", path)
	}
	return cfg, nil
}

// ParseConfig parses a YAML configuration, on top of DefaultConfig.
func ParseConfig(contents []byte) (Config, error) {
	cfg := DefaultConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(contents))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.Wrap(err, "failed to parse YAML")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate the run settings. The split settings are validated by SplitConfig's Validate, and the
// method is validated by the Runner.
func (c Config) Validate() error {
	switch {
	case c.Runs <= 0:
		return errors.Errorf("runs must be > 0, got %d", c.Runs)
	case c.Epochs <= 0:
		return errors.Errorf("epochs must be > 0, got %d", c.Epochs)
	case c.KeepCheckpoints == 0 || c.KeepCheckpoints < -1:
		return errors.Errorf("keep_checkpoints must be > 0, or -1 to keep all, got %d", c.KeepCheckpoints)
	}
	if c.Monitor != "" {
		if _, err := train.ParseMonitor(c.Monitor); err != nil {
			return err
		}
	}
	for ii, ds := range c.Datasets {
		if ds.Path == "" && ds.Synthetic == nil {
			return errors.Errorf("dataset #%d (%q) needs a path or a synthetic configuration", ii, ds.Name)
		}
	}
	return c.SplitConfig("", c.Seed).Validate()
}

// SplitConfig returns the edge split configuration for the dataset, with the given seed.
func (c Config) SplitConfig(datasetName string, seed uint64) edgesplit.Config {
	return edgesplit.Config{
		DatasetName:          datasetName,
		TestFrac:             c.TestFrac,
		ValFrac:              c.ValFrac,
		Seed:                 seed,
		Sampling:             c.Sampling,
		MaxRetries:           c.MaxRetries,
		StrictTrainNegatives: c.StrictTrainNegatives,
	}
}
