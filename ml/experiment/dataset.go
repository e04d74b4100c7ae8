// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package experiment

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/linkpred/ml/data"
	"github.com/gomlx/linkpred/ml/data/graph"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// Dataset is a loaded graph, with optional node features.
type Dataset struct {
	Name     string
	Graph    *graph.Graph
	Features *mat.Dense
}

// String implements fmt.Stringer.
func (ds *Dataset) String() string {
	features := "no features"
	if ds.Features != nil {
		_, dim := ds.Features.Dims()
		features = fmt.Sprintf("%d features", dim)
	}
	return fmt.Sprintf("%s: %s nodes, %s edges, %s", ds.Name,
		humanize.Comma(int64(ds.Graph.NumNodes())), humanize.Comma(int64(ds.Graph.NumEdges())), features)
}

// SyntheticConfig describes an Erdős–Rényi G(n, p) graph.
type SyntheticConfig struct {
	Nodes int     `yaml:"nodes"`
	P     float64 `yaml:"p"`
}

// DatasetConfig describes where and how to load a dataset.
type DatasetConfig struct {
	// Name of the dataset. Defaults to the base name of Path without extension.
	Name string `yaml:"name"`

	// Path to the graph file, or an URL to download it from.
	Path string `yaml:"path"`

	// Checksum (SHA256) of the graph file, optional.
	Checksum string `yaml:"checksum"`

	Format       graph.Format `yaml:"format"`
	NumNodes     int          `yaml:"num_nodes"`
	SourceColumn string       `yaml:"source_column"`
	TargetColumn string       `yaml:"target_column"`

	// Features is an optional path (or URL) to a node features file.
	Features string `yaml:"features"`

	// Cache the parsed graph in a gob file next to it (path + ".gob").
	Cache bool `yaml:"cache"`

	// Synthetic generates a random graph instead of loading Path.
	Synthetic *SyntheticConfig `yaml:"synthetic"`
}

// DisplayName returns the Name of the dataset, or a default derived from its source.
func (c DatasetConfig) DisplayName() string {
	switch {
	case c.Name != "":
		return c.Name
	case c.Synthetic != nil:
		return fmt.Sprintf("synthetic-n%d-p%g", c.Synthetic.Nodes, c.Synthetic.P)
	default:
		base := filepath.Base(c.Path)
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
}

// LoadOptions control how the datasets are fetched and how missing features are generated.
type LoadOptions struct {
	// DataDir where downloaded datasets are stored. Defaults to the temporary directory.
	DataDir string

	ShowProgressBar bool

	// NeedFeatures makes LoadDataset generate random features if the dataset has none.
	NeedFeatures bool

	// FeatureDim is the dimension of the features: files with fewer columns are zero-padded, and
	// random features are generated with it.
	FeatureDim int

	// FeatureOffset is added to random features, drawn from U[0, 1).
	FeatureOffset float64

	// Seed of the random features and synthetic graphs.
	Seed uint64
}

// LoadDataset fetches (if needed) and loads the dataset described by cfg.
func LoadDataset(cfg DatasetConfig, opts LoadOptions) (*Dataset, error) {
	ds := &Dataset{Name: cfg.DisplayName()}
	var err error
	if cfg.Synthetic != nil {
		ds.Graph, err = graph.Synthetic(cfg.Synthetic.Nodes, cfg.Synthetic.P, opts.Seed)
		if err != nil {
			return nil, errors.WithMessagef(err, "dataset %q", ds.Name)
		}
	} else {
		if cfg.Path == "" {
			return nil, errors.Errorf("dataset %q has no path", ds.Name)
		}
		filePath, err := data.Fetch(cfg.Path, opts.DataDir, cfg.Checksum, opts.ShowProgressBar)
		if err != nil {
			return nil, errors.WithMessagef(err, "dataset %q", ds.Name)
		}
		loadOpts := graph.LoadOptions{
			Format:       cfg.Format,
			NumNodes:     cfg.NumNodes,
			SourceColumn: cfg.SourceColumn,
			TargetColumn: cfg.TargetColumn,
		}
		var cachePath string
		if cfg.Cache {
			cachePath = filePath + ".gob"
		}
		ds.Graph, err = graph.LoadCached(filePath, cachePath, loadOpts)
		if err != nil {
			return nil, errors.WithMessagef(err, "dataset %q", ds.Name)
		}
	}

	switch {
	case cfg.Features != "":
		if opts.FeatureDim <= 0 {
			return nil, errors.Errorf("dataset %q: feature dimension must be set to load %q", ds.Name, cfg.Features)
		}
		featuresPath, err := data.Fetch(cfg.Features, opts.DataDir, "", opts.ShowProgressBar)
		if err != nil {
			return nil, errors.WithMessagef(err, "dataset %q features", ds.Name)
		}
		ds.Features, err = graph.LoadFeatures(featuresPath, ds.Graph.NumNodes(), opts.FeatureDim)
		if err != nil {
			return nil, errors.WithMessagef(err, "dataset %q", ds.Name)
		}
	case opts.NeedFeatures:
		if opts.FeatureDim <= 0 {
			return nil, errors.Errorf("dataset %q: invalid feature dimension %d", ds.Name, opts.FeatureDim)
		}
		ds.Features = graph.RandomFeatures(ds.Graph.NumNodes(), opts.FeatureDim, opts.Seed, opts.FeatureOffset)
		klog.V(1).Infof("Dataset %q has no features, using %d random features", ds.Name, opts.FeatureDim)
	}
	klog.V(1).Infof("Loaded %s", ds)
	return ds, nil
}
