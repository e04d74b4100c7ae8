// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package models is the registry of link prediction methods: each method has default hyperparameters
// and a constructor of a train.Model.
//
// Example:
//
//	p := must.M1(models.Defaults("sage"))
//	must.M(commandline.ParseSettings(p, *flagSettings))
//	model := must.M1(models.New("sage", p))
package models

import (
	"slices"

	"github.com/gomlx/linkpred/ml/data/graph"
	"github.com/gomlx/linkpred/ml/models/gnn"
	"github.com/gomlx/linkpred/ml/models/heuristic"
	"github.com/gomlx/linkpred/ml/params"
	"github.com/gomlx/linkpred/ml/train"
	"github.com/pkg/errors"
)

var (
	// ParamFeatureDim is the dimension of the random node features generated when a dataset has none.
	ParamFeatureDim = "feature_dim"

	// ParamFeatureOffset is added to the random node features, drawn from U[0, 1).
	ParamFeatureOffset = "feature_offset"
)

// Method describes a registered link prediction method.
type Method struct {
	Name        string
	Description string

	// UsesFeatures is false for methods that only look at the graph.
	UsesFeatures bool

	// Monitor is the default quantity watched by early stopping.
	Monitor train.Monitor

	defaults func() params.Params
	create   func(p params.Params) (train.Model, error)
}

func gnnMethod(name, description string, aggregation gnn.Aggregation, decoder gnn.Decoder, objective gnn.Objective,
	featureOffset float64, monitor train.Monitor) Method {
	return Method{
		Name:         name,
		Description:  description,
		UsesFeatures: true,
		Monitor:      monitor,
		defaults: func() params.Params {
			return gnn.Defaults(aggregation, decoder).
				Set(gnn.ParamObjective, string(objective)).
				Set(ParamFeatureDim, 64).
				Set(ParamFeatureOffset, featureOffset)
		},
		create: func(p params.Params) (train.Model, error) { return gnn.New(p) },
	}
}

func heuristicMethod(method heuristic.Method, description string) Method {
	return Method{
		Name:        string(method),
		Description: description,
		Monitor:     train.MonitorLoss,
		defaults:    params.New,
		create:      func(_ params.Params) (train.Model, error) { return heuristic.New(method) },
	}
}

var registry = []Method{
	gnnMethod("gcn", "GCN propagation with an MLP decoder of the Hadamard product",
		gnn.AggregationGCN, gnn.DecoderMLP, gnn.ObjectiveSupervised, graph.SageFeatureOffset, train.MonitorValAUC),
	gnnMethod("sage", "GraphSAGE mean propagation with an MLP decoder of the Hadamard product",
		gnn.AggregationMean, gnn.DecoderMLP, gnn.ObjectiveSupervised, graph.SageFeatureOffset, train.MonitorValAUC),
	gnnMethod("mgae", "masked graph autoencoder: GCN over the unmasked edges, MLP decoder of the masked edges "+
		"and degree regression", gnn.AggregationGCN, gnn.DecoderMLP, gnn.ObjectiveMasked, graph.SageFeatureOffset,
		train.MonitorValAUC),
	gnnMethod("dgi", "deep graph infomax: GCN encoder trained against shuffled features, scored by the sigmoid "+
		"of the dot product of normalized embeddings", gnn.AggregationGCN, gnn.DecoderDot, gnn.ObjectiveInfomax,
		graph.DGIFeatureOffset, train.MonitorLoss),
	heuristicMethod(heuristic.CommonNeighbors, "number of common neighbours"),
	heuristicMethod(heuristic.Jaccard, "Jaccard coefficient of the neighbourhoods"),
	heuristicMethod(heuristic.AdamicAdar, "Adamic-Adar index"),
	heuristicMethod(heuristic.PreferentialAttachment, "product of the degrees"),
}

// Methods returns the names of the registered methods.
func Methods() []string {
	names := make([]string, len(registry))
	for ii, m := range registry {
		names[ii] = m.Name
	}
	return names
}

// Get returns the registered method with the given name.
func Get(name string) (Method, error) {
	idx := slices.IndexFunc(registry, func(m Method) bool { return m.Name == name })
	if idx < 0 {
		return Method{}, errors.Errorf("unknown method %q, valid methods are %q", name, Methods())
	}
	return registry[idx], nil
}

// Defaults returns a fresh copy of the default hyperparameters of the method.
func Defaults(name string) (params.Params, error) {
	m, err := Get(name)
	if err != nil {
		return nil, err
	}
	return m.defaults(), nil
}

// New creates a model of the method, configured by p.
func New(name string, p params.Params) (train.Model, error) {
	m, err := Get(name)
	if err != nil {
		return nil, err
	}
	model, err := m.create(p)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to create model %q", name)
	}
	return model, nil
}
