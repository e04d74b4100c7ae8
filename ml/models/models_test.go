// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package models

import (
	"testing"

	"github.com/gomlx/linkpred/ml/models/gnn"
	"github.com/gomlx/linkpred/ml/params"
	"github.com/gomlx/linkpred/ml/train"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"gcn", "sage", "mgae", "dgi", "common_neighbors", "jaccard", "adamic_adar",
		"preferential_attachment"}, Methods())
	for _, name := range Methods() {
		p, err := Defaults(name)
		require.NoError(t, err)
		model, err := New(name, p)
		require.NoErrorf(t, err, "method %q", name)
		require.NotNil(t, model)
	}

	p, err := Defaults("dgi")
	require.NoError(t, err)
	assert.Equal(t, -1.5, params.GetParamOr(p, ParamFeatureOffset, 0.0))
	assert.Equal(t, "dot", params.GetParamOr(p, gnn.ParamDecoder, ""))
	assert.Equal(t, "infomax", params.GetParamOr(p, gnn.ParamObjective, ""))
	mgae, err := Defaults("mgae")
	require.NoError(t, err)
	assert.Equal(t, "masked", params.GetParamOr(mgae, gnn.ParamObjective, ""))
	assert.Equal(t, 0.7, params.GetParamOr(mgae, gnn.ParamMaskRate, 0.0))
	assert.Equal(t, 0.007, params.GetParamOr(mgae, gnn.ParamDegreeAlpha, 0.0))

	// Defaults are fresh copies.
	p.Set(gnn.ParamHiddenDim, 3)
	p2, err := Defaults("dgi")
	require.NoError(t, err)
	assert.Equal(t, 64, p2[gnn.ParamHiddenDim])

	m, err := Get("sage")
	require.NoError(t, err)
	assert.True(t, m.UsesFeatures)
	assert.Equal(t, train.MonitorValAUC, m.Monitor)
	m, err = Get("jaccard")
	require.NoError(t, err)
	assert.False(t, m.UsesFeatures)

	_, err = Defaults("node2vec")
	require.Error(t, err)
	_, err = New("node2vec", params.New())
	require.Error(t, err)
	_, err = New("sage", params.New().Set(gnn.ParamDecoder, "bilinear"))
	require.Error(t, err)
	_, err = New("dgi", p.Clone().Set(gnn.ParamDecoder, "mlp"))
	require.Error(t, err, "infomax doesn't train the mlp decoder")
}
