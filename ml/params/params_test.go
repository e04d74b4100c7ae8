// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package params

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetParamOr(t *testing.T) {
	p := New().Set("learning_rate", 0.01).Set("num_layers", 2).Set("name", "sage").Set("nil", nil)
	assert.Equal(t, 0.01, GetParamOr(p, "learning_rate", 0.1))
	assert.Equal(t, 2, GetParamOr(p, "num_layers", 1))
	assert.Equal(t, 7, GetParamOr(p, "missing", 7))
	assert.Equal(t, 7, GetParamOr(p, "nil", 7))

	// Conversions.
	assert.Equal(t, 2.0, GetParamOr(p, "num_layers", 1.0))
	assert.Equal(t, int64(2), MustGetParam[int64](p, "num_layers"))
	assert.Panics(t, func() { GetParamOr(p, "name", 1) })
	assert.Panics(t, func() { MustGetParam[int](p, "missing") })
	assert.Panics(t, func() { GetParamOr(p, "learning_rate", 1) })

	assert.Equal(t, 2, GetNumberOr(p, "num_layers", 1, 1, 10))
	assert.Panics(t, func() { GetNumberOr(p, "num_layers", 1, 3, 10) })
	assert.Equal(t, "learning_rate=0.01;name=sage;nil=<nil>;num_layers=2", p.String())
}

func TestUpdate(t *testing.T) {
	p := New().Set("epochs", 100).Set("learning_rate", 0.01).Set("aggregation", "mean")
	// As decoded from JSON/YAML.
	err := p.Update(map[string]any{"epochs": 50.0, "learning_rate": 1})
	require.NoError(t, err)
	assert.Equal(t, 50, p["epochs"])
	assert.Equal(t, 1.0, p["learning_rate"])
	assert.Equal(t, "mean", p["aggregation"])

	require.Error(t, p.Update(map[string]any{"unknown": 1}))
	require.Error(t, p.Update(map[string]any{"epochs": 1.5}))
	require.Error(t, p.Update(map[string]any{"aggregation": 3}))
	require.Error(t, p.Update(map[string]any{"epochs": "ten"}))

	c := p.Clone()
	c.Set("epochs", 1)
	assert.Equal(t, 50, p["epochs"])
	assert.Equal(t, []string{"aggregation", "epochs", "learning_rate"}, p.Keys())
}
