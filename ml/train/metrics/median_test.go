// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamingMedian(t *testing.T) {
	var m StreamingMedian
	assert.True(t, math.IsNaN(m.Value()))

	// Sample from 0.01 < r < 1.0 randomly (so median r is expected to be 0.99/2 = 0.495),
	// and then feed StreamingMedian values of 1/r (so median is expected to be 1/0.495 = 2.0202020...).
	const numExamples = 100_001
	rng := rand.New(rand.NewPCG(1, 2))
	values := make([]float64, 0, numExamples)
	var median float64
	for range numExamples {
		r := 1 / (rng.Float64()*0.99 + 0.01)
		values = append(values, r)
		median = m.Update(r)
	}
	slices.Sort(values)
	want := values[numExamples/2]
	fmt.Printf("\tgot median=%.5g, wanted median=%.5g\n", median, want)
	require.InDelta(t, want, median, 0.01)
	assert.Equal(t, int64(numExamples), m.Count())

	// Non-finite values are ignored.
	assert.Equal(t, median, m.Update(math.NaN()))
	assert.Equal(t, int64(numExamples), m.Count())

	m.Reset()
	assert.Equal(t, 3.0, m.Update(3))
	assert.Equal(t, int64(1), m.Count())
}
