// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"bufio"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// Offsets used by RandomFeatures for the two conventions of random node features.
const (
	// SageFeatureOffset draws features uniformly from [0, 1).
	SageFeatureOffset = 0.0

	// DGIFeatureOffset draws features uniformly from [-1.5, -0.5).
	DGIFeatureOffset = -1.5
)

// LoadFeatures reads a node feature matrix with numNodes rows and dim columns from path.
//
// Each line holds the features of one node, separated by whitespace, commas or semicolons.
// Rows shorter than dim are zero-padded, longer rows are truncated, and missing rows (if the
// file has fewer than numNodes lines) are all zeros. Extra rows are an error.
func LoadFeatures(path string, numNodes, dim int) (*mat.Dense, error) {
	if numNodes <= 0 || dim <= 0 {
		return nil, errors.Errorf("invalid feature matrix shape %d x %d", numNodes, dim)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open features file %q", path)
	}
	defer func() { _ = f.Close() }()

	features := mat.NewDense(numNodes, dim, nil)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	row, truncated := 0, 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if row >= numNodes {
			return nil, errors.Errorf("features file %q has more than %d rows", path, numNodes)
		}
		fields := splitFields(line)
		if len(fields) > dim {
			truncated++
			fields = fields[:dim]
		}
		for col, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, errors.Errorf("features file %q, row %d, column %d: invalid value %q", path, row, col, field)
			}
			features.Set(row, col, v)
		}
		row++
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading features file %q", path)
	}
	if truncated > 0 || row < numNodes {
		klog.V(1).Infof("Features %q: %d rows truncated to %d columns, %d missing rows zero-filled",
			path, truncated, dim, numNodes-row)
	}
	return features, nil
}

// RandomFeatures returns a numNodes x dim matrix with values drawn uniformly from [offset, offset+1).
// See SageFeatureOffset and DGIFeatureOffset.
func RandomFeatures(numNodes, dim int, seed uint64, offset float64) *mat.Dense {
	rng := rand.New(rand.NewPCG(seed, featuresStream))
	data := make([]float64, numNodes*dim)
	for ii := range data {
		data[ii] = rng.Float64() + offset
	}
	return mat.NewDense(numNodes, dim, data)
}

// featuresStream separates the random stream of features from the one used to split the same seed.
const featuresStream = 0x5eed_f0a7
