// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gnn

import (
	"math/rand/v2"

	"github.com/gomlx/linkpred/ml/data/graph"
	"github.com/gomlx/linkpred/ml/train"
	"github.com/gomlx/linkpred/ml/train/losses"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// Objective trained by the GNN.
type Objective string

const (
	// ObjectiveSupervised fits the decoder to the training positives and negatives.
	ObjectiveSupervised Objective = "supervised"

	// ObjectiveMasked masks each training positive with probability MaskRate at every epoch, propagates
	// the features over the remaining edges, and fits the decoder to the masked edges against the training
	// negatives. If DegreeAlpha > 0, a linear degree decoder regresses the number of masked edges of
	// each node, and its mean squared error is added to the loss with weight DegreeAlpha.
	ObjectiveMasked Objective = "masked"

	// ObjectiveInfomax trains the encoder alone: a bilinear discriminator tells the embeddings of the
	// nodes from the embeddings of the nodes with shuffled features, given the summary
	// sigmoid(mean(z)) of the graph. It requires DecoderDot.
	ObjectiveInfomax Objective = "infomax"
)

// ParseObjective converts a name to an Objective.
func ParseObjective(name string) (Objective, error) {
	switch Objective(name) {
	case ObjectiveSupervised, ObjectiveMasked, ObjectiveInfomax:
		return Objective(name), nil
	}
	return "", errors.Errorf("unknown objective %q, valid values are %q, %q and %q",
		name, ObjectiveSupervised, ObjectiveMasked, ObjectiveInfomax)
}

// PCG streams of the per-epoch randomness of the objectives, combined with the epoch number.
const (
	maskStream    = 0x3a5_0000_0000
	corruptStream = 0xc0_0000_0000
)

// loss of the objective on batch for the current epoch. If withGrads is true, m.grads is set to the gradient
// of the loss. The random masks and corruptions depend only on the seed and the epoch.
func (m *Model) loss(batch *train.Batch, withGrads bool) (float64, error) {
	switch m.cfg.Objective {
	case ObjectiveMasked:
		return m.maskedLoss(batch, withGrads)
	case ObjectiveInfomax:
		return m.infomaxLoss(batch, withGrads), nil
	}
	pairs, labels := batch.Pairs()
	if len(pairs) == 0 {
		return 0, errors.New("gnn: no training pairs")
	}
	var st forwardState
	m.embed(&st, m.propagated)
	m.decode(&st, pairs)
	var dLogits []float64
	if withGrads {
		dLogits = make([]float64, len(pairs))
	}
	loss := losses.BinaryCrossentropyLogits(labels, st.logits, dLogits)
	if withGrads {
		m.backward(&st, pairs, dLogits)
	}
	return loss, nil
}

// maskEdges returns a random subset of edges, each one included with probability rate.
// It never returns an empty subset of a non-empty list.
func maskEdges(edges []graph.Edge, rate float64, rng *rand.Rand) []graph.Edge {
	var masked []graph.Edge
	for _, e := range edges {
		if rng.Float64() < rate {
			masked = append(masked, e)
		}
	}
	if len(masked) == 0 && len(edges) > 0 {
		masked = append(masked, edges[rng.IntN(len(edges))])
	}
	return masked
}

func (m *Model) maskedLoss(batch *train.Batch, withGrads bool) (float64, error) {
	if len(batch.Positives) == 0 {
		return 0, errors.New("gnn: no training positives to mask")
	}
	rng := rand.New(rand.NewPCG(m.seed, maskStream+uint64(m.epoch)))
	masked := maskEdges(batch.Positives, m.cfg.MaskRate, rng)
	visible := batch.Graph.Without(masked)
	klog.V(3).Infof("%s: epoch %d masked %d of %d edges", m, m.epoch, len(masked), len(batch.Positives))

	pairs := make([]graph.Edge, 0, len(masked)+len(batch.Negatives))
	pairs = append(pairs, masked...)
	pairs = append(pairs, batch.Negatives...)
	labels := make([]float64, len(pairs))
	for ii := range masked {
		labels[ii] = 1
	}

	var st forwardState
	m.embed(&st, Propagate(visible, batch.Features, m.cfg.Hops, m.cfg.Aggregation, m.pool))
	m.decode(&st, pairs)
	var dLogits []float64
	if withGrads {
		dLogits = make([]float64, len(pairs))
	}
	loss := losses.BinaryCrossentropyLogits(labels, st.logits, dLogits)

	var dDegrees []float64
	if m.cfg.DegreeAlpha > 0 {
		predicted := m.decodeDegrees(&st)
		target := make([]float64, len(predicted))
		for _, e := range masked {
			target[e.U]++
			target[e.V]++
		}
		if withGrads {
			dDegrees = make([]float64, len(predicted))
		}
		loss += m.cfg.DegreeAlpha * losses.MeanSquaredError(target, predicted, dDegrees)
		floats.Scale(m.cfg.DegreeAlpha, dDegrees)
	}
	if !withGrads {
		return loss, nil
	}
	clear(m.grads)
	dZ := m.decoderGradients(&st, pairs, dLogits)
	if dDegrees != nil {
		m.degreeGradients(&st, dDegrees, dZ)
	}
	m.embeddingGradients(&st, dZ)
	return loss, nil
}

// decodeDegrees predicts the degree of each node from its embedding: z_i·w + b.
func (m *Model) decodeDegrees(st *forwardState) []float64 {
	o := m.offsets
	w, b := m.params[o.aux:o.auxBias], m.params[o.auxBias]
	numNodes := st.z.RawMatrix().Rows
	degrees := make([]float64, numNodes)
	for node := range numNodes {
		degrees[node] = floats.Dot(st.z.RawRowView(node), w) + b
	}
	return degrees
}

// degreeGradients accumulates the gradients of the degree decoder into m.grads, and the gradient
// of the embeddings into dZ.
func (m *Model) degreeGradients(st *forwardState, dDegrees []float64, dZ *mat.Dense) {
	o := m.offsets
	w := m.params[o.aux:o.auxBias]
	gw := m.grads[o.aux:o.auxBias]
	for node, d := range dDegrees {
		floats.AddScaled(gw, d, st.z.RawRowView(node))
		m.grads[o.auxBias] += d
		floats.AddScaled(dZ.RawRowView(node), d, w)
	}
}

// corrupt returns the rows of x shuffled with a random permutation.
func corrupt(x *mat.Dense, rng *rand.Rand) *mat.Dense {
	numNodes, dim := x.Dims()
	shuffled := mat.NewDense(numNodes, dim, nil)
	for ii, jj := range rng.Perm(numNodes) {
		copy(shuffled.RawRowView(ii), x.RawRowView(jj))
	}
	return shuffled
}

func (m *Model) infomaxLoss(batch *train.Batch, withGrads bool) float64 {
	rng := rand.New(rand.NewPCG(m.seed, corruptStream+uint64(m.epoch)))
	corrupted := Propagate(batch.Graph, corrupt(batch.Features, rng), m.cfg.Hops, m.cfg.Aggregation, m.pool)
	var clean, fake forwardState
	m.embed(&clean, m.propagated)
	m.embed(&fake, corrupted)

	h := m.cfg.Hidden
	o := m.offsets
	numNodes := clean.z.RawMatrix().Rows
	wd := mat.NewDense(h, h, m.params[o.aux:o.auxBias])
	bd := m.params[o.auxBias]

	// Summary of the graph: s = sigmoid(mean_i z_i).
	summary := make([]float64, h)
	for node := range numNodes {
		floats.Add(summary, clean.z.RawRowView(node))
	}
	for k, v := range summary {
		summary[k] = losses.Sigmoid(v / float64(numNodes))
	}

	// Discriminator logits: z_i·(Wd s) + bd, clean nodes first.
	var ws mat.VecDense
	ws.MulVec(wd, mat.NewVecDense(h, summary))
	wsData := ws.RawVector().Data
	logits := make([]float64, 2*numNodes)
	labels := make([]float64, 2*numNodes)
	for node := range numNodes {
		logits[node] = floats.Dot(clean.z.RawRowView(node), wsData) + bd
		logits[numNodes+node] = floats.Dot(fake.z.RawRowView(node), wsData) + bd
		labels[node] = 1
	}
	var dLogits []float64
	if withGrads {
		dLogits = make([]float64, len(logits))
	}
	loss := losses.BinaryCrossentropyLogits(labels, logits, dLogits)
	if !withGrads {
		return loss
	}

	clear(m.grads)
	dClean := mat.NewDense(numNodes, h, nil)
	dFake := mat.NewDense(numNodes, h, nil)
	// r = sum_i dLogit_i * z_i, over clean and corrupted nodes.
	r := make([]float64, h)
	for node := range numNodes {
		dr, df := dLogits[node], dLogits[numNodes+node]
		floats.AddScaled(r, dr, clean.z.RawRowView(node))
		floats.AddScaled(r, df, fake.z.RawRowView(node))
		floats.ScaleTo(dClean.RawRowView(node), dr, wsData)
		floats.ScaleTo(dFake.RawRowView(node), df, wsData)
		m.grads[o.auxBias] += dr + df
	}
	gWd := m.grads[o.aux:o.auxBias]
	for k := range h {
		floats.AddScaled(gWd[k*h:(k+1)*h], r[k], summary)
	}

	// Gradient through the summary: ds = Wd^T r, then the sigmoid and the mean.
	var ds mat.VecDense
	ds.MulVec(wd.T(), mat.NewVecDense(h, r))
	dMean := make([]float64, h)
	for k, s := range summary {
		dMean[k] = ds.AtVec(k) * s * (1 - s) / float64(numNodes)
	}
	for node := range numNodes {
		floats.Add(dClean.RawRowView(node), dMean)
	}
	m.embeddingGradients(&clean, dClean)
	m.embeddingGradients(&fake, dFake)
	return loss
}
