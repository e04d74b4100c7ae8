// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package gnn implements graph neural network link predictors trained with full-batch gradient descent.
//
// The encoder propagates the node features over the training graph for a number of hops
// (see Propagate), and projects them with a trainable dense layer into node embeddings.
// Two decoders score a pair (u, v) from the embeddings z_u and z_v:
//
//   - DecoderMLP: a hidden layer over the Hadamard product z_u*z_v, followed by a linear output
//     (GraphSAGE's LPDecoder).
//   - DecoderDot: the dot product z_u·z_v. Predictions use the L2-normalized embeddings, as DGI does.
//
// The Objective selects what is trained: the decoder on the training pairs (ObjectiveSupervised),
// the decoder on randomly masked edges (ObjectiveMasked, as MaskGAE) or the encoder alone against
// corrupted features (ObjectiveInfomax, as DGI). See objectives.go.
//
// Gradients are written out explicitly, and parameters are kept in one flat vector updated by
// an optimizers.Interface.
package gnn

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/linkpred/internal/workerspool"
	"github.com/gomlx/linkpred/ml/data/graph"
	"github.com/gomlx/linkpred/ml/params"
	"github.com/gomlx/linkpred/ml/train"
	"github.com/gomlx/linkpred/ml/train/losses"
	"github.com/gomlx/linkpred/ml/train/optimizers"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// Decoder of pairs of node embeddings.
type Decoder string

const (
	DecoderMLP Decoder = "mlp"
	DecoderDot Decoder = "dot"
)

// ParseDecoder converts a name to a Decoder.
func ParseDecoder(name string) (Decoder, error) {
	switch Decoder(name) {
	case DecoderMLP, DecoderDot:
		return Decoder(name), nil
	}
	return "", errors.Errorf("unknown decoder %q, valid values are %q and %q", name, DecoderMLP, DecoderDot)
}

var (
	// ParamNumLayers is the number of propagation hops of the encoder.
	ParamNumLayers = "gnn_num_layers"

	// ParamHiddenDim is the dimension of the node embeddings and of the decoder hidden layer.
	ParamHiddenDim = "gnn_hidden_dim"

	// ParamAggregation is the neighbourhood aggregation: "gcn" or "mean".
	ParamAggregation = "gnn_aggregation"

	// ParamDecoder is the pair decoder: "mlp" or "dot".
	ParamDecoder = "gnn_decoder"

	// ParamObjective is the training objective: "supervised", "masked" or "infomax".
	ParamObjective = "gnn_objective"

	// ParamMaskRate is the probability of masking each training positive, with the "masked" objective.
	ParamMaskRate = "gnn_mask_rate"

	// ParamDegreeAlpha is the weight of the degree regression loss, with the "masked" objective.
	// 0 disables the degree decoder.
	ParamDegreeAlpha = "gnn_degree_alpha"

	// ParamParallelism is the number of goroutines used to compute rows. 0 uses runtime.NumCPU().
	ParamParallelism = "parallelism"
)

// Defaults returns the default hyperparameters of a GNN with the given aggregation and decoder.
func Defaults(aggregation Aggregation, decoder Decoder) params.Params {
	return params.New().
		Set(ParamNumLayers, 2).
		Set(ParamHiddenDim, 64).
		Set(ParamAggregation, string(aggregation)).
		Set(ParamDecoder, string(decoder)).
		Set(ParamObjective, string(ObjectiveSupervised)).
		Set(ParamMaskRate, 0.7).
		Set(ParamDegreeAlpha, 0.007).
		Set(ParamParallelism, 0).
		Set(optimizers.ParamOptimizer, "adam").
		Set(optimizers.ParamLearningRate, 0.01).
		Set(optimizers.ParamWeightDecay, 5e-4).
		Set(optimizers.ParamClipGradNorm, 1.0).
		Set(optimizers.ParamCosineScheduleEpochs, 0)
}

// Config of the GNN architecture.
type Config struct {
	Hops, Hidden int
	Aggregation  Aggregation
	Decoder      Decoder
	Objective    Objective
	Parallelism  int

	// MaskRate and DegreeAlpha are only used by ObjectiveMasked.
	MaskRate, DegreeAlpha float64
}

// ConfigFromParams reads the architecture hyperparameters.
func ConfigFromParams(p params.Params) (cfg Config, err error) {
	err = exceptions.TryCatch[error](func() {
		cfg.Hops = params.GetNumberOr(p, ParamNumLayers, 2, 0, 16)
		cfg.Hidden = params.GetNumberOr(p, ParamHiddenDim, 64, 1, 1<<14)
		cfg.Parallelism = params.GetNumberOr(p, ParamParallelism, 0, 0, 1<<10)
		cfg.MaskRate = params.GetNumberOr(p, ParamMaskRate, 0.7, 0, 1)
		cfg.DegreeAlpha = params.GetNumberOr(p, ParamDegreeAlpha, 0.0, 0, math.MaxFloat64)
	})
	if err != nil {
		return
	}
	if cfg.Aggregation, err = ParseAggregation(params.GetParamOr(p, ParamAggregation, string(AggregationGCN))); err != nil {
		return
	}
	if cfg.Decoder, err = ParseDecoder(params.GetParamOr(p, ParamDecoder, string(DecoderMLP))); err != nil {
		return
	}
	if cfg.Objective, err = ParseObjective(params.GetParamOr(p, ParamObjective, string(ObjectiveSupervised))); err != nil {
		return
	}
	switch {
	case cfg.Objective == ObjectiveMasked && cfg.MaskRate == 0:
		err = errors.Errorf("hyperparameter %q must be > 0 for the %q objective", ParamMaskRate, cfg.Objective)
	case cfg.Objective == ObjectiveInfomax && cfg.Decoder != DecoderDot:
		err = errors.Errorf("the %q objective doesn't train the %q decoder, use %q", cfg.Objective, cfg.Decoder, DecoderDot)
	}
	return
}

// Model is a GNN link predictor. It implements train.Model.
type Model struct {
	cfg      Config
	pool     *workerspool.Pool
	opt      optimizers.Interface
	schedule *optimizers.CosineSchedule
	seed     uint64
	epoch    int

	// dim is the node features dimension, known on the first batch.
	dim           int
	params, grads []float64
	offsets       layout
	graph         *graph.Graph
	features      *mat.Dense
	propagated    *mat.Dense
}

var _ train.Model = (*Model)(nil)

// New creates a GNN Model configured by p. See Defaults for the hyperparameters used.
func New(p params.Params) (*Model, error) {
	cfg, err := ConfigFromParams(p)
	if err != nil {
		return nil, err
	}
	m := &Model{cfg: cfg}
	if cfg.Parallelism == 0 {
		m.pool = workerspool.New()
	} else {
		m.pool = workerspool.NewWithParallelism(cfg.Parallelism)
	}
	err = exceptions.TryCatch[error](func() {
		m.opt = optimizers.FromParams(p)
		m.schedule = optimizers.CosineScheduleFromParams(p, m.opt.LearningRate())
	})
	if err != nil {
		return nil, errors.WithMessage(err, "gnn: invalid optimizer configuration")
	}
	return m, nil
}

// String implements fmt.Stringer.
func (m *Model) String() string {
	return fmt.Sprintf("gnn(%s, hops=%d, hidden=%d, decoder=%s, objective=%s)",
		m.cfg.Aggregation, m.cfg.Hops, m.cfg.Hidden, m.cfg.Decoder, m.cfg.Objective)
}

// layout of the parameters in the flat vector: offsets of each tensor.
type layout struct {
	w1, b1, w2, b2, w3, b3 int

	// aux holds the weights and then the bias of the objective's own head: the bilinear
	// discriminator of ObjectiveInfomax or the degree decoder of ObjectiveMasked.
	aux, auxBias, size int
}

func newLayout(dim, hidden int, decoder Decoder, objective Objective) layout {
	var l layout
	l.w1 = 0
	l.b1 = l.w1 + dim*hidden
	l.w2 = l.b1 + hidden
	if decoder == DecoderDot {
		l.b2, l.w3, l.b3, l.aux = l.w2, l.w2, l.w2, l.w2
	} else {
		l.b2 = l.w2 + hidden*hidden
		l.w3 = l.b2 + hidden
		l.b3 = l.w3 + hidden
		l.aux = l.b3 + 1
	}
	switch objective {
	case ObjectiveInfomax:
		l.auxBias = l.aux + hidden*hidden
		l.size = l.auxBias + 1
	case ObjectiveMasked:
		l.auxBias = l.aux + hidden
		l.size = l.auxBias + 1
	default:
		l.auxBias, l.size = l.aux, l.aux
	}
	return l
}

// initStream is the PCG stream for parameters initialization.
const initStream = 0x91e_1a17

// Reset implements train.Model. Parameters are (re-)initialized from the seed on the next TrainEpoch.
func (m *Model) Reset(seed uint64) error {
	m.seed = seed
	m.epoch = 0
	m.params, m.grads = nil, nil
	m.opt.Reset()
	return nil
}

// initialize parameters with Glorot uniform weights and zero biases.
func (m *Model) initialize(dim int) {
	m.dim = dim
	h := m.cfg.Hidden
	m.offsets = newLayout(dim, h, m.cfg.Decoder, m.cfg.Objective)
	m.params = make([]float64, m.offsets.size)
	m.grads = make([]float64, m.offsets.size)
	rng := rand.New(rand.NewPCG(m.seed, initStream))
	glorot := func(data []float64, fanIn, fanOut int) {
		limit := math.Sqrt(6 / float64(fanIn+fanOut))
		for ii := range data {
			data[ii] = (2*rng.Float64() - 1) * limit
		}
	}
	o := m.offsets
	glorot(m.params[o.w1:o.b1], dim, h)
	if m.cfg.Decoder == DecoderMLP {
		glorot(m.params[o.w2:o.b2], h, h)
		glorot(m.params[o.w3:o.b3], h, 1)
	}
	switch m.cfg.Objective {
	case ObjectiveInfomax:
		glorot(m.params[o.aux:o.auxBias], h, h)
	case ObjectiveMasked:
		glorot(m.params[o.aux:o.auxBias], h, 1)
	}
}

// w1 and w2 are views of the weight matrices in m.params.
func (m *Model) w1() *mat.Dense {
	return mat.NewDense(m.dim, m.cfg.Hidden, m.params[m.offsets.w1:m.offsets.b1])
}

func (m *Model) w2() *mat.Dense {
	return mat.NewDense(m.cfg.Hidden, m.cfg.Hidden, m.params[m.offsets.w2:m.offsets.b2])
}

// setBatch caches the propagated features of the batch.
func (m *Model) setBatch(batch *train.Batch) error {
	if batch.Features == nil {
		return errors.New("gnn: node features are required")
	}
	if batch.Graph == m.graph && batch.Features == m.features {
		return nil
	}
	numNodes, dim := batch.Features.Dims()
	if numNodes != batch.Graph.NumNodes() {
		return errors.Errorf("gnn: features have %d rows, but the graph has %d nodes", numNodes, batch.Graph.NumNodes())
	}
	if m.params != nil && dim != m.dim {
		return errors.Errorf("gnn: features dimension changed from %d to %d", m.dim, dim)
	}
	m.graph, m.features = batch.Graph, batch.Features
	m.propagated = Propagate(batch.Graph, batch.Features, m.cfg.Hops, m.cfg.Aggregation, m.pool)
	klog.V(2).Infof("%s: propagated %d x %d features", m, numNodes, dim)
	return nil
}

// forwardState holds the intermediate values needed by the backward pass.
type forwardState struct {
	x       *mat.Dense // Propagated node features.
	zPre, z *mat.Dense // Node embeddings before and after the activation.
	e       *mat.Dense // Hadamard products, one row per pair.
	a       *mat.Dense // Decoder hidden layer pre-activation, one row per pair (mlp only).
	logits  []float64
}

func relu(x float64) float64 { return max(x, 0) }

// embed computes the node embeddings from the propagated features x.
func (m *Model) embed(st *forwardState, x *mat.Dense) {
	numNodes := x.RawMatrix().Rows
	h := m.cfg.Hidden
	b1 := m.params[m.offsets.b1:m.offsets.w2]
	st.x = x
	st.zPre = mat.NewDense(numNodes, h, nil)
	st.zPre.Mul(x, m.w1())
	st.z = st.zPre
	if m.cfg.Decoder == DecoderMLP {
		st.z = mat.NewDense(numNodes, h, nil)
	}
	m.pool.ParallelFor(numNodes, func(start, end int) {
		for node := start; node < end; node++ {
			row := st.zPre.RawRowView(node)
			floats.Add(row, b1)
			if m.cfg.Decoder == DecoderMLP {
				zRow := st.z.RawRowView(node)
				for k, v := range row {
					zRow[k] = relu(v)
				}
			}
		}
	})
}

// decode computes the logits of the pairs from the node embeddings in st.
func (m *Model) decode(st *forwardState, pairs []graph.Edge) {
	h := m.cfg.Hidden
	numPairs := len(pairs)
	st.e = mat.NewDense(numPairs, h, nil)
	st.logits = make([]float64, numPairs)
	m.pool.ParallelFor(numPairs, func(start, end int) {
		for ii := start; ii < end; ii++ {
			e := st.e.RawRowView(ii)
			floats.MulTo(e, st.z.RawRowView(int(pairs[ii].U)), st.z.RawRowView(int(pairs[ii].V)))
			st.logits[ii] = floats.Sum(e)
		}
	})
	if m.cfg.Decoder == DecoderDot {
		return
	}
	o := m.offsets
	b2, w3, b3 := m.params[o.b2:o.w3], m.params[o.w3:o.b3], m.params[o.b3]
	st.a = mat.NewDense(numPairs, h, nil)
	st.a.Mul(st.e, m.w2())
	m.pool.ParallelFor(numPairs, func(start, end int) {
		for ii := start; ii < end; ii++ {
			a := st.a.RawRowView(ii)
			floats.Add(a, b2)
			logit := b3
			for k, v := range a {
				logit += relu(v) * w3[k]
			}
			st.logits[ii] = logit
		}
	})
}

// backward computes the gradient of the loss given the gradient of the logits, into m.grads.
func (m *Model) backward(st *forwardState, pairs []graph.Edge, dLogits []float64) {
	clear(m.grads)
	dZ := m.decoderGradients(st, pairs, dLogits)
	m.embeddingGradients(st, dZ)
}

// decoderGradients accumulates the gradients of the decoder parameters into m.grads, and
// returns the gradient of the node embeddings.
func (m *Model) decoderGradients(st *forwardState, pairs []graph.Edge, dLogits []float64) *mat.Dense {
	h := m.cfg.Hidden
	o := m.offsets
	numNodes := st.z.RawMatrix().Rows
	numPairs := len(pairs)

	// Gradient of the Hadamard products.
	de := mat.NewDense(max(numPairs, 1), h, nil)
	if m.cfg.Decoder == DecoderDot {
		for ii, d := range dLogits {
			row := de.RawRowView(ii)
			for k := range row {
				row[k] = d
			}
		}
	} else if numPairs > 0 {
		w3 := m.params[o.w3:o.b3]
		gb2, gw3 := m.grads[o.b2:o.w3], m.grads[o.w3:o.b3]
		dA := mat.NewDense(numPairs, h, nil)
		for ii, d := range dLogits {
			a, da := st.a.RawRowView(ii), dA.RawRowView(ii)
			for k, v := range a {
				if v > 0 {
					gw3[k] += d * v
					da[k] = d * w3[k]
				}
			}
			m.grads[o.b3] += d
			floats.Add(gb2, da)
		}
		var gW2 mat.Dense
		gW2.Mul(st.e.T(), dA)
		floats.Add(m.grads[o.w2:o.b2], gW2.RawMatrix().Data)
		de.Mul(dA, m.w2().T())
	}

	dZ := mat.NewDense(numNodes, h, nil)
	for ii, pair := range pairs {
		u, v := int(pair.U), int(pair.V)
		deRow := de.RawRowView(ii)
		dzu, dzv := dZ.RawRowView(u), dZ.RawRowView(v)
		zu, zv := st.z.RawRowView(u), st.z.RawRowView(v)
		for k, d := range deRow {
			dzu[k] += d * zv[k]
			dzv[k] += d * zu[k]
		}
	}
	return dZ
}

// embeddingGradients accumulates into m.grads the gradients of the encoder parameters, given the
// gradient dZ of the node embeddings of st. dZ is modified.
func (m *Model) embeddingGradients(st *forwardState, dZ *mat.Dense) {
	o := m.offsets
	numNodes := dZ.RawMatrix().Rows
	if m.cfg.Decoder == DecoderMLP {
		m.pool.ParallelFor(numNodes, func(start, end int) {
			for node := start; node < end; node++ {
				pre, dz := st.zPre.RawRowView(node), dZ.RawRowView(node)
				for k, v := range pre {
					if v <= 0 {
						dz[k] = 0
					}
				}
			}
		})
	}

	gb1 := m.grads[o.b1:o.w2]
	for node := range numNodes {
		floats.Add(gb1, dZ.RawRowView(node))
	}
	var gW1 mat.Dense
	gW1.Mul(st.x.T(), dZ)
	floats.Add(m.grads[o.w1:o.b1], gW1.RawMatrix().Data)
}

// TrainEpoch implements train.Model: one full-batch gradient step of the objective.
func (m *Model) TrainEpoch(batch *train.Batch) (loss float64, err error) {
	if err = m.setBatch(batch); err != nil {
		return 0, err
	}
	if m.params == nil {
		_, dim := batch.Features.Dims()
		m.initialize(dim)
	}
	m.schedule.Apply(m.opt, m.epoch)
	loss, err = m.loss(batch, true)
	if err != nil {
		return 0, err
	}
	if !math.IsNaN(loss) && !math.IsInf(loss, 0) {
		m.opt.Step(m.params, m.grads)
	}
	m.epoch++
	return loss, nil
}

// Predict implements train.Model. Scores are probabilities in [0, 1].
func (m *Model) Predict(pairs []graph.Edge) ([]float64, error) {
	if m.params == nil || m.propagated == nil {
		return nil, errors.New("gnn: Predict called before training")
	}
	if len(pairs) == 0 {
		return []float64{}, nil
	}
	numNodes := m.propagated.RawMatrix().Rows
	for _, pair := range pairs {
		if int(pair.U) >= numNodes || int(pair.V) >= numNodes || pair.U < 0 || pair.V < 0 {
			return nil, errors.Errorf("gnn: pair %s out of range for %d nodes", pair, numNodes)
		}
	}
	var st forwardState
	m.embed(&st, m.propagated)
	if m.cfg.Decoder == DecoderDot {
		// Cosine similarity of the embeddings.
		m.pool.ParallelFor(numNodes, func(start, end int) {
			for node := start; node < end; node++ {
				row := st.z.RawRowView(node)
				if norm := floats.Norm(row, 2); norm > 0 {
					floats.Scale(1/norm, row)
				}
			}
		})
	}
	m.decode(&st, pairs)
	scores := make([]float64, len(pairs))
	for ii, logit := range st.logits {
		scores[ii] = losses.Sigmoid(logit)
	}
	return scores, nil
}

// modelState is the serialized form of the model.
type modelState struct {
	Dim, Hidden        int
	Decoder, Objective string
	Epoch              int
	Params      []float64
}

// SaveState implements train.Model.
func (m *Model) SaveState() ([]byte, error) {
	if m.params == nil {
		// Not initialized yet: an empty state.
		return nil, nil
	}
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(&modelState{
		Dim: m.dim, Hidden: m.cfg.Hidden, Decoder: string(m.cfg.Decoder), Objective: string(m.cfg.Objective),
		Epoch: m.epoch, Params: m.params})
	if err != nil {
		return nil, errors.Wrap(err, "gnn: failed to encode state")
	}
	return buf.Bytes(), nil
}

// LoadState implements train.Model. An empty state is the one of a model not trained yet: parameters are
// re-initialized from the seed.
func (m *Model) LoadState(state []byte) error {
	if len(state) == 0 {
		m.params, m.grads = nil, nil
		if m.dim > 0 {
			m.initialize(m.dim)
		}
		m.epoch = 0
		return nil
	}
	var s modelState
	if err := gob.NewDecoder(bytes.NewReader(state)).Decode(&s); err != nil {
		return errors.Wrap(err, "gnn: failed to decode state")
	}
	if s.Hidden != m.cfg.Hidden || Decoder(s.Decoder) != m.cfg.Decoder || Objective(s.Objective) != m.cfg.Objective {
		return errors.Errorf("gnn: state of a model with hidden=%d, decoder=%s, objective=%s doesn't match %s",
			s.Hidden, s.Decoder, s.Objective, m)
	}
	l := newLayout(s.Dim, s.Hidden, m.cfg.Decoder, m.cfg.Objective)
	if len(s.Params) != l.size {
		return errors.Errorf("gnn: state has %d parameters, expected %d", len(s.Params), l.size)
	}
	m.dim, m.offsets, m.epoch = s.Dim, l, s.Epoch
	m.params = s.Params
	m.grads = make([]float64, l.size)
	return nil
}
