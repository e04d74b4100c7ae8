// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package edgesplit partitions the edges of a graph into train, validation and test positives,
// and samples matching negative pairs (non-edges) for each of them.
//
// Example:
//
//	cfg := edgesplit.DefaultConfig()
//	cfg.DatasetName, cfg.Seed = "mirna-disease", 42
//	split, err := edgesplit.New(g, cfg)
//	if err != nil { ... }
//	pairs, labels := split.Pairs(edgesplit.Test)
//
// Splitting is deterministic for a given graph and Config.Seed.
package edgesplit

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strings"

	humanize "github.com/dustin/go-humanize"
	"github.com/gomlx/linkpred/ml/data/graph"
	"github.com/gomlx/linkpred/pkg/support/sets"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Kind of split: Train, Validation or Test.
type Kind int

const (
	Train Kind = iota
	Validation
	Test

	// NoKind is used when no specific split applies.
	NoKind Kind = -1
)

// Kinds in the order their negatives are sampled.
var Kinds = []Kind{Test, Validation, Train}

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case Train:
		return "train"
	case Validation:
		return "validation"
	case Test:
		return "test"
	case NoKind:
		return "none"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Sampling method for negative pairs.
type Sampling string

const (
	// Rejection draws uniform random pairs and rejects edges and pairs already sampled.
	// It is bounded by Config.MaxRetries.
	Rejection Sampling = "rejection"

	// Exhaustive enumerates all non-edges, shuffles them and takes as many as needed.
	// It takes O(N^2) time and memory in the number of nodes, but never fails on dense graphs
	// as long as there are enough non-edges.
	Exhaustive Sampling = "exhaustive"
)

// Config of an edge split.
type Config struct {
	// DatasetName is used in errors and logs only.
	DatasetName string

	// TestFrac and ValFrac are the fractions of edges held out for test and validation.
	// Each must be in [0, 1), and their sum < 1. Counts are rounded down.
	TestFrac, ValFrac float64

	// Seed for the shuffling of the edges and the sampling of negatives.
	Seed uint64

	// Sampling method of the negatives. Defaults to Rejection.
	Sampling Sampling

	// MaxRetries bounds the total number of random pairs drawn by Rejection sampling.
	// If 0, it defaults to max(10_000, 100 * number of negatives needed).
	MaxRetries int

	// StrictTrainNegatives makes a shortage of train negatives an error.
	// By default, validation and test negatives always match their positives, and train negatives are
	// capped to the non-edges left after sampling those (with a warning).
	StrictTrainNegatives bool
}

// DefaultConfig returns a Config with 10% test edges, 5% validation edges and rejection sampling.
func DefaultConfig() Config {
	return Config{
		TestFrac: 0.1,
		ValFrac:  0.05,
		Sampling: Rejection,
	}
}

// Validate returns a *ConfigurationError if the configuration is invalid.
func (c Config) Validate() error {
	newErr := func(format string, args ...any) error {
		return &ConfigurationError{Dataset: c.DatasetName, TestFrac: c.TestFrac, ValFrac: c.ValFrac,
			Reason: fmt.Sprintf(format, args...)}
	}
	switch {
	case math.IsNaN(c.TestFrac) || c.TestFrac < 0 || c.TestFrac >= 1:
		return newErr("test_frac must be in [0, 1)")
	case math.IsNaN(c.ValFrac) || c.ValFrac < 0 || c.ValFrac >= 1:
		return newErr("val_frac must be in [0, 1)")
	case c.TestFrac+c.ValFrac >= 1:
		return newErr("test_frac + val_frac must be < 1")
	case c.MaxRetries < 0:
		return newErr("max_retries must be >= 0, got %d", c.MaxRetries)
	}
	switch c.Sampling {
	case "", Rejection, Exhaustive:
	default:
		return newErr("unknown sampling method %q, valid values are %q", c.Sampling, []Sampling{Rejection, Exhaustive})
	}
	return nil
}

// Split holds the positive and negative edges of each split kind.
// It is never modified after creation.
type Split struct {
	// Full is the original graph.
	Full *graph.Graph

	// Train is the residual graph: Full without the validation and test positives.
	// Models should only see this graph.
	Train *graph.Graph

	// Positives and negatives of each kind. Edges are in canonical form.
	TrainPos, TrainNeg []graph.Edge
	ValPos, ValNeg     []graph.Edge
	TestPos, TestNeg   []graph.Edge

	// IsolatedNodes counts the nodes that have edges in Full but none in Train.
	IsolatedNodes int

	// Components is the number of connected components in Train (isolated nodes included).
	Components int
}

// New splits the edges of g according to cfg.
//
// The edges are shuffled and the first floor(TestFrac*|E|) become test positives, the next
// floor(ValFrac*|E|) validation positives and the remainder train positives. Negatives are then
// sampled for test, validation and train, in this order, never repeating a pair across splits.
//
// It returns a *ConfigurationError for invalid configurations and an *InsufficientNegativesError
// if not enough negative pairs are found.
func New(g *graph.Graph, cfg Config) (*Split, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Sampling == "" {
		cfg.Sampling = Rejection
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, splitStream))

	edges := slices.Clone(g.Edges())
	rng.Shuffle(len(edges), func(i, j int) { edges[i], edges[j] = edges[j], edges[i] })
	numTest := int(math.Floor(cfg.TestFrac * float64(len(edges))))
	numVal := int(math.Floor(cfg.ValFrac * float64(len(edges))))
	s := &Split{
		Full:     g,
		TestPos:  edges[:numTest:numTest],
		ValPos:   edges[numTest : numTest+numVal : numTest+numVal],
		TrainPos: edges[numTest+numVal:],
	}

	counts := map[Kind]int{Test: len(s.TestPos), Validation: len(s.ValPos), Train: len(s.TrainPos)}
	available := g.NumNonEdges()
	needed := counts[Test] + counts[Validation]
	if cfg.StrictTrainNegatives {
		needed += counts[Train]
	}
	if int64(needed) > available {
		return nil, &InsufficientNegativesError{Dataset: cfg.DatasetName, TestFrac: cfg.TestFrac, ValFrac: cfg.ValFrac,
			Kind: NoKind, Needed: needed, Available: available}
	}
	if !cfg.StrictTrainNegatives {
		// Train negatives take whatever is left.
		counts[Train] = int(min(int64(counts[Train]), available-int64(needed)))
		needed += counts[Train]
	}
	if counts[Train] < len(s.TrainPos) {
		klog.Warningf("dataset %q: only %d non-edges left for %d train positives, using %d train negatives",
			cfg.DatasetName, counts[Train], len(s.TrainPos), counts[Train])
	}

	var negatives map[Kind][]graph.Edge
	var err error
	switch cfg.Sampling {
	case Exhaustive:
		negatives = sampleExhaustive(g, rng, counts)
	default:
		maxRetries := cfg.MaxRetries
		if maxRetries == 0 {
			maxRetries = max(10_000, 100*needed)
		}
		negatives, err = sampleRejection(g, rng, counts, maxRetries)
		if err != nil {
			var insufficientErr *InsufficientNegativesError
			if errors.As(err, &insufficientErr) {
				insufficientErr.Dataset = cfg.DatasetName
				insufficientErr.TestFrac, insufficientErr.ValFrac = cfg.TestFrac, cfg.ValFrac
			}
			return nil, err
		}
	}
	s.TestNeg, s.ValNeg, s.TrainNeg = negatives[Test], negatives[Validation], negatives[Train]

	s.Train = g.Without(s.TestPos, s.ValPos)
	s.IsolatedNodes = s.Train.IsolatedRelativeTo(g)
	s.Components = s.Train.NumComponents()
	if s.IsolatedNodes > 0 {
		klog.Warningf("dataset %q: %d nodes lost all their edges in the training graph (%d connected components)",
			cfg.DatasetName, s.IsolatedNodes, s.Components)
	}
	klog.V(1).Infof("dataset %q: %s", cfg.DatasetName, s)
	return s, nil
}

// splitStream separates the random stream of the splitter from other uses of the same seed.
const splitStream = 0x5b1_17ed

// sampleRejection draws uniform pairs u != v, rejecting edges of g and pairs already sampled.
func sampleRejection(g *graph.Graph, rng *rand.Rand, counts map[Kind]int, maxRetries int) (map[Kind][]graph.Edge, error) {
	numNodes := g.NumNodes()
	var needed int
	for _, c := range counts {
		needed += c
	}
	sampled := sets.Make[graph.Edge](needed)
	negatives := make(map[Kind][]graph.Edge, len(Kinds))
	draws := 0
	for _, kind := range Kinds {
		list := make([]graph.Edge, 0, counts[kind])
		for len(list) < counts[kind] {
			if draws >= maxRetries {
				return nil, &InsufficientNegativesError{Kind: kind, Needed: needed, Sampled: len(sampled),
					Available: g.NumNonEdges(), Draws: draws}
			}
			draws++
			u, v := int32(rng.IntN(numNodes)), int32(rng.IntN(numNodes))
			if u == v || g.HasEdge(u, v) {
				continue
			}
			e := graph.Edge{U: u, V: v}.Canonical()
			if !sampled.InsertNew(e) {
				continue
			}
			list = append(list, e)
		}
		negatives[kind] = list
	}
	klog.V(2).Infof("sampled %d negatives in %d draws", needed, draws)
	return negatives, nil
}

// sampleExhaustive enumerates all non-edges, shuffles them and slices them per kind.
func sampleExhaustive(g *graph.Graph, rng *rand.Rand, counts map[Kind]int) map[Kind][]graph.Edge {
	numNodes := g.NumNodes()
	nonEdges := make([]graph.Edge, 0, g.NumNonEdges())
	for u := range numNodes {
		for v := u + 1; v < numNodes; v++ {
			if !g.HasEdge(int32(u), int32(v)) {
				nonEdges = append(nonEdges, graph.E(u, v))
			}
		}
	}
	rng.Shuffle(len(nonEdges), func(i, j int) { nonEdges[i], nonEdges[j] = nonEdges[j], nonEdges[i] })
	negatives := make(map[Kind][]graph.Edge, len(Kinds))
	pos := 0
	for _, kind := range Kinds {
		n := counts[kind]
		negatives[kind] = nonEdges[pos : pos+n : pos+n]
		pos += n
	}
	return negatives
}

// Positives returns the positive edges of the given kind.
func (s *Split) Positives(kind Kind) []graph.Edge {
	switch kind {
	case Train:
		return s.TrainPos
	case Validation:
		return s.ValPos
	case Test:
		return s.TestPos
	}
	return nil
}

// Negatives returns the negative pairs of the given kind.
func (s *Split) Negatives(kind Kind) []graph.Edge {
	switch kind {
	case Train:
		return s.TrainNeg
	case Validation:
		return s.ValNeg
	case Test:
		return s.TestNeg
	}
	return nil
}

// Pairs returns the positives followed by the negatives of the given kind, and the matching labels
// (1 for positives, 0 for negatives), ready to be scored and evaluated.
func (s *Split) Pairs(kind Kind) (pairs []graph.Edge, labels []float64) {
	pos, neg := s.Positives(kind), s.Negatives(kind)
	pairs = make([]graph.Edge, 0, len(pos)+len(neg))
	pairs = append(pairs, pos...)
	pairs = append(pairs, neg...)
	labels = make([]float64, len(pairs))
	for ii := range pos {
		labels[ii] = 1
	}
	return
}

// String implements fmt.Stringer.
func (s *Split) String() string {
	parts := make([]string, 0, len(Kinds))
	for _, kind := range []Kind{Train, Validation, Test} {
		parts = append(parts, fmt.Sprintf("%s: %s+/%s-", kind,
			humanize.Comma(int64(len(s.Positives(kind)))), humanize.Comma(int64(len(s.Negatives(kind))))))
	}
	return fmt.Sprintf("Split(%s; training graph with %d components, %d isolated nodes)",
		strings.Join(parts, ", "), s.Components, s.IsolatedNodes)
}
