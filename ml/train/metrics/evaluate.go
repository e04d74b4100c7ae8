// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"fmt"
	"math"
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// F1Threshold is the fixed cut-off used to binarize scores for F1 and the other classification metrics:
// a pair is predicted to be an edge if its score (a probability) is >= F1Threshold.
// It is never tuned on validation data.
const F1Threshold = 0.5

// Result of an evaluation. Metrics are NaN if they are undefined.
type Result struct {
	AUC, AP, F1 float64

	Precision, Recall, Accuracy, Specificity, MCC float64

	// Positives and Negatives are the number of labels of each class.
	Positives, Negatives int

	// Confusion matrix at F1Threshold.
	TP, FP, TN, FN int
}

// String implements fmt.Stringer.
func (r Result) String() string {
	return fmt.Sprintf("AUC=%.4f AP=%.4f F1=%.4f (%d+/%d-)", r.AUC, r.AP, r.F1, r.Positives, r.Negatives)
}

// DegenerateLabelsError is returned by Evaluate when the labels have only one class, in which
// case AUC and AP are undefined.
type DegenerateLabelsError struct {
	Positives, Negatives int
}

// Error implements error.
func (e *DegenerateLabelsError) Error() string {
	return fmt.Sprintf("degenerate labels: %d positives and %d negatives, both classes are required", e.Positives, e.Negatives)
}

// NaNResult returns a Result with all metrics set to NaN.
func NaNResult() Result {
	nan := math.NaN()
	return Result{AUC: nan, AP: nan, F1: nan, Precision: nan, Recall: nan, Accuracy: nan, Specificity: nan, MCC: nan}
}

// Evaluate computes the metrics of scores against labels (1 for edges, 0 for non-edges).
// Scores are the probabilities, in [0, 1], of each pair being an edge: any other value is an error.
// It's a pure function of its inputs.
//
//   - AUC is the probability that a random positive scores higher than a random negative, with ties
//     counting 1/2 (mid-rank Mann–Whitney statistic).
//   - AP is the area under the precision-recall curve as a step function over the distinct scores:
//     sum_k (R_k - R_{k-1}) * P_k.
//   - F1, Precision, Recall, Accuracy, Specificity and MCC use the F1Threshold on the scores.
//
// Empty inputs return a Result with all metrics NaN (and no error). If only one class is present, it
// returns a *DegenerateLabelsError.
func Evaluate(scores, labels []float64) (Result, error) {
	if len(scores) != len(labels) {
		return NaNResult(), errors.Errorf("Evaluate: %d scores but %d labels", len(scores), len(labels))
	}
	if len(scores) == 0 {
		return NaNResult(), nil
	}
	positive := make([]bool, len(labels))
	var numPos, numNeg int
	for ii, label := range labels {
		switch label {
		case 1:
			positive[ii] = true
			numPos++
		case 0:
			numNeg++
		default:
			return NaNResult(), errors.Errorf("Evaluate: label #%d is %g, labels must be 0 or 1", ii, label)
		}
		if score := scores[ii]; math.IsNaN(score) || score < 0 || score > 1 {
			return NaNResult(), errors.Errorf("Evaluate: score #%d is %g, scores must be probabilities in [0, 1]", ii, score)
		}
	}
	if numPos == 0 || numNeg == 0 {
		return NaNResult(), &DegenerateLabelsError{Positives: numPos, Negatives: numNeg}
	}

	// Ascending order of scores, with their original indices.
	sorted := slices.Clone(scores)
	order := make([]int, len(scores))
	floats.Argsort(sorted, order)

	r := Result{Positives: numPos, Negatives: numNeg}
	r.AUC = aucFromSorted(sorted, order, positive, numPos, numNeg)
	r.AP = apFromSorted(sorted, order, positive, numPos)
	r.classification(scores, positive)
	return r, nil
}

// aucFromSorted computes the Mann–Whitney U statistic normalized to [0, 1], assigning tied
// scores the mean of their ranks.
func aucFromSorted(sorted []float64, order []int, positive []bool, numPos, numNeg int) float64 {
	var rankSumPos float64
	for start := 0; start < len(sorted); {
		end := start + 1
		for end < len(sorted) && sorted[end] == sorted[start] {
			end++
		}
		// 1-based ranks start+1..end, mean rank:
		midRank := float64(start+1+end) / 2
		for _, idx := range order[start:end] {
			if positive[idx] {
				rankSumPos += midRank
			}
		}
		start = end
	}
	nPos, nNeg := float64(numPos), float64(numNeg)
	return (rankSumPos - nPos*(nPos+1)/2) / (nPos * nNeg)
}

// apFromSorted walks the thresholds from the highest score down, one step per distinct score.
func apFromSorted(sorted []float64, order []int, positive []bool, numPos int) float64 {
	var ap, prevRecall float64
	var tp, fp int
	for end := len(sorted); end > 0; {
		start := end - 1
		for start > 0 && sorted[start-1] == sorted[end-1] {
			start--
		}
		for _, idx := range order[start:end] {
			if positive[idx] {
				tp++
			} else {
				fp++
			}
		}
		precision := float64(tp) / float64(tp+fp)
		recall := float64(tp) / float64(numPos)
		ap += (recall - prevRecall) * precision
		prevRecall = recall
		end = start
	}
	return ap
}

// classification fills the confusion matrix at F1Threshold and the metrics derived from it.
// Undefined ratios (zero denominators) are set to 0.
func (r *Result) classification(scores []float64, positive []bool) {
	for ii, score := range scores {
		predicted := score >= F1Threshold
		switch {
		case predicted && positive[ii]:
			r.TP++
		case predicted:
			r.FP++
		case positive[ii]:
			r.FN++
		default:
			r.TN++
		}
	}
	tp, fp, tn, fn := float64(r.TP), float64(r.FP), float64(r.TN), float64(r.FN)
	r.Precision = safeDiv(tp, tp+fp)
	r.Recall = safeDiv(tp, tp+fn)
	r.Specificity = safeDiv(tn, tn+fp)
	r.Accuracy = (tp + tn) / (tp + fp + tn + fn)
	r.F1 = safeDiv(2*tp, 2*tp+fp+fn)
	r.MCC = safeDiv(tp*tn-fp*fn, math.Sqrt((tp+fp)*(tp+fn)*(tn+fp)*(tn+fn)))
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
