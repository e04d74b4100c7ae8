// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package metrics

import "math"

// StreamingMedian keeps an approximate median of a stream of values in constant memory.
// The training loop uses it to report the median epoch loss of a run.
//
// It uses the P^2 algorithm, described in the paper https://dl.acm.org/doi/abs/10.1145/4372.4378,
// and in a more friendly way in the post in: https://www.baeldung.com/cs/streaming-median
//
// The zero value is ready to use. Non-finite values are ignored.
type StreamingMedian struct {
	markers  [5]float64
	counters [5]int64
}

var p2Quantiles = [5]float64{0, 0.25, 0.5, 0.75, 1}

// Count returns the number of values seen since the last Reset.
func (m *StreamingMedian) Count() int64 {
	return m.counters[4]
}

// Value returns the current median estimate, or NaN if no value was seen.
func (m *StreamingMedian) Value() float64 {
	if m.counters[4] == 0 {
		return math.NaN()
	}
	return m.markers[2]
}

// Reset forgets all values seen so far.
func (m *StreamingMedian) Reset() {
	*m = StreamingMedian{}
}

// Update adds x to the stream and returns the updated median estimate.
func (m *StreamingMedian) Update(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return m.Value()
	}
	if m.counters[4] == 0 {
		// First value: all markers start at x.
		for i := range 5 {
			m.markers[i] = x
			if i > 0 {
				m.counters[i] = 1
			}
		}
		return x
	}

	m.markers[0] = min(x, m.markers[0])
	m.markers[4] = max(x, m.markers[4])
	// counters[0] stays 0, counters[4] counts everything.
	m.counters[4]++
	for i := 1; i < 4; i++ {
		if x <= m.markers[i] {
			m.counters[i]++
		}
	}

	total := float64(m.counters[4])
	for i := 1; i < 4; i++ {
		d := p2Quantiles[i]*(total-1) - float64(m.counters[i])
		switch {
		case d >= 1:
			if m.counters[i] >= m.counters[i+1] || m.markers[i] >= m.markers[i+1] {
				continue
			}
			d = 1
		case d <= -1:
			if m.counters[i] <= m.counters[i-1] || m.markers[i] <= m.markers[i-1] {
				continue
			}
			d = -1
		default:
			continue
		}
		m.markers[i] = m.adjustedMarker(i, d)
		m.counters[i] += int64(d)
	}
	return m.markers[2]
}

// adjustedMarker moves marker i by d ranks: parabolic interpolation if possible, linear otherwise.
func (m *StreamingMedian) adjustedMarker(i int, d float64) float64 {
	nPrev, nCur, nNext := float64(m.counters[i-1]), float64(m.counters[i]), float64(m.counters[i+1])
	qPrev, qCur, qNext := m.markers[i-1], m.markers[i], m.markers[i+1]
	dnPrev, dnNext, dnOuter := nCur-nPrev, nNext-nCur, nNext-nPrev
	switch {
	case dnPrev > 0 && dnNext > 0:
		return qCur + d/dnOuter*((dnPrev+d)*(qNext-qCur)/dnNext+(dnNext-d)*(qCur-qPrev)/dnPrev)
	case dnOuter > 0:
		return qPrev + (dnPrev+d)*(qNext-qPrev)/dnOuter
	default:
		// Markers clumped at the same rank.
		return qCur
	}
}
