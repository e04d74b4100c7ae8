// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	"fmt"
	"time"

	"github.com/gomlx/exceptions"
)

// nTimes is used to implement NTimesDuringLoop.
type nTimes struct {
	n, nUsed int
	fn       OnEpochFn
}

func (nT *nTimes) onStart(_ *Loop, _ *Batch) error {
	nT.nUsed = 0
	return nil
}

func (nT *nTimes) onEpoch(loop *Loop, m EpochMetrics) error {
	epochsDone := (loop.Epoch - loop.StartEpoch) + 1 // Current Epoch just finished.
	if loop.Epoch < loop.EndEpoch-1 { // Last epoch is always included.
		totalEpochs := loop.EndEpoch - loop.StartEpoch
		epochsPerCall := float64(totalEpochs) / float64(nT.n)
		if epochsPerCall > 1 && float64(nT.nUsed) > float64(epochsDone)/epochsPerCall {
			return nil
		}
	}

	// Call hook at this epoch.
	nT.nUsed++
	return nT.fn(loop, m)
}

// NTimesDuringLoop registers a OnEpoch hook on the loop that is called at most N times, split evenly
// across all epochs.
//
// It always calls `fn` at the very last epoch, if the loop runs all its epochs.
func NTimesDuringLoop(loop *Loop, n int, name string, priority Priority, fn OnEpochFn) {
	if n <= 0 {
		exceptions.Panicf("NTimesDuringLoop(n=%d): n must be > 0", n)
	}
	nT := &nTimes{
		n:  n,
		fn: fn,
	}
	name = fmt.Sprintf("NTimesDuringLoop(%d): %s", n, name)
	loop.OnStart(name, priority, nT.onStart)
	loop.OnEpoch(name, priority, nT.onEpoch)
}

type everyNEpochs struct {
	n, count int
	fn       OnEpochFn
}

func (eN *everyNEpochs) onEpoch(loop *Loop, m EpochMetrics) error {
	eN.count++
	if eN.count%eN.n != 0 {
		return nil
	}
	return eN.fn(loop, m)
}

// EveryNEpochs registers a OnEpoch hook on the loop that is called every N epochs.
//
// Notice that it does not call `fn` at the last epoch (except by coincidence).
func EveryNEpochs(loop *Loop, n int, name string, priority Priority, fn OnEpochFn) {
	if n <= 0 {
		exceptions.Panicf("EveryNEpochs(n=%d): n must be > 0", n)
	}
	eN := &everyNEpochs{n: n, fn: fn}
	fullName := fmt.Sprintf("EveryNEpochs(%d): %s", n, name)
	loop.OnEpoch(fullName, priority, eN.onEpoch)
}

type periodicCallback struct {
	last      time.Time
	period    time.Duration
	started   bool
	callOnEnd bool
	fn        OnEpochFn
}

func (p *periodicCallback) onEpoch(loop *Loop, m EpochMetrics) error {
	if !p.started {
		// Start the clock.
		p.started = true
		p.last = time.Now()
		return nil
	}
	elapsed := time.Since(p.last)
	if elapsed < p.period {
		return nil
	}

	err := p.fn(loop, m)
	p.last = time.Now()
	return err
}

// PeriodicCallback registers an `OnEpoch` hook on the loop that is called every period of time.
// The period counts after the execution of `fn`: this discounts the time to run `fn` (in case it is expensive).
// By other hand, `fn` is not executed exactly at every `period` time.
//
// If callOnEnd is set, it will also call at the end of the loop.
func PeriodicCallback(loop *Loop, period time.Duration, callOnEnd bool, name string, priority Priority, fn OnEpochFn) {
	p := &periodicCallback{
		period:    period,
		callOnEnd: callOnEnd,
		fn:        fn,
	}
	fullName := fmt.Sprintf("PeriodicCallback(%s): %s", period, name)
	loop.OnStart(fullName, priority, func(_ *Loop, _ *Batch) error {
		p.started = false
		return nil
	})
	loop.OnEpoch(fullName, priority, p.onEpoch)
	if callOnEnd {
		loop.OnEnd(fullName, priority, func(loop *Loop, m EpochMetrics) error { return p.fn(loop, m) })
	}
}
