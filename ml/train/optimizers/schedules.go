// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package optimizers

import (
	"math"

	"github.com/gomlx/linkpred/ml/params"
)

// This file implements learning rate schedules.

var (
	// ParamCosineScheduleEpochs will enable cosine annealing (aka. "cosine schedule")
	// of the learning rate, if set to a value > 0. It defines the number of epochs of the
	// period of the cosine annealing schedule.
	// It is very commonly to use the same value as the number of epochs being trained.
	ParamCosineScheduleEpochs = "cosine_schedule_epochs"

	// ParamCosineScheduleMinLearningRate is the minimum value of the learning rate, during
	// cosine annealing schedule.
	// Defaults to 10^-3 * initial learning rate.
	ParamCosineScheduleMinLearningRate = "cosine_annealing_min_learning_rate"
)

// CosineSchedule implements a cosine annealing schedule of the learning rate.
// See details https://paperswithcode.com/method/cosine-annealing.
//
// This is slightly different in the sense that $T_i$ is fixed to PeriodEpochs.
type CosineSchedule struct {
	// LearningRate at the start of each cycle, and MinLearningRate at its end.
	LearningRate, MinLearningRate float64

	// PeriodEpochs is the length of a cycle. If 0, the schedule is disabled.
	PeriodEpochs int
}

// CosineScheduleFromParams configures the cosine annealing from the hyperparameters
// [ParamCosineScheduleEpochs], [ParamCosineScheduleMinLearningRate] and [ParamLearningRate].
// It returns nil if the schedule is not enabled.
func CosineScheduleFromParams(p params.Params, defaultLearningRate float64) *CosineSchedule {
	period := params.GetParamOr(p, ParamCosineScheduleEpochs, 0)
	if period <= 0 {
		return nil
	}
	lr := params.GetParamOr(p, ParamLearningRate, defaultLearningRate)
	minLR := params.GetParamOr(p, ParamCosineScheduleMinLearningRate, 0.0)
	if minLR == 0 {
		minLR = lr * 1e-3
	}
	return &CosineSchedule{LearningRate: lr, MinLearningRate: minLR, PeriodEpochs: period}
}

// At returns the learning rate for the given (0-based) epoch.
func (s *CosineSchedule) At(epoch int) float64 {
	if s == nil || s.PeriodEpochs <= 0 {
		return 0
	}
	// Only the fractional part of the cycle: always in range `[0.0, 1.0)`.
	cycle := float64(epoch%s.PeriodEpochs) / float64(s.PeriodEpochs)
	cosine := (math.Cos(cycle*math.Pi) + 1) / 2
	return s.MinLearningRate + cosine*(s.LearningRate-s.MinLearningRate)
}

// Apply sets the optimizer's learning rate for the given epoch. A nil schedule is a no-op.
func (s *CosineSchedule) Apply(opt Interface, epoch int) {
	if s == nil || s.PeriodEpochs <= 0 {
		return
	}
	opt.SetLearningRate(s.At(epoch))
}
