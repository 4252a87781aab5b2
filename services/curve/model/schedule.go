// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import (
	"math"
)

// LRSchedule returns the learning rate for a training iteration. Schedules
// are pure functions of the iteration count.
type LRSchedule interface {
	// Rate returns the learning rate at iteration (0-based mini-batch count).
	Rate(iteration int) float64

	// Name returns the schedule name for logging.
	Name() string
}

// constantSchedule always returns the same rate.
type constantSchedule struct {
	lr float64
}

func (s constantSchedule) Rate(int) float64 { return s.lr }
func (s constantSchedule) Name() string     { return "constant" }

// CyclicSchedule is a cyclical learning-rate policy that oscillates between
// BaseLR and MaxLR over cycles of 2*StepSize iterations.
//
// Modes:
//
//	trng1 - constant amplitude triangle.
//	trng2 - triangle whose amplitude halves every cycle.
//	exp   - triangle whose amplitude decays by Gamma^iteration.
type CyclicSchedule struct {
	Mode     string
	BaseLR   float64
	MaxLR    float64
	Gamma    float64
	StepSize int
}

// NewCyclicSchedule builds a CyclicSchedule from params. When params.StepSize
// is zero the half cycle is four epochs of stepsPerEpoch iterations.
func NewCyclicSchedule(params CLRParams, stepsPerEpoch int) *CyclicSchedule {
	step := params.StepSize
	if step <= 0 {
		step = 4 * max(stepsPerEpoch, 1)
	}
	return &CyclicSchedule{
		Mode:     params.Mode,
		BaseLR:   params.BaseLR,
		MaxLR:    params.MaxLR,
		Gamma:    params.Gamma,
		StepSize: step,
	}
}

func (s *CyclicSchedule) Rate(iteration int) float64 {
	it := float64(iteration)
	step := float64(s.StepSize)
	cycle := math.Floor(1 + it/(2*step))
	x := math.Abs(it/step - 2*cycle + 1)
	amp := (s.MaxLR - s.BaseLR) * math.Max(0, 1-x)

	switch s.Mode {
	case CLRTriangular2:
		amp /= math.Pow(2, cycle-1)
	case CLRExpRange:
		amp *= math.Pow(s.Gamma, it)
	}
	return s.BaseLR + amp
}

func (s *CyclicSchedule) Name() string {
	return "clr_" + s.Mode
}

// scheduleFor picks the learning-rate schedule for a neural fit.
func scheduleFor(params NeuralParams, stepsPerEpoch int) LRSchedule {
	if params.CLR == nil {
		return constantSchedule{lr: params.LearningRate}
	}
	return NewCyclicSchedule(*params.CLR, stepsPerEpoch)
}
