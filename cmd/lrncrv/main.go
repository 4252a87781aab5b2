// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/AleutianAI/learningcurve/cmd/lrncrv/config"
	"github.com/AleutianAI/learningcurve/pkg/ux"
	"github.com/AleutianAI/learningcurve/services/curve"
)

// Exit codes.
const (
	exitFailure     = 1
	exitConfig      = 2
	exitDegraded    = 3
	exitInterrupted = 130
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		ux.Error(err.Error())
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, curve.ErrInterrupted):
		return exitInterrupted
	case errors.Is(err, curve.ErrConfiguration), errors.Is(err, config.ErrInvalidConfig):
		return exitConfig
	case errors.Is(err, errRunDegraded):
		return exitDegraded
	default:
		return exitFailure
	}
}
