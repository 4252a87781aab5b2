// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package curve

import (
	"math"
)

// ShardSizes returns the training-set sizes for a learning curve.
//
// Description:
//
//	Sizes are strictly increasing, no longer than nShards, and always end at
//	nTrain. With ScaleLog10 the points are geometrically spaced between
//	minSize and nTrain and rounded; with ScaleLinear they are k*nTrain/nShards
//	for k = 1..nShards with values below minSize dropped. Rounding can merge
//	neighbouring points, so the result may be shorter than nShards.
//
// Inputs:
//
//	nTrain - Training fold size.
//	nShards - Requested number of sizes. Must be >= 1.
//	scale - ScaleLinear or ScaleLog10.
//	minSize - Smallest trainable size for the model family. Values < 1 mean 1.
//
// Outputs:
//
//	[]int - The sizes.
//	error - Wraps ErrConfiguration for nShards < 1, nTrain < minSize, or an
//	  unknown scale.
//
// Example:
//
//	ShardSizes(1000, 5, ScaleLog10, 30) // [30 72 173 416 1000]
func ShardSizes(nTrain, nShards int, scale Scale, minSize int) ([]int, error) {
	if minSize < 1 {
		minSize = 1
	}
	if nShards < 1 {
		return nil, configError("n_shards must be >= 1, got %d", nShards)
	}
	if nTrain < minSize {
		return nil, configError("training fold has %d samples, fewer than the minimum shard size %d", nTrain, minSize)
	}
	if nShards == 1 {
		return []int{nTrain}, nil
	}

	var raw []int
	switch scale {
	case ScaleLog10:
		lo, hi := math.Log10(float64(minSize)), math.Log10(float64(nTrain))
		step := (hi - lo) / float64(nShards-1)
		raw = make([]int, nShards)
		for k := range raw {
			raw[k] = int(math.Round(math.Pow(10, lo+float64(k)*step)))
		}
	case ScaleLinear:
		raw = make([]int, 0, nShards)
		for k := 1; k <= nShards; k++ {
			if s := k * nTrain / nShards; s >= minSize {
				raw = append(raw, s)
			}
		}
	default:
		return nil, configError("unknown shard scale %q (want linear or log10)", scale)
	}
	raw[len(raw)-1] = nTrain

	sizes := make([]int, 0, len(raw))
	for _, s := range raw {
		if s < minSize || s > nTrain {
			continue
		}
		if len(sizes) > 0 && s <= sizes[len(sizes)-1] {
			continue
		}
		sizes = append(sizes, s)
	}
	return sizes, nil
}
