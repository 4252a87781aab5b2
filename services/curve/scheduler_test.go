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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardSizes_Log10Example(t *testing.T) {
	sizes, err := ShardSizes(1000, 5, ScaleLog10, 30)
	require.NoError(t, err)
	assert.Equal(t, []int{30, 72, 173, 416, 1000}, sizes)
}

func TestShardSizes_Linear(t *testing.T) {
	sizes, err := ShardSizes(1000, 4, ScaleLinear, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{250, 500, 750, 1000}, sizes)

	sizes, err = ShardSizes(100, 10, ScaleLinear, 35)
	require.NoError(t, err)
	assert.Equal(t, []int{40, 50, 60, 70, 80, 90, 100}, sizes)
}

func TestShardSizes_SingleShard(t *testing.T) {
	for _, scale := range []Scale{ScaleLinear, ScaleLog10} {
		sizes, err := ShardSizes(123, 1, scale, 10)
		require.NoError(t, err)
		assert.Equal(t, []int{123}, sizes)
	}
}

func TestShardSizes_Invariants(t *testing.T) {
	tests := []struct {
		nTrain, nShards, minSize int
		scale                    Scale
	}{
		{1000, 5, 30, ScaleLog10},
		{50, 20, 2, ScaleLog10},
		{31, 7, 30, ScaleLog10},
		{7, 10, 1, ScaleLinear},
		{10000, 12, 64, ScaleLog10},
		{999, 9, 100, ScaleLinear},
	}
	for _, tt := range tests {
		sizes, err := ShardSizes(tt.nTrain, tt.nShards, tt.scale, tt.minSize)
		require.NoError(t, err)
		require.NotEmpty(t, sizes)
		assert.LessOrEqual(t, len(sizes), tt.nShards)
		assert.Equal(t, tt.nTrain, sizes[len(sizes)-1])
		for i := 1; i < len(sizes); i++ {
			assert.Greater(t, sizes[i], sizes[i-1], "sizes %v not strictly increasing", sizes)
		}
		assert.GreaterOrEqual(t, sizes[0], tt.minSize)
	}
}

func TestShardSizes_Errors(t *testing.T) {
	_, err := ShardSizes(100, 0, ScaleLog10, 1)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = ShardSizes(10, 5, ScaleLog10, 30)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = ShardSizes(100, 5, Scale("sqrt"), 1)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestParseScale(t *testing.T) {
	s, err := ParseScale("")
	require.NoError(t, err)
	assert.Equal(t, ScaleLog10, s)

	s, err = ParseScale("Linear")
	require.NoError(t, err)
	assert.Equal(t, ScaleLinear, s)

	_, err = ParseScale("ln")
	assert.ErrorIs(t, err, ErrConfiguration)
}
