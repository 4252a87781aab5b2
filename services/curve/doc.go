// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package curve generates learning curves: it trains a model on nested,
// progressively larger shards of a fixed training fold and scores every
// shard on the same validation fold.
//
// The entry point is Engine.Generate. Sizes come from ShardSizes, each size
// is executed by a ShardRunner, and results are collected into a ScoreTable
// that is persisted after every completed shard.
package curve
