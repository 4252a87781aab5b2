// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package model provides the model adapters used by the learning-curve engine.
//
// An Adapter exposes one uniform contract over three model families:
//
//	Adapter.Construct(seed) -> Model
//	Model.Fit(ctx, X, y)
//	Model.Predict(X) -> Prediction
//	Adapter.Score(yTrue, prediction) -> Scores
//
// The family is a closed set chosen once when the Config is validated by
// NewAdapter:
//
//   - FamilyTree: gradient-boosted or bagged regression-tree ensembles.
//     A fresh ensemble is built for every shard. Split search is parallel
//     across features and bounded by TreeParams.NJobs.
//   - FamilyEstimator: any Estimator exposing Fit/Predict, looked up by name
//     in a Registry. Ships with ridge, logistic and knn.
//   - FamilyNeural: a multilayer perceptron trained with SGD or Adam for a
//     fixed number of epochs, with an optional cyclical learning rate.
//
// All families are deterministic for a given seed. Training is single
// threaded except for the tree split search, whose result does not depend on
// the number of workers.
package model
