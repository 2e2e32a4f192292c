// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package deepvo provides DeepVO, an end-to-end monocular visual odometry
// model: a convolutional encoder over stacked frame pairs feeding a
// two-layer LSTM that regresses a 6-DoF pose per frame pair.
//
// The model is generic over born's tensor backends. Training requires a
// backend that records gradients:
//
//	import (
//	    "github.com/born-ml/born/autodiff"
//	    "github.com/born-ml/born/backend/cpu"
//	    "github.com/born-ml/deepvo/deepvo"
//	)
//
//	func main() {
//	    backend := autodiff.New(cpu.New())
//	    model, err := deepvo.New(deepvo.DefaultConfig(), backend)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    optimizer, err := deepvo.NewOptimizer(deepvo.DefaultOptimizerConfig(), model)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    // x: [B, T, 3, H, W] clip, y: [B, T, 6] poses
//	    loss, err := model.Step(x, y, optimizer)
//	}
//
// Inputs are [B, T, 3, H, W] clips with T >= 2; outputs are [B, T-1, 6]
// poses ordered (roll, pitch, yaw, tx, ty, tz).
package deepvo
