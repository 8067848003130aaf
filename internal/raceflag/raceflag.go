// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build race

// Package raceflag reports whether the race detector is active, so
// concurrent stress tests can skip interleavings that are correct under
// the ring/mempool memory model but trip the detector's happens-before
// heuristics on cross-slot pointer writes (adapted from the teacher's
// race.go/race_off.go RaceEnabled pair).
package raceflag

// Enabled is true when the binary was built with -race.
const Enabled = true
