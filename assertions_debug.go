// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build stealq_debug

package stealq

// AssertionsEnabled is true when built with the stealq_debug tag.
// Debug-only preconditions panic instead of silently corrupting state.
const AssertionsEnabled = true
