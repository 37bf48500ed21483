// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !stealq_debug

package stealq

// AssertionsEnabled is false in normal builds. Debug-only preconditions
// (such as StealInto's "dst must be empty" requirement) are undefined
// behavior rather than a panic when this is false.
const AssertionsEnabled = false
