// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stealq

import "code.hybscloud.com/iox"

// ErrWouldBlock indicates a producer-only operation cannot proceed
// immediately because a [BoundedRing] is full.
//
// ErrWouldBlock is a control flow signal, not a failure. The caller
// should either fall back to the overflow-spilling variant of the
// call ([BoundedRing.Push], [BoundedRing.PushMany]) or retry after a
// backoff.
//
// This is an alias for [iox.ErrWouldBlock] for ecosystem consistency.
// [UnboundedRing] never returns it: it grows instead of blocking.
var ErrWouldBlock = iox.ErrWouldBlock

// IsWouldBlock reports whether err indicates the operation would block.
// Delegates to [iox.IsWouldBlock] for wrapped error support.
func IsWouldBlock(err error) bool {
	return iox.IsWouldBlock(err)
}

// IsSemantic reports whether err is a control flow signal (not a failure).
// Delegates to [iox.IsSemantic].
func IsSemantic(err error) bool {
	return iox.IsSemantic(err)
}

// IsNonFailure reports whether err represents a non-failure condition.
// Delegates to [iox.IsNonFailure].
func IsNonFailure(err error) bool {
	return iox.IsNonFailure(err)
}
