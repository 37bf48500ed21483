// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stealq

import "sync"

// rwTryLock guards the unbounded ring's published version pointer.
// The producer takes the write side once per growth; readers take the
// try-read side so a consumer that's mid-version-bump never blocks
// another consumer, it just falls back to re-reading tailAndVersion
// and retrying.
type rwTryLock struct {
	mu sync.RWMutex
}

func (l *rwTryLock) Lock()    { l.mu.Lock() }
func (l *rwTryLock) Unlock()  { l.mu.Unlock() }
func (l *rwTryLock) RUnlock() { l.mu.RUnlock() }

// TryRLock attempts to take the read lock without blocking.
func (l *rwTryLock) TryRLock() bool { return l.mu.TryRLock() }
