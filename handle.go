//
// Copyright 2023 Bytedance Ltd. and/or its affiliates
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package editlock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Handle owns the locks taken by one Hold or HoldMany call until Release.
type Handle struct {
	m *Manager

	mu       sync.Mutex
	locks    []*Lock
	released bool
}

func (m *Manager) Hold(ctx context.Context, rt ResourceType, id int64, principal string, purpose Purpose, ttl time.Duration) (*Handle, error) {
	l, err := m.Acquire(ctx, rt, id, principal, purpose, ttl)
	if err != nil {
		return nil, err
	}
	return &Handle{m: m, locks: []*Lock{l}}, nil
}

func (m *Manager) HoldMany(ctx context.Context, rt ResourceType, ids []int64, principal string, purpose Purpose, ttl time.Duration) (*Handle, error) {
	locks, err := m.AcquireMany(ctx, rt, ids, principal, purpose, ttl)
	if err != nil {
		return nil, err
	}
	return &Handle{m: m, locks: locks}, nil
}

// Locks returns copies of the held locks as of the last renewal.
func (h *Handle) Locks() []*Lock {
	h.mu.Lock()
	defer h.mu.Unlock()
	res := make([]*Lock, 0, len(h.locks))
	for _, l := range h.locks {
		res = append(res, l.clone())
	}
	return res
}

func (h *Handle) keys() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	keys := make([]string, 0, len(h.locks))
	for _, l := range h.locks {
		keys = append(keys, l.Key().String())
	}
	return keys
}

// Renew extends every held lock, failing with ErrLockLost if one was taken over.
func (h *Handle) Renew(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return ErrLockLost
	}
	for i, l := range h.locks {
		renewed, err := h.m.Renew(ctx, l)
		if err != nil {
			return err
		}
		h.locks[i] = renewed
	}
	return nil
}

// Release is idempotent. A lock that has meanwhile been reclaimed by someone else
// is left alone.
func (h *Handle) Release(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil
	}
	h.released = true

	var errs []error
	for _, l := range h.locks {
		if _, err := h.m.releaseLock(ctx, l); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WithLock runs fn while holding the lock on (rt, id). fn does not run when the lock
// can not be acquired. The lock is released however fn ends, release failures are
// logged and never replace fn's result.
func (m *Manager) WithLock(ctx context.Context, rt ResourceType, id int64, principal string, purpose Purpose, ttl time.Duration,
	fn func(ctx context.Context, l *Lock) error) error {
	if err := m.checkRenewable(ttl); err != nil {
		return err
	}
	h, err := m.Hold(ctx, rt, id, principal, purpose, ttl)
	if err != nil {
		return err
	}
	return m.run(ctx, h, func(ctx context.Context) error {
		return fn(ctx, h.Locks()[0])
	})
}

// WithLocks is WithLock over an all-or-nothing batch.
func (m *Manager) WithLocks(ctx context.Context, rt ResourceType, ids []int64, principal string, purpose Purpose, ttl time.Duration,
	fn func(ctx context.Context, locks []*Lock) error) error {
	if err := m.checkRenewable(ttl); err != nil {
		return err
	}
	h, err := m.HoldMany(ctx, rt, ids, principal, purpose, ttl)
	if err != nil {
		return err
	}
	return m.run(ctx, h, func(ctx context.Context) error {
		return fn(ctx, h.Locks())
	})
}

func (m *Manager) checkRenewable(ttl time.Duration) error {
	if m.opt.RenewInterval > 0 && ttl > 0 && ttl <= m.opt.RenewInterval {
		return invalidArgument("ttl %v must be longer than renew interval %v", ttl, m.opt.RenewInterval)
	}
	return nil
}

func (m *Manager) run(ctx context.Context, h *Handle, fn func(ctx context.Context) error) error {
	// 调用方的 ctx 取消后也要能释放锁
	defer func() {
		if err := h.Release(context.WithoutCancel(ctx)); err != nil {
			m.logger.Error(err, "failed to release locks", "keys", h.keys())
		}
	}()

	if m.opt.RenewInterval <= 0 {
		return fn(ctx)
	}

	subCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	// 续期协程必须在释放锁之前退出
	defer func() {
		cancel()
		<-done
	}()
	go func() {
		defer close(done)
		ticker := time.NewTicker(m.opt.RenewInterval)
		defer ticker.Stop()
		for {
			select {
			case <-subCtx.Done():
				return
			case <-ticker.C:
				if err := h.Renew(subCtx); err != nil {
					if subCtx.Err() != nil {
						return
					}
					// 续期失败，通知业务函数停止执行
					m.logger.Info("failed to renew locks", "keys", h.keys(), "err", err.Error())
					cancel()
					return
				}
			}
		}
	}()

	return fn(subCtx)
}
