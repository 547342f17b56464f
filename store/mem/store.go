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

package mem

import (
	"context"
	"sync"
	"time"

	"github.com/bytedance/editlock"
)

// MemoryStore 进程内的锁存储，适用于单实例部署和测试
type MemoryStore struct {
	mu   sync.Mutex
	rows map[editlock.Key]editlock.Lock
}

var _ editlock.IStore = (*MemoryStore)(nil)

func NewStore() *MemoryStore {
	return &MemoryStore{rows: map[editlock.Key]editlock.Lock{}}
}

type memTx struct {
	rows map[editlock.Key]editlock.Lock
}

func (t *memTx) Find(ctx context.Context, key editlock.Key) (*editlock.Lock, error) {
	l, ok := t.rows[key]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (t *memTx) Upsert(ctx context.Context, lock *editlock.Lock) error {
	t.rows[lock.Key()] = *lock
	return nil
}

func (t *memTx) Delete(ctx context.Context, key editlock.Key) (bool, error) {
	_, ok := t.rows[key]
	delete(t.rows, key)
	return ok, nil
}

func (s *MemoryStore) Find(ctx context.Context, key editlock.Key) (*editlock.Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{rows: s.rows}).Find(ctx, key)
}

func (s *MemoryStore) Upsert(ctx context.Context, lock *editlock.Lock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{rows: s.rows}).Upsert(ctx, lock)
}

func (s *MemoryStore) Delete(ctx context.Context, key editlock.Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{rows: s.rows}).Delete(ctx, key)
}

// InTx 持有整个 store 的互斥锁执行 fn，fn 返回错误时恢复该 key 原有的数据
func (s *MemoryStore) InTx(ctx context.Context, key editlock.Key, fn func(ctx context.Context, tx editlock.IStoreTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.rows[key]
	if err := fn(ctx, &memTx{rows: s.rows}); err != nil {
		if existed {
			s.rows[key] = prev
		} else {
			delete(s.rows, key)
		}
		return err
	}
	return nil
}

func (s *MemoryStore) DeleteAllExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, l := range s.rows {
		if l.ExpiresAt.Before(now) {
			delete(s.rows, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored rows, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}
