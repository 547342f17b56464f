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
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bytedance/editlock"
)

func TestInTxRestoresOnError(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	key := editlock.Key{Type: editlock.ResourceOrder, ID: 1}
	now := time.Now()

	require.NoError(t, s.Upsert(ctx, &editlock.Lock{ResourceType: key.Type, ResourceID: key.ID, Holder: "alice", ExpiresAt: now.Add(time.Minute)}))

	err := s.InTx(ctx, key, func(ctx context.Context, tx editlock.IStoreTx) error {
		if err := tx.Upsert(ctx, &editlock.Lock{ResourceType: key.Type, ResourceID: key.ID, Holder: "bob"}); err != nil {
			return err
		}
		return fmt.Errorf("abort")
	})
	assert.Error(t, err)

	l, err := s.Find(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "alice", l.Holder)

	// 返回的是副本
	l.Holder = "mallory"
	l, _ = s.Find(ctx, key)
	assert.Equal(t, "alice", l.Holder)
}

func TestDeleteAllExpired(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	now := time.Now()

	require.NoError(t, s.Upsert(ctx, &editlock.Lock{ResourceType: editlock.ResourceOrder, ResourceID: 1, ExpiresAt: now.Add(-time.Second)}))
	require.NoError(t, s.Upsert(ctx, &editlock.Lock{ResourceType: editlock.ResourceOrder, ResourceID: 2, ExpiresAt: now}))
	require.NoError(t, s.Upsert(ctx, &editlock.Lock{ResourceType: editlock.ResourceOrder, ResourceID: 3, ExpiresAt: now.Add(time.Second)}))

	n, err := s.DeleteAllExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 2, s.Len())

	ok, err := s.Delete(ctx, editlock.Key{Type: editlock.ResourceOrder, ID: 2})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Delete(ctx, editlock.Key{Type: editlock.ResourceOrder, ID: 2})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInTxCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := NewStore().InTx(ctx, editlock.Key{Type: editlock.ResourceOrder, ID: 1}, func(ctx context.Context, tx editlock.IStoreTx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
