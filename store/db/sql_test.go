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

package db_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bytedance/editlock"
	"github.com/bytedance/editlock/store/db"
	"github.com/bytedance/editlock/testsuit"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newSqliteStore(t *testing.T) (*db.DBStore, *gorm.DB) {
	gdb := testsuit.InitSqlite(testsuit.MySQLOption{NoLog: true})
	require.NoError(t, db.AutoMigrate(gdb))
	return db.NewDBStore(gdb), gdb
}

func TestStoreCRUD(t *testing.T) {
	ctx := context.Background()
	store, _ := newSqliteStore(t)
	key := editlock.Key{Type: editlock.ResourceOrder, ID: 42}

	l, err := store.Find(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, l)

	lock := &editlock.Lock{
		ResourceType:   editlock.ResourceOrder,
		ResourceID:     42,
		Holder:         "alice",
		Purpose:        editlock.PurposeEdit,
		Token:          "t1",
		AcquiredAt:     t0,
		ExpiresAt:      t0.Add(time.Minute),
		TimeoutSeconds: 60,
	}
	require.NoError(t, store.Upsert(ctx, lock))

	l, err = store.Find(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, "alice", l.Holder)
	assert.Equal(t, "t1", l.Token)
	assert.True(t, t0.Equal(l.AcquiredAt))
	assert.True(t, t0.Add(time.Minute).Equal(l.ExpiresAt))

	// 同一个 key 只有一行
	lock.Holder = "bob"
	lock.ExpiresAt = t0.Add(2 * time.Minute)
	require.NoError(t, store.Upsert(ctx, lock))
	l, err = store.Find(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "bob", l.Holder)

	ok, err := store.Delete(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.Delete(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInTxRollback(t *testing.T) {
	ctx := context.Background()
	store, _ := newSqliteStore(t)
	key := editlock.Key{Type: editlock.ResourceNotice, ID: 1}

	bizErr := fmt.Errorf("abort")
	err := store.InTx(ctx, key, func(ctx context.Context, tx editlock.IStoreTx) error {
		if err := tx.Upsert(ctx, &editlock.Lock{
			ResourceType: key.Type, ResourceID: key.ID, Holder: "alice",
			AcquiredAt: t0, ExpiresAt: t0.Add(time.Minute),
		}); err != nil {
			return err
		}
		return bizErr
	})
	assert.True(t, errors.Is(err, bizErr))

	l, err := store.Find(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, l)
}

func TestDeleteAllExpired(t *testing.T) {
	ctx := context.Background()
	store, _ := newSqliteStore(t)

	for i, ttl := range []time.Duration{time.Second, time.Minute, time.Hour} {
		require.NoError(t, store.Upsert(ctx, &editlock.Lock{
			ResourceType: editlock.ResourceOrder, ResourceID: int64(i + 1), Holder: "alice",
			AcquiredAt: t0, ExpiresAt: t0.Add(ttl),
		}))
	}
	n, err := store.DeleteAllExpired(ctx, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	l, err := store.Find(ctx, editlock.Key{Type: editlock.ResourceOrder, ID: 3})
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestManagerOnDB(t *testing.T) {
	ctx := context.Background()
	store, _ := newSqliteStore(t)
	clock := testsuit.NewFakeClock(t0)
	m := editlock.NewManager(store, editlock.WithClock(clock))

	a, err := m.Acquire(ctx, editlock.ResourceOrder, 42, "alice", editlock.PurposeEdit, 300*time.Second)
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = m.Acquire(ctx, editlock.ResourceOrder, 42, "bob", editlock.PurposeEdit, 300*time.Second)
	var conflict *editlock.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "alice", conflict.Holder)
	assert.Equal(t, 299, conflict.RemainingSeconds)

	renewed, err := m.Acquire(ctx, editlock.ResourceOrder, 42, "alice", editlock.PurposeEdit, 300*time.Second)
	require.NoError(t, err)
	assert.Equal(t, a.Token, renewed.Token)
	assert.True(t, a.AcquiredAt.Equal(renewed.AcquiredAt))

	ok, err := m.Release(ctx, editlock.ResourceOrder, 42, "bob")
	require.NoError(t, err)
	assert.False(t, ok)

	// 过期后可以被其他人回收
	clock.Advance(time.Hour)
	b, err := m.Acquire(ctx, editlock.ResourceOrder, 42, "bob", editlock.PurposeStatus, time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, a.Token, b.Token)

	_, err = m.AcquireMany(ctx, editlock.ResourceOrder, []int64{41, 42, 43}, "carol", editlock.PurposeAssign, time.Minute)
	assert.ErrorIs(t, err, editlock.ErrResourceLocked)
	for _, id := range []int64{41, 43} {
		s, err := m.Status(ctx, editlock.ResourceOrder, id, "dave")
		require.NoError(t, err)
		assert.False(t, s.Locked)
	}

	clock.Advance(time.Hour)
	n, err := m.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestConcurrentAcquire(t *testing.T) {
	ctx := context.Background()
	store, _ := newSqliteStore(t)
	m := editlock.NewManager(store)

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.Acquire(ctx, editlock.ResourceOrder, 1, fmt.Sprintf("staff-%d", i), editlock.PurposeEdit, time.Minute)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, editlock.ErrResourceLocked)
	}
	assert.Equal(t, 1, succeeded)
}

func TestMysqlConcurrentAcquire(t *testing.T) {
	if !testsuit.MysqlEnabled() {
		t.Skip("MYSQL_TEST is not set")
	}
	ctx := context.Background()
	gdb := testsuit.InitMysql(testsuit.MySQLOption{NoLog: true})
	require.NoError(t, db.AutoMigrate(gdb))
	store := db.NewDBStore(gdb)
	m := editlock.NewManager(store)

	id := time.Now().UnixNano()
	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.Acquire(ctx, editlock.ResourceOrder, id, fmt.Sprintf("staff-%d", i), editlock.PurposeEdit, time.Minute)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, editlock.ErrResourceLocked)
	}
	assert.Equal(t, 1, succeeded)
	_, err := m.ForceRelease(ctx, editlock.ResourceOrder, id)
	assert.NoError(t, err)
}
