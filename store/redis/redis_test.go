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

package redis

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bytedance/editlock"
	"github.com/bytedance/editlock/testsuit"
)

func newTestStore(t *testing.T) *RedisStore {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR is not set")
	}
	cli := redis.NewClient(&redis.Options{Addr: addr})
	prefix := "editlock_test_" + xid.New().String()
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := cli.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			cli.Del(ctx, keys...)
		}
		_ = cli.Close()
	})
	return NewRedisStore(cli, func(opt *Options) {
		opt.Prefix = prefix
	})
}

func TestParseMember(t *testing.T) {
	key, ok := parseMember("ORDER:42")
	assert.True(t, ok)
	assert.Equal(t, editlock.Key{Type: editlock.ResourceOrder, ID: 42}, key)

	_, ok = parseMember("ORDER")
	assert.False(t, ok)
	_, ok = parseMember("ORDER:x")
	assert.False(t, ok)
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)
	key := editlock.Key{Type: editlock.ResourceNotice, ID: 7}

	l, err := s.Find(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, l)

	require.NoError(t, s.Upsert(ctx, &editlock.Lock{
		ResourceType: key.Type, ResourceID: key.ID, Holder: "alice", Purpose: editlock.PurposeEdit,
		Token: "t1", AcquiredAt: now, ExpiresAt: now.Add(time.Second), TimeoutSeconds: 1,
	}))
	l, err = s.Find(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, "alice", l.Holder)
	assert.True(t, now.Add(time.Second).Equal(l.ExpiresAt))

	n, err := s.DeleteAllExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	n, err = s.DeleteAllExpired(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ok, err := s.Delete(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisConcurrentAcquire(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	clock := testsuit.NewFakeClock(time.Now())
	m := editlock.NewManager(s, editlock.WithClock(clock))

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
