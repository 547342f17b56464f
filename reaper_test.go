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

package editlock_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bytedance/editlock"
	"github.com/bytedance/editlock/store/mem"
)

func TestReaperRunOnce(t *testing.T) {
	ctx := context.Background()
	m, store, clock := newTestManager()
	r := editlock.NewReaper(m)

	for id := int64(1); id <= 3; id++ {
		_, err := m.Acquire(ctx, editlock.ResourceOrder, id, "alice", editlock.PurposeEdit, time.Duration(id)*time.Minute)
		require.NoError(t, err)
	}

	clock.Advance(150 * time.Second)
	n, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 1, store.Len())

	n, err = r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestReaperStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := mem.NewStore()
	m := editlock.NewManager(store)
	require.NoError(t, store.Upsert(ctx, &editlock.Lock{
		ResourceType:   editlock.ResourceOrder,
		ResourceID:     1,
		Holder:         "alice",
		Purpose:        editlock.PurposeEdit,
		AcquiredAt:     time.Now().Add(-time.Hour),
		ExpiresAt:      time.Now().Add(-time.Minute),
		TimeoutSeconds: 60,
	}))

	r := editlock.NewReaper(m, editlock.WithReapCron("@every 1s"))
	r.Start(ctx)
	r.Start(ctx)
	defer r.Stop()

	assert.Eventually(t, func() bool {
		return store.Len() == 0
	}, 5*time.Second, 100*time.Millisecond)
}

func TestReaperInvalidCron(t *testing.T) {
	m, _, _ := newTestManager()
	assert.Panics(t, func() {
		editlock.NewReaper(m, editlock.WithReapCron("every now and then"))
	})
}
