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
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"

	"github.com/bytedance/editlock"
	"github.com/bytedance/editlock/logger/stdr"
)

var defaultLogger = stdr.NewStdr("edit_lock_redis")

var ErrMutexBusy = fmt.Errorf("lock record busy")

const (
	defaultPrefix       = "editlock"
	defaultMutexTTL     = 5 * time.Second
	defaultMutexBackoff = 20 * time.Millisecond
	defaultMutexRetry   = 50
)

type Options struct {
	Prefix string
	// InTx 期间持有的 key 级互斥锁的过期时间，必须大于单次 InTx 的耗时
	MutexTTL     time.Duration
	MutexBackoff time.Duration
	MutexRetry   int
	Logger       logr.Logger
}

type Option func(opt *Options)

// RedisStore 锁记录以 JSON 存在 <prefix>:<type>:<id>，过期时间索引存在有序集合 <prefix>:expiry
type RedisStore struct {
	cli    redis.UniversalClient
	mutex  *redislock.Client
	logger logr.Logger
	opt    Options
}

var _ editlock.IStore = (*RedisStore)(nil)

func NewRedisStore(cli redis.UniversalClient, options ...Option) *RedisStore {
	opt := Options{
		Prefix:       defaultPrefix,
		MutexTTL:     defaultMutexTTL,
		MutexBackoff: defaultMutexBackoff,
		MutexRetry:   defaultMutexRetry,
		Logger:       defaultLogger,
	}
	for _, o := range options {
		o(&opt)
	}
	return &RedisStore{cli: cli, mutex: redislock.New(cli), logger: opt.Logger, opt: opt}
}

type record struct {
	Holder         string    `json:"holder"`
	Purpose        string    `json:"purpose"`
	Token          string    `json:"token"`
	AcquiredAt     time.Time `json:"acquired_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	TimeoutSeconds int       `json:"timeout_seconds"`
}

func member(key editlock.Key) string {
	return fmt.Sprintf("%s:%d", key.Type, key.ID)
}

func parseMember(m string) (editlock.Key, bool) {
	i := strings.LastIndex(m, ":")
	if i <= 0 {
		return editlock.Key{}, false
	}
	id, err := strconv.ParseInt(m[i+1:], 10, 64)
	if err != nil {
		return editlock.Key{}, false
	}
	return editlock.Key{Type: editlock.ResourceType(m[:i]), ID: id}, true
}

func (s *RedisStore) rowKey(key editlock.Key) string {
	return s.opt.Prefix + ":" + member(key)
}

func (s *RedisStore) mutexKey(key editlock.Key) string {
	return s.opt.Prefix + ":mutex:" + member(key)
}

func (s *RedisStore) indexKey() string {
	return s.opt.Prefix + ":expiry"
}

func (s *RedisStore) Find(ctx context.Context, key editlock.Key) (*editlock.Lock, error) {
	data, err := s.cli.Get(ctx, s.rowKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get lock %s, err: %w", key, err)
	}
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode lock %s, err: %w", key, err)
	}
	return &editlock.Lock{
		ResourceType:   key.Type,
		ResourceID:     key.ID,
		Holder:         r.Holder,
		Purpose:        editlock.Purpose(r.Purpose),
		Token:          r.Token,
		AcquiredAt:     r.AcquiredAt.UTC(),
		ExpiresAt:      r.ExpiresAt.UTC(),
		TimeoutSeconds: r.TimeoutSeconds,
	}, nil
}

func (s *RedisStore) Upsert(ctx context.Context, l *editlock.Lock) error {
	key := l.Key()
	data, err := json.Marshal(&record{
		Holder:         l.Holder,
		Purpose:        string(l.Purpose),
		Token:          l.Token,
		AcquiredAt:     l.AcquiredAt.UTC(),
		ExpiresAt:      l.ExpiresAt.UTC(),
		TimeoutSeconds: l.TimeoutSeconds,
	})
	if err != nil {
		return err
	}
	_, err = s.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.rowKey(key), data, 0)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(l.ExpiresAt.UnixMilli()), Member: member(key)})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save lock %s, err: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key editlock.Key) (bool, error) {
	var del *redis.IntCmd
	_, err := s.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.rowKey(key))
		pipe.ZRem(ctx, s.indexKey(), member(key))
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete lock %s, err: %w", key, err)
	}
	return del.Val() > 0, nil
}

// InTx 持有 key 级的 redislock 执行 fn，同一个 key 上的 InTx 互斥
func (s *RedisStore) InTx(ctx context.Context, key editlock.Key, fn func(ctx context.Context, tx editlock.IStoreTx) error) error {
	mu, err := s.mutex.Obtain(ctx, s.mutexKey(key), s.opt.MutexTTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(s.opt.MutexBackoff), s.opt.MutexRetry),
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return fmt.Errorf("%w: %s", ErrMutexBusy, key)
		}
		return fmt.Errorf("failed to obtain mutex of %s, err: %w", key, err)
	}
	defer func() {
		if err := mu.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			s.logger.Error(err, "failed to release mutex", "key", key.String())
		}
	}()
	return fn(ctx, s)
}

// DeleteAllExpired 按过期索引逐个删除，每个 key 在自己的互斥锁内重新确认过期后才删除
func (s *RedisStore) DeleteAllExpired(ctx context.Context, now time.Time) (int64, error) {
	members, err := s.cli.ZRangeByScore(ctx, s.indexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to scan expired locks, err: %w", err)
	}

	var n int64
	var errs []error
	for _, m := range members {
		key, ok := parseMember(m)
		if !ok {
			s.cli.ZRem(ctx, s.indexKey(), m)
			continue
		}
		err := s.InTx(ctx, key, func(ctx context.Context, tx editlock.IStoreTx) error {
			cur, err := tx.Find(ctx, key)
			if err != nil {
				return err
			}
			if cur != nil && !cur.ExpiresAt.Before(now) {
				// 扫描之后被续期或重新获取
				return nil
			}
			removed, err := tx.Delete(ctx, key)
			if removed && cur != nil {
				n++
			}
			return err
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return n, errors.Join(errs...)
}
