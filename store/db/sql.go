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

package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-logr/logr"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bytedance/editlock"
	"github.com/bytedance/editlock/logger"
	"github.com/bytedance/editlock/logger/stdr"
)

var defaultLogger = stdr.NewStdr("edit_lock_db")

const (
	defaultRetryAttempts = 5
	defaultRetryDelay    = 20 * time.Millisecond
)

const (
	mysqlErrDupEntry        = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

type Options struct {
	// 并发首次加锁时的唯一键冲突、死锁，重试整个事务
	Retry         bool
	RetryAttempts uint
	RetryDelay    time.Duration
	Logger        logr.Logger
}

type Option func(opt *Options)

// DBStore 基于 gorm 的锁存储，生产环境使用 MySQL，测试和单机场景可以用 SQLite
type DBStore struct {
	db     *gorm.DB
	logger logr.Logger
	opt    Options
}

var _ editlock.IStore = (*DBStore)(nil)

func NewDBStore(db *gorm.DB, options ...Option) *DBStore {
	opt := Options{
		Retry:         true,
		RetryAttempts: defaultRetryAttempts,
		RetryDelay:    defaultRetryDelay,
		Logger:        defaultLogger,
	}
	for _, o := range options {
		o(&opt)
	}
	if opt.RetryAttempts == 0 {
		opt.RetryAttempts = 1
	}
	return &DBStore{db: db, logger: opt.Logger, opt: opt}
}

// AutoMigrate 创建 edit_lock 表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&LockPO{})
}

type gormTx struct {
	db        *gorm.DB
	forUpdate bool
	// Find 的结果，Upsert 据此决定 update 还是 insert
	found map[editlock.Key]bool
}

func newGormTx(db *gorm.DB, forUpdate bool) *gormTx {
	return &gormTx{db: db, forUpdate: forUpdate, found: map[editlock.Key]bool{}}
}

func whereKey(db *gorm.DB, key editlock.Key) *gorm.DB {
	return db.Where("`resource_type` = ? AND `resource_id` = ?", string(key.Type), key.ID)
}

func (t *gormTx) Find(ctx context.Context, key editlock.Key) (*editlock.Lock, error) {
	q := t.db.WithContext(ctx).Model(&LockPO{})
	if t.forUpdate {
		// SQLite 不支持行锁，gorm 会忽略该子句，写事务本身是独占的
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	pos := make([]*LockPO, 0, 1)
	if err := whereKey(q, key).Limit(1).Find(&pos).Error; err != nil {
		return nil, err
	}
	if len(pos) == 0 {
		t.found[key] = false
		return nil, nil
	}
	t.found[key] = true
	return poToLock(pos[0]), nil
}

func (t *gormTx) Upsert(ctx context.Context, l *editlock.Lock) error {
	key := l.Key()
	found, ok := t.found[key]
	if !ok {
		if _, err := t.Find(ctx, key); err != nil {
			return err
		}
		found = t.found[key]
	}
	po := lockToPO(l)
	if !found {
		// 并发插入会触发唯一键冲突，由 InTx 重试后重新判断
		if err := t.db.WithContext(ctx).Create(po).Error; err != nil {
			return err
		}
		t.found[key] = true
		return nil
	}
	return whereKey(t.db.WithContext(ctx).Model(&LockPO{}), key).
		Updates(map[string]interface{}{
			"holder":          po.Holder,
			"purpose":         po.Purpose,
			"token":           po.Token,
			"acquired_at":     po.AcquiredAt,
			"expires_at":      po.ExpiresAt,
			"timeout_seconds": po.TimeoutSeconds,
			"updated_at":      time.Now().UTC(),
		}).Error
}

func (t *gormTx) Delete(ctx context.Context, key editlock.Key) (bool, error) {
	res := whereKey(t.db.WithContext(ctx), key).Delete(&LockPO{})
	if res.Error != nil {
		return false, res.Error
	}
	t.found[key] = false
	return res.RowsAffected > 0, nil
}

func (s *DBStore) Find(ctx context.Context, key editlock.Key) (*editlock.Lock, error) {
	l, err := newGormTx(s.db, false).Find(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get lock %s, err: %w", key, err)
	}
	return l, nil
}

func (s *DBStore) Upsert(ctx context.Context, l *editlock.Lock) error {
	return s.InTx(ctx, l.Key(), func(ctx context.Context, tx editlock.IStoreTx) error {
		return tx.Upsert(ctx, l)
	})
}

func (s *DBStore) Delete(ctx context.Context, key editlock.Key) (bool, error) {
	ok, err := newGormTx(s.db, false).Delete(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to delete lock %s, err: %w", key, err)
	}
	return ok, nil
}

// InTx 在一个数据库事务里执行 fn，Find 使用 SELECT ... FOR UPDATE 锁住记录
func (s *DBStore) InTx(ctx context.Context, key editlock.Key, fn func(ctx context.Context, tx editlock.IStoreTx) error) error {
	attempt := func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(ctx, newGormTx(tx, true))
		})
	}
	if !s.opt.Retry {
		return attempt()
	}
	return retry.Do(
		attempt,
		retry.RetryIf(isRetryable),
		retry.DelayType(retry.FixedDelay),
		retry.Delay(s.opt.RetryDelay),
		retry.Attempts(s.opt.RetryAttempts),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.logger.V(logger.LevelDebug).Info("retry lock transaction", "key", key.String(), "attempt", n, "err", err.Error())
		}),
	)
}

func (s *DBStore) DeleteAllExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("`expires_at` < ?", now.UTC()).Delete(&LockPO{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete expired locks, err: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlErrDupEntry
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// isRetryable 只重试存储层的竞争，锁冲突等业务错误原样返回
func isRetryable(err error) bool {
	if isDuplicate(err) {
		return true
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlErrDeadlock || myErr.Number == mysqlErrLockWaitTimeout
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}
	return false
}
