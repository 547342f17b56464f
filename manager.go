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
	"fmt"
	"sort"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-playground/validator/v10"
	"github.com/rs/xid"

	"github.com/bytedance/editlock/logger"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type lockRequest struct {
	Type      ResourceType  `validate:"required"`
	Principal string        `validate:"required,max=255"`
	Purpose   Purpose       `validate:"omitempty,oneof=EDIT STATUS ASSIGN REMARK"`
	TTL       time.Duration `validate:"gte=0"`
}

// Manager decides who may hold a lock. It keeps no mutable state of its own,
// any number of managers may share one store.
type Manager struct {
	store  IStore
	clock  Clock
	logger logr.Logger
	opt    Options
	types  map[ResourceType]struct{}
}

func NewManager(store IStore, options ...Option) *Manager {
	opt := Options{
		Clock:         realClock{},
		Logger:        defaultLogger,
		DefaultTTL:    defaultTTL,
		ResourceTypes: []ResourceType{ResourceOrder, ResourceNotice, ResourceUser},
		LazyCleanup:   true,
	}
	for _, o := range options {
		o(&opt)
	}
	if store == nil {
		panic("store is required")
	}
	if opt.DefaultTTL <= 0 {
		panic(fmt.Sprintf("default ttl %v must be positive", opt.DefaultTTL))
	}
	if opt.RenewInterval > 0 && opt.DefaultTTL <= opt.RenewInterval {
		panic(fmt.Sprintf("default ttl can not less than %f seconds", opt.RenewInterval.Seconds()))
	}
	types := make(map[ResourceType]struct{}, len(opt.ResourceTypes))
	for _, t := range opt.ResourceTypes {
		types[t] = struct{}{}
	}
	return &Manager{
		store:  store,
		clock:  opt.Clock,
		logger: opt.Logger,
		opt:    opt,
		types:  types,
	}
}

func (m *Manager) now() time.Time {
	return m.clock.Now().UTC()
}

func (m *Manager) newRequest(rt ResourceType, principal string, purpose Purpose, ttl time.Duration) (lockRequest, error) {
	req := lockRequest{Type: rt, Principal: principal, Purpose: purpose, TTL: ttl}
	if err := validate.Struct(req); err != nil {
		return req, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if err := m.checkType(rt); err != nil {
		return req, err
	}
	if req.Purpose == "" {
		req.Purpose = PurposeEdit
	}
	if req.TTL == 0 {
		req.TTL = m.opt.DefaultTTL
	}
	return req, nil
}

func (m *Manager) checkType(rt ResourceType) error {
	if _, ok := m.types[rt]; !ok {
		return invalidArgument("unknown resource type %q", rt)
	}
	return nil
}

func (m *Manager) checkTarget(rt ResourceType, principal string) error {
	if principal == "" {
		return invalidArgument("principal is required")
	}
	return m.checkType(rt)
}

// Acquire takes or renews the lock on (rt, id) for principal.
// A valid lock held by someone else yields *ConflictError and nothing is written.
func (m *Manager) Acquire(ctx context.Context, rt ResourceType, id int64, principal string, purpose Purpose, ttl time.Duration) (*Lock, error) {
	req, err := m.newRequest(rt, principal, purpose, ttl)
	if err != nil {
		return nil, err
	}
	return m.acquire(ctx, Key{Type: rt, ID: id}, req)
}

func (m *Manager) acquire(ctx context.Context, key Key, req lockRequest) (*Lock, error) {
	var acquired *Lock
	renewed := false
	err := m.store.InTx(ctx, key, func(ctx context.Context, tx IStoreTx) error {
		// InTx 可能重试，每次都重新读取
		acquired, renewed = nil, false
		now := m.now()
		cur, err := tx.Find(ctx, key)
		if err != nil {
			return fmt.Errorf("failed to find lock %s: %w", key, err)
		}
		next := &Lock{
			ResourceType:   key.Type,
			ResourceID:     key.ID,
			Holder:         req.Principal,
			Purpose:        req.Purpose,
			Token:          xid.New().String(),
			AcquiredAt:     now,
			ExpiresAt:      now.Add(req.TTL),
			TimeoutSeconds: int(req.TTL / time.Second),
		}
		if cur != nil && cur.Valid(now) {
			if cur.Holder != req.Principal {
				return newConflictError(cur, now)
			}
			// 续期：保留首次加锁时间与 token
			next.Token = cur.Token
			next.AcquiredAt = cur.AcquiredAt
			renewed = true
		}
		if err := tx.Upsert(ctx, next); err != nil {
			return fmt.Errorf("failed to save lock %s: %w", key, err)
		}
		acquired = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.logger.V(logger.LevelDebug).Info("lock acquired", "key", key.String(), "holder", acquired.Holder,
		"renewed", renewed, "expiresAt", acquired.ExpiresAt)
	return acquired.clone(), nil
}

// AcquireMany locks every id or none of them. Ids are deduplicated and taken in
// ascending order; on the first failure the locks taken by this call are released
// and the failure is returned as is.
func (m *Manager) AcquireMany(ctx context.Context, rt ResourceType, ids []int64, principal string, purpose Purpose, ttl time.Duration) ([]*Lock, error) {
	req, err := m.newRequest(rt, principal, purpose, ttl)
	if err != nil {
		return nil, err
	}

	locks := make([]*Lock, 0, len(ids))
	for _, id := range sortedIDs(ids) {
		l, err := m.acquire(ctx, Key{Type: rt, ID: id}, req)
		if err != nil {
			m.rollback(ctx, locks)
			return nil, err
		}
		locks = append(locks, l)
	}
	return locks, nil
}

func (m *Manager) rollback(ctx context.Context, locks []*Lock) {
	ctx = context.WithoutCancel(ctx)
	for _, l := range locks {
		if _, err := m.releaseLock(ctx, l); err != nil {
			// 未释放的锁会在 ttl 后自然过期
			m.logger.Error(err, "rollback lock failed", "key", l.Key().String())
		}
	}
}

// Release removes principal's lock on (rt, id). It returns true when the resource is
// free afterwards (including when it already was) and false when a valid lock of
// another principal is in place, which is left untouched.
func (m *Manager) Release(ctx context.Context, rt ResourceType, id int64, principal string) (bool, error) {
	if err := m.checkTarget(rt, principal); err != nil {
		return false, err
	}
	_, ok, err := m.release(ctx, Key{Type: rt, ID: id}, func(cur *Lock) bool {
		return cur.Holder == principal
	})
	return ok, err
}

// ReleaseStrict is Release with the refusal reported as *NotHolderError.
func (m *Manager) ReleaseStrict(ctx context.Context, rt ResourceType, id int64, principal string) error {
	if err := m.checkTarget(rt, principal); err != nil {
		return err
	}
	holder, ok, err := m.release(ctx, Key{Type: rt, ID: id}, func(cur *Lock) bool {
		return cur.Holder == principal
	})
	if err != nil {
		return err
	}
	if !ok {
		return &NotHolderError{ResourceType: rt, ResourceID: id, Principal: principal, Holder: holder.Holder}
	}
	return nil
}

// ReleaseMany releases each id independently, a refusal or a storage error on one id
// does not stop the others.
func (m *Manager) ReleaseMany(ctx context.Context, rt ResourceType, ids []int64, principal string) (*ReleaseResult, error) {
	if err := m.checkTarget(rt, principal); err != nil {
		return nil, err
	}
	res := &ReleaseResult{Released: []int64{}, Refused: []int64{}}
	var errs []error
	for _, id := range sortedIDs(ids) {
		_, ok, err := m.release(ctx, Key{Type: rt, ID: id}, func(cur *Lock) bool {
			return cur.Holder == principal
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			res.Released = append(res.Released, id)
		} else {
			res.Refused = append(res.Refused, id)
		}
	}
	return res, errors.Join(errs...)
}

// releaseLock 只释放 token 仍然匹配的锁
func (m *Manager) releaseLock(ctx context.Context, l *Lock) (bool, error) {
	_, ok, err := m.release(ctx, l.Key(), func(cur *Lock) bool {
		return cur.Holder == l.Holder && cur.Token == l.Token
	})
	return ok, err
}

// release 删除 owns 认可的有效锁或任意已过期的锁，拒绝时返回当前持有的锁
func (m *Manager) release(ctx context.Context, key Key, owns func(cur *Lock) bool) (*Lock, bool, error) {
	var holder *Lock
	ok := false
	err := m.store.InTx(ctx, key, func(ctx context.Context, tx IStoreTx) error {
		holder, ok = nil, false
		cur, err := tx.Find(ctx, key)
		if err != nil {
			return fmt.Errorf("failed to find lock %s: %w", key, err)
		}
		if cur == nil {
			ok = true
			return nil
		}
		if cur.Valid(m.now()) && !owns(cur) {
			holder = cur
			return nil
		}
		if _, err := tx.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to delete lock %s: %w", key, err)
		}
		ok = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if ok {
		m.logger.V(logger.LevelDebug).Info("lock released", "key", key.String())
	}
	return holder, ok, nil
}

// ForceRelease removes the lock on (rt, id) whoever holds it and returns the valid lock
// that was removed, if any. Deciding who may call it is up to the caller.
func (m *Manager) ForceRelease(ctx context.Context, rt ResourceType, id int64) (*Lock, error) {
	if err := m.checkType(rt); err != nil {
		return nil, err
	}
	key := Key{Type: rt, ID: id}
	var removed *Lock
	err := m.store.InTx(ctx, key, func(ctx context.Context, tx IStoreTx) error {
		removed = nil
		cur, err := tx.Find(ctx, key)
		if err != nil {
			return fmt.Errorf("failed to find lock %s: %w", key, err)
		}
		if cur == nil {
			return nil
		}
		if _, err := tx.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to delete lock %s: %w", key, err)
		}
		if cur.Valid(m.now()) {
			removed = cur
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if removed != nil {
		m.logger.Info("lock force released", "key", key.String(), "holder", removed.Holder)
	}
	return removed, nil
}

// Renew extends l by its own timeout as long as l is still the stored lock.
func (m *Manager) Renew(ctx context.Context, l *Lock) (*Lock, error) {
	key := l.Key()
	var renewed *Lock
	err := m.store.InTx(ctx, key, func(ctx context.Context, tx IStoreTx) error {
		renewed = nil
		cur, err := tx.Find(ctx, key)
		if err != nil {
			return fmt.Errorf("failed to find lock %s: %w", key, err)
		}
		if cur == nil || cur.Token != l.Token || cur.Holder != l.Holder {
			return fmt.Errorf("%w: %s", ErrLockLost, key)
		}
		ttl := time.Duration(cur.TimeoutSeconds) * time.Second
		if ttl <= 0 {
			ttl = m.opt.DefaultTTL
		}
		cur.ExpiresAt = m.now().Add(ttl)
		if err := tx.Upsert(ctx, cur); err != nil {
			return fmt.Errorf("failed to save lock %s: %w", key, err)
		}
		renewed = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return renewed.clone(), nil
}

// Status reports whether principal may edit (rt, id). It uses the same expiry rule as
// Acquire, so it is never more optimistic than acquisition.
func (m *Manager) Status(ctx context.Context, rt ResourceType, id int64, principal string) (*Status, error) {
	if err := m.checkType(rt); err != nil {
		return nil, err
	}
	key := Key{Type: rt, ID: id}
	cur, err := m.store.Find(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to find lock %s: %w", key, err)
	}
	return m.status(ctx, key, cur, principal), nil
}

// StatusMany is Status for a page of resources.
func (m *Manager) StatusMany(ctx context.Context, rt ResourceType, ids []int64, principal string) (map[int64]*Status, error) {
	if err := m.checkType(rt); err != nil {
		return nil, err
	}
	res := make(map[int64]*Status, len(ids))
	for _, id := range sortedIDs(ids) {
		key := Key{Type: rt, ID: id}
		cur, err := m.store.Find(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to find lock %s: %w", key, err)
		}
		res[id] = m.status(ctx, key, cur, principal)
	}
	return res, nil
}

func (m *Manager) status(ctx context.Context, key Key, cur *Lock, principal string) *Status {
	s := &Status{ResourceType: key.Type, ResourceID: key.ID, Editable: true}
	if cur == nil {
		return s
	}
	now := m.now()
	if cur.Expired(now) {
		if m.opt.LazyCleanup {
			m.cleanup(ctx, key)
		}
		return s
	}
	s.Locked = true
	s.Editable = cur.Holder == principal
	s.Holder = cur.Holder
	s.Purpose = cur.Purpose
	s.AcquiredAt = cur.AcquiredAt
	s.ExpiresAt = cur.ExpiresAt
	s.RemainingSeconds = cur.RemainingSeconds(now)
	return s
}

// cleanup 顺带删除过期记录，失败只记日志
func (m *Manager) cleanup(ctx context.Context, key Key) {
	err := m.store.InTx(ctx, key, func(ctx context.Context, tx IStoreTx) error {
		cur, err := tx.Find(ctx, key)
		if err != nil || cur == nil || cur.Valid(m.now()) {
			return err
		}
		_, err = tx.Delete(ctx, key)
		return err
	})
	if err != nil {
		m.logger.V(logger.LevelDebug).Info("cleanup expired lock failed", "key", key.String(), "err", err.Error())
	}
}

// SweepExpired deletes every expired lock and returns how many were removed.
func (m *Manager) SweepExpired(ctx context.Context) (int64, error) {
	n, err := m.store.DeleteAllExpired(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired locks: %w", err)
	}
	return n, nil
}

func sortedIDs(ids []int64) []int64 {
	sorted := make([]int64, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	n := 0
	for i, id := range sorted {
		if i > 0 && id == sorted[n-1] {
			continue
		}
		sorted[n] = id
		n++
	}
	return sorted[:n]
}
