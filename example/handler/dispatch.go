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

package handler

import (
	"context"
	"time"

	"github.com/bytedance/editlock"
	"github.com/bytedance/editlock/example/biz/dispatch/dal"
	"github.com/bytedance/editlock/example/biz/dispatch/po"
)

const (
	// 编辑页保持打开的时长
	editTTL = 10 * time.Minute
	// 批量操作只在一次请求内持有锁
	bulkTTL = 30 * time.Second
)

// DispatchServiceImpl 配送后台的订单接口，所有写操作都先拿编辑锁
type DispatchServiceImpl struct {
	locks *editlock.Manager
	dal   *dal.DAL
}

func NewDispatchService(locks *editlock.Manager, d *dal.DAL) *DispatchServiceImpl {
	return &DispatchServiceImpl{locks: locks, dal: d}
}

func toLockInfo(s *editlock.Status) *LockInfo {
	return &LockInfo{
		Locked:           s.Locked,
		Editable:         s.Editable,
		Holder:           s.Holder,
		Purpose:          string(s.Purpose),
		RemainingSeconds: s.RemainingSeconds,
	}
}

func (s *DispatchServiceImpl) CreateDashboard(ctx context.Context, req *CreateDashboardRequest) (*CreateDashboardResponse, error) {
	p := &po.DashboardPO{Customer: req.Customer, Address: req.Address, Status: "NEW"}
	if err := s.dal.CreateDashboard(ctx, p); err != nil {
		return nil, err
	}
	return &CreateDashboardResponse{ID: p.ID}, nil
}

// OpenDashboard 打开编辑页，锁一直保持到 CloseDashboard 或者过期
func (s *DispatchServiceImpl) OpenDashboard(ctx context.Context, req *OpenDashboardRequest) (*OpenDashboardResponse, error) {
	l, err := s.locks.Acquire(ctx, editlock.ResourceOrder, req.ID, req.Operator, editlock.PurposeEdit, editTTL)
	if err != nil {
		return nil, err
	}
	d, err := s.dal.GetDashboard(ctx, req.ID)
	if err != nil {
		if _, rerr := s.locks.Release(ctx, editlock.ResourceOrder, req.ID, req.Operator); rerr != nil {
			return nil, rerr
		}
		return nil, err
	}
	return &OpenDashboardResponse{
		Dashboard: d,
		Lock: &LockInfo{
			Locked:           true,
			Editable:         true,
			Holder:           l.Holder,
			Purpose:          string(l.Purpose),
			RemainingSeconds: int(editTTL / time.Second),
		},
	}, nil
}

// SaveDashboard 保存时续期编辑锁，锁已被别人拿走则拒绝保存
func (s *DispatchServiceImpl) SaveDashboard(ctx context.Context, req *SaveDashboardRequest) (*SaveDashboardResponse, error) {
	if _, err := s.locks.Acquire(ctx, editlock.ResourceOrder, req.ID, req.Operator, editlock.PurposeEdit, editTTL); err != nil {
		return nil, err
	}
	if err := s.dal.UpdateDashboard(ctx, req.ID, dal.UpdateDashboardOpt{
		Customer: req.Customer,
		Address:  req.Address,
		Remark:   req.Remark,
	}); err != nil {
		return nil, err
	}
	return &SaveDashboardResponse{}, nil
}

func (s *DispatchServiceImpl) CloseDashboard(ctx context.Context, req *CloseDashboardRequest) (*CloseDashboardResponse, error) {
	ok, err := s.locks.Release(ctx, editlock.ResourceOrder, req.ID, req.Operator)
	if err != nil {
		return nil, err
	}
	return &CloseDashboardResponse{Released: ok}, nil
}

func (s *DispatchServiceImpl) GetLockStatus(ctx context.Context, req *GetLockStatusRequest) (*GetLockStatusResponse, error) {
	res, err := s.locks.StatusMany(ctx, editlock.ResourceOrder, req.IDs, req.Operator)
	if err != nil {
		return nil, err
	}
	resp := &GetLockStatusResponse{Locks: make(map[int64]*LockInfo, len(res))}
	for id, st := range res {
		resp.Locks[id] = toLockInfo(st)
	}
	return resp, nil
}

func (s *DispatchServiceImpl) BulkUpdateStatus(ctx context.Context, req *BulkUpdateStatusRequest) (*BulkUpdateStatusResponse, error) {
	err := s.locks.WithLocks(ctx, editlock.ResourceOrder, req.IDs, req.Operator, editlock.PurposeStatus, bulkTTL,
		func(ctx context.Context, locks []*editlock.Lock) error {
			return s.dal.UpdateStatus(ctx, req.IDs, req.Status)
		})
	if err != nil {
		return nil, err
	}
	return &BulkUpdateStatusResponse{}, nil
}

func (s *DispatchServiceImpl) BulkAssign(ctx context.Context, req *BulkAssignRequest) (*BulkAssignResponse, error) {
	err := s.locks.WithLocks(ctx, editlock.ResourceOrder, req.IDs, req.Operator, editlock.PurposeAssign, bulkTTL,
		func(ctx context.Context, locks []*editlock.Lock) error {
			return s.dal.Assign(ctx, req.IDs, req.Assignee)
		})
	if err != nil {
		return nil, err
	}
	return &BulkAssignResponse{}, nil
}

func (s *DispatchServiceImpl) BulkDelete(ctx context.Context, req *BulkDeleteRequest) (*BulkDeleteResponse, error) {
	err := s.locks.WithLocks(ctx, editlock.ResourceOrder, req.IDs, req.Operator, editlock.PurposeEdit, bulkTTL,
		func(ctx context.Context, locks []*editlock.Lock) error {
			return s.dal.DeleteDashboards(ctx, req.IDs)
		})
	if err != nil {
		return nil, err
	}
	return &BulkDeleteResponse{}, nil
}
