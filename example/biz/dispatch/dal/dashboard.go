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

package dal

import (
	"context"

	"gorm.io/gorm"

	"github.com/bytedance/editlock/example/biz/dispatch/po"
)

type DAL struct {
	db *gorm.DB
}

func NewDAL(db *gorm.DB) *DAL {
	return &DAL{db: db}
}

func (d DAL) GetDashboard(ctx context.Context, id int64) (*po.DashboardPO, error) {
	p := &po.DashboardPO{}
	if err := d.db.WithContext(ctx).First(p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return p, nil
}

func (d DAL) CreateDashboard(ctx context.Context, p *po.DashboardPO) error {
	return d.db.WithContext(ctx).Create(p).Error
}

type UpdateDashboardOpt struct {
	Customer *string
	Address  *string
	Remark   *string
}

func (d DAL) UpdateDashboard(ctx context.Context, id int64, opt UpdateDashboardOpt) error {
	fields := map[string]interface{}{}
	if opt.Customer != nil {
		fields["customer"] = *opt.Customer
	}
	if opt.Address != nil {
		fields["address"] = *opt.Address
	}
	if opt.Remark != nil {
		fields["remark"] = *opt.Remark
	}
	if len(fields) == 0 {
		return nil
	}
	return d.db.WithContext(ctx).Model(&po.DashboardPO{}).Where("id = ?", id).Updates(fields).Error
}

func (d DAL) UpdateStatus(ctx context.Context, ids []int64, status string) error {
	return d.db.WithContext(ctx).Model(&po.DashboardPO{}).Where("id IN ?", ids).Update("status", status).Error
}

func (d DAL) Assign(ctx context.Context, ids []int64, assignee string) error {
	return d.db.WithContext(ctx).Model(&po.DashboardPO{}).Where("id IN ?", ids).Update("assignee", assignee).Error
}

func (d DAL) DeleteDashboards(ctx context.Context, ids []int64) error {
	return d.db.WithContext(ctx).Where("id IN ?", ids).Delete(&po.DashboardPO{}).Error
}
