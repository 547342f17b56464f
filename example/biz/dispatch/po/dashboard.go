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

package po

import (
	"time"

	"gorm.io/gorm"
)

// DashboardPO 配送订单，后台称为 dashboard
type DashboardPO struct {
	ID        int64  `gorm:"primarykey"`
	Customer  string `gorm:"type:varchar(128)"`
	Address   string `gorm:"type:varchar(512)"`
	Status    string `gorm:"type:varchar(32)"`
	Assignee  string `gorm:"type:varchar(64)"`
	Remark    string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (d *DashboardPO) TableName() string {
	return "example_dashboard"
}
