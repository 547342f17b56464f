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
	"time"

	"github.com/bytedance/editlock"
)

// LockPO 锁记录存储模型
/*
CREATE TABLE `edit_lock` (
   `id` bigint unsigned NOT NULL AUTO_INCREMENT,
   `resource_type` varchar(32) NOT NULL,
   `resource_id` bigint NOT NULL,
   `holder` varchar(255) NOT NULL,
   `purpose` varchar(16) DEFAULT NULL,
   `token` varchar(32) DEFAULT NULL,
   `acquired_at` datetime(3) NOT NULL,
   `expires_at` datetime(3) NOT NULL,
   `timeout_seconds` bigint DEFAULT NULL,
   `created_at` datetime(3) DEFAULT NULL,
   `updated_at` datetime(3) DEFAULT NULL,
   PRIMARY KEY (`id`),
   UNIQUE KEY `uk_edit_lock_resource` (`resource_type`,`resource_id`),
   KEY `idx_edit_lock_expires_at` (`expires_at`)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
*/
type LockPO struct {
	ID           uint   `gorm:"primarykey;AUTO_INCREMENT"`
	ResourceType string `gorm:"column:resource_type;type:varchar(32);not null;uniqueIndex:uk_edit_lock_resource,priority:1"`
	ResourceID   int64  `gorm:"column:resource_id;not null;uniqueIndex:uk_edit_lock_resource,priority:2"`
	Holder       string `gorm:"column:holder;type:varchar(255);not null"`
	Purpose      string `gorm:"column:purpose;type:varchar(16)"`
	// 每次新建或回收锁时生成，续期不变
	Token          string    `gorm:"column:token;type:varchar(32)"`
	AcquiredAt     time.Time `gorm:"column:acquired_at;not null"`
	ExpiresAt      time.Time `gorm:"column:expires_at;not null;index:idx_edit_lock_expires_at"`
	TimeoutSeconds int       `gorm:"column:timeout_seconds"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (LockPO) TableName() string {
	return "edit_lock"
}

func lockToPO(l *editlock.Lock) *LockPO {
	return &LockPO{
		ResourceType:   string(l.ResourceType),
		ResourceID:     l.ResourceID,
		Holder:         l.Holder,
		Purpose:        string(l.Purpose),
		Token:          l.Token,
		AcquiredAt:     l.AcquiredAt.UTC(),
		ExpiresAt:      l.ExpiresAt.UTC(),
		TimeoutSeconds: l.TimeoutSeconds,
	}
}

func poToLock(po *LockPO) *editlock.Lock {
	return &editlock.Lock{
		ResourceType:   editlock.ResourceType(po.ResourceType),
		ResourceID:     po.ResourceID,
		Holder:         po.Holder,
		Purpose:        editlock.Purpose(po.Purpose),
		Token:          po.Token,
		AcquiredAt:     po.AcquiredAt.UTC(),
		ExpiresAt:      po.ExpiresAt.UTC(),
		TimeoutSeconds: po.TimeoutSeconds,
	}
}
