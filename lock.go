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
	"fmt"
	"math"
	"time"
)

// ResourceType 被锁定的业务实体类型
type ResourceType string

const (
	ResourceOrder  ResourceType = "ORDER"
	ResourceNotice ResourceType = "NOTICE"
	ResourceUser   ResourceType = "USER"
)

// Purpose 描述加锁所保护的编辑类型，仅作展示用，同一个资源无论 purpose 如何只有一把锁
type Purpose string

const (
	PurposeEdit   Purpose = "EDIT"
	PurposeStatus Purpose = "STATUS"
	PurposeAssign Purpose = "ASSIGN"
	PurposeRemark Purpose = "REMARK"
)

// Key identifies a lock. At most one Lock exists per Key.
type Key struct {
	Type ResourceType
	ID   int64
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d", k.Type, k.ID)
}

// Lock grants its Holder exclusive, time-bounded editing rights over one resource.
type Lock struct {
	ResourceType ResourceType
	ResourceID   int64
	Holder       string
	Purpose      Purpose
	// Token 在新建或回收时重新生成，续期时保持不变。
	// Handle 释放时校验 token，避免误删锁过期后被重新获取的新锁
	Token          string
	AcquiredAt     time.Time
	ExpiresAt      time.Time
	TimeoutSeconds int
}

func (l *Lock) Key() Key {
	return Key{Type: l.ResourceType, ID: l.ResourceID}
}

// Expired reports whether the lock is logically free at now.
func (l *Lock) Expired(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}

func (l *Lock) Valid(now time.Time) bool {
	return !l.Expired(now)
}

func (l *Lock) HeldBy(principal string, now time.Time) bool {
	return l.Valid(now) && l.Holder == principal
}

// Remaining returns the time left before expiry, zero once expired.
func (l *Lock) Remaining(now time.Time) time.Duration {
	if l.Expired(now) {
		return 0
	}
	return l.ExpiresAt.Sub(now)
}

// RemainingSeconds rounds up, so a valid lock never reports 0.
func (l *Lock) RemainingSeconds(now time.Time) int {
	return int(math.Ceil(l.Remaining(now).Seconds()))
}

func (l *Lock) clone() *Lock {
	c := *l
	return &c
}

// Status is the editability of one resource as seen by one principal.
type Status struct {
	ResourceType     ResourceType
	ResourceID       int64
	Locked           bool
	Editable         bool
	Holder           string
	Purpose          Purpose
	AcquiredAt       time.Time
	ExpiresAt        time.Time
	RemainingSeconds int
}

// ReleaseResult 批量释放结果
type ReleaseResult struct {
	Released []int64
	Refused  []int64
}
