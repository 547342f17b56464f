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
	"time"
)

var ErrResourceLocked = fmt.Errorf("resource locked")
var ErrNotHolder = fmt.Errorf("lock not held by principal")
var ErrInvalidArgument = fmt.Errorf("invalid argument")
var ErrLockLost = fmt.Errorf("lock lost")

// ConflictError 资源被其他人持有有效锁时返回，调用方需要将持有人与剩余时间展示给用户
type ConflictError struct {
	ResourceType     ResourceType
	ResourceID       int64
	Holder           string
	Purpose          Purpose
	ExpiresAt        time.Time
	RemainingSeconds int
}

func newConflictError(l *Lock, now time.Time) *ConflictError {
	return &ConflictError{
		ResourceType:     l.ResourceType,
		ResourceID:       l.ResourceID,
		Holder:           l.Holder,
		Purpose:          l.Purpose,
		ExpiresAt:        l.ExpiresAt,
		RemainingSeconds: l.RemainingSeconds(now),
	}
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s/%d is locked by %s for %s, %ds remaining",
		e.ResourceType, e.ResourceID, e.Holder, e.Purpose, e.RemainingSeconds)
}

func (e *ConflictError) Unwrap() error {
	return ErrResourceLocked
}

// NotHolderError is the refusal of ReleaseStrict.
type NotHolderError struct {
	ResourceType ResourceType
	ResourceID   int64
	Principal    string
	Holder       string
}

func (e *NotHolderError) Error() string {
	return fmt.Sprintf("%s cannot release %s/%d: held by %s", e.Principal, e.ResourceType, e.ResourceID, e.Holder)
}

func (e *NotHolderError) Unwrap() error {
	return ErrNotHolder
}

func invalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
