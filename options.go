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
	"time"

	"github.com/go-logr/logr"

	"github.com/bytedance/editlock/logger/stdr"
)

const defaultTTL = 300 * time.Second

var defaultLogger = stdr.NewStdr("edit_lock")

// Clock 时间源，测试中可替换以模拟锁过期
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

type Options struct {
	Clock         Clock
	Logger        logr.Logger
	DefaultTTL    time.Duration
	ResourceTypes []ResourceType
	// 查询状态时顺带删除已过期的记录
	LazyCleanup bool
	// WithLock 期间自动续期的间隔，0 表示不续期，必须小于 ttl
	RenewInterval time.Duration
}

type Option func(opt *Options)

func WithClock(c Clock) Option {
	return func(opt *Options) {
		opt.Clock = c
	}
}

func WithLogger(l logr.Logger) Option {
	return func(opt *Options) {
		opt.Logger = l
	}
}

func WithDefaultTTL(ttl time.Duration) Option {
	return func(opt *Options) {
		opt.DefaultTTL = ttl
	}
}

// WithResourceTypes replaces the set of resource types the manager accepts.
func WithResourceTypes(types ...ResourceType) Option {
	return func(opt *Options) {
		opt.ResourceTypes = types
	}
}

func WithLazyCleanup(enable bool) Option {
	return func(opt *Options) {
		opt.LazyCleanup = enable
	}
}

func WithRenewInterval(d time.Duration) Option {
	return func(opt *Options) {
		opt.RenewInterval = d
	}
}
