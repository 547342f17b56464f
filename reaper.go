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
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	"github.com/robfig/cron"

	"github.com/bytedance/editlock/logger"
)

// 默认每 5 分钟清理一次过期锁
const defaultReapCron = "@every 5m"

type ReaperOptions struct {
	Cron   string
	Logger logr.Logger
}

type ReaperOption func(opt *ReaperOptions)

func WithReapCron(spec string) ReaperOption {
	return func(opt *ReaperOptions) {
		opt.Cron = spec
	}
}

func WithReaperLogger(l logr.Logger) ReaperOption {
	return func(opt *ReaperOptions) {
		opt.Logger = l
	}
}

// Reaper 定时删除过期锁，只用于控制表的大小；锁是否有效始终在读取时判断，不依赖 Reaper
type Reaper struct {
	manager *Manager
	opt     ReaperOptions
	logger  logr.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	started bool
}

func NewReaper(m *Manager, options ...ReaperOption) *Reaper {
	opt := ReaperOptions{
		Cron:   defaultReapCron,
		Logger: m.logger.WithName("reaper"),
	}
	for _, o := range options {
		o(&opt)
	}
	if _, err := cron.Parse(opt.Cron); err != nil {
		panic(fmt.Sprintf("cron expression %s is invalid", opt.Cron))
	}
	return &Reaper{manager: m, opt: opt, logger: opt.Logger}
}

// RunOnce sweeps expired locks immediately.
func (r *Reaper) RunOnce(ctx context.Context) (int64, error) {
	n, err := r.manager.SweepExpired(ctx)
	if err != nil {
		r.logger.Error(err, "sweep expired locks failed")
		return 0, err
	}
	if n > 0 {
		r.logger.Info("expired locks removed", "count", n)
	} else {
		r.logger.V(logger.LevelDebug).Info("no expired locks")
	}
	return n, nil
}

// Start schedules sweeps until Stop is called or ctx is done. Calling it again is a no-op.
func (r *Reaper) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true

	r.cron = cron.New()
	_ = r.cron.AddFunc(r.opt.Cron, func() {
		if ctx.Err() != nil {
			return
		}
		_, _ = r.RunOnce(ctx)
	})
	r.cron.Start()

	go func() {
		<-ctx.Done()
		r.Stop()
	}()
}

func (r *Reaper) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		r.cron.Stop()
		r.cron = nil
	}
}
