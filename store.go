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
	"time"
)

// IStoreTx 锁记录的单行访问原语，不包含任何策略
type IStoreTx interface {
	// Find 按 key 点查，不存在时返回 nil, nil
	Find(ctx context.Context, key Key) (*Lock, error)
	// Upsert 写入 lock.Key() 对应的唯一一行，存在则整体覆盖
	Upsert(ctx context.Context, lock *Lock) error
	// Delete 删除记录，返回是否删除了数据，记录不存在不报错
	Delete(ctx context.Context, key Key) (bool, error)
}

// IStore 锁记录的持久化适配器，Manager 只通过该接口访问共享状态
type IStore interface {
	IStoreTx

	// InTx 以原子方式执行 fn：同一个 key 上的两个 InTx 不会交错执行，
	// fn 内的 Find -> 判断 -> Upsert 不存在竞态窗口。
	// 存储层的冲突重试只允许在这里实现
	InTx(ctx context.Context, key Key, fn func(ctx context.Context, tx IStoreTx) error) error

	// DeleteAllExpired 删除 expires_at < now 的记录，返回删除条数
	DeleteAllExpired(ctx context.Context, now time.Time) (int64, error)
}
