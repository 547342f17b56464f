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

package main

import (
	"context"
	"log"
	"net/http"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/bytedance/editlock"
	"github.com/bytedance/editlock/example/biz/dispatch/dal"
	"github.com/bytedance/editlock/example/biz/dispatch/po"
	"github.com/bytedance/editlock/example/handler"
	"github.com/bytedance/editlock/example/handler/util"
	"github.com/bytedance/editlock/store/db"
)

func initPO(gdb *gorm.DB) {
	// 可选，edit_lock 表也可以用 editlockctl migrate 提前创建
	if err := db.AutoMigrate(gdb); err != nil {
		panic(err)
	}
	if err := gdb.AutoMigrate(&po.DashboardPO{}); err != nil {
		panic(err)
	}
}

func main() {
	dsn := "root:@tcp(localhost:3308)/my_db?parseTime=true&loc=UTC"
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		panic(err)
	}
	initPO(gdb)

	locks := editlock.NewManager(db.NewDBStore(gdb))
	// 过期的锁在查询时也会被清理，reaper 只是让表保持精简
	reaper := editlock.NewReaper(locks)
	reaper.Start(context.Background())
	defer reaper.Stop()

	service := handler.NewDispatchService(locks, dal.NewDAL(gdb))
	http.HandleFunc("/", util.Handler(service))
	log.Fatal(http.ListenAndServe(":8080", nil))
}
