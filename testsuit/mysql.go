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

package testsuit

import (
	"fmt"
	"os"
	"sync/atomic"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type MySQLOption struct {
	NoLog bool
}

// MysqlEnabled 只有设置 MYSQL_TEST=true 时才跑依赖 MySQL 的用例
func MysqlEnabled() bool {
	return os.Getenv("MYSQL_TEST") == "true"
}

// InitMysql 启动测试数据库
// 前提: 在根目录执行 docker-compose up 命令
func InitMysql(opts ...MySQLOption) *gorm.DB {
	dsn := "root:@tcp(mysql:3306)/my_db?parseTime=true&loc=UTC"
	if os.Getenv("LOCAL_TEST") == "true" {
		dsn = "root:@tcp(localhost:3308)/my_db?parseTime=true&loc=UTC"
	}
	db, err := gorm.Open(mysql.Open(dsn), gormConfig(opts...))
	if err != nil {
		panic(err)
	}
	return db
}

var sqliteSeq int64

// InitSqlite 打开一个独立的内存数据库。只保留一个连接，事务之间天然串行
func InitSqlite(opts ...MySQLOption) *gorm.DB {
	name := fmt.Sprintf("file:edit_lock_%d?mode=memory&cache=shared", atomic.AddInt64(&sqliteSeq, 1))
	db, err := gorm.Open(sqlite.Open(name), gormConfig(opts...))
	if err != nil {
		panic(err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		panic(err)
	}
	sqlDB.SetMaxOpenConns(1)
	return db
}

func gormConfig(opts ...MySQLOption) *gorm.Config {
	cfg := &gorm.Config{TranslateError: true}
	for _, o := range opts {
		if o.NoLog {
			cfg.Logger = gormlogger.Default.LogMode(gormlogger.Silent)
		}
	}
	return cfg
}
