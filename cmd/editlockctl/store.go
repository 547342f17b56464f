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
	"fmt"
	"time"

	"github.com/go-logr/logr"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/bytedance/editlock"
	"github.com/bytedance/editlock/config"
	"github.com/bytedance/editlock/store/db"
	"github.com/bytedance/editlock/store/mem"
	"github.com/bytedance/editlock/store/redis"
)

func openStore(cfg config.StoreConfig, logger logr.Logger) (editlock.IStore, func() error, error) {
	switch cfg.Driver {
	case "mysql", "sqlite":
		gdb, err := openDB(cfg)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, nil, err
		}
		store := db.NewDBStore(gdb, func(opt *db.Options) {
			opt.Logger = logger.WithName("db")
		})
		return store, sqlDB.Close, nil
	case "redis":
		cli := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			DB:       cfg.RedisDB,
			Password: cfg.RedisPassword,
			PoolSize: cfg.MaxOpenConnection,
		})
		store := redis.NewRedisStore(cli, func(opt *redis.Options) {
			opt.Prefix = cfg.RedisPrefix
			opt.Logger = logger.WithName("redis")
		})
		return store, cli.Close, nil
	case "memory":
		return mem.NewStore(), func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %s", cfg.Driver)
}

func openDB(cfg config.StoreConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("driver %s is not a database", cfg.Driver)
	}
	gdb, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s, err: %w", cfg.Driver, err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConnection)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConnection)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeInSec) * time.Second)
	if cfg.Driver == "sqlite" {
		// sqlite 只允许一个写连接
		sqlDB.SetMaxOpenConns(1)
	}
	return gdb, nil
}
