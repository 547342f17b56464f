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

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const EnvPrefix = "EDITLOCK"

type StoreConfig struct {
	// mysql | sqlite | redis | memory
	Driver string `mapstructure:"driver" yaml:"driver" validate:"oneof=mysql sqlite redis memory"`
	DSN    string `mapstructure:"dsn" yaml:"dsn" validate:"required_if=Driver mysql,required_if=Driver sqlite"`

	RedisAddr     string `mapstructure:"redis_addr" yaml:"redis_addr" validate:"required_if=Driver redis"`
	RedisDB       int    `mapstructure:"redis_db" yaml:"redis_db" validate:"gte=0"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password"`
	RedisPrefix   string `mapstructure:"redis_prefix" yaml:"redis_prefix"`

	MaxIdleConnection    int `mapstructure:"max_idle_connections" yaml:"max_idle_connections"`
	MaxOpenConnection    int `mapstructure:"max_open_connections" yaml:"max_open_connections"`
	ConnMaxLifetimeInSec int `mapstructure:"connection_max_lifetime_sec" yaml:"connection_max_lifetime_sec"`
}

type LockConfig struct {
	DefaultTTL    time.Duration `mapstructure:"default_ttl" yaml:"default_ttl" validate:"gt=0"`
	ResourceTypes []string      `mapstructure:"resource_types" yaml:"resource_types" validate:"min=1,dive,required,uppercase"`
	LazyCleanup   bool          `mapstructure:"lazy_cleanup" yaml:"lazy_cleanup"`
}

type ReaperConfig struct {
	Cron     string `mapstructure:"cron" yaml:"cron" validate:"required"`
	LockFile string `mapstructure:"lock_file" yaml:"lock_file" validate:"required"`
}

type Config struct {
	Store  StoreConfig  `mapstructure:"store" yaml:"store"`
	Lock   LockConfig   `mapstructure:"lock" yaml:"lock"`
	Reaper ReaperConfig `mapstructure:"reaper" yaml:"reaper"`
	// 日志详细程度，对应 logger.LevelXXX
	Verbosity int `mapstructure:"verbosity" yaml:"verbosity" validate:"gte=0"`
}

func (s *StoreConfig) SetupDefault() {
	if s.Driver == "" {
		s.Driver = "memory"
	}
	if s.RedisPrefix == "" {
		s.RedisPrefix = "editlock"
	}
	if s.MaxIdleConnection <= 0 {
		s.MaxIdleConnection = 10
	}
	if s.MaxOpenConnection <= 0 {
		s.MaxOpenConnection = 10
	}
	if s.ConnMaxLifetimeInSec <= 0 {
		s.ConnMaxLifetimeInSec = 60
	}
}

func (l *LockConfig) SetupDefault() {
	if l.DefaultTTL <= 0 {
		l.DefaultTTL = 300 * time.Second
	}
	if len(l.ResourceTypes) == 0 {
		l.ResourceTypes = []string{"ORDER", "NOTICE", "USER"}
	}
}

func (r *ReaperConfig) SetupDefault() {
	if r.Cron == "" {
		r.Cron = "@every 5m"
	}
	if r.LockFile == "" {
		r.LockFile = "/tmp/editlock-reaper.lock"
	}
}

func (c *Config) SetupDefault() {
	c.Store.SetupDefault()
	c.Lock.SetupDefault()
	c.Reaper.SetupDefault()
}

// NewViper 返回读取 EDITLOCK_* 环境变量的 viper 实例，如 EDITLOCK_STORE_DSN
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("lock.lazy_cleanup", true)
	// AutomaticEnv 只对已知的 key 生效
	for _, key := range []string{
		"store.driver", "store.dsn", "store.redis_addr", "store.redis_db", "store.redis_password",
		"store.redis_prefix", "store.max_idle_connections", "store.max_open_connections",
		"store.connection_max_lifetime_sec", "lock.default_ttl", "lock.resource_types",
		"reaper.cron", "reaper.lock_file", "verbosity",
	} {
		_ = v.BindEnv(key)
	}
	return v
}

// Load 读取配置文件（可选），填充默认值并校验
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s, err: %w", file, err)
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config, err: %w", err)
	}
	cfg.SetupDefault()
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config, err: %w", err)
	}
	return cfg, nil
}
