// Copyright 2025 The lispmap Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config describes the configuration of the map server.
package config

import (
	"io"
	"time"

	"github.com/lispmap/lispmap/mapserver/mapservice"
	"github.com/lispmap/lispmap/mapserver/mapsys"
	"github.com/lispmap/lispmap/mapserver/notify"
	"github.com/lispmap/lispmap/mapserver/smr"
	"github.com/lispmap/lispmap/pkg/log"
	"github.com/lispmap/lispmap/pkg/mapping"
	"github.com/lispmap/lispmap/pkg/private/serrors"
	"github.com/lispmap/lispmap/pkg/private/util"
	"github.com/lispmap/lispmap/private/config"
	"github.com/lispmap/lispmap/private/env"
	api "github.com/lispmap/lispmap/private/mgmtapi"
	"github.com/lispmap/lispmap/private/storage"
)

var _ config.Config = (*Config)(nil)

// Config is the map server configuration.
type Config struct {
	General   env.General      `toml:"general,omitempty"`
	Logging   log.Config       `toml:"log,omitempty"`
	Metrics   env.Metrics      `toml:"metrics,omitempty"`
	API       api.Config       `toml:"api,omitempty"`
	Tracing   env.Tracing      `toml:"tracing,omitempty"`
	MappingDB storage.DBConfig `toml:"mapping_db,omitempty"`
	MapServer MapServerConfig  `toml:"mapserver,omitempty"`
}

// InitDefaults initializes the default values for all parts of the config.
func (cfg *Config) InitDefaults() {
	config.InitAll(
		&cfg.General,
		&cfg.Logging,
		&cfg.Metrics,
		&cfg.API,
		&cfg.Tracing,
		cfg.MappingDB.WithDefault(
			storage.SetID(storage.SampleMappingDB, cfg.General.ID).Connection,
		),
		&cfg.MapServer,
	)
}

// Validate validates all parts of the config.
func (cfg *Config) Validate() error {
	return config.ValidateAll(
		&cfg.General,
		&cfg.Logging,
		&cfg.Metrics,
		&cfg.API,
		&cfg.MappingDB,
		&cfg.MapServer,
	)
}

// Sample generates a sample config file for the map server.
func (cfg *Config) Sample(dst io.Writer, path config.Path, _ config.CtxMap) {
	config.WriteSample(dst, path, config.CtxMap{config.ID: idSample},
		&cfg.General,
		&cfg.Logging,
		&cfg.Metrics,
		&cfg.API,
		&cfg.Tracing,
		config.OverrideName(
			config.FormatData(
				&cfg.MappingDB,
				storage.SetID(storage.SampleMappingDB, idSample).Connection,
			),
			"mapping_db",
		),
		&cfg.MapServer,
	)
}

// ConfigName is the toml key of the map server configuration.
func (cfg *Config) ConfigName() string {
	return "mapserver_config"
}

var _ config.Config = (*MapServerConfig)(nil)

// MapServerConfig holds the mapping system settings.
type MapServerConfig struct {
	// LookupPolicy is nb_first or nb_and_sb.
	LookupPolicy mapsys.LookupPolicy `toml:"lookup_policy,omitempty"`
	// MappingMerge enables merging the registrations of several xTRs.
	MappingMerge bool `toml:"mapping_merge,omitempty"`
	// RegistrationValidity is the lifetime of a registration without refresh.
	RegistrationValidity util.DurWrap `toml:"registration_validity,omitempty"`
	// Buckets is the number of timeout wheel buckets. 0 derives it from the
	// registration validity.
	Buckets         int            `toml:"buckets,omitempty"`
	NegativeTTL     util.DurWrap   `toml:"negative_ttl,omitempty"`
	AuthNegativeTTL util.DurWrap   `toml:"auth_negative_ttl,omitempty"`
	NegativeAction  mapping.Action `toml:"negative_action,omitempty"`
	// CleanInterval is the period of the expired registration cleaner of
	// the mapping database.
	CleanInterval util.DurWrap `toml:"clean_interval,omitempty"`
	// StoreTimeout bounds every mapping database write.
	StoreTimeout util.DurWrap `toml:"store_timeout,omitempty"`
	SMR          SMRConfig    `toml:"smr,omitempty"`
	Notify       NotifyConfig `toml:"notify,omitempty"`
}

func (cfg *MapServerConfig) InitDefaults() {
	initDurWrap(&cfg.RegistrationValidity, mapsys.DefaultRegistrationValidity)
	initDurWrap(&cfg.NegativeTTL, mapsys.DefaultNegativeTTL)
	initDurWrap(&cfg.AuthNegativeTTL, mapsys.DefaultAuthNegativeTTL)
	initDurWrap(&cfg.CleanInterval, storage.DefaultCleanInterval)
	initDurWrap(&cfg.StoreTimeout, mapservice.DefaultStoreTimeout)
	if cfg.Buckets == 0 {
		cfg.Buckets = mapsys.DefaultBuckets(cfg.RegistrationValidity.Duration)
	}
	if cfg.NegativeAction == mapping.NoAction {
		cfg.NegativeAction = mapsys.DefaultNegativeAction
	}
	config.InitAll(&cfg.SMR, &cfg.Notify)
}

func (cfg *MapServerConfig) Validate() error {
	if cfg.RegistrationValidity.Duration <= 0 {
		return serrors.New("registration_validity must be positive",
			"registration_validity", cfg.RegistrationValidity)
	}
	if cfg.CleanInterval.Duration <= 0 {
		return serrors.New("clean_interval must be positive",
			"clean_interval", cfg.CleanInterval)
	}
	core := cfg.Core()
	if err := core.Validate(); err != nil {
		return err
	}
	return config.ValidateAll(&cfg.SMR, &cfg.Notify)
}

func (cfg *MapServerConfig) Sample(dst io.Writer, path config.Path, ctx config.CtxMap) {
	config.WriteString(dst, mapServerSample)
	config.WriteSample(dst, path, ctx, &cfg.SMR, &cfg.Notify)
}

func (cfg *MapServerConfig) ConfigName() string {
	return "mapserver"
}

// Core returns the mapping system configuration.
func (cfg *MapServerConfig) Core() mapsys.Config {
	return mapsys.Config{
		LookupPolicy:         cfg.LookupPolicy,
		MappingMerge:         cfg.MappingMerge,
		RegistrationValidity: cfg.RegistrationValidity.Duration,
		Buckets:              cfg.Buckets,
		NegativeTTL:          cfg.NegativeTTL.Duration,
		AuthNegativeTTL:      cfg.AuthNegativeTTL.Duration,
		NegativeAction:       cfg.NegativeAction,
	}
}

var _ config.Config = (*SMRConfig)(nil)

// SMRConfig configures solicit map requests.
type SMRConfig struct {
	// Disabled turns off SMRs for changed mappings.
	Disabled   bool         `toml:"disabled,omitempty"`
	RetryCount int          `toml:"retry_count,omitempty"`
	Timeout    util.DurWrap `toml:"timeout,omitempty"`
}

func (cfg *SMRConfig) InitDefaults() {
	if cfg.RetryCount == 0 {
		cfg.RetryCount = smr.DefaultRetryCount
	}
	initDurWrap(&cfg.Timeout, smr.DefaultTimeout)
}

func (cfg *SMRConfig) Validate() error {
	if cfg.RetryCount < 0 {
		return serrors.New("retry_count must not be negative", "retry_count", cfg.RetryCount)
	}
	if cfg.Timeout.Duration <= 0 {
		return serrors.New("timeout must be positive", "timeout", cfg.Timeout)
	}
	return nil
}

func (cfg *SMRConfig) Sample(dst io.Writer, _ config.Path, _ config.CtxMap) {
	config.WriteString(dst, smrSample)
}

func (cfg *SMRConfig) ConfigName() string {
	return "smr"
}

// Notifier returns the SMR notifier configuration. Metrics and clock are
// left to the caller.
func (cfg *SMRConfig) Notifier() smr.Config {
	return smr.Config{
		Disabled:   cfg.Disabled,
		RetryCount: cfg.RetryCount,
		Timeout:    cfg.Timeout.Duration,
	}
}

var _ config.Config = (*NotifyConfig)(nil)

// NotifyConfig configures the mapping change event queue.
type NotifyConfig struct {
	QueueSize    int                   `toml:"queue_size,omitempty"`
	Overflow     notify.OverflowPolicy `toml:"overflow,omitempty"`
	BlockTimeout util.DurWrap          `toml:"block_timeout,omitempty"`
}

func (cfg *NotifyConfig) InitDefaults() {
	if cfg.QueueSize == 0 {
		cfg.QueueSize = notify.DefaultQueueSize
	}
	if cfg.Overflow == "" {
		cfg.Overflow = notify.DropOldest
	}
	initDurWrap(&cfg.BlockTimeout, notify.DefaultBlockTimeout)
}

func (cfg *NotifyConfig) Validate() error {
	if cfg.QueueSize <= 0 {
		return serrors.New("queue_size must be positive", "queue_size", cfg.QueueSize)
	}
	if _, err := notify.ParseOverflowPolicy(string(cfg.Overflow)); err != nil {
		return err
	}
	return nil
}

func (cfg *NotifyConfig) Sample(dst io.Writer, _ config.Path, _ config.CtxMap) {
	config.WriteString(dst, notifySample)
}

func (cfg *NotifyConfig) ConfigName() string {
	return "notify"
}

// Dispatcher returns the dispatcher configuration without metrics.
func (cfg *NotifyConfig) Dispatcher() notify.DispatcherConfig {
	return notify.DispatcherConfig{
		QueueSize:    cfg.QueueSize,
		Overflow:     cfg.Overflow,
		BlockTimeout: cfg.BlockTimeout.Duration,
	}
}

func initDurWrap(w *util.DurWrap, def time.Duration) {
	if w.Duration == 0 {
		w.Duration = def
	}
}
