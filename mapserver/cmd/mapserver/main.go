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

package main

import (
	"context"
	"errors"
	"net/http"
	_ "net/http/pprof"
	"os"
	"time"

	"github.com/opentracing/opentracing-go"
	"golang.org/x/sync/errgroup"

	"github.com/lispmap/lispmap/mapserver/config"
	"github.com/lispmap/lispmap/mapserver/mapservice"
	"github.com/lispmap/lispmap/mapserver/mapsys"
	api "github.com/lispmap/lispmap/mapserver/mgmtapi"
	"github.com/lispmap/lispmap/mapserver/notify"
	"github.com/lispmap/lispmap/mapserver/smr"
	"github.com/lispmap/lispmap/mapserver/static"
	"github.com/lispmap/lispmap/pkg/log"
	"github.com/lispmap/lispmap/pkg/private/processmetrics"
	"github.com/lispmap/lispmap/pkg/private/serrors"
	"github.com/lispmap/lispmap/private/app/launcher"
	"github.com/lispmap/lispmap/private/periodic"
	"github.com/lispmap/lispmap/private/storage"
)

var globalCfg config.Config

func main() {
	application := launcher.Application{
		TOMLConfig: &globalCfg,
		ShortName:  "LISP Map Server",
		Main:       realMain,
	}
	application.Run()
}

func realMain(ctx context.Context) error {
	if err := processmetrics.Init(); err != nil {
		log.Error("Could not initialize process metrics", "err", err)
	}
	tracer, tracerCloser, err := globalCfg.Tracing.NewTracer(globalCfg.General.ID)
	if err != nil {
		return serrors.Wrap("initializing tracer", err)
	}
	defer tracerCloser.Close()
	opentracing.SetGlobalTracer(tracer)

	msCfg := &globalCfg.MapServer
	db, err := storage.NewMappingStorage(globalCfg.MappingDB, storage.CleanerConfig{
		Validity: msCfg.RegistrationValidity.Duration,
		Interval: msCfg.CleanInterval.Duration,
	})
	if err != nil {
		return serrors.Wrap("initializing mapping storage", err)
	}
	defer db.Close()

	smrCfg := msCfg.SMR.Notifier()
	smrCfg.Metrics = smr.NewMetrics()
	smrNotifier, err := smr.New(logSender{}, smrCfg)
	if err != nil {
		return serrors.Wrap("initializing SMR notifier", err)
	}
	events := api.NewEventHub(api.DefaultClientBuffer)
	defer events.Close()

	dispatcherCfg := msCfg.Notify.Dispatcher()
	dispatcherCfg.Metrics = notify.NewMetrics()
	dispatcher := notify.NewDispatcher(notify.Tee{smrNotifier, events}, dispatcherCfg)

	svc, err := mapservice.New(mapservice.Config{
		Core:         msCfg.Core(),
		DB:           db,
		Notifier:     dispatcher,
		Acker:        smrNotifier,
		Metrics:      mapsys.NewMetrics(),
		StoreTimeout: msCfg.StoreTimeout.Duration,
	})
	if err != nil {
		return serrors.Wrap("initializing mapping service", err)
	}
	if err := svc.Restore(ctx); err != nil {
		return serrors.Wrap("restoring mappings", err)
	}
	if err := loadStatic(ctx, svc); err != nil {
		return err
	}

	g, errCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer log.HandlePanic()
		return dispatcher.Run(errCtx)
	})

	var tasks []*periodic.Runner
	defer func() {
		for _, t := range tasks {
			t.Kill()
		}
	}()
	tasks = append(tasks, periodic.Start(expirer(svc.Core()),
		expiryPeriod(msCfg.Core()), msCfg.RegistrationValidity.Duration))
	if !smrCfg.Disabled {
		tasks = append(tasks, periodic.Start(smrNotifier.Retrier(),
			smrCfg.Timeout/2, smrCfg.Timeout))
	}
	log.Info("Started periodic tasks")

	if globalCfg.API.Addr != "" {
		server := api.Server{
			Service:  svc,
			Events:   events,
			LogLevel: log.ConsoleLevel,
		}
		log.Info("Exposing API", "addr", globalCfg.API.Addr)
		s := http.Server{
			Addr:              globalCfg.API.Addr,
			Handler:           server.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			defer log.HandlePanic()
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return serrors.Wrap("serving management API", err)
			}
			return nil
		})
		g.Go(func() error {
			defer log.HandlePanic()
			<-errCtx.Done()
			return s.Close()
		})
	}

	g.Go(func() error {
		defer log.HandlePanic()
		return globalCfg.Metrics.ServePrometheus(errCtx)
	})
	return g.Wait()
}

// loadStatic installs the static mappings file of the config directory. A
// missing file is not an error.
func loadStatic(ctx context.Context, svc *mapservice.Service) error {
	path := globalCfg.General.StaticMappings()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		log.Info("No static mappings file found", "path", path)
		return nil
	}
	f, err := static.Load(path)
	if err != nil {
		return serrors.Wrap("loading static mappings", err, "path", path)
	}
	return f.Apply(ctx, svc)
}

func expirer(core *mapsys.System) periodic.Task {
	return periodic.Func{
		TaskName: "registration_expirer",
		Task: func(ctx context.Context) {
			n, err := core.RemoveExpired(ctx)
			if err != nil {
				log.FromCtx(ctx).Error("Removing expired registrations", "err", err)
				return
			}
			if n > 0 {
				log.FromCtx(ctx).Debug("Removed expired registrations", "count", n)
			}
		},
	}
}

// expiryPeriod is the rotation period of the timeout wheel.
func expiryPeriod(cfg mapsys.Config) time.Duration {
	cfg.InitDefaults()
	return cfg.RegistrationValidity / time.Duration(cfg.Buckets-1)
}
