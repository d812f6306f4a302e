package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/bugsnag/panicwrap"
	"go.uber.org/zap"

	"github.com/renanvieira/wire-img/internal/api"
	"github.com/renanvieira/wire-img/internal/configure"
	"github.com/renanvieira/wire-img/internal/container"
	"github.com/renanvieira/wire-img/internal/global"
	"github.com/renanvieira/wire-img/internal/health"
	"github.com/renanvieira/wire-img/internal/ingest"
	"github.com/renanvieira/wire-img/internal/monitoring"
	"github.com/renanvieira/wire-img/internal/processor"
	"github.com/renanvieira/wire-img/internal/storage"
	"github.com/renanvieira/wire-img/internal/svc/prometheus"
	"github.com/renanvieira/wire-img/internal/templates"
	"github.com/renanvieira/wire-img/internal/transcoder"
)

var (
	Version = "development"
	Unix    = ""
	Time    = "unknown"
	User    = "unknown"
)

func init() {
	if i, err := strconv.Atoi(Unix); err == nil {
		Time = time.Unix(int64(i), 0).Format(time.RFC3339)
	}
}

func main() {
	config := configure.New()

	exitStatus, err := panicwrap.BasicWrap(func(s string) {
		zap.S().Error("panic: ", s)
	})
	if err != nil {
		zap.S().Errorw("failed to setup panic handler: ",
			"error", err,
		)
		os.Exit(2)
	}

	if exitStatus >= 0 {
		os.Exit(exitStatus)
	}

	if !config.NoHeader {
		zap.S().Info("wire-img")
		zap.S().Infof("Version: %s", Version)
		zap.S().Infof("build.Time: %s", Time)
		zap.S().Infof("build.User: %s", User)
	}

	zap.S().Debug("MaxProcs: ", runtime.GOMAXPROCS(0))

	settings := imageSettings(config)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	gCtx, cancel := global.WithCancel(global.New(context.Background(), config))
	gCtx.Inst().Prometheus = prometheus.New(prometheus.Options{
		Labels: config.Monitoring.Labels.ToPrometheus(),
	})

	transcoder.Init()
	defer transcoder.Shutdown()

	store, err := storage.NewDisk(config.Image.OutputPath)
	if err != nil {
		zap.S().Fatalw("failed to initialize storage",
			"error", err,
		)
	}

	var archive *storage.BucketStore
	if config.Image.ArchivePath != "" {
		archive, err = storage.NewBucketStore(config.Image.ArchivePath)
		if err != nil {
			zap.S().Fatalw("failed to initialize archive storage",
				"error", err,
			)
		}
	}

	enc := transcoder.New()

	watcher, err := ingest.New(ingest.Options{
		InputPath:      config.Image.InputPath,
		Store:          store,
		Archive:        archive,
		Encoder:        enc,
		StorageFormat:  settings.StorageFormat,
		QueueSize:      config.Ingest.QueueSize,
		DeleteOriginal: config.Ingest.DeleteOriginal,
		ScanOnStart:    config.Ingest.ScanOnStart,
	})
	if err != nil {
		zap.S().Fatalw("failed to initialize ingestion watcher",
			"error", err,
		)
	}

	proc := processor.New(store, enc, settings)

	wg := sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := watcher.Run(gCtx); err != nil {
			zap.S().Errorw("ingestion watcher stopped",
				"error", err,
			)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-api.New(gCtx, proc, settings.StorageFormat.Extension())
	}()

	if gCtx.Config().Health.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-health.New(gCtx)
		}()
	}
	if gCtx.Config().Monitoring.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-monitoring.New(gCtx)
		}()
	}

	done := make(chan struct{})
	go func() {
		<-sig
		cancel()
		go func() {
			select {
			case <-time.After(time.Minute):
			case <-sig:
			}
			zap.S().Fatal("force shutdown")
		}()

		zap.S().Info("shutting down")

		wg.Wait()

		close(done)
	}()

	zap.S().Info("running")

	<-done

	zap.S().Info("shutdown")
	os.Exit(0)
}

// imageSettings parses the format and template sections of the
// configuration into their domain types. Any unparsable value is fatal.
func imageSettings(config *configure.Config) processor.Settings {
	settings := processor.Settings{}

	storageFormat, ok := container.ParseEncoding(config.Image.StorageFormat)
	if !ok {
		zap.S().Fatalw("config: unknown storage format",
			"format", config.Image.StorageFormat,
		)
	}
	settings.StorageFormat = storageFormat

	for _, f := range config.Image.Formats {
		enc, ok := container.ParseEncoding(f)
		if !ok {
			zap.S().Fatalw("config: unknown image format",
				"format", f,
			)
		}

		settings.AllowedFormats = append(settings.AllowedFormats, enc)
	}

	for _, t := range config.Templates {
		tpl, err := templates.New(t.Location, t.Name, t.Size[0], t.Size[1], t.Format)
		if err != nil {
			zap.S().Fatalw("config: invalid template",
				"error", err,
			)
		}

		settings.Templates = append(settings.Templates, tpl)
	}

	return settings
}
