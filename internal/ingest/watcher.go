package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/renanvieira/wire-img/internal/container"
	"github.com/renanvieira/wire-img/internal/global"
	"github.com/renanvieira/wire-img/internal/storage"
	"github.com/renanvieira/wire-img/internal/transcoder"
)

const (
	readRetryDelay = 25 * time.Millisecond
	readRetryMax   = 200
)

// Watcher ingests images dropped into the input directory: each new file
// is transcoded to the canonical storage format and written to the output
// store. Notifications flow through a bounded queue; when the queue is
// full new notifications are dropped rather than blocking the OS watch.
// A single consumer processes events strictly in arrival order.
type Watcher struct {
	fsw    *fsnotify.Watcher
	events chan fsnotify.Event

	input   string
	store   *storage.Disk
	archive *storage.BucketStore
	enc     transcoder.Encoder
	format  container.Encoding

	deleteOriginal bool
	scanOnStart    bool
}

type Options struct {
	InputPath      string
	Store          *storage.Disk
	Archive        *storage.BucketStore // optional originals archive
	Encoder        transcoder.Encoder
	StorageFormat  container.Encoding
	QueueSize      int
	DeleteOriginal bool
	ScanOnStart    bool
}

func New(o Options) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	queueSize := o.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}

	return &Watcher{
		fsw:            fsw,
		events:         make(chan fsnotify.Event, queueSize),
		input:          o.InputPath,
		store:          o.Store,
		archive:        o.Archive,
		enc:            o.Encoder,
		format:         o.StorageFormat,
		deleteOriginal: o.DeleteOriginal,
		scanOnStart:    o.ScanOnStart,
	}, nil
}

// Run blocks until the context is cancelled. Failures on individual files
// are logged and never terminate the loop.
func (w *Watcher) Run(gCtx global.Context) error {
	if w.scanOnStart {
		w.scan(gCtx)
	}

	if err := w.fsw.Add(w.input); err != nil {
		return fmt.Errorf("watch %q: %w", w.input, err)
	}

	zap.S().Infow("watching for new images",
		"path", w.input,
	)

	go w.forward(gCtx)

	for {
		select {
		case <-gCtx.Done():
			return nil
		case event, ok := <-w.events:
			if !ok {
				return nil
			}

			if err := w.handle(gCtx, event.Name); err != nil {
				zap.S().Errorw("failed to ingest file",
					"path", event.Name,
					"error", err,
				)
			}
		}
	}
}

// scan ingests files already present in the input directory before the
// event loop starts.
func (w *Watcher) scan(gCtx global.Context) {
	entries, err := os.ReadDir(w.input)
	if err != nil {
		zap.S().Errorw("failed to scan input directory",
			"path", w.input,
			"error", err,
		)

		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		path := filepath.Join(w.input, entry.Name())
		if err := w.handle(gCtx, path); err != nil {
			zap.S().Errorw("failed to ingest pre-existing file",
				"path", path,
				"error", err,
			)
		}
	}
}

// forward filters raw fsnotify events down to file creations and pushes
// them into the bounded queue, dropping when it is full.
func (w *Watcher) forward(gCtx global.Context) {
	defer close(w.events)
	defer w.fsw.Close()

	for {
		select {
		case <-gCtx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}

			if !event.Has(fsnotify.Create) {
				zap.S().Debugw("ignoring filesystem event",
					"event", event,
				)
				continue
			}

			info, err := os.Stat(event.Name)
			if err != nil || info.IsDir() {
				continue
			}

			select {
			case w.events <- event:
			default:
				if prom := gCtx.Inst().Prometheus; prom != nil {
					prom.EventDropped()
				}
				zap.S().Warnw("event queue full, dropping notification",
					"path", event.Name,
				)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}

			zap.S().Errorw("filesystem watch error",
				"error", err,
			)
		}
	}
}

func (w *Watcher) handle(gCtx global.Context, path string) error {
	var finish func(success bool)
	if prom := gCtx.Inst().Prometheus; prom != nil {
		finish = prom.StartIngest()
	}

	err := w.ingest(gCtx, path)

	if finish != nil {
		finish(err == nil)
	}

	return err
}

func (w *Watcher) ingest(gCtx global.Context, path string) error {
	data, err := w.readFull(path)
	if err != nil {
		return err
	}

	if prom := gCtx.Inst().Prometheus; prom != nil {
		prom.InputFileType(container.Match(data).MIME.Value)
		prom.TotalBytesIngested(len(data))
	}

	base := filepath.Base(path)
	ext := strings.TrimPrefix(filepath.Ext(base), ".")
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	var errs error

	if w.archive != nil {
		if _, err := w.archive.Add(data, ext); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("archive original: %w", err))
		}
	}

	out, err := w.enc.Transcode(data, ext, w.format, nil)
	if err != nil {
		return multierr.Append(errs, err)
	}

	stored, err := w.store.Add(storage.NewFile(stem, w.format.Extension()), out)
	if err != nil {
		return multierr.Append(errs, err)
	}

	if w.deleteOriginal {
		if err := os.Remove(path); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("delete original: %w", err))
		}
	}

	zap.S().Infow("ingested image",
		"source", path,
		"stored", stored,
	)

	return errs
}

// readFull reads the whole file, retrying while it is empty. Writers often
// create the file first and fill it afterwards; an empty read is treated
// as transient, not as content.
func (w *Watcher) readFull(path string) ([]byte, error) {
	for attempt := 0; attempt < readRetryMax; attempt++ {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", path, err)
		}

		if len(data) > 0 {
			return data, nil
		}

		time.Sleep(readRetryDelay)
	}

	return nil, fmt.Errorf("file %q stayed empty", path)
}
