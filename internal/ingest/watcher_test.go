package ingest

import (
	"bytes"
	"context"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renanvieira/wire-img/internal/configure"
	"github.com/renanvieira/wire-img/internal/container"
	"github.com/renanvieira/wire-img/internal/global"
	"github.com/renanvieira/wire-img/internal/storage"
	"github.com/renanvieira/wire-img/internal/transcoder"
)

func TestMain(m *testing.M) {
	transcoder.Init()
	code := m.Run()
	transcoder.Shutdown()
	os.Exit(code)
}

func jpegFixture(t *testing.T, width, height int) []byte {
	t.Helper()

	img := imaging.New(width, height, color.NRGBA{R: 40, G: 90, B: 180, A: 255})

	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.JPEG))

	return buf.Bytes()
}

type fixture struct {
	input   string
	store   *storage.Disk
	archive *storage.BucketStore
	watcher *Watcher
	cancel  context.CancelFunc
}

func startWatcher(t *testing.T, opts func(*Options)) *fixture {
	t.Helper()

	input := t.TempDir()

	store, err := storage.NewDisk(t.TempDir())
	require.NoError(t, err)

	o := Options{
		InputPath:     input,
		Store:         store,
		Encoder:       transcoder.New(),
		StorageFormat: container.EncodingPNG,
		QueueSize:     16,
	}
	if opts != nil {
		opts(&o)
	}

	w, err := New(o)
	require.NoError(t, err)

	gCtx, cancel := global.WithCancel(global.New(context.Background(), &configure.Config{}))
	t.Cleanup(cancel)

	go func() {
		_ = w.Run(gCtx)
	}()

	// Give the watcher time to register the directory before files land.
	time.Sleep(100 * time.Millisecond)

	return &fixture{input: input, store: store, archive: o.Archive, watcher: w, cancel: cancel}
}

func storedPNG(f *fixture, name string) func() bool {
	return func() bool {
		data, err := f.store.Read(storage.NewFile(name, "png"))
		if err != nil || len(data) == 0 {
			return false
		}

		enc, ok := container.Detect(data)

		return ok && enc == container.EncodingPNG
	}
}

func TestIngestNewFile(t *testing.T) {
	f := startWatcher(t, nil)

	src := filepath.Join(f.input, "photo.jpg")
	require.NoError(t, os.WriteFile(src, jpegFixture(t, 20, 20), 0o644))

	assert.Eventually(t, storedPNG(f, "photo"), 10*time.Second, 50*time.Millisecond)

	// Source stays in place unless delete_original is set.
	assert.FileExists(t, src)
}

func TestIngestDeletesOriginal(t *testing.T) {
	f := startWatcher(t, func(o *Options) {
		o.DeleteOriginal = true
	})

	src := filepath.Join(f.input, "photo.jpg")
	require.NoError(t, os.WriteFile(src, jpegFixture(t, 20, 20), 0o644))

	assert.Eventually(t, storedPNG(f, "photo"), 10*time.Second, 50*time.Millisecond)
	assert.Eventually(t, func() bool {
		_, err := os.Stat(src)
		return os.IsNotExist(err)
	}, 5*time.Second, 50*time.Millisecond)
}

func TestZeroByteFileWaitsForContent(t *testing.T) {
	f := startWatcher(t, nil)

	src := filepath.Join(f.input, "slow.jpg")
	require.NoError(t, os.WriteFile(src, nil, 0o644))

	// The create notification fires on an empty file; nothing may be
	// stored until content shows up.
	time.Sleep(500 * time.Millisecond)
	_, err := f.store.Read(storage.NewFile("slow", "png"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, os.WriteFile(src, jpegFixture(t, 10, 10), 0o644))

	assert.Eventually(t, storedPNG(f, "slow"), 10*time.Second, 50*time.Millisecond)
}

func TestBadFileDoesNotStopTheLoop(t *testing.T) {
	f := startWatcher(t, nil)

	require.NoError(t, os.WriteFile(filepath.Join(f.input, "broken.jpg"), []byte("not an image"), 0o644))

	time.Sleep(200 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(f.input, "good.jpg"), jpegFixture(t, 16, 16), 0o644))

	assert.Eventually(t, storedPNG(f, "good"), 10*time.Second, 50*time.Millisecond)

	_, err := f.store.Read(storage.NewFile("broken", "png"))
	assert.ErrorIs(t, err, os.ErrNotExist, "no output for a file that failed to transcode")
}

func TestScanOnStartIngestsExistingFiles(t *testing.T) {
	input := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(input, "existing.jpg"), jpegFixture(t, 12, 12), 0o644))

	store, err := storage.NewDisk(t.TempDir())
	require.NoError(t, err)

	w, err := New(Options{
		InputPath:     input,
		Store:         store,
		Encoder:       transcoder.New(),
		StorageFormat: container.EncodingPNG,
		ScanOnStart:   true,
	})
	require.NoError(t, err)

	gCtx, cancel := global.WithCancel(global.New(context.Background(), &configure.Config{}))
	t.Cleanup(cancel)

	go func() {
		_ = w.Run(gCtx)
	}()

	assert.Eventually(t, func() bool {
		data, rerr := store.Read(storage.NewFile("existing", "png"))
		return rerr == nil && len(data) > 0
	}, 10*time.Second, 50*time.Millisecond)
}

func TestArchiveKeepsOriginalBytes(t *testing.T) {
	archive, err := storage.NewBucketStore(t.TempDir())
	require.NoError(t, err)

	f := startWatcher(t, func(o *Options) {
		o.Archive = archive
	})

	payload := jpegFixture(t, 24, 24)
	require.NoError(t, os.WriteFile(filepath.Join(f.input, "photo.jpg"), payload, 0o644))

	assert.Eventually(t, storedPNG(f, "photo"), 10*time.Second, 50*time.Millisecond)

	path, err := archive.Add([]byte("probe"), "txt")
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(entries), 2, "archived original plus probe share the bucket")
}
