package processor

import (
	"bytes"
	"image/color"
	"os"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renanvieira/wire-img/internal/container"
	"github.com/renanvieira/wire-img/internal/storage"
	"github.com/renanvieira/wire-img/internal/templates"
	"github.com/renanvieira/wire-img/internal/transcoder"
)

func TestMain(m *testing.M) {
	transcoder.Init()
	code := m.Run()
	transcoder.Shutdown()
	os.Exit(code)
}

func pngFixture(t *testing.T, width, height int) []byte {
	t.Helper()

	img := imaging.New(width, height, color.NRGBA{R: 200, G: 80, B: 40, A: 255})

	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))

	return buf.Bytes()
}

func decodeSize(t *testing.T, data []byte) (int, int) {
	t.Helper()

	img, err := imaging.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	return img.Bounds().Dx(), img.Bounds().Dy()
}

// canonical storage format is PNG throughout these tests so outputs stay
// verifiable with the standard decoders.
func newProcessor(t *testing.T, tpls []templates.Template) (*Processor, *storage.Disk) {
	t.Helper()

	store, err := storage.NewDisk(t.TempDir())
	require.NoError(t, err)

	settings := Settings{
		AllowedFormats: []container.Encoding{container.EncodingPNG, container.EncodingJPEG},
		StorageFormat:  container.EncodingPNG,
		Templates:      tpls,
	}

	return New(store, transcoder.New(), settings), store
}

func seed(t *testing.T, store *storage.Disk, name string, data []byte) {
	t.Helper()

	_, err := store.Add(storage.NewFile(name, "png"), data)
	require.NoError(t, err)
}

func TestPassthroughSameFormatNoResize(t *testing.T) {
	proc, store := newProcessor(t, nil)

	canonical := pngFixture(t, 40, 40)
	seed(t, store, "photo", canonical)

	body, enc, err := proc.Process("photo", "png", nil)
	require.NoError(t, err)
	assert.Equal(t, container.EncodingPNG, enc)
	assert.Equal(t, canonical, body, "no re-encode when format and size already match")
}

func TestTranscodeToRequestedFormat(t *testing.T) {
	proc, store := newProcessor(t, nil)
	seed(t, store, "photo", pngFixture(t, 40, 20))

	body, enc, err := proc.Process("photo", "jpg", nil)
	require.NoError(t, err)
	assert.Equal(t, container.EncodingJPEG, enc)

	detected, ok := container.Detect(body)
	require.True(t, ok)
	assert.Equal(t, container.EncodingJPEG, detected)

	w, h := decodeSize(t, body)
	assert.Equal(t, 40, w)
	assert.Equal(t, 20, h)
}

func TestExplicitResize(t *testing.T) {
	proc, store := newProcessor(t, nil)
	seed(t, store, "photo", pngFixture(t, 100, 100))

	body, _, err := proc.Process("photo", "png", &transcoder.PixelSize{Width: 30, Height: 60})
	require.NoError(t, err)

	w, h := decodeSize(t, body)
	assert.Equal(t, 30, w)
	assert.Equal(t, 60, h)
}

func TestTemplateOverridesRequest(t *testing.T) {
	tpl, err := templates.New("prefix", "large", 64, 32, "jpeg")
	require.NoError(t, err)

	proc, store := newProcessor(t, []templates.Template{tpl})
	seed(t, store, "photo", pngFixture(t, 100, 100))

	// Requested png and an explicit size, both overridden by the template.
	body, enc, err := proc.Process("large_photo", "png", &transcoder.PixelSize{Width: 10, Height: 10})
	require.NoError(t, err)
	assert.Equal(t, container.EncodingJPEG, enc)

	w, h := decodeSize(t, body)
	assert.Equal(t, 64, w)
	assert.Equal(t, 32, h)
}

func TestUnknownExtensionIsBadRequest(t *testing.T) {
	proc, store := newProcessor(t, nil)
	seed(t, store, "photo", pngFixture(t, 10, 10))

	_, _, err := proc.Process("photo", "webp", nil)
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestDisallowedExtensionIsBadRequest(t *testing.T) {
	proc, store := newProcessor(t, nil)
	seed(t, store, "photo", pngFixture(t, 10, 10))

	// avif is a known encoding but absent from the allow-list.
	_, _, err := proc.Process("photo", "avif", nil)
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestMissingCanonicalIsNotFound(t *testing.T) {
	proc, _ := newProcessor(t, nil)

	_, _, err := proc.Process("nowhere", "png", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepeatedRequestsAreByteIdentical(t *testing.T) {
	proc, store := newProcessor(t, nil)
	seed(t, store, "photo", pngFixture(t, 80, 80))

	size := &transcoder.PixelSize{Width: 40, Height: 40}

	first, _, err := proc.Process("photo", "jpg", size)
	require.NoError(t, err)

	second, _, err := proc.Process("photo", "jpg", size)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
