package transcoder

import (
	"errors"
	"fmt"

	"github.com/davidbyttow/govips/v2/vips"
	"go.uber.org/zap"

	"github.com/renanvieira/wire-img/internal/container"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrDecode            = errors.New("failed to decode image")
	ErrEncode            = errors.New("failed to encode image")
)

// Encoder re-encodes raw image bytes into a target format, optionally
// applying an ordered list of operations first.
type Encoder interface {
	Transcode(raw []byte, extHint string, target container.Encoding, ops []Operation) ([]byte, error)
}

type Transcoder struct{}

func New() Transcoder {
	return Transcoder{}
}

// Transcode decodes raw, applies ops in order and encodes to target. The
// source format is sniffed from magic numbers first; extHint is only
// consulted when sniffing fails. Output is all-or-nothing: any failure
// returns no bytes.
func (t Transcoder) Transcode(raw []byte, extHint string, target container.Encoding, ops []Operation) ([]byte, error) {
	source, ok := container.Detect(raw)
	if !ok {
		zap.S().Warnw("could not sniff image format, falling back to extension",
			"extension", extHint,
		)

		source, ok = container.ParseEncoding(extHint)
		if !ok {
			return nil, fmt.Errorf("%w: unrecognized extension %q", ErrUnsupportedFormat, extHint)
		}
	}

	ref, err := vips.LoadImageFromBuffer(raw, vips.NewImportParams())
	if err != nil {
		return nil, fmt.Errorf("%w (%s): %v", ErrDecode, source, err)
	}
	defer ref.Close()

	for _, op := range ops {
		if err := op.apply(ref); err != nil {
			return nil, err
		}
	}

	// JPEG has no alpha channel. Force three bands before export instead of
	// letting the encoder reject the image.
	if target == container.EncodingJPEG && ref.HasAlpha() {
		if err := ref.Flatten(&vips.Color{R: 255, G: 255, B: 255}); err != nil {
			return nil, fmt.Errorf("%w (%s): flatten: %v", ErrEncode, target, err)
		}
	}

	out, err := t.export(ref, target)
	if err != nil {
		return nil, fmt.Errorf("%w (%s): %v", ErrEncode, target, err)
	}

	return out, nil
}

func (t Transcoder) export(ref *vips.ImageRef, target container.Encoding) ([]byte, error) {
	switch target {
	case container.EncodingAVIF:
		out, _, err := ref.ExportAvif(vips.NewAvifExportParams())
		return out, err
	case container.EncodingJPEG:
		out, _, err := ref.ExportJpeg(vips.NewJpegExportParams())
		return out, err
	case container.EncodingPNG:
		out, _, err := ref.ExportPng(vips.NewPngExportParams())
		return out, err
	}

	return nil, fmt.Errorf("no encoder for %q", target)
}
