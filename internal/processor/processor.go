package processor

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/renanvieira/wire-img/internal/container"
	"github.com/renanvieira/wire-img/internal/storage"
	"github.com/renanvieira/wire-img/internal/templates"
	"github.com/renanvieira/wire-img/internal/transcoder"
)

var (
	ErrBadRequest = errors.New("unsupported or disallowed format")
	ErrNotFound   = errors.New("image not found")
)

// Settings is the read-only image configuration a Processor serves with.
type Settings struct {
	// AllowedFormats is an allow-list for requested extensions. Empty means
	// every known encoding is allowed.
	AllowedFormats []container.Encoding

	// StorageFormat is the canonical on-disk encoding produced by ingestion.
	StorageFormat container.Encoding

	Templates []templates.Template
}

// Processor turns a logical image request into response bytes, reading the
// canonical file and transcoding on demand.
type Processor struct {
	store    *storage.Disk
	enc      transcoder.Encoder
	settings Settings
	allowed  map[container.Encoding]struct{}
}

func New(store *storage.Disk, enc transcoder.Encoder, settings Settings) *Processor {
	allowed := make(map[container.Encoding]struct{}, len(settings.AllowedFormats))
	for _, f := range settings.AllowedFormats {
		allowed[f] = struct{}{}
	}

	return &Processor{
		store:    store,
		enc:      enc,
		settings: settings,
		allowed:  allowed,
	}
}

// Process resolves name against the configured templates, reads the
// canonical file and re-encodes it to the requested target. A template
// match overrides both the requested extension and any explicit size. When
// the target equals the canonical storage format and no operation applies,
// the canonical bytes pass through untouched.
func (p *Processor) Process(name, ext string, size *transcoder.PixelSize) ([]byte, container.Encoding, error) {
	target, ok := container.ParseEncoding(ext)
	if !ok {
		return nil, "", fmt.Errorf("%w: %q", ErrBadRequest, ext)
	}

	if len(p.allowed) > 0 {
		if _, ok := p.allowed[target]; !ok {
			return nil, "", fmt.Errorf("%w: %q is not an allowed format", ErrBadRequest, ext)
		}
	}

	stem := name
	var ops []transcoder.Operation

	if tpl, canonical, matched := templates.Resolve(name, p.settings.Templates); matched {
		zap.S().Debugw("template matched",
			"requested", name,
			"template", tpl.Name,
			"canonical", canonical,
		)

		stem = canonical
		target = tpl.Format
		ops = append(ops, transcoder.Resize{Size: tpl.Size})
	} else if size != nil {
		ops = append(ops, transcoder.Resize{Size: *size})
	}

	file := storage.NewFile(stem, p.settings.StorageFormat.Extension())

	raw, err := p.store.Read(file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("%w: %s", ErrNotFound, file.FileName())
		}

		return nil, "", fmt.Errorf("read %s: %w", file.FileName(), err)
	}

	if target == p.settings.StorageFormat && len(ops) == 0 {
		return raw, target, nil
	}

	out, err := p.enc.Transcode(raw, p.settings.StorageFormat.Extension(), target, ops)
	if err != nil {
		return nil, "", err
	}

	return out, target, nil
}
