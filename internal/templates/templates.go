package templates

import (
	"fmt"
	"strings"

	"github.com/renanvieira/wire-img/internal/container"
	"github.com/renanvieira/wire-img/internal/transcoder"
)

// Location says which end of the requested filename carries the template
// discriminator.
type Location string

const (
	LocationPrefix Location = "prefix"
	LocationSuffix Location = "suffix"
)

func ParseLocation(s string) (Location, bool) {
	switch strings.ToLower(s) {
	case "prefix":
		return LocationPrefix, true
	case "suffix":
		return LocationSuffix, true
	}

	return "", false
}

// Template is a named, fixed-size output rendition triggered by filename
// convention: "name_photo" for a prefix template, "photo_name" for a
// suffix template.
type Template struct {
	Location Location
	Name     string
	Size     transcoder.PixelSize
	Format   container.Encoding
}

func New(location, name string, width, height int, format string) (Template, error) {
	loc, ok := ParseLocation(location)
	if !ok {
		return Template{}, fmt.Errorf("template %q: unknown location %q", name, location)
	}

	enc, ok := container.ParseEncoding(format)
	if !ok {
		return Template{}, fmt.Errorf("template %q: unknown format %q", name, format)
	}

	if name == "" {
		return Template{}, fmt.Errorf("template with empty name")
	}

	return Template{
		Location: loc,
		Name:     name,
		Size:     transcoder.PixelSize{Width: width, Height: height},
		Format:   enc,
	}, nil
}

// Resolve checks whether requested encodes one of the configured templates
// and, if so, returns the matching template and the canonical image name
// with the template marker stripped. Templates are scanned in configured
// order and the first match wins. A name with no underscore can never
// match. ok=false is the expected no-template outcome, not a failure.
func Resolve(requested string, tpls []Template) (Template, string, bool) {
	if !strings.Contains(requested, "_") {
		return Template{}, "", false
	}

	parts := strings.Split(requested, "_")
	prefix := parts[0]
	suffix := parts[len(parts)-1]

	for _, t := range tpls {
		switch t.Location {
		case LocationPrefix:
			if t.Name == prefix {
				return t, strings.TrimPrefix(requested, t.Name+"_"), true
			}
		case LocationSuffix:
			if t.Name == suffix {
				return t, strings.TrimSuffix(requested, "_"+t.Name), true
			}
		}
	}

	return Template{}, "", false
}
