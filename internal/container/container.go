package container

import (
	"github.com/h2non/filetype"
	"github.com/h2non/filetype/matchers"
	"github.com/h2non/filetype/types"
)

var TypeAvif = types.NewType("avif", "image/avif")

func init() {
	filetype.AddMatcher(TypeAvif, func(data []byte) bool {
		if len(data) < 12 {
			return false
		}

		return data[0] == 0x00 &&
			data[1] == 0x00 &&
			data[4] == 'f' &&
			data[5] == 't' &&
			data[6] == 'y' &&
			data[7] == 'p' &&
			data[8] == 'a' &&
			data[9] == 'v' &&
			data[10] == 'i' &&
			(data[11] == 's' || data[11] == 'f' || data[11] == 'o')
	})
}

// Match sniffs the container type from magic numbers.
func Match(data []byte) types.Type {
	t, _ := filetype.Match(data)

	return t
}

// Detect sniffs the payload and reports the matching Encoding. Containers
// outside the supported set (webp, gif, ...) report ok=false.
func Detect(data []byte) (Encoding, bool) {
	switch Match(data) {
	case TypeAvif:
		return EncodingAVIF, true
	case matchers.TypeJpeg:
		return EncodingJPEG, true
	case matchers.TypePng:
		return EncodingPNG, true
	}

	return "", false
}
