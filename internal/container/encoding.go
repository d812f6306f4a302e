package container

import "strings"

// Encoding is the closed set of image formats this service understands.
type Encoding string

const (
	EncodingAVIF Encoding = "avif"
	EncodingJPEG Encoding = "jpeg"
	EncodingPNG  Encoding = "png"
)

// ParseEncoding maps a user supplied format name or file extension onto an
// Encoding. Matching is case-insensitive and accepts the common "jpg" alias.
func ParseEncoding(s string) (Encoding, bool) {
	switch strings.ToLower(s) {
	case "avif":
		return EncodingAVIF, true
	case "jpg", "jpeg":
		return EncodingJPEG, true
	case "png":
		return EncodingPNG, true
	}

	return "", false
}

func (e Encoding) ContentType() string {
	switch e {
	case EncodingAVIF:
		return MimeAVIF
	case EncodingJPEG:
		return MimeJPEG
	case EncodingPNG:
		return MimePNG
	}

	return "application/octet-stream"
}

// Extension returns the canonical filename extension, without the dot.
func (e Encoding) Extension() string {
	switch e {
	case EncodingJPEG:
		return "jpg"
	default:
		return string(e)
	}
}
