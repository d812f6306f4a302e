package container

import "github.com/h2non/filetype/matchers"

var (
	MimeAVIF = TypeAvif.MIME.Value
	MimeJPEG = matchers.TypeJpeg.MIME.Value
	MimePNG  = matchers.TypePng.MIME.Value
)
