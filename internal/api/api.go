package api

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"

	"github.com/renanvieira/wire-img/internal/global"
	"github.com/renanvieira/wire-img/internal/processor"
	"github.com/renanvieira/wire-img/internal/transcoder"
)

// New starts the delivery server. Request shapes:
//
//	GET /{name}                          canonical storage format
//	GET /{name}/{ext}                    explicit format
//	GET /{width}/{height}/{name}/{ext}   explicit format plus exact resize
//
// The returned channel closes once the server has shut down.
func New(gCtx global.Context, proc *processor.Processor, defaultExt string) <-chan struct{} {
	srv := fasthttp.Server{
		Handler: func(ctx *fasthttp.RequestCtx) {
			defer func() {
				if err := recover(); err != nil {
					zap.S().Errorw("panic in api",
						"panic", err,
					)
					ctx.SetStatusCode(fasthttp.StatusInternalServerError)
				}
			}()

			handle(gCtx, proc, defaultExt, ctx)
		},
		GetOnly: true,
	}

	bind := fmt.Sprintf("%s:%d", gCtx.Config().Server.Host, gCtx.Config().Server.Port)

	done := make(chan struct{})
	go func() {
		defer close(done)
		zap.S().Infow("API enabled",
			"bind", bind,
		)

		if err := srv.ListenAndServe(bind); err != nil {
			zap.S().Fatalw("failed to bind api",
				"error", err,
			)
		}
	}()

	go func() {
		<-gCtx.Done()

		_ = srv.Shutdown()
	}()

	return done
}

func handle(gCtx global.Context, proc *processor.Processor, defaultExt string, ctx *fasthttp.RequestCtx) {
	path := strings.Trim(string(ctx.Path()), "/")
	if path == "" {
		ctx.SetBodyString("wire-img")
		return
	}

	var (
		name string
		ext  string
		size *transcoder.PixelSize
	)

	segments := strings.Split(path, "/")
	switch len(segments) {
	case 1:
		name, ext = segments[0], defaultExt
	case 2:
		name, ext = segments[0], segments[1]
	case 4:
		width, werr := strconv.Atoi(segments[0])
		height, herr := strconv.Atoi(segments[1])
		if werr != nil || herr != nil || width <= 0 || height <= 0 {
			ctx.Error("invalid dimensions", fasthttp.StatusBadRequest)
			return
		}

		size = &transcoder.PixelSize{Width: width, Height: height}
		name, ext = segments[2], segments[3]
	default:
		ctx.Error("not found", fasthttp.StatusNotFound)
		return
	}

	var finish func(success bool)
	if prom := gCtx.Inst().Prometheus; prom != nil {
		finish = prom.StartRequest()
	}

	body, enc, err := proc.Process(name, ext, size)

	if finish != nil {
		finish(err == nil)
	}

	if err != nil {
		switch {
		case errors.Is(err, processor.ErrBadRequest):
			ctx.Error("unsupported image format", fasthttp.StatusBadRequest)
		case errors.Is(err, processor.ErrNotFound):
			ctx.Error("image not found", fasthttp.StatusNotFound)
		default:
			zap.S().Errorw("failed to process request",
				"name", name,
				"extension", ext,
				"error", err,
			)
			ctx.Error("internal error", fasthttp.StatusInternalServerError)
		}

		return
	}

	digest := sha3.Sum256(body)
	etag := `"` + hex.EncodeToString(digest[:]) + `"`

	if string(ctx.Request.Header.Peek(fasthttp.HeaderIfNoneMatch)) == etag {
		ctx.SetStatusCode(fasthttp.StatusNotModified)
		return
	}

	if prom := gCtx.Inst().Prometheus; prom != nil {
		prom.TotalBytesServed(len(body))
	}

	ctx.Response.Header.Set(fasthttp.HeaderETag, etag)
	ctx.SetContentType(enc.ContentType())
	ctx.SetBody(body)
}
