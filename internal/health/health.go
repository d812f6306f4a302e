package health

import (
	"os"
	"path/filepath"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/renanvieira/wire-img/internal/global"
)

func New(gCtx global.Context) <-chan struct{} {
	done := make(chan struct{})

	srv := fasthttp.Server{
		Handler: func(ctx *fasthttp.RequestCtx) {
			defer func() {
				if err := recover(); err != nil {
					zap.S().Errorw("panic in health",
						"panic", err,
					)
				}
			}()

			// The service is healthy while the canonical store stays
			// writable.
			probe := filepath.Join(gCtx.Config().Image.OutputPath, ".health")
			if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
				zap.S().Warnw("storage is not writable",
					"error", err,
				)
				ctx.SetStatusCode(500)
				return
			}

			_ = os.Remove(probe)
		},
	}

	go func() {
		defer close(done)
		zap.S().Infow("Health enabled",
			"bind", gCtx.Config().Health.Bind,
		)

		if err := srv.ListenAndServe(gCtx.Config().Health.Bind); err != nil {
			zap.S().Fatalw("failed to bind health",
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
