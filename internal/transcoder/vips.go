package transcoder

import (
	"github.com/davidbyttow/govips/v2/vips"
	"go.uber.org/zap"
)

// Init starts libvips once per process. Must be called before any
// Transcode and balanced with Shutdown on exit.
func Init() {
	vips.LoggingSettings(func(domain string, level vips.LogLevel, msg string) {
		switch level {
		case vips.LogLevelError, vips.LogLevelCritical:
			zap.S().Errorw("libvips",
				"domain", domain,
				"message", msg,
			)
		case vips.LogLevelWarning:
			zap.S().Warnw("libvips",
				"domain", domain,
				"message", msg,
			)
		default:
			zap.S().Debugw("libvips",
				"domain", domain,
				"message", msg,
			)
		}
	}, vips.LogLevelWarning)

	vips.Startup(&vips.Config{
		ReportLeaks: false,
	})

	zap.S().Infof("libvips initialized (version: %s)", vips.Version)
}

func Shutdown() {
	vips.Shutdown()
}
