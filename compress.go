// Package compress provides response compression middleware for Echo.
//
// The middleware negotiates a content-coding from the request's
// Accept-Encoding preferences and streams the response body through the
// matching encoder, subject to the protocol eligibility checks: HEAD
// requests and requests without Accept-Encoding pass through untouched,
// Cache-Control: no-transform is honored, a pre-existing
// Content-Encoding is never overridden, and bodies below a minimum size
// are not worth compressing. The body is never buffered in full; memory
// use stays bounded regardless of payload size.
package compress

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/echo-compress/internal/negotiate"
)

// DefaultThreshold is the minimum body size, in bytes, eligible for
// compression when Config.Threshold is left unset.
const DefaultThreshold = 1024

// Config configures the compression middleware. The zero value is
// usable: default threshold, library-default levels and the default
// encoding set.
type Config struct {
	// Skipper defines a function to skip this middleware.
	Skipper middleware.Skipper

	// Threshold is the minimum body size in bytes eligible for
	// compression. A body whose length is known to be below it is sent
	// uncompressed; a body of exactly Threshold bytes is compressed.
	// 0 means DefaultThreshold.
	Threshold int

	// Levels holds the per-algorithm encoder levels. The zero value
	// uses every codec's library default.
	Levels CompressionLevels

	// Encodings is the set of content-codings the middleware may apply,
	// in server preference order. nil means DefaultEncodings. An
	// explicitly empty set disables compression entirely: the
	// middleware becomes a pass-through.
	Encodings []Encoding

	// Logger receives debug and warning logs. Defaults to
	// slog.Default() tagged with the middleware component.
	Logger *slog.Logger
}

// Middleware returns response compression middleware with default
// settings.
func Middleware() echo.MiddlewareFunc {
	return MiddlewareWithConfig(Config{})
}

// MiddlewareWithConfig returns response compression middleware
// configured by cfg. The configuration is resolved once here; the
// returned middleware holds no mutable state and is safe for
// arbitrarily many concurrent requests.
func MiddlewareWithConfig(cfg Config) echo.MiddlewareFunc {
	if cfg.Skipper == nil {
		cfg.Skipper = middleware.DefaultSkipper
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default().With("component", "compress")
	}
	encodings := cfg.Encodings
	if encodings == nil {
		encodings = DefaultEncodings
	}
	available := make([]string, 0, len(encodings))
	for _, enc := range encodings {
		switch enc {
		case EncodingGzip, EncodingDeflate, EncodingBrotli, EncodingZstd:
			available = append(available, string(enc))
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper(c) || len(available) == 0 {
				return next(c)
			}

			// Grab these before the request is handed downstream.
			req := c.Request()
			isHead := req.Method == http.MethodHead
			values, hasAcceptEncoding := req.Header[echo.HeaderAcceptEncoding]

			// HEAD responses have no body to compress, and without an
			// Accept-Encoding header there is nothing to negotiate.
			// Neither response varies on Accept-Encoding.
			if isHead || !hasAcceptEncoding {
				return next(c)
			}

			accepted, err := negotiate.Parse(strings.Join(values, ","))
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "malformed Accept-Encoding header").SetInternal(err)
			}

			res := c.Response()
			cw := &compressWriter{
				ResponseWriter: res.Writer,
				threshold:      cfg.Threshold,
				levels:         cfg.Levels,
				encodings:      available,
				accepted:       accepted,
				logger:         cfg.Logger,
			}
			res.Writer = cw
			defer func() { res.Writer = cw.ResponseWriter }()

			if err := next(c); err != nil {
				if !res.Committed {
					// Let the error handler render on the bare writer.
					cw.discard()
				} else if cerr := cw.Close(); cerr != nil {
					cfg.Logger.Warn("finalizing compressed response", "error", cerr)
				}
				return err
			}
			if err := cw.Close(); err != nil {
				// Headers are already out; all that is left is logging.
				cfg.Logger.Warn("finalizing compressed response", "error", err)
			}
			return nil
		}
	}
}
