package middleware

import (
	"net/http"
	"time"

	"PowerDesk/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging logs one line per request at debug level.
func RequestLogging(log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			log.Debug("http request",
				logger.String("method", c.Request().Method),
				logger.String("uri", c.Request().RequestURI),
				logger.String("remote", c.RealIP()),
				logger.Int("status", c.Response().Status),
				logger.Duration("latency_ms", time.Since(start)),
			)
			return nil
		}
	}
}

// BodyLimit rejects requests whose declared body exceeds n bytes and caps
// the reader for the rest.
func BodyLimit(n int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if n <= 0 || req.Body == nil {
				return next(c)
			}
			if req.ContentLength > n {
				return c.JSON(http.StatusRequestEntityTooLarge, map[string]interface{}{
					"status":  http.StatusRequestEntityTooLarge,
					"message": http.StatusText(http.StatusRequestEntityTooLarge),
				})
			}
			req.Body = http.MaxBytesReader(c.Response(), req.Body, n)
			return next(c)
		}
	}
}
