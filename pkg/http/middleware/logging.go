package middleware

import (
	"time"

	applogger "QuantDesk/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging logs HTTP requests through the structured logger.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if l != nil {
				l.Info("http request",
					applogger.String("method", c.Request().Method),
					applogger.String("uri", c.Request().RequestURI),
					applogger.Int("status", c.Response().Status),
					applogger.Duration("duration_ms", time.Since(start)),
				)
			}
			return err
		}
	}
}
