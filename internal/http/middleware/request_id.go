package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequestIDKey is the echo context key request handlers and middleware
// read the request ID from.
const RequestIDKey = "request_id"

// RequestID tags every request with an ID for log correlation. A caller
// may supply one via X-Request-ID as long as it parses as a UUID;
// anything else is replaced, so arbitrary client strings never reach
// logs or trace attributes.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Request().Header.Get("X-Request-ID")
			if _, err := uuid.Parse(requestID); err != nil {
				requestID = uuid.New().String()
			}

			c.Response().Header().Set("X-Request-ID", requestID)
			c.Set(RequestIDKey, requestID)
			return next(c)
		}
	}
}
