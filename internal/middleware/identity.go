package middleware

// identity.go holds the context keys the auth middleware fills in and the
// accessors handlers use to read them back.

import "github.com/labstack/echo/v4"

const (
	ctxSubject   = "subject"
	ctxRole      = "role"
	ctxRequestID = "request_id"
)

// Subject returns the authenticated subject, or "anon" when the request
// carried no identity.
func Subject(c echo.Context) string {
	if s, ok := c.Get(ctxSubject).(string); ok && s != "" {
		return s
	}
	return "anon"
}

// Role returns the role claim of the authenticated caller, or "".
func Role(c echo.Context) string {
	r, _ := c.Get(ctxRole).(string)
	return r
}

// RequestID returns the id assigned by RequestLogger.
func RequestID(c echo.Context) string {
	id, _ := c.Get(ctxRequestID).(string)
	return id
}
