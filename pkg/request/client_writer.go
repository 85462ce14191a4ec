package request

import (
	"errors"
	"net/http"
)

// ErrInternalServer is the message returned when a handler panics.
var ErrInternalServer = errors.New("internal server error")

// ClientWriter wraps a http.ResponseWriter and records the status code
// written, so middleware can report it after the handler returns.
type ClientWriter struct {
	http.ResponseWriter
	statusCode int
}

// NewClientWriter wraps the given writer.
func NewClientWriter(w http.ResponseWriter) *ClientWriter {
	return &ClientWriter{
		ResponseWriter: w,
	}
}

func (c *ClientWriter) WriteHeader(statusCode int) {
	c.statusCode = statusCode
	c.ResponseWriter.WriteHeader(statusCode)
}

func (c *ClientWriter) Write(b []byte) (int, error) {
	if c.statusCode == 0 {
		c.statusCode = http.StatusOK
	}
	return c.ResponseWriter.Write(b)
}

// StatusCode returns the status code written to the client, defaulting to
// 200 when the handler never called WriteHeader.
func (c *ClientWriter) StatusCode() int {
	if c.statusCode == 0 {
		return http.StatusOK
	}
	return c.statusCode
}
